package virtual

import (
	"context"
	"testing"

	"github.com/atlanticdynamic/boss/internal/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDevice(t *testing.T, d *Device) {
	t.Helper()
	require.NoError(t, d.Open(context.Background()))
	t.Cleanup(func() { assert.NoError(t, d.Close()) })
}

func TestDevice_Kinds(t *testing.T) {
	t.Parallel()
	assert.Equal(t, hal.BackendMock, NewMock(hal.ScreenSize{}).Kind())
	assert.Equal(t, hal.BackendEmulator, NewEmulator(hal.ScreenSize{}).Kind())
}

func TestDevice_ScreenSizeDefault(t *testing.T) {
	t.Parallel()
	assert.Equal(t, hal.ScreenSize{Width: 800, Height: 480}, NewMock(hal.ScreenSize{}).ScreenSize())
	assert.Equal(t, hal.ScreenSize{Width: 320, Height: 240},
		NewMock(hal.ScreenSize{Width: 320, Height: 240}).ScreenSize())
}

func TestDevice_ClosedRejectsIO(t *testing.T) {
	t.Parallel()
	d := NewMock(hal.ScreenSize{})

	_, err := d.ReadSwitches()
	assert.ErrorIs(t, err, hal.ErrNotOpen)
	assert.ErrorIs(t, d.SetSwitches(1), hal.ErrNotOpen)
	assert.ErrorIs(t, d.PressButton(hal.ButtonGo), hal.ErrNotOpen)
	assert.ErrorIs(t, d.WriteLED(hal.LEDRed, hal.LEDState{}), hal.ErrNotOpen)
	assert.ErrorIs(t, d.WriteDisplay(nil), hal.ErrNotOpen)
	assert.ErrorIs(t, d.DrawText(hal.TextOptions{}), hal.ErrNotOpen)
	assert.ErrorIs(t, d.ClearScreen("black"), hal.ErrNotOpen)
}

func TestDevice_Switches(t *testing.T) {
	t.Parallel()
	d := NewMock(hal.ScreenSize{})
	openDevice(t, d)

	value, err := d.ReadSwitches()
	require.NoError(t, err)
	assert.Equal(t, 0, value)

	require.NoError(t, d.SetSwitches(255))
	value, err = d.ReadSwitches()
	require.NoError(t, err)
	assert.Equal(t, 255, value)

	assert.Error(t, d.SetSwitches(-1))
	assert.Error(t, d.SetSwitches(256))
}

func TestDevice_ButtonEdges(t *testing.T) {
	t.Parallel()
	d := NewMock(hal.ScreenSize{})
	openDevice(t, d)

	require.NoError(t, d.PressButton(hal.ButtonRed))
	// Repeat press while held injects nothing.
	require.NoError(t, d.PressButton(hal.ButtonRed))
	require.NoError(t, d.ReleaseButton(hal.ButtonRed))

	edges := d.Edges()
	first := <-edges
	assert.Equal(t, hal.ButtonRed, first.Button)
	assert.True(t, first.Pressed)
	second := <-edges
	assert.False(t, second.Pressed)
	assert.Len(t, edges, 0)

	assert.Error(t, d.PressButton(hal.ButtonID("purple")))
}

func TestDevice_Outputs(t *testing.T) {
	t.Parallel()
	d := NewEmulator(hal.ScreenSize{})
	openDevice(t, d)

	require.NoError(t, d.WriteLED(hal.LEDBlue, hal.LEDState{On: true, Brightness: 0.8}))
	assert.Equal(t, hal.LEDState{On: true, Brightness: 0.8}, d.LED(hal.LEDBlue))

	value := 170
	require.NoError(t, d.WriteDisplay(&value))
	require.NotNil(t, d.Display())
	assert.Equal(t, 170, *d.Display())

	// Mutating the caller's value after the write must not leak in.
	value = 0
	assert.Equal(t, 170, *d.Display())

	require.NoError(t, d.WriteDisplay(nil))
	assert.Nil(t, d.Display())
}

func TestDevice_CloseEndsEdgeStream(t *testing.T) {
	t.Parallel()
	d := NewMock(hal.ScreenSize{})
	require.NoError(t, d.Open(context.Background()))

	edges := d.Edges()
	require.NoError(t, d.Close())

	_, ok := <-edges
	assert.False(t, ok)

	// Double close is safe.
	assert.NoError(t, d.Close())
}
