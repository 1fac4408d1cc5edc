package hal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atlanticdynamic/boss/internal/events"
	"github.com/atlanticdynamic/boss/internal/hal"
	"github.com/atlanticdynamic/boss/internal/hal/virtual"
	"github.com/atlanticdynamic/boss/internal/server/finitestate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures published events for assertions.
type recorder struct {
	mu      sync.Mutex
	entries []recordedEvent
}

type recordedEvent struct {
	Type    string
	Payload map[string]any
	Source  string
}

func (r *recorder) Publish(eventType string, payload map[string]any, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedEvent{Type: eventType, Payload: payload, Source: source})
}

func (r *recorder) byType(eventType string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.entries {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// newRunningController starts a controller over the given backend and tears
// it down with the test.
func newRunningController(t *testing.T, backend hal.Backend) (*hal.Controller, *recorder) {
	t.Helper()

	rec := &recorder{}
	c, err := hal.NewController(backend, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	require.Eventually(t, func() bool {
		return c.GetState() == finitestate.StatusRunning
	}, time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("controller did not stop")
		}
	})
	return c, rec
}

func TestController_NilBackend(t *testing.T) {
	t.Parallel()
	_, err := hal.NewController(nil, &recorder{})
	assert.ErrorIs(t, err, hal.ErrNilBackend)
}

func TestController_SetLED(t *testing.T) {
	t.Parallel()
	device := virtual.NewMock(hal.ScreenSize{})
	c, rec := newRunningController(t, device)

	t.Run("brightness is clamped", func(t *testing.T) {
		require.NoError(t, c.SetLED(hal.LEDRed, hal.LEDState{On: true, Brightness: 2.5}))
		assert.Equal(t, hal.LEDState{On: true, Brightness: 1}, device.LED(hal.LEDRed))
		assert.True(t, c.LEDOn(hal.LEDRed))
	})

	t.Run("repeat command is a no-op", func(t *testing.T) {
		before := len(rec.byType(events.TypeLEDStateChanged))
		require.NoError(t, c.SetLED(hal.LEDRed, hal.LEDState{On: true, Brightness: 1}))
		assert.Len(t, rec.byType(events.TypeLEDStateChanged), before)
	})

	t.Run("brightness-only change emits", func(t *testing.T) {
		before := len(rec.byType(events.TypeLEDStateChanged))
		require.NoError(t, c.SetLED(hal.LEDRed, hal.LEDState{On: true, Brightness: 0.3}))
		changes := rec.byType(events.TypeLEDStateChanged)
		require.Len(t, changes, before+1)
		last := changes[len(changes)-1]
		assert.Equal(t, "red", last.Payload["color"])
		assert.Equal(t, 0.3, last.Payload["brightness"])
	})

	t.Run("off zeroes brightness", func(t *testing.T) {
		require.NoError(t, c.SetLED(hal.LEDRed, hal.LEDState{On: false, Brightness: 0.9}))
		assert.Equal(t, hal.LEDState{}, device.LED(hal.LEDRed))
		assert.False(t, c.LEDOn(hal.LEDRed))
	})

	t.Run("unknown led", func(t *testing.T) {
		err := c.SetLED(hal.LEDID("mauve"), hal.LEDState{On: true})
		assert.ErrorIs(t, err, hal.ErrUnknownLED)
	})
}

func TestController_SetDisplay(t *testing.T) {
	t.Parallel()
	device := virtual.NewMock(hal.ScreenSize{})
	c, rec := newRunningController(t, device)

	value := 42
	require.NoError(t, c.SetDisplay(&value))
	require.NotNil(t, device.Display())
	assert.Equal(t, 42, *device.Display())

	updates := rec.byType(events.TypeDisplayUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, 42, updates[0].Payload["value"])

	t.Run("returned pointer is a copy", func(t *testing.T) {
		got := c.DisplayValue()
		require.NotNil(t, got)
		*got = 99
		assert.Equal(t, 42, *c.DisplayValue())
	})

	t.Run("nil blanks", func(t *testing.T) {
		require.NoError(t, c.SetDisplay(nil))
		assert.Nil(t, device.Display())
		assert.Nil(t, c.DisplayValue())
	})

	t.Run("out of range", func(t *testing.T) {
		bad := 256
		assert.ErrorIs(t, c.SetDisplay(&bad), hal.ErrDisplayRange)
	})
}

func TestController_Screen(t *testing.T) {
	t.Parallel()
	device := virtual.NewMock(hal.ScreenSize{})
	c, rec := newRunningController(t, device)

	require.NoError(t, c.DrawText(hal.TextOptions{
		Content: "hello", FontSize: 32, Color: "green", Align: "center",
	}))
	screen := c.Screen()
	assert.Equal(t, events.ScreenContentText, screen.ContentType)
	assert.Equal(t, "hello", screen.Content)
	assert.Equal(t, 32, screen.Options["font_size"])

	require.NoError(t, c.ClearScreen("navy"))
	screen = c.Screen()
	assert.Equal(t, events.ScreenContentClear, screen.ContentType)
	assert.Equal(t, "navy", screen.Options["background"])

	assert.Len(t, rec.byType(events.TypeScreenUpdated), 2)
}

func TestController_EdgePump(t *testing.T) {
	t.Parallel()
	device := virtual.NewMock(hal.ScreenSize{})
	c, rec := newRunningController(t, device)
	_ = c

	require.NoError(t, device.PressButton(hal.ButtonGo))
	require.Eventually(t, func() bool {
		return len(rec.byType(events.TypeButtonEdge)) == 1
	}, time.Second, 10*time.Millisecond)

	edge := rec.byType(events.TypeButtonEdge)[0]
	assert.Equal(t, "go", edge.Payload["button"])
	assert.Equal(t, events.EdgePress, edge.Payload["edge"])
	assert.Equal(t, "hal:mock", edge.Source)

	require.NoError(t, device.ReleaseButton(hal.ButtonGo))
	require.Eventually(t, func() bool {
		return len(rec.byType(events.TypeButtonEdge)) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, events.EdgeRelease, rec.byType(events.TypeButtonEdge)[1].Payload["edge"])
}

// failingBackend wraps the mock device and fails all writes.
type failingBackend struct {
	*virtual.Device
}

func (f *failingBackend) WriteLED(hal.LEDID, hal.LEDState) error {
	return errors.New("bus fault")
}

func (f *failingBackend) WriteDisplay(*int) error {
	return errors.New("bus fault")
}

func TestController_WriteFailurePublishesSystemError(t *testing.T) {
	t.Parallel()
	device := virtual.NewMock(hal.ScreenSize{})
	c, rec := newRunningController(t, &failingBackend{Device: device})

	err := c.SetLED(hal.LEDGreen, hal.LEDState{On: true})
	require.Error(t, err)

	value := 1
	require.Error(t, c.SetDisplay(&value))

	failures := rec.byType(events.TypeSystemError)
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, "hardware_write", f.Payload["code"])
	}
	assert.Empty(t, rec.byType(events.TypeLEDStateChanged))
	assert.Empty(t, rec.byType(events.TypeDisplayUpdated))
}

// TestBackendParity drives the same action script against both virtual
// backends and requires identical event streams, modulo the source tag.
func TestBackendParity(t *testing.T) {
	t.Parallel()

	script := func(t *testing.T, c *hal.Controller, device *virtual.Device) {
		t.Helper()
		require.NoError(t, c.SetLED(hal.LEDBlue, hal.LEDState{On: true, Brightness: 0.5}))
		value := 7
		require.NoError(t, c.SetDisplay(&value))
		require.NoError(t, c.DrawText(hal.TextOptions{Content: "parity", FontSize: 24}))
		require.NoError(t, c.ClearScreen("black"))
		require.NoError(t, device.PressButton(hal.ButtonBlue))
		require.NoError(t, device.ReleaseButton(hal.ButtonBlue))
	}

	run := func(t *testing.T, device *virtual.Device) []recordedEvent {
		t.Helper()
		c, rec := newRunningController(t, device)
		script(t, c, device)
		require.Eventually(t, func() bool {
			return len(rec.byType(events.TypeButtonEdge)) == 2
		}, time.Second, 10*time.Millisecond)

		rec.mu.Lock()
		defer rec.mu.Unlock()
		out := make([]recordedEvent, len(rec.entries))
		copy(out, rec.entries)
		for i := range out {
			out[i].Source = ""
		}
		return out
	}

	mockEvents := run(t, virtual.NewMock(hal.ScreenSize{}))
	emulatorEvents := run(t, virtual.NewEmulator(hal.ScreenSize{}))
	assert.Equal(t, mockEvents, emulatorEvents)
}

func TestController_Metadata(t *testing.T) {
	t.Parallel()
	device := virtual.NewEmulator(hal.ScreenSize{Width: 640, Height: 400})
	c, err := hal.NewController(device, nil)
	require.NoError(t, err)

	assert.Equal(t, hal.BackendEmulator, c.Kind())
	assert.Equal(t, hal.ScreenSize{Width: 640, Height: 400}, c.ScreenSize())
	assert.True(t, c.Capabilities().Brightness)
	assert.Equal(t, "hal.Controller[emulator]", c.String())
}
