package switchmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atlanticdynamic/boss/internal/events"
	"github.com/atlanticdynamic/boss/internal/server/finitestate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHardware serves scripted switch readings and records the interleaving
// of display writes so tests can assert display-before-event ordering.
type fakeHardware struct {
	mu       sync.Mutex
	script   []int
	value    int
	readErr  error
	timeline *timeline
}

func (f *fakeHardware) ReadSwitches() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.script) > 0 {
		f.value = f.script[0]
		f.script = f.script[1:]
	}
	return f.value, nil
}

func (f *fakeHardware) SetDisplay(value *int) error {
	f.timeline.record(entry{kind: "display", value: *value})
	return nil
}

func (f *fakeHardware) set(v int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
	f.script = nil
}

func (f *fakeHardware) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

type entry struct {
	kind    string // "display" or event type
	value   int
	payload map[string]any
}

type timeline struct {
	mu      sync.Mutex
	entries []entry
}

func (tl *timeline) record(e entry) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.entries = append(tl.entries, e)
}

func (tl *timeline) snapshot() []entry {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]entry(nil), tl.entries...)
}

func (tl *timeline) Publish(eventType string, payload map[string]any, source string) {
	tl.record(entry{kind: eventType, payload: payload})
}

func (tl *timeline) eventsOfType(eventType string) []entry {
	var out []entry
	for _, e := range tl.snapshot() {
		if e.kind == eventType {
			out = append(out, e)
		}
	}
	return out
}

func startMonitor(t *testing.T, hw *fakeHardware, tl *timeline) *Runner {
	t.Helper()
	r, err := NewRunner(hw, tl, WithSamplePeriod(2*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	require.Eventually(t, r.IsRunning, time.Second, time.Millisecond)
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("monitor did not stop")
		}
	})
	return r
}

func newFixture() (*fakeHardware, *timeline) {
	tl := &timeline{}
	return &fakeHardware{timeline: tl}, tl
}

func TestRunner_FirstReadSeedsWithoutEvent(t *testing.T) {
	t.Parallel()

	hw, tl := newFixture()
	hw.set(42)
	r := startMonitor(t, hw, tl)

	require.Eventually(t, func() bool { return r.Current() == 42 }, time.Second, time.Millisecond)
	assert.Empty(t, tl.eventsOfType(events.TypeSwitchChanged))

	displays := tl.snapshot()
	require.NotEmpty(t, displays)
	assert.Equal(t, "display", displays[0].kind)
	assert.Equal(t, 42, displays[0].value)
}

func TestRunner_StableChangeCommitsOnce(t *testing.T) {
	t.Parallel()

	hw, tl := newFixture()
	hw.set(10)
	r := startMonitor(t, hw, tl)
	require.Eventually(t, func() bool { return r.Current() == 10 }, time.Second, time.Millisecond)

	hw.set(200)
	require.Eventually(t, func() bool { return r.Current() == 200 }, time.Second, time.Millisecond)

	// Let several more polls run: still exactly one event for the change.
	time.Sleep(20 * time.Millisecond)
	changes := tl.eventsOfType(events.TypeSwitchChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, 10, changes[0].payload["old_value"])
	assert.Equal(t, 200, changes[0].payload["new_value"])
}

func TestRunner_DisplayWrittenBeforeEvent(t *testing.T) {
	t.Parallel()

	hw, tl := newFixture()
	hw.set(1)
	r := startMonitor(t, hw, tl)
	require.Eventually(t, func() bool { return r.Current() == 1 }, time.Second, time.Millisecond)

	hw.set(7)
	require.Eventually(t, func() bool { return r.Current() == 7 }, time.Second, time.Millisecond)

	var displayAt, eventAt int
	for i, e := range tl.snapshot() {
		switch {
		case e.kind == "display" && e.value == 7:
			if displayAt == 0 {
				displayAt = i + 1
			}
		case e.kind == events.TypeSwitchChanged:
			eventAt = i + 1
		}
	}
	require.NotZero(t, displayAt)
	require.NotZero(t, eventAt)
	assert.Less(t, displayAt, eventAt, "display must update before the change event")
}

func TestRunner_SingleSampleGlitchIgnored(t *testing.T) {
	t.Parallel()

	hw, tl := newFixture()
	hw.set(5)
	r := startMonitor(t, hw, tl)
	require.Eventually(t, func() bool { return r.Current() == 5 }, time.Second, time.Millisecond)

	// One noisy sample of 99, then back to 5: no commit.
	hw.mu.Lock()
	hw.script = []int{99, 5}
	hw.mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 5, r.Current())
	assert.Empty(t, tl.eventsOfType(events.TypeSwitchChanged))
}

func TestRunner_RepeatedReadFailuresEmitSystemError(t *testing.T) {
	t.Parallel()

	hw, tl := newFixture()
	hw.set(3)
	r := startMonitor(t, hw, tl)
	require.Eventually(t, func() bool { return r.Current() == 3 }, time.Second, time.Millisecond)

	hw.fail(errors.New("bus glitch"))
	require.Eventually(t, func() bool {
		return len(tl.eventsOfType(events.TypeSystemError)) > 0
	}, time.Second, time.Millisecond)

	// Only one system.error per failure burst.
	time.Sleep(20 * time.Millisecond)
	errsSeen := tl.eventsOfType(events.TypeSystemError)
	require.Len(t, errsSeen, 1)
	assert.Equal(t, "hardware_read", errsSeen[0].payload["code"])
}

func TestRunner_NilHardware(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(nil, &timeline{})
	assert.ErrorIs(t, err, ErrNilHardware)
}

func TestRunner_StopTransitionsToStopped(t *testing.T) {
	t.Parallel()

	hw, tl := newFixture()
	r, err := NewRunner(hw, tl, WithSamplePeriod(2*time.Millisecond))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background()) }()
	require.Eventually(t, r.IsRunning, time.Second, time.Millisecond)

	r.Stop()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Equal(t, finitestate.StatusStopped, r.GetState())
}

func TestRunner_String(t *testing.T) {
	t.Parallel()

	hw, tl := newFixture()
	r, err := NewRunner(hw, tl)
	require.NoError(t, err)
	assert.Equal(t, "switchmon.Runner", r.String())
}
