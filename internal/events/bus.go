package events

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlanticdynamic/boss/internal/server/finitestate"
	"github.com/gofrs/uuid/v5"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable  = (*Bus)(nil)
	_ supervisor.Stateable = (*Bus)(nil)
)

// DefaultQueueSize is the bound on the publish queue when the config does not
// override it.
const DefaultQueueSize = 1000

// handlerFailureThreshold is how many consecutive handler faults trigger a
// system.error event for that subscription.
const handlerFailureThreshold = 3

// drainTimeout bounds how long Stop waits for queued events to be delivered.
const drainTimeout = 2 * time.Second

// Handler receives a delivered event. Handlers run on the bus worker; a
// panicking handler is recovered and does not affect other subscriptions.
type Handler func(Event)

// SubscriptionID identifies one subscription for Unsubscribe.
type SubscriptionID = uuid.UUID

type subscription struct {
	id       SubscriptionID
	typ      string
	handler  Handler
	filter   map[string]any
	failures int
	lastErr  string
}

// matches reports whether the event passes this subscription's payload
// filter: every filter key must be present in the payload with an equal value.
func (s *subscription) matches(ev Event) bool {
	for k, want := range s.filter {
		got, ok := ev.Payload[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Bus is a bounded, asynchronous publish/subscribe bus. Publish never blocks:
// on a full queue the newest event is shed and logged. A single worker
// goroutine owned by Run delivers events, so delivery is FIFO in publish
// order for every subscription.
type Bus struct {
	queue   chan Event
	mu      sync.RWMutex
	subs    map[string]map[SubscriptionID]*subscription
	stopped atomic.Bool

	// dropBurst is set while a shedding burst is in progress so only the
	// first drop of a burst is logged.
	dropBurst atomic.Bool

	// overflowPending is set when the overflow system.error itself could not
	// be enqueued; the worker emits it as soon as a slot frees up.
	overflowPending atomic.Bool

	logger *slog.Logger
	fsm    finitestate.Machine

	parentCtx context.Context
	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewBus creates a bus with the given queue capacity. Sizes below 1 fall
// back to DefaultQueueSize.
func NewBus(queueSize int, opts ...Option) (*Bus, error) {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	b := &Bus{
		queue:     make(chan Event, queueSize),
		subs:      make(map[string]map[SubscriptionID]*subscription),
		logger:    slog.Default().WithGroup("events.Bus"),
		parentCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(b)
	}

	fsm, err := finitestate.New(b.logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	b.fsm = fsm
	return b, nil
}

// String implements the supervisor.Runnable interface.
func (b *Bus) String() string {
	return "events.Bus"
}

// Publish enqueues an event for asynchronous delivery. It never blocks: when
// the queue is at capacity the event is dropped and the drop is logged once
// per burst. Publishing after Stop is a no-op.
func (b *Bus) Publish(eventType string, payload map[string]any, source string) {
	if b.stopped.Load() {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	ev := Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		Source:    source,
	}

	select {
	case b.queue <- ev:
		b.dropBurst.Store(false)
	default:
		if b.dropBurst.CompareAndSwap(false, true) {
			b.logger.Warn("Event queue full, shedding events",
				"dropped_type", eventType, "capacity", cap(b.queue))
			// During a burst the queue is by definition full, so this almost
			// always fails; the worker retries once a slot frees up.
			if !b.tryEnqueueSystemError("bus_overflow",
				fmt.Sprintf("event queue full, dropped %s", eventType)) {
				b.overflowPending.Store(true)
			}
		}
	}
}

// tryEnqueueSystemError best-effort enqueues a system.error event. It never
// blocks and never recurses into the shedding path. It reports whether the
// event made it onto the queue.
func (b *Bus) tryEnqueueSystemError(code, message string) bool {
	ev := Event{
		Type:      TypeSystemError,
		Payload:   SystemErrorPayload(code, message),
		Timestamp: time.Now(),
		Source:    "events.Bus",
	}
	select {
	case b.queue <- ev:
		return true
	default:
		return false
	}
}

// flushOverflowError emits the deferred overflow system.error once the worker
// has freed a queue slot.
func (b *Bus) flushOverflowError() {
	if !b.overflowPending.CompareAndSwap(true, false) {
		return
	}
	if !b.tryEnqueueSystemError("bus_overflow", "event queue overflowed, events were dropped") {
		b.overflowPending.Store(true)
	}
}

// Subscribe registers a handler for an event type. The returned id is used
// with Unsubscribe. An optional payload filter restricts delivery to events
// whose payload contains every filter key with an equal value.
func (b *Bus) Subscribe(eventType string, handler Handler, opts ...SubscribeOption) (SubscriptionID, error) {
	if handler == nil {
		return uuid.Nil, ErrNilHandler
	}
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate subscription id: %w", err)
	}

	sub := &subscription{id: id, typ: eventType, handler: handler}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[SubscriptionID]*subscription)
	}
	b.subs[eventType][id] = sub
	return id, nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, byID := range b.subs {
		delete(byID, id)
	}
}

// Run implements the supervisor.Runnable interface. It owns the dispatch
// worker and blocks until the context is canceled, then drains the queue up
// to a deadline.
func (b *Bus) Run(ctx context.Context) error {
	if err := b.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	b.runCtx, b.runCancel = context.WithCancel(ctx)

	if err := b.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}
	b.logger.Debug("Bus worker started", "capacity", cap(b.queue))

	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ev)
			b.flushOverflowError()
		case <-b.runCtx.Done():
			b.shutdown()
			return nil
		case <-b.parentCtx.Done():
			b.shutdown()
			return nil
		}
	}
}

// shutdown drains remaining queued events up to drainTimeout, then marks the
// bus stopped.
func (b *Bus) shutdown() {
	b.stopped.Store(true)
	if b.fsm.GetState() != finitestate.StatusStopping {
		if err := b.fsm.Transition(finitestate.StatusStopping); err != nil {
			b.logger.Error("Failed to transition to stopping state", "error", err)
		}
	}

	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
drain:
	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ev)
		case <-deadline.C:
			b.logger.Warn("Drain deadline reached, discarding queued events", "remaining", len(b.queue))
			break drain
		default:
			break drain
		}
	}

	if err := b.fsm.Transition(finitestate.StatusStopped); err != nil {
		b.logger.Error("Failed to transition to stopped state", "error", err)
	}
	b.logger.Debug("Bus worker stopped")
}

// Stop implements the supervisor.Runnable interface.
func (b *Bus) Stop() {
	b.logger.Debug("Stopping Bus")
	if err := b.fsm.TransitionIfCurrentState(finitestate.StatusRunning, finitestate.StatusStopping); err != nil {
		b.logger.Debug("State transition on stop", "error", err)
	}
	if b.runCancel != nil {
		b.runCancel()
	}
}

// dispatch delivers one event to every matching subscription. Handler faults
// are isolated per subscription.
func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs[ev.Type]))
	for _, sub := range b.subs[ev.Type] {
		if sub.matches(ev) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		b.deliver(sub, ev)
	}
}

// deliver invokes one handler, recovering panics so one faulty subscriber
// cannot break delivery to the others or to subsequent events.
func (b *Bus) deliver(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			sub.failures++
			sub.lastErr = fmt.Sprint(r)
			failures := sub.failures
			b.mu.Unlock()

			b.logger.Error("Event handler panicked",
				"event_type", ev.Type,
				"subscription_id", sub.id,
				"panic", r,
				"stack", string(debug.Stack()))

			if failures == handlerFailureThreshold {
				b.tryEnqueueSystemError("handler_failure",
					fmt.Sprintf("subscription %s failed %d times, last: %v", sub.id, failures, r))
			}
			return
		}
		b.mu.Lock()
		sub.failures = 0
		b.mu.Unlock()
	}()
	sub.handler(ev)
}

// QueueDepth reports the number of undelivered events, for the debug surface.
func (b *Bus) QueueDepth() int {
	return len(b.queue)
}
