package bridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/maxpert/statusbridge/status"
	"github.com/maxpert/statusbridge/telemetry"
	"github.com/rs/zerolog/log"
)

// Handle identifies a subscription. The zero Handle is never issued.
type Handle uint64

// subscriber is the single active subscription slot.
type subscriber struct {
	handle Handle
	sink   Sink
}

// StatusBridge forwards producer status changes to at most one subscriber.
//
// The producer calls OnChange (or Changed) from its own goroutine. Consumers
// attach with Subscribe and detach with Unsubscribe. Delivery happens under
// the bridge lock but is always a non-blocking Sink.Send, so emissions reach
// the subscriber in the order the producer made them and a concurrent
// Unsubscribe never races with a send.
//
// Events are never queued by the bridge itself: with no subscriber, or with a
// saturated or closed sink, the event is dropped.
type StatusBridge struct {
	mu     sync.Mutex
	active *subscriber
	nextID atomic.Uint64
}

var _ status.ChangeListener = (*StatusBridge)(nil)

// New creates a bridge with no subscriber.
func New() *StatusBridge {
	return &StatusBridge{}
}

// Subscribe registers sink as the only subscriber and returns its handle.
// A previously registered subscriber is replaced and its sink closed.
// A nil sink leaves the bridge unchanged and returns the zero Handle.
func (b *StatusBridge) Subscribe(sink Sink) Handle {
	if sink == nil {
		return 0
	}

	sub := &subscriber{
		handle: Handle(b.nextID.Add(1)),
		sink:   sink,
	}

	b.mu.Lock()
	old := b.active
	b.active = sub
	telemetry.BridgeSubscriberAttached.Set(1)
	b.mu.Unlock()

	if old != nil {
		telemetry.BridgeReplacementsTotal.Inc()
		log.Debug().
			Uint64("old_handle", uint64(old.handle)).
			Uint64("handle", uint64(sub.handle)).
			Msg("Status subscriber replaced")
		closeSink(old)
	}

	return sub.handle
}

// SubscribeChan subscribes a ChannelSink of the given capacity and returns
// its receive channel. The channel is closed on Unsubscribe or replacement.
func (b *StatusBridge) SubscribeChan(buffer int) (<-chan status.Event, Handle) {
	sink := NewChannelSink(buffer)
	return sink.Events(), b.Subscribe(sink)
}

// Unsubscribe detaches the subscriber identified by h and closes its sink.
// It is a no-op when h is not the active handle.
func (b *StatusBridge) Unsubscribe(h Handle) {
	b.mu.Lock()
	old := b.active
	if old == nil || old.handle != h {
		b.mu.Unlock()
		return
	}
	b.active = nil
	telemetry.BridgeSubscriberAttached.Set(0)
	b.mu.Unlock()

	log.Debug().Uint64("handle", uint64(h)).Msg("Status subscriber detached")
	closeSink(old)
}

// Active reports whether a subscriber is attached.
func (b *StatusBridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active != nil
}

// Changed implements status.ChangeListener.
func (b *StatusBridge) Changed(change status.Change) {
	b.OnChange(change.Level, change.Err)
}

// OnChange forwards one producer transition. A non-nil err produces a single
// error notification and suppresses the status token for this call. Levels
// without a token are ignored. OnChange never blocks and never panics.
func (b *StatusBridge) OnChange(level status.ActivityLevel, err error) {
	var event status.Event
	kind := "status"

	if err != nil {
		event = status.ErrorEvent(err)
		kind = "error"
	} else {
		token, ok := status.Token(level)
		if !ok {
			telemetry.BridgeDropsTotal.With("unknown_level").Inc()
			return
		}
		event = status.StatusEvent(token)
	}

	b.mu.Lock()
	sub := b.active
	if sub == nil {
		b.mu.Unlock()
		telemetry.BridgeDropsTotal.With("no_subscriber").Inc()
		return
	}

	sendErr := deliver(sub.sink, event)
	closed := errors.Is(sendErr, ErrSinkClosed)
	if closed {
		// Consumer closed its side; the slot is cleared.
		b.active = nil
		telemetry.BridgeSubscriberAttached.Set(0)
	}
	b.mu.Unlock()

	switch {
	case sendErr == nil:
		telemetry.BridgeEventsTotal.With(kind).Inc()
	case closed:
		telemetry.BridgeDropsTotal.With("sink_closed").Inc()
		log.Debug().Uint64("handle", uint64(sub.handle)).Msg("Status sink closed, subscriber cleared")
	case errors.Is(sendErr, ErrSinkFull):
		telemetry.BridgeDropsTotal.With("sink_full").Inc()
	default:
		telemetry.BridgeDropsTotal.With("sink_error").Inc()
		log.Debug().Err(sendErr).Uint64("handle", uint64(sub.handle)).Msg("Status sink rejected event")
	}
}

// deliver shields the producer from a misbehaving sink.
func deliver(sink Sink, event status.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Send(event)
}

func closeSink(sub *subscriber) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Uint64("handle", uint64(sub.handle)).Msg("Status sink panicked on close")
		}
	}()
	if err := sub.sink.Close(); err != nil {
		log.Debug().Err(err).Uint64("handle", uint64(sub.handle)).Msg("Failed to close status sink")
	}
}
