package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/meeting-alertd/internal/calendar"
	"github.com/bnema/meeting-alertd/internal/logger"
)

// Meta is the pre-composed text for a firing decision, shared by all
// channels so simultaneous meetings get one combined notification.
type Meta struct {
	Title      string
	Message    string
	BannerText string
}

// Channel is one independent notification surface. A channel owns its own
// failure handling; an error return is logged by the dispatcher and must
// never prevent a sibling channel from running.
type Channel interface {
	Name() string
	Notify(ctx context.Context, batch []calendar.Event, meta Meta) error
}

// ReadySignaler is an optional channel capability: the channel invokes ready
// once its surface is up, letting a dependent visual channel render on top
// without z-order flicker. Cosmetic only; the dispatcher runs the follower
// even when the leader errors before signalling.
type ReadySignaler interface {
	NotifyReady(ctx context.Context, batch []calendar.Event, meta Meta, ready func()) error
}

// dispatchWait bounds how long Dispatch blocks on slow channels before
// leaving them to finish in the background.
const dispatchWait = 10 * time.Second

// Dispatcher fans one firing decision out to every channel on its own
// goroutine, with panics contained per channel.
type Dispatcher struct {
	channels  []Channel
	follows   map[string]Channel // leader name -> follower
	followers map[string]bool
}

func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels:  channels,
		follows:   make(map[string]Channel),
		followers: make(map[string]bool),
	}
}

// Sequence registers an ordering hint: follower is triggered from leader's
// ready callback instead of starting independently. Both channels must
// already be registered.
func (d *Dispatcher) Sequence(leader, follower Channel) {
	d.follows[leader.Name()] = follower
	d.followers[follower.Name()] = true
}

// Dispatch fans the batch out. It returns after every independent channel
// has finished or the bounded wait elapses; stragglers and followers finish
// in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []calendar.Event, meta Meta) {
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, ch := range d.channels {
		if d.followers[ch.Name()] {
			continue // started by its leader's ready callback
		}

		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			d.runChannel(ctx, ch, batch, meta)
		}(ch)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(dispatchWait):
		logger.Warn("notification fan-out still running after bounded wait")
	case <-ctx.Done():
	}
}

// runChannel executes one channel with panic containment, chaining any
// configured follower from the ready hint.
func (d *Dispatcher) runChannel(ctx context.Context, ch Channel, batch []calendar.Event, meta Meta) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification channel panicked", "channel", ch.Name(), "panic", fmt.Sprint(r))
		}
	}()

	follower := d.follows[ch.Name()]
	var once sync.Once
	ready := func() {
		if follower == nil {
			return
		}
		once.Do(func() {
			go d.runChannel(ctx, follower, batch, meta)
		})
	}

	var err error
	if rs, ok := ch.(ReadySignaler); ok && follower != nil {
		err = rs.NotifyReady(ctx, batch, meta, ready)
	} else {
		err = ch.Notify(ctx, batch, meta)
	}
	if err != nil {
		logger.Error("notification channel failed", "channel", ch.Name(), "error", err)
	}

	// The follower is a nice-to-have ordering hint, not a dependency: it
	// still fires when the leader errored or never signalled.
	ready()
}
