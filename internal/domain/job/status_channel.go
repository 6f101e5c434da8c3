// Package job holds the in-process plumbing that carries job lifecycle events
// from the scheduler to its consumers.
package job

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/target/mmk-inference/internal/domain/model"
)

// DefaultSubscriberBuffer is used when a subscriber asks for no buffer.
const DefaultSubscriberBuffer = 256

// Publisher accepts job lifecycle events.
type Publisher interface {
	Publish(ev model.JobEvent) model.JobEvent
}

// StatusChannel is an in-process publish/subscribe bus of job events.
type StatusChannel interface {
	Publisher
	Subscribe(buffer int) (func(), <-chan model.JobEvent)
	Events(ctx context.Context, buffer int) iter.Seq[model.JobEvent]
	Stats() ChannelStats
	StopAll()
}

// ChannelStats reports publish and drop counters. LastSeq is the sequence
// number of the most recent publish; every event up to it has either been
// buffered for a subscriber or dropped for it.
type ChannelStats struct {
	LastSeq     uint64 `json:"last_seq"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// StatusChannelOptions configure the default status channel.
type StatusChannelOptions struct {
	// Now stamps events that carry no timestamp. Defaults to time.Now.
	Now func() time.Time
}

// DefaultStatusChannel delivers each event to every subscriber with a
// non-blocking send. Publishes are serialized, so every subscriber observes
// events in publish order; a full subscriber buffer drops the event for that
// subscriber only.
type DefaultStatusChannel struct {
	now func() time.Time

	mu        sync.Mutex
	seq       uint64
	dropped   uint64
	stopped   bool
	subs      map[chan model.JobEvent]struct{}
	published uint64
}

// NewStatusChannel constructs the default status channel.
func NewStatusChannel(opts StatusChannelOptions) *DefaultStatusChannel {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &DefaultStatusChannel{
		now:  now,
		subs: make(map[chan model.JobEvent]struct{}),
	}
}

// Publish stamps the event with the next sequence number and hands it to
// every subscriber. It never blocks. The stamped event is returned.
func (c *DefaultStatusChannel) Publish(ev model.JobEvent) model.JobEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ev
	}
	c.seq++
	ev.Seq = c.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}
	c.published++

	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.dropped++
		}
	}
	return ev
}

// Subscribe registers a subscriber with its own buffered channel.
// The returned function unsubscribes and closes the channel; it is safe to
// call more than once.
func (c *DefaultStatusChannel) Subscribe(buffer int) (func(), <-chan model.JobEvent) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan model.JobEvent, buffer)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		close(ch)
		return func() {}, ch
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	unsub := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; !ok {
			return
		}
		delete(c.subs, ch)
		drainAndClose(ch)
	}
	return unsub, ch
}

// Events returns a lazy sequence over the channel. The subscription is made
// when iteration starts and released when the loop stops, ctx is done or the
// channel is stopped.
func (c *DefaultStatusChannel) Events(ctx context.Context, buffer int) iter.Seq[model.JobEvent] {
	return func(yield func(model.JobEvent) bool) {
		unsub, ch := c.Subscribe(buffer)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok || !yield(ev) {
					return
				}
			}
		}
	}
}

// Stats returns a snapshot of channel counters.
func (c *DefaultStatusChannel) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChannelStats{LastSeq: c.seq, Published: c.published, Dropped: c.dropped, Subscribers: len(c.subs)}
}

// StopAll closes every subscriber. Later publishes are ignored.
func (c *DefaultStatusChannel) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	for ch := range c.subs {
		close(ch)
		delete(c.subs, ch)
	}
}

// drainAndClose removes any buffered events before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan model.JobEvent) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ StatusChannel = (*DefaultStatusChannel)(nil)
