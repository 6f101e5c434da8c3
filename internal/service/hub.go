package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/mmk-inference/internal/core"
	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	domainjob "github.com/target/mmk-inference/internal/domain/job"
	"github.com/target/mmk-inference/internal/domain/model"
	apperrors "github.com/target/mmk-inference/internal/errors"
	"github.com/target/mmk-inference/internal/observability/metrics"
	"github.com/target/mmk-inference/internal/observability/statsd"
)

// ErrSubscriptionClosed is returned by Subscription.Next once the
// subscription has been unregistered or the hub has stopped.
var ErrSubscriptionClosed = errors.New("subscription closed")

const (
	defaultHubBuffer        = 64
	defaultHubShards        = 8
	defaultHubChannelBuffer = 1024
)

// BroadcastHubOptions groups dependencies for BroadcastHub.
type BroadcastHubOptions struct {
	Channel       domainjob.StatusChannel // Required: source of job events
	Authorizer    core.Authorizer         // Optional: defaults to the domain policy
	Buffer        int                     // Optional: per-subscription buffer
	Shards        int                     // Optional: registry shards
	ChannelBuffer int                     // Optional: hub buffer on the status channel
	Logger        *slog.Logger            // Optional: structured logger
	Metrics       statsd.Sink             // Optional: drop counters and subscriber gauge
}

// SubscriptionRequest describes a live subscription.
type SubscriptionRequest struct {
	Principal domainauth.Principal
	// JobID limits delivery to a single job.
	JobID string
	// Owner limits delivery to jobs of one owner. When empty it defaults to
	// the principal, unless JobID or AllOwners is set.
	Owner string
	// AllOwners asks for every job the principal may view.
	AllOwners bool
	// Filter is an optional JMESPath expression evaluated against the event;
	// events for which it is not truthy are skipped.
	Filter string
	// Buffer overrides the hub's per-subscription buffer when positive.
	Buffer int
}

// HubStats reports hub counters.
type HubStats struct {
	Subscribers int    `json:"subscribers"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	// Missed counts events the status channel dropped before the hub saw them.
	Missed uint64 `json:"missed"`
}

type hubShard struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// BroadcastHub fans status channel events out to registered subscriptions.
//
// The registry is split into shards, each behind its own RWMutex, so
// registration only contends with fan-out of the same shard. Each event is
// checked against the subscriber's view permission on the job owner before
// any filter is applied.
type BroadcastHub struct {
	channel       domainjob.StatusChannel
	authz         core.Authorizer
	buffer        int
	channelBuffer int
	shards        []*hubShard
	logger        *slog.Logger
	metrics       statsd.Sink

	subscribers atomic.Int64
	delivered   atomic.Uint64
	dropped     atomic.Uint64
	missed      atomic.Uint64
	stopped     atomic.Bool
}

// NewBroadcastHub constructs a BroadcastHub. Call Run to start delivery.
func NewBroadcastHub(opts BroadcastHubOptions) (*BroadcastHub, error) {
	if opts.Channel == nil {
		return nil, errors.New("StatusChannel is required")
	}
	authz := opts.Authorizer
	if authz == nil {
		authz = core.PolicyAuthorizer{}
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultHubBuffer
	}
	n := opts.Shards
	if n <= 0 {
		n = defaultHubShards
	}
	channelBuffer := opts.ChannelBuffer
	if channelBuffer <= 0 {
		channelBuffer = defaultHubChannelBuffer
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "broadcast_hub")
	}

	shards := make([]*hubShard, n)
	for i := range shards {
		shards[i] = &hubShard{subs: make(map[string]*Subscription)}
	}
	return &BroadcastHub{
		channel:       opts.Channel,
		authz:         authz,
		buffer:        buffer,
		channelBuffer: channelBuffer,
		shards:        shards,
		logger:        logger,
		metrics:       opts.Metrics,
	}, nil
}

func (h *BroadcastHub) shard(id string) *hubShard {
	return h.shards[xxhash.Sum64String(id)%uint64(len(h.shards))]
}

// Register authorizes and registers a subscription. A principal that may not
// subscribe, or may not view the requested owner's jobs, gets Forbidden and
// nothing is registered. A malformed filter is a Validation error.
func (h *BroadcastHub) Register(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	p := req.Principal
	if !h.authz.HasPermission(p, domainauth.ActionSubscribe, p.ID) {
		return nil, apperrors.Forbidden("principal may not subscribe to job events")
	}

	owner := strings.TrimSpace(req.Owner)
	switch {
	case req.AllOwners:
		if !h.authz.HasPermission(p, domainauth.ActionView, "") {
			return nil, apperrors.Forbidden("principal may not view every owner's jobs")
		}
		owner = ""
	case owner == "" && req.JobID == "":
		owner = p.ID
	case owner != "" && owner != p.ID:
		if !h.authz.HasPermission(p, domainauth.ActionView, owner) {
			return nil, apperrors.Forbidden("principal may not view jobs of " + owner)
		}
	}

	var filter jmespath.JMESPath
	if expr := strings.TrimSpace(req.Filter); expr != "" {
		compiled, err := jmespath.Compile(expr)
		if err != nil {
			return nil, apperrors.ValidationField("filter", fmt.Sprintf("invalid filter expression: %v", err))
		}
		filter = compiled
	}

	capacity := h.buffer
	if req.Buffer > 0 {
		capacity = req.Buffer
	}
	sub := &Subscription{
		id:        uuid.NewString(),
		principal: p,
		jobID:     strings.TrimSpace(req.JobID),
		owner:     owner,
		filter:    filter,
		hub:       h,
		ring:      make([]model.JobEvent, capacity),
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	s := h.shard(sub.id)
	s.mu.Lock()
	if h.stopped.Load() {
		s.mu.Unlock()
		return nil, ErrSubscriptionClosed
	}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	n := h.subscribers.Add(1)
	metrics.EmitHubSubscribers(h.metrics, int(n))
	if h.logger != nil {
		h.logger.DebugContext(ctx, "subscription registered",
			"subscription_id", sub.id, "principal", p.ID, "job_id", sub.jobID, "owner", sub.owner)
	}
	return sub, nil
}

// Unregister removes the subscription and closes it. No event is delivered
// to it once Unregister returns. It reports whether the id was registered.
func (h *BroadcastHub) Unregister(id string) bool {
	s := h.shard(id)
	s.mu.Lock()
	sub, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	sub.close()
	n := h.subscribers.Add(-1)
	metrics.EmitHubSubscribers(h.metrics, int(n))
	return true
}

// Run consumes the status channel and fans events out until ctx is done or
// the channel is stopped. Every subscription is closed on return.
//
// Events the channel drops for the hub leave a gap in the sequence numbers.
// A gap is noticed either when a later event arrives or when the hub's buffer
// is empty while the channel reports a newer sequence, and every live
// subscription is then marked lagging by the size of the gap.
func (h *BroadcastHub) Run(ctx context.Context) error {
	unsubscribe, events := h.channel.Subscribe(h.channelBuffer)
	defer unsubscribe()
	defer h.closeAll()

	if h.logger != nil {
		h.logger.InfoContext(ctx, "starting broadcast hub", "shards", len(h.shards), "buffer", h.buffer)
	}

	// The first event reaches an empty buffer, so it is never dropped and
	// serves as the baseline.
	var lastSeq uint64
	started := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !started {
				lastSeq, started = ev.Seq-1, true
			}
			if ev.Seq > lastSeq+1 {
				h.markMissed(ctx, ev.Seq-lastSeq-1)
			}
			if ev.Seq > lastSeq {
				lastSeq = ev.Seq
			}
			h.Dispatch(ev)

			// Stats is read before the length check: anything published up to
			// LastSeq and kept for the hub would still be buffered.
			if latest := h.channel.Stats().LastSeq; latest > lastSeq && len(events) == 0 {
				h.markMissed(ctx, latest-lastSeq)
				lastSeq = latest
			}
		}
	}
}

// markMissed records n events lost upstream and marks every live
// subscription lagging by n.
func (h *BroadcastHub) markMissed(ctx context.Context, n uint64) {
	h.missed.Add(n)
	metrics.EmitHubDrops(h.metrics, int(n))
	if h.logger != nil {
		h.logger.WarnContext(ctx, "status channel dropped events for the hub", "missed", n)
	}
	for _, s := range h.shards {
		s.mu.RLock()
		for _, sub := range s.subs {
			sub.markLag(n)
		}
		s.mu.RUnlock()
	}
}

// Dispatch delivers one event to every matching subscription.
func (h *BroadcastHub) Dispatch(ev model.JobEvent) {
	doc := lazyEventDocument{event: ev}
	dropped := 0
	for _, s := range h.shards {
		s.mu.RLock()
		for _, sub := range s.subs {
			if !h.matches(sub, ev, &doc) {
				continue
			}
			delivered, evicted := sub.deliver(ev)
			if delivered {
				h.delivered.Add(1)
			}
			if evicted {
				dropped++
			}
		}
		s.mu.RUnlock()
	}
	if dropped > 0 {
		h.dropped.Add(uint64(dropped))
		metrics.EmitHubDrops(h.metrics, dropped)
	}
}

func (h *BroadcastHub) matches(sub *Subscription, ev model.JobEvent, doc *lazyEventDocument) bool {
	if !h.authz.HasPermission(sub.principal, domainauth.ActionView, ev.Owner) {
		return false
	}
	if sub.jobID != "" && sub.jobID != ev.JobID {
		return false
	}
	if sub.owner != "" && sub.owner != ev.Owner {
		return false
	}
	if sub.filter == nil {
		return true
	}
	data, err := doc.get()
	if err != nil {
		return false
	}
	out, err := sub.filter.Search(data)
	if err != nil {
		return false
	}
	return truthy(out)
}

// Stats returns hub counters.
func (h *BroadcastHub) Stats() HubStats {
	return HubStats{
		Subscribers: int(h.subscribers.Load()),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
		Missed:      h.missed.Load(),
	}
}

// closeAll unregisters every subscription; later registrations fail.
func (h *BroadcastHub) closeAll() {
	h.stopped.Store(true)
	for _, s := range h.shards {
		s.mu.Lock()
		subs := s.subs
		s.subs = make(map[string]*Subscription)
		s.mu.Unlock()
		for _, sub := range subs {
			sub.close()
			h.subscribers.Add(-1)
		}
	}
	metrics.EmitHubSubscribers(h.metrics, int(h.subscribers.Load()))
}

// lazyEventDocument converts an event to generic JSON data at most once per
// dispatch, and only when some subscription has a filter.
type lazyEventDocument struct {
	event model.JobEvent
	data  any
	err   error
	done  bool
}

func (d *lazyEventDocument) get() (any, error) {
	if d.done {
		return d.data, d.err
	}
	d.done = true
	raw, err := json.Marshal(d.event)
	if err != nil {
		d.err = err
		return nil, err
	}
	d.err = json.Unmarshal(raw, &d.data)
	return d.data, d.err
}

// truthy follows JMESPath truthiness: false, null and empty strings, arrays
// and objects are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// Subscription is one registered consumer of hub events. Its buffer has a
// fixed capacity; when full, the oldest event is dropped and the
// subscription is marked lagging until TakeLag is called.
type Subscription struct {
	id        string
	principal domainauth.Principal
	jobID     string
	owner     string
	filter    jmespath.JMESPath
	hub       *BroadcastHub

	mu      sync.Mutex
	ring    []model.JobEvent
	head    int
	size    int
	dropped uint64
	lagging bool
	closed  bool
	notify  chan struct{}
	done    chan struct{}
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// Principal returns the principal the subscription was authorized for.
func (s *Subscription) Principal() domainauth.Principal { return s.principal }

// deliver appends ev, evicting the oldest buffered event when full.
func (s *Subscription) deliver(ev model.JobEvent) (delivered, evicted bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, false
	}
	if s.size == len(s.ring) {
		s.ring[s.head] = model.JobEvent{}
		s.head = (s.head + 1) % len(s.ring)
		s.size--
		s.dropped++
		s.lagging = true
		evicted = true
	}
	s.ring[(s.head+s.size)%len(s.ring)] = ev
	s.size++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true, evicted
}

// markLag adds n to the drop count and flags the subscription lagging.
func (s *Subscription) markLag(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.dropped += n
	s.lagging = true
}

// pop removes the oldest buffered event. Caller holds s.mu.
func (s *Subscription) pop() model.JobEvent {
	ev := s.ring[s.head]
	s.ring[s.head] = model.JobEvent{}
	s.head = (s.head + 1) % len(s.ring)
	s.size--
	return ev
}

// Next returns the next buffered event, waiting until one arrives, ctx is
// done or the subscription is closed.
func (s *Subscription) Next(ctx context.Context) (model.JobEvent, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return model.JobEvent{}, ErrSubscriptionClosed
		}
		if s.size > 0 {
			ev := s.pop()
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return model.JobEvent{}, ctx.Err()
		}
	}
}

// Events returns the subscription as a sequence that ends when the
// subscription closes or ctx is done. It cannot be restarted.
func (s *Subscription) Events(ctx context.Context) iter.Seq[model.JobEvent] {
	return func(yield func(model.JobEvent) bool) {
		for {
			ev, err := s.Next(ctx)
			if err != nil || !yield(ev) {
				return
			}
		}
	}
}

// TakeLag returns the number of events dropped since the last call and
// clears the lagging flag.
func (s *Subscription) TakeLag() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.dropped
	s.dropped = 0
	s.lagging = false
	return n
}

// Lagging reports whether events were dropped since the last TakeLag.
func (s *Subscription) Lagging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagging
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close unregisters the subscription from its hub.
func (s *Subscription) Close() {
	s.hub.Unregister(s.id)
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	clear(s.ring)
	s.size = 0
	close(s.done)
}
