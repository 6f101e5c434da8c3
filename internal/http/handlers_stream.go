package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/target/mmk-inference/internal/domain/model"
	"github.com/target/mmk-inference/internal/service"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxClientMessage    = 512
)

// StreamHandlersOptions configures the live subscription endpoint.
type StreamHandlersOptions struct {
	Hub            *service.BroadcastHub
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string // empty allows same-origin requests only
	Logger         *slog.Logger
}

// StreamHandlers upgrades requests to WebSocket and relays hub events.
type StreamHandlers struct {
	hub          *service.BroadcastHub
	pingInterval time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// NewStreamHandlers constructs StreamHandlers.
func NewStreamHandlers(opts StreamHandlersOptions) *StreamHandlers {
	h := &StreamHandlers{
		hub:          opts.Hub,
		pingInterval: opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = defaultWriteTimeout
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "stream")
	if len(opts.AllowedOrigins) > 0 {
		allowed := append([]string(nil), opts.AllowedOrigins...)
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), allowed)
		}
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	if slices.Contains(allowed, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host)
	})
}

// streamFrame is one text frame written to the client.
type streamFrame struct {
	Type    string          `json:"type"`
	Event   *model.JobEvent `json:"event,omitempty"`
	Dropped uint64          `json:"dropped,omitempty"`
}

const (
	frameEvent = "event"
	frameLag   = "lag"
)

// Stream handles GET /api/stream?jobId=&owner=&filter=. The subscription is
// authorized before the upgrade so refusals are plain HTTP errors. Each event
// becomes an event frame; a lag frame reporting the drop count precedes the
// first event delivered after an overflow, or goes out on the next ping tick
// when no event follows.
func (h *StreamHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := strings.TrimSpace(q.Get("owner"))
	sub, err := h.hub.Register(r.Context(), service.SubscriptionRequest{
		Principal: PrincipalFromContext(r.Context()),
		JobID:     q.Get("jobId"),
		Owner:     owner,
		AllOwners: owner == "*",
		Filter:    q.Get("filter"),
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	defer sub.Close()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	// The request context is not reliable after hijacking, so the read pump
	// owns cancellation.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go h.readPump(ws, cancel)

	h.logger.InfoContext(ctx, "stream opened", "subscription_id", sub.ID(), "principal", sub.Principal().ID)
	h.writePump(ctx, ws, sub)
	h.logger.InfoContext(ctx, "stream closed", "subscription_id", sub.ID())
}

// readPump discards client messages and cancels the stream when the
// connection closes or stops answering pings.
func (h *StreamHandlers) readPump(ws *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	ws.SetReadLimit(maxClientMessage)
	deadline := func() time.Time { return time.Now().Add(2 * h.pingInterval) }
	_ = ws.SetReadDeadline(deadline())
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(deadline()) })
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on ws. Pings go out on a fixed ticker so a
// busy stream still refreshes the client's pong deadline.
func (h *StreamHandlers) writePump(ctx context.Context, ws *websocket.Conn, sub *service.Subscription) {
	events := make(chan model.JobEvent)
	nextErr := make(chan error, 1)
	go func() {
		for {
			ev, err := sub.Next(ctx)
			if err != nil {
				nextErr <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			if dropped := sub.TakeLag(); dropped > 0 {
				if err := h.writeFrame(ws, streamFrame{Type: frameLag, Dropped: dropped}); err != nil {
					return
				}
			}
			if err := h.writeFrame(ws, streamFrame{Type: frameEvent, Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			// Lag with no following event, such as a lost terminal event,
			// is reported on the next tick.
			if dropped := sub.TakeLag(); dropped > 0 {
				if err := h.writeFrame(ws, streamFrame{Type: frameLag, Dropped: dropped}); err != nil {
					return
				}
			}
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		case err := <-nextErr:
			if errors.Is(err, service.ErrSubscriptionClosed) {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed")
				_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *StreamHandlers) writeFrame(ws *websocket.Conn, f streamFrame) error {
	if err := ws.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return ws.WriteJSON(f)
}
