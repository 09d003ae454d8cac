package realtime

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPingInterval = 30 * time.Second

	// retryMillis is the reconnect delay suggested to EventSource clients.
	retryMillis = 3000

	msgStreamStarted = "Stream started"
	msgRestored      = "Realtime subscription restored"
	msgSubscribeFail = "Realtime subscription failed"
)

// message is the JSON body of every frame written to the stream.
type message struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Event   Kind            `json:"event,omitempty"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Relay serves GET /tasks/stream. Each request gets its own subscription,
// released together with the keep-alive ticker when the client goes away.
type Relay struct {
	source       Source
	pingInterval time.Duration
	logger       logrus.FieldLogger
	active       atomic.Int64
}

func NewRelay(source Source, pingInterval time.Duration, logger logrus.FieldLogger) *Relay {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Relay{source: source, pingInterval: pingInterval, logger: logger}
}

// Active reports the number of open streams.
func (rl *Relay) Active() int64 {
	return rl.active.Load()
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Streaming unsupported"})
		return
	}

	h := w.Header()
	h.Set("Content-Type", sse.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rl.active.Add(1)
	defer rl.active.Add(-1)

	ctx := r.Context()
	log := rl.logger.WithField("remote", r.RemoteAddr)
	log.Debug("📡 stream opened")
	defer log.Debug("📴 stream closed")

	out := &stream{w: w, flusher: flusher}
	if err := out.send(message{Type: "connected", Message: msgStreamStarted}, retryMillis); err != nil {
		return
	}

	ticker := time.NewTicker(rl.pingInterval)
	defer ticker.Stop()

	var events <-chan ChangeEvent
	sub, err := rl.source.Subscribe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Error("realtime subscription failed")
		if out.send(message{Type: "error", Message: msgSubscribeFail}, 0) != nil {
			return
		}
	} else {
		defer func() {
			if err := sub.Close(); err != nil {
				log.WithError(err).Warn("closing subscription")
			}
		}()
		events = sub.Events()
	}

	for {
		var frame message
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			frame = message{Type: "ping"}

		case ev, ok := <-events:
			if !ok {
				// Stop selecting on the closed channel; pings keep the stream alive.
				events = nil
				log.Warn("realtime subscription ended")
				frame = message{Type: "error", Message: msgSubscribeFail}
				break
			}
			if ev.Resync {
				frame = message{Type: "connected", Message: msgRestored}
				break
			}
			frame = message{Type: "task_updated", Event: ev.Kind, ID: ev.RowID(), Data: ev.Data()}
		}

		if err := out.send(frame, 0); err != nil {
			log.WithError(err).Debug("stream write failed")
			return
		}
	}
}

type stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *stream) send(m message, retry uint) error {
	if err := sse.Encode(s.w, sse.Event{Data: m, Retry: retry}); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
