package analytics

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const envelopeKey ctxKey = "analytics_envelope"

// Envelope is what we store with every event.
type Envelope struct {
	SessionID  string
	Platform   string
	AppVersion string
}

// Event is one task activity record. Properties must not contain raw task text.
type Event struct {
	Name       string
	TaskID     string
	Properties map[string]any
}

// Recorder stores events. Implementations never fail the caller.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// FromRequest extracts event envelope fields from request headers.
func FromRequest(r *http.Request) Envelope {
	platform := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Platform")))
	switch platform {
	case "ios", "android", "web":
	default:
		platform = "unknown"
	}

	return Envelope{
		SessionID:  strings.TrimSpace(r.Header.Get("X-Session-Id")),
		Platform:   platform,
		AppVersion: strings.TrimSpace(r.Header.Get("X-App-Version")),
	}
}

func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey, env)
}

func EnvelopeFromContext(ctx context.Context) Envelope {
	if env, ok := ctx.Value(envelopeKey).(Envelope); ok {
		return env
	}
	return Envelope{Platform: "unknown"}
}

// Middleware attaches the request envelope so recorders deeper in the call
// chain can read it.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithEnvelope(r.Context(), FromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
