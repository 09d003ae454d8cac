package analytics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	r.Header.Set("X-Platform", " iOS ")
	r.Header.Set("X-Session-Id", "sess-1")
	r.Header.Set("X-App-Version", "1.4.0")

	assert.Equal(t, Envelope{SessionID: "sess-1", Platform: "ios", AppVersion: "1.4.0"}, FromRequest(r))

	r.Header.Set("X-Platform", "smart-fridge")
	assert.Equal(t, "unknown", FromRequest(r).Platform)
}

func TestMiddleware(t *testing.T) {
	var got Envelope
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = EnvelopeFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Platform", "web")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "web", got.Platform)

	assert.Equal(t, "unknown", EnvelopeFromContext(context.Background()).Platform)
}
