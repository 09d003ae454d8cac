package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := GenerateToken(secret, SubjectEnrichment, time.Hour)
	require.NoError(t, err)

	sub, err := ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, SubjectEnrichment, sub)

	_, err = ParseToken([]byte("other"), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Expired(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := GenerateToken(secret, SubjectEnrichment, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(secret, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	secret := []byte("s3cret")
	m := New(secret, SubjectEnrichment, quietLogger())

	var gotSubject string
	h := m.Wrap(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	good, err := GenerateToken(secret, SubjectEnrichment, time.Hour)
	require.NoError(t, err)
	wrongSubject, err := GenerateToken(secret, "someone-else", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong subject", "Bearer " + wrongSubject, http.StatusUnauthorized},
		{"valid", "Bearer " + good, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/tasks/x/enrichment", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
	assert.Equal(t, SubjectEnrichment, gotSubject)
}

func TestMiddleware_DisabledWithoutSecret(t *testing.T) {
	m := New(nil, SubjectEnrichment, quietLogger())
	assert.False(t, m.Enabled())

	rec := httptest.NewRecorder()
	m.Wrap(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})(rec, httptest.NewRequest(http.MethodPatch, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
