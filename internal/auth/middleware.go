package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const subjectKey ctxKey = "subject"

// Middleware guards service endpoints with a bearer token for one subject.
// A zero-length secret disables the check.
type Middleware struct {
	secret  []byte
	subject string
	logger  logrus.FieldLogger
}

func New(secret []byte, subject string, logger logrus.FieldLogger) Middleware {
	return Middleware{secret: secret, subject: subject, logger: logger}
}

func (m Middleware) Enabled() bool {
	return len(m.secret) > 0
}

func (m Middleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	if !m.Enabled() {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			unauthorized(w, "Missing token")
			return
		}

		subject, err := ParseToken(m.secret, strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			m.logger.WithError(err).Warn("rejected service token")
			unauthorized(w, "Invalid token")
			return
		}
		if subject != m.subject {
			m.logger.WithField("subject", subject).Warn("service token has wrong subject")
			unauthorized(w, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next(w, r.WithContext(ctx))
	}
}

func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
