package server

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Recover turns a panicking handler into a 500 JSON response.
func Recover(logger logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.WithFields(logrus.Fields{
				"panic":  rec,
				"method": r.Method,
				"path":   r.URL.Path,
				"stack":  string(debug.Stack()),
			}).Error("handler panicked")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}

func CORS(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Content-Type", "Authorization",
			"X-Platform", "X-App-Version", "X-Session-Id",
		},
		MaxAge: 86400,
	})
	return c.Handler(next)
}
