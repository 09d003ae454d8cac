package server

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"taskpulse-backend/internal/analytics"
	"taskpulse-backend/internal/auth"
	"taskpulse-backend/internal/chat"
	"taskpulse-backend/internal/tasks"
)

type Deps struct {
	Tasks          *tasks.Service
	Relay          http.Handler
	Chat           chat.Replier
	EnrichmentAuth auth.Middleware
	Logger         logrus.FieldLogger
}

// NewRouter registers every route. Longer patterns win in ServeMux, so
// /tasks/stats and /tasks/stream never reach the /tasks/{id} handlers.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	taskLog := d.Logger.WithField("component", "tasks")
	mux.HandleFunc("GET /tasks", tasks.ListTasksHandler(d.Tasks, taskLog))
	mux.HandleFunc("POST /tasks", tasks.CreateTaskHandler(d.Tasks, taskLog))
	mux.HandleFunc("GET /tasks/stats", tasks.StatsHandler(d.Tasks, taskLog))
	mux.Handle("GET /tasks/stream", d.Relay)
	mux.HandleFunc("GET /tasks/{id}", tasks.GetTaskHandler(d.Tasks, taskLog))
	mux.HandleFunc("PATCH /tasks/{id}", tasks.UpdateTaskHandler(d.Tasks, taskLog))
	mux.HandleFunc("DELETE /tasks/{id}", tasks.DeleteTaskHandler(d.Tasks, taskLog))
	mux.HandleFunc("PATCH /tasks/{id}/enrichment",
		d.EnrichmentAuth.Wrap(tasks.ApplyEnrichmentHandler(d.Tasks, taskLog)))

	chatHandler := chat.Handler(d.Chat, d.Logger.WithField("component", "chat"))
	mux.HandleFunc("POST /chat", chatHandler)
	mux.HandleFunc("POST /chat/typebot", chatHandler)

	return Recover(d.Logger, analytics.Middleware(mux))
}
