package tasks

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// -------------------------------
// HANDLERS
// -------------------------------

// GET /tasks?status=&needsEnrichment=&limit=
func ListTasksHandler(svc *Service, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f Filter
		if v := q.Get("status"); v != "" {
			st := Status(v)
			f.Status = &st
		}
		switch q.Get("needsEnrichment") {
		case "true":
			needs := true
			f.NeedsEnrichment = &needs
		case "false":
			needs := false
			f.NeedsEnrichment = &needs
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				f.Limit = n
			}
		}

		result, err := svc.List(r.Context(), f)
		if err != nil {
			writeServiceError(w, logger, err, "Failed to fetch tasks")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// POST /tasks
func CreateTaskHandler(svc *Service, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CreateRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		t, err := svc.Create(r.Context(), body)
		if err != nil {
			writeServiceError(w, logger, err, "Failed to create task")
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

// GET /tasks/{id}
func GetTaskHandler(svc *Service, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := svc.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeServiceError(w, logger, err, "Failed to fetch task")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// PATCH /tasks/{id}
func UpdateTaskHandler(svc *Service, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body UpdateRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeDecodeError(w, err)
			return
		}

		t, err := svc.Update(r.Context(), r.PathValue("id"), body)
		if err != nil {
			writeServiceError(w, logger, err, "Failed to update task")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// PATCH /tasks/{id}/enrichment
func ApplyEnrichmentHandler(svc *Service, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body EnrichmentRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeDecodeError(w, err)
			return
		}

		t, err := svc.ApplyEnrichment(r.Context(), r.PathValue("id"), body)
		if err != nil {
			writeServiceError(w, logger, err, "Failed to update task enrichment")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// DELETE /tasks/{id}
func DeleteTaskHandler(svc *Service, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeServiceError(w, logger, err, "Failed to delete task")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// GET /tasks/stats
func StatsHandler(svc *Service, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeServiceError(w, logger, err, "Failed to fetch task stats")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// -------------------------------
// helpers
// -------------------------------

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrValidation) {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid JSON body")
}

func writeServiceError(w http.ResponseWriter, logger logrus.FieldLogger, err error, internalMsg string) {
	switch {
	case errors.Is(err, ErrValidation):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Task not found")
	default:
		logger.WithError(err).Error(internalMsg)
		writeError(w, http.StatusInternalServerError, internalMsg)
	}
}

func validationMessage(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+ErrValidation.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
