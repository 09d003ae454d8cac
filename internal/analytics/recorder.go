package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// SQLRecorder inserts events into task_events.
type SQLRecorder struct {
	db     *sqlx.DB
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewSQLRecorder(db *sqlx.DB, logger logrus.FieldLogger) *SQLRecorder {
	return &SQLRecorder{db: db, logger: logger, now: time.Now}
}

func (r *SQLRecorder) Record(ctx context.Context, e Event) {
	if e.Name == "" {
		return
	}
	env := EnvelopeFromContext(ctx)

	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	b, err := json.Marshal(props)
	if err != nil {
		// if props can't marshal, don't break core flow
		r.logger.WithError(err).WithField("event", e.Name).Warn("analytics props not serializable")
		return
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO task_events (
			event_name, event_time, task_id,
			platform, app_version, session_id,
			properties
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, e.Name, r.now().UTC(), nullIfEmpty(e.TaskID),
		env.Platform, nullIfEmpty(env.AppVersion), nullIfEmpty(env.SessionID),
		string(b),
	)
	if err != nil {
		r.logger.WithError(err).WithField("event", e.Name).Warn("analytics insert failed")
	}
}

// LogRecorder writes events to the log; used when no database is configured.
type LogRecorder struct {
	Logger logrus.FieldLogger
}

func (r LogRecorder) Record(ctx context.Context, e Event) {
	if e.Name == "" {
		return
	}
	env := EnvelopeFromContext(ctx)
	r.Logger.WithFields(logrus.Fields{
		"event":    e.Name,
		"task_id":  e.TaskID,
		"platform": env.Platform,
		"props":    e.Properties,
	}).Debug("task event")
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
