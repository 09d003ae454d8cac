package tasks

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusDone
}

// Task is the single persisted entity.
type Task struct {
	ID              string     `json:"id" db:"id"`
	Title           string     `json:"title" db:"title"`
	Status          Status     `json:"status" db:"status"`
	Description     *string    `json:"description" db:"description"`
	Steps           Steps      `json:"steps" db:"steps"`
	ExtraInfo       ExtraInfo  `json:"extra_info" db:"extra_info"`
	NeedsEnrichment bool       `json:"needs_enrichment" db:"needs_enrichment"`
	AILastRunAt     *time.Time `json:"ai_last_run_at" db:"ai_last_run_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	Source          *string    `json:"source" db:"source"`
}

type Step struct {
	Order int    `json:"order"`
	Text  string `json:"text"`
}

// Steps is stored as a jsonb array; a NULL column scans to nil.
type Steps []Step

func (s Steps) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal([]Step(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Steps) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*s = nil
		return err
	}
	var out []Step
	if err := json.Unmarshal(b, &out); err != nil {
		return errors.Wrap(err, "scan steps")
	}
	*s = out
	return nil
}

// ExtraInfo is the free-form enrichment annotation (links, notes, ...).
// Only JSON objects are accepted.
type ExtraInfo map[string]any

func (e ExtraInfo) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(e))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (e *ExtraInfo) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*e = nil
		return err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return errors.Wrap(err, "scan extra_info")
	}
	*e = out
	return nil
}

func (e *ExtraInfo) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*e = nil
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return errors.Wrap(ErrValidation, "extra_info must be a JSON object")
	}
	*e = out
	return nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.Errorf("unsupported jsonb source %T", src)
	}
}

// Stats is the progress summary shown next to the task list.
type Stats struct {
	Created  int `json:"created" db:"created"`
	Done     int `json:"done" db:"done"`
	Progress int `json:"progress"`
}

func newStats(created, done int) Stats {
	s := Stats{Created: created, Done: done}
	if created > 0 {
		s.Progress = (done*100 + created/2) / created
	}
	return s
}
