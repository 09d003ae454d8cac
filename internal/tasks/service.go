package tasks

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"taskpulse-backend/internal/analytics"
	"taskpulse-backend/internal/enrichment"
)

const defaultSource = "web"

// EnrichmentTrigger hands a freshly created task to the enrichment workflow.
// It must not block; errors are logged and otherwise ignored.
type EnrichmentTrigger interface {
	Enqueue(job enrichment.TaskCreated) error
}

type Service struct {
	store    Store
	trigger  EnrichmentTrigger
	recorder analytics.Recorder
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewService(store Store, trigger EnrichmentTrigger, recorder analytics.Recorder, logger logrus.FieldLogger) *Service {
	if recorder == nil {
		recorder = analytics.Nop{}
	}
	return &Service{
		store:    store,
		trigger:  trigger,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Task, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, errors.Wrapf(ErrValidation, "unknown status %q", *f.Status)
	}
	return s.store.List(ctx, f)
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Task, error) {
	title, err := normalizeTitle(req.Title)
	if err != nil {
		return Task{}, err
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = defaultSource
	}

	t, err := s.store.Create(ctx, NewTask{Title: title, Source: source})
	if err != nil {
		return Task{}, err
	}
	s.logger.WithField("task_id", t.ID).Info("task created")

	if s.trigger != nil {
		if err := s.trigger.Enqueue(enrichment.TaskCreated{TaskID: t.ID, Title: t.Title}); err != nil {
			s.logger.WithField("task_id", t.ID).WithError(err).Warn("enrichment trigger not queued")
		}
	}

	s.record(ctx, "task_created", t.ID, map[string]any{
		"title_len": utf8.RuneCountInString(t.Title),
		"source":    source,
	})
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (Task, error) {
	if !validID(id) {
		return Task{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (Task, error) {
	if !validID(id) {
		return Task{}, ErrNotFound
	}

	c := Changes{
		Description:     req.Description,
		Steps:           req.Steps,
		ExtraInfo:       req.ExtraInfo,
		NeedsEnrichment: req.NeedsEnrichment,
	}
	if req.Title != nil {
		title, err := normalizeTitle(*req.Title)
		if err != nil {
			return Task{}, err
		}
		needs := true
		c.Title = &title
		c.NeedsEnrichment = &needs
	}

	var prev Status
	if req.Status != nil {
		if !req.Status.Valid() {
			return Task{}, errors.Wrapf(ErrValidation, "unknown status %q", *req.Status)
		}
		c.Status = req.Status

		current, err := s.store.Get(ctx, id)
		if err != nil {
			return Task{}, err
		}
		prev = current.Status
	}

	t, err := s.store.Update(ctx, id, c)
	if err != nil {
		return Task{}, err
	}

	switch {
	case req.Status != nil && prev != StatusDone && t.Status == StatusDone:
		s.record(ctx, "task_completed", t.ID, map[string]any{
			"time_since_created_sec": int(t.UpdatedAt.Sub(t.CreatedAt).Seconds()),
		})
	case req.Status != nil && prev == StatusDone && t.Status != StatusDone:
		s.record(ctx, "task_reopened", t.ID, nil)
	case !req.empty():
		s.record(ctx, "task_updated", t.ID, map[string]any{
			"title_changed": req.Title != nil,
		})
	}
	return t, nil
}

func (s *Service) ApplyEnrichment(ctx context.Context, id string, req EnrichmentRequest) (Task, error) {
	if !validID(id) {
		return Task{}, ErrNotFound
	}

	e := Enrichment{
		Description: req.Description,
		Steps:       req.Steps,
		ExtraInfo:   req.ExtraInfo,
		AILastRunAt: s.now().UTC(),
	}
	if req.AILastRunAt != nil {
		e.AILastRunAt = req.AILastRunAt.UTC()
	}

	t, err := s.store.ApplyEnrichment(ctx, id, e)
	if err != nil {
		return Task{}, err
	}
	s.logger.WithField("task_id", t.ID).Info("enrichment applied")

	s.record(ctx, "task_enriched", t.ID, map[string]any{
		"has_description": req.Description != nil,
		"steps":           len(req.Steps),
		"has_extra_info":  req.ExtraInfo != nil,
	})
	return t, nil
}

// Delete removes a task. Deleting an unknown id is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		s.logger.WithField("task_id", id).Debug("delete of malformed id ignored")
		return nil
	}
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		s.logger.WithField("task_id", id).Debug("delete of unknown task ignored")
		return nil
	}
	s.record(ctx, "task_deleted", id, nil)
	return nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) record(ctx context.Context, name, taskID string, props map[string]any) {
	s.recorder.Record(ctx, analytics.Event{
		Name:       name,
		TaskID:     taskID,
		Properties: props,
	})
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", errors.Wrap(ErrValidation, "Title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", errors.Wrapf(ErrValidation, "Title must be at most %d characters", MaxTitleLength)
	}
	return title, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
