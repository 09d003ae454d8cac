package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("enrichment queue is full")
	ErrClosed    = errors.New("enrichment notifier is closed")
)

const defaultRequestTimeout = 10 * time.Second

// TaskCreated is the payload the enrichment workflow expects.
type TaskCreated struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
}

type Options struct {
	WebhookURL string
	Workers    int
	QueueSize  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Notifier posts TaskCreated jobs to the enrichment webhook from a bounded
// pool of workers. Enqueue never blocks.
type Notifier struct {
	url    string
	client *http.Client
	logger logrus.FieldLogger

	queue chan TaskCreated
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewNotifier(opts Options, logger logrus.FieldLogger) *Notifier {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	n := &Notifier{
		url:    opts.WebhookURL,
		client: client,
		logger: logger,
		queue:  make(chan TaskCreated, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

func (n *Notifier) Enqueue(job TaskCreated) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}

	select {
	case n.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones until ctx expires.
func (n *Notifier) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for job := range n.queue {
		if err := n.post(context.Background(), job); err != nil {
			n.logger.WithField("task_id", job.TaskID).WithError(err).Warn("failed to notify enrichment workflow")
			continue
		}
		n.logger.WithField("task_id", job.TaskID).Debug("enrichment workflow notified")
	}
}

func (n *Notifier) post(ctx context.Context, job TaskCreated) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}

// Disabled is used when no webhook URL is configured.
type Disabled struct{}

func (Disabled) Enqueue(TaskCreated) error { return nil }
