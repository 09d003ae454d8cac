package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrUpstreamUnavailable = errors.New("workflow not found")
	ErrUpstreamFailed      = errors.New("workflow failed")
	ErrUpstreamStatus      = errors.New("workflow returned unexpected status")
	ErrUpstreamUnreachable = errors.New("workflow unreachable")
	ErrUpstreamMalformed   = errors.New("workflow returned malformed body")
)

const (
	defaultTimeout  = 30 * time.Second
	maxUpstreamBody = 1 << 20

	fallbackReply = "I couldn't process that. Please try again."
)

// Client forwards chat messages to the intent-parsing workflow webhook.
type Client struct {
	url    string
	http   *http.Client
	logger logrus.FieldLogger
}

func NewClient(webhookURL string, httpClient *http.Client, logger logrus.FieldLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{url: webhookURL, http: httpClient, logger: logger}
}

// Reply posts {"message": msg} upstream and returns the workflow's reply text.
func (c *Client) Reply(ctx context.Context, msg string) (string, error) {
	body, err := json.Marshal(map[string]string{"message": msg})
	if err != nil {
		return "", errors.Wrap(err, "encode upstream request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(ErrUpstreamUnreachable, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(ErrUpstreamUnreachable, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return "", errors.Wrap(ErrUpstreamMalformed, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   truncate(string(raw), 512),
		}).Error("workflow returned error status")

		switch resp.StatusCode {
		case http.StatusNotFound:
			return "", ErrUpstreamUnavailable
		case http.StatusInternalServerError:
			return "", ErrUpstreamFailed
		default:
			return "", errors.Wrapf(ErrUpstreamStatus, "status %d", resp.StatusCode)
		}
	}

	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errors.Wrap(ErrUpstreamMalformed, err.Error())
	}
	return ExtractReply(result)
}

// replyPaths lists where the workflow may put its reply, in precedence order.
// Webhook nodes in "lastNode" mode wrap their output in {"json": ...}.
var replyPaths = [][]string{
	{"json", "reply"},
	{"reply"},
	{"response", "reply"},
	{"data", "reply"},
	{"body", "reply"},
}

// ExtractReply picks the reply out of a decoded upstream body. Empty values
// are skipped; non-string replies are returned JSON-encoded.
func ExtractReply(result any) (string, error) {
	for _, path := range replyPaths {
		v, ok := lookup(result, path)
		if !ok || isEmpty(v) {
			continue
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", errors.Wrap(ErrUpstreamMalformed, err.Error())
		}
		return string(encoded), nil
	}
	if s, ok := result.(string); ok {
		return s, nil
	}
	return fallbackReply, nil
}

// messagePaths lists where a chat widget may put the user's text.
var messagePaths = [][]string{
	{"message"},
	{"text"},
	{"input"},
	{"userMessage"},
	{"data", "message"},
	{"payload", "message"},
}

// ExtractMessage returns the first non-blank string found at messagePaths.
func ExtractMessage(body map[string]any) (string, bool) {
	for _, path := range messagePaths {
		v, ok := lookup(body, path)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func lookup(v any, path []string) (any, bool) {
	cur := v
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
