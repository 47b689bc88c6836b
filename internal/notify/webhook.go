// Package notify delivers escalation notifications to an operator
// endpoint. The orchestration core stays headless; a webhook is the one
// outbound surface it carries.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// escalationPayload is the JSON body posted on escalation.
type escalationPayload struct {
	Event     string    `json:"event"`
	TaskID    string    `json:"task_id"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// Webhook posts escalation events to a configured URL. Delivery is
// best-effort; a failed post is logged and dropped, never retried, so
// notification trouble cannot stall recovery handling.
type Webhook struct {
	url    string
	client *http.Client
	logf   func(format string, args ...interface{})
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) { w.client = c }
}

// WithLogger attaches a debug log sink.
func WithLogger(logf func(format string, args ...interface{})) Option {
	return func(w *Webhook) { w.logf = logf }
}

// NewWebhook creates a notifier posting to the given URL.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logf:   func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NotifyRetryLimitExceeded posts an escalation event for a task whose
// retry budget is exhausted.
func (w *Webhook) NotifyRetryLimitExceeded(taskID string, attempts int) {
	body, err := json.Marshal(escalationPayload{
		Event:     "retry_limit_exceeded",
		TaskID:    taskID,
		Attempts:  attempts,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		w.logf("[notify] marshal escalation for task %s: %v", taskID, err)
		return
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		w.logf("[notify] post escalation for task %s: %v", taskID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logf("[notify] escalation for task %s rejected: %s", taskID, resp.Status)
		return
	}
	w.logf("[notify] escalated task %s after %d attempts", taskID, attempts)
}
