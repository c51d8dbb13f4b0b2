package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"inbox-backend/internal/store"
)

var webhookHTTPClient = &http.Client{Timeout: 10 * time.Second}

// SetWebhookTimeout adjusts the HTTP timeout for webhook deliveries.
func SetWebhookTimeout(d time.Duration) {
	if d > 0 {
		webhookHTTPClient.Timeout = d
	}
}

// WebhookPayload is the JSON body sent to rule webhook endpoints.
type WebhookPayload struct {
	Event          string         `json:"event"`
	InboxID        string         `json:"inbox_id"`
	RuleID         string         `json:"rule_id,omitempty"`
	Conversation   map[string]any `json:"conversation"`
	Record         map[string]any `json:"record"`
	Timestamp      string         `json:"timestamp"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// BuildWebhookPayload constructs the payload for one webhook delivery.
func BuildWebhookPayload(event, inboxID, ruleID string, conversation, record map[string]any) *WebhookPayload {
	return &WebhookPayload{
		Event:          event,
		InboxID:        inboxID,
		RuleID:         ruleID,
		Conversation:   conversation,
		Record:         record,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		IdempotencyKey: "wh_" + store.GenerateUUID(),
	}
}

// DispatchResult holds the outcome of a single webhook HTTP call.
type DispatchResult struct {
	StatusCode   int
	ResponseBody string
	Error        string
}

// WebhookDispatcher delivers rule webhooks and records each attempt in
// _webhook_logs so the retry scheduler can pick up failures.
type WebhookDispatcher struct {
	store       *store.Store
	maxAttempts int
}

func NewWebhookDispatcher(s *store.Store, maxAttempts int) *WebhookDispatcher {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &WebhookDispatcher{store: s, maxAttempts: maxAttempts}
}

// Deliver fires the webhook and logs the attempt. A failed delivery is left
// in retrying state for the scheduler; it is not an error for the caller.
func (d *WebhookDispatcher) Deliver(ctx context.Context, url, method string, headers map[string]string, payload *WebhookPayload) error {
	if method == "" {
		method = "POST"
	}
	resolved := ResolveHeaders(headers)
	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	result := DispatchWebhook(ctx, url, method, resolved, bodyJSON)
	d.logDelivery(ctx, url, method, resolved, bodyJSON, payload, result)
	return nil
}

// DispatchWebhook performs the HTTP call. url/method/headers are resolved values.
func DispatchWebhook(ctx context.Context, url, method string, headers map[string]string, bodyJSON []byte) *DispatchResult {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyJSON))
	if err != nil {
		return &DispatchResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := webhookHTTPClient.Do(req)
	if err != nil {
		return &DispatchResult{Error: fmt.Sprintf("http call: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024)) // max 64KB

	return &DispatchResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: string(respBody),
	}
}

// ResolveHeaders replaces {{env.VAR_NAME}} in header values with os env values.
func ResolveHeaders(headers map[string]string) map[string]string {
	resolved := make(map[string]string, len(headers))
	for k, v := range headers {
		resolved[k] = resolveEnvVars(v)
	}
	return resolved
}

func resolveEnvVars(s string) string {
	for {
		start := strings.Index(s, "{{env.")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			return s
		}
		end += start
		varName := s[start+6 : end]
		envVal := os.Getenv(varName)
		s = s[:start] + envVal + s[end+2:]
	}
}

func (d *WebhookDispatcher) logDelivery(ctx context.Context, url, method string, headers map[string]string, bodyJSON []byte, payload *WebhookPayload, result *DispatchResult) {
	status := "delivered"
	errMsg := result.Error
	if errMsg != "" || result.StatusCode < 200 || result.StatusCode >= 300 {
		if d.maxAttempts > 1 {
			status = "retrying"
		} else {
			status = "failed"
		}
		if errMsg == "" {
			errMsg = fmt.Sprintf("HTTP %d", result.StatusCode)
		}
	}

	headersJSON, _ := json.Marshal(headers)
	var nextRetry any
	if status == "retrying" {
		nextRetry = d.store.Dialect.TimeParam(time.Now().Add(30 * time.Second))
	}

	pb := d.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`INSERT INTO _webhook_logs (id, rule_id, inbox_id, url, method, request_headers, request_body,
		 response_status, response_body, status, attempt, max_attempts, next_retry_at, error, idempotency_key)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(store.GenerateUUID()), pb.Add(nullIfEmpty(payload.RuleID)), pb.Add(payload.InboxID),
		pb.Add(url), pb.Add(method), pb.Add(string(headersJSON)), pb.Add(string(bodyJSON)),
		pb.Add(result.StatusCode), pb.Add(result.ResponseBody), pb.Add(status),
		pb.Add(1), pb.Add(d.maxAttempts), pb.Add(nextRetry), pb.Add(errMsg), pb.Add(payload.IdempotencyKey))
	if _, err := store.Exec(ctx, d.store.DB, query, pb.Params()...); err != nil {
		log.Printf("ERROR: failed to log webhook delivery for %s: %v", url, err)
	}
}
