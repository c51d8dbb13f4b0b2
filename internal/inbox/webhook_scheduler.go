package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"inbox-backend/internal/store"
)

// WebhookScheduler retries failed webhook deliveries on a background interval.
type WebhookScheduler struct {
	store    *store.Store
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
}

func NewWebhookScheduler(s *store.Store, interval time.Duration) *WebhookScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &WebhookScheduler{store: s, interval: interval}
}

// Start begins the background ticker for retrying webhook deliveries.
func (ws *WebhookScheduler) Start() {
	ws.ticker = time.NewTicker(ws.interval)
	ws.done = make(chan struct{})
	go ws.run()
	log.Printf("Webhook scheduler started (%s interval)", ws.interval)
}

// Stop halts the background ticker.
func (ws *WebhookScheduler) Stop() {
	if ws.ticker != nil {
		ws.ticker.Stop()
	}
	if ws.done != nil {
		close(ws.done)
	}
}

func (ws *WebhookScheduler) run() {
	for {
		select {
		case <-ws.done:
			return
		case <-ws.ticker.C:
			ws.processRetries()
		}
	}
}

func (ws *WebhookScheduler) processRetries() {
	ctx := context.Background()

	query := fmt.Sprintf(
		`SELECT id, url, method, request_headers, request_body, attempt, max_attempts
		 FROM _webhook_logs
		 WHERE status = 'retrying' AND next_retry_at < %s
		 ORDER BY next_retry_at ASC
		 LIMIT 50`, ws.store.Dialect.NowExpr())
	rows, err := store.QueryRows(ctx, ws.store.DB, query)
	if err != nil {
		log.Printf("ERROR: webhook scheduler query failed: %v", err)
		return
	}

	for _, row := range rows {
		ws.retryDelivery(ctx, row)
	}
}

func (ws *WebhookScheduler) retryDelivery(ctx context.Context, row map[string]any) {
	logID := asString(row["id"])
	attempt := asInt(row["attempt"]) + 1
	maxAttempts := asInt(row["max_attempts"])
	url := asString(row["url"])
	method := asString(row["method"])

	headers := map[string]string{}
	if raw := asJSONText(row["request_headers"]); raw != "" {
		json.Unmarshal([]byte(raw), &headers)
	}
	bodyJSON := []byte(asJSONText(row["request_body"]))

	resolved := ResolveHeaders(headers)
	result := DispatchWebhook(ctx, url, method, resolved, bodyJSON)

	newStatus := "delivered"
	errMsg := result.Error
	if errMsg != "" || result.StatusCode < 200 || result.StatusCode >= 300 {
		if errMsg == "" {
			errMsg = fmt.Sprintf("HTTP %d", result.StatusCode)
		}
		if attempt >= maxAttempts {
			newStatus = "failed"
		} else {
			newStatus = "retrying"
		}
	}

	// Exponential backoff: 30s x 2^attempt
	var nextRetry any
	if newStatus == "retrying" {
		backoff := time.Duration(math.Pow(2, float64(attempt))) * 30 * time.Second
		nextRetry = ws.store.Dialect.TimeParam(time.Now().Add(backoff))
	}

	pb := ws.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`UPDATE _webhook_logs
		 SET status = %s, attempt = %s, response_status = %s, response_body = %s,
		     error = %s, next_retry_at = %s, updated_at = %s
		 WHERE id = %s`,
		pb.Add(newStatus), pb.Add(attempt), pb.Add(result.StatusCode), pb.Add(result.ResponseBody),
		pb.Add(errMsg), pb.Add(nextRetry), ws.store.Dialect.NowExpr(), pb.Add(logID))
	if _, err := store.Exec(ctx, ws.store.DB, query, pb.Params()...); err != nil {
		log.Printf("ERROR: webhook scheduler update for %s: %v", logID, err)
		return
	}

	if newStatus == "delivered" {
		log.Printf("Webhook retry delivered: log=%s attempt=%d", logID, attempt)
	} else if newStatus == "failed" {
		log.Printf("Webhook retry exhausted: log=%s attempt=%d/%d", logID, attempt, maxAttempts)
	}
}
