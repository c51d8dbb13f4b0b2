package inbox

import (
	"context"
	"fmt"
	"time"

	"inbox-backend/internal/store"
)

// Metrics are per-inbox conversation counts over a period.
type Metrics struct {
	InboxID    string         `json:"inbox_id"`
	Since      time.Time      `json:"since"`
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
	ByChannel  map[string]int `json:"by_channel"`
	Spam       int            `json:"spam"`
	Unassigned int            `json:"unassigned"`
}

// InboxMetrics aggregates conversation counts for an inbox since the given time.
func InboxMetrics(ctx context.Context, s *store.Store, inboxID string, since time.Time) (*Metrics, error) {
	m := &Metrics{
		InboxID:    inboxID,
		Since:      since,
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
		ByChannel:  map[string]int{},
	}

	for _, dim := range []struct {
		column string
		dest   map[string]int
	}{
		{"status", m.ByStatus},
		{"priority", m.ByPriority},
		{"channel", m.ByChannel},
	} {
		pb := s.Dialect.NewParamBuilder()
		query := fmt.Sprintf(
			`SELECT %s AS dim, COUNT(*) AS n FROM inbox_conversations
			 WHERE inbox_id = %s AND created_at >= %s GROUP BY %s`,
			dim.column, pb.Add(inboxID), pb.Add(s.Dialect.TimeParam(since)), dim.column)
		rows, err := store.QueryRows(ctx, s.DB, query, pb.Params()...)
		if err != nil {
			return nil, fmt.Errorf("metrics by %s: %w", dim.column, err)
		}
		for _, row := range rows {
			dim.dest[asString(row["dim"])] = asInt(row["n"])
		}
	}

	for _, n := range m.ByStatus {
		m.Total += n
	}

	pb := s.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`SELECT
		   SUM(CASE WHEN is_spam THEN 1 ELSE 0 END) AS spam,
		   SUM(CASE WHEN assigned_to IS NULL THEN 1 ELSE 0 END) AS unassigned
		 FROM inbox_conversations WHERE inbox_id = %s AND created_at >= %s`,
		pb.Add(inboxID), pb.Add(s.Dialect.TimeParam(since)))
	row, err := store.QueryRow(ctx, s.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("metrics flags: %w", err)
	}
	m.Spam = asInt(row["spam"])
	m.Unassigned = asInt(row["unassigned"])

	return m, nil
}
