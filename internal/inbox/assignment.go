package inbox

import (
	"context"
	"errors"
	"fmt"

	"inbox-backend/internal/store"
)

// Assignment methods supported on shared inboxes.
const (
	AssignManual       = "manual"
	AssignRoundRobin   = "round_robin"
	AssignLoadBalanced = "load_balanced"
)

// Assigner picks and applies conversation assignees per the inbox's
// assignment method, keeping member workload counters in sync.
type Assigner struct {
	store *store.Store
}

func NewAssigner(s *store.Store) *Assigner {
	return &Assigner{store: s}
}

// PickAssignee chooses a user for a new conversation. Falls back to the
// inbox's default assignee when no member qualifies. Returns "" when
// nothing applies (conversation stays unassigned).
func (a *Assigner) PickAssignee(ctx context.Context, inbox map[string]any) (string, error) {
	inboxID := asString(inbox["id"])
	method := asString(inbox["assignment_method"])
	defaultAssignee := asString(inbox["default_assignee_id"])

	switch method {
	case AssignRoundRobin:
		userID, err := a.pickMember(ctx, inboxID,
			"ORDER BY last_assignment_at ASC NULLS FIRST, created_at ASC", "")
		if err != nil {
			return "", err
		}
		if userID != "" {
			return userID, nil
		}
	case AssignLoadBalanced:
		userID, err := a.pickMember(ctx, inboxID,
			"ORDER BY current_active_count ASC, last_assignment_at ASC NULLS FIRST",
			"AND (active_conversation_limit = 0 OR current_active_count < active_conversation_limit)")
		if err != nil {
			return "", err
		}
		if userID != "" {
			return userID, nil
		}
	}

	return defaultAssignee, nil
}

// Assign sets the conversation's assignee and adjusts member counters:
// the new assignee's active count goes up, a previous assignee's comes down.
func (a *Assigner) Assign(ctx context.Context, conversationID, inboxID, userID string) error {
	if userID == "" {
		return nil
	}

	tx, err := a.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pb := a.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("SELECT assigned_to FROM inbox_conversations WHERE id = %s", pb.Add(conversationID))
	row, err := store.QueryRow(ctx, tx, query, pb.Params()...)
	if err != nil {
		return err
	}
	previous := asString(row["assigned_to"])
	if previous == userID {
		return tx.Commit()
	}

	pb = a.store.Dialect.NewParamBuilder()
	query = fmt.Sprintf(
		"UPDATE inbox_conversations SET assigned_to = %s, updated_at = %s WHERE id = %s",
		pb.Add(userID), a.store.Dialect.NowExpr(), pb.Add(conversationID))
	if _, err := store.Exec(ctx, tx, query, pb.Params()...); err != nil {
		return err
	}

	if previous != "" {
		if err := a.decrementActive(ctx, tx, inboxID, previous); err != nil {
			return err
		}
	}

	pb = a.store.Dialect.NewParamBuilder()
	now := a.store.Dialect.NowExpr()
	query = fmt.Sprintf(
		`UPDATE shared_inbox_members SET current_active_count = current_active_count + 1,
		 last_assignment_at = %s, updated_at = %s WHERE inbox_id = %s AND user_id = %s`,
		now, now, pb.Add(inboxID), pb.Add(userID))
	if _, err := store.Exec(ctx, tx, query, pb.Params()...); err != nil {
		return err
	}

	return tx.Commit()
}

// Release drops the assignee's active count when a conversation leaves the
// active pool (resolved or closed).
func (a *Assigner) Release(ctx context.Context, inboxID, userID string) error {
	if userID == "" {
		return nil
	}
	return a.decrementActive(ctx, a.store.DB, inboxID, userID)
}

func (a *Assigner) pickMember(ctx context.Context, inboxID, orderBy, extraWhere string) (string, error) {
	pb := a.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`SELECT user_id FROM shared_inbox_members
		 WHERE inbox_id = %s AND can_reply = TRUE %s %s LIMIT 1`,
		pb.Add(inboxID), extraWhere, orderBy)
	row, err := store.QueryRow(ctx, a.store.DB, query, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return asString(row["user_id"]), nil
}

func (a *Assigner) decrementActive(ctx context.Context, q store.Querier, inboxID, userID string) error {
	pb := a.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`UPDATE shared_inbox_members
		 SET current_active_count = CASE WHEN current_active_count > 0 THEN current_active_count - 1 ELSE 0 END,
		     updated_at = %s
		 WHERE inbox_id = %s AND user_id = %s`,
		a.store.Dialect.NowExpr(), pb.Add(inboxID), pb.Add(userID))
	_, err := store.Exec(ctx, q, query, pb.Params()...)
	return err
}
