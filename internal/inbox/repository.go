package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"inbox-backend/internal/condition"
	"inbox-backend/internal/store"
)

// RuleStore persists inbox rules in the inbox_rules table.
type RuleStore struct {
	store *store.Store
}

func NewRuleStore(s *store.Store) *RuleStore {
	return &RuleStore{store: s}
}

const ruleColumns = `id, inbox_id, name, description, priority, conditions, condition_match,
	expression, actions, is_active, stop_processing, created_by, execution_count, last_executed_at`

// ActiveRules returns the inbox's active rules ordered by priority ascending.
// Rows with unparseable JSON are logged and skipped.
func (rs *RuleStore) ActiveRules(ctx context.Context, inboxID string) ([]*Rule, error) {
	pb := rs.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`SELECT %s FROM inbox_rules WHERE inbox_id = %s AND is_active = TRUE
		 ORDER BY priority ASC, created_at ASC`,
		ruleColumns, pb.Add(inboxID))
	rows, err := store.QueryRows(ctx, rs.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}
	return rs.parseRows(rows), nil
}

// List returns all of the inbox's rules ordered by priority ascending.
func (rs *RuleStore) List(ctx context.Context, inboxID string) ([]*Rule, error) {
	pb := rs.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		"SELECT %s FROM inbox_rules WHERE inbox_id = %s ORDER BY priority ASC, created_at ASC",
		ruleColumns, pb.Add(inboxID))
	rows, err := store.QueryRows(ctx, rs.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rs.parseRows(rows), nil
}

// Get returns a single rule by ID.
func (rs *RuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	pb := rs.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("SELECT %s FROM inbox_rules WHERE id = %s", ruleColumns, pb.Add(id))
	row, err := store.QueryRow(ctx, rs.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, err
	}
	return RuleFromRow(row)
}

// Create validates and inserts a new rule, assigning its ID.
func (rs *RuleStore) Create(ctx context.Context, r *Rule) error {
	if r.ConditionMatch == "" {
		r.ConditionMatch = MatchAll
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = store.GenerateUUID()
	}

	conditionsJSON, actionsJSON, err := marshalRuleJSON(r)
	if err != nil {
		return err
	}

	pb := rs.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`INSERT INTO inbox_rules (id, inbox_id, name, description, priority, conditions,
		 condition_match, expression, actions, is_active, stop_processing, created_by)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(r.ID), pb.Add(r.InboxID), pb.Add(r.Name), pb.Add(r.Description),
		pb.Add(r.Priority), pb.Add(conditionsJSON), pb.Add(r.ConditionMatch),
		pb.Add(r.Expression), pb.Add(actionsJSON), pb.Add(r.IsActive),
		pb.Add(r.StopProcessing), pb.Add(nullIfEmpty(r.CreatedBy)))
	if _, err := store.Exec(ctx, rs.store.DB, query, pb.Params()...); err != nil {
		return rs.store.Dialect.MapError(err)
	}
	return nil
}

// Update validates and saves an existing rule.
func (rs *RuleStore) Update(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	conditionsJSON, actionsJSON, err := marshalRuleJSON(r)
	if err != nil {
		return err
	}

	pb := rs.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`UPDATE inbox_rules SET name = %s, description = %s, priority = %s, conditions = %s,
		 condition_match = %s, expression = %s, actions = %s, is_active = %s,
		 stop_processing = %s, updated_at = %s WHERE id = %s`,
		pb.Add(r.Name), pb.Add(r.Description), pb.Add(r.Priority), pb.Add(conditionsJSON),
		pb.Add(r.ConditionMatch), pb.Add(r.Expression), pb.Add(actionsJSON),
		pb.Add(r.IsActive), pb.Add(r.StopProcessing), rs.store.Dialect.NowExpr(), pb.Add(r.ID))
	n, err := store.Exec(ctx, rs.store.DB, query, pb.Params()...)
	if err != nil {
		return rs.store.Dialect.MapError(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes a rule.
func (rs *RuleStore) Delete(ctx context.Context, id string) error {
	pb := rs.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("DELETE FROM inbox_rules WHERE id = %s", pb.Add(id))
	n, err := store.Exec(ctx, rs.store.DB, query, pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Reorder rewrites rule priorities so each rule's priority becomes its
// position in orderedIDs.
func (rs *RuleStore) Reorder(ctx context.Context, inboxID string, orderedIDs []string) error {
	tx, err := rs.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, id := range orderedIDs {
		pb := rs.store.Dialect.NewParamBuilder()
		query := fmt.Sprintf(
			"UPDATE inbox_rules SET priority = %s, updated_at = %s WHERE id = %s AND inbox_id = %s",
			pb.Add(i), rs.store.Dialect.NowExpr(), pb.Add(id), pb.Add(inboxID))
		if _, err := store.Exec(ctx, tx, query, pb.Params()...); err != nil {
			return fmt.Errorf("reorder rule %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// RecordExecution bumps the rule's execution counter and timestamp.
func (rs *RuleStore) RecordExecution(ctx context.Context, ruleID string) error {
	now := rs.store.Dialect.NowExpr()
	pb := rs.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		`UPDATE inbox_rules SET execution_count = execution_count + 1,
		 last_executed_at = %s, updated_at = %s WHERE id = %s`,
		now, now, pb.Add(ruleID))
	_, err := store.Exec(ctx, rs.store.DB, query, pb.Params()...)
	return err
}

func (rs *RuleStore) parseRows(rows []map[string]any) []*Rule {
	rules := make([]*Rule, 0, len(rows))
	for _, row := range rows {
		r, err := RuleFromRow(row)
		if err != nil {
			log.Printf("ERROR: skipping rule: %v", err)
			continue
		}
		rules = append(rules, r)
	}
	return rules
}

func marshalRuleJSON(r *Rule) (string, string, error) {
	conditions := r.Conditions
	if conditions == nil {
		conditions = []condition.Condition{}
	}
	actions := r.Actions
	if actions == nil {
		actions = []Action{}
	}
	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return "", "", fmt.Errorf("marshal conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return "", "", fmt.Errorf("marshal actions: %w", err)
	}
	return string(conditionsJSON), string(actionsJSON), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
