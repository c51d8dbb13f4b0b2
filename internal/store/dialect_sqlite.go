package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string   { return "datetime('now')" }
func (d *SQLiteDialect) NeedsBoolFix() bool { return true }

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=0" // always false
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(phs, ", "))
}

func (d *SQLiteDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=1" // always true
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s NOT IN (%s)", field, strings.Join(phs, ", "))
}

// TimeParam stores timestamps as UTC text in the same shape datetime('now')
// produces, so SQLite's lexical comparison orders them correctly. Binding a
// raw time.Time would store the Go String() form (local zone, monotonic
// suffix), which never compares sanely against datetime('now').
func (d *SQLiteDialect) TimeParam(t time.Time) any {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func (d *SQLiteDialect) ArrayParam(values []string) any {
	if values == nil {
		return "[]"
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func (d *SQLiteDialect) ScanArray(src any) ([]string, error) {
	if src == nil {
		return []string{}, nil
	}
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return []string{}, nil
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" {
		return []string{}, nil
	}
	var result []string
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return []string{}, fmt.Errorf("scan array: %w", err)
	}
	return result, nil
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- SQLite DDL ---

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    roles         TEXT DEFAULT '[]',
    active        INTEGER DEFAULT 1,
    created_at    TEXT DEFAULT (datetime('now')),
    updated_at    TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _refresh_tokens (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
    token      TEXT NOT NULL UNIQUE,
    expires_at TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_token ON _refresh_tokens(token);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON _refresh_tokens(expires_at);

CREATE TABLE IF NOT EXISTS shared_inboxes (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL,
    email               TEXT NOT NULL UNIQUE,
    description         TEXT DEFAULT '',
    assignment_method   TEXT NOT NULL DEFAULT 'manual',
    default_assignee_id TEXT REFERENCES _users(id) ON DELETE SET NULL,
    settings            TEXT NOT NULL DEFAULT '{}',
    is_active           INTEGER NOT NULL DEFAULT 1,
    created_at          TEXT DEFAULT (datetime('now')),
    updated_at          TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS shared_inbox_members (
    id                        TEXT PRIMARY KEY,
    inbox_id                  TEXT NOT NULL REFERENCES shared_inboxes(id) ON DELETE CASCADE,
    user_id                   TEXT NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
    can_reply                 INTEGER NOT NULL DEFAULT 1,
    active_conversation_limit INTEGER NOT NULL DEFAULT 0,
    current_active_count      INTEGER NOT NULL DEFAULT 0,
    last_assignment_at        TEXT,
    created_at                TEXT DEFAULT (datetime('now')),
    updated_at                TEXT DEFAULT (datetime('now')),
    UNIQUE(inbox_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_inbox_members_inbox ON shared_inbox_members(inbox_id);

CREATE TABLE IF NOT EXISTS inbox_conversations (
    id             TEXT PRIMARY KEY,
    inbox_id       TEXT NOT NULL REFERENCES shared_inboxes(id) ON DELETE CASCADE,
    subject        TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'open',
    priority       TEXT NOT NULL DEFAULT 'normal',
    channel        TEXT NOT NULL DEFAULT 'email',
    contact_email  TEXT NOT NULL DEFAULT '',
    contact_name   TEXT NOT NULL DEFAULT '',
    contact_phone  TEXT NOT NULL DEFAULT '',
    assigned_to    TEXT REFERENCES _users(id) ON DELETE SET NULL,
    tags           TEXT DEFAULT '[]',
    custom_fields  TEXT NOT NULL DEFAULT '{}',
    message_count  INTEGER NOT NULL DEFAULT 0,
    is_spam        INTEGER NOT NULL DEFAULT 0,
    is_starred     INTEGER NOT NULL DEFAULT 0,
    resolved_at    TEXT,
    created_at     TEXT DEFAULT (datetime('now')),
    updated_at     TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_conversations_inbox_status ON inbox_conversations(inbox_id, status);
CREATE INDEX IF NOT EXISTS idx_conversations_assigned ON inbox_conversations(assigned_to);

CREATE TABLE IF NOT EXISTS inbox_messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES inbox_conversations(id) ON DELETE CASCADE,
    direction       TEXT NOT NULL DEFAULT 'inbound',
    type            TEXT NOT NULL DEFAULT 'reply',
    from_email      TEXT NOT NULL DEFAULT '',
    from_name       TEXT NOT NULL DEFAULT '',
    to_emails       TEXT DEFAULT '[]',
    subject         TEXT NOT NULL DEFAULT '',
    body_text       TEXT NOT NULL DEFAULT '',
    body_html       TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'received',
    sent_by         TEXT REFERENCES _users(id) ON DELETE SET NULL,
    sent_at         TEXT,
    created_at      TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON inbox_messages(conversation_id);

CREATE TABLE IF NOT EXISTS inbox_rules (
    id               TEXT PRIMARY KEY,
    inbox_id         TEXT NOT NULL REFERENCES shared_inboxes(id) ON DELETE CASCADE,
    name             TEXT NOT NULL,
    description      TEXT DEFAULT '',
    priority         INTEGER NOT NULL DEFAULT 0,
    conditions       TEXT NOT NULL DEFAULT '[]',
    condition_match  TEXT NOT NULL DEFAULT 'all',
    expression       TEXT DEFAULT '',
    actions          TEXT NOT NULL DEFAULT '[]',
    is_active        INTEGER NOT NULL DEFAULT 1,
    stop_processing  INTEGER NOT NULL DEFAULT 0,
    created_by       TEXT REFERENCES _users(id) ON DELETE SET NULL,
    execution_count  INTEGER NOT NULL DEFAULT 0,
    last_executed_at TEXT,
    created_at       TEXT DEFAULT (datetime('now')),
    updated_at       TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_inbox_rules_priority ON inbox_rules(inbox_id, priority);

CREATE TABLE IF NOT EXISTS _webhook_logs (
    id              TEXT PRIMARY KEY,
    rule_id         TEXT REFERENCES inbox_rules(id) ON DELETE SET NULL,
    inbox_id        TEXT,
    url             TEXT NOT NULL,
    method          TEXT NOT NULL DEFAULT 'POST',
    request_headers TEXT DEFAULT '{}',
    request_body    TEXT DEFAULT '{}',
    response_status INTEGER,
    response_body   TEXT DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'pending',
    attempt         INTEGER NOT NULL DEFAULT 0,
    max_attempts    INTEGER NOT NULL DEFAULT 3,
    next_retry_at   TEXT,
    error           TEXT DEFAULT '',
    idempotency_key TEXT NOT NULL UNIQUE,
    created_at      TEXT DEFAULT (datetime('now')),
    updated_at      TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_webhook_logs_status ON _webhook_logs(status);
CREATE INDEX IF NOT EXISTS idx_webhook_logs_retry ON _webhook_logs(next_retry_at) WHERE status = 'retrying';
`

// Compile-time check
var _ Dialect = (*SQLiteDialect)(nil)
