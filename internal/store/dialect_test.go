package store

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParamBuilderPlaceholders(t *testing.T) {
	pg := (&PostgresDialect{}).NewParamBuilder()
	if ph := pg.Add("a"); ph != "$1" {
		t.Fatalf("expected $1, got %s", ph)
	}
	if ph := pg.Add("b"); ph != "$2" {
		t.Fatalf("expected $2, got %s", ph)
	}
	if pg.Count() != 2 || len(pg.Params()) != 2 {
		t.Fatalf("expected 2 params, got count=%d len=%d", pg.Count(), len(pg.Params()))
	}

	sq := (&SQLiteDialect{}).NewParamBuilder()
	if ph := sq.Add("a"); ph != "?1" {
		t.Fatalf("expected ?1, got %s", ph)
	}
}

func TestPostgresInExprUsesArrayParam(t *testing.T) {
	d := &PostgresDialect{}
	pb := d.NewParamBuilder()
	expr := d.InExpr("status", pb, []any{"open", "pending"})
	if expr != "status = ANY($1)" {
		t.Fatalf("unexpected expr: %s", expr)
	}
	if pb.Count() != 1 {
		t.Fatalf("expected a single array param, got %d", pb.Count())
	}

	pb = d.NewParamBuilder()
	expr = d.NotInExpr("status", pb, []any{"spam"})
	if expr != "status != ALL($1)" {
		t.Fatalf("unexpected expr: %s", expr)
	}
}

func TestSQLiteInExprExpandsValues(t *testing.T) {
	d := &SQLiteDialect{}
	pb := d.NewParamBuilder()
	expr := d.InExpr("status", pb, []any{"open", "pending"})
	if expr != "status IN (?1, ?2)" {
		t.Fatalf("unexpected expr: %s", expr)
	}
	if pb.Count() != 2 {
		t.Fatalf("expected 2 params, got %d", pb.Count())
	}
}

func TestSQLiteInExprEmptySlice(t *testing.T) {
	d := &SQLiteDialect{}
	if expr := d.InExpr("status", d.NewParamBuilder(), nil); expr != "1=0" {
		t.Fatalf("empty IN should be always false, got %s", expr)
	}
	if expr := d.NotInExpr("status", d.NewParamBuilder(), nil); expr != "1=1" {
		t.Fatalf("empty NOT IN should be always true, got %s", expr)
	}
}

func TestParsePgArray(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"{}", []string{}},
		{"{admin}", []string{"admin"}},
		{"{admin,user}", []string{"admin", "user"}},
		{`{"a b","c"}`, []string{"a b", "c"}},
		{`["x","y"]`, []string{"x", "y"}},
	}
	for _, tc := range cases {
		got, err := parsePgArray(tc.in)
		if err != nil {
			t.Fatalf("parsePgArray(%q): %v", tc.in, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("parsePgArray(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("parsePgArray(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestSQLiteScanArrayRoundTrip(t *testing.T) {
	d := &SQLiteDialect{}
	param := d.ArrayParam([]string{"urgent", "billing"})
	got, err := d.ScanArray(param)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 || got[0] != "urgent" || got[1] != "billing" {
		t.Fatalf("unexpected round trip result: %v", got)
	}

	got, err = d.ScanArray(nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("nil should scan to empty slice, got %v err %v", got, err)
	}
}

func TestSQLiteTimeParamOrdersAgainstDatetimeNow(t *testing.T) {
	d := &SQLiteDialect{}

	// A host far from UTC must not leak its zone into the stored text
	loc := time.FixedZone("UTC+14", 14*60*60)
	overdue := time.Now().In(loc).Add(-time.Minute)

	v := d.TimeParam(overdue)
	s, ok := v.(string)
	if !ok {
		t.Fatalf("expected string parameter, got %T", v)
	}

	parsed, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		t.Fatalf("stored text %q is not datetime('now')-shaped: %v", s, err)
	}
	if diff := parsed.Sub(overdue.UTC()); diff < -2*time.Second || diff > 2*time.Second {
		t.Fatalf("stored text %q does not round-trip to the UTC instant (off by %v)", s, diff)
	}

	// SQLite compares these lexically; an overdue timestamp must sort
	// before the current datetime('now') text.
	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	if s >= now {
		t.Fatalf("overdue timestamp %q does not order before now %q", s, now)
	}
}

func TestPostgresTimeParamPassthrough(t *testing.T) {
	d := &PostgresDialect{}
	ts := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	v, ok := d.TimeParam(ts).(time.Time)
	if !ok || !v.Equal(ts) {
		t.Fatalf("expected time.Time passthrough, got %T %v", d.TimeParam(ts), v)
	}
}

func TestMapErrorUniqueViolation(t *testing.T) {
	pg := &PostgresDialect{}
	err := pg.MapError(fmt.Errorf(`ERROR: duplicate key value violates unique constraint "inbox_rules_pkey" (SQLSTATE 23505)`))
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}

	sq := &SQLiteDialect{}
	err = sq.MapError(errors.New("constraint failed: UNIQUE constraint failed: _webhook_logs.idempotency_key"))
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}

	plain := errors.New("connection refused")
	if got := pg.MapError(plain); !errors.Is(got, plain) {
		t.Fatalf("unrelated error should pass through, got %v", got)
	}
}

func TestNewDialectSelection(t *testing.T) {
	if NewDialect("sqlite").Name() != "sqlite" {
		t.Fatal("expected sqlite dialect")
	}
	if NewDialect("postgres").Name() != "postgres" {
		t.Fatal("expected postgres dialect")
	}
	if NewDialect("postgres").NowExpr() != "NOW()" {
		t.Fatal("unexpected postgres now expression")
	}
	if NewDialect("sqlite").NowExpr() != "datetime('now')" {
		t.Fatal("unexpected sqlite now expression")
	}
}
