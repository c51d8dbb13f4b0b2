package inbox

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPickAssignee_ManualUsesDefaultAssignee(t *testing.T) {
	s, _ := newTestStore(t)
	a := NewAssigner(s)

	inbox := map[string]any{"id": "i1", "assignment_method": AssignManual, "default_assignee_id": "u9"}
	userID, err := a.PickAssignee(context.Background(), inbox)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if userID != "u9" {
		t.Fatalf("expected default assignee u9, got %q", userID)
	}
}

func TestPickAssignee_RoundRobinPicksOldestAssignment(t *testing.T) {
	s, mock := newTestStore(t)
	a := NewAssigner(s)

	mock.ExpectQuery("SELECT user_id FROM shared_inbox_members").
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u2"))

	inbox := map[string]any{"id": "i1", "assignment_method": AssignRoundRobin, "default_assignee_id": "u9"}
	userID, err := a.PickAssignee(context.Background(), inbox)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if userID != "u2" {
		t.Fatalf("expected round robin pick u2, got %q", userID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPickAssignee_LoadBalancedFallsBackToDefault(t *testing.T) {
	s, mock := newTestStore(t)
	a := NewAssigner(s)

	// All members at their limit: empty result
	mock.ExpectQuery("SELECT user_id FROM shared_inbox_members").
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	inbox := map[string]any{"id": "i1", "assignment_method": AssignLoadBalanced, "default_assignee_id": "u9"}
	userID, err := a.PickAssignee(context.Background(), inbox)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if userID != "u9" {
		t.Fatalf("expected fallback to default assignee, got %q", userID)
	}
}

func TestAssign_MovesActiveCountBetweenMembers(t *testing.T) {
	s, mock := newTestStore(t)
	a := NewAssigner(s)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT assigned_to FROM inbox_conversations").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"assigned_to"}).AddRow("u1"))
	mock.ExpectExec("UPDATE inbox_conversations SET assigned_to =").
		WithArgs("u2", "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE shared_inbox_members").
		WithArgs("i1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE shared_inbox_members SET current_active_count = current_active_count \\+ 1").
		WithArgs("i1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := a.Assign(context.Background(), "c1", "i1", "u2"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAssign_NoOpWhenAlreadyAssigned(t *testing.T) {
	s, mock := newTestStore(t)
	a := NewAssigner(s)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT assigned_to FROM inbox_conversations").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"assigned_to"}).AddRow("u2"))
	mock.ExpectCommit()

	if err := a.Assign(context.Background(), "c1", "i1", "u2"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
