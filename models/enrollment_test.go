package models

import (
	"testing"
	"time"
)

func TestEnrollmentDue(t *testing.T) {
	now := time.Date(2025, 6, 20, 8, 0, 0, 0, time.UTC)

	enrollment := AutomationEnrollment{Status: EnrollmentStatusActive}
	if enrollment.Due(now) {
		t.Fatalf("no next action means not due")
	}

	at := now.Add(-time.Minute)
	enrollment.NextActionAt = &at
	if !enrollment.Due(now) {
		t.Fatalf("past next action should be due")
	}

	exactly := now
	enrollment.NextActionAt = &exactly
	if !enrollment.Due(now) {
		t.Fatalf("next action exactly at now is due")
	}

	future := now.Add(time.Minute)
	enrollment.NextActionAt = &future
	if enrollment.Due(now) {
		t.Fatalf("future next action is not due")
	}

	enrollment.NextActionAt = &at
	enrollment.Status = EnrollmentStatusExited
	if enrollment.Due(now) {
		t.Fatalf("non-active enrollment is never due")
	}
}

func TestEnrollmentTerminalTransitions(t *testing.T) {
	now := time.Date(2025, 6, 20, 8, 0, 0, 0, time.UTC)
	at := now.Add(-time.Hour)

	enrollment := AutomationEnrollment{Status: EnrollmentStatusActive, NextActionAt: &at}
	enrollment.Complete(now)
	if enrollment.Status != EnrollmentStatusCompleted {
		t.Fatalf("got %s", enrollment.Status)
	}
	if enrollment.NextActionAt != nil {
		t.Fatalf("completed enrollments must have no pending action")
	}
	if enrollment.CompletedAt == nil || !enrollment.CompletedAt.Equal(now) {
		t.Fatalf("completed_at: got %v", enrollment.CompletedAt)
	}

	exited := AutomationEnrollment{Status: EnrollmentStatusActive, NextActionAt: &at}
	exited.Exit(ExitReasonSuppressed, now)
	if exited.Status != EnrollmentStatusExited || exited.ExitReason != ExitReasonSuppressed {
		t.Fatalf("exit: status=%s reason=%s", exited.Status, exited.ExitReason)
	}
	if exited.NextActionAt != nil {
		t.Fatalf("exited enrollments must have no pending action")
	}
}
