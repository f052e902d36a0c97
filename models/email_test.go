package models

import (
	"testing"
	"time"
)

var eventTime = time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)

func TestEmailLogStatusProgression(t *testing.T) {
	emailLog := EmailLog{Status: LogStatusSent}

	emailLog.ApplyDelivered(eventTime)
	if emailLog.Status != LogStatusDelivered {
		t.Fatalf("after delivered: got %s", emailLog.Status)
	}

	emailLog.ApplyOpen(eventTime.Add(time.Hour))
	if emailLog.Status != LogStatusOpened {
		t.Fatalf("after open: got %s", emailLog.Status)
	}

	// A late delivered event must not regress the status
	emailLog.ApplyDelivered(eventTime.Add(2 * time.Hour))
	if emailLog.Status != LogStatusOpened {
		t.Fatalf("late delivered regressed status to %s", emailLog.Status)
	}

	emailLog.ApplyClick(eventTime.Add(3*time.Hour), "https://example.com/quote")
	if emailLog.Status != LogStatusClicked {
		t.Fatalf("after click: got %s", emailLog.Status)
	}
}

func TestEmailLogDuplicateOpens(t *testing.T) {
	emailLog := EmailLog{Status: LogStatusDelivered}

	first := eventTime
	second := eventTime.Add(30 * time.Minute)
	emailLog.ApplyOpen(first)
	emailLog.ApplyOpen(second)
	emailLog.ApplyOpen(second.Add(time.Minute))

	if emailLog.OpenCount != 3 {
		t.Fatalf("open count: got %d, want 3", emailLog.OpenCount)
	}
	if emailLog.FirstOpenedAt == nil || !emailLog.FirstOpenedAt.Equal(first) {
		t.Fatalf("first_opened_at must hold the first open, got %v", emailLog.FirstOpenedAt)
	}
	if emailLog.LastOpenedAt == nil || emailLog.LastOpenedAt.Equal(first) {
		t.Fatalf("last_opened_at should track the latest open")
	}
	if !emailLog.Opened() {
		t.Fatalf("Opened() should be true after any open")
	}
}

func TestEmailLogBounceIsTerminal(t *testing.T) {
	emailLog := EmailLog{Status: LogStatusDelivered}

	suppress := emailLog.ApplyBounce(eventTime, "bounce", "550 user unknown")
	if !suppress {
		t.Fatalf("hard bounce should request suppression")
	}
	if emailLog.Status != LogStatusBounced {
		t.Fatalf("after bounce: got %s", emailLog.Status)
	}

	// Later engagement events cannot resurrect a bounced log
	emailLog.ApplyOpen(eventTime.Add(time.Hour))
	if emailLog.Status != LogStatusBounced {
		t.Fatalf("open after bounce changed status to %s", emailLog.Status)
	}
	if emailLog.OpenCount != 1 {
		// counters still record the event, status does not move
		t.Fatalf("open count: got %d", emailLog.OpenCount)
	}
}

func TestEmailLogTerminalStateCannotBeOverwritten(t *testing.T) {
	emailLog := EmailLog{Status: LogStatusDelivered}

	emailLog.ApplyBounce(eventTime, "bounce", "550 user unknown")
	if emailLog.Status != LogStatusBounced {
		t.Fatalf("after bounce: got %s", emailLog.Status)
	}

	// One terminal state must not replace another
	emailLog.ApplyDropped(eventTime.Add(time.Hour), "bounced address")
	if emailLog.Status != LogStatusBounced {
		t.Fatalf("dropped overwrote terminal bounced: got %s", emailLog.Status)
	}

	emailLog.ApplySpamReport(eventTime.Add(2 * time.Hour))
	if emailLog.Status != LogStatusBounced {
		t.Fatalf("spamreport overwrote terminal bounced: got %s", emailLog.Status)
	}

	// A repeated bounce on a terminal log requests no second suppression
	if emailLog.ApplyBounce(eventTime.Add(3*time.Hour), "bounce", "550 again") {
		t.Fatalf("bounce on terminal log should not suppress again")
	}

	emailLog.MarkFailed(eventTime.Add(4*time.Hour), "late failure")
	if emailLog.Status != LogStatusBounced {
		t.Fatalf("mark failed overwrote terminal bounced: got %s", emailLog.Status)
	}
}

func TestEmailLogMarkFailed(t *testing.T) {
	emailLog := EmailLog{Status: LogStatusQueued}

	emailLog.MarkFailed(eventTime, "provider rejected send (500)")
	if emailLog.Status != LogStatusFailed {
		t.Fatalf("after mark failed: got %s", emailLog.Status)
	}
	if emailLog.FailedAt == nil || !emailLog.FailedAt.Equal(eventTime) {
		t.Fatalf("failed_at should hold the failure time, got %v", emailLog.FailedAt)
	}
	if emailLog.ErrorMessage != "provider rejected send (500)" {
		t.Fatalf("error message: got %q", emailLog.ErrorMessage)
	}

	// A failed log is terminal like the webhook-driven failure states
	emailLog.ApplyDelivered(eventTime.Add(time.Hour))
	if emailLog.Status != LogStatusFailed {
		t.Fatalf("delivered resurrected a failed log: got %s", emailLog.Status)
	}
}

func TestEmailLogSoftBounceDoesNotSuppress(t *testing.T) {
	emailLog := EmailLog{Status: LogStatusSent}
	if emailLog.ApplyBounce(eventTime, "soft", "mailbox full") {
		t.Fatalf("soft bounce must not suppress the address")
	}
	if emailLog.Status != LogStatusBounced {
		t.Fatalf("soft bounce still bounces the message, got %s", emailLog.Status)
	}
}

func TestEmailLogClickRecords(t *testing.T) {
	emailLog := EmailLog{Status: LogStatusDelivered}
	emailLog.ID = 7

	click := emailLog.ApplyClick(eventTime, "https://example.com/review")
	if click == nil || click.EmailLogID != 7 || click.URL != "https://example.com/review" {
		t.Fatalf("click row: got %+v", click)
	}
	if emailLog.ApplyClick(eventTime, "") != nil {
		t.Fatalf("click without URL should not produce a row")
	}
	if emailLog.ClickCount != 2 {
		t.Fatalf("click count: got %d, want 2", emailLog.ClickCount)
	}
}

func TestScheduledEmailRetryTransitions(t *testing.T) {
	email := ScheduledEmail{Status: ScheduledStatusProcessing, Attempts: 2, MaxAttempts: 3}

	// The final allowed attempt still returns to pending
	email.RegisterFailure("connection reset")
	if email.Status != ScheduledStatusPending || email.Attempts != 3 {
		t.Fatalf("attempt 3: status=%s attempts=%d", email.Status, email.Attempts)
	}

	email.Status = ScheduledStatusProcessing
	email.RegisterFailure("provider rejected send (500)")
	if email.Status != ScheduledStatusFailed {
		t.Fatalf("attempt past the cap should fail permanently, got %s", email.Status)
	}
	if email.LastError != "provider rejected send (500)" {
		t.Fatalf("last error should hold the final failure, got %q", email.LastError)
	}
}

func TestStripProviderSuffix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc123.filter0001p1las1-12345-ABCDE", "abc123"},
		{"abc123", "abc123"},
		{"", ""},
		{".leading", ".leading"},
	}
	for _, tt := range tests {
		if got := StripProviderSuffix(tt.in); got != tt.want {
			t.Fatalf("StripProviderSuffix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
