package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusExited    = "exited"
	EnrollmentStatusPaused    = "paused"
)

// Exit reasons recorded on forced exits
const (
	ExitReasonSuppressed       = "suppressed"
	ExitReasonUnsubscribed     = "unsubscribed"
	ExitReasonAutomationPaused = "automation_paused"
	ExitReasonInvalidAddress   = "invalid_address"
)

// AutomationEnrollment is one account's live progress through one
// automation's workflow graph. At most one active enrollment may exist per
// (automation, account); the store enforces this with a partial unique index
// (see EnsureEnrollmentIndexes) so concurrent enroll attempts fail closed.
type AutomationEnrollment struct {
	gorm.Model
	AutomationID uint `gorm:"not null;index" json:"automation_id"`
	AccountID    uint `gorm:"not null;index" json:"account_id"`

	Status        string `gorm:"default:'active';index" json:"status"`
	CurrentNodeID string `json:"current_node_id"`
	CurrentBranch string `json:"current_branch"` // "", "yes" or "no"

	EnrolledAt   time.Time  `gorm:"not null" json:"enrolled_at"`
	NextActionAt *time.Time `gorm:"index" json:"next_action_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ExitedAt     *time.Time `json:"exited_at"`
	ExitReason   string     `json:"exit_reason"`

	// Per-enrollment engagement counters
	EmailsSent int `gorm:"default:0" json:"emails_sent"`
	Opens      int `gorm:"default:0" json:"opens"`
	Clicks     int `gorm:"default:0" json:"clicks"`

	// Incremented on every re-enrollment of the same account
	EnrollmentCount int `gorm:"default:1" json:"enrollment_count"`

	// Relations
	Automation Automation `json:"-"`
	Account    Account    `json:"-"`
}

// Complete transitions the enrollment to its terminal completed state.
func (e *AutomationEnrollment) Complete(now time.Time) {
	e.Status = EnrollmentStatusCompleted
	e.CompletedAt = &now
	e.NextActionAt = nil
}

// Exit force-terminates the enrollment with a reason.
func (e *AutomationEnrollment) Exit(reason string, now time.Time) {
	e.Status = EnrollmentStatusExited
	e.ExitedAt = &now
	e.ExitReason = reason
	e.NextActionAt = nil
}

// Due reports whether the enrollment has a pending action at or before now.
func (e *AutomationEnrollment) Due(now time.Time) bool {
	return e.Status == EnrollmentStatusActive &&
		e.NextActionAt != nil && !e.NextActionAt.After(now)
}

// EnsureEnrollmentIndexes creates the partial unique index that enforces the
// one-active-enrollment invariant at the data layer. AutoMigrate cannot
// express a predicate index, so this runs as an explicit migration step.
func EnsureEnrollmentIndexes(db *gorm.DB) error {
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_enrollments_one_active
		ON automation_enrollments (automation_id, account_id)
		WHERE status = 'active' AND deleted_at IS NULL
	`).Error
}
