package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Scheduled email statuses
const (
	ScheduledStatusPending    = "pending"
	ScheduledStatusProcessing = "processing"
	ScheduledStatusSent       = "sent"
	ScheduledStatusFailed     = "failed"
	ScheduledStatusCancelled  = "cancelled"
)

// Email log statuses, ordered by rank for monotonic application
const (
	LogStatusQueued       = "queued"
	LogStatusSent         = "sent"
	LogStatusDelivered    = "delivered"
	LogStatusOpened       = "opened"
	LogStatusClicked      = "clicked"
	LogStatusBounced      = "bounced"
	LogStatusDropped      = "dropped"
	LogStatusSpam         = "spam"
	LogStatusUnsubscribed = "unsubscribed"
	LogStatusFailed       = "failed"
)

// ScheduledEmail is a materialized, not-yet-sent instance of a send_email
// node for one enrollment. It is consumed exactly once by the dispatcher.
type ScheduledEmail struct {
	gorm.Model
	AutomationID uint   `gorm:"not null;index" json:"automation_id"`
	EnrollmentID uint   `gorm:"not null;index" json:"enrollment_id"`
	AccountID    uint   `gorm:"not null;index" json:"account_id"`
	NodeID       string `gorm:"not null" json:"node_id"`

	Subject  string `gorm:"not null" json:"subject"`
	BodyHTML string `gorm:"type:text" json:"body_html"`
	BodyText string `gorm:"type:text" json:"body_text"`

	ScheduledFor time.Time `gorm:"not null;index" json:"scheduled_for"`
	Status       string    `gorm:"default:'pending';index" json:"status"`
	Attempts     int       `gorm:"default:0" json:"attempts"`
	MaxAttempts  int       `gorm:"default:3" json:"max_attempts"`
	LastError    string    `json:"last_error"`

	SentAt     *time.Time `json:"sent_at"`
	EmailLogID *uint      `json:"email_log_id"`

	// Relations
	Automation Automation           `json:"-"`
	Enrollment AutomationEnrollment `json:"-"`
	Account    Account              `json:"-"`
}

// RegisterFailure records one failed dispatch attempt. While attempts remain
// within MaxAttempts the email returns to pending for the next tick; once the
// cap is exhausted it fails for good with the provider's error retained.
func (s *ScheduledEmail) RegisterFailure(errMsg string) {
	s.Attempts++
	s.LastError = errMsg
	if s.Attempts > s.MaxAttempts {
		s.Status = ScheduledStatusFailed
	} else {
		s.Status = ScheduledStatusPending
	}
}

// EmailLog is the durable record of one attempted send, created before the
// provider call and mutated only by the delivery event processor afterwards.
type EmailLog struct {
	gorm.Model
	AutomationID uint   `gorm:"not null;index" json:"automation_id"`
	EnrollmentID uint   `gorm:"not null;index" json:"enrollment_id"`
	AccountID    uint   `gorm:"not null;index" json:"account_id"`
	NodeID       string `gorm:"not null;index" json:"node_id"`

	Recipient string `gorm:"not null;index" json:"recipient"`
	Subject   string `json:"subject"`
	BodyHTML  string `gorm:"type:text" json:"body_html"`

	ProviderMessageID string `gorm:"index" json:"provider_message_id"`
	Status            string `gorm:"default:'queued';index" json:"status"`

	SentAt         *time.Time `json:"sent_at"`
	DeliveredAt    *time.Time `json:"delivered_at"`
	FirstOpenedAt  *time.Time `json:"first_opened_at"`
	LastOpenedAt   *time.Time `json:"last_opened_at"`
	OpenCount      int        `gorm:"default:0" json:"open_count"`
	FirstClickedAt *time.Time `json:"first_clicked_at"`
	LastClickedAt  *time.Time `json:"last_clicked_at"`
	ClickCount     int        `gorm:"default:0" json:"click_count"`
	BouncedAt      *time.Time `json:"bounced_at"`
	BounceType     string     `json:"bounce_type"` // hard, soft, block
	BounceReason   string     `json:"bounce_reason"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at"`
	FailedAt       *time.Time `json:"failed_at"`
	ErrorMessage   string     `json:"error_message"`

	// Relations
	Clicks []EmailClick `gorm:"foreignKey:EmailLogID" json:"clicks,omitempty"`
}

// EmailClick records one clicked link (normalized from webhook click events)
type EmailClick struct {
	gorm.Model
	EmailLogID uint      `gorm:"not null;index" json:"email_log_id"`
	URL        string    `gorm:"not null" json:"url"`
	ClickedAt  time.Time `gorm:"not null" json:"clicked_at"`
	Count      int       `gorm:"default:1" json:"count"`
}

// statusRank orders log statuses so event application never regresses a
// better status to a worse one. Bounced, dropped, spam and failed are
// terminal regardless of rank.
var statusRank = map[string]int{
	LogStatusQueued:       0,
	LogStatusSent:         1,
	LogStatusDelivered:    2,
	LogStatusOpened:       3,
	LogStatusClicked:      4,
	LogStatusUnsubscribed: 5,
	LogStatusBounced:      6,
	LogStatusDropped:      6,
	LogStatusSpam:         6,
	LogStatusFailed:       6,
}

func (l *EmailLog) terminal() bool {
	switch l.Status {
	case LogStatusBounced, LogStatusDropped, LogStatusSpam, LogStatusFailed:
		return true
	}
	return false
}

func (l *EmailLog) upgradeStatus(to string) {
	if l.terminal() {
		return
	}
	if statusRank[to] > statusRank[l.Status] {
		l.Status = to
	}
}

// ApplyDelivered folds a delivered event into the log.
func (l *EmailLog) ApplyDelivered(at time.Time) {
	if l.DeliveredAt == nil {
		l.DeliveredAt = &at
	}
	l.upgradeStatus(LogStatusDelivered)
}

// ApplyOpen folds an open event into the log. The first_opened_at sentinel is
// set once; the counter increments on every open so repeated genuine opens
// still count while the milestone timestamp holds.
func (l *EmailLog) ApplyOpen(at time.Time) {
	if l.FirstOpenedAt == nil {
		l.FirstOpenedAt = &at
	}
	l.LastOpenedAt = &at
	l.OpenCount++
	l.upgradeStatus(LogStatusOpened)
}

// ApplyClick folds a click event into the log and returns the per-link click
// row to record (nil when the event carries no URL).
func (l *EmailLog) ApplyClick(at time.Time, url string) *EmailClick {
	if l.FirstClickedAt == nil {
		l.FirstClickedAt = &at
	}
	l.LastClickedAt = &at
	l.ClickCount++
	l.upgradeStatus(LogStatusClicked)
	if url == "" {
		return nil
	}
	return &EmailClick{EmailLogID: l.ID, URL: url, ClickedAt: at}
}

// ApplyBounce folds a bounce into the log. Bounced is terminal. Returns true
// when the bounce is hard and the address should be globally suppressed.
func (l *EmailLog) ApplyBounce(at time.Time, bounceType, reason string) bool {
	if l.terminal() {
		return false
	}
	if l.BouncedAt == nil {
		l.BouncedAt = &at
	}
	l.BounceType = bounceType
	l.BounceReason = reason
	l.Status = LogStatusBounced
	return bounceType != "soft"
}

// ApplyDropped marks the log terminally dropped.
func (l *EmailLog) ApplyDropped(at time.Time, reason string) {
	if l.terminal() {
		return
	}
	if l.FailedAt == nil {
		l.FailedAt = &at
	}
	if reason != "" {
		l.ErrorMessage = reason
	}
	l.Status = LogStatusDropped
}

// ApplySpamReport marks the log terminally spam-reported. Spam reports always
// suppress the address globally.
func (l *EmailLog) ApplySpamReport(at time.Time) {
	if l.terminal() {
		return
	}
	if l.FailedAt == nil {
		l.FailedAt = &at
	}
	l.Status = LogStatusSpam
}

// MarkFailed records a permanent dispatch failure so the log survives as the
// diagnostic record of the exhausted send.
func (l *EmailLog) MarkFailed(at time.Time, errMsg string) {
	if l.terminal() {
		return
	}
	if l.FailedAt == nil {
		l.FailedAt = &at
	}
	l.ErrorMessage = errMsg
	l.Status = LogStatusFailed
}

// ApplyUnsubscribe records the unsubscribe milestone on the log.
func (l *EmailLog) ApplyUnsubscribe(at time.Time) {
	if l.UnsubscribedAt == nil {
		l.UnsubscribedAt = &at
	}
	l.upgradeStatus(LogStatusUnsubscribed)
}

// Opened reports whether the message was ever opened; condition nodes consult
// this through the step executor.
func (l *EmailLog) Opened() bool {
	return l.FirstOpenedAt != nil
}

// StripProviderSuffix normalizes an inbound provider message id. The provider
// appends an internal routing suffix after the first dot which is not present
// in the id captured at send time.
func StripProviderSuffix(messageID string) string {
	if i := strings.Index(messageID, "."); i > 0 {
		return messageID[:i]
	}
	return messageID
}
