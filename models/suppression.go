package models

import (
	"strings"

	"gorm.io/gorm"
)

// Suppression reasons
const (
	SuppressionReasonHardBounce = "hard_bounce"
	SuppressionReasonSpamReport = "spam_report"
	SuppressionReasonManual     = "manual"
)

// Suppression is a global, permanent block on sending to an address. Written
// by the delivery event processor on hard bounces and spam reports; consulted
// by the dispatcher before every send.
type Suppression struct {
	gorm.Model
	Email  string `gorm:"not null;uniqueIndex" json:"email"`
	Reason string `gorm:"not null" json:"reason"`
	Source string `json:"source"` // webhook, manual
	Detail string `json:"detail"`
}

// Unsubscribe is an opt-out, either global (AutomationID nil) or scoped to a
// single automation. Reversible only by explicit resubscribe.
type Unsubscribe struct {
	gorm.Model
	Email        string `gorm:"not null;index" json:"email"`
	AutomationID *uint  `gorm:"index" json:"automation_id,omitempty"`

	Reason    string `json:"reason"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	Automation *Automation `json:"automation,omitempty"`
}

// IsSuppressed reports whether the address is on the global suppression list.
func IsSuppressed(db *gorm.DB, email string) (bool, error) {
	var count int64
	err := db.Model(&Suppression{}).
		Where("email = ?", strings.ToLower(email)).
		Count(&count).Error
	return count > 0, err
}

// IsUnsubscribed reports whether the address opted out globally or from the
// given automation.
func IsUnsubscribed(db *gorm.DB, email string, automationID uint) (bool, error) {
	var count int64
	err := db.Model(&Unsubscribe{}).
		Where("email = ? AND (automation_id IS NULL OR automation_id = ?)",
			strings.ToLower(email), automationID).
		Count(&count).Error
	return count > 0, err
}

// Suppress inserts a suppression row, tolerating concurrent duplicates.
func Suppress(db *gorm.DB, email, reason, source, detail string) error {
	record := Suppression{
		Email:  strings.ToLower(email),
		Reason: reason,
		Source: source,
		Detail: detail,
	}
	return db.Where("email = ?", record.Email).FirstOrCreate(&record).Error
}

// RecordUnsubscribe inserts an opt-out row. automationID of zero records a
// global opt-out.
func RecordUnsubscribe(db *gorm.DB, email string, automationID uint, reason, ip, userAgent string) error {
	record := Unsubscribe{
		Email:     strings.ToLower(email),
		Reason:    reason,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if automationID != 0 {
		record.AutomationID = &automationID
	}
	return db.Create(&record).Error
}
