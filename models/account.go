package models

import (
	"time"

	"gorm.io/gorm"
)

// Account represents a business account (policyholder) targeted by automations
type Account struct {
	gorm.Model

	Email        string `gorm:"not null;index" json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	BusinessName string `json:"business_name"`
	Phone        string `json:"phone"`

	// Book-of-business attributes consumed by the segment evaluator
	AccountType   string     `gorm:"index" json:"account_type"` // Personal, Commercial, Benefits
	Status        string     `gorm:"default:'active';index" json:"status"`
	CustomerSince *time.Time `json:"customer_since"`
	RenewalDate   *time.Time `json:"renewal_date"`
	AgentName     string     `json:"agent_name"`
	Carrier       string     `json:"carrier"`
	Source        string     `json:"source"` // manual, csv, api

	// Email deliverability state, cached by the dispatcher's JIT revalidation
	EmailValidationStatus string     `json:"email_validation_status"` // valid, invalid, unknown
	EmailValidatedAt      *time.Time `json:"email_validated_at"`

	// Relations
	Policies    []Policy               `gorm:"foreignKey:AccountID" json:"policies,omitempty"`
	Enrollments []AutomationEnrollment `gorm:"foreignKey:AccountID" json:"enrollments,omitempty"`
}

// Policy represents a single policy attached to an account
type Policy struct {
	gorm.Model
	AccountID uint `gorm:"not null;index" json:"account_id"`

	PolicyType    string     `gorm:"not null;index" json:"policy_type"` // auto, home, umbrella, life, commercial
	PolicyNumber  string     `json:"policy_number"`
	Carrier       string     `json:"carrier"`
	Premium       float64    `gorm:"default:0" json:"premium"`
	EffectiveDate *time.Time `json:"effective_date"`
	RenewalDate   *time.Time `json:"renewal_date"`
	Status        string     `gorm:"default:'active'" json:"status"`

	Account Account `json:"-"`
}

// NeedsRevalidation reports whether the account's address verdict is stale
// enough that the dispatcher should re-check it before sending.
func (a *Account) NeedsRevalidation(now time.Time, maxAge time.Duration) bool {
	if a.EmailValidationStatus == "" || a.EmailValidationStatus == "unknown" {
		return true
	}
	if a.EmailValidatedAt == nil {
		return true
	}
	return now.Sub(*a.EmailValidatedAt) > maxAge
}
