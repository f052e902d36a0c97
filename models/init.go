package models

import (
	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

// Migrate runs the schema migration plus the explicit steps AutoMigrate
// cannot express (partial unique indexes).
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Account{},
		&Policy{},
		&Automation{},
		&AutomationEnrollment{},
		&ScheduledEmail{},
		&EmailLog{},
		&EmailClick{},
		&Suppression{},
		&Unsubscribe{},
	); err != nil {
		return err
	}
	return EnsureEnrollmentIndexes(db)
}

// CreateDefaultAutomations seeds the protected default automations on first
// boot. Defaults carry IsDefault=true and are rejected by delete (see
// PreventProtectedDelete).
func CreateDefaultAutomations(db *gorm.DB) error {
	defaults := []Automation{
		{
			Name:        "New Customer Welcome",
			Description: "Welcome series for accounts in their first month",
			Status:      AutomationStatusDraft,
			IsDefault:   true,
			Filter: utils.FilterSpec{Groups: []utils.FilterGroup{{
				Rules: []utils.FilterRule{
					{Field: "status", Operator: "equals", Value: "active"},
					{Field: "customer_since", Operator: "in_last_days", Value: "30"},
				},
			}}},
			MaxEnrollments:         utils.Pointer(1),
			EnrollmentCooldownDays: 365,
			Nodes: []WorkflowNode{
				{ID: "trigger", Type: NodeTypeTrigger, Title: "New customer"},
				{ID: "welcome", Type: NodeTypeSendEmail, Title: "Welcome email", Config: NodeConfig{
					Subject:  "Welcome, {{first_name}}!",
					BodyHTML: "<p>Hi {{first_name}},</p><p>Thanks for trusting us with your coverage. {{signature}}</p>",
				}},
				{ID: "wait-7", Type: NodeTypeDelay, Title: "Wait a week", Config: NodeConfig{DelayDays: 7}},
				{ID: "review-ask", Type: NodeTypeSendEmail, Title: "Review request", Config: NodeConfig{
					Subject:  "How did we do?",
					BodyHTML: "<p>Hi {{first_name}}, would you leave us a review? {{review_link}}</p><p>{{signature}}</p>",
				}},
			},
		},
		{
			Name:        "Renewal Reminder",
			Description: "Nudges accounts with a policy renewing in the next 30 days",
			Status:      AutomationStatusDraft,
			IsDefault:   true,
			Filter: utils.FilterSpec{Groups: []utils.FilterGroup{{
				Rules: []utils.FilterRule{
					{Field: "status", Operator: "equals", Value: "active"},
					{Field: "policy_renewal_dates", Operator: "in_next_days", Value: "30"},
				},
			}}},
			EnrollmentCooldownDays: 300,
			DistributeEvenly:       true,
			Nodes: []WorkflowNode{
				{ID: "trigger", Type: NodeTypeTrigger, Title: "Renewal approaching"},
				{ID: "reminder", Type: NodeTypeSendEmail, Title: "Renewal reminder", Config: NodeConfig{
					Subject:  "Your policy renews soon",
					BodyHTML: "<p>Hi {{first_name}}, your policy is coming up for renewal. Reply to this email with any questions.</p><p>{{signature}}</p>",
				}},
			},
		},
	}

	for _, automation := range defaults {
		if err := db.FirstOrCreate(&automation, "name = ? AND is_default = true", automation.Name).Error; err != nil {
			return err
		}
	}
	return nil
}
