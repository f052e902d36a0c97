package worker

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/models"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

// Enroller evaluates every active automation's population filter and creates
// enrollments for newly qualifying accounts.
type Enroller struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewEnroller(db *gorm.DB, logger *log.Logger) *Enroller {
	return &Enroller{DB: db, Logger: logger}
}

// EnrollmentResult summarizes one enrollment pass.
type EnrollmentResult struct {
	Evaluated int      `json:"evaluated"`
	Enrolled  int      `json:"enrolled"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Run evaluates all active automations against the account base. Each
// (automation, account) pair is an independent unit of work: a failure on one
// never aborts the pass, and automations do not compete for enrollment slots.
func (e *Enroller) Run(now time.Time) EnrollmentResult {
	var result EnrollmentResult

	var automations []models.Automation
	if err := e.DB.Where("status = ?", models.AutomationStatusActive).Find(&automations).Error; err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("loading automations: %v", err))
		return result
	}

	for i := range automations {
		automation := &automations[i]
		e.runAutomation(automation, now, &result)
		e.DB.Model(automation).Update("last_run_at", now)
	}
	return result
}

func (e *Enroller) runAutomation(automation *models.Automation, now time.Time, result *EnrollmentResult) {
	var accounts []models.Account
	err := e.DB.Preload("Policies").FindInBatches(&accounts, 500, func(tx *gorm.DB, batch int) error {
		for i := range accounts {
			account := &accounts[i]
			result.Evaluated++

			matched, _ := utils.Evaluate(automation.Filter, account.Snapshot(), now)
			if !matched {
				continue
			}

			switch e.enroll(automation, account, now) {
			case enrollCreated:
				result.Enrolled++
			case enrollSkipped:
				result.Skipped++
			case enrollFailed:
				result.Errors = append(result.Errors,
					fmt.Sprintf("automation %d account %d: enroll failed", automation.ID, account.ID))
			}
		}
		return nil
	}).Error
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("automation %d: scanning accounts: %v", automation.ID, err))
	}
}

type enrollOutcome int

const (
	enrollCreated enrollOutcome = iota
	enrollSkipped
	enrollFailed
)

// enroll applies the re-enrollment gate and creates the enrollment. The
// one-active invariant is owned by the store's partial unique index, so a
// concurrent duplicate surfaces as a constraint violation and is treated as
// "already enrolled", not an error.
func (e *Enroller) enroll(automation *models.Automation, account *models.Account, now time.Time) enrollOutcome {
	var last models.AutomationEnrollment
	err := e.DB.Where("automation_id = ? AND account_id = ?", automation.ID, account.ID).
		Order("enrolled_at DESC").
		First(&last).Error

	enrollmentCount := 1
	if err == nil {
		if last.Status == models.EnrollmentStatusActive || last.Status == models.EnrollmentStatusPaused {
			return enrollSkipped
		}
		if automation.MaxEnrollments != nil && last.EnrollmentCount >= *automation.MaxEnrollments {
			return enrollSkipped
		}
		if !CooldownElapsed(automation.EnrollmentCooldownDays, last.EnrolledAt, now) {
			return enrollSkipped
		}
		enrollmentCount = last.EnrollmentCount + 1
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		e.Logger.Printf("Error loading prior enrollment for account %d: %v", account.ID, err)
		return enrollFailed
	}

	if automation.DistributeEvenly && !OnDistributionSlot(automation.EnrollmentCooldownDays, account.ID, now) {
		return enrollSkipped
	}

	first := automation.Nodes
	if len(first) == 0 {
		return enrollSkipped
	}

	enrollment := models.AutomationEnrollment{
		AutomationID:    automation.ID,
		AccountID:       account.ID,
		Status:          models.EnrollmentStatusActive,
		CurrentNodeID:   first[0].ID,
		EnrolledAt:      now,
		NextActionAt:    &now,
		EnrollmentCount: enrollmentCount,
	}

	if err := e.DB.Create(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			// Another worker won the race; the invariant held.
			return enrollSkipped
		}
		e.Logger.Printf("Failed to create enrollment for account %d: %v", account.ID, err)
		return enrollFailed
	}

	e.DB.Model(automation).Update("enrolled_count", gorm.Expr("enrolled_count + 1"))
	return enrollCreated
}

// CooldownElapsed reports whether the minimum gap since the previous
// enrollment has passed. The boundary instant itself is eligible.
func CooldownElapsed(cooldownDays int, lastEnrolledAt, now time.Time) bool {
	if cooldownDays <= 0 {
		return true
	}
	return !now.Before(lastEnrolledAt.AddDate(0, 0, cooldownDays))
}

// OnDistributionSlot staggers eligible accounts across the cooldown window
// instead of firing them all on the first eligible day: each account owns one
// deterministic day-slot of the window, keyed by its id.
func OnDistributionSlot(cooldownDays int, accountID uint, now time.Time) bool {
	if cooldownDays <= 1 {
		return true
	}
	dayIndex := int(now.Unix() / 86400)
	return dayIndex%cooldownDays == int(accountID)%cooldownDays
}
