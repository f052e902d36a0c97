package worker

import (
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/models"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

// Dispatcher delivers scheduled emails that have come due. It owns the
// just-in-time suppression and address checks, merge-field rendering, and
// the retry bookkeeping around the provider call.
type Dispatcher struct {
	DB     *gorm.DB
	Mailer utils.Mailer
	Logger *log.Logger

	FromEmail string
	FromName  string
	ReplyTo   string

	// BaseURL and TokenSecret back the per-recipient unsubscribe links.
	BaseURL     string
	TokenSecret string

	AgencySignature string
	ReviewLink      string
	RatingLink      string

	// RevalidationMaxAge is how stale a verification result may be before
	// a pre-send recheck is required.
	RevalidationMaxAge time.Duration

	BatchSize int
}

// CycleSummary reports one dispatch pass.
type CycleSummary struct {
	Claimed int      `json:"claimed"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

const defaultDispatchBatch = 200

// DispatchDue claims and delivers all pending sends whose scheduled time has
// arrived.
func (d *Dispatcher) DispatchDue(now time.Time) CycleSummary {
	var summary CycleSummary

	batch := d.BatchSize
	if batch <= 0 {
		batch = defaultDispatchBatch
	}

	var due []models.ScheduledEmail
	err := d.DB.Where("status = ? AND scheduled_for <= ?", models.ScheduledStatusPending, now).
		Order("scheduled_for ASC").
		Limit(batch).
		Find(&due).Error
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("loading due emails: %v", err))
		return summary
	}

	for i := range due {
		scheduled := &due[i]

		// Claim with a conditional update so a concurrent pass cannot
		// double-send the same row.
		claim := d.DB.Model(&models.ScheduledEmail{}).
			Where("id = ? AND status = ?", scheduled.ID, models.ScheduledStatusPending).
			Update("status", models.ScheduledStatusProcessing)
		if claim.Error != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("email %d: claiming: %v", scheduled.ID, claim.Error))
			continue
		}
		if claim.RowsAffected == 0 {
			continue
		}
		scheduled.Status = models.ScheduledStatusProcessing
		summary.Claimed++

		if err := d.dispatchOne(scheduled, now, &summary); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("email %d: %v", scheduled.ID, err))
		}
	}
	return summary
}

func (d *Dispatcher) dispatchOne(scheduled *models.ScheduledEmail, now time.Time, summary *CycleSummary) error {
	var account models.Account
	if err := d.DB.Preload("Policies").First(&account, scheduled.AccountID).Error; err != nil {
		d.cancel(scheduled, "account not found")
		summary.Skipped++
		return fmt.Errorf("loading account %d: %w", scheduled.AccountID, err)
	}

	// Suppression and unsubscribe state is checked at send time, not at
	// scheduling time, so a bounce between the two still stops the send.
	if suppressed, _ := models.IsSuppressed(d.DB, account.Email); suppressed {
		d.cancelAndExit(scheduled, now, models.ExitReasonSuppressed, "recipient suppressed")
		summary.Skipped++
		return nil
	}
	if unsubscribed, _ := models.IsUnsubscribed(d.DB, account.Email, scheduled.AutomationID); unsubscribed {
		d.cancelAndExit(scheduled, now, models.ExitReasonUnsubscribed, "recipient unsubscribed")
		summary.Skipped++
		return nil
	}

	if account.NeedsRevalidation(now, d.RevalidationMaxAge) {
		status := utils.CheckEmailAddress(account.Email)
		d.DB.Model(&account).Updates(map[string]interface{}{
			"email_validation_status": status,
			"email_validated_at":      now,
		})
		if status == utils.ValidationInvalid {
			d.cancelAndExit(scheduled, now, models.ExitReasonInvalidAddress, "address failed verification")
			summary.Skipped++
			return nil
		}
	}

	merge := utils.MergeData{
		FirstName:    account.FirstName,
		LastName:     account.LastName,
		BusinessName: account.BusinessName,
		AgentName:    account.AgentName,
		ReviewLink:   d.ReviewLink,
		RatingLink:   d.RatingLink,
		Signature:    d.AgencySignature,
		UnsubLink:    utils.UnsubscribeURL(d.BaseURL, account.Email, scheduled.AutomationID, d.TokenSecret),
	}
	subject := utils.RenderMerge(scheduled.Subject, merge)
	bodyHTML := utils.AppendUnsubscribeFooter(utils.RenderMerge(scheduled.BodyHTML, merge), merge.UnsubLink)
	bodyText := utils.RenderMerge(scheduled.BodyText, merge)

	// The log row exists before the provider call so a webhook arriving
	// quickly always has something to attach to.
	emailLog := models.EmailLog{
		AutomationID: scheduled.AutomationID,
		EnrollmentID: scheduled.EnrollmentID,
		AccountID:    scheduled.AccountID,
		NodeID:       scheduled.NodeID,
		Recipient:    account.Email,
		Subject:      subject,
		BodyHTML:     bodyHTML,
		Status:       models.LogStatusQueued,
	}
	if err := d.DB.Create(&emailLog).Error; err != nil {
		// The claim must not strand the row in processing: the failure
		// counts as an attempt and the email goes back to pending.
		scheduled.RegisterFailure("storing email log: " + err.Error())
		d.DB.Save(scheduled)
		if scheduled.Status == models.ScheduledStatusFailed {
			summary.Failed++
		}
		return fmt.Errorf("creating email log: %w", err)
	}

	messageID, err := d.Mailer.Send(utils.OutboundEmail{
		To:         account.Email,
		ToName:     account.DisplayName(),
		FromEmail:  d.FromEmail,
		FromName:   d.FromName,
		ReplyTo:    d.ReplyTo,
		Subject:    subject,
		BodyHTML:   bodyHTML,
		BodyText:   bodyText,
		EmailLogID: emailLog.ID,
		MessageID:  utils.NewMessageID(d.FromEmail),
	})
	if err != nil {
		scheduled.RegisterFailure(err.Error())
		if scheduled.Status == models.ScheduledStatusFailed {
			// Out of retries: the log survives with the provider's error
			// so the failure stays diagnosable.
			emailLog.MarkFailed(now, err.Error())
			d.DB.Save(&emailLog)
			scheduled.EmailLogID = &emailLog.ID
			sentry.CaptureException(fmt.Errorf("email %d permanently failed after %d attempts: %w",
				scheduled.ID, scheduled.Attempts, err))
			summary.Failed++
		} else {
			// The retry creates a fresh log row, so this one goes.
			d.DB.Delete(&emailLog)
		}
		d.DB.Save(scheduled)
		if d.Logger != nil {
			d.Logger.Printf("⚠️ Send attempt %d failed for email %d: %v", scheduled.Attempts, scheduled.ID, err)
		}
		return nil
	}

	sentAt := now
	d.DB.Model(&emailLog).Updates(map[string]interface{}{
		"provider_message_id": messageID,
		"status":              models.LogStatusSent,
		"sent_at":             sentAt,
	})
	scheduled.Status = models.ScheduledStatusSent
	scheduled.SentAt = &sentAt
	scheduled.EmailLogID = &emailLog.ID
	d.DB.Save(scheduled)

	d.DB.Model(&models.AutomationEnrollment{}).Where("id = ?", scheduled.EnrollmentID).
		Update("emails_sent", gorm.Expr("emails_sent + 1"))
	d.DB.Model(&models.Automation{}).Where("id = ?", scheduled.AutomationID).
		Updates(map[string]interface{}{
			"sent_count":  gorm.Expr("sent_count + 1"),
			"last_run_at": now,
		})

	summary.Sent++
	return nil
}

func (d *Dispatcher) cancel(scheduled *models.ScheduledEmail, reason string) {
	d.DB.Model(scheduled).Updates(map[string]interface{}{
		"status":     models.ScheduledStatusCancelled,
		"last_error": reason,
	})
}

// cancelAndExit cancels the send and removes the enrollment from the
// automation, so later nodes never fire for a bad recipient.
func (d *Dispatcher) cancelAndExit(scheduled *models.ScheduledEmail, now time.Time, exitReason string, cancelReason string) {
	d.cancel(scheduled, cancelReason)

	var enrollment models.AutomationEnrollment
	if err := d.DB.First(&enrollment, scheduled.EnrollmentID).Error; err != nil {
		return
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return
	}
	enrollment.Exit(exitReason, now)
	d.DB.Save(&enrollment)
	d.DB.Model(&models.ScheduledEmail{}).
		Where("enrollment_id = ? AND status = ?", enrollment.ID, models.ScheduledStatusPending).
		Update("status", models.ScheduledStatusCancelled)
	if d.Logger != nil {
		d.Logger.Printf("🚫 Exited enrollment %d (%s)", enrollment.ID, exitReason)
	}
}
