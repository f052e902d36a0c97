package controller

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/models"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

// Provider signature headers
const (
	HeaderWebhookSignature = "X-Twilio-Email-Event-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Twilio-Email-Event-Webhook-Timestamp"
)

type WebhookController struct {
	DB        *gorm.DB
	PublicKey *ecdsa.PublicKey
	Logger    *log.Logger
}

func NewWebhookController(db *gorm.DB, publicKey *ecdsa.PublicKey, logger *log.Logger) *WebhookController {
	return &WebhookController{
		DB:        db,
		PublicKey: publicKey,
		Logger:    logger,
	}
}

// webhookEvent is one provider delivery event. The provider posts a JSON
// array of these.
type webhookEvent struct {
	Email       string `json:"email"`
	Timestamp   int64  `json:"timestamp"`
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
	SGEventID   string `json:"sg_event_id"`
	URL         string `json:"url"`
	Reason      string `json:"reason"`
	Type        string `json:"type"` // bounce classification
}

// HandleEvents authenticates and applies a batch of provider delivery
// events. Unknown message ids are logged and skipped; the batch always
// returns 200 once authenticated and parsed so the provider does not
// redeliver events we have already folded in.
func (wc *WebhookController) HandleEvents(c *fiber.Ctx) error {
	body := c.Body()

	signature := c.Get(HeaderWebhookSignature)
	timestamp := c.Get(HeaderWebhookTimestamp)
	if err := utils.VerifyWebhookSignature(wc.PublicKey, signature, timestamp, body); err != nil {
		wc.Logger.Printf("Webhook rejected: %v", err)
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid webhook signature", nil)
	}

	var events []webhookEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Malformed event payload", err)
	}

	applied, skipped := 0, 0
	for i := range events {
		ok, err := wc.applyEvent(&events[i])
		if err != nil {
			sentry.CaptureException(err)
			logrus.WithFields(logrus.Fields{
				"event":      events[i].Event,
				"message_id": events[i].SGMessageID,
			}).Errorf("applying delivery event: %v", err)
			skipped++
			continue
		}
		if ok {
			applied++
		} else {
			skipped++
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"applied": applied,
		"skipped": skipped,
	})
}

// applyEvent folds one event into its email log. Returns false when the
// event does not match any known message.
func (wc *WebhookController) applyEvent(event *webhookEvent) (bool, error) {
	messageID := models.StripProviderSuffix(event.SGMessageID)
	if messageID == "" {
		return false, nil
	}

	var emailLog models.EmailLog
	err := wc.DB.Where("provider_message_id = ?", messageID).First(&emailLog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Events for messages we did not send (or sent before the log
		// existed) are dropped, not errors.
		wc.Logger.Printf("Webhook event %s for unknown message %s, skipping", event.Event, messageID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	at := time.Unix(event.Timestamp, 0)
	if event.Timestamp == 0 {
		at = time.Now()
	}

	outcome := foldEvent(&emailLog, event, at)
	if outcome.unhandled {
		wc.Logger.Printf("Unhandled webhook event type %q for message %s", event.Event, messageID)
		return false, nil
	}
	if !outcome.matched {
		return false, nil
	}

	if outcome.click != nil {
		wc.DB.Create(outcome.click)
	}
	for _, col := range outcome.automationCols {
		wc.bumpCounter(emailLog.AutomationID, col)
	}
	if outcome.enrollmentCol != "" {
		wc.bumpEnrollmentCounter(emailLog.EnrollmentID, outcome.enrollmentCol)
	}
	if outcome.suppressReason != "" {
		if err := models.Suppress(wc.DB, emailLog.Recipient, outcome.suppressReason, "webhook", event.Reason); err != nil {
			return false, err
		}
	}
	if outcome.recordUnsub {
		if err := models.RecordUnsubscribe(wc.DB, emailLog.Recipient, outcome.unsubScope, "webhook", "", ""); err != nil {
			return false, err
		}
	}
	if outcome.exitReason != "" {
		wc.exitEnrollment(emailLog.EnrollmentID, outcome.exitReason, at)
	}

	if err := wc.DB.Save(&emailLog).Error; err != nil {
		return false, err
	}
	return true, nil
}

// foldOutcome lists the side effects one folded event requires beyond the
// mutated log row itself.
type foldOutcome struct {
	matched        bool
	unhandled      bool
	click          *models.EmailClick
	automationCols []string
	enrollmentCol  string // "opens" or "clicks"
	suppressReason string
	exitReason     string
	recordUnsub    bool
	unsubScope     uint // automation id for scoped opt-outs, 0 = global
}

// foldEvent applies one delivery event to the log and reports what else the
// event requires. It touches no storage, so applyEvent stays the only place
// that does.
func foldEvent(emailLog *models.EmailLog, event *webhookEvent, at time.Time) foldOutcome {
	out := foldOutcome{matched: true}

	switch event.Event {
	case "delivered":
		emailLog.ApplyDelivered(at)

	case "open":
		firstOpen := !emailLog.Opened()
		emailLog.ApplyOpen(at)
		if firstOpen {
			out.automationCols = append(out.automationCols, "open_count")
		}
		out.enrollmentCol = "opens"

	case "click":
		firstClick := emailLog.FirstClickedAt == nil
		out.click = emailLog.ApplyClick(at, event.URL)
		if firstClick {
			out.automationCols = append(out.automationCols, "click_count")
		}
		out.enrollmentCol = "clicks"

	case "bounce":
		if emailLog.ApplyBounce(at, event.Type, event.Reason) {
			out.suppressReason = models.SuppressionReasonHardBounce
			out.exitReason = models.ExitReasonSuppressed
		}
		out.automationCols = append(out.automationCols, "bounce_count")

	case "dropped":
		emailLog.ApplyDropped(at, event.Reason)

	case "spamreport":
		emailLog.ApplySpamReport(at)
		out.suppressReason = models.SuppressionReasonSpamReport
		out.exitReason = models.ExitReasonSuppressed

	case "unsubscribe", "group_unsubscribe":
		emailLog.ApplyUnsubscribe(at)
		out.recordUnsub = true
		if event.Event == "group_unsubscribe" {
			// Group opt-outs bind to the automation the mail came from;
			// a plain unsubscribe is a global opt-out.
			out.unsubScope = emailLog.AutomationID
		}
		out.exitReason = models.ExitReasonUnsubscribed
		out.automationCols = append(out.automationCols, "unsubscribe_count")

	case "processed", "deferred":
		// Pre-delivery provider states carry no milestone for us.
		out.matched = false

	default:
		out.matched = false
		out.unhandled = true
	}
	return out
}

func (wc *WebhookController) bumpCounter(automationID uint, column string) {
	wc.DB.Model(&models.Automation{}).Where("id = ?", automationID).
		Update(column, gorm.Expr(column+" + 1"))
}

func (wc *WebhookController) bumpEnrollmentCounter(enrollmentID uint, column string) {
	wc.DB.Model(&models.AutomationEnrollment{}).Where("id = ?", enrollmentID).
		Update(column, gorm.Expr(column+" + 1"))
}

// exitEnrollment removes the enrollment from its automation and cancels any
// still-pending sends for it.
func (wc *WebhookController) exitEnrollment(enrollmentID uint, reason string, at time.Time) {
	var enrollment models.AutomationEnrollment
	if err := wc.DB.First(&enrollment, enrollmentID).Error; err != nil {
		return
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return
	}
	enrollment.Exit(reason, at)
	if err := wc.DB.Save(&enrollment).Error; err != nil {
		wc.Logger.Printf("Error exiting enrollment %d: %v", enrollmentID, err)
		return
	}
	wc.DB.Model(&models.ScheduledEmail{}).
		Where("enrollment_id = ? AND status = ?", enrollment.ID, models.ScheduledStatusPending).
		Update("status", models.ScheduledStatusCancelled)
}
