package controller

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/models"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

type UnsubscribeController struct {
	DB          *gorm.DB
	TokenSecret string
	Logger      *log.Logger
}

func NewUnsubscribeController(db *gorm.DB, tokenSecret string, logger *log.Logger) *UnsubscribeController {
	return &UnsubscribeController{
		DB:          db,
		TokenSecret: tokenSecret,
		Logger:      logger,
	}
}

// HandleUnsubscribe processes a one-click unsubscribe link from an email
// footer. The token binds the address and the automation it was sent from.
func (uc *UnsubscribeController) HandleUnsubscribe(c *fiber.Ctx) error {
	token := c.Params("token")
	email, automationID, err := utils.ParseUnsubscribeToken(token, uc.TokenSecret)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("This unsubscribe link is invalid or has expired.")
	}

	if err := models.RecordUnsubscribe(uc.DB, email, automationID, "one_click", c.IP(), c.Get("User-Agent")); err != nil {
		uc.Logger.Printf("Error recording unsubscribe for %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).SendString("Something went wrong. Please try again.")
	}

	uc.exitEnrollments(email, automationID)

	uc.Logger.Printf("📭 %s unsubscribed (automation %d)", email, automationID)
	return c.Type("html").SendString(unsubscribeConfirmationHTML)
}

// exitEnrollments removes the address's active enrollments covered by the
// opt-out and cancels their pending sends.
func (uc *UnsubscribeController) exitEnrollments(email string, automationID uint) {
	now := time.Now()

	query := uc.DB.Model(&models.AutomationEnrollment{}).
		Joins("JOIN accounts ON accounts.id = automation_enrollments.account_id").
		Where("LOWER(accounts.email) = ? AND automation_enrollments.status = ?",
			strings.ToLower(email), models.EnrollmentStatusActive)
	if automationID != 0 {
		query = query.Where("automation_enrollments.automation_id = ?", automationID)
	}

	var enrollments []models.AutomationEnrollment
	if err := query.Find(&enrollments).Error; err != nil {
		uc.Logger.Printf("Error loading enrollments for %s: %v", email, err)
		return
	}
	for i := range enrollments {
		enrollments[i].Exit(models.ExitReasonUnsubscribed, now)
		uc.DB.Save(&enrollments[i])
		uc.DB.Model(&models.ScheduledEmail{}).
			Where("enrollment_id = ? AND status = ?", enrollments[i].ID, models.ScheduledStatusPending).
			Update("status", models.ScheduledStatusCancelled)
	}
}

const unsubscribeConfirmationHTML = `<!DOCTYPE html>
<html>
<head><title>Unsubscribed</title></head>
<body style="font-family: sans-serif; max-width: 480px; margin: 80px auto; text-align: center;">
  <h2>You're unsubscribed</h2>
  <p>You will no longer receive these emails from us.</p>
</body>
</html>`
