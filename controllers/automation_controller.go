package controller

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/models"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

type AutomationController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAutomationController(db *gorm.DB, logger *log.Logger) *AutomationController {
	return &AutomationController{
		DB:     db,
		Logger: logger,
	}
}

type automationInput struct {
	Name                   string                `json:"name" validate:"required,max=200"`
	Description            string                `json:"description" validate:"omitempty,max=1000"`
	Filter                 utils.FilterSpec      `json:"filter"`
	Nodes                  []models.WorkflowNode `json:"nodes"`
	MaxEnrollments         *int                  `json:"max_enrollments" validate:"omitempty,min=1"`
	EnrollmentCooldownDays int                   `json:"enrollment_cooldown_days" validate:"omitempty,min=0"`
	DistributeEvenly       bool                  `json:"distribute_evenly"`
}

// CreateAutomation creates a new automation in draft status
func (ac *AutomationController) CreateAutomation(c *fiber.Ctx) error {
	var input automationInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := input.Filter.Validate(); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter", err)
	}
	if err := models.ValidateNodes(input.Nodes); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid workflow", err)
	}

	automation := models.Automation{
		Name:                   input.Name,
		Description:            input.Description,
		Status:                 models.AutomationStatusDraft,
		Filter:                 input.Filter,
		Nodes:                  input.Nodes,
		MaxEnrollments:         input.MaxEnrollments,
		EnrollmentCooldownDays: input.EnrollmentCooldownDays,
		DistributeEvenly:       input.DistributeEvenly,
	}
	if err := ac.DB.Create(&automation).Error; err != nil {
		ac.Logger.Printf("Error creating automation: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create automation", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(automation))
}

// UpdateAutomation replaces the editable fields of an automation. The filter
// and workflow are re-validated on every save.
func (ac *AutomationController) UpdateAutomation(c *fiber.Ctx) error {
	automation, err := ac.findAutomation(c)
	if err != nil {
		return err
	}

	var input automationInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := input.Filter.Validate(); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter", err)
	}
	if err := models.ValidateNodes(input.Nodes); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid workflow", err)
	}

	automation.Name = input.Name
	automation.Description = input.Description
	automation.Filter = input.Filter
	automation.Nodes = input.Nodes
	automation.MaxEnrollments = input.MaxEnrollments
	automation.EnrollmentCooldownDays = input.EnrollmentCooldownDays
	automation.DistributeEvenly = input.DistributeEvenly

	if err := ac.DB.Save(automation).Error; err != nil {
		ac.Logger.Printf("Error updating automation %d: %v", automation.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update automation", err)
	}
	return c.JSON(utils.SuccessResponse(automation))
}

// GetAutomation returns one automation with its enrollment counters
func (ac *AutomationController) GetAutomation(c *fiber.Ctx) error {
	automation, err := ac.findAutomation(c)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(automation))
}

// ListAutomations returns a page of automations, newest first
func (ac *AutomationController) ListAutomations(c *fiber.Ctx) error {
	page := int(utils.ParseUint(c.Query("page")))
	if page < 1 {
		page = 1
	}
	limit := int(utils.ParseUint(c.Query("limit")))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := ac.DB.Model(&models.Automation{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list automations", err)
	}

	var automations []models.Automation
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&automations).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list automations", err)
	}

	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  automations,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}

// ListFilterFields returns the snapshot fields a filter may reference, for
// the editing surface's rule builder.
func (ac *AutomationController) ListFilterFields(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"fields": models.SnapshotFieldDoc(),
	}))
}

// ActivateAutomation moves an automation into active status so the next
// daily cycle starts enrolling accounts into it.
func (ac *AutomationController) ActivateAutomation(c *fiber.Ctx) error {
	automation, err := ac.findAutomation(c)
	if err != nil {
		return err
	}
	if err := models.ValidateNodes(automation.Nodes); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Workflow is not valid", err)
	}
	automation.Status = models.AutomationStatusActive
	if err := ac.DB.Save(automation).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to activate automation", err)
	}
	ac.Logger.Printf("▶️ Automation %d (%s) activated", automation.ID, automation.Name)
	return c.JSON(utils.SuccessResponse(automation))
}

// PauseAutomation pauses an automation. In-flight enrollments exit on their
// next due action rather than immediately.
func (ac *AutomationController) PauseAutomation(c *fiber.Ctx) error {
	automation, err := ac.findAutomation(c)
	if err != nil {
		return err
	}
	automation.Status = models.AutomationStatusPaused
	if err := ac.DB.Save(automation).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to pause automation", err)
	}
	ac.Logger.Printf("⏸️ Automation %d (%s) paused", automation.ID, automation.Name)
	return c.JSON(utils.SuccessResponse(automation))
}

// DeleteAutomation soft-deletes an automation. Protected defaults cannot be
// deleted, only paused.
func (ac *AutomationController) DeleteAutomation(c *fiber.Ctx) error {
	automation, err := ac.findAutomation(c)
	if err != nil {
		return err
	}
	if err := models.PreventProtectedDelete(ac.DB, automation.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusForbidden, err.Error(), nil)
	}
	if err := ac.DB.Delete(automation).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete automation", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"deleted": automation.ID}))
}

// PreviewRecipients evaluates a filter against the current account base
// without enrolling anyone, returning the match count and a sample.
func (ac *AutomationController) PreviewRecipients(c *fiber.Ctx) error {
	var input struct {
		Filter utils.FilterSpec `json:"filter"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := input.Filter.Validate(); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter", err)
	}

	now := time.Now()
	matched := 0
	sample := make([]fiber.Map, 0, 10)

	var accounts []models.Account
	result := ac.DB.Preload("Policies").FindInBatches(&accounts, 500, func(tx *gorm.DB, batch int) error {
		for i := range accounts {
			ok, _ := utils.Evaluate(input.Filter, accounts[i].Snapshot(), now)
			if !ok {
				continue
			}
			matched++
			if len(sample) < 10 {
				sample = append(sample, fiber.Map{
					"id":    accounts[i].ID,
					"email": accounts[i].Email,
					"name":  accounts[i].DisplayName(),
				})
			}
		}
		return nil
	})
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to preview recipients", result.Error)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"matched": matched,
		"sample":  sample,
	}))
}

// GetAutomationStats returns the denormalized counters plus live enrollment
// breakdowns for one automation.
func (ac *AutomationController) GetAutomationStats(c *fiber.Ctx) error {
	automation, err := ac.findAutomation(c)
	if err != nil {
		return err
	}

	var byStatus []struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	ac.DB.Model(&models.AutomationEnrollment{}).
		Select("status, COUNT(*) as count").
		Where("automation_id = ?", automation.ID).
		Group("status").
		Scan(&byStatus)

	var opens, clicks int64
	ac.DB.Model(&models.EmailLog{}).
		Where("automation_id = ? AND first_opened_at IS NOT NULL", automation.ID).
		Count(&opens)
	ac.DB.Model(&models.EmailLog{}).
		Where("automation_id = ? AND first_clicked_at IS NOT NULL", automation.ID).
		Count(&clicks)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"automation_id":   automation.ID,
		"enrolled_count":  automation.EnrolledCount,
		"completed_count": automation.CompletedCount,
		"sent_count":      automation.SentCount,
		"unique_opens":    opens,
		"unique_clicks":   clicks,
		"enrollments":     byStatus,
		"last_run_at":     automation.LastRunAt,
	}))
}

func (ac *AutomationController) findAutomation(c *fiber.Ctx) (*models.Automation, error) {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return nil, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation ID", nil)
	}
	var automation models.Automation
	if err := ac.DB.First(&automation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorResponse(c, fiber.StatusNotFound, "Automation not found", nil)
		}
		return nil, utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load automation", err)
	}
	return &automation, nil
}
