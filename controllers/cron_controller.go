package controller

import (
	"crypto/subtle"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/worker"
)

// CronController exposes the engine cycles to an external scheduler. The
// endpoints are idempotent: a cycle with nothing due is a successful no-op.
type CronController struct {
	Worker *worker.AutomationWorker
	APIKey string
	Logger *log.Logger
}

func NewCronController(w *worker.AutomationWorker, apiKey string, logger *log.Logger) *CronController {
	return &CronController{
		Worker: w,
		APIKey: apiKey,
		Logger: logger,
	}
}

// RunAction triggers one engine cycle: POST /cron/:action with action
// "daily" or "send".
func (cc *CronController) RunAction(c *fiber.Ctx) error {
	if !cc.authorized(c) {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid cron API key", nil)
	}

	action := c.Params("action")
	report, err := cc.Worker.RunCycle(action, time.Now())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	return c.JSON(utils.SuccessResponse(report))
}

func (cc *CronController) authorized(c *fiber.Ctx) bool {
	if cc.APIKey == "" {
		// Dev convenience; production config refuses to start without a key
		return true
	}
	provided := c.Get("X-Cron-Key")
	if provided == "" {
		provided = c.Query("key")
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(cc.APIKey)) == 1
}
