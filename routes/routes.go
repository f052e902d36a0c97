package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/config"
	controller "github.com/loganwilliamstarp-web/isgmarketing-sub004/controllers"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/middleware"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/worker"
)

// SetupRoutes wires the HTTP surface: the protected management API, the
// public provider webhook, the cron trigger, and the unsubscribe link.
func SetupRoutes(app *fiber.App, db *gorm.DB, automationWorker *worker.AutomationWorker, hub *controller.ProgressHub) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	setupPublicRoutes(app, db, automationWorker)
	setupAPIRoutes(app, db, hub)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}

func setupPublicRoutes(app *fiber.App, db *gorm.DB, automationWorker *worker.AutomationWorker) {
	webhookLogger := log.New(os.Stdout, "WEBHOOK: ", log.Ldate|log.Ltime|log.Lshortfile)
	cronLogger := log.New(os.Stdout, "CRON: ", log.LstdFlags)

	publicKey, err := utils.ParseWebhookPublicKey(config.AppConfig.SendGridWebhookPublicKey)
	if err != nil {
		webhookLogger.Printf("⚠️ Webhook public key not usable, events will be rejected: %v", err)
	}

	webhookController := controller.NewWebhookController(db, publicKey, webhookLogger)
	cronController := controller.NewCronController(automationWorker, config.AppConfig.CronAPIKey, cronLogger)
	unsubscribeController := controller.NewUnsubscribeController(db, config.AppConfig.TokenSecret, log.New(os.Stdout, "UNSUB: ", log.LstdFlags))

	webhooks := app.Group("/webhooks", middleware.PublicRateLimiter("webhook"), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	webhooks.Post("/sendgrid", webhookController.HandleEvents)

	cron := app.Group("/cron", middleware.PublicRateLimiter("cron"))
	cron.Post("/:action", cronController.RunAction)

	app.Get("/unsubscribe/:token", middleware.PublicRateLimiter("unsubscribe"), unsubscribeController.HandleUnsubscribe)

	webhookLogger.Println("Public routes initialized successfully")
}

func setupAPIRoutes(app *fiber.App, db *gorm.DB, hub *controller.ProgressHub) {
	automationController := controller.NewAutomationController(db, log.New(os.Stdout, "AUTOMATION: ", log.LstdFlags))

	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	automation := api.Group("/automations")
	automation.Post("/", automationController.CreateAutomation)
	automation.Get("/", automationController.ListAutomations)
	automation.Post("/preview", automationController.PreviewRecipients)
	automation.Get("/fields", automationController.ListFilterFields)
	automation.Get("/:id", automationController.GetAutomation)
	automation.Put("/:id", automationController.UpdateAutomation)
	automation.Post("/:id/activate", automationController.ActivateAutomation)
	automation.Post("/:id/pause", automationController.PauseAutomation)
	automation.Get("/:id/stats", automationController.GetAutomationStats)
	automation.Delete("/:id", automationController.DeleteAutomation)

	// WebSocket route for engine cycle progress
	app.Get("/api/v1/automations/progress", websocket.New(hub.HandleProgressWS))

	log.Println("API routes initialized successfully")
}
