package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/config"
	controller "github.com/loganwilliamstarp-web/isgmarketing-sub004/controllers"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/middleware"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/routes"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "ENGINE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry error reporting
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("⚠️ Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Build the engine: enroller, step executor, dispatcher
	dispatcher := &worker.Dispatcher{
		DB:                 config.DB,
		Mailer:             buildMailer(),
		Logger:             log.New(os.Stdout, "DISPATCH: ", log.LstdFlags),
		FromEmail:          config.AppConfig.FromEmail,
		FromName:           config.AppConfig.FromName,
		ReplyTo:            config.AppConfig.ReplyToEmail,
		BaseURL:            config.AppConfig.AppBaseURL,
		TokenSecret:        config.AppConfig.TokenSecret,
		AgencySignature:    config.AppConfig.AgencySignature,
		ReviewLink:         config.AppConfig.ReviewLink,
		RatingLink:         config.AppConfig.RatingLink,
		RevalidationMaxAge: 90 * 24 * time.Hour,
	}
	automationWorker := worker.NewAutomationWorker(
		worker.NewEnroller(config.DB, log.New(os.Stdout, "ENROLL: ", log.LstdFlags)),
		worker.NewStepExecutor(config.DB, log.New(os.Stdout, "EXECUTE: ", log.LstdFlags)),
		dispatcher,
		logger,
	)
	automationWorker.DispatchInterval = time.Duration(config.AppConfig.DispatchIntervalMinutes) * time.Minute
	automationWorker.DailyRunHour = config.AppConfig.DailyRunHour

	// Progress websocket hub receives every cycle report
	hub := controller.NewProgressHub()
	automationWorker.Notify = hub.Broadcast

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go automationWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, automationWorker, hub)

	// Outside production, issue a short-lived service token at startup so
	// the protected API is reachable without separate token tooling.
	if config.AppConfig.Environment != "production" {
		if token, err := utils.GenerateAPIToken("dev", config.AppConfig.APITokenSecret, 24*time.Hour); err == nil {
			logger.Printf("🔑 Development API token (24h): %s", token)
		}
	}

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

// buildMailer picks the outbound transport: SendGrid when an API key is
// configured, SMTP as the fallback, dry-run when neither is set.
func buildMailer() utils.Mailer {
	cfg := config.AppConfig
	switch {
	case cfg.SendGridAPIKey != "":
		return utils.NewSendGridMailer(cfg.SendGridAPIKey)
	case cfg.SMTP.Host != "":
		return &utils.SMTPMailer{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}
	default:
		log.Println("⚠️ No mail transport configured, using dry-run mailer")
		return &utils.DryRunMailer{}
	}
}
