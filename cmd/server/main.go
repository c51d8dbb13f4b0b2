package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"inbox-backend/internal/api"
	"inbox-backend/internal/auth"
	"inbox-backend/internal/config"
	"inbox-backend/internal/inbox"
	"inbox-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Wire the rule engine
	inbox.SetWebhookTimeout(time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second)
	rules := inbox.NewRuleStore(db)
	assigner := inbox.NewAssigner(db)
	webhooks := inbox.NewWebhookDispatcher(db, cfg.Webhook.MaxAttempts)
	executor := inbox.NewExecutor(db, assigner, webhooks)
	engine := inbox.NewEngine(rules, executor)
	service := inbox.NewService(db, assigner, executor, engine)

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 6. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Auth routes (before middleware — no auth required)
	authHandler := auth.NewAuthHandler(db, cfg.JWTSecret)
	auth.RegisterAuthRoutes(app, authHandler)

	// 8. Inbox API (auth required)
	authMW := auth.AuthMiddleware(cfg.JWTSecret)
	handler := api.NewHandler(db, rules, service)
	api.RegisterRoutes(app, handler, authMW)

	// 9. Start webhook retry scheduler
	webhookScheduler := inbox.NewWebhookScheduler(db, time.Duration(cfg.Webhook.RetryIntervalSeconds)*time.Second)
	webhookScheduler.Start()
	defer webhookScheduler.Stop()

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *api.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(api.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(api.ErrorResponse{
		Error: &api.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
