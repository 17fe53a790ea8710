package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"visa_case_bot/internal/app"
	"visa_case_bot/internal/infra/config"
	idb "visa_case_bot/internal/infra/database"
	"visa_case_bot/internal/infra/logger"
	"visa_case_bot/internal/infra/scheduler"
	"visa_case_bot/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Visa Case Workload Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	mainLogger := logger.WithComponent("main")
	mainLogger.Infof("Configuration loaded. LogLevel: %s, Environment: %s, Admin ID: %d", cfg.LogLevel, cfg.Environment, cfg.AdminTelegramID)

	// Database
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	mainLogger.Info("Database connection established successfully.")

	// Repositories
	agentRepo := idb.NewPostgresAgentRepository(db)
	caseRepo := idb.NewPostgresCaseRepository(db)
	cycleStore := idb.NewPostgresCycleStore(db)
	notifRepo := idb.NewPostgresNotificationRepository(db)
	mainLogger.Info("Repositories initialized.")

	// Telegram bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := logger.WithComponent("telebot").WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID).WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.Fatalf("Could not create Telegram bot: %v", err)
	}
	adapter := telegram.NewTelebotAdapter(bot)
	sink := telegram.NewEventSink(adapter, agentRepo, logger.WithComponent("event_sink"))

	// Services
	adminService := app.NewAdminService(agentRepo, cfg.AdminTelegramID)
	batchService := app.NewBatchService(agentRepo, caseRepo, cycleStore, sink, logger.WithComponent("batch_service"))
	deadlineService := app.NewDeadlineService(caseRepo, notifRepo, sink, logger.WithComponent("deadline_service"))
	mainLogger.Info("Services initialized.")

	// Deadline scan scheduler
	scanScheduler := scheduler.NewScanScheduler(deadlineService, logger.WithComponent("scheduler"), cfg.CronSpecScan)
	scanScheduler.Start()

	// Handlers
	ctx := context.Background()
	telegram.RegisterBotCommands(ctx, bot, cfg, agentRepo, logger.WithComponent("bot_commands"))
	telegram.RegisterAgentHandlers(ctx, bot, batchService, agentRepo, caseRepo, notifRepo, logger.WithComponent("agent_handlers"))
	telegram.RegisterAdminHandlers(ctx, bot, adminService, batchService, notifRepo, cfg.AdminTelegramID, logger.WithComponent("admin_handlers"))
	mainLogger.Info("Command handlers registered.")

	mainLogger.Info("Application setup complete. Bot and scheduler are starting...")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	scanScheduler.Stop()
	bot.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
