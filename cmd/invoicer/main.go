package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/vaidashi/invoice-reconciler/internal/clients"
	"github.com/vaidashi/invoice-reconciler/internal/config"
	"github.com/vaidashi/invoice-reconciler/internal/database"
	"github.com/vaidashi/invoice-reconciler/internal/enrich"
	"github.com/vaidashi/invoice-reconciler/internal/export"
	"github.com/vaidashi/invoice-reconciler/internal/invoice"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/internal/notify"
	"github.com/vaidashi/invoice-reconciler/internal/pipeline"
	"github.com/vaidashi/invoice-reconciler/internal/repository"
	"github.com/vaidashi/invoice-reconciler/internal/transfer"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.NewLogger(cfg.LogLevel)
	runID := models.NewRunID()
	l.Info("Starting invoicing run", "runID", runID, "env", cfg.Env)

	notifier := buildNotifier(cfg, runID, l)

	// Anything that escapes the per-order boundary is fatal to the run and
	// must produce exactly one failure notification before the process dies
	defer func() {
		if r := recover(); r != nil {
			l.Error("Run panicked", "runID", runID, "panic", r)
			notify.BestEffort(notifier, l, "An Error Occurred",
				fmt.Sprintf("Error: %v\n\n%s", r, debug.Stack()))
			os.Exit(1)
		}
	}()

	ctx := context.Background()

	db, err := database.New(cfg, l)

	if err != nil {
		l.Error("Failed to connect to database", "error", err)
		notify.BestEffort(notifier, l, "An Error Occurred",
			fmt.Sprintf("Error: %v", err))
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			l.Error("Failed to close database", "error", err)
		}
	}()

	if err := db.RunMigrations(); err != nil {
		l.Error("Failed to run database migrations", "error", err)
		notify.BestEffort(notifier, l, "An Error Occurred",
			fmt.Sprintf("Error: %v", err))
		return 1
	}

	orderRepo := repository.NewOrderRepository(db, cfg.ExcludedPartnerCodes, l)
	tokenRepo := repository.NewTokenRepository(db, l)

	orderCloud := clients.NewOrderCloudClient(
		cfg.OrderCloud.BaseURL, cfg.OrderCloud.Username, cfg.OrderCloud.Password, l)

	if err := orderCloud.Authenticate(ctx); err != nil {
		notify.BestEffort(notifier, l, "An Error Occurred",
			fmt.Sprintf("Error: %v", err))
		return 1
	}

	books := clients.NewBooksClient(
		cfg.Books.BaseURL, cfg.Books.AuthURL,
		cfg.Books.ClientID, cfg.Books.ClientSecret, cfg.Books.RealmID, l)

	currentToken, err := tokenRepo.GetRefreshToken(ctx)

	if err != nil {
		l.Error("Failed to load accounting refresh token", "error", err)
		notify.BestEffort(notifier, l, "An Error Occurred",
			fmt.Sprintf("Error: %v", err))
		return 1
	}

	rotatedToken, err := books.Authenticate(ctx, currentToken)

	if err != nil {
		notify.BestEffort(notifier, l, "An Error Occurred",
			fmt.Sprintf("Error: %v", err))
		return 1
	}

	if rotatedToken != "" && rotatedToken != currentToken {
		if err := tokenRepo.UpdateRefreshToken(ctx, rotatedToken); err != nil {
			notify.BestEffort(notifier, l, "An Error Occurred",
				fmt.Sprintf("Error: %v", err))
			return 1
		}
	}

	builder := invoice.NewBuilder(books, cfg.Books, l)
	stage := enrich.NewStage(orderCloud, notifier, l)
	orchestrator := pipeline.NewOrchestrator(builder, l)
	writer := export.NewWriter(cfg.Export.BaseDir, time.Now(), l)
	uploader := transfer.NewUploader(cfg.FTP, cfg.Export.BaseDir, notifier, l)

	runner := pipeline.NewRunner(runID, orderRepo, stage, orchestrator, writer, uploader, notifier, l)

	if err := runner.Run(ctx); err != nil {
		l.Error("Run failed", "runID", runID, "error", err)
		notify.BestEffort(notifier, l, "An Error Occurred",
			fmt.Sprintf("Error: %+v", err))
		return 1
	}

	l.Info("Run completed", "runID", runID)
	return 0
}

func buildNotifier(cfg *config.Config, runID string, l logger.Logger) notify.Notifier {
	var notifiers []notify.Notifier

	channel := strings.ToLower(cfg.NotifyChannel)

	if channel == "email" || channel == "both" {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.SMTP, l))
	}

	if channel == "kafka" || channel == "both" {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.Kafka, runID, l)

		if err != nil {
			// Notifications are best-effort; a missing broker must not stop
			// the run
			l.Warn("Kafka notifier unavailable", "error", err)
		} else {
			notifiers = append(notifiers, kafkaNotifier)
		}
	}

	if len(notifiers) == 0 {
		l.Warn("No notification channel configured, notifications will be discarded")
		return notify.NopNotifier{}
	}

	if len(notifiers) == 1 {
		return notifiers[0]
	}

	return notify.NewMultiNotifier(notifiers...)
}
