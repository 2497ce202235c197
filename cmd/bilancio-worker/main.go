// The bilancio-worker keeps months materialized and mirrors their summaries
// to Google Sheets. It generates the current month on a timer and re-exports
// a month's summary whenever the engine publishes a change event for it.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/export"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: slog.LevelInfo, Component: "bilancio-worker"})
	applog.SetDefault(logger)

	logger.Info("Starting bilancio-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// The worker shares the engine's database; it has no in-memory mode.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	generator := services.NewGenerator(repo, nil)
	leftover := services.NewLeftover(repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var writer export.SummaryWriter
	if cfg.GoogleSpreadsheetID != "" {
		writer, err = export.NewGoogleFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets export", "error", err)
			os.Exit(1)
		}
		logger.Info("Google Sheets export initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		logger.Info("Google Sheets export disabled - summaries stay local")
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, running on timer only", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - running on timer only")
	}

	g, gctx := errgroup.WithContext(ctx)

	// Periodic generation keeps the current month materialized so the UI
	// never opens an empty month. Re-running it is a no-op by design of the
	// generator itself.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.GenerateInterval)
		defer ticker.Stop()

		generate := func(now time.Time) {
			month := core.YearMonthOf(now)
			rec, err := generator.GenerateMonth(gctx, month)
			if err != nil {
				logger.Error("Month generation failed", "month", month.String(), "error", err)
				return
			}
			logger.Info("Month generation pass complete",
				"month", month.String(),
				"instances", len(rec.Instances))
		}

		generate(time.Now())
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case now := <-ticker.C:
				generate(now)
			}
		}
	})

	if amqpClient != nil && writer != nil {
		g.Go(func() error {
			return amqpClient.ConsumeEvents(gctx, func(e *amqp.Event) error {
				month, ok := eventMonth(e)
				if !ok {
					// Template and payment source changes carry no month;
					// the current month's summary is the one that moved.
					month = core.YearMonthOf(time.Now())
				}

				summary, err := leftover.MonthSummary(gctx, month)
				if err != nil {
					return err
				}
				return writer.AppendSummary(gctx, summary)
			})
		})
	}

	logger.Info("Worker running",
		"generate_interval", cfg.GenerateInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func eventMonth(e *amqp.Event) (core.YearMonth, bool) {
	if e.Month == "" {
		return core.YearMonth{}, false
	}
	month, err := core.ParseYearMonth(e.Month)
	if err != nil {
		return core.YearMonth{}, false
	}
	return month, true
}
