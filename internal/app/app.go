package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"bookshelf/internal/bot"
	"bookshelf/internal/config"
	"bookshelf/internal/httpapi"
	"bookshelf/internal/service"
	"bookshelf/internal/storage"
	"bookshelf/internal/storage/ch"
	"bookshelf/internal/storage/sqldb"
	"bookshelf/internal/storage/stubs"
)

// App represents the application
type App struct {
	config  *config.Config
	logger  *zap.Logger
	db      storage.Storage
	journal storage.Journal
	svc     *service.Service
	server  *httpapi.Server
	bot     *bot.Bot
	tracer  *sdktrace.TracerProvider
}

// New loads the configuration from the environment and builds the application
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	return NewFromConfig(context.Background(), cfg, logger)
}

// NewFromConfig builds the application from an explicit configuration
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{config: cfg, logger: logger}
	logger.Info("Starting Bookshelf...")

	if err := a.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := a.initJournal(ctx); err != nil {
		a.db.Close()
		return nil, err
	}

	tp, err := newTracerProvider(cfg, os.Stderr)
	if err != nil {
		a.close()
		return nil, err
	}
	opts := []service.Option{service.WithJournal(a.journal)}
	if tp != nil {
		logger.Info("Tracing enabled", zap.String("exporter", cfg.TracesExporter))
		a.tracer = tp
		opts = append(opts, service.WithTracer(tp.Tracer(service.TracerName)))
	}
	a.svc = service.New(a.db, logger, opts...)

	server, err := httpapi.New(a.svc, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.server = server

	if err := a.initBot(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// initDatabase opens and migrates the relational store
func (a *App) initDatabase(ctx context.Context) error {
	db, err := OpenStorage(ctx, a.config, a.logger)
	if err != nil {
		return err
	}

	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initJournal connects the rental journal. Without ClickHouse rentals are not journaled.
func (a *App) initJournal(ctx context.Context) error {
	switch {
	case a.config.UseMockDB:
		a.journal = stubs.NewMockJournal()
		return nil
	case a.config.ClickHouseHost == "":
		a.logger.Info("CLICKHOUSE_HOST not set, rental journal disabled")
		a.journal = storage.NopJournal{}
		return nil
	}

	tlsStatus := "without TLS"
	if a.config.ClickHouseUseTLS {
		tlsStatus = "with TLS"
	}
	a.logger.Info("Connecting to ClickHouse",
		zap.String("host", a.config.ClickHouseHost),
		zap.Int("port", a.config.ClickHousePort),
		zap.String("database", a.config.ClickHouseDatabase),
		zap.String("user", a.config.ClickHouseUser),
		zap.String("tls", tlsStatus),
	)
	journal, err := ch.NewClickHouseJournal(
		a.config.ClickHouseHost,
		a.config.ClickHousePort,
		a.config.ClickHouseDatabase,
		a.config.ClickHouseUser,
		a.config.ClickHousePassword,
		a.config.ClickHouseUseTLS,
	)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := journal.Initialize(ctx); err != nil {
		journal.Close()
		return fmt.Errorf("failed to initialize rental journal: %w", err)
	}

	a.journal = journal
	return nil
}

// initBot creates the Telegram bot when a token is configured
func (a *App) initBot() error {
	if a.config.TelegramToken == "" {
		a.logger.Info("TELEGRAM_BOT_TOKEN not set, bot disabled")
		return nil
	}

	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.svc, a.config.AllowedUserIDs, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.logger.Info("Bot created successfully", zap.Int64s("allowed_users", a.config.AllowedUserIDs))

	a.bot = telegramBot
	return nil
}

// Handler returns the HTTP handler of the application
func (a *App) Handler() *httpapi.Server {
	return a.server
}

// Run starts the HTTP server and the bot and blocks until SIGINT or SIGTERM
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with an explicit lifetime
func (a *App) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.bot != nil {
		if a.config.WebhookMode {
			a.server.Mount(bot.WebhookPath, a.bot.WebhookHandler(ctx))
			a.logger.Info("Starting bot in WEBHOOK mode", zap.String("url", a.config.WebhookURL))
			if err := a.bot.StartWebhook(a.config.WebhookURL); err != nil {
				return errors.Join(fmt.Errorf("failed to setup webhook: %w", err), a.Shutdown())
			}
		} else {
			go func() {
				if err := a.bot.Start(ctx); err != nil {
					a.logger.Error("Bot stopped", zap.Error(err))
				}
			}()
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.server.Start(a.config.Addr())
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
	case err := <-errChan:
		if err != nil {
			runErr = fmt.Errorf("HTTP server error: %w", err)
		}
	}

	if err := a.Shutdown(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if err := a.close(); err != nil {
		return err
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return nil
}

func (a *App) close() error {
	var errs []error
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("Error flushing spans", zap.Error(err))
			errs = append(errs, err)
		}
		cancel()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("Error closing rental journal", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// OpenStorage opens the configured relational store without migrating it
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.UseMockDB {
		logger.Info("Using mock database")
		return stubs.NewMockDB(), nil
	}

	logger.Info("Opening database", zap.String("driver", cfg.DatabaseDriver))
	db, err := sqldb.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
