// Package bot initializes and runs the debate bot: it wires the vault,
// provider registry, orchestrator, update stream and ops endpoint, and
// handles graceful shutdown.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/config"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/debate"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/dialog"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/handlers"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/metrics"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/providers"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/repositories"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/stream"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/telegram"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/vault"
	"github.com/dmitrijs2005/debatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/debatekeeper/internal/logging"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	rm        repositories.RepositoryManager
	client    *telegram.Client
	handler   *handlers.Handler
	guard     *stream.Guard
	collector *metrics.Collector
	registry  *prometheus.Registry
}

func NewApp(cfg *config.Config) (*App, error) {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	if cfg.TelegramToken == "" {
		return nil, errors.New("telegram token is not configured")
	}

	cipher, err := cryptox.New(cfg.MasterSecret)
	if err != nil {
		return nil, fmt.Errorf("cipher init error: %w", err)
	}

	rm, err := repositories.NewPostgresRepositoryManager(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	v := vault.NewService(rm.Credentials(), cipher, cfg.DefaultQuota, cfg.MinSecretLength, logger)
	registry := providers.DefaultRegistry()
	orch := debate.NewOrchestrator(v, registry, cfg.MaxRounds, logger, collector)

	client := telegram.NewClient(cfg.TelegramToken, cfg.TelegramAPIBase, cfg.PollTimeout)
	handler := handlers.New(v, orch, registry, dialog.NewStore(), client, collector, logger)
	guard := stream.NewGuard(client, stream.NewInstance(), logger, collector)

	return &App{
		config:    cfg,
		logger:    logger,
		rm:        rm,
		client:    client,
		handler:   handler,
		guard:     guard,
		collector: collector,
		registry:  reg,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// opsRouter serves liveness and metrics for operators.
func (app *App) opsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db := app.rm.Conn(); db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(app.registry))
	return r
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.rm.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}
	defer app.rm.Close()

	// A leftover webhook registration would hold the update stream and make
	// every poll conflict.
	if err := app.client.DeleteWebhook(ctx, true); err != nil {
		app.logger.Warn(ctx, "webhook cleanup failed", "error", err)
	}

	srv := &http.Server{Addr: app.config.HTTPAddr, Handler: app.opsRouter()}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := app.guard.Run(ctx, app.handler.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	app.handler.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}
