// Package app wires the MemberQA components together and manages their
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/memberqa/internal/answer"
	"github.com/edgard/memberqa/internal/api"
	"github.com/edgard/memberqa/internal/cache"
	"github.com/edgard/memberqa/internal/config"
	"github.com/edgard/memberqa/internal/database"
	"github.com/edgard/memberqa/internal/qa"
	"github.com/edgard/memberqa/internal/scheduler"
	"github.com/edgard/memberqa/internal/source"
	"github.com/edgard/memberqa/internal/telegram"
)

// App holds the assembled service components.
type App struct {
	log    *slog.Logger
	db     *sqlx.DB
	server *api.Server
	tgBot  *telegram.Bot // nil when no token is configured
	sched  *scheduler.Scheduler
}

// New assembles all components from configuration. The returned App owns the
// database handle; call Close when done.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	store := database.NewStore(db, log)

	src := source.NewHTTPClient(cfg.Source, log)
	msgCache := cache.New(src, store, cfg.Cache, log)

	var extractor answer.Extractor
	if cfg.Gemini.APIKey != "" {
		gem, err := answer.NewGeminiExtractor(ctx, cfg.Gemini, log)
		if err != nil {
			database.CloseDB(db)
			return nil, fmt.Errorf("failed to initialize Gemini extractor: %w", err)
		}
		extractor = gem
	} else {
		log.Warn("No Gemini API key configured, answering with the rule-based fallback only")
	}

	engine := answer.NewEngine(extractor, cfg.Gemini.Timeout, log)
	svc := qa.NewService(msgCache, engine, log)

	var tgBot *telegram.Bot
	if cfg.Telegram.Token != "" {
		tgBot, err = telegram.NewBot(cfg.Telegram.Token, svc, log)
		if err != nil {
			database.CloseDB(db)
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
	}

	tasks := map[string]scheduler.TaskFunc{
		// Revalidates the cache so interactive questions rarely pay fetch
		// latency. Get triggers a single-flight refresh when stale.
		"cache_refresh": func(taskCtx context.Context) error {
			_, getErr := msgCache.Get(taskCtx)
			return getErr
		},
		"db_maintenance": func(taskCtx context.Context) error {
			return store.RunMaintenance(taskCtx)
		},
	}
	sched, err := scheduler.New(log, &cfg.Scheduler, tasks)
	if err != nil {
		database.CloseDB(db)
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &App{
		log:    log.With("component", "app"),
		db:     db,
		server: api.NewServer(cfg.Server, svc, log),
		tgBot:  tgBot,
		sched:  sched,
	}, nil
}

// Run starts all components and blocks until the context is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("Starting MemberQA service...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gCtx)
	})

	if a.tgBot != nil {
		g.Go(func() error {
			return a.tgBot.Run(gCtx)
		})
	}

	g.Go(func() error {
		if err := a.sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		a.log.Info("Shutdown signal received, stopping scheduler...")
		if err := a.sched.Stop(); err != nil {
			a.log.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("Service stopped due to error", "error", err)
		return err
	}

	a.log.Info("Service stopped gracefully.")
	return nil
}

// Close releases resources owned by the app.
func (a *App) Close() {
	database.CloseDB(a.db)
}
