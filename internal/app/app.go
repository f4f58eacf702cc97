package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/auth"
	"github.com/Areeb3176/schedule-agent/internal/calendar"
	"github.com/Areeb3176/schedule-agent/internal/config"
	"github.com/Areeb3176/schedule-agent/internal/crypto"
	"github.com/Areeb3176/schedule-agent/internal/fanout"
	"github.com/Areeb3176/schedule-agent/internal/llm"
	"github.com/Areeb3176/schedule-agent/internal/mail"
	"github.com/Areeb3176/schedule-agent/internal/render"
	"github.com/Areeb3176/schedule-agent/internal/scheduler"
	"github.com/Areeb3176/schedule-agent/internal/store"
	"github.com/Areeb3176/schedule-agent/internal/token"
	"github.com/Areeb3176/schedule-agent/internal/web"
)

// App wires the agent's components and owns their lifecycle.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	repo    store.Repo
	sched   *scheduler.Scheduler
	httpSrv *http.Server
}

// New validates the pieces that can fail before Run.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	return &App{cfg: cfg, log: log}, nil
}

// Run starts the agent and blocks until a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting schedule-agent",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("timezone", a.cfg.Timezone),
		zap.Bool("daily", a.cfg.DailyEnabled),
	)

	cipher, err := crypto.NewCipher(a.cfg.EncryptionKey)
	if err != nil {
		return err
	}

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath, cipher)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	loc := a.cfg.Location()

	refresher := token.New(repo, token.Config{
		ClientID:     a.cfg.GoogleClientID,
		ClientSecret: a.cfg.GoogleClientSecret,
		TokenURL:     a.cfg.TokenURL,
	}, a.log)

	events := calendar.New(refresher, a.cfg.CalendarAPIBase, loc, a.log)

	// A nil Gemini client means rendering always takes the fallback path.
	var gen render.Generator
	if g := llm.NewGemini(a.cfg.GeminiAPIBase, a.cfg.GeminiModel, a.cfg.GeminiAPIKey); g != nil {
		gen = g
		a.log.Info("generative summaries enabled", zap.String("model", a.cfg.GeminiModel))
	}
	renderer := render.New(gen, a.log)

	mailer := mail.New(a.cfg.MailAPIBase, "Calendar Assistant", a.log)

	orch := fanout.New(repo, events, refresher, renderer, mailer, loc, a.log)
	a.sched = scheduler.New(repo, orch, loc, a.log)

	grants := auth.New(repo, a.cfg.AdminList(), a.cfg.FetchDays, a.log)
	srv := web.New(repo, orch, a.sched, grants, refresher, loc, a.log)

	a.httpSrv = &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Re-arm deferred jobs that survived a restart.
	if err := a.sched.Restore(ctx); err != nil {
		a.log.Error("restore pending jobs failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	if a.cfg.DailyEnabled {
		go func() {
			if err := a.sched.RunDaily(ctx, a.cfg.DailyAt); err != nil {
				a.log.Error("daily schedule error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	// Short-lived shutdown context; cancel immediately after use.
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	a.sched.Stop()
	if a.repo != nil {
		_ = a.repo.Close()
	}
	return nil
}
