package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/habitweek/internal/config"
	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/pkg/user"
	"github.com/klokku/habitweek/pkg/week"
	log "github.com/sirupsen/logrus"
)

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg    config.Application
	db     *pgxpool.Pool
	deps   *Dependencies
	router *mux.Router
	srv    *http.Server
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// DB + migrations
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(cfg.Database); err != nil {
		db.Close()
		return nil, err
	}

	r := mux.NewRouter()

	// Build dependencies (services, handlers...)
	deps, err := BuildDependencies(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Middleware chain
	SetupMiddleware(r, deps)

	// Routes
	RegisterRoutes(r, deps)

	srv := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, db: db, deps: deps, router: r, srv: srv}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		errCh <- a.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// RecomputeRange re-derives every week of the user overlapping from..to, oldest first.
// It returns the number of recomputed weeks.
func (a *Application) RecomputeRange(ctx context.Context, userUid string, from week.Date, to week.Date) (int, error) {
	if !from.IsValid() || !to.IsValid() || to.Before(from) {
		return 0, week.ErrInvalidDate
	}
	u, err := a.deps.UserService.GetUserByUid(ctx, userUid)
	if err != nil {
		return 0, fmt.Errorf("failed to find user %s: %w", userUid, err)
	}
	ctx = user.WithUser(ctx, u)

	count := 0
	last := week.WeekStartOf(to)
	for weekStart := week.WeekStartOf(from); !weekStart.After(last); weekStart = week.NextWeekStart(weekStart) {
		summary, err := a.deps.WeeklySummaryService.Recompute(ctx, u.Id, weekStart)
		if err != nil {
			return count, fmt.Errorf("failed to recompute week %s: %w", weekStart, err)
		}
		log.Infof("Recomputed week %s: %d points (%d%%)", weekStart, summary.TotalPoints, summary.CompletionPercent)
		count++
	}
	return count, nil
}

// Close releases the database pool and the connections of the dependencies.
func (a *Application) Close() {
	a.deps.Close()
	a.db.Close()
}
