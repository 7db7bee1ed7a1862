package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"agenda/internal/config"
	"agenda/internal/events"
	"agenda/internal/llm"
	"agenda/internal/repo"
)

var (
	ErrWorkspaceLimit    = errors.New("workspace limit reached for plan")
	ErrNotOwner          = errors.New("only the workspace owner can do this")
	ErrNotMember         = errors.New("not a member of this workspace")
	ErrPersonalWorkspace = errors.New("the Personal workspace cannot be deleted")
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Completer llm.Completer
	Resolver  *llm.Resolver
	Notifier  Notifier
	Logger    *zap.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// PlanFor resolves the user's billing plan from subscriptions.
func (e Engine) PlanFor(ctx context.Context, userID string) (string, error) {
	return e.Repo.ActivePlan(ctx, userID)
}

// ModelFor picks the completion model for the user's plan.
func (e Engine) ModelFor(ctx context.Context, userID string) string {
	plan, err := e.PlanFor(ctx, userID)
	if err != nil {
		plan = "free"
	}
	return e.Config.ModelForPlan(plan)
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
