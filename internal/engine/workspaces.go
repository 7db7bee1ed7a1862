package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/repo"
)

const personalWorkspaceName = "Personal"

// EnsurePersonalWorkspace finds the user's "Personal" workspace, creating it
// on first use. Creation also adopts any of the user's todos that have no
// workspace yet, all in one transaction.
func (e Engine) EnsurePersonalWorkspace(ctx context.Context, userID string) (domain.Workspace, error) {
	w, err := e.Repo.FindWorkspaceByMemberAndName(ctx, userID, personalWorkspaceName)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Workspace{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	w = domain.Workspace{
		ID:        uuid.New().String(),
		Name:      personalWorkspaceName,
		OwnerID:   userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkspace(ctx, tx, w); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	if err := e.Repo.InsertWorkspaceMember(ctx, tx, domain.WorkspaceMember{
		WorkspaceID: w.ID,
		UserID:      userID,
		Role:        "owner",
		JoinedAt:    now,
	}); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert member: %w", err)
	}
	if err := e.Repo.AdoptUnassignedTodos(ctx, tx, userID, w.ID, now); err != nil {
		return domain.Workspace{}, fmt.Errorf("adopt todos: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.WorkspaceCreated, w.ID, w.ID, userID, events.EventPayload{"name": w.Name, "personal": true}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	e.logger().Info("personal workspace created", zap.String("user_id", userID), zap.String("workspace_id", w.ID))
	return w, nil
}

// CreateWorkspace creates a workspace, enforcing the plan's quota on owned
// workspaces. Breaching the quota is an explicit rejection, never optimistic.
func (e Engine) CreateWorkspace(ctx context.Context, userID, name string) (domain.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Workspace{}, errors.New("name is required")
	}
	if len(name) > 50 {
		return domain.Workspace{}, errors.New("name must be at most 50 characters")
	}
	plan, err := e.PlanFor(ctx, userID)
	if err != nil {
		return domain.Workspace{}, err
	}
	owned, err := e.Repo.CountOwnedWorkspaces(ctx, userID)
	if err != nil {
		return domain.Workspace{}, err
	}
	if owned >= e.Config.WorkspaceLimit(plan) {
		return domain.Workspace{}, fmt.Errorf("%w: %s plan allows %d", ErrWorkspaceLimit, plan, e.Config.WorkspaceLimit(plan))
	}

	now := e.now().UTC().Format(time.RFC3339)
	w := domain.Workspace{
		ID:        uuid.New().String(),
		Name:      name,
		OwnerID:   userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkspace(ctx, tx, w); err != nil {
		return domain.Workspace{}, err
	}
	if err := e.Repo.InsertWorkspaceMember(ctx, tx, domain.WorkspaceMember{
		WorkspaceID: w.ID,
		UserID:      userID,
		Role:        "owner",
		JoinedAt:    now,
	}); err != nil {
		return domain.Workspace{}, err
	}
	if err := e.Events.Append(ctx, tx, events.WorkspaceCreated, w.ID, w.ID, userID, events.EventPayload{"name": w.Name}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return w, nil
}

// ListWorkspaces returns the user's workspaces.
func (e Engine) ListWorkspaces(ctx context.Context, userID string) ([]domain.Workspace, error) {
	return e.Repo.ListWorkspaces(ctx, userID)
}

// DeleteWorkspace removes a workspace and everything in it. Owner only;
// members, todos and the workspace row go in one transaction.
func (e Engine) DeleteWorkspace(ctx context.Context, workspaceID, userID string) error {
	w, err := e.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if w.OwnerID != userID {
		return ErrNotOwner
	}
	if w.Name == personalWorkspaceName {
		return ErrPersonalWorkspace
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteWorkspaceCascade(ctx, tx, workspaceID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.WorkspaceDeleted, workspaceID, workspaceID, userID, events.EventPayload{"name": w.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// requireMembership checks workspace access for todo placement.
func (e Engine) requireMembership(ctx context.Context, workspaceID, userID string) error {
	ok, err := e.Repo.IsWorkspaceMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}
