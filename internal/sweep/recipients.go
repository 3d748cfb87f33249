package sweep

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"taskpulse/internal/domain"
	"taskpulse/internal/store"
)

// Resolver decides who gets a task's notification. Assigned tasks go to the
// assignee plus the creator; unassigned tasks fan out to the whole workspace.
// Inactive users are returned too; the sweep filters them at send time.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

func (r *Resolver) Resolve(ctx context.Context, t domain.Task) ([]domain.User, error) {
	if t.AssignedTo == nil {
		return r.store.GetWorkspaceMembers(ctx, t.WorkspaceID)
	}

	var recipients []domain.User
	if u, ok := r.lookup(ctx, *t.AssignedTo, t.ID); ok {
		recipients = append(recipients, u)
	}
	if t.CreatedBy != *t.AssignedTo {
		if u, ok := r.lookup(ctx, t.CreatedBy, t.ID); ok {
			recipients = append(recipients, u)
		}
	}
	return recipients, nil
}

func (r *Resolver) lookup(ctx context.Context, userID, taskID string) (domain.User, bool) {
	u, err := r.store.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Str("user_id", userID).Str("task_id", taskID).Msg("failed to load recipient")
		}
		return domain.User{}, false
	}
	return u, true
}
