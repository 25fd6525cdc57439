package lifecycle

import (
	"context"

	"github.com/dukerupert/errand/internal/auth"
	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/task"
)

// visible hides rejected tasks from everyone but the poster and admins.
func visible(t *model.Task, caller auth.AuthContext) bool {
	if t.ModerationStatus != model.ModerationRejected {
		return true
	}
	return caller.Role == "admin" || t.CreatedBy == caller.UserID
}

// Get returns a task the caller may see.
func (e *Engine) Get(ctx context.Context, caller auth.AuthContext, taskID string) (*model.Task, error) {
	t, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, e.classify("get", taskID, err)
	}
	if t == nil || !visible(t, caller) {
		return nil, task.Errorf(task.KindNotFound, taskID, "no such task")
	}
	return t, nil
}

// ListOpen returns tasks available to accept, newest first.
func (e *Engine) ListOpen(ctx context.Context) ([]model.Task, error) {
	tasks, err := e.tasks.ListOpen(ctx)
	if err != nil {
		return nil, e.classify("list_open", "", err)
	}
	return tasks, nil
}

// ListPostedBy returns the tasks userID posted, newest first.
func (e *Engine) ListPostedBy(ctx context.Context, caller auth.AuthContext, userID string) ([]model.Task, error) {
	tasks, err := e.tasks.ListPostedBy(ctx, userID)
	if err != nil {
		return nil, e.classify("list_posted", "", err)
	}
	return filterVisible(tasks, caller), nil
}

// ListAcceptedBy returns the tasks userID accepted, newest first.
func (e *Engine) ListAcceptedBy(ctx context.Context, caller auth.AuthContext, userID string) ([]model.Task, error) {
	tasks, err := e.tasks.ListAcceptedBy(ctx, userID)
	if err != nil {
		return nil, e.classify("list_accepted", "", err)
	}
	return filterVisible(tasks, caller), nil
}

// History returns a task's status changes, newest first.
func (e *Engine) History(ctx context.Context, caller auth.AuthContext, taskID string) ([]model.StatusChange, error) {
	if _, err := e.Get(ctx, caller, taskID); err != nil {
		return nil, err
	}
	changes, err := e.tasks.History(ctx, taskID)
	if err != nil {
		return nil, e.classify("history", taskID, err)
	}
	return changes, nil
}

func filterVisible(tasks []model.Task, caller auth.AuthContext) []model.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if visible(&t, caller) {
			out = append(out, t)
		}
	}
	return out
}
