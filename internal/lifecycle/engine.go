// Package lifecycle runs task state transitions: the checks, the atomic
// store update, and the fan-out that follows a successful commit.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukerupert/errand/internal/auth"
	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/notify"
	"github.com/dukerupert/errand/internal/realtime"
	"github.com/dukerupert/errand/internal/store"
	"github.com/dukerupert/errand/internal/task"
)

// Notifier fans an event out after commit.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) []model.Notification
}

// Broadcaster pushes task changes to every realtime subscriber.
type Broadcaster interface {
	Broadcast(ev realtime.Event)
}

// Engine is the only writer of task lifecycle state.
type Engine struct {
	tasks    *store.TaskStore
	notifier Notifier
	hub      Broadcaster
	logger   *slog.Logger
	now      func() time.Time
	newCode  func() string
}

type Option func(*Engine)

// WithClock overrides the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCodeGenerator overrides acceptance code generation.
func WithCodeGenerator(gen func() string) Option {
	return func(e *Engine) { e.newCode = gen }
}

// New creates an Engine. notifier and hub may be nil.
func New(tasks *store.TaskStore, notifier Notifier, hub Broadcaster, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		tasks:    tasks,
		notifier: notifier,
		hub:      hub,
		logger:   logger.With("component", "lifecycle"),
		now:      func() time.Time { return time.Now().UTC() },
		newCode:  task.NewAcceptanceCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func requireMember(caller auth.AuthContext) error {
	if caller.UserID == "" || caller.Guest {
		return task.Errorf(task.KindUnauthenticated, "", "caller must be a signed-in member")
	}
	return nil
}

// classify turns store failures into *task.Error. Classified errors pass
// through unchanged.
func (e *Engine) classify(op, taskID string, err error) error {
	if err == nil {
		return nil
	}
	var te *task.Error
	if errors.As(err, &te) {
		return te
	}
	if store.IsTransient(err) {
		e.logger.Warn("transient store error", "op", op, "task_id", taskID, "error", err)
		return task.Wrap(task.KindTransient, taskID, err)
	}
	e.logger.Error("store error", "op", op, "task_id", taskID, "error", err)
	return task.Wrap(task.KindUnknown, taskID, err)
}

// afterCommit runs fan-out detached from the request's cancellation.
func (e *Engine) afterCommit(ctx context.Context, ev notify.Event, action string) {
	ctx = context.WithoutCancel(ctx)
	if e.hub != nil {
		e.hub.Broadcast(realtime.NewEvent("task", action, ev.Task.ID, ev.Task))
	}
	if e.notifier != nil {
		e.notifier.Notify(ctx, ev)
	}
}

// CreateTask posts a new open task on behalf of caller.
func (e *Engine) CreateTask(ctx context.Context, caller auth.AuthContext, in model.NewTask) (*model.Task, error) {
	if err := requireMember(caller); err != nil {
		return nil, err
	}
	in, err := task.Normalize(in)
	if err != nil {
		return nil, err
	}

	t, err := e.tasks.Create(ctx, caller.UserID, in, e.now())
	if err != nil {
		return nil, e.classify("create", "", err)
	}
	e.logger.Info("task posted", "task_id", t.ID, "user_id", caller.UserID)

	e.afterCommit(ctx, notify.Event{Type: model.NotifTypeTaskPosted, Task: t, ActorID: caller.UserID}, "created")
	return t, nil
}

// Accept assigns an open task to caller. Of any number of concurrent
// callers at most one succeeds; the rest get TASK_ALREADY_ACCEPTED.
func (e *Engine) Accept(ctx context.Context, caller auth.AuthContext, taskID string) (*model.Acceptance, error) {
	if err := requireMember(caller); err != nil {
		return nil, err
	}

	acc, err := e.tasks.Accept(ctx, taskID, caller.UserID, e.newCode(), e.now())
	if err != nil {
		return nil, e.classify("accept", taskID, err)
	}
	e.logger.Info("task accepted", "task_id", taskID, "user_id", caller.UserID, "chat_room_id", acc.ChatRoomID)

	e.afterCommit(ctx, notify.Event{Type: model.NotifTypeTaskAccepted, Task: acc.Task, ActorID: caller.UserID}, "accepted")
	return acc, nil
}

// AdvancePhase moves caller's accepted task to the next delivery phase.
func (e *Engine) AdvancePhase(ctx context.Context, caller auth.AuthContext, taskID, phase, note, photoRef string) (*model.Task, error) {
	if err := requireMember(caller); err != nil {
		return nil, err
	}
	to, ok := task.ParsePhase(phase)
	if !ok {
		return nil, task.Errorf(task.KindInvalidTransition, taskID, "unknown phase %q", phase)
	}

	t, err := e.tasks.AdvancePhase(ctx, taskID, caller.UserID, to, note, photoRef, e.now())
	if err != nil {
		return nil, e.classify("advance", taskID, err)
	}
	e.logger.Info("task phase advanced", "task_id", taskID, "phase", to, "user_id", caller.UserID)

	action := "updated"
	if to == model.PhaseCompleted {
		action = "completed"
	}
	e.afterCommit(ctx, notify.Event{Type: model.NotifTypeTaskUpdated, Task: t, ActorID: caller.UserID}, action)
	return t, nil
}

// CancelTask cancels caller's task while it is open or accepted but not yet
// picked up.
func (e *Engine) CancelTask(ctx context.Context, caller auth.AuthContext, taskID string) (*model.Task, error) {
	if err := requireMember(caller); err != nil {
		return nil, err
	}

	t, former, err := e.tasks.Cancel(ctx, taskID, caller.UserID, e.now())
	if err != nil {
		return nil, e.classify("cancel", taskID, err)
	}
	e.logger.Info("task cancelled", "task_id", taskID, "user_id", caller.UserID)

	e.afterCommit(ctx, notify.Event{
		Type:           model.NotifTypeTaskUpdated,
		Task:           t,
		ActorID:        caller.UserID,
		FormerAccepter: former,
		Cancelled:      true,
	}, "cancelled")
	return t, nil
}

// VerifyHandoff checks the acceptance code presented at handoff.
func (e *Engine) VerifyHandoff(ctx context.Context, caller auth.AuthContext, taskID, code string) (bool, error) {
	if err := requireMember(caller); err != nil {
		return false, err
	}
	t, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return false, e.classify("verify", taskID, err)
	}
	if t == nil {
		return false, task.Errorf(task.KindNotFound, taskID, "no such task")
	}
	if !t.IsParticipant(caller.UserID) {
		return false, task.Errorf(task.KindNotAuthorized, taskID, "caller is not a participant")
	}
	if t.Status.Terminal() {
		return false, task.Errorf(task.KindTerminal, taskID, "status is %s", t.Status)
	}
	if t.AcceptedBy == nil {
		return false, task.Errorf(task.KindInvalidState, taskID, "task has not been accepted")
	}
	return task.CodesMatch(t.AcceptanceCode, code), nil
}

// AcceptanceCode returns the hand-off code to the accepter of a live task.
// The poster never sees it; they receive it in person.
func (e *Engine) AcceptanceCode(ctx context.Context, caller auth.AuthContext, taskID string) (string, error) {
	if err := requireMember(caller); err != nil {
		return "", err
	}
	t, err := e.Get(ctx, caller, taskID)
	if err != nil {
		return "", err
	}
	if t.AcceptedBy == nil || *t.AcceptedBy != caller.UserID {
		return "", task.Errorf(task.KindNotAuthorized, taskID, "only the accepter may read the code")
	}
	if t.Status.Terminal() {
		return "", task.Errorf(task.KindTerminal, taskID, "status is %s", t.Status)
	}
	return t.AcceptanceCode, nil
}

// Moderate records an admin moderation decision.
func (e *Engine) Moderate(ctx context.Context, caller auth.AuthContext, taskID string, status model.ModerationStatus, reason string) (*model.Task, error) {
	if err := requireMember(caller); err != nil {
		return nil, err
	}
	if caller.Role != "admin" {
		return nil, task.Errorf(task.KindNotAuthorized, taskID, "moderation requires admin")
	}
	switch status {
	case model.ModerationApproved, model.ModerationPending, model.ModerationRejected:
	default:
		return nil, task.Errorf(task.KindInvalidInput, taskID, "unknown moderation status %q", status)
	}

	t, err := e.tasks.Moderate(ctx, taskID, caller.UserID, status, reason, e.now())
	if err != nil {
		return nil, e.classify("moderate", taskID, err)
	}
	if t == nil {
		return nil, task.Errorf(task.KindNotFound, taskID, "no such task")
	}
	e.logger.Info("task moderated", "task_id", taskID, "status", status, "user_id", caller.UserID)
	if e.hub != nil {
		e.hub.Broadcast(realtime.NewEvent("task", "moderated", t.ID, t))
	}
	return t, nil
}
