package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/task"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var acceptedBy, phase, moderatedBy sql.NullString
	var moderatedAt, acceptedAt, lastUpdate sql.NullTime

	err := scanner.Scan(
		&t.ID, &t.CreatedBy, &acceptedBy, &t.Status, &phase,
		&t.Title, &t.Description, &t.StoreName, &t.DropoffAddress, &t.DropoffInstructions,
		&t.Category, &t.Urgency, &t.RewardAmount, &t.EstimatedMinutes, &t.AcceptanceCode,
		&t.ModerationStatus, &t.ModerationReason, &moderatedBy, &moderatedAt,
		&t.CreatedAt, &acceptedAt, &lastUpdate, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.AcceptedBy = stringPtr(acceptedBy)
	if phase.Valid {
		p := model.Phase(phase.String)
		t.CurrentPhase = &p
	}
	t.ModeratedBy = stringPtr(moderatedBy)
	t.ModeratedAt = timePtr(moderatedAt)
	t.AcceptedAt = timePtr(acceptedAt)
	t.LastStatusUpdate = timePtr(lastUpdate)
	return &t, nil
}

const taskCols = `id, created_by, accepted_by, status, task_current_status,
	title, description, store_name, dropoff_address, dropoff_instructions,
	category, urgency, reward_amount, estimated_minutes, acceptance_code,
	moderation_status, moderation_reason, moderated_by, moderated_at,
	created_at, accepted_at, last_status_update, updated_at`

func getTask(ctx context.Context, q queryer, id string) (*model.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Create inserts an open task and credits the poster's XP in one transaction.
func (s *TaskStore) Create(ctx context.Context, createdBy string, in model.NewTask, now time.Time) (*model.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, created_by, status, title, description, store_name, dropoff_address,
			dropoff_instructions, category, urgency, reward_amount, estimated_minutes, created_at, updated_at)
		 VALUES (?, ?, 'open', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, createdBy, in.Title, in.Description, in.StoreName, in.DropoffAddress,
		in.DropoffInstructions, in.Category, in.Urgency, in.RewardAmount, in.EstimatedMinutes, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	if err := insertHistory(ctx, tx, id, createdBy, "", string(model.StatusOpen), "", "", now); err != nil {
		return nil, err
	}
	if err := insertLedger(ctx, tx, xpTable, createdBy, task.XPPosted, model.ReasonTaskPosted, &id, now); err != nil {
		return nil, err
	}

	t, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (s *TaskStore) GetByID(ctx context.Context, id string) (*model.Task, error) {
	return getTask(ctx, s.db, id)
}

func (s *TaskStore) list(ctx context.Context, where string, args ...any) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE `+where+` ORDER BY created_at DESC, rowid DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// ListOpen returns open, visible tasks, newest first.
func (s *TaskStore) ListOpen(ctx context.Context) ([]model.Task, error) {
	return s.list(ctx, `status = 'open' AND moderation_status <> 'rejected'`)
}

func (s *TaskStore) ListPostedBy(ctx context.Context, userID string) ([]model.Task, error) {
	return s.list(ctx, `created_by = ?`, userID)
}

func (s *TaskStore) ListAcceptedBy(ctx context.Context, userID string) ([]model.Task, error) {
	return s.list(ctx, `accepted_by = ?`, userID)
}

// Accept moves an open task to accepted for userID. The conditional update
// matches at most one caller; everyone else gets a classified *task.Error.
// The chat room, both memberships, the history row and the accepter's XP are
// written in the same transaction.
func (s *TaskStore) Accept(ctx context.Context, taskID, userID, code string, now time.Time) (*model.Acceptance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'accepted', task_current_status = 'accepted', accepted_by = ?,
			accepted_at = ?, last_status_update = ?, acceptance_code = ?, updated_at = ?
		 WHERE id = ? AND status = 'open' AND created_by <> ? AND moderation_status <> 'rejected'`,
		userID, now, now, code, now, taskID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("accept task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		t, err := getTask(ctx, tx, taskID)
		if err != nil {
			return nil, err
		}
		return nil, task.ClassifyAcceptMiss(t, taskID, userID)
	}

	t, err := getTask(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}

	roomID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_rooms (id, task_id, created_at) VALUES (?, ?, ?)`,
		roomID, taskID, now,
	); err != nil {
		return nil, fmt.Errorf("insert chat room: %w", err)
	}
	for _, member := range []string{t.CreatedBy, userID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (room_id, user_id, joined_at) VALUES (?, ?, ?)`,
			roomID, member, now,
		); err != nil {
			return nil, fmt.Errorf("insert chat member: %w", err)
		}
	}

	if err := insertHistory(ctx, tx, taskID, userID, string(model.StatusOpen), string(model.PhaseAccepted), "", "", now); err != nil {
		return nil, err
	}
	if err := insertLedger(ctx, tx, xpTable, userID, task.XPAccepted, model.ReasonTaskAccepted, &taskID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &model.Acceptance{Task: t, AcceptanceCode: code, ChatRoomID: roomID}, nil
}

// AdvancePhase moves an accepted task one phase forward on behalf of its
// accepter and records the change. Completing the task pays out rewards.
func (s *TaskStore) AdvancePhase(ctx context.Context, taskID, userID string, to model.Phase, note, photoRef string, now time.Time) (*model.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := getTask(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, task.Errorf(task.KindNotFound, taskID, "no such task")
	}
	if err := task.CheckAdvance(t, userID, to); err != nil {
		return nil, err
	}
	from := *t.CurrentPhase

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET task_current_status = ?, status = ?, last_status_update = ?, updated_at = ?
		 WHERE id = ? AND accepted_by = ? AND task_current_status = ? AND status IN ('accepted', 'in_progress')`,
		to, task.StatusFor(to), now, now, taskID, userID, from,
	)
	if err != nil {
		return nil, fmt.Errorf("advance phase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, task.Errorf(task.KindInvalidTransition, taskID, "phase changed concurrently")
	}

	if err := insertHistory(ctx, tx, taskID, userID, string(from), string(to), note, photoRef, now); err != nil {
		return nil, err
	}

	if to == model.PhaseCompleted {
		if err := insertLedger(ctx, tx, xpTable, userID, task.XPCompleted, model.ReasonTaskCompleted, &taskID, now); err != nil {
			return nil, err
		}
		if t.RewardAmount > 0 {
			if err := insertLedger(ctx, tx, creditTable, userID, t.RewardAmount, model.ReasonTaskReward, &taskID, now); err != nil {
				return nil, err
			}
		}
		if err := insertLedger(ctx, tx, xpTable, t.CreatedBy, task.XPFulfilled, model.ReasonTaskFulfilled, &taskID, now); err != nil {
			return nil, err
		}
	}

	updated, err := getTask(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// Cancel cancels a task on behalf of its poster. It returns the updated task
// and the accepter the task had before cancellation, if any.
func (s *TaskStore) Cancel(ctx context.Context, taskID, userID string, now time.Time) (*model.Task, string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := getTask(ctx, tx, taskID)
	if err != nil {
		return nil, "", err
	}
	if t == nil {
		return nil, "", task.Errorf(task.KindNotFound, taskID, "no such task")
	}
	if err := task.CheckCancel(t, userID); err != nil {
		return nil, "", err
	}

	var former string
	if t.AcceptedBy != nil {
		former = *t.AcceptedBy
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'cancelled', accepted_by = NULL, last_status_update = ?, updated_at = ?
		 WHERE id = ? AND created_by = ?
		   AND (status = 'open' OR (status = 'accepted' AND task_current_status = 'accepted'))`,
		now, now, taskID, userID,
	)
	if err != nil {
		return nil, "", fmt.Errorf("cancel task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, "", fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, "", task.Errorf(task.KindInvalidState, taskID, "status changed concurrently")
	}

	from := string(t.Status)
	if t.CurrentPhase != nil {
		from = string(*t.CurrentPhase)
	}
	if err := insertHistory(ctx, tx, taskID, userID, from, string(model.StatusCancelled), "", "", now); err != nil {
		return nil, "", err
	}

	updated, err := getTask(ctx, tx, taskID)
	if err != nil {
		return nil, "", err
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit: %w", err)
	}
	return updated, former, nil
}

// Moderate records a moderation decision. It does not touch lifecycle fields.
func (s *TaskStore) Moderate(ctx context.Context, taskID, moderatorID string, status model.ModerationStatus, reason string, now time.Time) (*model.Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET moderation_status = ?, moderation_reason = ?, moderated_by = ?, moderated_at = ?, updated_at = ?
		 WHERE id = ?`,
		status, reason, moderatorID, now, now, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("moderate task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, taskID)
}

// --- Status history ---

func insertHistory(ctx context.Context, q queryer, taskID, changedBy, from, to, note, photoRef string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO task_status_history (task_id, changed_by, from_status, to_status, note, photo_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		taskID, changedBy, from, to, note, photoRef, now,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

const historyCols = `id, task_id, changed_by, from_status, to_status, note, photo_ref, created_at`

// History returns the status changes of a task, newest first.
func (s *TaskStore) History(ctx context.Context, taskID string) ([]model.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyCols+` FROM task_status_history WHERE task_id = ? ORDER BY created_at DESC, id DESC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var changes []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		if err := rows.Scan(&c.ID, &c.TaskID, &c.ChangedBy, &c.From, &c.To, &c.Note, &c.PhotoRef, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
