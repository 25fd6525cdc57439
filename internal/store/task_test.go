package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/errand/internal/database"
	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/task"
)

// setupTestDB opens a migrated database file. Concurrency tests need a real
// file so that several pooled connections share it.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, name string) string {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), name+"@campus.edu", name, "")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u.ID
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func createTestTask(t *testing.T, ts *TaskStore, poster string) *model.Task {
	t.Helper()
	tk, err := ts.Create(context.Background(), poster, model.NewTask{
		Title:        "Coffee from the union",
		Category:     "food",
		Urgency:      model.UrgencyNormal,
		RewardAmount: 300,
	}, testNow)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return tk
}

func TestTaskCreate(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	poster := createTestUser(t, db, "poster")

	tk := createTestTask(t, ts, poster)
	if tk.Status != model.StatusOpen {
		t.Errorf("status = %q, want open", tk.Status)
	}
	if tk.AcceptedBy != nil || tk.CurrentPhase != nil {
		t.Errorf("new task has accepter %v phase %v", tk.AcceptedBy, tk.CurrentPhase)
	}
	if tk.ModerationStatus != model.ModerationApproved {
		t.Errorf("moderation = %q, want approved", tk.ModerationStatus)
	}

	bal, err := NewLedgerStore(db).Balance(context.Background(), poster)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.XP != task.XPPosted {
		t.Errorf("poster xp = %d, want %d", bal.XP, task.XPPosted)
	}
}

func TestTaskGetByIDNotFound(t *testing.T) {
	ts := NewTaskStore(setupTestDB(t))
	got, err := ts.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestTaskAccept(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts := NewTaskStore(db)
	poster := createTestUser(t, db, "poster")
	runner := createTestUser(t, db, "runner")
	tk := createTestTask(t, ts, poster)

	acc, err := ts.Accept(ctx, tk.ID, runner, "01234", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if acc.Task.Status != model.StatusAccepted {
		t.Errorf("status = %q, want accepted", acc.Task.Status)
	}
	if acc.Task.CurrentPhase == nil || *acc.Task.CurrentPhase != model.PhaseAccepted {
		t.Errorf("phase = %v, want accepted", acc.Task.CurrentPhase)
	}
	if acc.Task.AcceptedBy == nil || *acc.Task.AcceptedBy != runner {
		t.Errorf("accepted_by = %v, want %s", acc.Task.AcceptedBy, runner)
	}
	if acc.Task.AcceptedAt == nil {
		t.Error("expected accepted_at")
	}
	if acc.AcceptanceCode != "01234" || acc.Task.AcceptanceCode != "01234" {
		t.Errorf("code = %q/%q", acc.AcceptanceCode, acc.Task.AcceptanceCode)
	}

	cs := NewChatStore(db)
	room, err := cs.GetRoomByTask(ctx, tk.ID)
	if err != nil || room == nil {
		t.Fatalf("room = %v, err = %v", room, err)
	}
	if room.ID != acc.ChatRoomID {
		t.Errorf("room id = %q, want %q", room.ID, acc.ChatRoomID)
	}
	members, err := cs.ListMembers(ctx, room.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 || members[0].UserID != poster || members[1].UserID != runner {
		t.Errorf("members = %+v", members)
	}

	hist, err := ts.History(ctx, tk.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].From != "open" || hist[0].To != "accepted" {
		t.Errorf("history = %+v", hist)
	}
}

func TestTaskAcceptMisses(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts := NewTaskStore(db)
	poster := createTestUser(t, db, "poster")
	runner := createTestUser(t, db, "runner")
	other := createTestUser(t, db, "other")
	tk := createTestTask(t, ts, poster)

	if _, err := ts.Accept(ctx, tk.ID, poster, "11111", testNow); !errors.Is(err, task.ErrOwnTask) {
		t.Errorf("self accept err = %v, want own task", err)
	}
	if _, err := ts.Accept(ctx, "missing", runner, "11111", testNow); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("missing err = %v, want not found", err)
	}
	if _, err := ts.Accept(ctx, tk.ID, runner, "11111", testNow); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := ts.Accept(ctx, tk.ID, runner, "22222", testNow); !errors.Is(err, task.ErrAlreadyAccepted) {
		t.Errorf("double tap err = %v, want already accepted", err)
	}
	if _, err := ts.Accept(ctx, tk.ID, other, "33333", testNow); !errors.Is(err, task.ErrAlreadyAccepted) {
		t.Errorf("late err = %v, want already accepted", err)
	}

	got, _ := ts.GetByID(ctx, tk.ID)
	if got.AcceptanceCode != "11111" {
		t.Errorf("code overwritten: %q", got.AcceptanceCode)
	}
}

func TestTaskAcceptRejectedIsNotFound(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts := NewTaskStore(db)
	poster := createTestUser(t, db, "poster")
	runner := createTestUser(t, db, "runner")
	tk := createTestTask(t, ts, poster)

	if _, err := ts.Moderate(ctx, tk.ID, poster, model.ModerationRejected, "spam", testNow); err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if _, err := ts.Accept(ctx, tk.ID, runner, "11111", testNow); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	open, err := ts.ListOpen(ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("rejected task listed as open")
	}
}

func TestTaskAcceptRace(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts := NewTaskStore(db)
	poster := createTestUser(t, db, "poster")
	tk := createTestTask(t, ts, poster)

	const n = 12
	runners := make([]string, n)
	for i := range runners {
		runners[i] = createTestUser(t, db, fmt.Sprintf("runner%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = ts.Accept(ctx, tk.ID, runners[i], task.NewAcceptanceCode(), testNow)
		}()
	}
	close(start)
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, task.ErrAlreadyAccepted):
		default:
			t.Errorf("runner %d: unexpected err %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}

	rooms, err := NewChatStore(db).CountRooms(ctx, tk.ID)
	if err != nil {
		t.Fatalf("count rooms: %v", err)
	}
	if rooms != 1 {
		t.Errorf("rooms = %d, want 1", rooms)
	}

	var accepts int
	if err := db.QueryRow(`SELECT COUNT(*) FROM xp_transactions WHERE reason = ? AND task_id = ?`,
		model.ReasonTaskAccepted, tk.ID).Scan(&accepts); err != nil {
		t.Fatalf("count xp: %v", err)
	}
	if accepts != 1 {
		t.Errorf("accept xp rows = %d, want 1", accepts)
	}
}

func acceptedTestTask(t *testing.T, db *sql.DB) (*TaskStore, *model.Task, string, string) {
	t.Helper()
	ts := NewTaskStore(db)
	poster := createTestUser(t, db, "poster")
	runner := createTestUser(t, db, "runner")
	tk := createTestTask(t, ts, poster)
	acc, err := ts.Accept(context.Background(), tk.ID, runner, "12345", testNow)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return ts, acc.Task, poster, runner
}

func TestTaskAdvancePhaseToCompletion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts, tk, poster, runner := acceptedTestTask(t, db)

	steps := []struct {
		phase  model.Phase
		status model.Status
	}{
		{model.PhasePickedUp, model.StatusInProgress},
		{model.PhaseOnTheWay, model.StatusInProgress},
		{model.PhaseDelivered, model.StatusInProgress},
		{model.PhaseCompleted, model.StatusCompleted},
	}
	for i, step := range steps {
		got, err := ts.AdvancePhase(ctx, tk.ID, runner, step.phase, "", "", testNow.Add(time.Duration(i+1)*time.Minute))
		if err != nil {
			t.Fatalf("advance to %s: %v", step.phase, err)
		}
		if got.Status != step.status || *got.CurrentPhase != step.phase {
			t.Errorf("after %s: status %q phase %q", step.phase, got.Status, *got.CurrentPhase)
		}
	}

	ls := NewLedgerStore(db)
	rb, _ := ls.Balance(ctx, runner)
	if rb.XP != task.XPAccepted+task.XPCompleted || rb.Credits != 300 {
		t.Errorf("runner balance = %+v", rb)
	}
	pb, _ := ls.Balance(ctx, poster)
	if pb.XP != task.XPPosted+task.XPFulfilled || pb.Credits != 0 {
		t.Errorf("poster balance = %+v", pb)
	}

	if _, err := ts.AdvancePhase(ctx, tk.ID, runner, model.PhaseCompleted, "", "", testNow); !errors.Is(err, task.ErrTerminal) {
		t.Errorf("advance completed err = %v, want terminal", err)
	}
	if _, _, err := ts.Cancel(ctx, tk.ID, poster, testNow); !errors.Is(err, task.ErrTerminal) {
		t.Errorf("cancel completed err = %v, want terminal", err)
	}

	hist, _ := ts.History(ctx, tk.ID)
	if len(hist) != 6 {
		t.Errorf("history rows = %d, want 6", len(hist))
	}
}

func TestTaskAdvancePhaseRejections(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts, tk, poster, runner := acceptedTestTask(t, db)

	if _, err := ts.AdvancePhase(ctx, tk.ID, poster, model.PhasePickedUp, "", "", testNow); !errors.Is(err, task.ErrNotAuthorized) {
		t.Errorf("poster advance err = %v, want not authorized", err)
	}
	if _, err := ts.AdvancePhase(ctx, tk.ID, runner, model.PhaseDelivered, "", "", testNow); !errors.Is(err, task.ErrInvalidTransition) {
		t.Errorf("skip err = %v, want invalid transition", err)
	}
	if _, err := ts.AdvancePhase(ctx, "missing", runner, model.PhasePickedUp, "", "", testNow); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("missing err = %v, want not found", err)
	}

	got, _ := ts.GetByID(ctx, tk.ID)
	if *got.CurrentPhase != model.PhaseAccepted {
		t.Errorf("phase changed to %q by rejected calls", *got.CurrentPhase)
	}
}

func TestTaskAdvancePhaseRecordsNote(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts, tk, _, runner := acceptedTestTask(t, db)

	if _, err := ts.AdvancePhase(ctx, tk.ID, runner, model.PhasePickedUp, "got it", "photos/receipt.jpg", testNow); err != nil {
		t.Fatalf("advance: %v", err)
	}
	hist, _ := ts.History(ctx, tk.ID)
	if hist[0].Note != "got it" || hist[0].PhotoRef != "photos/receipt.jpg" || hist[0].ChangedBy != runner {
		t.Errorf("latest history = %+v", hist[0])
	}
}

func TestTaskCancel(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts, tk, poster, runner := acceptedTestTask(t, db)

	if _, _, err := ts.Cancel(ctx, tk.ID, runner, testNow); !errors.Is(err, task.ErrNotAuthorized) {
		t.Errorf("runner cancel err = %v, want not authorized", err)
	}

	got, former, err := ts.Cancel(ctx, tk.ID, poster, testNow)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.StatusCancelled || got.AcceptedBy != nil {
		t.Errorf("cancelled task = status %q accepted_by %v", got.Status, got.AcceptedBy)
	}
	if former != runner {
		t.Errorf("former accepter = %q, want %q", former, runner)
	}

	if _, err := ts.Accept(ctx, tk.ID, runner, "11111", testNow); !errors.Is(err, task.ErrTerminal) {
		t.Errorf("accept cancelled err = %v, want terminal", err)
	}
	if _, _, err := ts.Cancel(ctx, tk.ID, poster, testNow); !errors.Is(err, task.ErrTerminal) {
		t.Errorf("double cancel err = %v, want terminal", err)
	}
}

func TestTaskCancelAfterPickupIsInvalidState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts, tk, poster, runner := acceptedTestTask(t, db)

	if _, err := ts.AdvancePhase(ctx, tk.ID, runner, model.PhasePickedUp, "", "", testNow); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, _, err := ts.Cancel(ctx, tk.ID, poster, testNow); !errors.Is(err, task.ErrInvalidState) {
		t.Errorf("err = %v, want invalid state", err)
	}
}

func TestTaskCancelOpen(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts := NewTaskStore(db)
	poster := createTestUser(t, db, "poster")
	tk := createTestTask(t, ts, poster)

	got, former, err := ts.Cancel(ctx, tk.ID, poster, testNow)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.StatusCancelled || former != "" {
		t.Errorf("status %q former %q", got.Status, former)
	}
}

func TestTaskListsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ts := NewTaskStore(db)
	poster := createTestUser(t, db, "poster")
	runner := createTestUser(t, db, "runner")

	var ids []string
	for i := range 3 {
		tk, err := ts.Create(ctx, poster, model.NewTask{Title: fmt.Sprintf("task %d", i), Category: "other", Urgency: model.UrgencyLow}, testNow.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, tk.ID)
	}
	if _, err := ts.Accept(ctx, ids[0], runner, "00000", testNow); err != nil {
		t.Fatalf("accept: %v", err)
	}

	open, err := ts.ListOpen(ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 || open[0].ID != ids[2] || open[1].ID != ids[1] {
		t.Errorf("open order wrong: %v", open)
	}

	posted, _ := ts.ListPostedBy(ctx, poster)
	if len(posted) != 3 || posted[0].ID != ids[2] {
		t.Errorf("posted = %d tasks", len(posted))
	}
	accepted, _ := ts.ListAcceptedBy(ctx, runner)
	if len(accepted) != 1 || accepted[0].ID != ids[0] {
		t.Errorf("accepted = %v", accepted)
	}
}
