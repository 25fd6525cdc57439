package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/push"
	"github.com/dukerupert/errand/internal/realtime"
)

func ptr[T any](v T) *T { return &v }

func testTask() *model.Task {
	return &model.Task{ID: "t1", CreatedBy: "poster", Title: "Coffee", Status: model.StatusOpen}
}

func TestRecipients(t *testing.T) {
	accepted := testTask()
	accepted.AcceptedBy = ptr("runner")
	accepted.Status = model.StatusAccepted

	tests := []struct {
		name     string
		ev       Event
		audience []string
		want     []string
	}{
		{"posted excludes poster", Event{Type: model.NotifTypeTaskPosted, Task: testTask()}, []string{"a", "poster", "b", "a"}, []string{"a", "b"}},
		{"posted empty audience", Event{Type: model.NotifTypeTaskPosted, Task: testTask()}, nil, []string{}},
		{"accepted goes to poster", Event{Type: model.NotifTypeTaskAccepted, Task: accepted}, []string{"x"}, []string{"poster"}},
		{"updated both parties", Event{Type: model.NotifTypeTaskUpdated, Task: accepted}, nil, []string{"poster", "runner"}},
		{"updated open task", Event{Type: model.NotifTypeTaskUpdated, Task: testTask()}, nil, []string{"poster"}},
		{"cancel reaches former accepter", Event{Type: model.NotifTypeTaskUpdated, Task: testTask(), FormerAccepter: "runner", Cancelled: true}, nil, []string{"poster", "runner"}},
		{"former accepter deduped", Event{Type: model.NotifTypeTaskUpdated, Task: accepted, FormerAccepter: "runner"}, nil, []string{"poster", "runner"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recipients(tt.ev, tt.audience)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Recipients = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContent(t *testing.T) {
	tk := testTask()
	tk.Status = model.StatusInProgress
	tk.CurrentPhase = ptr(model.PhaseOnTheWay)

	title, body, meta := Content(Event{Type: model.NotifTypeTaskUpdated, Task: tk, ActorID: "runner"}, "Ada")
	if title != "On the way" || body != `Ada is on the way with "Coffee"` {
		t.Errorf("title %q body %q", title, body)
	}
	var m map[string]string
	if err := json.Unmarshal(meta, &m); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if m["task_id"] != "t1" || m["phase"] != "on_the_way" || m["actor_id"] != "runner" {
		t.Errorf("metadata = %v", m)
	}

	tk.Status = model.StatusCancelled
	if title, _, _ := Content(Event{Type: model.NotifTypeTaskUpdated, Task: tk, Cancelled: true}, "Bo"); title != "Task cancelled" {
		t.Errorf("cancel title = %q", title)
	}
}

type memWriter struct {
	rows []model.Notification
	err  error
}

func (w *memWriter) CreateBatch(_ context.Context, in []model.Notification) ([]model.Notification, error) {
	if w.err != nil {
		return nil, w.err
	}
	for i := range in {
		in[i].ID = int64(len(w.rows) + 1)
		w.rows = append(w.rows, in[i])
	}
	return in, nil
}

type prefMap map[string]model.NotificationPreference

func (p prefMap) Get(_ context.Context, userID string) (model.NotificationPreference, error) {
	if pref, ok := p[userID]; ok {
		return pref, nil
	}
	return model.DefaultPreference(userID), nil
}

type names map[string]string

func (n names) Get(_ context.Context, id string) (model.Profile, error) {
	return model.Profile{ID: id, Name: n[id]}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]realtime.Event
}

func (p *recordingPublisher) Publish(userID string, ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][]realtime.Event{}
	}
	p.events[userID] = append(p.events[userID], ev)
}

type recordingQueue struct {
	users   []string
	payload push.Payload
	calls   int
}

func (q *recordingQueue) Enqueue(userIDs []string, payload push.Payload) bool {
	q.calls++
	q.users = userIDs
	q.payload = payload
	return true
}

type staticAudience []string

func (a staticAudience) Members(context.Context, *model.Task) ([]string, error) { return a, nil }

func TestNotifyFanOut(t *testing.T) {
	w := &memWriter{}
	pub := &recordingPublisher{}
	q := &recordingQueue{}
	prefs := prefMap{"b": {UserID: "b", TaskPosted: false, TaskAccepted: true, TaskUpdated: true}}
	n := New(w, prefs, names{"poster": "Pat"}, pub, q, staticAudience{"a", "b", "c", "poster"}, slog.Default())

	rows := n.Notify(context.Background(), Event{Type: model.NotifTypeTaskPosted, Task: testTask(), ActorID: "poster"})

	var got []string
	for _, r := range rows {
		got = append(got, r.UserID)
		if r.ID == 0 || r.TaskID == nil || *r.TaskID != "t1" || r.Type != model.NotifTypeTaskPosted {
			t.Errorf("row = %+v", r)
		}
		if r.Body != "Pat needs help: Coffee" {
			t.Errorf("body = %q", r.Body)
		}
	}
	if !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("recipients = %v, want [a c]", got)
	}
	if len(pub.events["a"]) != 1 || len(pub.events["c"]) != 1 || len(pub.events["b"]) != 0 {
		t.Errorf("realtime events = %v", pub.events)
	}
	if pub.events["a"][0].Type != "notification_created" {
		t.Errorf("event type = %q", pub.events["a"][0].Type)
	}
	if q.calls != 1 || !slices.Equal(q.users, []string{"a", "c"}) || q.payload.URL != "/tasks/t1" {
		t.Errorf("push = %+v", q)
	}
}

func TestNotifyAllDisabledCreatesNothing(t *testing.T) {
	w := &memWriter{}
	q := &recordingQueue{}
	prefs := prefMap{"poster": {UserID: "poster", TaskPosted: true, TaskAccepted: false, TaskUpdated: true}}
	n := New(w, prefs, names{}, nil, q, nil, slog.Default())

	tk := testTask()
	tk.AcceptedBy = ptr("runner")
	rows := n.Notify(context.Background(), Event{Type: model.NotifTypeTaskAccepted, Task: tk, ActorID: "runner"})

	if len(rows) != 0 || len(w.rows) != 0 || q.calls != 0 {
		t.Errorf("rows %d stored %d pushes %d, want none", len(rows), len(w.rows), q.calls)
	}
}

func TestNotifyStoreFailureIsSwallowed(t *testing.T) {
	w := &memWriter{err: errors.New("database is locked")}
	q := &recordingQueue{}
	n := New(w, prefMap{}, names{}, nil, q, nil, slog.Default())

	tk := testTask()
	tk.AcceptedBy = ptr("runner")
	rows := n.Notify(context.Background(), Event{Type: model.NotifTypeTaskUpdated, Task: tk, ActorID: "runner"})
	if rows != nil || q.calls != 0 {
		t.Errorf("rows %v pushes %d after store failure", rows, q.calls)
	}
}

func TestNotifyNoAudienceByDefault(t *testing.T) {
	w := &memWriter{}
	n := New(w, prefMap{}, names{}, nil, nil, nil, slog.Default())
	if rows := n.Notify(context.Background(), Event{Type: model.NotifTypeTaskPosted, Task: testTask()}); len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}
}
