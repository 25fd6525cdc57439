package notify

import (
	"encoding/json"
	"fmt"

	"github.com/dukerupert/errand/internal/model"
)

type metadata struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Phase   string `json:"phase,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

// Content renders the title, body and metadata for ev.
func Content(ev Event, actorName string) (title, body string, meta json.RawMessage) {
	t := ev.Task
	switch ev.Type {
	case model.NotifTypeTaskPosted:
		title = "New task posted"
		body = fmt.Sprintf("%s needs help: %s", actorName, t.Title)
	case model.NotifTypeTaskAccepted:
		title = "Your task was accepted"
		body = fmt.Sprintf("%s accepted %q", actorName, t.Title)
	case model.NotifTypeTaskUpdated:
		title, body = updateText(ev, actorName)
	}

	m := metadata{TaskID: t.ID, Status: string(t.Status), ActorID: ev.ActorID}
	if t.CurrentPhase != nil {
		m.Phase = string(*t.CurrentPhase)
	}
	meta, _ = json.Marshal(m)
	return title, body, meta
}

func updateText(ev Event, actorName string) (string, string) {
	t := ev.Task
	if ev.Cancelled || t.Status == model.StatusCancelled {
		return "Task cancelled", fmt.Sprintf("%s cancelled %q", actorName, t.Title)
	}
	var phase model.Phase
	if t.CurrentPhase != nil {
		phase = *t.CurrentPhase
	}
	switch phase {
	case model.PhasePickedUp:
		return "Order picked up", fmt.Sprintf("%s picked up %q", actorName, t.Title)
	case model.PhaseOnTheWay:
		return "On the way", fmt.Sprintf("%s is on the way with %q", actorName, t.Title)
	case model.PhaseDelivered:
		return "Delivered", fmt.Sprintf("%s delivered %q", actorName, t.Title)
	case model.PhaseCompleted:
		return "Task completed", fmt.Sprintf("%q is complete", t.Title)
	}
	return "Task updated", fmt.Sprintf("%s updated %q", actorName, t.Title)
}
