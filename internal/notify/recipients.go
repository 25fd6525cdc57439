// Package notify fans lifecycle events out to the users who should hear
// about them: durable notification rows, realtime events and web push.
package notify

import (
	"context"

	"github.com/dukerupert/errand/internal/model"
)

// Event is one lifecycle change to fan out.
type Event struct {
	Type    model.NotificationType
	Task    *model.Task
	ActorID string
	// FormerAccepter is set on cancellation, after accepted_by was cleared.
	FormerAccepter string
	Cancelled      bool
}

// Audience picks who hears about a newly posted task.
type Audience interface {
	Members(ctx context.Context, t *model.Task) ([]string, error)
}

// NoAudience announces new tasks to nobody.
type NoAudience struct{}

func (NoAudience) Members(context.Context, *model.Task) ([]string, error) { return nil, nil }

// MemberLister is the user store query RecentMembers relies on.
type MemberLister interface {
	ListRecentMembers(ctx context.Context, exclude string, limit int) ([]string, error)
}

// RecentMembers announces new tasks to the most recently joined full
// members, excluding the poster.
type RecentMembers struct {
	Users MemberLister
	Limit int
}

func (a RecentMembers) Members(ctx context.Context, t *model.Task) ([]string, error) {
	limit := a.Limit
	if limit <= 0 {
		limit = 50
	}
	return a.Users.ListRecentMembers(ctx, t.CreatedBy, limit)
}

// Recipients computes who receives ev. audience is only consulted for
// TASK_POSTED. The result has no empties or duplicates, and the poster never
// hears about their own new task.
func Recipients(ev Event, audience []string) []string {
	t := ev.Task
	var candidates []string
	switch ev.Type {
	case model.NotifTypeTaskPosted:
		for _, id := range audience {
			if id != t.CreatedBy {
				candidates = append(candidates, id)
			}
		}
	case model.NotifTypeTaskAccepted:
		candidates = []string{t.CreatedBy}
	case model.NotifTypeTaskUpdated:
		candidates = []string{t.CreatedBy}
		if t.AcceptedBy != nil {
			candidates = append(candidates, *t.AcceptedBy)
		}
		candidates = append(candidates, ev.FormerAccepter)
	}
	return dedupe(candidates)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
