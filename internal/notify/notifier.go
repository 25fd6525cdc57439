package notify

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/push"
	"github.com/dukerupert/errand/internal/realtime"
)

type NotificationWriter interface {
	CreateBatch(ctx context.Context, in []model.Notification) ([]model.Notification, error)
}

type PreferenceReader interface {
	Get(ctx context.Context, userID string) (model.NotificationPreference, error)
}

type ProfileLookup interface {
	Get(ctx context.Context, id string) (model.Profile, error)
}

type Publisher interface {
	Publish(userID string, ev realtime.Event)
}

type PushQueue interface {
	Enqueue(userIDs []string, payload push.Payload) bool
}

// Notifier performs fan-out. Every failure is logged and swallowed; the
// lifecycle transition that triggered it has already committed.
type Notifier struct {
	notifications NotificationWriter
	prefs         PreferenceReader
	profiles      ProfileLookup
	publisher     Publisher
	push          PushQueue
	audience      Audience
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a Notifier. publisher and pushQueue may be nil.
func New(notifications NotificationWriter, prefs PreferenceReader, profiles ProfileLookup, publisher Publisher, pushQueue PushQueue, audience Audience, logger *slog.Logger) *Notifier {
	if audience == nil {
		audience = NoAudience{}
	}
	return &Notifier{
		notifications: notifications,
		prefs:         prefs,
		profiles:      profiles,
		publisher:     publisher,
		push:          pushQueue,
		audience:      audience,
		logger:        logger.With("component", "notify"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Notify persists one notification per allowed recipient, publishes a
// realtime event per row and queues a push. It returns the persisted rows.
func (n *Notifier) Notify(ctx context.Context, ev Event) []model.Notification {
	log := n.logger.With("type", ev.Type, "task_id", ev.Task.ID)

	var audience []string
	if ev.Type == model.NotifTypeTaskPosted {
		var err error
		audience, err = n.audience.Members(ctx, ev.Task)
		if err != nil {
			log.Error("resolve audience", "error", err)
			return nil
		}
	}

	recipients := n.filter(ctx, log, ev.Type, Recipients(ev, audience))
	if len(recipients) == 0 {
		return nil
	}

	actorName := "Someone"
	if ev.ActorID != "" {
		if prof, err := n.profiles.Get(ctx, ev.ActorID); err != nil {
			log.Warn("lookup actor profile", "error", err)
		} else {
			actorName = prof.Name
		}
	}
	title, body, meta := Content(ev, actorName)

	now := n.now()
	taskID := ev.Task.ID
	rows := make([]model.Notification, 0, len(recipients))
	for _, uid := range recipients {
		rows = append(rows, model.Notification{
			UserID:    uid,
			TaskID:    &taskID,
			Type:      ev.Type,
			Title:     title,
			Body:      body,
			Metadata:  meta,
			CreatedAt: now,
		})
	}

	created, err := n.notifications.CreateBatch(ctx, rows)
	if err != nil {
		log.Error("persist notifications", "recipients", len(rows), "error", err)
		return nil
	}
	log.Debug("notifications created", "count", len(created))

	if n.publisher != nil {
		for i := range created {
			row := created[i]
			n.publisher.Publish(row.UserID, realtime.NewEvent("notification", "created", strconv.FormatInt(row.ID, 10), row))
		}
	}
	if n.push != nil {
		n.push.Enqueue(recipients, push.Payload{
			Title: title,
			Body:  body,
			URL:   "/tasks/" + taskID,
			Tag:   string(ev.Type) + "-" + taskID,
		})
	}
	return created
}

// filter drops recipients whose preference for t is off. A failed lookup
// keeps the recipient.
func (n *Notifier) filter(ctx context.Context, log *slog.Logger, t model.NotificationType, ids []string) []string {
	var out []string
	for _, id := range ids {
		p, err := n.prefs.Get(ctx, id)
		if err != nil {
			log.Warn("load preferences", "user_id", id, "error", err)
			out = append(out, id)
			continue
		}
		if p.Allows(t) {
			out = append(out, id)
		}
	}
	return out
}
