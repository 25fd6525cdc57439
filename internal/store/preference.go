package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/errand/internal/model"
)

type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get returns the user's preferences. Users without a row get every type
// enabled.
func (s *PreferenceStore) Get(ctx context.Context, userID string) (model.NotificationPreference, error) {
	p := model.NotificationPreference{UserID: userID}
	var posted, accepted, updated int
	err := s.db.QueryRowContext(ctx,
		`SELECT task_posted, task_accepted, task_updated, updated_at
		 FROM notification_preferences WHERE user_id = ?`, userID,
	).Scan(&posted, &accepted, &updated, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.DefaultPreference(userID), nil
	}
	if err != nil {
		return p, fmt.Errorf("get notification preferences: %w", err)
	}
	p.TaskPosted = posted != 0
	p.TaskAccepted = accepted != 0
	p.TaskUpdated = updated != 0
	return p, nil
}

// Set upserts all three flags.
func (s *PreferenceStore) Set(ctx context.Context, p model.NotificationPreference) (model.NotificationPreference, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_id, task_posted, task_accepted, task_updated, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET task_posted = excluded.task_posted,
			task_accepted = excluded.task_accepted, task_updated = excluded.task_updated,
			updated_at = excluded.updated_at`,
		p.UserID, boolInt(p.TaskPosted), boolInt(p.TaskAccepted), boolInt(p.TaskUpdated), time.Now().UTC(),
	)
	if err != nil {
		return p, fmt.Errorf("set notification preferences: %w", err)
	}
	return s.Get(ctx, p.UserID)
}
