package model

import (
	"encoding/json"
	"time"
)

// NotificationType tags the lifecycle event a notification came from.
type NotificationType string

const (
	NotifTypeTaskPosted   NotificationType = "task_posted"
	NotifTypeTaskAccepted NotificationType = "task_accepted"
	NotifTypeTaskUpdated  NotificationType = "task_updated"
)

type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	TaskID    *string          `json:"task_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Metadata  json.RawMessage  `json:"metadata"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationPreference gates which notification types a user receives.
type NotificationPreference struct {
	UserID       string    `json:"user_id"`
	TaskPosted   bool      `json:"task_posted"`
	TaskAccepted bool      `json:"task_accepted"`
	TaskUpdated  bool      `json:"task_updated"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DefaultPreference is used for users without a stored preference row.
func DefaultPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:       userID,
		TaskPosted:   true,
		TaskAccepted: true,
		TaskUpdated:  true,
	}
}

// Allows reports whether the preference lets notifications of type t through.
func (p NotificationPreference) Allows(t NotificationType) bool {
	switch t {
	case NotifTypeTaskPosted:
		return p.TaskPosted
	case NotifTypeTaskAccepted:
		return p.TaskAccepted
	case NotifTypeTaskUpdated:
		return p.TaskUpdated
	}
	return false
}

type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
