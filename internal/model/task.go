package model

import "time"

// Status is the coarse lifecycle state of a task.
type Status string

const (
	StatusOpen       Status = "open"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Phase is the fine-grained delivery sub-state of an accepted task.
type Phase string

const (
	PhaseAccepted  Phase = "accepted"
	PhasePickedUp  Phase = "picked_up"
	PhaseOnTheWay  Phase = "on_the_way"
	PhaseDelivered Phase = "delivered"
	PhaseCompleted Phase = "completed"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

type ModerationStatus string

const (
	ModerationApproved ModerationStatus = "approved"
	ModerationPending  ModerationStatus = "pending"
	ModerationRejected ModerationStatus = "rejected"
)

type Task struct {
	ID                  string           `json:"id"`
	CreatedBy           string           `json:"created_by"`
	AcceptedBy          *string          `json:"accepted_by"`
	Status              Status           `json:"status"`
	CurrentPhase        *Phase           `json:"task_current_status"`
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	StoreName           string           `json:"store_name"`
	DropoffAddress      string           `json:"dropoff_address"`
	DropoffInstructions string           `json:"dropoff_instructions"`
	Category            string           `json:"category"`
	Urgency             Urgency          `json:"urgency"`
	RewardAmount        int              `json:"reward_amount"`
	EstimatedMinutes    int              `json:"estimated_minutes"`
	AcceptanceCode      string           `json:"-"`
	ModerationStatus    ModerationStatus `json:"moderation_status"`
	ModerationReason    string           `json:"moderation_reason,omitempty"`
	ModeratedBy         *string          `json:"moderated_by,omitempty"`
	ModeratedAt         *time.Time       `json:"moderated_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	AcceptedAt          *time.Time       `json:"accepted_at"`
	LastStatusUpdate    *time.Time       `json:"last_status_update"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// IsParticipant reports whether userID is the poster or the accepter.
func (t *Task) IsParticipant(userID string) bool {
	if t.CreatedBy == userID {
		return true
	}
	return t.AcceptedBy != nil && *t.AcceptedBy == userID
}

// NewTask carries the poster-supplied fields of a task.
type NewTask struct {
	Title               string  `json:"title"`
	Description         string  `json:"description"`
	StoreName           string  `json:"store_name"`
	DropoffAddress      string  `json:"dropoff_address"`
	DropoffInstructions string  `json:"dropoff_instructions"`
	Category            string  `json:"category"`
	Urgency             Urgency `json:"urgency"`
	RewardAmount        int     `json:"reward_amount"`
	EstimatedMinutes    int     `json:"estimated_minutes"`
}

// StatusChange is one immutable row of a task's status history.
type StatusChange struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	ChangedBy string    `json:"changed_by"`
	From      string    `json:"from_status"`
	To        string    `json:"to_status"`
	Note      string    `json:"note,omitempty"`
	PhotoRef  string    `json:"photo_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Acceptance is the result of winning the accept race.
type Acceptance struct {
	Task           *Task  `json:"task"`
	AcceptanceCode string `json:"acceptance_code"`
	ChatRoomID     string `json:"chat_room_id"`
}
