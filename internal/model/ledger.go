package model

import "time"

// Ledger reasons.
const (
	ReasonTaskPosted    = "task_posted"
	ReasonTaskAccepted  = "task_accepted"
	ReasonTaskCompleted = "task_completed"
	ReasonTaskFulfilled = "task_fulfilled"
	ReasonTaskReward    = "task_reward"
)

// LedgerEntry is an append-only XP or credit transaction.
type LedgerEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	TaskID    *string   `json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Balance struct {
	UserID  string `json:"user_id"`
	XP      int    `json:"xp"`
	Credits int    `json:"credits"`
	Level   int    `json:"level"`
}
