package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/errand/internal/model"
)

// ChatStore reads the chat rooms opened on acceptance. Rooms are only
// written inside TaskStore.Accept.
type ChatStore struct {
	db *sql.DB
}

func NewChatStore(db *sql.DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) GetRoomByTask(ctx context.Context, taskID string) (*model.ChatRoom, error) {
	var r model.ChatRoom
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, created_at FROM chat_rooms WHERE task_id = ?`, taskID,
	).Scan(&r.ID, &r.TaskID, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat room: %w", err)
	}
	return &r, nil
}

func (s *ChatStore) ListMembers(ctx context.Context, roomID string) ([]model.ChatMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, user_id, joined_at FROM chat_members WHERE room_id = ? ORDER BY id`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat members: %w", err)
	}
	defer rows.Close()

	var members []model.ChatMember
	for rows.Next() {
		var m model.ChatMember
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan chat member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountRooms returns how many rooms exist for a task. At most one.
func (s *ChatStore) CountRooms(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_rooms WHERE task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chat rooms: %w", err)
	}
	return n, nil
}
