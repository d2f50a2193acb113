package models

import (
	"time"
)

// Session represents one animation editing session: a conversation, its
// snapshot history, and the live code buffer driven by a single user.
type Session struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Title     string     `json:"title" db:"title"`
	Aspect    string     `json:"aspect" db:"aspect"` // target aspect ratio hint, e.g. "16:9"
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
