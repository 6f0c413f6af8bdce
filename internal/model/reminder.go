package model

import "time"

// Reminder はユーザーのリマインダーを表す。
type Reminder struct {
	ID          int64
	UserID      int64
	Title       string
	Description string
	DueAt       *time.Time
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
