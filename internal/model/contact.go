package model

import "time"

// Contact はユーザーの連絡先を表す。
type Contact struct {
	ID        int64
	UserID    int64
	Name      string
	Email     string
	Phone     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
