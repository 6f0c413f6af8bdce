package model

import "time"

// Note はユーザーが作成するメモを表す。
type Note struct {
	ID        int64
	UserID    int64
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
