// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/memoria/internal/model"
)

// ErrDuplicateSubject は同一のupstream_subject_idを持つユーザーが既に存在する場合に返される。
// 並行ログインで作成が競合したことを表し、呼び出し側は再取得する。
var ErrDuplicateSubject = errors.New("user with the same upstream subject already exists")

// UserRepository はローカルユーザーの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUpstreamSubjectID は上流IdPのsubject idでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByUpstreamSubjectID(ctx context.Context, subjectID string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとタイムスタンプをuserに設定する。
	// subject idが重複する場合はErrDuplicateSubjectを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile は上流IdPから取得した表示名、メールアドレス、写真URLで上書きする。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdateDisplayName はユーザーが編集した表示名を保存する。
	UpdateDisplayName(ctx context.Context, id int64, displayName string) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// sessions、notes、reminders、contactsはCASCADE削除される。
	DeleteByID(ctx context.Context, id int64) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// NoteRepository はメモの永続化インターフェース。
// 全操作は所有者のユーザーIDで絞り込まれ、他ユーザーの行は見えない。
type NoteRepository interface {
	ListByUserID(ctx context.Context, userID int64) ([]*model.Note, error)
	// FindByID は見つからない場合nilを返す。
	FindByID(ctx context.Context, userID, id int64) (*model.Note, error)
	Create(ctx context.Context, note *model.Note) error
	// Update は更新した行が存在しない場合falseを返す。
	Update(ctx context.Context, note *model.Note) (bool, error)
	Delete(ctx context.Context, userID, id int64) (bool, error)
}

// ReminderRepository はリマインダーの永続化インターフェース。
type ReminderRepository interface {
	// ListByUserID は期限の早い順に返す。期限なしは末尾。
	ListByUserID(ctx context.Context, userID int64, includeCompleted bool) ([]*model.Reminder, error)
	FindByID(ctx context.Context, userID, id int64) (*model.Reminder, error)
	Create(ctx context.Context, reminder *model.Reminder) error
	Update(ctx context.Context, reminder *model.Reminder) (bool, error)
	// SetCompleted は完了フラグを更新し、更新後のリマインダーを返す。見つからない場合はnil。
	SetCompleted(ctx context.Context, userID, id int64, completed bool) (*model.Reminder, error)
	Delete(ctx context.Context, userID, id int64) (bool, error)
}

// ContactRepository は連絡先の永続化インターフェース。
type ContactRepository interface {
	ListByUserID(ctx context.Context, userID int64) ([]*model.Contact, error)
	FindByID(ctx context.Context, userID, id int64) (*model.Contact, error)
	Create(ctx context.Context, contact *model.Contact) error
	Update(ctx context.Context, contact *model.Contact) (bool, error)
	Delete(ctx context.Context, userID, id int64) (bool, error)
}
