// Package reminder はリマインダー管理のドメインロジックを提供する。
package reminder

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/repository"
	"github.com/hitoshi/memoria/internal/security"
)

// MaxTitleLength はタイトルの最大文字数。
const MaxTitleLength = 255

// Input はリマインダーの作成・更新時の入力値。
type Input struct {
	Title       string
	Description string
	DueAt       *time.Time
	Completed   bool
}

// Service はリマインダー管理のサービス層。
type Service struct {
	reminderRepo repository.ReminderRepository
	sanitizer    security.ContentSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(reminderRepo repository.ReminderRepository, sanitizer security.ContentSanitizer) *Service {
	return &Service{
		reminderRepo: reminderRepo,
		sanitizer:    sanitizer,
	}
}

// List はユーザーのリマインダー一覧を返す。
// includeCompletedがfalseの場合は未完了のみを返す。
func (s *Service) List(ctx context.Context, userID int64, includeCompleted bool) ([]*model.Reminder, error) {
	reminders, err := s.reminderRepo.ListByUserID(ctx, userID, includeCompleted)
	if err != nil {
		return nil, fmt.Errorf("リマインダー一覧の取得に失敗しました: %w", err)
	}
	return reminders, nil
}

// Get は指定IDのリマインダーを返す。
func (s *Service) Get(ctx context.Context, userID, reminderID int64) (*model.Reminder, error) {
	rem, err := s.reminderRepo.FindByID(ctx, userID, reminderID)
	if err != nil {
		return nil, fmt.Errorf("リマインダーの取得に失敗しました: %w", err)
	}
	if rem == nil {
		return nil, model.NewReminderNotFoundError(reminderID)
	}
	return rem, nil
}

// Create はリマインダーを作成する。
func (s *Service) Create(ctx context.Context, userID int64, in Input) (*model.Reminder, error) {
	rem, err := s.build(userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.reminderRepo.Create(ctx, rem); err != nil {
		return nil, fmt.Errorf("リマインダーの作成に失敗しました: %w", err)
	}
	return rem, nil
}

// Update はリマインダーを更新する。
func (s *Service) Update(ctx context.Context, userID, reminderID int64, in Input) (*model.Reminder, error) {
	rem, err := s.build(userID, in)
	if err != nil {
		return nil, err
	}
	rem.ID = reminderID

	ok, err := s.reminderRepo.Update(ctx, rem)
	if err != nil {
		return nil, fmt.Errorf("リマインダーの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewReminderNotFoundError(reminderID)
	}
	return rem, nil
}

// Complete はリマインダーを完了にする。完了済みの場合もそのまま成功する。
func (s *Service) Complete(ctx context.Context, userID, reminderID int64) (*model.Reminder, error) {
	rem, err := s.reminderRepo.SetCompleted(ctx, userID, reminderID, true)
	if err != nil {
		return nil, fmt.Errorf("リマインダーの完了に失敗しました: %w", err)
	}
	if rem == nil {
		return nil, model.NewReminderNotFoundError(reminderID)
	}
	return rem, nil
}

// Delete はリマインダーを削除する。
func (s *Service) Delete(ctx context.Context, userID, reminderID int64) error {
	ok, err := s.reminderRepo.Delete(ctx, userID, reminderID)
	if err != nil {
		return fmt.Errorf("リマインダーの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewReminderNotFoundError(reminderID)
	}
	return nil
}

func (s *Service) build(userID int64, in Input) (*model.Reminder, error) {
	title := s.sanitizer.PlainText(in.Title)
	if title == "" {
		return nil, model.NewInvalidInputError("title は必須です")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("title は%d文字以内で指定してください", MaxTitleLength))
	}

	var dueAt *time.Time
	if in.DueAt != nil {
		t := in.DueAt.UTC()
		dueAt = &t
	}

	return &model.Reminder{
		UserID:      userID,
		Title:       title,
		Description: s.sanitizer.PlainText(in.Description),
		DueAt:       dueAt,
		Completed:   in.Completed,
	}, nil
}
