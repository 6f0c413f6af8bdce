// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/repository"
)

// MaxDisplayNameLength は表示名の最大文字数。
const MaxDisplayNameLength = 100

// Sanitizer はプレーンテキスト項目のタグ除去インターフェース。
type Sanitizer interface {
	PlainText(raw string) string
}

// Service はユーザー管理のサービス層。
// プロフィールの参照・更新と退会処理を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   Sanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer Sanitizer,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
	}
}

// GetProfile はユーザーのプロフィールを取得する。
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateDisplayName は表示名を更新する。
// 次回ログイン時に上流IdPの表示名で上書きされる。
func (s *Service) UpdateDisplayName(ctx context.Context, userID int64, displayName string) (*model.User, error) {
	if s.sanitizer != nil {
		displayName = s.sanitizer.PlainText(displayName)
	}
	if displayName == "" {
		return nil, model.NewInvalidInputError("display_name は必須です")
	}
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("display_name は%d文字以内で指定してください", MaxDisplayNameLength))
	}

	user, err := s.userRepo.UpdateDisplayName(ctx, userID, displayName)
	if err != nil {
		return nil, fmt.Errorf("表示名の更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: notes, reminders, contacts）
func (s *Service) Withdraw(ctx context.Context, userID int64) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.Int64("user_id", userID),
	)

	// 1. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 2. ユーザーを削除（notes, reminders, contactsはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.Int64("user_id", userID),
	)

	return nil
}
