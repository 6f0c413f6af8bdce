// Package contact は連絡先管理のドメインロジックを提供する。
package contact

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/repository"
	"github.com/hitoshi/memoria/internal/security"
)

// MaxNameLength は名前の最大文字数。
const MaxNameLength = 255

// Input は連絡先の作成・更新時の入力値。
type Input struct {
	Name  string
	Email string
	Phone string
	Notes string
}

// Service は連絡先管理のサービス層。
type Service struct {
	contactRepo repository.ContactRepository
	sanitizer   security.ContentSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(contactRepo repository.ContactRepository, sanitizer security.ContentSanitizer) *Service {
	return &Service{
		contactRepo: contactRepo,
		sanitizer:   sanitizer,
	}
}

// List はユーザーの連絡先を名前順に返す。
func (s *Service) List(ctx context.Context, userID int64) ([]*model.Contact, error) {
	contacts, err := s.contactRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("連絡先一覧の取得に失敗しました: %w", err)
	}
	return contacts, nil
}

// Get は指定IDの連絡先を返す。
func (s *Service) Get(ctx context.Context, userID, contactID int64) (*model.Contact, error) {
	c, err := s.contactRepo.FindByID(ctx, userID, contactID)
	if err != nil {
		return nil, fmt.Errorf("連絡先の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewContactNotFoundError(contactID)
	}
	return c, nil
}

// Create は連絡先を作成する。
func (s *Service) Create(ctx context.Context, userID int64, in Input) (*model.Contact, error) {
	c, err := s.build(userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.contactRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("連絡先の作成に失敗しました: %w", err)
	}
	return c, nil
}

// Update は連絡先を更新する。
func (s *Service) Update(ctx context.Context, userID, contactID int64, in Input) (*model.Contact, error) {
	c, err := s.build(userID, in)
	if err != nil {
		return nil, err
	}
	c.ID = contactID

	ok, err := s.contactRepo.Update(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("連絡先の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewContactNotFoundError(contactID)
	}
	return c, nil
}

// Delete は連絡先を削除する。
func (s *Service) Delete(ctx context.Context, userID, contactID int64) error {
	ok, err := s.contactRepo.Delete(ctx, userID, contactID)
	if err != nil {
		return fmt.Errorf("連絡先の削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewContactNotFoundError(contactID)
	}
	return nil
}

func (s *Service) build(userID int64, in Input) (*model.Contact, error) {
	name := s.sanitizer.PlainText(in.Name)
	if name == "" {
		return nil, model.NewInvalidInputError("name は必須です")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("name は%d文字以内で指定してください", MaxNameLength))
	}

	return &model.Contact{
		UserID: userID,
		Name:   name,
		Email:  s.sanitizer.PlainText(in.Email),
		Phone:  s.sanitizer.PlainText(in.Phone),
		Notes:  s.sanitizer.PlainText(in.Notes),
	}, nil
}
