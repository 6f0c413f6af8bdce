// Package note はメモ管理のドメインロジックを提供する。
package note

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/repository"
	"github.com/hitoshi/memoria/internal/security"
)

const (
	// MaxTitleLength はタイトルの最大文字数。
	MaxTitleLength = 255
	// MaxContentBytes はサニタイズ後の本文の最大バイト数。
	MaxContentBytes = 64 * 1024
)

// Input はメモの作成・更新時の入力値。
type Input struct {
	Title   string
	Content string
}

// Service はメモ管理のサービス層。
// 本文はbluemondayでサニタイズしてから保存する。
type Service struct {
	noteRepo  repository.NoteRepository
	sanitizer security.ContentSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(noteRepo repository.NoteRepository, sanitizer security.ContentSanitizer) *Service {
	return &Service{
		noteRepo:  noteRepo,
		sanitizer: sanitizer,
	}
}

// List はユーザーのメモ一覧を返す。
func (s *Service) List(ctx context.Context, userID int64) ([]*model.Note, error) {
	notes, err := s.noteRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("メモ一覧の取得に失敗しました: %w", err)
	}
	return notes, nil
}

// Get は指定IDのメモを返す。他ユーザーのメモは存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, userID, noteID int64) (*model.Note, error) {
	n, err := s.noteRepo.FindByID(ctx, userID, noteID)
	if err != nil {
		return nil, fmt.Errorf("メモの取得に失敗しました: %w", err)
	}
	if n == nil {
		return nil, model.NewNoteNotFoundError(noteID)
	}
	return n, nil
}

// Create はメモを作成する。
func (s *Service) Create(ctx context.Context, userID int64, in Input) (*model.Note, error) {
	n, err := s.build(userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.noteRepo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("メモの作成に失敗しました: %w", err)
	}
	return n, nil
}

// Update はメモを更新する。
func (s *Service) Update(ctx context.Context, userID, noteID int64, in Input) (*model.Note, error) {
	n, err := s.build(userID, in)
	if err != nil {
		return nil, err
	}
	n.ID = noteID

	ok, err := s.noteRepo.Update(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("メモの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewNoteNotFoundError(noteID)
	}
	return n, nil
}

// Delete はメモを削除する。
func (s *Service) Delete(ctx context.Context, userID, noteID int64) error {
	ok, err := s.noteRepo.Delete(ctx, userID, noteID)
	if err != nil {
		return fmt.Errorf("メモの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewNoteNotFoundError(noteID)
	}
	return nil
}

func (s *Service) build(userID int64, in Input) (*model.Note, error) {
	title := s.sanitizer.PlainText(in.Title)
	content := s.sanitizer.Sanitize(in.Content)

	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("title は%d文字以内で指定してください", MaxTitleLength))
	}
	if len(content) > MaxContentBytes {
		return nil, model.NewInvalidInputError("content が大きすぎます")
	}
	if title == "" && content == "" {
		return nil, model.NewInvalidInputError("title または content を指定してください")
	}

	return &model.Note{
		UserID:  userID,
		Title:   title,
		Content: content,
	}, nil
}
