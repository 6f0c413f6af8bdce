package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/memoria/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したメモリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

const noteColumns = `id, user_id, title, content, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }) (*model.Note, error) {
	n := &model.Note{}
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

// ListByUserID はユーザーのメモを更新日時の新しい順に返す。
func (r *PostgresNoteRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = $1 ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*model.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// FindByID は指定IDのメモを取得する。見つからない場合はnilを返す。
func (r *PostgresNoteRepo) FindByID(ctx context.Context, userID, id int64) (*model.Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1 AND user_id = $2`, id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return n, nil
}

// Create はメモを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notes (user_id, title, content) VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		note.UserID, note.Title, note.Content,
	).Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// Update はメモを更新する。
func (r *PostgresNoteRepo) Update(ctx context.Context, note *model.Note) (bool, error) {
	err := r.db.QueryRowContext(ctx,
		`UPDATE notes SET title = $3, content = $4, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING created_at, updated_at`,
		note.ID, note.UserID, note.Title, note.Content,
	).Scan(&note.CreatedAt, &note.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update note: %w", err)
	}
	return true, nil
}

// Delete はメモを削除する。
func (r *PostgresNoteRepo) Delete(ctx context.Context, userID, id int64) (bool, error) {
	return deleteOwned(ctx, r.db, "notes", userID, id)
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)

// deleteOwned はuser_idで絞り込んだ1行を削除し、削除できたかどうかを返す。
// tableは定数のみを受け取る。
func deleteOwned(ctx context.Context, db *sql.DB, table string, userID, id int64) (bool, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = $1 AND user_id = $2`, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
