package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/memoria/internal/model"
)

// PostgresReminderRepo はPostgreSQLを使用したリマインダーリポジトリ。
type PostgresReminderRepo struct {
	db *sql.DB
}

// NewPostgresReminderRepo はPostgresReminderRepoを生成する。
func NewPostgresReminderRepo(db *sql.DB) *PostgresReminderRepo {
	return &PostgresReminderRepo{db: db}
}

const reminderColumns = `id, user_id, title, description, due_at, completed, created_at, updated_at`

func scanReminder(row interface{ Scan(...any) error }) (*model.Reminder, error) {
	rem := &model.Reminder{}
	var dueAt sql.NullTime
	err := row.Scan(
		&rem.ID, &rem.UserID, &rem.Title, &rem.Description,
		&dueAt, &rem.Completed, &rem.CreatedAt, &rem.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dueAt.Valid {
		t := dueAt.Time
		rem.DueAt = &t
	}
	return rem, nil
}

// ListByUserID はユーザーのリマインダーを期限の早い順に返す。
func (r *PostgresReminderRepo) ListByUserID(ctx context.Context, userID int64, includeCompleted bool) ([]*model.Reminder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE user_id = $1 AND ($2 OR completed = FALSE)
		 ORDER BY due_at ASC NULLS LAST, id ASC`,
		userID, includeCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	reminders := make([]*model.Reminder, 0)
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminders: %w", err)
	}
	return reminders, nil
}

// FindByID は指定IDのリマインダーを取得する。見つからない場合はnilを返す。
func (r *PostgresReminderRepo) FindByID(ctx context.Context, userID, id int64) (*model.Reminder, error) {
	rem, err := scanReminder(r.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1 AND user_id = $2`, id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reminder: %w", err)
	}
	return rem, nil
}

// Create はリマインダーを作成する。
func (r *PostgresReminderRepo) Create(ctx context.Context, rem *model.Reminder) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO reminders (user_id, title, description, due_at, completed)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		rem.UserID, rem.Title, rem.Description, rem.DueAt, rem.Completed,
	).Scan(&rem.ID, &rem.CreatedAt, &rem.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	return nil
}

// Update はリマインダーを更新する。
func (r *PostgresReminderRepo) Update(ctx context.Context, rem *model.Reminder) (bool, error) {
	err := r.db.QueryRowContext(ctx,
		`UPDATE reminders
		 SET title = $3, description = $4, due_at = $5, completed = $6, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING created_at, updated_at`,
		rem.ID, rem.UserID, rem.Title, rem.Description, rem.DueAt, rem.Completed,
	).Scan(&rem.CreatedAt, &rem.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update reminder: %w", err)
	}
	return true, nil
}

// SetCompleted は完了フラグを更新する。見つからない場合はnilを返す。
func (r *PostgresReminderRepo) SetCompleted(ctx context.Context, userID, id int64, completed bool) (*model.Reminder, error) {
	rem, err := scanReminder(r.db.QueryRowContext(ctx,
		`UPDATE reminders SET completed = $3, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+reminderColumns,
		id, userID, completed,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update reminder completion: %w", err)
	}
	return rem, nil
}

// Delete はリマインダーを削除する。
func (r *PostgresReminderRepo) Delete(ctx context.Context, userID, id int64) (bool, error) {
	return deleteOwned(ctx, r.db, "reminders", userID, id)
}

// compile-time interface check
var _ ReminderRepository = (*PostgresReminderRepo)(nil)
