// Package repository persists bot users in PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/himera-trader/internal/domain"
)

// ErrUserNotFound is returned when no user has the requested Telegram id.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	// Upsert inserts the user or refreshes its profile fields and last_seen_at.
	// It fills ID and CreatedAt and reports whether a new row was created.
	Upsert(ctx context.Context, user *domain.User) (bool, error)
}

type userRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewUserRepository creates a new SQL-backed user repository.
func NewUserRepository(db *sql.DB, log *slog.Logger) UserRepository {
	if log == nil {
		log = slog.Default()
	}

	return &userRepository{
		db:  db,
		log: log,
	}
}

// FindByTelegramID retrieves a user by their Telegram identifier.
func (r *userRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	const query = `
		SELECT id, telegram_id, first_name, last_name, username, language_code, created_at, last_seen_at
		FROM users
		WHERE telegram_id = $1
	`

	var user domain.User
	if err := r.db.QueryRowContext(ctx, query, telegramID).Scan(
		&user.ID,
		&user.TelegramID,
		&user.FirstName,
		&user.LastName,
		&user.Username,
		&user.LanguageCode,
		&user.CreatedAt,
		&user.LastSeenAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}

		r.log.Error("failed to fetch user by telegram id", slog.Int64("telegram_id", telegramID), slog.Any("error", err))
		return nil, fmt.Errorf("select user by telegram id: %w", err)
	}

	return &user, nil
}

// Upsert relies on xmax being zero only for rows inserted by the current statement.
func (r *userRepository) Upsert(ctx context.Context, user *domain.User) (bool, error) {
	if user == nil {
		return false, errors.New("user is nil")
	}

	const query = `
		INSERT INTO users (telegram_id, first_name, last_name, username, language_code, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (telegram_id) DO UPDATE SET
			first_name    = EXCLUDED.first_name,
			last_name     = EXCLUDED.last_name,
			username      = EXCLUDED.username,
			language_code = EXCLUDED.language_code,
			last_seen_at  = EXCLUDED.last_seen_at
		RETURNING id, created_at, (xmax = 0) AS inserted
	`

	var inserted bool
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.TelegramID,
		user.FirstName,
		user.LastName,
		user.Username,
		user.LanguageCode,
		user.LastSeenAt,
	).Scan(&user.ID, &user.CreatedAt, &inserted); err != nil {
		r.log.Error("failed to upsert user", slog.Int64("telegram_id", user.TelegramID), slog.Any("error", err))
		return false, fmt.Errorf("upsert user: %w", err)
	}

	return inserted, nil
}
