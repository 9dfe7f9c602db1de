package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"deafauth/internal/domain"
	"deafauth/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	preferred_sign_language TEXT NOT NULL,
	accessibility_preferences TEXT NOT NULL,
	deaf_community_verified INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	last_login_at DATETIME NULL
);
`

const selectUser = `
SELECT id, username, email, password_hash, preferred_sign_language, accessibility_preferences,
	deaf_community_verified, created_at, last_login_at
FROM users
`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	stored := user.Clone()
	stored.ID = uuid.NewString()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	prefs, err := encodePreferences(stored.AccessibilityPreferences)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO users (id, username, email, password_hash, preferred_sign_language, accessibility_preferences, deaf_community_verified, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID,
		stored.Username,
		stored.Email,
		stored.PasswordHash,
		stored.PreferredSignLanguage,
		prefs,
		stored.DeafCommunityVerified,
		stored.CreatedAt,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, repository.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return stored.Sanitized(), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, selectUser+`WHERE email = ?`, email)
	return scanUser(row)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, selectUser+`WHERE id = ?`, id)
	return scanUser(row)
}

func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), id); err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePreferences(ctx context.Context, id string, partial domain.Preferences) (*domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx, selectUser+`WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	user.AccessibilityPreferences = user.AccessibilityPreferences.Merge(partial)
	prefs, err := encodePreferences(user.AccessibilityPreferences)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET accessibility_preferences = ? WHERE id = ?`, prefs, id); err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit preferences: %w", err)
	}

	return user.Sanitized(), nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func encodePreferences(prefs domain.Preferences) (string, error) {
	if prefs == nil {
		prefs = domain.Preferences{}
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return "", fmt.Errorf("encode preferences: %w", err)
	}
	return string(raw), nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user      domain.User
		prefs     string
		lastLogin sql.NullTime
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.PreferredSignLanguage,
		&prefs,
		&user.DeafCommunityVerified,
		&user.CreatedAt,
		&lastLogin,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if err := json.Unmarshal([]byte(prefs), &user.AccessibilityPreferences); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		user.LastLoginAt = &t
	}
	return &user, nil
}
