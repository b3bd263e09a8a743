package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/go-ddd-auth/internal/domain/entity"
	"github.com/oksasatya/go-ddd-auth/internal/domain/repository"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	emailIndex    = "users_email_lower_key"
	usernameIndex = "users_username_key"
)

const selectUser = `
	SELECT u.id::text AS id, u.email, u.username, u.password_hash, u.is_active, u.is_verified,
	       u.failed_login_attempts, u.last_login_at, u.created_at, u.updated_at, u.version,
	       COALESCE(array_agg(t.token ORDER BY t.token) FILTER (WHERE t.token IS NOT NULL), '{}') AS refresh_tokens
	FROM users u
	LEFT JOIN user_refresh_tokens t ON t.user_id = u.id
`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

type userRow struct {
	ID                  string     `db:"id"`
	Email               string     `db:"email"`
	Username            string     `db:"username"`
	PasswordHash        string     `db:"password_hash"`
	IsActive            bool       `db:"is_active"`
	IsVerified          bool       `db:"is_verified"`
	FailedLoginAttempts int        `db:"failed_login_attempts"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
	Version             int64      `db:"version"`
	RefreshTokens       []string   `db:"refresh_tokens"`
}

func (row userRow) toEntity() (*entity.User, error) {
	email, err := entity.NewEmail(row.Email)
	if err != nil {
		return nil, fmt.Errorf("user %s: stored email: %w", row.ID, err)
	}
	username, err := entity.NewUsername(row.Username)
	if err != nil {
		return nil, fmt.Errorf("user %s: stored username: %w", row.ID, err)
	}
	u := &entity.User{
		ID:                  row.ID,
		Email:               email,
		Username:            username,
		PasswordHash:        row.PasswordHash,
		IsActive:            row.IsActive,
		IsVerified:          row.IsVerified,
		FailedLoginAttempts: row.FailedLoginAttempts,
		LastLoginAt:         row.LastLoginAt,
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
		Version:             row.Version,
	}
	u.LoadRefreshTokens(row.RefreshTokens)
	return u, nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, arg any) (*entity.User, error) {
	rows, err := r.pool.Query(ctx, selectUser+where+" GROUP BY u.id", arg)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[userRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, "WHERE u.id = $1", id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, "WHERE lower(u.email) = $1", entity.NormalizeEmail(email))
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.findOne(ctx, "WHERE u.username = $1", username)
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = $1)`,
		entity.NormalizeEmail(email)).Scan(&ok)
	return ok, err
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&ok)
	return ok, err
}

// Save inserts or updates u inside a transaction and makes the stored refresh
// token set match the aggregate's. Updates only apply when the stored version
// equals u.Version.
func (r *UserRepository) Save(ctx context.Context, u *entity.User) (*entity.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, version := u.ID, u.Version
	if id == "" {
		id, version = uuid.NewString(), 1
		_, err = tx.Exec(ctx, `
			INSERT INTO users (id, email, username, password_hash, is_active, is_verified,
			                   failed_login_attempts, last_login_at, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, id, u.Email.String(), u.Username.String(), u.PasswordHash, u.IsActive, u.IsVerified,
			u.FailedLoginAttempts, u.LastLoginAt, u.CreatedAt, u.UpdatedAt, version)
		if err != nil {
			return nil, mapErr(err)
		}
	} else {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET email = $2, username = $3, password_hash = $4, is_active = $5, is_verified = $6,
			    failed_login_attempts = $7, last_login_at = $8, updated_at = $9, version = version + 1
			WHERE id = $1 AND version = $10
		`, id, u.Email.String(), u.Username.String(), u.PasswordHash, u.IsActive, u.IsVerified,
			u.FailedLoginAttempts, u.LastLoginAt, u.UpdatedAt, version)
		if err != nil {
			return nil, mapErr(err)
		}
		if tag.RowsAffected() == 0 {
			return nil, r.missOrConflict(ctx, tx, id)
		}
		version++
	}

	tokens := u.RefreshTokens()
	if _, err := tx.Exec(ctx, `DELETE FROM user_refresh_tokens WHERE user_id = $1 AND NOT (token = ANY($2))`, id, tokens); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_refresh_tokens (user_id, token)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING
	`, id, tokens); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	u.ID, u.Version = id, version
	return u, nil
}

func (r *UserRepository) missOrConflict(ctx context.Context, tx pgx.Tx, id string) error {
	var ok bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return repository.ErrVersionConflict
}

func (r *UserRepository) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AddRefreshToken inserts token and bumps the owner's version when the set
// changed.
func (r *UserRepository) AddRefreshToken(ctx context.Context, userID, token string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return repository.ErrNotFound
	}
	_, err := r.pool.Exec(ctx, `
		WITH ins AS (
			INSERT INTO user_refresh_tokens (user_id, token) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING user_id
		)
		UPDATE users SET version = version + 1, updated_at = NOW()
		WHERE id IN (SELECT user_id FROM ins)
	`, userID, token)
	return mapErr(err)
}

func (r *UserRepository) RemoveRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `
		WITH del AS (
			DELETE FROM user_refresh_tokens WHERE user_id = $1 AND token = $2
			RETURNING user_id
		)
		UPDATE users SET version = version + 1, updated_at = NOW()
		WHERE id IN (SELECT user_id FROM del)
	`, userID, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UserRepository) HasRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, nil
	}
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_refresh_tokens WHERE user_id = $1 AND token = $2)`,
		userID, token).Scan(&ok)
	return ok, err
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return repository.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET last_login_at = NOW(), updated_at = NOW(), version = version + 1
		WHERE id = $1
	`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == emailIndex:
		return repository.ErrDuplicateEmail
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == usernameIndex:
		return repository.ErrDuplicateUsername
	case pgErr.Code == pgForeignKeyViolation:
		return repository.ErrNotFound
	}
	return err
}

var _ repository.UserRepository = (*UserRepository)(nil)
