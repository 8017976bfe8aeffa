package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrResetInvalid = errors.New("reset token invalid or expired")
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, email, password_hash, status, sms_enabled, gauth_enabled, totp_secret, phone_number`

func scanUser(row pgx.Row) (*User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Status, &user.SMSEnabled, &user.GAuthEnabled, &user.TOTPSecret, &user.Phone); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, status, created_at, updated_at)
		VALUES ($1, $2, 'active', now(), now())
		RETURNING id
	`, email, passwordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, ErrEmailTaken
		}
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, session_id, token_hash, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, hash)

	var token RefreshToken
	if err := row.Scan(&token.ID, &token.UserID, &token.SessionID, &token.TokenHash, &token.ExpiresAt, &token.RevokedAt); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *Store) CreateRefreshToken(ctx context.Context, userID, sessionID uuid.UUID, tokenHash string, expiresAt time.Time, ip string, userAgent string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, session_id, token_hash, expires_at, created_at, created_ip, user_agent)
		VALUES ($1, $2, $3, $4, now(), $5, $6)
		RETURNING id
	`, userID, sessionID, tokenHash, expiresAt, ip, userAgent).Scan(&id)
	return id, err
}

func (s *Store) RevokeTokenByHash(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, hash)
	return err
}

func (s *Store) RevokeAllTokens(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	return err
}

// RotateToken replaces old with a new token of the same session.
func (s *Store) RotateToken(ctx context.Context, old *RefreshToken, newHash string, expiresAt time.Time, ip string, userAgent string) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var newID uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, session_id, token_hash, expires_at, created_at, created_ip, user_agent)
		VALUES ($1, $2, $3, $4, now(), $5, $6)
		RETURNING id
	`, old.UserID, old.SessionID, newHash, expiresAt, ip, userAgent).Scan(&newID); err != nil {
		return uuid.Nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now(), replaced_by = $2
		WHERE id = $1
	`, old.ID, newID); err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return newID, nil
}

// UpdatePassword stores a new hash and revokes every refresh token.
func (s *Store) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := setPassword(ctx, tx, userID, passwordHash); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreatePasswordReset(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_resets (user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, now())
	`, userID, tokenHash, expiresAt)
	return err
}

// ResetPassword consumes a reset token and sets the new password atomically.
func (s *Store) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var userID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE password_resets
		SET used_at = now()
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING user_id
	`, tokenHash, now).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrResetInvalid
	}
	if err != nil {
		return uuid.Nil, err
	}

	if err := setPassword(ctx, tx, userID, passwordHash); err != nil {
		return uuid.Nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

func setPassword(ctx context.Context, tx pgx.Tx, userID uuid.UUID, passwordHash string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, userID, passwordHash); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	return err
}

func (s *Store) InsertAudit(ctx context.Context, log AuditLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, actor_type, action, entity_type, entity_id, created_at, metadata)
		VALUES ($1, 'user', $2, 'user', $3, now(), $4)
	`, log.ActorID, log.Action, log.EntityID, map[string]string{
		"ip":         log.IP,
		"user_agent": log.UserAgent,
	})
	return err
}
