package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, email, password_hash, status, phone_number, voting_address, sms_enabled, gauth_enabled, totp_secret, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var user User
	if err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Status,
		&user.Phone, &user.VotingAddress,
		&user.SMSEnabled, &user.GAuthEnabled, &user.TOTPSecret,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

// UpdateUser applies the non-nil fields and returns the stored row.
func (s *Store) UpdateUser(ctx context.Context, userID uuid.UUID, update UserUpdate) (*User, error) {
	if update.Empty() {
		return s.GetUserByID(ctx, userID)
	}

	sets := []string{"updated_at = now()"}
	args := []any{userID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Phone != nil {
		add("phone_number", nullable(*update.Phone))
	}
	if update.VotingAddress != nil {
		add("voting_address", nullable(*update.VotingAddress))
	}
	if update.SMSEnabled != nil {
		add("sms_enabled", *update.SMSEnabled)
	}
	if update.GAuthEnabled != nil {
		add("gauth_enabled", *update.GAuthEnabled)
	}
	if update.TOTPSecret != nil {
		add("totp_secret", nullable(*update.TOTPSecret))
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns
	return scanUser(s.pool.QueryRow(ctx, query, args...))
}

// DeleteUser removes the account in one transaction. Owned masternodes stay
// in the registry without an owner.
func (s *Store) DeleteUser(ctx context.Context, userID uuid.UUID, audit AuditLog) (Deletion, error) {
	var out Deletion

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return out, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	votes, err := tx.Exec(ctx, `DELETE FROM proposal_votes WHERE user_id = $1`, userID)
	if err != nil {
		return out, fmt.Errorf("delete votes: %w", err)
	}
	out.VotesRemoved = votes.RowsAffected()

	nodes, err := tx.Exec(ctx, `UPDATE masternodes SET owner_id = NULL WHERE owner_id = $1`, userID)
	if err != nil {
		return out, fmt.Errorf("release masternodes: %w", err)
	}
	out.MasternodesReleased = nodes.RowsAffected()

	if _, err := tx.Exec(ctx, `UPDATE proposals SET owner_id = NULL WHERE owner_id = $1`, userID); err != nil {
		return out, fmt.Errorf("release proposals: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return out, fmt.Errorf("delete refresh tokens: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID); err != nil {
		return out, fmt.Errorf("delete password resets: %w", err)
	}

	cmd, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return out, fmt.Errorf("delete user: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return out, pgx.ErrNoRows
	}

	if err := insertAudit(ctx, tx, audit); err != nil {
		return out, fmt.Errorf("audit: %w", err)
	}

	return out, tx.Commit(ctx)
}

func (s *Store) InsertAudit(ctx context.Context, log AuditLog) error {
	return insertAudit(ctx, s.pool, log)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAudit(ctx context.Context, db execer, log AuditLog) error {
	_, err := db.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, actor_type, action, entity_type, entity_id, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
	`, log.ActorID, log.ActorType, log.Action, log.EntityType, log.EntityID, map[string]string{
		"ip":         log.IP,
		"user_agent": log.UserAgent,
	})
	return err
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
