package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate")
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrNotDraft      = errors.New("proposal already submitted")
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

const proposalSelect = `
	SELECT p.id, p.name, p.url, p.payment_address, p.payment_amount, p.payment_count,
		p.first_epoch, p.owner_id, p.status, p.collateral_txid, p.created_at,
		COALESCE(t.yes, 0), COALESCE(t.no, 0), COALESCE(t.abstain, 0)
	FROM proposals p
	LEFT JOIN (
		SELECT proposal_id,
			count(*) FILTER (WHERE outcome = 'yes') AS yes,
			count(*) FILTER (WHERE outcome = 'no') AS no,
			count(*) FILTER (WHERE outcome = 'abstain') AS abstain
		FROM proposal_votes
		GROUP BY proposal_id
	) t ON t.proposal_id = p.id
`

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scan(row pgx.Row) (*Proposal, error) {
	var p Proposal
	err := row.Scan(&p.ID, &p.Name, &p.URL, &p.PaymentAddress, &p.PaymentAmount, &p.PaymentCount,
		&p.FirstEpoch, &p.OwnerID, &p.Status, &p.CollateralTxID, &p.CreatedAt,
		&p.Yes, &p.No, &p.Abstain)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProposals pages newest first. The cursor names the last item returned.
func (s *Store) ListProposals(ctx context.Context, f Filter) ([]Proposal, string, error) {
	limit := ClampLimit(f.Limit)

	query := proposalSelect + " WHERE TRUE"
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND p.status = $%d", len(args))
	}
	if f.Cursor != "" {
		ts, id, err := decodeCursor(f.Cursor)
		if err != nil {
			return nil, "", err
		}
		args = append(args, ts, id)
		query += fmt.Sprintf(" AND (p.created_at, p.id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY p.created_at DESC, p.id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	items := make([]Proposal, 0, limit)
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, "", err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(items) > limit {
		items = items[:limit]
		last := items[limit-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return items, next, nil
}

func (s *Store) GetProposal(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	p, err := scan(s.pool.QueryRow(ctx, proposalSelect+" WHERE p.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) CreateProposal(ctx context.Context, in NewProposal) (*Proposal, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO proposals (name, url, payment_address, payment_amount, payment_count, first_epoch, owner_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, in.Name, in.URL, in.PaymentAddress, in.PaymentAmount, in.PaymentCount, in.FirstEpoch, in.OwnerID, StatusDraft).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s.GetProposal(ctx, id)
}

// Submit records the collateral transaction of a draft.
func (s *Store) Submit(ctx context.Context, id uuid.UUID, txid string) (*Proposal, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE proposals SET status = $2, collateral_txid = $3
		WHERE id = $1 AND status = $4
	`, id, StatusSubmitted, txid, StatusDraft)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetProposal(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotDraft
	}
	return s.GetProposal(ctx, id)
}

// OwnedMasternodes returns the subset of ids owned by userID.
func (s *Store) OwnedMasternodes(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM masternodes WHERE owner_id = $1 AND id = ANY($2::uuid[])
	`, userID, strIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CastVotes writes one row per masternode; a repeated vote replaces the earlier outcome.
func (s *Store) CastVotes(ctx context.Context, b Ballot) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, mn := range b.Masternodes {
		batch.Queue(`
			INSERT INTO proposal_votes (proposal_id, masternode_id, user_id, outcome, voted_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (proposal_id, masternode_id)
			DO UPDATE SET outcome = EXCLUDED.outcome, user_id = EXCLUDED.user_id, voted_at = EXCLUDED.voted_at
		`, b.ProposalID, mn, b.UserID, b.Outcome)
	}
	results := tx.SendBatch(ctx, batch)
	for range b.Masternodes {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, err
		}
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(b.Masternodes), nil
}

// EnabledCount feeds the pass threshold.
func (s *Store) EnabledCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM masternodes WHERE status = 'ENABLED'`).Scan(&n)
	return n, err
}

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func encodeCursor(ts time.Time, id uuid.UUID) string {
	payload := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), id.String())
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return ts, id, nil
}
