package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("masternode not found")
	ErrDuplicate = errors.New("masternode already registered")
)

// sortColumns maps the sort keys the table offers to columns. Every order
// ends on id so pages are stable.
var sortColumns = map[string]string{
	"rank":       "rank",
	"address":    "address",
	"status":     "status",
	"last_paid":  "last_paid_at",
	"collateral": "collateral",
	"label":      "label",
}

const DefaultSort = "rank"

// SortColumn resolves a client sort key, falling back to rank.
func SortColumn(key string) (string, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "lastpaid" || key == "last_paid_at" {
		key = "last_paid"
	}
	col, ok := sortColumns[key]
	if !ok {
		return sortColumns[DefaultSort], false
	}
	return col, true
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const columns = `id, collateral_txid, collateral_index, address, ip, label, status, collateral, rank, last_paid_at, owner_id, registered_at`

func scan(row pgx.Row) (*Masternode, error) {
	var mn Masternode
	if err := row.Scan(
		&mn.ID, &mn.CollateralTxID, &mn.CollateralIndex, &mn.Address, &mn.IP, &mn.Label,
		&mn.Status, &mn.Collateral, &mn.Rank, &mn.LastPaidAt, &mn.OwnerID, &mn.RegisteredAt,
	); err != nil {
		return nil, err
	}
	return &mn, nil
}

func collect(rows pgx.Rows) ([]Masternode, error) {
	defer rows.Close()
	items := []Masternode{}
	for rows.Next() {
		mn, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *mn)
	}
	return items, rows.Err()
}

// Search returns one page and the total number of matches.
func (s *Store) Search(ctx context.Context, q Query) ([]Masternode, int, error) {
	where := ""
	args := []any{}
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		where = ` WHERE address ILIKE $1 OR label ILIKE $1 OR collateral_txid ILIKE $1 OR ip ILIKE $1`
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM masternodes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count masternodes: %w", err)
	}

	col, _ := SortColumn(q.SortBy)
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM masternodes%s ORDER BY %s %s NULLS LAST, id LIMIT $%d OFFSET $%d`,
		columns, where, col, dir, len(args)+1, len(args)+2)
	args = append(args, q.PerPage, (q.Page-1)*q.PerPage)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search masternodes: %w", err)
	}
	items, err := collect(rows)
	return items, total, err
}

func (s *Store) Get(ctx context.Context, txid string, index int) (*Masternode, error) {
	mn, err := scan(s.pool.QueryRow(ctx, `SELECT `+columns+` FROM masternodes WHERE collateral_txid = $1 AND collateral_index = $2`, txid, index))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return mn, err
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE status = $1)
		FROM masternodes
	`, StatusEnabled).Scan(&st.Total, &st.Enabled)
	return st, err
}

func (s *Store) Register(ctx context.Context, in NewMasternode) (*Masternode, error) {
	mn, err := scan(s.pool.QueryRow(ctx, `
		INSERT INTO masternodes (collateral_txid, collateral_index, address, ip, label, status, owner_id, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING `+columns,
		in.CollateralTxID, in.CollateralIndex, in.Address, in.IP, in.Label, StatusPreEnabled, in.OwnerID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return mn, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Masternode, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+columns+` FROM masternodes WHERE owner_id = $1 ORDER BY registered_at, id`, ownerID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ReleaseOwner detaches every masternode owned by ownerID and reports how
// many rows changed. Safe to repeat.
func (s *Store) ReleaseOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	cmd, err := s.pool.Exec(ctx, `UPDATE masternodes SET owner_id = NULL WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
