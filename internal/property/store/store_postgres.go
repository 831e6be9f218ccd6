package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"zeron/internal/property/models"
	"zeron/pkg/domain"
	"zeron/pkg/platform/sentinel"
	"zeron/pkg/platform/tx"
)

// PostgresStore persists properties in PostgreSQL. Reservations rely on a
// conditional UPDATE so two competing requests serialize on the row itself;
// no lock is ever taken wider than one property.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the caller's transaction when one is in flight, the pool otherwise.
func (s *PostgresStore) q(ctx context.Context) querier {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

const propertyColumns = `id, title, location, status, price_per_share, total_shares, available_shares, investor_count, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.Property) error {
	query := `
		INSERT INTO properties (` + propertyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		p.ID.String(), p.Title, p.Location, string(p.Status), p.PricePerShare,
		p.TotalShares, p.AvailableShares, p.InvestorCount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create property: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.PropertyID) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`
	p, err := scanProperty(s.q(ctx).QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find property: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties ORDER BY created_at DESC`
	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Property) error {
	query := `
		UPDATE properties
		SET title = $2, location = $3, status = $4, price_per_share = $5, updated_at = $6
		WHERE id = $1 AND status <> 'deleted'
	`
	res, err := s.q(ctx).ExecContext(ctx, query,
		p.ID.String(), p.Title, p.Location, string(p.Status), p.PricePerShare, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) MarkDeleted(ctx context.Context, id domain.PropertyID) error {
	query := `
		UPDATE properties
		SET status = 'deleted', updated_at = $2
		WHERE id = $1 AND status <> 'deleted'
	`
	res, err := s.q(ctx).ExecContext(ctx, query, id.String(), time.Now())
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) Reserve(ctx context.Context, id domain.PropertyID, shares int) (int, error) {
	// The WHERE clause is the serialization point: only one of two competing
	// updates can satisfy available_shares >= $2.
	query := `
		UPDATE properties
		SET available_shares = available_shares - $2,
		    investor_count = investor_count + 1,
		    status = CASE WHEN available_shares - $2 = 0 THEN 'sold_out' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND available_shares >= $2
		RETURNING available_shares
	`
	var remaining int
	err := s.q(ctx).QueryRowContext(ctx, query, id.String(), shares).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reserve shares: %w", err)
	}

	// Either the property is missing or the inventory could not cover the
	// request. Re-read to report the true available count.
	var available int
	err = s.q(ctx).QueryRowContext(ctx,
		`SELECT available_shares FROM properties WHERE id = $1`, id.String(),
	).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read available shares: %w", err)
	}
	return available, sentinel.ErrConflict
}

func (s *PostgresStore) Release(ctx context.Context, id domain.PropertyID, shares int) error {
	query := `
		UPDATE properties
		SET available_shares = available_shares + $2,
		    investor_count = GREATEST(investor_count - 1, 0),
		    status = CASE WHEN status = 'sold_out' THEN 'active' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND available_shares + $2 <= total_shares
	`
	res, err := s.q(ctx).ExecContext(ctx, query, id.String(), shares)
	if err != nil {
		return fmt.Errorf("release shares: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*models.Property, error) {
	var (
		p      models.Property
		rawID  string
		status string
	)
	err := row.Scan(&rawID, &p.Title, &p.Location, &status, &p.PricePerShare,
		&p.TotalShares, &p.AvailableShares, &p.InvestorCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, err := domain.ParsePropertyID(rawID)
	if err != nil {
		return nil, err
	}
	p.ID = id
	p.Status = models.PropertyStatus(status)
	return &p, nil
}
