package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"zeron/internal/investment/models"
	"zeron/pkg/domain"
	"zeron/pkg/platform/sentinel"
	"zeron/pkg/platform/tx"
)

// PostgresStore persists investments in PostgreSQL. Writes join the caller's
// transaction when one is carried in context, which is how the reservation
// commit couples the inventory decrement and the investment insert.
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

func (s *PostgresStore) q(ctx context.Context) querier {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

const investmentColumns = `id, user_id, property_id, shares, amount, price_per_share_at_purchase, status, payment_reference, returns_accrued, created_at`

func (s *PostgresStore) Create(ctx context.Context, inv *models.Investment) error {
	query := `
		INSERT INTO investments (` + investmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		inv.ID.String(), inv.UserID.String(), inv.PropertyID.String(),
		inv.Shares, inv.Amount, inv.PricePerShareAtPurchase,
		string(inv.Status), inv.PaymentReference, inv.ReturnsAccrued, inv.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create investment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.InvestmentID) (*models.Investment, error) {
	query := `SELECT ` + investmentColumns + ` FROM investments WHERE id = $1`
	inv, err := scanInvestment(s.q(ctx).QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find investment: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID domain.UserID) ([]*models.Investment, error) {
	query := `SELECT ` + investmentColumns + ` FROM investments WHERE user_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, userID.String())
}

func (s *PostgresStore) ListByProperty(ctx context.Context, propertyID domain.PropertyID) ([]*models.Investment, error) {
	query := `SELECT ` + investmentColumns + ` FROM investments WHERE property_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, propertyID.String())
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]*models.Investment, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	defer rows.Close()

	var out []*models.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan investment: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvestment(row rowScanner) (*models.Investment, error) {
	var (
		inv                     models.Investment
		rawID, rawUser, rawProp string
		status                  string
	)
	err := row.Scan(&rawID, &rawUser, &rawProp, &inv.Shares, &inv.Amount,
		&inv.PricePerShareAtPurchase, &status, &inv.PaymentReference,
		&inv.ReturnsAccrued, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	id, err := domain.ParseInvestmentID(rawID)
	if err != nil {
		return nil, err
	}
	userID, err := domain.ParseUserID(rawUser)
	if err != nil {
		return nil, err
	}
	propertyID, err := domain.ParsePropertyID(rawProp)
	if err != nil {
		return nil, err
	}
	inv.ID = id
	inv.UserID = userID
	inv.PropertyID = propertyID
	inv.Status = models.InvestmentStatus(status)
	return &inv, nil
}
