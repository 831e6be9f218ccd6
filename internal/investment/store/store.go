package store

import (
	"context"

	"zeron/internal/investment/models"
	"zeron/pkg/domain"
)

// Store persists investment records.
type Store interface {
	Create(ctx context.Context, inv *models.Investment) error
	FindByID(ctx context.Context, id domain.InvestmentID) (*models.Investment, error)
	ListByUser(ctx context.Context, userID domain.UserID) ([]*models.Investment, error)
	ListByProperty(ctx context.Context, propertyID domain.PropertyID) ([]*models.Investment, error)
}
