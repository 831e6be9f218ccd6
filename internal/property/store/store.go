// Package store persists properties and owns the conditional writes against
// their share inventory. Stores are pure I/O: eligibility rules live in the
// services that call them.
package store

import (
	"context"

	"zeron/internal/property/models"
	"zeron/pkg/domain"
)

// Store is the property persistence contract.
type Store interface {
	Create(ctx context.Context, p *models.Property) error
	FindByID(ctx context.Context, id domain.PropertyID) (*models.Property, error)
	List(ctx context.Context) ([]*models.Property, error)
	Update(ctx context.Context, p *models.Property) error
	// MarkDeleted soft-deletes a property. Deleted properties stay queryable
	// for audit but fail eligibility checks.
	MarkDeleted(ctx context.Context, id domain.PropertyID) error

	// Reserve atomically decrements available shares and increments the
	// investor count, serialized per property. On success it returns the
	// remaining available count. When the inventory cannot cover the request
	// it returns the true current count together with sentinel.ErrConflict and
	// changes nothing. Missing properties return sentinel.ErrNotFound.
	Reserve(ctx context.Context, id domain.PropertyID, shares int) (available int, err error)

	// Release undoes a reservation's inventory effect. Used only as the
	// compensation path when the investment write fails outside a SQL
	// transaction.
	Release(ctx context.Context, id domain.PropertyID, shares int) error
}
