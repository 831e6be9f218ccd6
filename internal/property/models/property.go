package models

import (
	"fmt"
	"time"

	"zeron/pkg/domain"
)

// PropertyStatus is the lifecycle state of a property offering.
type PropertyStatus string

const (
	PropertyStatusActive   PropertyStatus = "active"
	PropertyStatusInactive PropertyStatus = "inactive"
	PropertyStatusSoldOut  PropertyStatus = "sold_out"
	PropertyStatusDeleted  PropertyStatus = "deleted"
)

// ParseStatus validates a raw status string. The deleted status is excluded:
// deletion happens only through its own gated operation.
func ParseStatus(s string) (PropertyStatus, error) {
	switch PropertyStatus(s) {
	case PropertyStatusActive, PropertyStatusInactive, PropertyStatusSoldOut:
		return PropertyStatus(s), nil
	}
	return "", fmt.Errorf("unknown property status %q", s)
}

// Property is one offering with its share inventory. The share pool is the
// contended resource: totalShares is fixed at creation, availableShares moves
// only through conditional writes, and totalShares - availableShares equals
// the sum of shares across confirmed investments.
type Property struct {
	ID              domain.PropertyID
	Title           string
	Location        string
	Status          PropertyStatus
	PricePerShare   float64
	TotalShares     int
	AvailableShares int
	InvestorCount   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive reports whether the property accepts reservations.
func (p *Property) IsActive() bool {
	return p.Status == PropertyStatusActive
}

// CanFill reports whether the current inventory covers a request.
func (p *Property) CanFill(shares int) bool {
	return shares <= p.AvailableShares
}
