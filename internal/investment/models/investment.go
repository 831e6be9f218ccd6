package models

import (
	"time"

	"zeron/pkg/domain"
)

// InvestmentStatus is the lifecycle state of an investment record.
type InvestmentStatus string

const (
	InvestmentStatusPending   InvestmentStatus = "pending"
	InvestmentStatusConfirmed InvestmentStatus = "confirmed"
	InvestmentStatusFailed    InvestmentStatus = "failed"
	InvestmentStatusCancelled InvestmentStatus = "cancelled"
)

// Investment is a committed purchase of fractional shares. Once confirmed the
// shares/amount/price fields are immutable; only ReturnsAccrued changes later,
// through the distribution process outside this service.
type Investment struct {
	ID                      domain.InvestmentID
	UserID                  domain.UserID
	PropertyID              domain.PropertyID
	Shares                  int
	Amount                  float64
	PricePerShareAtPurchase float64
	Status                  InvestmentStatus
	PaymentReference        string
	ReturnsAccrued          float64
	CreatedAt               time.Time
}

// NewConfirmed builds the investment record written by a successful
// reservation commit. Records are only ever created confirmed; the pending
// state exists for rows imported from the legacy payment path.
func NewConfirmed(userID domain.UserID, propertyID domain.PropertyID, shares int, amount, pricePerShare float64, paymentReference string, now time.Time) *Investment {
	return &Investment{
		ID:                      domain.NewInvestmentID(),
		UserID:                  userID,
		PropertyID:              propertyID,
		Shares:                  shares,
		Amount:                  amount,
		PricePerShareAtPurchase: pricePerShare,
		Status:                  InvestmentStatusConfirmed,
		PaymentReference:        paymentReference,
		CreatedAt:               now,
	}
}
