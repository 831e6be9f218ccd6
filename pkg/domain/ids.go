// Package domain defines the typed identifiers shared across modules.
// Wrapping uuid.UUID keeps ID kinds from being mixed up at compile time.
package domain

import "github.com/google/uuid"

type (
	// UserID identifies a platform user (investor or admin).
	UserID uuid.UUID
	// PropertyID identifies a property offering.
	PropertyID uuid.UUID
	// InvestmentID identifies a committed investment record.
	InvestmentID uuid.UUID
	// ChallengeID identifies an OTP challenge.
	ChallengeID uuid.UUID
)

func NewUserID() UserID             { return UserID(uuid.New()) }
func NewPropertyID() PropertyID     { return PropertyID(uuid.New()) }
func NewInvestmentID() InvestmentID { return InvestmentID(uuid.New()) }
func NewChallengeID() ChallengeID   { return ChallengeID(uuid.New()) }

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id PropertyID) String() string   { return uuid.UUID(id).String() }
func (id InvestmentID) String() string { return uuid.UUID(id).String() }
func (id ChallengeID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool       { return uuid.UUID(id) == uuid.Nil }
func (id PropertyID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }
func (id InvestmentID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id ChallengeID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }

// ParseUserID parses a UUID string into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParsePropertyID parses a UUID string into a PropertyID.
func ParsePropertyID(s string) (PropertyID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PropertyID{}, err
	}
	return PropertyID(u), nil
}

// ParseInvestmentID parses a UUID string into an InvestmentID.
func ParseInvestmentID(s string) (InvestmentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return InvestmentID{}, err
	}
	return InvestmentID(u), nil
}

// ParseChallengeID parses a UUID string into a ChallengeID.
func ParseChallengeID(s string) (ChallengeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ChallengeID{}, err
	}
	return ChallengeID(u), nil
}
