// Package store persists OTP challenges. Both implementations expose the same
// conditional-write surface so the state machine resolves each challenge
// exactly once, even when a verify and a superseding request race.
package store

import (
	"context"

	"zeron/internal/otp/models"
	"zeron/pkg/domain"
)

// Store is the challenge persistence contract.
type Store interface {
	Create(ctx context.Context, c *models.Challenge) error
	FindByID(ctx context.Context, id domain.ChallengeID) (*models.Challenge, error)
	// FindPending returns the most recent pending challenge for the
	// (requestedBy, operation) pair, or sentinel.ErrNotFound.
	FindPending(ctx context.Context, requestedBy domain.UserID, op models.Operation) (*models.Challenge, error)
	// Transition is a single-winner compare-and-set on the challenge status.
	// It returns false, without error, when the challenge was not in the
	// expected from state (another caller already resolved it).
	Transition(ctx context.Context, id domain.ChallengeID, from, to models.ChallengeStatus) (bool, error)
	// IncrementAttempts atomically bumps the attempt counter and returns the
	// new value.
	IncrementAttempts(ctx context.Context, id domain.ChallengeID) (int, error)
}
