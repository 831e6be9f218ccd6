package models

import (
	"fmt"
	"time"

	"zeron/pkg/domain"
)

// Operation is the closed set of passcode-gated mutations. The gateway
// dispatches over this enum exhaustively, so adding an operation is a
// compile-time-checked change.
type Operation string

const (
	OperationPropertyCreate    Operation = "create"
	OperationPropertyUpdate    Operation = "update"
	OperationPropertyDelete    Operation = "delete"
	OperationPromoteSuperAdmin Operation = "promote_super_admin"
	OperationUpdateRole        Operation = "update_role"
)

// AllOperations lists every gated operation. Status scans iterate this set.
var AllOperations = []Operation{
	OperationPropertyCreate,
	OperationPropertyUpdate,
	OperationPropertyDelete,
	OperationPromoteSuperAdmin,
	OperationUpdateRole,
}

// ParseOperation validates a raw operation string.
func ParseOperation(s string) (Operation, error) {
	for _, op := range AllOperations {
		if Operation(s) == op {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// ChallengeStatus is the challenge state machine: pending is the only live
// state; used and expired are terminal and reached exactly once.
type ChallengeStatus string

const (
	ChallengeStatusPending ChallengeStatus = "pending"
	ChallengeStatusUsed    ChallengeStatus = "used"
	ChallengeStatusExpired ChallengeStatus = "expired"
)

// Challenge is one issued passcode. The cleartext code travels only through
// the out-of-band channel; the store keeps a bcrypt hash.
//
// Invariant: at most one pending challenge exists per (RequestedBy, Operation)
// pair; issuing a new one expires any prior pending challenge for the pair.
type Challenge struct {
	ID          domain.ChallengeID
	Operation   Operation
	RequestedBy domain.UserID
	// SubjectID names the target entity of the gated operation, empty for creates.
	SubjectID string
	CodeHash  []byte
	// DeliveryTarget is the masked address the code was sent to, or
	// "operator_record" when delivery degraded to the fallback.
	DeliveryTarget string
	Status         ChallengeStatus
	Attempts       int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// TimedOut reports whether the challenge lifetime has elapsed at now.
func (c *Challenge) TimedOut(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// RemainingAttempts returns the verification budget left, never negative.
func (c *Challenge) RemainingAttempts(maxAttempts int) int {
	if c.Attempts >= maxAttempts {
		return 0
	}
	return maxAttempts - c.Attempts
}
