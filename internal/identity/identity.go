// Package identity resolves a caller's identity, role, and contact data from a
// session credential. The core consumes it read-only; the only writes are the
// role changes applied by gated admin operations.
package identity

import (
	"context"
	"fmt"

	"zeron/pkg/domain"
)

// Role is the closed set of platform roles.
type Role string

const (
	RoleInvestor   Role = "investor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole validates a raw role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleInvestor, RoleAdmin, RoleSuperAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsAdmin reports whether the role carries administrative authority.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// KYCStatus is the verification state gating a user's eligibility to transact.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

// Identity is a resolved caller: who they are, what they may do, and where
// out-of-band messages reach them.
type Identity struct {
	UserID    domain.UserID
	Role      Role
	KYCStatus KYCStatus
	Email     string
	Phone     string
}

// Provider resolves a session credential into an Identity.
type Provider interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Directory is the user store consumed for authority and precondition checks.
// Role writes happen only through gated operations.
type Directory interface {
	FindByID(ctx context.Context, userID domain.UserID) (Identity, error)
	UpdateRole(ctx context.Context, userID domain.UserID, role Role) error
}
