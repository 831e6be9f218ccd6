package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"zeron/internal/identity"
	identitystore "zeron/internal/identity/store"
	invstore "zeron/internal/investment/store"
	propmodels "zeron/internal/property/models"
	propstore "zeron/internal/property/store"
	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/testutil"
)

// =============================================================================
// Reservation Engine Test Suite
// =============================================================================
// Justification for unit tests: the engine owns the atomic commit against a
// contended share pool; the rejection paths and the concurrency invariant
// (sum of confirmed shares never exceeds the pool) need precise exercise.

type ReserveEngineSuite struct {
	suite.Suite
	properties  *propstore.InMemoryStore
	investments *invstore.InMemoryStore
	directory   *identitystore.InMemoryDirectory
	engine      *Engine

	investor identity.Identity
	property *propmodels.Property
	ctx      context.Context
}

func TestReserveEngineSuite(t *testing.T) {
	suite.Run(t, new(ReserveEngineSuite))
}

func (s *ReserveEngineSuite) SetupTest() {
	s.properties = propstore.NewInMemoryStore()
	s.investments = invstore.NewInMemoryStore()
	s.directory = identitystore.NewInMemoryDirectory()

	var err error
	s.engine, err = NewEngine(s.properties, s.investments, s.directory)
	s.Require().NoError(err)

	s.ctx = testutil.ContextAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	s.investor = identity.Identity{
		UserID:    domain.NewUserID(),
		Role:      identity.RoleInvestor,
		KYCStatus: identity.KYCApproved,
		Email:     "investor@example.com",
	}
	s.directory.Seed(s.investor)

	s.property = &propmodels.Property{
		ID:              domain.NewPropertyID(),
		Title:           "Marina Heights",
		Location:        "Dubai",
		Status:          propmodels.PropertyStatusActive,
		PricePerShare:   100.0,
		TotalShares:     10,
		AvailableShares: 10,
	}
	s.Require().NoError(s.properties.Create(s.ctx, s.property))
}

func (s *ReserveEngineSuite) reserve(shares int, amount float64) (*ReserveResult, error) {
	return s.engine.ReserveShares(s.ctx, ReserveRequest{
		PropertyID: s.property.ID,
		UserID:     s.investor.UserID,
		Shares:     shares,
		Amount:     amount,
	})
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ReserveEngineSuite) TestNewEngine() {
	s.Run("nil property store returns error", func() {
		_, err := NewEngine(nil, s.investments, s.directory)
		s.Error(err)
		s.Contains(err.Error(), "property store is required")
	})

	s.Run("nil investment store returns error", func() {
		_, err := NewEngine(s.properties, nil, s.directory)
		s.Error(err)
		s.Contains(err.Error(), "investment store is required")
	})

	s.Run("nil directory returns error", func() {
		_, err := NewEngine(s.properties, s.investments, nil)
		s.Error(err)
		s.Contains(err.Error(), "user directory is required")
	})
}

// =============================================================================
// Validation and Precondition Tests
// =============================================================================

func (s *ReserveEngineSuite) TestReserveValidation() {
	s.Run("zero shares rejected with no state change", func() {
		_, err := s.reserve(0, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.assertInventory(10, 0)
	})

	s.Run("missing user rejected", func() {
		_, err := s.engine.ReserveShares(s.ctx, ReserveRequest{
			PropertyID: s.property.ID,
			Shares:     1,
			Amount:     100,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown property returns not found", func() {
		_, err := s.engine.ReserveShares(s.ctx, ReserveRequest{
			PropertyID: domain.NewPropertyID(),
			UserID:     s.investor.UserID,
			Shares:     1,
			Amount:     100,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ReserveEngineSuite) TestReservePreconditions() {
	s.Run("inactive property rejected", func() {
		s.property.Status = propmodels.PropertyStatusInactive
		s.Require().NoError(s.properties.Update(s.ctx, s.property))

		_, err := s.reserve(1, 100)
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
		s.Contains(err.Error(), ReasonPropertyNotActive)
	})

	s.Run("unapproved KYC rejected", func() {
		pending := identity.Identity{
			UserID:    domain.NewUserID(),
			Role:      identity.RoleInvestor,
			KYCStatus: identity.KYCPending,
		}
		s.directory.Seed(pending)

		_, err := s.engine.ReserveShares(s.ctx, ReserveRequest{
			PropertyID: s.property.ID,
			UserID:     pending.UserID,
			Shares:     1,
			Amount:     100,
		})
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
		s.Contains(err.Error(), ReasonKYCNotApproved)
	})
}

func (s *ReserveEngineSuite) TestAmountTolerance() {
	s.Run("exact amount accepted", func() {
		result, err := s.reserve(2, 200.00)
		s.NoError(err)
		s.Equal(2, result.Shares)
	})

	s.Run("amount within tolerance accepted", func() {
		result, err := s.reserve(1, 100.01)
		s.NoError(err)
		s.Equal(1, result.Shares)
	})

	s.Run("amount past tolerance rejected", func() {
		_, err := s.reserve(1, 100.02)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), ReasonAmountMismatch)
	})
}

// =============================================================================
// Inventory Tests
// =============================================================================

func (s *ReserveEngineSuite) TestInsufficientShares() {
	_, err := s.reserve(7, 700)
	s.Require().NoError(err)

	// Only 3 remain: the rejection must report the true current count.
	_, err = s.reserve(5, 500)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	s.Contains(err.Error(), ReasonInsufficientShares)
	s.Contains(err.Error(), "3 available")
	s.assertInventory(3, 1)
}

func (s *ReserveEngineSuite) TestCommitRecordsInvestment() {
	result, err := s.reserve(4, 400)
	s.Require().NoError(err)
	s.Equal(6, result.RemainingShares)
	s.NotEmpty(result.TransactionID)

	inv, err := s.investments.FindByID(s.ctx, result.InvestmentID)
	s.Require().NoError(err)
	s.Equal(4, inv.Shares)
	s.Equal(s.investor.UserID, inv.UserID)
	s.assertInventory(6, 1)
}

func (s *ReserveEngineSuite) TestExhaustionMarksSoldOut() {
	_, err := s.reserve(10, 1000)
	s.Require().NoError(err)

	prop, err := s.properties.FindByID(s.ctx, s.property.ID)
	s.Require().NoError(err)
	s.Equal(propmodels.PropertyStatusSoldOut, prop.Status)
	s.Equal(0, prop.AvailableShares)
}

// =============================================================================
// Concurrency Tests
// =============================================================================

// Two buyers racing for 6 of 10 shares: exactly one commits, the loser sees
// the post-commit count, and the pool never goes negative.
func (s *ReserveEngineSuite) TestConcurrentContention() {
	second := identity.Identity{
		UserID:    domain.NewUserID(),
		Role:      identity.RoleInvestor,
		KYCStatus: identity.KYCApproved,
	}
	s.directory.Seed(second)

	var committed, rejected atomic.Int32
	g := errgroup.Group{}
	for _, userID := range []domain.UserID{s.investor.UserID, second.UserID} {
		g.Go(func() error {
			_, err := s.engine.ReserveShares(s.ctx, ReserveRequest{
				PropertyID: s.property.ID,
				UserID:     userID,
				Shares:     6,
				Amount:     600,
			})
			switch {
			case err == nil:
				committed.Add(1)
			case dErrors.HasCode(err, dErrors.CodePrecondition):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int32(1), committed.Load())
	s.Equal(int32(1), rejected.Load())
	s.assertInventory(4, 1)
}

// Many small buyers against one pool: total confirmed shares must equal the
// pool decrement exactly, with no oversell.
func (s *ReserveEngineSuite) TestConcurrentInvariant() {
	const buyers = 20

	users := make([]domain.UserID, buyers)
	for i := range users {
		u := identity.Identity{
			UserID:    domain.NewUserID(),
			Role:      identity.RoleInvestor,
			KYCStatus: identity.KYCApproved,
		}
		s.directory.Seed(u)
		users[i] = u.UserID
	}

	g := errgroup.Group{}
	for _, userID := range users {
		g.Go(func() error {
			_, err := s.engine.ReserveShares(s.ctx, ReserveRequest{
				PropertyID: s.property.ID,
				UserID:     userID,
				Shares:     1,
				Amount:     100,
			})
			if err != nil && !dErrors.HasCode(err, dErrors.CodePrecondition) {
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	prop, err := s.properties.FindByID(s.ctx, s.property.ID)
	s.Require().NoError(err)
	s.GreaterOrEqual(prop.AvailableShares, 0)

	total := 0
	all, err := s.investments.ListByProperty(s.ctx, s.property.ID)
	s.Require().NoError(err)
	for _, inv := range all {
		total += inv.Shares
	}
	s.Equal(prop.TotalShares-prop.AvailableShares, total)
	s.Equal(10, total)
}

func (s *ReserveEngineSuite) assertInventory(available, investors int) {
	s.T().Helper()
	prop, err := s.properties.FindByID(s.ctx, s.property.ID)
	s.Require().NoError(err)
	s.Equal(available, prop.AvailableShares)
	s.Equal(investors, prop.InvestorCount)
}
