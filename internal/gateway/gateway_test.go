package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zeron/internal/identity"
	identitystore "zeron/internal/identity/store"
	"zeron/internal/notify"
	"zeron/internal/otp/models"
	otpservice "zeron/internal/otp/service"
	otpstore "zeron/internal/otp/store"
	propmodels "zeron/internal/property/models"
	propstore "zeron/internal/property/store"
	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/testutil"
)

// =============================================================================
// Mutation Gateway Test Suite
// =============================================================================
// Justification for unit tests: the gateway is the only write path for admin
// mutations. The two-phase flow, re-validation between phases, and the
// authority rules need end-to-end exercise against real stores.

type GatewaySuite struct {
	suite.Suite
	properties *propstore.InMemoryStore
	directory  *identitystore.InMemoryDirectory
	recorder   *notify.FallbackRecorder
	challenges *otpservice.Service
	gateway    *Gateway

	admin      identity.Identity
	superAdmin identity.Identity
	investor   identity.Identity
	ctx        context.Context
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.properties = propstore.NewInMemoryStore()
	s.directory = identitystore.NewInMemoryDirectory()
	s.recorder = notify.NewFallbackRecorder()

	var err error
	s.challenges, err = otpservice.New(otpstore.NewInMemoryStore(), s.recorder)
	s.Require().NoError(err)

	s.gateway, err = New(s.challenges, Operations(s.properties, s.directory))
	s.Require().NoError(err)

	s.ctx = testutil.ContextAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	s.admin = identity.Identity{
		UserID: domain.NewUserID(),
		Role:   identity.RoleAdmin,
		Email:  "ops@example.com",
	}
	s.superAdmin = identity.Identity{
		UserID: domain.NewUserID(),
		Role:   identity.RoleSuperAdmin,
		Email:  "root@example.com",
	}
	s.investor = identity.Identity{
		UserID: domain.NewUserID(),
		Role:   identity.RoleInvestor,
		Email:  "user@example.com",
	}
	s.directory.Seed(s.admin)
	s.directory.Seed(s.superAdmin)
	s.directory.Seed(s.investor)
}

func (s *GatewaySuite) lastCode() string {
	s.T().Helper()
	records := s.recorder.Records()
	s.Require().NotEmpty(records)
	return records[len(records)-1].Code
}

// phaseOne runs a no-code call and asserts a challenge came back.
func (s *GatewaySuite) phaseOne(op models.Operation, cmd Command) *ChallengeRequired {
	s.T().Helper()
	result, err := s.gateway.Execute(s.ctx, op, cmd)
	s.Require().NoError(err)
	required, ok := result.(*ChallengeRequired)
	s.Require().True(ok)
	s.Equal("otp_required", required.Step)
	return required
}

func (s *GatewaySuite) seedProperty(status propmodels.PropertyStatus) *propmodels.Property {
	s.T().Helper()
	p := &propmodels.Property{
		ID:              domain.NewPropertyID(),
		Title:           "Marina Heights",
		Location:        "Dubai",
		Status:          status,
		PricePerShare:   100,
		TotalShares:     10,
		AvailableShares: 10,
	}
	s.Require().NoError(s.properties.Create(s.ctx, p))
	return p
}

// =============================================================================
// Two-Phase Flow Tests
// =============================================================================

// The canonical end-to-end path: request, one wrong code, the right code,
// and the applied deletion bound to the challenge that authorized it.
func (s *GatewaySuite) TestDeleteEndToEnd() {
	p := s.seedProperty(propmodels.PropertyStatusActive)
	cmd := Command{Caller: s.admin, PropertyID: p.ID}

	required := s.phaseOne(models.OperationPropertyDelete, cmd)
	s.NotEmpty(required.ChallengeID)
	s.Equal(600, required.ExpiresInSeconds)

	// No mutation yet.
	got, err := s.properties.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(propmodels.PropertyStatusActive, got.Status)

	// Wrong code burns one attempt.
	cmd.Code = "000000"
	_, err = s.gateway.Execute(s.ctx, models.OperationPropertyDelete, cmd)
	var denied *ChallengeDenied
	s.Require().ErrorAs(err, &denied)
	s.Equal(otpservice.ReasonCodeMismatch, denied.Reason)
	s.Equal(2, denied.AttemptsRemaining)

	// Right code applies exactly once.
	cmd.Code = s.lastCode()
	result, err := s.gateway.Execute(s.ctx, models.OperationPropertyDelete, cmd)
	s.Require().NoError(err)
	applied, ok := result.(*Applied)
	s.Require().True(ok)
	s.Equal(s.admin.UserID.String(), applied.AuthorizedBy)
	s.Equal(required.ChallengeID, applied.ChallengeID)

	got, err = s.properties.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(propmodels.PropertyStatusDeleted, got.Status)

	// The challenge is consumed: replaying the code finds nothing pending.
	_, err = s.gateway.Execute(s.ctx, models.OperationPropertyDelete, cmd)
	s.Require().ErrorAs(err, &denied)
	s.Equal(otpservice.ReasonNoPendingChallenge, denied.Reason)
}

func (s *GatewaySuite) TestCreateEndToEnd() {
	cmd := Command{
		Caller: s.admin,
		Property: &PropertyPayload{
			Title:         "Palm Gardens",
			Location:      "Abu Dhabi",
			PricePerShare: 250,
			TotalShares:   40,
		},
	}

	s.phaseOne(models.OperationPropertyCreate, cmd)

	cmd.Code = s.lastCode()
	result, err := s.gateway.Execute(s.ctx, models.OperationPropertyCreate, cmd)
	s.Require().NoError(err)

	applied := result.(*Applied)
	created, ok := applied.Result.(*propmodels.Property)
	s.Require().True(ok)
	s.Equal(propmodels.PropertyStatusActive, created.Status)
	s.Equal(40, created.AvailableShares)
}

func (s *GatewaySuite) TestUpdateDoesNotTouchInventory() {
	p := s.seedProperty(propmodels.PropertyStatusActive)
	_, err := s.properties.Reserve(s.ctx, p.ID, 3)
	s.Require().NoError(err)

	cmd := Command{
		Caller:     s.admin,
		PropertyID: p.ID,
		Property: &PropertyPayload{
			Title:         "Marina Heights II",
			Location:      "Dubai",
			PricePerShare: 120,
		},
	}
	s.phaseOne(models.OperationPropertyUpdate, cmd)

	cmd.Code = s.lastCode()
	_, err = s.gateway.Execute(s.ctx, models.OperationPropertyUpdate, cmd)
	s.Require().NoError(err)

	got, err := s.properties.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("Marina Heights II", got.Title)
	s.Equal(120.0, got.PricePerShare)
	s.Equal(7, got.AvailableShares)
	s.Equal(1, got.InvestorCount)
}

// =============================================================================
// Re-Validation Tests
// =============================================================================

// Phase 1 passes, the target vanishes, phase 2 must fail its re-check and the
// verified challenge stays spent.
func (s *GatewaySuite) TestPhaseTwoRevalidation() {
	p := s.seedProperty(propmodels.PropertyStatusActive)
	cmd := Command{Caller: s.admin, PropertyID: p.ID}

	s.phaseOne(models.OperationPropertyDelete, cmd)

	// Deleted by another path between the phases.
	s.Require().NoError(s.properties.MarkDeleted(s.ctx, p.ID))

	cmd.Code = s.lastCode()
	_, err := s.gateway.Execute(s.ctx, models.OperationPropertyDelete, cmd)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))

	// The code was consumed by the failed attempt.
	status, err := s.challenges.GetStatus(s.ctx, s.admin.UserID)
	s.Require().NoError(err)
	s.False(status.Active)
}

func (s *GatewaySuite) TestPhaseOnePreconditionBlocksDispatch() {
	p := s.seedProperty(propmodels.PropertyStatusActive)
	_, err := s.properties.Reserve(s.ctx, p.ID, 1)
	s.Require().NoError(err)

	// A doomed request must not trigger a passcode send.
	_, err = s.gateway.Execute(s.ctx, models.OperationPropertyDelete, Command{
		Caller:     s.admin,
		PropertyID: p.ID,
	})
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	s.Empty(s.recorder.Records())
}

// =============================================================================
// Authority Tests
// =============================================================================

func (s *GatewaySuite) TestAuthority() {
	p := s.seedProperty(propmodels.PropertyStatusActive)

	s.Run("investor cannot touch properties", func() {
		_, err := s.gateway.Execute(s.ctx, models.OperationPropertyDelete, Command{
			Caller:     s.investor,
			PropertyID: p.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin cannot change roles", func() {
		_, err := s.gateway.Execute(s.ctx, models.OperationUpdateRole, Command{
			Caller: s.admin,
			Role:   &RolePayload{UserID: s.investor.UserID, Role: identity.RoleAdmin},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("missing caller identity rejected", func() {
		_, err := s.gateway.Execute(s.ctx, models.OperationPropertyDelete, Command{
			PropertyID: p.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

// =============================================================================
// Role Mutation Tests
// =============================================================================

func (s *GatewaySuite) TestPromoteSuperAdmin() {
	s.Run("only admins are promotable", func() {
		_, err := s.gateway.Execute(s.ctx, models.OperationPromoteSuperAdmin, Command{
			Caller: s.superAdmin,
			Role:   &RolePayload{UserID: s.investor.UserID},
		})
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	s.Run("cannot promote self", func() {
		_, err := s.gateway.Execute(s.ctx, models.OperationPromoteSuperAdmin, Command{
			Caller: s.superAdmin,
			Role:   &RolePayload{UserID: s.superAdmin.UserID},
		})
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	s.Run("promotes an admin after verification", func() {
		cmd := Command{
			Caller: s.superAdmin,
			Role:   &RolePayload{UserID: s.admin.UserID},
		}
		s.phaseOne(models.OperationPromoteSuperAdmin, cmd)

		cmd.Code = s.lastCode()
		_, err := s.gateway.Execute(s.ctx, models.OperationPromoteSuperAdmin, cmd)
		s.Require().NoError(err)

		got, err := s.directory.FindByID(s.ctx, s.admin.UserID)
		s.Require().NoError(err)
		s.Equal(identity.RoleSuperAdmin, got.Role)
	})
}

func (s *GatewaySuite) TestUpdateRole() {
	cmd := Command{
		Caller: s.superAdmin,
		Role:   &RolePayload{UserID: s.investor.UserID, Role: identity.RoleAdmin},
	}
	s.phaseOne(models.OperationUpdateRole, cmd)

	cmd.Code = s.lastCode()
	result, err := s.gateway.Execute(s.ctx, models.OperationUpdateRole, cmd)
	s.Require().NoError(err)

	applied := result.(*Applied)
	s.Equal(s.superAdmin.UserID.String(), applied.AuthorizedBy)

	got, err := s.directory.FindByID(s.ctx, s.investor.UserID)
	s.Require().NoError(err)
	s.Equal(identity.RoleAdmin, got.Role)
}

// =============================================================================
// Supersession Tests
// =============================================================================

func (s *GatewaySuite) TestSupersedingRequestInvalidatesPrior() {
	p := s.seedProperty(propmodels.PropertyStatusActive)
	cmd := Command{Caller: s.admin, PropertyID: p.ID}

	s.phaseOne(models.OperationPropertyDelete, cmd)
	firstCode := s.lastCode()

	s.phaseOne(models.OperationPropertyDelete, cmd)

	cmd.Code = firstCode
	_, err := s.gateway.Execute(s.ctx, models.OperationPropertyDelete, cmd)
	var denied *ChallengeDenied
	s.Require().ErrorAs(err, &denied)
	s.Equal(otpservice.ReasonCodeMismatch, denied.Reason)

	cmd.Code = s.lastCode()
	_, err = s.gateway.Execute(s.ctx, models.OperationPropertyDelete, cmd)
	s.Require().NoError(err)
}
