package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"zeron/internal/identity"
	"zeron/internal/notify"
	"zeron/internal/notify/mocks"
	"zeron/internal/otp/models"
	"zeron/internal/otp/store"
	"zeron/pkg/domain"
	"zeron/pkg/testutil"
)

// =============================================================================
// Challenge Service Test Suite
// =============================================================================
// Justification for unit tests: the challenge state machine carries the
// security posture of every gated mutation. Attempt budgets, expiry ordering,
// and supersession need to be pinned down call by call with a fixed clock.

type ChallengeServiceSuite struct {
	suite.Suite
	store     *store.InMemoryStore
	recorder  *notify.FallbackRecorder
	service   *Service
	requester identity.Identity
	ctx       context.Context
}

func TestChallengeServiceSuite(t *testing.T) {
	suite.Run(t, new(ChallengeServiceSuite))
}

func (s *ChallengeServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.recorder = notify.NewFallbackRecorder()

	var err error
	s.service, err = New(s.store, s.recorder)
	s.Require().NoError(err)

	s.ctx = testutil.ContextAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.requester = identity.Identity{
		UserID: domain.NewUserID(),
		Role:   identity.RoleAdmin,
		Email:  "admin@example.com",
	}
}

// issue requests a challenge and returns the receipt together with the code
// that went out through the dispatcher.
func (s *ChallengeServiceSuite) issue(op models.Operation) (*Receipt, string) {
	s.T().Helper()
	before := len(s.recorder.Records())
	receipt, err := s.service.Request(s.ctx, op, s.requester, "subject-1", "delete property P1")
	s.Require().NoError(err)
	records := s.recorder.Records()
	s.Require().Len(records, before+1)
	return receipt, records[before].Code
}

// =============================================================================
// Request Tests
// =============================================================================

func (s *ChallengeServiceSuite) TestRequest() {
	s.Run("issues a pending challenge with masked target", func() {
		receipt, code := s.issue(models.OperationPropertyDelete)
		s.False(receipt.ChallengeID.IsZero())
		s.Equal(600, receipt.ExpiresInSeconds)
		s.Equal("a****@example.com", receipt.DeliveryTarget)
		s.Len(code, 6)

		pending, err := s.store.FindPending(s.ctx, s.requester.UserID, models.OperationPropertyDelete)
		s.Require().NoError(err)
		s.Equal(models.ChallengeStatusPending, pending.Status)
		s.Equal(0, pending.Attempts)
		s.NotContains(string(pending.CodeHash), code)
	})

	s.Run("requester without contact details rejected", func() {
		bare := identity.Identity{UserID: domain.NewUserID(), Role: identity.RoleAdmin}
		_, err := s.service.Request(s.ctx, models.OperationPropertyCreate, bare, "x", "create")
		s.Error(err)
	})
}

func (s *ChallengeServiceSuite) TestSupersession() {
	_, firstCode := s.issue(models.OperationPropertyCreate)
	second, secondCode := s.issue(models.OperationPropertyCreate)

	// The first code belongs to an expired challenge now; only the second
	// can resolve the pair.
	verdict, err := s.service.Verify(s.ctx, s.requester.UserID, firstCode, models.OperationPropertyCreate)
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(ReasonCodeMismatch, verdict.Reason)

	verdict, err = s.service.Verify(s.ctx, s.requester.UserID, secondCode, models.OperationPropertyCreate)
	s.Require().NoError(err)
	s.True(verdict.Valid)
	s.Equal(second.ChallengeID, verdict.Challenge.ID)
}

// =============================================================================
// Verify Tests
// =============================================================================

func (s *ChallengeServiceSuite) TestVerifyLifecycle() {
	s.Run("no pending challenge", func() {
		verdict, err := s.service.Verify(s.ctx, s.requester.UserID, "000000", models.OperationPropertyDelete)
		s.Require().NoError(err)
		s.False(verdict.Valid)
		s.Equal(ReasonNoPendingChallenge, verdict.Reason)
		s.Equal(0, verdict.AttemptsRemaining)
	})

	s.Run("three wrong codes exhaust the challenge", func() {
		_, _ = s.issue(models.OperationPropertyDelete)

		verdict, err := s.service.Verify(s.ctx, s.requester.UserID, "000000", models.OperationPropertyDelete)
		s.Require().NoError(err)
		s.Equal(ReasonCodeMismatch, verdict.Reason)
		s.Equal(2, verdict.AttemptsRemaining)

		verdict, err = s.service.Verify(s.ctx, s.requester.UserID, "000000", models.OperationPropertyDelete)
		s.Require().NoError(err)
		s.Equal(ReasonCodeMismatch, verdict.Reason)
		s.Equal(1, verdict.AttemptsRemaining)

		verdict, err = s.service.Verify(s.ctx, s.requester.UserID, "000000", models.OperationPropertyDelete)
		s.Require().NoError(err)
		s.Equal(ReasonAttemptsExhausted, verdict.Reason)
		s.Equal(0, verdict.AttemptsRemaining)

		// A fourth call finds nothing pending: exhaustion is terminal.
		verdict, err = s.service.Verify(s.ctx, s.requester.UserID, "000000", models.OperationPropertyDelete)
		s.Require().NoError(err)
		s.Equal(ReasonNoPendingChallenge, verdict.Reason)
	})

	s.Run("correct code on third attempt still exhausts", func() {
		_, code := s.issue(models.OperationPropertyUpdate)

		for range 2 {
			verdict, err := s.service.Verify(s.ctx, s.requester.UserID, "999999", models.OperationPropertyUpdate)
			s.Require().NoError(err)
			s.Equal(ReasonCodeMismatch, verdict.Reason)
		}

		// The budget check runs before the comparison: the right code on the
		// third call is too late.
		verdict, err := s.service.Verify(s.ctx, s.requester.UserID, code, models.OperationPropertyUpdate)
		s.Require().NoError(err)
		s.False(verdict.Valid)
		s.Equal(ReasonAttemptsExhausted, verdict.Reason)
	})

	s.Run("correct code consumes the challenge exactly once", func() {
		_, code := s.issue(models.OperationPromoteSuperAdmin)

		verdict, err := s.service.Verify(s.ctx, s.requester.UserID, code, models.OperationPromoteSuperAdmin)
		s.Require().NoError(err)
		s.True(verdict.Valid)
		s.Equal(models.ChallengeStatusUsed, verdict.Challenge.Status)

		verdict, err = s.service.Verify(s.ctx, s.requester.UserID, code, models.OperationPromoteSuperAdmin)
		s.Require().NoError(err)
		s.Equal(ReasonNoPendingChallenge, verdict.Reason)
	})
}

func (s *ChallengeServiceSuite) TestVerifyTimeout() {
	_, code := s.issue(models.OperationPropertyDelete)

	// One second past the 10-minute lifetime: even the right code fails.
	late := testutil.Advance(s.ctx, 601*time.Second)
	verdict, err := s.service.Verify(late, s.requester.UserID, code, models.OperationPropertyDelete)
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(ReasonChallengeExpired, verdict.Reason)
	s.Equal(0, verdict.AttemptsRemaining)
}

// =============================================================================
// Status Tests
// =============================================================================

func (s *ChallengeServiceSuite) TestGetStatus() {
	s.Run("no active challenge", func() {
		status, err := s.service.GetStatus(s.ctx, s.requester.UserID)
		s.Require().NoError(err)
		s.False(status.Active)
	})

	s.Run("reports the newest pending challenge", func() {
		_, _ = s.issue(models.OperationPropertyCreate)
		later := testutil.Advance(s.ctx, time.Minute)
		_, err := s.service.Request(later, models.OperationPropertyDelete, s.requester, "p1", "delete")
		s.Require().NoError(err)

		status, err := s.service.GetStatus(later, s.requester.UserID)
		s.Require().NoError(err)
		s.True(status.Active)
		s.Equal(models.OperationPropertyDelete, status.Operation)
		s.Equal(600, status.ExpiresInSeconds)
		s.Equal(3, status.AttemptsRemaining)
	})

	s.Run("lazily expires a timed-out challenge", func() {
		_, _ = s.issue(models.OperationUpdateRole)

		late := testutil.Advance(s.ctx, 11*time.Minute)
		status, err := s.service.GetStatus(late, s.requester.UserID)
		s.Require().NoError(err)
		s.False(status.Active)

		_, err = s.store.FindPending(late, s.requester.UserID, models.OperationUpdateRole)
		s.Error(err)
	})
}

// =============================================================================
// Dispatch Failure Tests
// =============================================================================

func (s *ChallengeServiceSuite) TestDispatchFailure() {
	ctrl := gomock.NewController(s.T())
	failing := mocks.NewMockDispatcher(ctrl)
	failing.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(errors.New("smtp connection refused"))

	recorder := notify.NewFallbackRecorder()
	svc, err := New(s.store, failing, WithFallback(recorder))
	s.Require().NoError(err)

	receipt, err := svc.Request(s.ctx, models.OperationPropertyDelete, s.requester, "p1", "delete property P1")
	s.Require().NoError(err)

	// Delivery failed, so the receipt says so and the code is recoverable
	// from the operator record. The challenge itself is still live.
	s.Equal(DeliveryTargetOperator, receipt.DeliveryTarget)
	records := recorder.Records()
	s.Require().Len(records, 1)
	s.Len(records[0].Code, 6)

	verdict, err := svc.Verify(s.ctx, s.requester.UserID, records[0].Code, models.OperationPropertyDelete)
	s.Require().NoError(err)
	s.True(verdict.Valid)
}
