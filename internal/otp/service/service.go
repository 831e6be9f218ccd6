// Package service implements the OTP challenge lifecycle: issue with
// supersession, verify with a hard attempt budget, and lazy expiry.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"zeron/internal/identity"
	"zeron/internal/notify"
	"zeron/internal/otp/models"
	"zeron/internal/otp/store"
	"zeron/internal/platform/metrics"
	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/platform/audit"
	"zeron/pkg/platform/sentinel"
	"zeron/pkg/requestcontext"
)

// Verify failure reasons. Exhaustion and expiry are terminal: the caller must
// request a fresh challenge, never resume.
const (
	ReasonNoPendingChallenge = "NoPendingChallenge"
	ReasonCodeMismatch       = "CodeMismatch"
	ReasonChallengeExpired   = "ChallengeExpired"
	ReasonAttemptsExhausted  = "AttemptsExhausted"
)

// DeliveryTargetOperator marks a challenge whose code was degraded to the
// operator-visible record because out-of-band delivery failed.
const DeliveryTargetOperator = "operator_record"

// Config carries the challenge lifecycle knobs.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
}

// DefaultConfig matches the platform contract: 10-minute lifetime, 3 attempts.
func DefaultConfig() Config {
	return Config{TTL: 10 * time.Minute, MaxAttempts: 3}
}

// Receipt is the phase-1 return: challenge metadata, never the code. The
// code's value as a secret depends on it traveling only out-of-band.
type Receipt struct {
	ChallengeID      domain.ChallengeID
	ExpiresInSeconds int
	DeliveryTarget   string
}

// VerifyResult is the phase-2 verdict.
type VerifyResult struct {
	Valid             bool
	Reason            string
	AttemptsRemaining int
	// Challenge is set only on success, for binding the applied mutation.
	Challenge *models.Challenge
}

// Status describes the caller's active challenge, if any.
type Status struct {
	Active            bool
	Operation         models.Operation
	ChallengeID       domain.ChallengeID
	ExpiresInSeconds  int
	AttemptsRemaining int
}

// Service owns challenge issue and verification.
type Service struct {
	store      store.Store
	dispatcher notify.Dispatcher
	fallback   notify.Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	publisher  audit.Publisher
	cfg        Config
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithFallback sets the dispatcher used when primary delivery fails. It must
// not be able to fail; the operator record satisfies that.
func WithFallback(d notify.Dispatcher) Option {
	return func(s *Service) { s.fallback = d }
}

func New(st store.Store, dispatcher notify.Dispatcher, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("challenge store is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	s := &Service{
		store:      st,
		dispatcher: dispatcher,
		fallback:   notify.NewFallbackRecorder(),
		logger:     slog.Default(),
		cfg:        DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Request issues a new challenge for the (requester, operation) pair,
// expiring any prior pending challenge for the same pair first so at most one
// is ever live. The code goes to the dispatcher; callers only get metadata.
func (s *Service) Request(ctx context.Context, op models.Operation, requester identity.Identity, subjectID, summary string) (*Receipt, error) {
	// Supersede: a lost CAS here means someone else already resolved it.
	if prior, err := s.store.FindPending(ctx, requester.UserID, op); err == nil {
		_, _ = s.store.Transition(ctx, prior.ID, models.ChallengeStatusPending, models.ChallengeStatusExpired)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check pending challenge")
	}

	code, err := generateCode()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash code")
	}

	target := requester.Email
	if target == "" {
		target = requester.Phone
	}
	if target == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "requester has no delivery target on file")
	}

	deliveryTarget := notify.MaskTarget(target)
	msg := notify.Message{
		Target:      target,
		Code:        code,
		Summary:     summary,
		RequestedBy: requester.Email,
	}
	if err := s.dispatcher.Send(ctx, msg); err != nil {
		// Delivery failed: degrade to the operator record rather than
		// pretending the code went out, and rather than failing phase 1.
		s.logger.WarnContext(ctx, "otp delivery failed, recording for operator",
			"operation", string(op),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.metrics != nil {
			s.metrics.IncDispatchFallback()
		}
		audit.Log(ctx, s.logger, s.publisher, audit.Event{
			Action:  audit.ActionDispatchFallback,
			ActorID: requester.UserID.String(),
			Subject: subjectID,
			Reason:  err.Error(),
		})
		if err := s.fallback.Send(ctx, msg); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "passcode delivery unavailable")
		}
		deliveryTarget = DeliveryTargetOperator
	}

	now := requestcontext.Now(ctx)
	challenge := &models.Challenge{
		ID:             domain.NewChallengeID(),
		Operation:      op,
		RequestedBy:    requester.UserID,
		SubjectID:      subjectID,
		CodeHash:       codeHash,
		DeliveryTarget: deliveryTarget,
		Status:         models.ChallengeStatusPending,
		Attempts:       0,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.TTL),
	}
	if err := s.store.Create(ctx, challenge); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist challenge")
	}

	if s.metrics != nil {
		s.metrics.IncChallengeIssued()
	}
	audit.Log(ctx, s.logger, s.publisher, audit.Event{
		Action:  audit.ActionChallengeIssued,
		ActorID: requester.UserID.String(),
		Subject: challenge.ID.String(),
	})

	return &Receipt{
		ChallengeID:      challenge.ID,
		ExpiresInSeconds: int(s.cfg.TTL.Seconds()),
		DeliveryTarget:   deliveryTarget,
	}, nil
}

// Verify consumes one attempt against the caller's pending challenge.
//
// Every call consumes budget: attempts increment unconditionally before any
// other check. Exhaustion is then checked before time expiry; when both hold
// simultaneously the caller sees AttemptsExhausted. Both trigger the terminal
// pending->expired transition.
func (s *Service) Verify(ctx context.Context, requestedBy domain.UserID, inputCode string, op models.Operation) (*VerifyResult, error) {
	challenge, err := s.store.FindPending(ctx, requestedBy, op)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.countVerdict(ReasonNoPendingChallenge)
			return &VerifyResult{Valid: false, Reason: ReasonNoPendingChallenge, AttemptsRemaining: 0}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load challenge")
	}

	attempts, err := s.store.IncrementAttempts(ctx, challenge.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record attempt")
	}

	if attempts >= s.cfg.MaxAttempts {
		_, _ = s.store.Transition(ctx, challenge.ID, models.ChallengeStatusPending, models.ChallengeStatusExpired)
		s.countVerdict(ReasonAttemptsExhausted)
		audit.Log(ctx, s.logger, s.publisher, audit.Event{
			Action:   audit.ActionChallengeExhausted,
			ActorID:  requestedBy.String(),
			Subject:  challenge.ID.String(),
			Decision: "denied",
		})
		return &VerifyResult{Valid: false, Reason: ReasonAttemptsExhausted, AttemptsRemaining: 0}, nil
	}

	if challenge.TimedOut(requestcontext.Now(ctx)) {
		_, _ = s.store.Transition(ctx, challenge.ID, models.ChallengeStatusPending, models.ChallengeStatusExpired)
		s.countVerdict(ReasonChallengeExpired)
		return &VerifyResult{Valid: false, Reason: ReasonChallengeExpired, AttemptsRemaining: 0}, nil
	}

	// bcrypt comparison keeps code handling constant with respect to the
	// submitted value.
	if bcrypt.CompareHashAndPassword(challenge.CodeHash, []byte(inputCode)) != nil {
		s.countVerdict(ReasonCodeMismatch)
		s.logger.WarnContext(ctx, "otp code mismatch",
			"challenge_id", challenge.ID.String(),
			"attempts", attempts,
			"request_id", requestcontext.RequestID(ctx),
		)
		return &VerifyResult{
			Valid:             false,
			Reason:            ReasonCodeMismatch,
			AttemptsRemaining: s.cfg.MaxAttempts - attempts,
		}, nil
	}

	won, err := s.store.Transition(ctx, challenge.ID, models.ChallengeStatusPending, models.ChallengeStatusUsed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume challenge")
	}
	if !won {
		// A superseding request or concurrent verify resolved it first.
		s.countVerdict(ReasonNoPendingChallenge)
		return &VerifyResult{Valid: false, Reason: ReasonNoPendingChallenge, AttemptsRemaining: 0}, nil
	}

	s.countVerdict("valid")
	audit.Log(ctx, s.logger, s.publisher, audit.Event{
		Action:   audit.ActionChallengeVerified,
		ActorID:  requestedBy.String(),
		Subject:  challenge.ID.String(),
		Decision: "allowed",
	})
	challenge.Status = models.ChallengeStatusUsed
	challenge.Attempts = attempts
	return &VerifyResult{Valid: true, Challenge: challenge}, nil
}

// GetStatus reports the caller's most recent active challenge across all
// operations. A timed-out pending challenge observed here is transitioned to
// expired on the spot.
func (s *Service) GetStatus(ctx context.Context, requestedBy domain.UserID) (*Status, error) {
	now := requestcontext.Now(ctx)
	var newest *models.Challenge
	for _, op := range models.AllOperations {
		challenge, err := s.store.FindPending(ctx, requestedBy, op)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load challenge")
		}
		if challenge.TimedOut(now) {
			_, _ = s.store.Transition(ctx, challenge.ID, models.ChallengeStatusPending, models.ChallengeStatusExpired)
			continue
		}
		if newest == nil || challenge.CreatedAt.After(newest.CreatedAt) {
			newest = challenge
		}
	}
	if newest == nil {
		return &Status{Active: false}, nil
	}
	return &Status{
		Active:            true,
		Operation:         newest.Operation,
		ChallengeID:       newest.ID,
		ExpiresInSeconds:  int(newest.ExpiresAt.Sub(now).Seconds()),
		AttemptsRemaining: newest.RemainingAttempts(s.cfg.MaxAttempts),
	}, nil
}

func (s *Service) countVerdict(verdict string) {
	if s.metrics != nil {
		s.metrics.IncChallengeVerdict(verdict)
	}
}

// generateCode draws a uniformly random 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
