// Package gateway gates admin mutations behind an out-of-band passcode. Every
// operation runs the same two-phase shape: request a challenge, then prove it
// and apply. Concrete operations only supply authority, precondition, summary,
// and apply functions.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"zeron/internal/identity"
	"zeron/internal/otp/models"
	otpservice "zeron/internal/otp/service"
	propmodels "zeron/internal/property/models"
	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/platform/audit"
	"zeron/pkg/requestcontext"
)

var tracer = otel.Tracer("zeron/internal/gateway")

// PropertyPayload carries the fields of a property create or update.
type PropertyPayload struct {
	Title         string  `json:"title"`
	Location      string  `json:"location"`
	Status        string  `json:"status"`
	PricePerShare float64 `json:"pricePerShare"`
	TotalShares   int     `json:"totalShares"`
}

// RolePayload carries the target of a role mutation.
type RolePayload struct {
	UserID domain.UserID
	Role   identity.Role
}

// Command is one gated call. Code empty means phase 1 (request a challenge);
// Code set means phase 2 (prove it and apply). Caller is always explicit:
// there is no default identity.
type Command struct {
	Caller     identity.Identity
	Code       string
	PropertyID domain.PropertyID
	Property   *PropertyPayload
	Role       *RolePayload
}

// ChallengeRequired is the phase-1 response. No mutation has happened.
type ChallengeRequired struct {
	Step             string `json:"step"`
	ChallengeID      string `json:"challengeId"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
	DeliveryTarget   string `json:"deliveryTarget"`
}

// Applied is the phase-2 success response.
type Applied struct {
	Result       any       `json:"result"`
	AuthorizedBy string    `json:"authorizedBy"`
	AuthorizedAt time.Time `json:"authorizedAt"`
	ChallengeID  string    `json:"challengeId"`
}

// ChallengeDenied reports a failed phase-2 verification. It satisfies error so
// the executor can surface it alongside infrastructure failures, and carries
// the remaining budget for mismatches.
type ChallengeDenied struct {
	Reason            string `json:"reason"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
}

func (e *ChallengeDenied) Error() string {
	return fmt.Sprintf("challenge denied: %s", e.Reason)
}

// GatedOperation is one admin mutation expressed as its variable parts. The
// executor re-runs Authorize and Precondition in phase 2 so stale approvals
// never apply against changed state.
type GatedOperation struct {
	Op models.Operation

	// Authorize checks the caller's role. It must not consult the command
	// payload.
	Authorize func(caller identity.Identity) error

	// Precondition validates the payload and the target's current state.
	Precondition func(ctx context.Context, cmd Command) error

	// Summary is the human-readable line in the passcode message.
	Summary func(cmd Command) string

	// SubjectID identifies the mutation target for challenges and audit.
	SubjectID func(cmd Command) string

	// Apply performs the mutation. It runs at most once per verified
	// challenge.
	Apply func(ctx context.Context, cmd Command) (any, error)
}

// Gateway executes gated operations against a closed operation set.
type Gateway struct {
	challenges *otpservice.Service
	operations map[models.Operation]GatedOperation
	logger     *slog.Logger
	publisher  audit.Publisher
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(g *Gateway) { g.publisher = p }
}

// New builds a Gateway over the given operations. Every operation must be
// fully populated; a partial definition is a programming error surfaced at
// startup, not at request time.
func New(challenges *otpservice.Service, operations []GatedOperation, opts ...Option) (*Gateway, error) {
	if challenges == nil {
		return nil, errors.New("challenge service is required")
	}
	byOp := make(map[models.Operation]GatedOperation, len(operations))
	for _, op := range operations {
		if op.Authorize == nil || op.Precondition == nil || op.Summary == nil || op.SubjectID == nil || op.Apply == nil {
			return nil, fmt.Errorf("operation %q is not fully defined", op.Op)
		}
		if _, dup := byOp[op.Op]; dup {
			return nil, fmt.Errorf("operation %q registered twice", op.Op)
		}
		byOp[op.Op] = op
	}
	g := &Gateway{
		challenges: challenges,
		operations: byOp,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Execute runs one gated call. Phase 1 returns *ChallengeRequired; phase 2
// returns *Applied or a *ChallengeDenied error.
func (g *Gateway) Execute(ctx context.Context, op models.Operation, cmd Command) (any, error) {
	ctx, span := tracer.Start(ctx, "gateway.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", string(op)),
		attribute.Bool("phase_two", cmd.Code != ""),
	)

	gated, ok := g.operations[op]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unsupported operation %q", op)
	}
	if cmd.Caller.UserID.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	if cmd.Code == "" {
		return g.requestChallenge(ctx, gated, cmd)
	}
	return g.verifyAndApply(ctx, gated, cmd)
}

func (g *Gateway) requestChallenge(ctx context.Context, gated GatedOperation, cmd Command) (any, error) {
	if err := g.authorize(ctx, gated, cmd); err != nil {
		return nil, err
	}
	if err := gated.Precondition(ctx, cmd); err != nil {
		return nil, err
	}

	receipt, err := g.challenges.Request(ctx, gated.Op, cmd.Caller, gated.SubjectID(cmd), gated.Summary(cmd))
	if err != nil {
		return nil, err
	}
	return &ChallengeRequired{
		Step:             "otp_required",
		ChallengeID:      receipt.ChallengeID.String(),
		ExpiresInSeconds: receipt.ExpiresInSeconds,
		DeliveryTarget:   receipt.DeliveryTarget,
	}, nil
}

func (g *Gateway) verifyAndApply(ctx context.Context, gated GatedOperation, cmd Command) (any, error) {
	verdict, err := g.challenges.Verify(ctx, cmd.Caller.UserID, cmd.Code, gated.Op)
	if err != nil {
		return nil, err
	}
	if !verdict.Valid {
		return nil, &ChallengeDenied{
			Reason:            verdict.Reason,
			AttemptsRemaining: verdict.AttemptsRemaining,
		}
	}

	// The challenge is consumed at this point regardless of what follows:
	// a failed re-validation still costs the caller a fresh request.
	if err := g.authorize(ctx, gated, cmd); err != nil {
		return nil, err
	}
	if err := gated.Precondition(ctx, cmd); err != nil {
		return nil, err
	}

	result, err := gated.Apply(ctx, cmd)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	audit.Log(ctx, g.logger, g.publisher, audit.Event{
		Action:   audit.ActionMutationApplied,
		ActorID:  cmd.Caller.UserID.String(),
		Subject:  gated.SubjectID(cmd),
		Decision: "allowed",
		Reason:   string(gated.Op),
	})
	return &Applied{
		Result:       result,
		AuthorizedBy: cmd.Caller.UserID.String(),
		AuthorizedAt: now,
		ChallengeID:  verdict.Challenge.ID.String(),
	}, nil
}

func (g *Gateway) authorize(ctx context.Context, gated GatedOperation, cmd Command) error {
	if err := gated.Authorize(cmd.Caller); err != nil {
		g.logger.WarnContext(ctx, "gated operation denied",
			"operation", string(gated.Op),
			"caller_id", cmd.Caller.UserID.String(),
			"role", string(cmd.Caller.Role),
			"request_id", requestcontext.RequestID(ctx),
		)
		audit.Log(ctx, g.logger, g.publisher, audit.Event{
			Action:   audit.ActionAuthorityDenied,
			ActorID:  cmd.Caller.UserID.String(),
			Subject:  gated.SubjectID(cmd),
			Decision: "denied",
			Reason:   string(gated.Op),
		})
		return err
	}
	return nil
}

// validateProperty checks payload shape shared by create and update.
func validateProperty(p *PropertyPayload, requireShares bool) error {
	if p == nil {
		return dErrors.New(dErrors.CodeValidation, "property payload is required")
	}
	if p.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if p.Location == "" {
		return dErrors.New(dErrors.CodeValidation, "location is required")
	}
	if p.PricePerShare <= 0 {
		return dErrors.New(dErrors.CodeValidation, "pricePerShare must be positive")
	}
	if requireShares && p.TotalShares < 1 {
		return dErrors.New(dErrors.CodeValidation, "totalShares must be at least 1")
	}
	if p.Status != "" {
		if _, err := propmodels.ParseStatus(p.Status); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid status")
		}
	}
	return nil
}
