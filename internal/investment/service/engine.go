// Package service implements the share reservation engine: the validated,
// atomic commit of a purchase against a property's contended share inventory.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"zeron/internal/identity"
	invmodels "zeron/internal/investment/models"
	invstore "zeron/internal/investment/store"
	"zeron/internal/platform/metrics"
	propstore "zeron/internal/property/store"
	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/platform/audit"
	"zeron/pkg/platform/sentinel"
	"zeron/pkg/platform/tx"
	"zeron/pkg/requestcontext"
)

// AmountTolerance is the absolute tolerance, in currency units, between the
// submitted amount and shares x pricePerShare. Kept absolute rather than
// relative to match the platform's existing billing behavior.
const AmountTolerance = 0.01

// Rejection reasons surfaced to callers and counted in metrics.
const (
	ReasonPropertyNotActive  = "PropertyNotActive"
	ReasonInsufficientShares = "InsufficientShares"
	ReasonAmountMismatch     = "AmountMismatch"
	ReasonKYCNotApproved     = "KYCNotApproved"
)

// ReserveRequest is one purchase attempt.
type ReserveRequest struct {
	PropertyID domain.PropertyID
	UserID     domain.UserID
	Shares     int
	Amount     float64
}

// ReserveResult reports a committed reservation.
type ReserveResult struct {
	InvestmentID    domain.InvestmentID
	TransactionID   string
	Shares          int
	Amount          float64
	RemainingShares int
}

// Engine validates and atomically commits share reservations.
type Engine struct {
	properties  propstore.Store
	investments invstore.Store
	directory   identity.Directory
	tx          tx.Runner
	logger      *slog.Logger
	metrics     *metrics.Metrics
	publisher   audit.Publisher
	tracer      trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithTxRunner(r tx.Runner) Option {
	return func(e *Engine) { e.tx = r }
}

func NewEngine(properties propstore.Store, investments invstore.Store, directory identity.Directory, opts ...Option) (*Engine, error) {
	if properties == nil {
		return nil, errors.New("property store is required")
	}
	if investments == nil {
		return nil, errors.New("investment store is required")
	}
	if directory == nil {
		return nil, errors.New("user directory is required")
	}
	e := &Engine{
		properties:  properties,
		investments: investments,
		directory:   directory,
		tx:          tx.PassthroughRunner{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("zeron/investment"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ReserveShares validates the request and commits the purchase. The inventory
// decrement and the investment insert land as one atomic unit: under SQL both
// run in a single transaction; in memory the conditional decrement is the
// serialization point and the insert cannot fail after it.
//
// Each failure leaves the inventory and the investment log untouched.
func (e *Engine) ReserveShares(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	ctx, span := e.tracer.Start(ctx, "reservation.commit",
		trace.WithAttributes(
			attribute.String("property_id", req.PropertyID.String()),
			attribute.Int("shares", req.Shares),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ReservationDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}
	}()

	if req.Shares < 1 {
		return nil, e.reject(ctx, req, dErrors.New(dErrors.CodeValidation, "shares must be at least 1"), "ValidationError")
	}
	if req.UserID.IsZero() {
		return nil, e.reject(ctx, req, dErrors.New(dErrors.CodeValidation, "user id is required"), "ValidationError")
	}

	prop, err := e.properties.FindByID(ctx, req.PropertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, e.reject(ctx, req, dErrors.New(dErrors.CodeNotFound, "property not found"), "NotFound")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	if !prop.IsActive() {
		return nil, e.reject(ctx, req, dErrors.New(dErrors.CodePrecondition, ReasonPropertyNotActive), ReasonPropertyNotActive)
	}

	expected := float64(req.Shares) * prop.PricePerShare
	if math.Abs(req.Amount-expected) > AmountTolerance {
		return nil, e.reject(ctx, req, dErrors.Newf(dErrors.CodeValidation,
			"%s: expected %.2f for %d shares", ReasonAmountMismatch, expected, req.Shares), ReasonAmountMismatch)
	}

	investor, err := e.directory.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, e.reject(ctx, req, dErrors.New(dErrors.CodeNotFound, "user not found"), "NotFound")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load investor")
	}
	if investor.KYCStatus != identity.KYCApproved {
		return nil, e.reject(ctx, req, dErrors.New(dErrors.CodePrecondition, ReasonKYCNotApproved), ReasonKYCNotApproved)
	}

	// Fresh reference per call; duplicate submissions intentionally create
	// separate reservations (no idempotency key in the contract).
	paymentReference := uuid.NewString()
	now := requestcontext.Now(ctx)

	var result *ReserveResult
	err = e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		remaining, err := e.properties.Reserve(txCtx, req.PropertyID, req.Shares)
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodePrecondition,
					"%s: %d available", ReasonInsufficientShares, remaining)
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "property not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve shares")
		}

		inv := invmodels.NewConfirmed(req.UserID, req.PropertyID, req.Shares,
			req.Amount, prop.PricePerShare, paymentReference, now)
		if err := e.investments.Create(txCtx, inv); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist investment")
		}

		result = &ReserveResult{
			InvestmentID:    inv.ID,
			TransactionID:   paymentReference,
			Shares:          inv.Shares,
			Amount:          inv.Amount,
			RemainingShares: remaining,
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodePrecondition) {
			return nil, e.reject(ctx, req, err, ReasonInsufficientShares)
		}
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, err
		}
		e.logger.ErrorContext(ctx, "reservation commit failed",
			"property_id", req.PropertyID.String(),
			"user_id", req.UserID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.IncReservationCommitted()
	}
	audit.Log(ctx, e.logger, e.publisher, audit.Event{
		Action:   audit.ActionSharesReserved,
		ActorID:  req.UserID.String(),
		Subject:  req.PropertyID.String(),
		Decision: "allowed",
	})
	return result, nil
}

func (e *Engine) reject(ctx context.Context, req ReserveRequest, err error, reason string) error {
	if e.metrics != nil {
		e.metrics.IncReservationRejected(reason)
	}
	e.logger.WarnContext(ctx, "reservation rejected",
		"reason", reason,
		"property_id", req.PropertyID.String(),
		"user_id", req.UserID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return err
}
