package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"zeron/internal/investment/service"
	"zeron/internal/platform/middleware"
	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/platform/httputil"
	"zeron/pkg/requestcontext"
)

// Service defines the reservation operations consumed by the handler.
type Service interface {
	ReserveShares(ctx context.Context, req service.ReserveRequest) (*service.ReserveResult, error)
}

// Handler wires investment endpoints to the reservation engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an investment handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts investment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/investments", h.HandleReserve)
}

// ReserveRequest is the wire shape of a reservation.
type ReserveRequest struct {
	PropertyID string  `json:"propertyId"`
	Shares     int     `json:"shares"`
	Amount     float64 `json:"amount"`
}

// Validate implements httputil.Validatable.
func (r ReserveRequest) Validate() error {
	if r.PropertyID == "" {
		return dErrors.New(dErrors.CodeValidation, "propertyId is required")
	}
	if _, err := domain.ParsePropertyID(r.PropertyID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid propertyId")
	}
	if r.Shares < 1 {
		return dErrors.New(dErrors.CodeValidation, "shares must be at least 1")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}

// ReserveResponse is the wire shape of a committed reservation.
type ReserveResponse struct {
	InvestmentID    string  `json:"investmentId"`
	TransactionID   string  `json:"transactionId"`
	Shares          int     `json:"shares"`
	Amount          float64 `json:"amount"`
	RemainingShares int     `json:"remainingShares"`
}

// HandleReserve handles POST /investments requests.
func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	caller, ok := middleware.GetIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ReserveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	propertyID, _ := domain.ParsePropertyID(req.PropertyID)
	result, err := h.service.ReserveShares(ctx, service.ReserveRequest{
		PropertyID: propertyID,
		UserID:     caller.UserID,
		Shares:     req.Shares,
		Amount:     req.Amount,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "reservation failed",
			"request_id", requestID,
			"user_id", caller.UserID,
			"property_id", req.PropertyID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "reservation committed",
		"request_id", requestID,
		"user_id", caller.UserID,
		"property_id", req.PropertyID,
		"shares", result.Shares,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusCreated, ReserveResponse{
		InvestmentID:    result.InvestmentID.String(),
		TransactionID:   result.TransactionID,
		Shares:          result.Shares,
		Amount:          result.Amount,
		RemainingShares: result.RemainingShares,
	})
}
