package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zeron/internal/gateway"
	"zeron/internal/identity"
	"zeron/internal/otp/models"
	otpservice "zeron/internal/otp/service"
	"zeron/internal/platform/middleware"
	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/platform/httputil"
	"zeron/pkg/requestcontext"
)

// Executor runs gated mutations.
type Executor interface {
	Execute(ctx context.Context, op models.Operation, cmd gateway.Command) (any, error)
}

// StatusReader reports a caller's active challenge.
type StatusReader interface {
	GetStatus(ctx context.Context, requestedBy domain.UserID) (*otpservice.Status, error)
}

// Handler wires the gated admin mutation endpoint and its status read.
type Handler struct {
	gateway Executor
	status  StatusReader
	logger  *slog.Logger
}

// New constructs a gateway handler.
func New(gw Executor, status StatusReader, logger *slog.Logger) *Handler {
	return &Handler{gateway: gw, status: status, logger: logger}
}

// Register mounts admin endpoints on the router. The caller is expected to
// have wrapped the router with authentication middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/mutations", h.HandleMutation)
	r.Get("/admin/otp/status", h.HandleStatus)
}

// MutationRequest is the wire shape of a gated call. A missing code means
// phase 1; a present code means phase 2.
type MutationRequest struct {
	Operation string                   `json:"operation"`
	TargetID  string                   `json:"targetId,omitempty"`
	Payload   *gateway.PropertyPayload `json:"payload,omitempty"`
	Role      string                   `json:"role,omitempty"`
	Code      string                   `json:"code,omitempty"`
}

// Validate implements httputil.Validatable.
func (r MutationRequest) Validate() error {
	if r.Operation == "" {
		return dErrors.New(dErrors.CodeValidation, "operation is required")
	}
	if _, err := models.ParseOperation(r.Operation); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "unknown operation")
	}
	return nil
}

// DeniedResponse is the wire shape of a failed phase-2 verification.
type DeniedResponse struct {
	Reason            string `json:"reason"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
}

// HandleMutation handles POST /admin/mutations requests.
func (h *Handler) HandleMutation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := middleware.GetIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[MutationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	op, _ := models.ParseOperation(req.Operation)

	cmd, err := h.buildCommand(op, caller, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.gateway.Execute(ctx, op, cmd)
	if err != nil {
		var denied *gateway.ChallengeDenied
		if errors.As(err, &denied) {
			h.logger.WarnContext(ctx, "gated mutation denied",
				"request_id", requestID,
				"caller_id", caller.UserID,
				"operation", req.Operation,
				"reason", denied.Reason,
			)
			httputil.WriteJSON(w, http.StatusForbidden, DeniedResponse{
				Reason:            denied.Reason,
				AttemptsRemaining: denied.AttemptsRemaining,
			})
			return
		}
		h.logger.ErrorContext(ctx, "gated mutation failed",
			"request_id", requestID,
			"caller_id", caller.UserID,
			"operation", req.Operation,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if _, issued := result.(*gateway.ChallengeRequired); issued {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, result)
}

// buildCommand translates the wire request into a gateway command, parsing
// the target identifier the operation expects.
func (h *Handler) buildCommand(op models.Operation, caller identity.Identity, req MutationRequest) (gateway.Command, error) {
	cmd := gateway.Command{
		Caller:   caller,
		Code:     req.Code,
		Property: req.Payload,
	}

	switch op {
	case models.OperationPropertyCreate:
		// No target: the payload is the whole intent.
	case models.OperationPropertyUpdate, models.OperationPropertyDelete:
		id, err := domain.ParsePropertyID(req.TargetID)
		if err != nil {
			return gateway.Command{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid targetId")
		}
		cmd.PropertyID = id
	case models.OperationPromoteSuperAdmin, models.OperationUpdateRole:
		id, err := domain.ParseUserID(req.TargetID)
		if err != nil {
			return gateway.Command{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid targetId")
		}
		cmd.Role = &gateway.RolePayload{
			UserID: id,
			Role:   identity.Role(req.Role),
		}
		if op == models.OperationPromoteSuperAdmin {
			cmd.Role.Role = identity.RoleSuperAdmin
		}
	}
	return cmd, nil
}

// HandleStatus handles GET /admin/otp/status requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := middleware.GetIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	status, err := h.status.GetStatus(ctx, caller.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read challenge status",
			"request_id", requestcontext.RequestID(ctx),
			"caller_id", caller.UserID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if !status.Active {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"active":            true,
		"operation":         string(status.Operation),
		"challengeId":       status.ChallengeID.String(),
		"expiresInSeconds":  status.ExpiresInSeconds,
		"attemptsRemaining": status.AttemptsRemaining,
	})
}
