package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"zeron/internal/property/models"
	"zeron/internal/property/store"
	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/platform/httputil"
	"zeron/pkg/platform/sentinel"
	"zeron/pkg/requestcontext"
)

// Handler serves the public property reads. Writes go through the gated
// mutation endpoints, never through here.
type Handler struct {
	store  store.Store
	logger *slog.Logger
}

// New constructs a property handler.
func New(store store.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts property endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/properties", h.HandleList)
	r.Get("/properties/{id}", h.HandleGet)
}

// PropertyResponse is the wire shape of a property.
type PropertyResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Location        string    `json:"location"`
	Status          string    `json:"status"`
	PricePerShare   float64   `json:"pricePerShare"`
	TotalShares     int       `json:"totalShares"`
	AvailableShares int       `json:"availableShares"`
	InvestorCount   int       `json:"investorCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func fromProperty(p *models.Property) PropertyResponse {
	return PropertyResponse{
		ID:              p.ID.String(),
		Title:           p.Title,
		Location:        p.Location,
		Status:          string(p.Status),
		PricePerShare:   p.PricePerShare,
		TotalShares:     p.TotalShares,
		AvailableShares: p.AvailableShares,
		InvestorCount:   p.InvestorCount,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// HandleList handles GET /properties. Deleted properties are filtered out.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	all, err := h.store.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list properties",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list properties"))
		return
	}

	out := make([]PropertyResponse, 0, len(all))
	for _, p := range all {
		if p.Status == models.PropertyStatusDeleted {
			continue
		}
		out = append(out, fromProperty(p))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"properties": out})
}

// HandleGet handles GET /properties/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParsePropertyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid property id"))
		return
	}

	p, err := h.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "property not found"))
			return
		}
		h.logger.ErrorContext(ctx, "failed to load property",
			"request_id", requestcontext.RequestID(ctx),
			"property_id", id,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property"))
		return
	}
	if p.Status == models.PropertyStatusDeleted {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "property not found"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromProperty(p))
}
