package cycle

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tobiloba/ajopool/pkg/response"
)

// Handler handles HTTP requests for cycle and payout queries
type Handler struct {
	engine *Engine
}

// NewHandler creates a new cycle handler
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Routes returns the router for cycle endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListCycles)
	r.Get("/payouts", h.ListPayouts)
	r.Get("/{number}/contributions", h.ListContributions)

	return r
}

func groupIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("group_id"), 10, 64)
	return id, err == nil && id > 0
}

// ListCycles handles GET /cycles?group_id=
// @Summary      List contribution cycles
// @Tags         cycles
// @Produce      json
// @Param        group_id query int true "Group ID"
// @Success      200 {object} response.APIResponse
// @Router       /cycles [get]
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(r)
	if !ok {
		response.BadRequest(w, "group_id query parameter required")
		return
	}

	cycles, err := h.engine.ListCycles(r.Context(), groupID)
	if err != nil {
		response.InternalError(w, "Failed to list cycles")
		return
	}

	response.JSON(w, http.StatusOK, cycles)
}

// ListPayouts handles GET /cycles/payouts?group_id=
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(r)
	if !ok {
		response.BadRequest(w, "group_id query parameter required")
		return
	}

	payouts, err := h.engine.ListPayouts(r.Context(), groupID)
	if err != nil {
		response.InternalError(w, "Failed to list payouts")
		return
	}

	response.JSON(w, http.StatusOK, payouts)
}

// ListContributions handles GET /cycles/{number}/contributions?group_id=
func (h *Handler) ListContributions(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(r)
	if !ok {
		response.BadRequest(w, "group_id query parameter required")
		return
	}

	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		response.BadRequest(w, "Invalid cycle number")
		return
	}

	contributions, err := h.engine.ListContributions(r.Context(), groupID, number)
	if err != nil {
		response.InternalError(w, "Failed to list contributions")
		return
	}

	response.JSON(w, http.StatusOK, contributions)
}
