package joinrequest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tobiloba/ajopool/internal/slot"
	"github.com/tobiloba/ajopool/pkg/middleware"
	"github.com/tobiloba/ajopool/pkg/response"
)

// Handler handles join request HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates a new join request handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the join request routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.ListByGroup)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
	return r
}

// Create godoc
// @Summary Request to join a group
// @Description Files a join request against a forming group, reserving the preferred slot if given
// @Tags join-requests
// @Accept json
// @Produce json
// @Param request body CreateJoinRequestRequest true "Join request"
// @Success 201 {object} response.APIResponse{data=JoinRequestResponse}
// @Failure 400 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /join-requests [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req CreateJoinRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if req.GroupID <= 0 {
		response.BadRequest(w, "group_id is required")
		return
	}

	jr, err := h.service.Request(r.Context(), req.GroupID, userID, req.PreferredSlot)
	if err != nil {
		switch {
		case errors.Is(err, ErrGroupNotFound):
			response.NotFound(w, "Group not found")
		case errors.Is(err, ErrGroupNotForming), errors.Is(err, ErrGroupFull),
			errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrOpenRequestExists),
			errors.Is(err, ErrCreatorJoin):
			response.Conflict(w, err.Error())
		case errors.Is(err, slot.ErrSlotUnavailable), errors.Is(err, slot.ErrSlotNotFound):
			response.Conflict(w, "Preferred slot is not available")
		default:
			slog.Error("failed to create join request", "error", err)
			response.InternalError(w, "Failed to create join request")
		}
		return
	}

	response.JSON(w, http.StatusCreated, jr.ToResponse())
}

// ListByGroup godoc
// @Summary List join requests for a group
// @Description Returns a group's join requests; creator only
// @Tags join-requests
// @Produce json
// @Param group_id query int true "Group ID"
// @Success 200 {object} response.APIResponse{data=[]JoinRequestResponse}
// @Failure 403 {object} response.APIResponse
// @Router /join-requests [get]
func (h *Handler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	groupID, err := strconv.ParseInt(r.URL.Query().Get("group_id"), 10, 64)
	if err != nil || groupID <= 0 {
		response.BadRequest(w, "group_id query parameter is required")
		return
	}

	requests, err := h.service.ListByGroup(r.Context(), groupID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrGroupNotFound):
			response.NotFound(w, "Group not found")
		case errors.Is(err, ErrNotGroupCreator):
			response.Forbidden(w, "Only the group creator can list join requests")
		default:
			slog.Error("failed to list join requests", "error", err)
			response.InternalError(w, "Failed to list join requests")
		}
		return
	}

	views := make([]JoinRequestResponse, len(requests))
	for i, jr := range requests {
		views[i] = jr.ToResponse()
	}

	response.JSON(w, http.StatusOK, views)
}

// Approve godoc
// @Summary Approve a join request
// @Description Moves a pending request to approved; the applicant must then pay
// @Tags join-requests
// @Produce json
// @Param id path int true "Join request ID"
// @Success 200 {object} response.APIResponse{data=JoinRequestResponse}
// @Failure 403 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /join-requests/{id}/approve [post]
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

// Reject godoc
// @Summary Reject a join request
// @Description Moves a pending request to rejected and frees its slot reservation
// @Tags join-requests
// @Produce json
// @Param id path int true "Join request ID"
// @Success 200 {object} response.APIResponse{data=JoinRequestResponse}
// @Failure 403 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /join-requests/{id}/reject [post]
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision func(ctx context.Context, requestID, callerID int64) (*JoinRequest, error)) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	requestID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid join request ID")
		return
	}

	jr, err := decision(r.Context(), requestID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrGroupNotFound):
			response.NotFound(w, "Join request not found")
		case errors.Is(err, ErrNotGroupCreator):
			response.Forbidden(w, "Only the group creator can decide join requests")
		case errors.Is(err, ErrNotPending):
			response.Conflict(w, "Join request has already been decided")
		default:
			slog.Error("failed to decide join request", "error", err)
			response.InternalError(w, "Failed to decide join request")
		}
		return
	}

	response.JSON(w, http.StatusOK, jr.ToResponse())
}
