package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/service"
)

// CircleHandler lets a user inspect and edit their own circles.
type CircleHandler struct {
	circles *service.CircleService
	logger  *slog.Logger
}

func NewCircleHandler(circles *service.CircleService, logger *slog.Logger) *CircleHandler {
	return &CircleHandler{circles: circles, logger: logger}
}

// HandleGet returns the viewer's resolved circle context along with the
// user ids each circle selection expands to.
//
// HTTP: GET /api/circles
func (h *CircleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == 0 {
		writeError(w, h.logger, r, apperror.Unauthenticated("Authentication required."))
		return
	}
	cc, err := h.circles.BuildContext(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	resolved := make(map[model.Circle][]int64, 4)
	for _, c := range []model.Circle{model.CircleInner, model.CircleTrusted, model.CircleExtended, model.CircleAll} {
		resolved[c] = h.circles.ResolveUsersForCircle(cc, c)
	}
	writeData(w, http.StatusOK, map[string]any{"context": cc, "users": resolved})
}

type edgeRequest struct {
	Tier string `json:"tier"`
}

// HandleSet places a user in one of the viewer's tiers.
//
// HTTP: PUT /api/circles/{userId}
// REQUEST BODY: {"tier": "inner"|"trusted"|"extended"}
func (h *CircleHandler) HandleSet(w http.ResponseWriter, r *http.Request) {
	target, err := pathID(r, "userId")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var in edgeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	edge, err := h.circles.SetEdge(r.Context(), viewerID(r), target, in.Tier)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, edge)
}

// HandleRemove: DELETE /api/circles/{userId}
func (h *CircleHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	target, err := pathID(r, "userId")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.circles.RemoveEdge(r.Context(), viewerID(r), target); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Removed from your circles.", nil)
}
