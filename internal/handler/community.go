package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/circles/internal/service"
)

// CommunityHandler covers community creation and member administration.
type CommunityHandler struct {
	communities *service.CommunityService
	logger      *slog.Logger
}

func NewCommunityHandler(communities *service.CommunityService, logger *slog.Logger) *CommunityHandler {
	return &CommunityHandler{communities: communities, logger: logger}
}

// HandleCreate: POST /api/communities
func (h *CommunityHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateCommunityInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c, err := h.communities.Create(r.Context(), viewerID(r), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

// HandleGet: GET /api/communities/{id}, where id may also be a slug.
func (h *CommunityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.communities.Get(r.Context(), chi.URLParam(r, "id"), viewerID(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

// HandleMembers: GET /api/communities/{id}/members
func (h *CommunityHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	communityID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	members, err := h.communities.ListMembers(r.Context(), communityID, viewerID(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"members": members})
}

type roleRequest struct {
	Role string `json:"role"`
}

// HandleUpdateRole: PUT /api/communities/{id}/members/{memberId}
func (h *CommunityHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	communityID, memberID, err := communityMember(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var in roleRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	m, err := h.communities.UpdateMemberRole(r.Context(), communityID, memberID, viewerID(r), in.Role)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

// HandleRemove: DELETE /api/communities/{id}/members/{memberId}
func (h *CommunityHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	communityID, memberID, err := communityMember(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.communities.RemoveMember(r.Context(), communityID, memberID, viewerID(r)); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Member removed.", nil)
}

func communityMember(r *http.Request) (communityID, memberID int64, err error) {
	if communityID, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	if memberID, err = pathID(r, "memberId"); err != nil {
		return 0, 0, err
	}
	return communityID, memberID, nil
}
