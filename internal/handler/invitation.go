package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/auth"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/service"
)

// InvitationHandler exposes the invitation engine over HTTP.
//
// Management routes exist once per entity type:
//
//	GET    /api/{communities|events}/{id}/invitations
//	POST   /api/{communities|events}/{id}/invitations
//	POST   /api/{communities|events}/{id}/invitations/{invitationId}/resend
//	DELETE /api/{communities|events}/{id}/invitations/{invitationId}
//
// Each checks the action nonce first (403), then the session (401), and
// answers with a fresh nonce so the page can keep going.
type InvitationHandler struct {
	invitations *service.InvitationService
	nonces      *NonceHandler
	logger      *slog.Logger
}

func NewInvitationHandler(invitations *service.InvitationService, nonces *NonceHandler, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, nonces: nonces, logger: logger}
}

// nonceAction returns the nonce action guarding invitations to entity.
func nonceAction(entity model.EntityType) string {
	if entity == model.EntityCommunity {
		return auth.ActionCommunity
	}
	return auth.ActionEvent
}

// guard runs the nonce and session checks shared by the management routes.
// It returns the viewer id, or 0 after it has already written the response.
func (h *InvitationHandler) guard(w http.ResponseWriter, r *http.Request, entity model.EntityType, nonce string, attrs ...any) int64 {
	if !h.nonces.verify(r, nonce, nonceAction(entity), attrs...) {
		writeFailure(w, http.StatusForbidden, msgBadNonce)
		return 0
	}
	userID := viewerID(r)
	if userID == 0 {
		writeError(w, h.logger, r, apperror.Unauthenticated("You must be signed in to manage invitations."))
		return 0
	}
	return userID
}

// HandleList: GET /api/{type}/{id}/invitations?nonce=...
func (h *InvitationHandler) HandleList(entity model.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID, err := pathID(r, "id")
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		userID := h.guard(w, r, entity, nonceFrom(r), slog.Int64("entityID", entityID))
		if userID == 0 {
			return
		}

		var invitations any
		if entity == model.EntityCommunity {
			invitations, err = h.invitations.ListCommunityInvitations(r.Context(), entityID, userID)
		} else {
			invitations, err = h.invitations.ListEventInvitations(r.Context(), entityID, userID)
		}
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"invitations": invitations,
			"nonce":       h.nonces.fresh(nonceAction(entity), userID),
		})
	}
}

type sendRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
	Nonce   string `json:"nonce"`
}

// HandleSend invites an email address. A brand new invitation answers 201;
// re-inviting an existing address answers 200.
//
// HTTP: POST /api/{type}/{id}/invitations
// REQUEST BODY: {"email", "message", "nonce"}
func (h *InvitationHandler) HandleSend(entity model.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID, err := pathID(r, "id")
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		var in sendRequest
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		userID := h.guard(w, r, entity, in.Nonce, slog.Int64("entityID", entityID))
		if userID == 0 {
			return
		}

		var res *model.SendResult
		if entity == model.EntityCommunity {
			res, err = h.invitations.SendCommunityInvitation(r.Context(), entityID, userID, in.Email, in.Message)
		} else {
			res, err = h.invitations.SendEventInvitation(r.Context(), entityID, userID, in.Email, in.Message)
		}
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}

		status, message := http.StatusOK, "Invitation sent again."
		if res.Created {
			status, message = http.StatusCreated, "Invitation sent."
		}
		writeMessage(w, status, message, map[string]any{
			"invitation_id": res.InvitationID,
			"token":         res.Token,
			"created":       res.Created,
			"nonce":         h.nonces.fresh(nonceAction(entity), userID),
		})
	}
}

type nonceRequest struct {
	Nonce string `json:"nonce"`
}

// requestNonce takes the nonce from a JSON body when there is one, else from
// the query string or header.
func requestNonce(r *http.Request) string {
	if isJSON(r) {
		var in nonceRequest
		if err := decodeJSON(r, &in); err == nil && in.Nonce != "" {
			return in.Nonce
		}
	}
	return nonceFrom(r)
}

// HandleResend: POST /api/{type}/{id}/invitations/{invitationId}/resend
func (h *InvitationHandler) HandleResend(entity model.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID, invitationID, err := entityInvitation(r)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		userID := h.guard(w, r, entity, requestNonce(r),
			slog.Int64("entityID", entityID), slog.Int64("invitationID", invitationID))
		if userID == 0 {
			return
		}

		var res *model.ResendResult
		if entity == model.EntityCommunity {
			res, err = h.invitations.ResendCommunityInvitation(r.Context(), entityID, invitationID, userID)
		} else {
			res, err = h.invitations.ResendEventInvitation(r.Context(), entityID, invitationID, userID)
		}
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}

		message := "Invitation resent."
		if !res.Changed {
			message = "This invitation has already been accepted."
		}
		writeMessage(w, http.StatusOK, message, map[string]any{
			"invitation_id": res.InvitationID,
			"changed":       res.Changed,
			"nonce":         h.nonces.fresh(nonceAction(entity), userID),
		})
	}
}

// HandleDelete: DELETE /api/{type}/{id}/invitations/{invitationId}?nonce=...
func (h *InvitationHandler) HandleDelete(entity model.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID, invitationID, err := entityInvitation(r)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		userID := h.guard(w, r, entity, requestNonce(r),
			slog.Int64("entityID", entityID), slog.Int64("invitationID", invitationID))
		if userID == 0 {
			return
		}

		var res *model.DeleteResult
		if entity == model.EntityCommunity {
			res, err = h.invitations.DeleteCommunityInvitation(r.Context(), entityID, invitationID, userID)
		} else {
			res, err = h.invitations.DeleteEventInvitation(r.Context(), entityID, invitationID, userID)
		}
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		writeMessage(w, http.StatusOK, "Invitation removed.", map[string]any{
			"invitation_id": res.InvitationID,
			"removed":       res.Removed,
			"cancelled":     res.Cancelled,
			"nonce":         h.nonces.fresh(nonceAction(entity), userID),
		})
	}
}

func entityInvitation(r *http.Request) (entityID, invitationID int64, err error) {
	if entityID, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	if invitationID, err = pathID(r, "invitationId"); err != nil {
		return 0, 0, err
	}
	return entityID, invitationID, nil
}

type blueskyRequest struct {
	Handles []string `json:"handles"`
	Nonce   string   `json:"nonce"`
}

// HandleBluesky invites a batch of Bluesky followers.
//
// HTTP: POST /api/invitations/bluesky/{type}/{id}
// REQUEST BODY: {"handles": ["alice.bsky.social", ...], "nonce"}
func (h *InvitationHandler) HandleBluesky(w http.ResponseWriter, r *http.Request) {
	entity, err := model.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, h.logger, r, apperror.ValidationFailed("entity_type", "Unknown invitation type."))
		return
	}
	entityID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var in blueskyRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	userID := h.guard(w, r, entity, in.Nonce, slog.Int64("entityID", entityID))
	if userID == 0 {
		return
	}

	results, err := h.invitations.SendBlueskyInvitations(r.Context(), entity, entityID, userID, in.Handles)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	invited := 0
	for _, res := range results {
		if res.Invited {
			invited++
		}
	}
	writeData(w, http.StatusOK, map[string]any{
		"results": results,
		"invited": invited,
		"nonce":   h.nonces.fresh(nonceAction(entity), userID),
	})
}

type acceptRequest struct {
	Token string `json:"token"`
}

// HandleAcceptJSON is the API form of the accept link.
//
// HTTP: POST /api/invitations/accept
// REQUEST BODY: {"token"}
func (h *InvitationHandler) HandleAcceptJSON(w http.ResponseWriter, r *http.Request) {
	var in acceptRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	res, err := h.accept(r.Context(), in.Token, viewerID(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeMessage(w, http.StatusOK, res.Message, res)
}

// HandleAccept follows an emailed or shared accept link.
//
// HTTP: GET|POST /invitation/accept?token=...
//
// Signed-out visitors are sent to sign in and come back here afterwards.
// Success redirects (303) to the community page or the RSVP page.
func (h *InvitationHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" && r.Method == http.MethodPost {
		token = strings.TrimSpace(r.PostFormValue("token"))
	}
	if token == "" {
		writeError(w, h.logger, r, apperror.ValidationFailed("token", "Invitation token is required."))
		return
	}

	userID := viewerID(r)
	if userID == 0 {
		back := "/invitation/accept?token=" + url.QueryEscape(token)
		http.Redirect(w, r, signInURL(back), http.StatusFound)
		return
	}

	res, err := h.accept(r.Context(), token, userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
}

// accept dispatches a token to the right flow: pe_ tokens are event share
// links; anything else is a community invitation, or failing that a
// guest's personal RSVP token forwarded as a link.
func (h *InvitationHandler) accept(ctx context.Context, token string, userID int64) (*model.AcceptResult, error) {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, model.EventShareTokenPrefix) {
		return h.invitations.AcceptEventShareInvitation(ctx, token, userID)
	}
	res, err := h.invitations.AcceptCommunityInvitation(ctx, token, userID)
	if !errors.Is(err, apperror.ErrNotFound) {
		return res, err
	}
	private, perr := h.invitations.AcceptPrivateEventShareInvitation(ctx, token, userID)
	if errors.Is(perr, apperror.ErrNotFound) {
		return nil, err
	}
	return private, perr
}

// signInURL builds the sign-in redirect that returns to back afterwards.
func signInURL(back string) string {
	return "/auth?redirect_to=" + url.QueryEscape(back)
}
