package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/auth"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/service"
)

// ConversationHandler serves the circle feed and conversation threads.
type ConversationHandler struct {
	feed          *service.FeedService
	conversations *service.ConversationService
	nonces        *NonceHandler
	logger        *slog.Logger
}

func NewConversationHandler(
	feed *service.FeedService,
	conversations *service.ConversationService,
	nonces *NonceHandler,
	logger *slog.Logger,
) *ConversationHandler {
	return &ConversationHandler{feed: feed, conversations: conversations, nonces: nonces, logger: logger}
}

// HandleFeed lists the conversations visible through the viewer's circle.
//
// HTTP: GET /api/conversations?circle=inner&filter=&page=1&per_page=20&nonce=...
//
// The circle defaults to inner. Anonymous viewers get 401 and a bad nonce
// gets 403; the response carries a fresh nonce for the next page.
func (h *ConversationHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == 0 {
		writeError(w, h.logger, r, apperror.Unauthenticated("Authentication required."))
		return
	}
	if !h.nonces.verify(r, nonceFrom(r), auth.ActionAppNonce) {
		writeFailure(w, http.StatusForbidden, msgBadNonce)
		return
	}

	q := r.URL.Query()
	circle := model.ParseCircle(q.Get("circle"), model.CircleInner)
	page, err := h.feed.Feed(r.Context(), userID, circle, service.FeedOptions{
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
		Filter:  model.ParseFeedFilter(q.Get("filter")),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"conversations": page.Conversations,
		"pagination":    page.Pagination,
		"circle":        circle,
		"nonce":         h.nonces.fresh(auth.ActionAppNonce, userID),
	})
}

// HandleCreate starts a thread.
//
// HTTP: POST /api/conversations
func (h *ConversationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateConversationInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c, err := h.conversations.Create(r.Context(), viewerID(r), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

// HandleGet returns one thread with its first page of replies.
//
// HTTP: GET /api/conversations/{slug}
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "slug")
	userID := viewerID(r)
	c, err := h.conversations.GetBySlugOrID(r.Context(), key, userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	replies, err := h.conversations.ListReplies(r.Context(), key, userID, queryInt(r, "page"), queryInt(r, "per_page"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	data := map[string]any{"conversation": c, "replies": replies}
	if userID != 0 {
		data["nonce"] = h.nonces.fresh(auth.ActionConversationReply, userID)
	}
	writeData(w, http.StatusOK, data)
}

type replyRequest struct {
	service.ReplyInput
	Nonce string `json:"nonce"`
}

// HandleReply adds a reply.
//
// HTTP: POST /api/conversations/{slug}/replies
// REQUEST BODY: {"content", "image_url", "nonce"}
func (h *ConversationHandler) HandleReply(w http.ResponseWriter, r *http.Request) {
	var in replyRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !h.nonces.verify(r, in.Nonce, auth.ActionConversationReply) {
		writeFailure(w, http.StatusForbidden, msgBadNonce)
		return
	}
	reply, err := h.conversations.AddReply(r.Context(), chi.URLParam(r, "slug"), viewerID(r), in.ReplyInput)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, reply)
}

// HandleEditReply rewrites a reply's text.
//
// HTTP: PUT /api/replies/{replyId}
func (h *ConversationHandler) HandleEditReply(w http.ResponseWriter, r *http.Request) {
	replyID, err := pathID(r, "replyId")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var in replyRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !h.nonces.verify(r, in.Nonce, auth.ActionConversationReply, slog.Int64("replyID", replyID)) {
		writeFailure(w, http.StatusForbidden, msgBadNonce)
		return
	}
	reply, err := h.conversations.EditReply(r.Context(), replyID, viewerID(r), in.Content)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, reply)
}

// HandleDeleteReply removes a reply.
//
// HTTP: DELETE /api/replies/{replyId}?nonce=...
func (h *ConversationHandler) HandleDeleteReply(w http.ResponseWriter, r *http.Request) {
	replyID, err := pathID(r, "replyId")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !h.nonces.verify(r, nonceFrom(r), auth.ActionConversationReply, slog.Int64("replyID", replyID)) {
		writeFailure(w, http.StatusForbidden, msgBadNonce)
		return
	}
	if err := h.conversations.DeleteReply(r.Context(), replyID, viewerID(r)); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Reply deleted.", nil)
}
