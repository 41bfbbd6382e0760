package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/service"
)

// EventHandler lists, creates and shows events.
type EventHandler struct {
	events      *service.EventService
	feed        *service.FeedService
	invitations *service.InvitationService
	logger      *slog.Logger
}

func NewEventHandler(events *service.EventService, feed *service.FeedService, invitations *service.InvitationService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, feed: feed, invitations: invitations, logger: logger}
}

// HandleList: GET /api/events?filter=my|upcoming|past&page=&per_page=
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.feed.Events(r.Context(), viewerID(r), service.EventListOptions{
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
		Filter:  model.ParseEventListFilter(r.URL.Query().Get("filter")),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

// HandleCreate: POST /api/events
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateEventInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	e, err := h.events.Create(r.Context(), viewerID(r), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, e)
}

// HandleGet: GET /api/events/{id}, where id may also be the event's slug.
func (h *EventHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.events.Get(r.Context(), chi.URLParam(r, "id"), viewerID(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, e)
}

// HandleShareLink issues a new public share link for an event, replacing
// any previous one.
//
// HTTP: POST /api/events/{id}/share-link
func (h *EventHandler) HandleShareLink(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	link, err := h.invitations.CreateEventShareLink(r.Context(), eventID, viewerID(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, link)
}
