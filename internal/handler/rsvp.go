package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/auth"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/service"
)

// RSVPHandler serves the guest-facing RSVP page. The token in the URL is
// the guest's credential; no account is needed unless the guest was
// invited through Bluesky.
type RSVPHandler struct {
	rsvp   *service.RSVPService
	nonces *NonceHandler
	logger *slog.Logger
}

func NewRSVPHandler(rsvp *service.RSVPService, nonces *NonceHandler, logger *slog.Logger) *RSVPHandler {
	return &RSVPHandler{rsvp: rsvp, nonces: nonces, logger: logger}
}

// rsvpForm is the submitted answer, from either a form post or JSON.
type rsvpForm struct {
	Status              string `json:"rsvp_status"`
	Name                string `json:"guest_name"`
	Phone               string `json:"guest_phone"`
	DietaryRestrictions string `json:"dietary_restrictions"`
	Notes               string `json:"guest_notes"`
	PlusOne             flag   `json:"plus_one"`
	PlusOneName         string `json:"plus_one_name"`
	Nonce               string `json:"nonce"`
}

func (f rsvpForm) fields() model.RSVPFields {
	return model.RSVPFields{
		Name:                f.Name,
		Phone:               f.Phone,
		DietaryRestrictions: f.DietaryRestrictions,
		Notes:               f.Notes,
		PlusOne:             bool(f.PlusOne),
		PlusOneName:         f.PlusOneName,
	}
}

// rsvpPage is the view model of the RSVP page. Errors and the submitted
// values come back after a failed post so the form can be redrawn as the
// guest left it.
type rsvpPage struct {
	Guest      *model.Guest `json:"guest"`
	Event      *model.Event `json:"event"`
	IsBluesky  bool         `json:"is_bluesky"`
	Selected   string       `json:"selected_response,omitempty"`
	Nonce      string       `json:"nonce"`
	Message    string       `json:"message,omitempty"`
	Errors     []string     `json:"errors,omitempty"`
	FormValues *rsvpForm    `json:"form_values,omitempty"`
}

// HandleShow renders the invitation behind a token.
//
// HTTP: GET /rsvp/{token}?response=yes
func (h *RSVPHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	view, ok := h.load(w, r, token)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, rsvpPage{
		Guest:     view.Guest,
		Event:     view.Event,
		IsBluesky: view.IsBluesky,
		Selected:  service.QuickResponse(view.Guest, r.URL.Query().Get("response")),
		Nonce:     h.nonces.fresh(auth.ActionGuestRSVP, 0),
	})
}

// HandleRespond records the guest's answer.
//
// HTTP: POST /rsvp/{token}
// BODY (form or JSON): rsvp_status, guest_name, guest_phone,
// dietary_restrictions, guest_notes, plus_one, plus_one_name, nonce
func (h *RSVPHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	form, err := parseRSVPForm(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	view, ok := h.load(w, r, token)
	if !ok {
		return
	}
	if !h.nonces.verifyFor(r, form.Nonce, auth.ActionGuestRSVP, 0,
		slog.Int64("eventID", view.Event.ID), slog.Int64("guestID", view.Guest.ID)) {
		writeFailure(w, http.StatusForbidden, msgBadNonce)
		return
	}

	res, err := h.rsvp.RespondToEventInvitation(r.Context(), token, form.Status, form.fields())
	if errors.Is(err, apperror.ErrValidation) {
		var appErr *apperror.AppError
		errors.As(err, &appErr)
		writeJSON(w, http.StatusBadRequest, Envelope{
			Success: false,
			Message: appErr.Message,
			Field:   appErr.Field,
			Data: rsvpPage{
				Guest:      view.Guest,
				Event:      view.Event,
				IsBluesky:  view.IsBluesky,
				Nonce:      h.nonces.fresh(auth.ActionGuestRSVP, 0),
				Errors:     []string{appErr.Message},
				FormValues: &form,
			},
		})
		return
	}
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeMessage(w, http.StatusOK, res.Message, rsvpPage{
		Guest:     res.Guest,
		Event:     res.Event,
		IsBluesky: res.Guest.IsBluesky(),
		Nonce:     h.nonces.fresh(auth.ActionGuestRSVP, 0),
		Message:   res.Message,
	})
}

// load fetches the invitation and enforces the Bluesky sign-in rule. It
// writes the response itself when it returns false.
func (h *RSVPHandler) load(w http.ResponseWriter, r *http.Request, token string) (*model.RSVPView, bool) {
	view, err := h.rsvp.GetEventInvitationByToken(r.Context(), token)
	if err != nil {
		writeError(w, h.logger, r, err)
		return nil, false
	}
	if view.IsBluesky && viewerID(r) == 0 {
		http.Redirect(w, r, signInURL("/rsvp/"+token), http.StatusFound)
		return nil, false
	}
	return view, true
}

// parseRSVPForm accepts JSON or a classic form post. Form posts may use the
// short field names phone and notes as well.
func parseRSVPForm(r *http.Request) (rsvpForm, error) {
	var f rsvpForm
	if isJSON(r) {
		err := decodeJSON(r, &f)
		return f, err
	}
	if err := r.ParseForm(); err != nil {
		return f, apperror.ValidationFailed("body", "Could not read the submitted form.")
	}
	f = rsvpForm{
		Status:              r.PostFormValue("rsvp_status"),
		Name:                r.PostFormValue("guest_name"),
		Phone:               firstNonEmpty(r.PostFormValue("guest_phone"), r.PostFormValue("phone")),
		DietaryRestrictions: r.PostFormValue("dietary_restrictions"),
		Notes:               firstNonEmpty(r.PostFormValue("guest_notes"), r.PostFormValue("notes")),
		PlusOne:             flag(checkbox(r.PostFormValue("plus_one"))),
		PlusOneName:         r.PostFormValue("plus_one_name"),
		Nonce:               r.PostFormValue("nonce"),
	}
	return f, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// flag is a JSON boolean that also takes what checkbox takes, so 1 and
// "on" mean the same over JSON as in a form post.
type flag bool

func (b *flag) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
	case bool:
		*b = flag(v)
	case float64:
		*b = v != 0
	case string:
		*b = flag(checkbox(v))
	default:
		return fmt.Errorf("flag: unexpected %s", data)
	}
	return nil
}

func checkbox(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "on", "yes", "true":
		return true
	}
	return false
}
