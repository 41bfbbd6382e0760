package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

var rsvpMessages = map[model.GuestStatus]string{
	model.GuestConfirmed: "Thanks! Your RSVP is confirmed.",
	model.GuestDeclined:  "Thanks for letting us know. Sorry you can't make it.",
	model.GuestMaybe:     "Thanks! We've noted that you might attend.",
}

// RSVPService runs the guest side of an event invitation: reading the
// invitation behind a token and recording the answer. Any answer may
// replace any other; pending is only ever set by the inviter's side.
type RSVPService struct {
	store  repository.Store
	now    func() time.Time
	logger *slog.Logger
}

func NewRSVPService(store repository.Store, logger *slog.Logger) *RSVPService {
	return &RSVPService{store: store, now: time.Now, logger: logger}
}

// guestByToken loads a live guest; unknown and cancelled tokens read the
// same.
func guestByToken(ctx context.Context, guests repository.GuestRepository, token string) (*model.Guest, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.Unavailable(MsgInvitationUnavailable)
	}
	g, err := guests.GetGuestByToken(ctx, token)
	if isNotFound(err) {
		return nil, apperror.Unavailable(MsgInvitationUnavailable)
	}
	if err != nil {
		return nil, err
	}
	if g.IsCancelled() {
		return nil, apperror.Unavailable(MsgInvitationUnavailable)
	}
	return g, nil
}

func (s *RSVPService) GetEventInvitationByToken(ctx context.Context, token string) (*model.RSVPView, error) {
	g, err := guestByToken(ctx, s.store, token)
	if err != nil {
		return nil, err
	}
	event, err := s.store.GetEventByID(ctx, g.EventID)
	if err != nil {
		return nil, err
	}
	return &model.RSVPView{Guest: g, Event: event, IsBluesky: g.IsBluesky()}, nil
}

// RespondToEventInvitation records a yes/no/maybe answer with the guest's
// details and queues a note to the organizer.
func (s *RSVPService) RespondToEventInvitation(ctx context.Context, token, response string, fields model.RSVPFields) (*model.RSVPResult, error) {
	status, err := model.ParseRSVPResponse(response)
	if err != nil {
		return nil, apperror.ValidationFailed("rsvp_status", "Please choose yes, no, or maybe.")
	}

	var res *model.RSVPResult
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		g, err := guestByToken(ctx, tx, token)
		if err != nil {
			return err
		}
		event, err := tx.GetEventByID(ctx, g.EventID)
		if err != nil {
			return err
		}

		applyRSVP(g, event, status, fields, s.now())
		if err := tx.UpdateGuest(ctx, g); err != nil {
			return err
		}

		organizer, err := tx.GetUserByID(ctx, event.AuthorID)
		if err != nil {
			return err
		}
		if err := enqueue(ctx, tx, organizer.Email, rsvpNotice(g, event), model.EntityEvent, event.ID); err != nil {
			return err
		}

		res = &model.RSVPResult{Guest: g, Event: event, Message: rsvpMessages[status]}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("rsvp recorded",
		slog.Int64("eventID", res.Event.ID),
		slog.Int64("guestID", res.Guest.ID),
		slog.String("status", string(status)),
	)
	return res, nil
}

// applyRSVP copies the response onto g. A blank name keeps the stored one;
// plus-one details are dropped unless the event allows them.
func applyRSVP(g *model.Guest, e *model.Event, status model.GuestStatus, f model.RSVPFields, now time.Time) {
	if name := strings.TrimSpace(f.Name); name != "" {
		g.Name = name
	}
	g.Phone = strings.TrimSpace(f.Phone)
	g.DietaryRestrictions = strings.TrimSpace(f.DietaryRestrictions)
	g.Notes = strings.TrimSpace(f.Notes)
	if e.AllowPlusOnes {
		g.PlusOne = f.PlusOne
		g.PlusOneName = ""
		if f.PlusOne {
			g.PlusOneName = strings.TrimSpace(f.PlusOneName)
		}
	}
	g.Status = status
	g.RSVPDate = &now
}

// QuickResponse returns the answer a ?response= link should preselect, or
// "" when the guest already answered or the value is not yes/no/maybe.
func QuickResponse(g *model.Guest, response string) string {
	if g == nil || g.Status != model.GuestPending {
		return ""
	}
	status, err := model.ParseRSVPResponse(response)
	if err != nil {
		return ""
	}
	return status.Response()
}
