package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/bluesky"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
	"github.com/sakif/circles/internal/validate"
)

const DefaultInvitationTTL = 7 * 24 * time.Hour

// MsgInvitationUnavailable is shown for unknown, cancelled and expired tokens
// alike so a token's history cannot be probed.
const MsgInvitationUnavailable = "This invitation is no longer available."

type InvitationConfig struct {
	BaseURL       string
	InvitationTTL time.Duration
}

// ShareLink is an event's public accept link.
type ShareLink struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// InvitationService sends, lists, resends, withdraws and accepts community
// and event invitations.
//
// Every mutation runs in one transaction together with the outbox row that
// announces it. Delivery happens later in notify.Relay, so a mail outage
// never fails or rolls back an invitation.
type InvitationService struct {
	store  repository.Store
	authz  Authorizer
	config InvitationConfig
	tokens TokenGenerator
	now    func() time.Time
	logger *slog.Logger
}

func NewInvitationService(store repository.Store, authz Authorizer, cfg InvitationConfig, logger *slog.Logger) *InvitationService {
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = DefaultInvitationTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &InvitationService{
		store:  store,
		authz:  authz,
		config: cfg,
		tokens: RandomToken,
		now:    time.Now,
		logger: logger,
	}
}

func (s *InvitationService) acceptLink(token string) string {
	return s.config.BaseURL + "/invitation/accept?token=" + url.QueryEscape(token)
}

func (s *InvitationService) rsvpLink(token string) string {
	return s.config.BaseURL + "/rsvp/" + url.PathEscape(token)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// forbidUnless turns an authorizer answer into an error.
func forbidUnless(ok bool, err error, message string) error {
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Forbidden(message)
	}
	return nil
}

func signInRequired(viewerID int64, message string) error {
	if model.IsAnonymous(viewerID) {
		return apperror.Unauthenticated(message)
	}
	return nil
}

// =========================================================================
// Community invitations
// =========================================================================

// SendCommunityInvitation invites email to the community. Sending to an
// address with a pending or cancelled invitation reopens that invitation
// with a new token and expiry; Created tells the two cases apart.
func (s *InvitationService) SendCommunityInvitation(ctx context.Context, communityID, inviterID int64, email, message string) (*model.SendResult, error) {
	if err := signInRequired(inviterID, "You must be signed in to send invitations."); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if err := validate.Email("email", email); err != nil {
		return nil, err
	}
	community, err := s.store.GetCommunityByID(ctx, communityID)
	if err != nil {
		return nil, err
	}
	ok, err := s.authz.CanInviteToCommunity(ctx, communityID, inviterID)
	if err := forbidUnless(ok, err, "You do not have permission to invite people to this community."); err != nil {
		return nil, err
	}
	inviter, err := s.store.GetUserByID(ctx, inviterID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotMember(ctx, communityID, email); err != nil {
		return nil, err
	}

	var res *model.SendResult
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		inv, created, err := s.upsertCommunityInvitation(ctx, tx, community, inviterID, email, message, model.SourceDirect)
		if err != nil {
			return err
		}
		n := communityInviteNotice(inviter, community, message, s.acceptLink(inv.Token), model.ChannelEmail)
		if err := enqueue(ctx, tx, inv.Email, n, model.EntityCommunity, community.ID); err != nil {
			return err
		}
		res = &model.SendResult{InvitationID: inv.ID, Token: inv.Token, Entity: model.EntityCommunity, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("community invitation sent",
		slog.Int64("communityID", communityID),
		slog.Int64("invitationID", res.InvitationID),
		slog.Int64("inviterID", inviterID),
		slog.Bool("created", res.Created),
	)
	return res, nil
}

// ensureNotMember rejects invitations to people who already belong.
func (s *InvitationService) ensureNotMember(ctx context.Context, communityID int64, email string) error {
	u, err := s.store.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.store.GetMember(ctx, communityID, u.ID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return apperror.Conflict("That person is already a member of this community.")
}

// upsertCommunityInvitation inserts a pending invitation or reopens the
// existing one for the same address. Accepted invitations are a Conflict.
func (s *InvitationService) upsertCommunityInvitation(ctx context.Context, tx repository.Store, c *model.Community,
	inviterID int64, email, message string, source model.InvitationSource,
) (*model.CommunityInvitation, bool, error) {
	expires := s.now().Add(s.config.InvitationTTL)
	inv := &model.CommunityInvitation{
		CommunityID: c.ID,
		Email:       email,
		Status:      model.InvitationPending,
		Source:      source,
		InvitedBy:   inviterID,
		Message:     message,
		ExpiresAt:   expires,
	}

	var created bool
	err := withFreshToken(s.tokens, "", func(token string) error {
		inv.Token = token
		var err error
		created, err = tx.UpsertInvitation(ctx, inv)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("service/invitation: storing community invitation: %w", err)
	}
	if created {
		return inv, true, nil
	}

	if inv.Status == model.InvitationAccepted {
		member, err := acceptedByMember(ctx, tx, inv)
		if err != nil {
			return nil, false, err
		}
		if member {
			return nil, false, apperror.Conflict("That person has already accepted an invitation to this community.")
		}
	}
	inv.Status = model.InvitationPending
	inv.InvitedBy = inviterID
	if strings.TrimSpace(message) != "" {
		inv.Message = message
	}
	inv.ExpiresAt = expires
	inv.ConvertedUserID = nil
	inv.AcceptedAt = nil
	if err := s.rotateInvitationToken(ctx, tx, inv); err != nil {
		return nil, false, err
	}
	return inv, false, nil
}

// acceptedByMember reports whether the account that accepted inv still
// belongs to the community. Former members can be invited again.
func acceptedByMember(ctx context.Context, tx repository.Store, inv *model.CommunityInvitation) (bool, error) {
	if inv.ConvertedUserID == nil {
		return false, nil
	}
	_, err := tx.GetMember(ctx, inv.CommunityID, *inv.ConvertedUserID)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *InvitationService) rotateInvitationToken(ctx context.Context, tx repository.Store, inv *model.CommunityInvitation) error {
	err := withFreshToken(s.tokens, "", func(token string) error {
		inv.Token = token
		return tx.UpdateInvitation(ctx, inv)
	})
	if err != nil {
		return fmt.Errorf("service/invitation: rotating invitation %d: %w", inv.ID, err)
	}
	return nil
}

// ListCommunityInvitations returns the community's open invitations, newest
// first. Managers only.
func (s *InvitationService) ListCommunityInvitations(ctx context.Context, communityID, viewerID int64) ([]model.CommunityInvitation, error) {
	if err := signInRequired(viewerID, "You must be signed in to view invitations."); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCommunityByID(ctx, communityID); err != nil {
		return nil, err
	}
	ok, err := s.authz.CanManageCommunity(ctx, communityID, viewerID)
	if err := forbidUnless(ok, err, "You do not have permission to manage this community's invitations."); err != nil {
		return nil, err
	}
	return s.store.ListInvitations(ctx, communityID)
}

// ResendCommunityInvitation rotates the token, refreshes the expiry and
// queues a new email. Accepted invitations are left untouched.
func (s *InvitationService) ResendCommunityInvitation(ctx context.Context, communityID, invitationID, viewerID int64) (*model.ResendResult, error) {
	if err := signInRequired(viewerID, "You must be signed in to resend invitations."); err != nil {
		return nil, err
	}
	community, err := s.store.GetCommunityByID(ctx, communityID)
	if err != nil {
		return nil, err
	}
	ok, err := s.authz.CanManageCommunity(ctx, communityID, viewerID)
	if err := forbidUnless(ok, err, "You do not have permission to manage this community's invitations."); err != nil {
		return nil, err
	}
	sender, err := s.store.GetUserByID(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	res := &model.ResendResult{InvitationID: invitationID}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		inv, err := tx.GetInvitationByID(ctx, communityID, invitationID)
		if err != nil {
			return err
		}
		if inv.Status == model.InvitationAccepted {
			return nil
		}

		inv.Status = model.InvitationPending
		inv.ExpiresAt = s.now().Add(s.config.InvitationTTL)
		if err := s.rotateInvitationToken(ctx, tx, inv); err != nil {
			return err
		}
		n := communityInviteNotice(sender, community, inv.Message, s.acceptLink(inv.Token), channelFor(inv.Email))
		if err := enqueue(ctx, tx, inv.Email, n, model.EntityCommunity, community.ID); err != nil {
			return err
		}
		res.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("community invitation resent",
		slog.Int64("invitationID", invitationID),
		slog.Bool("changed", res.Changed),
	)
	return res, nil
}

// DeleteCommunityInvitation removes an untouched pending invitation outright
// and soft-cancels anything with history.
func (s *InvitationService) DeleteCommunityInvitation(ctx context.Context, communityID, invitationID, viewerID int64) (*model.DeleteResult, error) {
	if err := signInRequired(viewerID, "You must be signed in to manage invitations."); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCommunityByID(ctx, communityID); err != nil {
		return nil, err
	}
	ok, err := s.authz.CanManageCommunity(ctx, communityID, viewerID)
	if err := forbidUnless(ok, err, "You do not have permission to manage this community's invitations."); err != nil {
		return nil, err
	}

	res := &model.DeleteResult{InvitationID: invitationID}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		inv, err := tx.GetInvitationByID(ctx, communityID, invitationID)
		if err != nil {
			return err
		}
		if inv.Status == model.InvitationCancelled {
			return apperror.NotFound("invitation", invitationID)
		}
		if !inv.HasActivity() {
			res.Removed = true
			return tx.DeleteInvitation(ctx, inv.ID)
		}
		inv.Status = model.InvitationCancelled
		res.Cancelled = true
		return tx.UpdateInvitation(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("community invitation withdrawn",
		slog.Int64("invitationID", invitationID),
		slog.Bool("removed", res.Removed),
	)
	return res, nil
}

// AcceptCommunityInvitation makes the viewer a member. Accepting the same
// invitation again is a no-op success; membership upserts never lower an
// existing role.
func (s *InvitationService) AcceptCommunityInvitation(ctx context.Context, token string, viewerID int64) (*model.AcceptResult, error) {
	if err := signInRequired(viewerID, "Please sign in to accept this invitation."); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.ValidationFailed("token", "Invitation token is required.")
	}

	var res *model.AcceptResult
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		inv, err := tx.GetInvitationByToken(ctx, token)
		if isNotFound(err) {
			return apperror.Unavailable(MsgInvitationUnavailable)
		}
		if err != nil {
			return err
		}

		now := s.now()
		switch {
		case inv.Status == model.InvitationCancelled:
			return apperror.Unavailable(MsgInvitationUnavailable)
		case inv.Status == model.InvitationAccepted:
			if inv.ConvertedUserID == nil || *inv.ConvertedUserID != viewerID {
				return apperror.Conflict("This invitation has already been accepted by another account.")
			}
		case inv.Expired(now):
			return apperror.Unavailable(MsgInvitationUnavailable)
		default:
			inv.Status = model.InvitationAccepted
			inv.ConvertedUserID = &viewerID
			inv.AcceptedAt = &now
			if err := tx.UpdateInvitation(ctx, inv); err != nil {
				return err
			}
		}

		if _, err := tx.UpsertMember(ctx, inv.CommunityID, viewerID, model.RoleMember); err != nil {
			return err
		}
		community, err := tx.GetCommunityByID(ctx, inv.CommunityID)
		if err != nil {
			return err
		}
		res = &model.AcceptResult{
			Entity:      model.EntityCommunity,
			EntityID:    community.ID,
			EntitySlug:  community.Slug,
			RedirectURL: "/communities/" + community.Slug,
			Message:     fmt.Sprintf("Welcome to %s!", community.Name),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("community invitation accepted",
		slog.Int64("communityID", res.EntityID),
		slog.Int64("userID", viewerID),
	)
	return res, nil
}

// =========================================================================
// Event invitations
// =========================================================================

// SendEventInvitation adds email to the event's guest list. An existing
// guest who has not confirmed is treated as a resend.
func (s *InvitationService) SendEventInvitation(ctx context.Context, eventID, inviterID int64, email, message string) (*model.SendResult, error) {
	if err := signInRequired(inviterID, "You must be signed in to send invitations."); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if err := validate.Email("email", email); err != nil {
		return nil, err
	}
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ok, err := s.authz.CanManageEvent(ctx, event, inviterID)
	if err := forbidUnless(ok, err, "You do not have permission to invite guests to this event."); err != nil {
		return nil, err
	}
	inviter, err := s.store.GetUserByID(ctx, inviterID)
	if err != nil {
		return nil, err
	}

	var res *model.SendResult
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		g, created, err := s.upsertGuest(ctx, tx, event, inviterID, email, message, model.SourceDirect)
		if err != nil {
			return err
		}
		n := eventInviteNotice(inviter, event, message, s.rsvpLink(g.RSVPToken), model.ChannelEmail)
		if err := enqueue(ctx, tx, g.Email, n, model.EntityEvent, event.ID); err != nil {
			return err
		}
		res = &model.SendResult{InvitationID: g.ID, Token: g.RSVPToken, Entity: model.EntityEvent, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("event invitation sent",
		slog.Int64("eventID", eventID),
		slog.Int64("guestID", res.InvitationID),
		slog.Bool("created", res.Created),
	)
	return res, nil
}

// upsertGuest inserts a pending guest or reopens the existing row for the
// same address with a new token. Confirmed guests are a Conflict.
func (s *InvitationService) upsertGuest(ctx context.Context, tx repository.Store, e *model.Event,
	inviterID int64, email, message string, source model.InvitationSource,
) (*model.Guest, bool, error) {
	g := &model.Guest{
		EventID:   e.ID,
		Email:     email,
		Status:    model.GuestPending,
		Source:    source,
		InvitedBy: inviterID,
		Message:   message,
	}

	var created bool
	err := withFreshToken(s.tokens, "", func(token string) error {
		g.RSVPToken = token
		var err error
		created, err = tx.UpsertGuest(ctx, g)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("service/invitation: storing guest: %w", err)
	}
	if created {
		return g, true, nil
	}

	if !g.IsCancelled() && g.Status == model.GuestConfirmed {
		return nil, false, apperror.Conflict("That guest has already confirmed.")
	}
	reopenGuest(g)
	if strings.TrimSpace(message) != "" {
		g.Message = message
	}
	if err := s.rotateGuestToken(ctx, tx, g); err != nil {
		return nil, false, err
	}
	return g, false, nil
}

// reopenGuest puts a withdrawn or declined guest back to pending. A guest
// who answered maybe keeps that answer.
func reopenGuest(g *model.Guest) {
	if g.IsCancelled() {
		g.CancelledAt = nil
		g.Status = model.GuestPending
		return
	}
	if g.Status == model.GuestDeclined {
		g.Status = model.GuestPending
	}
}

func (s *InvitationService) rotateGuestToken(ctx context.Context, tx repository.Store, g *model.Guest) error {
	err := withFreshToken(s.tokens, "", func(token string) error {
		g.RSVPToken = token
		return tx.UpdateGuest(ctx, g)
	})
	if err != nil {
		return fmt.Errorf("service/invitation: rotating guest %d: %w", g.ID, err)
	}
	return nil
}

// ListEventInvitations returns the event's guests that are not cancelled,
// newest first.
func (s *InvitationService) ListEventInvitations(ctx context.Context, eventID, viewerID int64) ([]model.Guest, error) {
	if err := signInRequired(viewerID, "You must be signed in to view invitations."); err != nil {
		return nil, err
	}
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ok, err := s.authz.CanManageEvent(ctx, event, viewerID)
	if err := forbidUnless(ok, err, "You do not have permission to manage this event's guests."); err != nil {
		return nil, err
	}
	return s.store.ListGuests(ctx, eventID)
}

// ResendEventInvitation reopens the guest (unless confirmed), rotates the
// RSVP token and queues a new notification.
func (s *InvitationService) ResendEventInvitation(ctx context.Context, eventID, guestID, viewerID int64) (*model.ResendResult, error) {
	if err := signInRequired(viewerID, "You must be signed in to resend invitations."); err != nil {
		return nil, err
	}
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ok, err := s.authz.CanManageEvent(ctx, event, viewerID)
	if err := forbidUnless(ok, err, "You do not have permission to manage this event's guests."); err != nil {
		return nil, err
	}
	sender, err := s.store.GetUserByID(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	res := &model.ResendResult{InvitationID: guestID}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		g, err := tx.GetGuestByID(ctx, eventID, guestID)
		if err != nil {
			return err
		}
		if !g.IsCancelled() && g.Status == model.GuestConfirmed {
			return nil
		}

		reopenGuest(g)
		if err := s.rotateGuestToken(ctx, tx, g); err != nil {
			return err
		}
		n := eventInviteNotice(sender, event, g.Message, s.rsvpLink(g.RSVPToken), channelFor(g.Email))
		if err := enqueue(ctx, tx, g.Email, n, model.EntityEvent, event.ID); err != nil {
			return err
		}
		res.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("event invitation resent",
		slog.Int64("guestID", guestID),
		slog.Bool("changed", res.Changed),
	)
	return res, nil
}

// DeleteEventInvitation removes a guest who never did anything and
// soft-cancels everyone else.
func (s *InvitationService) DeleteEventInvitation(ctx context.Context, eventID, guestID, viewerID int64) (*model.DeleteResult, error) {
	if err := signInRequired(viewerID, "You must be signed in to manage invitations."); err != nil {
		return nil, err
	}
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ok, err := s.authz.CanManageEvent(ctx, event, viewerID)
	if err := forbidUnless(ok, err, "You do not have permission to manage this event's guests."); err != nil {
		return nil, err
	}

	res := &model.DeleteResult{InvitationID: guestID}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		g, err := tx.GetGuestByID(ctx, eventID, guestID)
		if err != nil {
			return err
		}
		if g.IsCancelled() {
			return apperror.NotFound("invitation", guestID)
		}
		if !g.HasActivity() {
			res.Removed = true
			return tx.DeleteGuest(ctx, g.ID)
		}
		now := s.now()
		g.CancelledAt = &now
		res.Cancelled = true
		return tx.UpdateGuest(ctx, g)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("event invitation withdrawn",
		slog.Int64("guestID", guestID),
		slog.Bool("removed", res.Removed),
	)
	return res, nil
}

// CreateEventShareLink issues a new public share token for the event,
// replacing any previous one.
func (s *InvitationService) CreateEventShareLink(ctx context.Context, eventID, viewerID int64) (*ShareLink, error) {
	if err := signInRequired(viewerID, "You must be signed in to share events."); err != nil {
		return nil, err
	}
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ok, err := s.authz.CanManageEvent(ctx, event, viewerID)
	if err := forbidUnless(ok, err, "You do not have permission to share this event."); err != nil {
		return nil, err
	}

	var token string
	err = withFreshToken(s.tokens, model.EventShareTokenPrefix, func(t string) error {
		token = t
		return s.store.SetEventShareToken(ctx, eventID, t)
	})
	if err != nil {
		return nil, fmt.Errorf("service/invitation: share link for event %d: %w", eventID, err)
	}
	return &ShareLink{Token: token, URL: s.acceptLink(token)}, nil
}

// AcceptEventShareInvitation turns a public share link into a guest row for
// the viewer. The guest stays pending until they RSVP.
func (s *InvitationService) AcceptEventShareInvitation(ctx context.Context, token string, viewerID int64) (*model.AcceptResult, error) {
	if err := signInRequired(viewerID, "Please sign in to accept this invitation."); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, model.EventShareTokenPrefix) {
		return nil, apperror.Unavailable(MsgInvitationUnavailable)
	}
	event, err := s.store.GetEventByShareToken(ctx, token)
	if isNotFound(err) {
		return nil, apperror.Unavailable(MsgInvitationUnavailable)
	}
	if err != nil {
		return nil, err
	}
	viewer, err := s.store.GetUserByID(ctx, viewerID)
	if isNotFound(err) {
		return nil, apperror.Unauthenticated("Please sign in to accept this invitation.")
	}
	if err != nil {
		return nil, err
	}

	var guest *model.Guest
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		g := &model.Guest{
			EventID:         event.ID,
			Email:           viewer.Email,
			Name:            viewer.DisplayName,
			Status:          model.GuestPending,
			Source:          model.SourceShareLink,
			ConvertedUserID: &viewerID,
			InvitedBy:       event.AuthorID,
		}
		var created bool
		err := withFreshToken(s.tokens, "", func(t string) error {
			g.RSVPToken = t
			var err error
			created, err = tx.UpsertGuest(ctx, g)
			return err
		})
		if err != nil {
			return fmt.Errorf("service/invitation: storing share guest: %w", err)
		}
		guest = g
		if created {
			return nil
		}

		changed := false
		if g.IsCancelled() {
			reopenGuest(g)
			changed = true
		}
		if g.ConvertedUserID == nil {
			g.ConvertedUserID = &viewerID
			changed = true
		}
		if !changed {
			return nil
		}
		return tx.UpdateGuest(ctx, g)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("event share link accepted",
		slog.Int64("eventID", event.ID),
		slog.Int64("guestID", guest.ID),
		slog.Int64("userID", viewerID),
	)
	return &model.AcceptResult{
		Entity:      model.EntityEvent,
		EntityID:    event.ID,
		EntitySlug:  event.Slug,
		RSVPToken:   guest.RSVPToken,
		RedirectURL: "/rsvp/" + guest.RSVPToken,
		Message:     "You're on the guest list for " + event.Title + ".",
	}, nil
}

// AcceptPrivateEventShareInvitation handles a guest's personal RSVP token
// that was opened through the accept link. The guest is linked to the
// viewer unless someone else already claimed it.
func (s *InvitationService) AcceptPrivateEventShareInvitation(ctx context.Context, token string, viewerID int64) (*model.AcceptResult, error) {
	if err := signInRequired(viewerID, "Please sign in to accept this invitation."); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.ValidationFailed("token", "Invitation token is required.")
	}

	var res *model.AcceptResult
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		g, err := tx.GetGuestByToken(ctx, token)
		if isNotFound(err) {
			return apperror.Unavailable(MsgInvitationUnavailable)
		}
		if err != nil {
			return err
		}
		if g.IsCancelled() {
			return apperror.Unavailable(MsgInvitationUnavailable)
		}

		switch {
		case g.ConvertedUserID == nil:
			g.ConvertedUserID = &viewerID
			if err := tx.UpdateGuest(ctx, g); err != nil {
				return err
			}
		case *g.ConvertedUserID != viewerID:
			return apperror.Conflict("This invitation belongs to another account.")
		}

		event, err := tx.GetEventByID(ctx, g.EventID)
		if err != nil {
			return err
		}
		res = &model.AcceptResult{
			Entity:      model.EntityEvent,
			EntityID:    event.ID,
			EntitySlug:  event.Slug,
			RSVPToken:   g.RSVPToken,
			RedirectURL: "/rsvp/" + g.RSVPToken,
			Message:     "Let the host know if you can make it to " + event.Title + ".",
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// =========================================================================
// Bluesky batch
// =========================================================================

const (
	reasonInvalidHandle    = "invalid handle"
	reasonAlreadyResponded = "already responded"
)

// SendBlueskyInvitations invites a batch of Bluesky handles to a community or
// event. Invalid handles and people who already answered are reported per
// handle instead of failing the batch.
func (s *InvitationService) SendBlueskyInvitations(ctx context.Context, entity model.EntityType, entityID, inviterID int64, handles []string) ([]model.BlueskyInviteOutcome, error) {
	if err := signInRequired(inviterID, "You must be signed in to send invitations."); err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, apperror.ValidationFailed("handles", "Provide at least one Bluesky handle.")
	}
	inviter, err := s.store.GetUserByID(ctx, inviterID)
	if err != nil {
		return nil, err
	}

	var (
		community *model.Community
		event     *model.Event
	)
	switch entity {
	case model.EntityCommunity:
		if community, err = s.store.GetCommunityByID(ctx, entityID); err != nil {
			return nil, err
		}
		ok, err := s.authz.CanInviteToCommunity(ctx, entityID, inviterID)
		if err := forbidUnless(ok, err, "You do not have permission to invite people to this community."); err != nil {
			return nil, err
		}
	case model.EntityEvent:
		if event, err = s.store.GetEventByID(ctx, entityID); err != nil {
			return nil, err
		}
		ok, err := s.authz.CanManageEvent(ctx, event, inviterID)
		if err := forbidUnless(ok, err, "You do not have permission to invite guests to this event."); err != nil {
			return nil, err
		}
	default:
		return nil, apperror.ValidationFailed("entity_type", "Invitations can only be sent for communities or events.")
	}

	outcomes := make([]model.BlueskyInviteOutcome, 0, len(handles))
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		outcomes = outcomes[:0]
		seen := make(map[string]bool, len(handles))
		for _, raw := range handles {
			handle := bluesky.NormalizeHandle(raw)
			if seen[handle] {
				continue
			}
			seen[handle] = true

			out := model.BlueskyInviteOutcome{Handle: handle}
			if validate.Handle("handles", handle) != nil {
				out.Reason = reasonInvalidHandle
				outcomes = append(outcomes, out)
				continue
			}

			email := model.BlueskyEmailPrefix + handle
			var (
				id        int64
				inviteErr error
			)
			if community != nil {
				id, inviteErr = s.inviteHandleToCommunity(ctx, tx, community, inviter, email)
			} else {
				id, inviteErr = s.inviteHandleToEvent(ctx, tx, event, inviter, email)
			}
			if errors.Is(inviteErr, apperror.ErrConflict) {
				out.Reason = reasonAlreadyResponded
				outcomes = append(outcomes, out)
				continue
			}
			if inviteErr != nil {
				return inviteErr
			}
			out.InvitationID = id
			out.Invited = true
			outcomes = append(outcomes, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invited := 0
	for _, o := range outcomes {
		if o.Invited {
			invited++
		}
	}
	s.logger.Info("bluesky invitations sent",
		slog.String("entityType", string(entity)),
		slog.Int64("entityID", entityID),
		slog.Int("requested", len(handles)),
		slog.Int("invited", invited),
	)
	return outcomes, nil
}

func (s *InvitationService) inviteHandleToCommunity(ctx context.Context, tx repository.Store, c *model.Community, inviter *model.User, email string) (int64, error) {
	inv, _, err := s.upsertCommunityInvitation(ctx, tx, c, inviter.ID, email, "", model.SourceBluesky)
	if err != nil {
		return 0, err
	}
	n := communityInviteNotice(inviter, c, "", s.acceptLink(inv.Token), model.ChannelBluesky)
	return inv.ID, enqueue(ctx, tx, email, n, model.EntityCommunity, c.ID)
}

func (s *InvitationService) inviteHandleToEvent(ctx context.Context, tx repository.Store, e *model.Event, inviter *model.User, email string) (int64, error) {
	existing, err := tx.GetGuestByEmail(ctx, e.ID, email)
	switch {
	case err == nil && !existing.IsCancelled() && existing.Status != model.GuestPending:
		return 0, apperror.Conflict("That guest has already responded.")
	case err != nil && !isNotFound(err):
		return 0, err
	}

	g, _, err := s.upsertGuest(ctx, tx, e, inviter.ID, email, "", model.SourceBluesky)
	if err != nil {
		return 0, err
	}
	n := eventInviteNotice(inviter, e, "", s.rsvpLink(g.RSVPToken), model.ChannelBluesky)
	return g.ID, enqueue(ctx, tx, email, n, model.EntityEvent, e.ID)
}
