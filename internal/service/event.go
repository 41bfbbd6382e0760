package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
	"github.com/sakif/circles/internal/validate"
)

type RecurrenceInput struct {
	Type        string         `json:"type" validate:"omitempty,oneof=none daily weekly monthly"`
	Interval    int            `json:"interval" validate:"gte=0,lte=52"`
	Weekdays    []time.Weekday `json:"weekdays" validate:"dive,gte=0,lte=6"`
	MonthlyMode string         `json:"monthly_mode" validate:"omitempty,oneof=date weekday"`
}

type CreateEventInput struct {
	Title         string          `json:"title" validate:"required,max=200"`
	Description   string          `json:"description" validate:"max=10000"`
	StartsAt      time.Time       `json:"starts_at" validate:"required"`
	EndsAt        *time.Time      `json:"ends_at"`
	Location      string          `json:"location" validate:"max=255"`
	CommunityID   *int64          `json:"community_id"`
	Privacy       string          `json:"privacy" validate:"omitempty,oneof=public private"`
	AllowPlusOnes bool            `json:"allow_plus_ones"`
	Recurrence    RecurrenceInput `json:"recurrence"`
}

// EventService creates events and decides who may see them.
type EventService struct {
	store   repository.Store
	authz   Authorizer
	circles *CircleService
	logger  *slog.Logger
}

func NewEventService(store repository.Store, authz Authorizer, circles *CircleService, logger *slog.Logger) *EventService {
	return &EventService{store: store, authz: authz, circles: circles, logger: logger}
}

func (s *EventService) Create(ctx context.Context, authorID int64, in CreateEventInput) (*model.Event, error) {
	if err := signInRequired(authorID, "You must be signed in to create an event."); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.EndsAt != nil && in.EndsAt.Before(in.StartsAt) {
		return nil, apperror.ValidationFailed("ends_at", "The event cannot end before it starts.")
	}
	recurrence, err := model.ParseRecurrenceType(in.Recurrence.Type)
	if err != nil {
		return nil, apperror.ValidationFailed("recurrence", err.Error())
	}

	privacy, err := model.ParsePrivacy(in.Privacy)
	if err != nil {
		return nil, apperror.ValidationFailed("privacy", "Privacy must be public or private.")
	}
	if in.CommunityID != nil {
		community, err := s.store.GetCommunityByID(ctx, *in.CommunityID)
		if err != nil {
			return nil, err
		}
		ok, err := s.authz.CanCreateEventInCommunity(ctx, community.ID, authorID)
		if err := forbidUnless(ok, err, "Only members can create events in this community."); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.Privacy) == "" {
			privacy = community.Privacy
		}
	}

	slug, err := uniqueSlug(ctx, s.store, "events", in.Title)
	if err != nil {
		return nil, err
	}
	e := &model.Event{
		Slug:        slug,
		Title:       in.Title,
		Description: in.Description,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
		Recurrence: model.Recurrence{
			Type:        recurrence,
			Interval:    in.Recurrence.Interval,
			Weekdays:    in.Recurrence.Weekdays,
			MonthlyMode: model.MonthlyMode(in.Recurrence.MonthlyMode),
		},
		Location:      strings.TrimSpace(in.Location),
		CommunityID:   in.CommunityID,
		Privacy:       privacy,
		AllowPlusOnes: in.AllowPlusOnes,
		AuthorID:      authorID,
	}
	if recurrence == model.RecurrenceNone {
		e.Recurrence = model.Recurrence{}
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("service/event: create: %w", err)
	}

	s.logger.Info("event created",
		slog.Int64("eventID", e.ID),
		slog.String("slug", e.Slug),
		slog.Int64("authorID", authorID),
	)
	return e, nil
}

// Get resolves an id or slug. Events the viewer may not see are reported as
// missing.
func (s *EventService) Get(ctx context.Context, key string, viewerID int64) (*model.Event, error) {
	e, err := bySlugOrID(ctx, key, s.store.GetEventByID, s.store.GetEventBySlug)
	if err != nil {
		return nil, err
	}
	ok, err := s.canView(ctx, e, viewerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("event", key)
	}
	return e, nil
}

// canView: public events, the organizer, invited guests, community members
// and anyone whose circle reaches the organizer.
func (s *EventService) canView(ctx context.Context, e *model.Event, viewerID int64) (bool, error) {
	if e.Privacy == model.PrivacyPublic {
		return true, nil
	}
	if model.IsAnonymous(viewerID) {
		return false, nil
	}
	if e.AuthorID == viewerID {
		return true, nil
	}
	if e.CommunityID != nil {
		ok, err := s.authz.CanInviteToCommunity(ctx, *e.CommunityID, viewerID)
		if err != nil || ok {
			return ok, err
		}
	}

	viewer, err := s.store.GetUserByID(ctx, viewerID)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	guest, err := s.store.IsLiveGuest(ctx, e.ID, viewerID, viewer.Email)
	if err != nil || guest {
		return guest, err
	}

	cc, err := s.circles.BuildContext(ctx, viewerID)
	if err != nil {
		return false, err
	}
	return slices.Contains(ResolveUsersForCircle(cc, model.CircleAll), e.AuthorID), nil
}
