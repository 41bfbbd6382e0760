package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

const (
	FeedPerPage      = 20
	DashboardPerPage = 5
	MaxPerPage       = 100
)

type FeedOptions struct {
	Page    int
	PerPage int
	Filter  model.FeedFilter
}

type EventListOptions struct {
	Page    int
	PerPage int
	Filter  model.EventListFilter
}

type feedStore interface {
	repository.ConversationRepository
	repository.EventRepository
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// FeedService lists conversations and events a viewer is allowed to see.
// Visibility is decided in SQL: public, or authored by someone in the
// allowed set, or posted in one of the viewer's communities.
type FeedService struct {
	store   feedStore
	circles *CircleService
	now     func() time.Time
	logger  *slog.Logger
}

func NewFeedService(store feedStore, circles *CircleService, logger *slog.Logger) *FeedService {
	return &FeedService{store: store, circles: circles, now: time.Now, logger: logger}
}

// normalizePage clamps page and perPage into range.
func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = FeedPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

func paginate(page, perPage, total int, hasMore bool) model.Pagination {
	p := model.Pagination{Page: page, PerPage: perPage, Total: total, HasMore: hasMore}
	if hasMore {
		next := page + 1
		p.NextPage = &next
	}
	return p
}

// viewerEmail is used by the "my events" filters to match guests that were
// invited before they had an account.
func (s *FeedService) viewerEmail(ctx context.Context, viewerID int64) (string, error) {
	if model.IsAnonymous(viewerID) {
		return "", nil
	}
	u, err := s.store.GetUserByID(ctx, viewerID)
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("service/feed: loading viewer %d: %w", viewerID, err)
	}
	return u.Email, nil
}

// ListByAuthorHop returns one page of conversations visible through the
// given author and community sets. Anonymous viewers get public threads only.
func (s *FeedService) ListByAuthorHop(ctx context.Context, viewerID int64, allowed, member []int64, opts FeedOptions) (*model.FeedPage, error) {
	page, perPage := normalizePage(opts.Page, opts.PerPage)
	if model.IsAnonymous(viewerID) {
		viewerID, allowed, member = 0, nil, nil
	}

	email, err := s.viewerEmail(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	q := repository.FeedQuery{
		ViewerID:           viewerID,
		ViewerEmail:        email,
		AllowedUserIDs:     allowed,
		MemberCommunityIDs: member,
		Filter:             opts.Filter,
		Limit:              perPage + 1,
		Offset:             (page - 1) * perPage,
	}
	items, err := s.store.ListFeed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service/feed: listing: %w", err)
	}
	total, err := s.store.CountFeed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service/feed: counting: %w", err)
	}

	hasMore := len(items) > perPage
	if hasMore {
		items = items[:perPage]
	}
	if items == nil {
		items = []model.FeedItem{}
	}
	return &model.FeedPage{Conversations: items, Pagination: paginate(page, perPage, total, hasMore)}, nil
}

// Feed builds the viewer's circle context and lists the conversations the
// requested circle can see.
func (s *FeedService) Feed(ctx context.Context, viewerID int64, circle model.Circle, opts FeedOptions) (*model.FeedPage, error) {
	allowed, member, err := s.scope(ctx, viewerID, circle)
	if err != nil {
		return nil, err
	}
	page, err := s.ListByAuthorHop(ctx, viewerID, allowed, member, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("feed listed",
		slog.Int64("viewerID", viewerID),
		slog.String("circle", string(circle)),
		slog.Int("allowedUsers", len(allowed)),
		slog.Int("items", len(page.Conversations)),
	)
	return page, nil
}

func (s *FeedService) scope(ctx context.Context, viewerID int64, circle model.Circle) (allowed, member []int64, err error) {
	if model.IsAnonymous(viewerID) {
		return nil, nil, nil
	}
	cc, err := s.circles.BuildContext(ctx, viewerID)
	if err != nil {
		return nil, nil, err
	}
	member, err = s.circles.MemberCommunities(ctx, viewerID)
	if err != nil {
		return nil, nil, err
	}
	return ResolveUsersForCircle(cc, circle), member, nil
}

// ListEvents lists events under the same visibility rule as conversations.
// The "my" filter returns the viewer's own and invited events split into
// upcoming and past.
func (s *FeedService) ListEvents(ctx context.Context, viewerID int64, allowed, member []int64, opts EventListOptions) (*model.EventPage, error) {
	page, perPage := normalizePage(opts.Page, opts.PerPage)
	if model.IsAnonymous(viewerID) {
		viewerID, allowed, member = 0, nil, nil
	}
	email, err := s.viewerEmail(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	q := repository.EventQuery{
		ViewerID:           viewerID,
		ViewerEmail:        email,
		AllowedUserIDs:     allowed,
		MemberCommunityIDs: member,
		Filter:             opts.Filter,
		Now:                now,
		Limit:              perPage + 1,
		Offset:             (page - 1) * perPage,
	}
	events, err := s.store.ListEvents(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service/feed: listing events: %w", err)
	}
	total, err := s.store.CountEvents(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service/feed: counting events: %w", err)
	}

	hasMore := len(events) > perPage
	if hasMore {
		events = events[:perPage]
	}
	if events == nil {
		events = []model.Event{}
	}
	out := &model.EventPage{Events: events, Pagination: paginate(page, perPage, total, hasMore)}
	if opts.Filter == model.EventsMine {
		out.Upcoming, out.Past = model.SplitByTime(events, now)
	}
	return out, nil
}

// Events is the circle-aware form of ListEvents; events always use the
// viewer's full circle.
func (s *FeedService) Events(ctx context.Context, viewerID int64, opts EventListOptions) (*model.EventPage, error) {
	allowed, member, err := s.scope(ctx, viewerID, model.CircleAll)
	if err != nil {
		return nil, err
	}
	return s.ListEvents(ctx, viewerID, allowed, member, opts)
}
