package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

type circleStore interface {
	repository.CircleRepository
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// CircleService resolves a viewer's social graph into the tiers the feed
// filters by.
//
// A tier is built from the one before it:
//
//	inner:    direct inner edges + creators of the viewer's communities
//	trusted:  direct trusted edges + inner edges of inner creators
//	extended: direct extended edges + inner/trusted edges of trusted creators
//
// A user or community is listed only in the closest tier it reaches.
type CircleService struct {
	store  circleStore
	logger *slog.Logger
}

func NewCircleService(store circleStore, logger *slog.Logger) *CircleService {
	return &CircleService{store: store, logger: logger}
}

func emptyCircleContext(viewerID int64) model.CircleContext {
	cc := model.CircleContext{ViewerID: viewerID, Tiers: make(map[model.CircleTier]model.TierScope, len(model.Tiers))}
	for _, t := range model.Tiers {
		cc.Tiers[t] = model.TierScope{Communities: []int64{}, Creators: []int64{}}
	}
	return cc
}

// idSet accumulates ids that have not been claimed by a closer tier.
type idSet map[int64]struct{}

// claim returns the ids in candidates that are not yet in s, sorted, and
// adds them to s.
func (s idSet) claim(candidates ...[]int64) []int64 {
	out := []int64{}
	for _, ids := range candidates {
		for _, id := range ids {
			if _, seen := s[id]; seen {
				continue
			}
			s[id] = struct{}{}
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func edgeTargets(edges []model.CircleEdge, tiers ...model.CircleTier) []int64 {
	var ids []int64
	for _, e := range edges {
		if slices.Contains(tiers, e.Tier) {
			ids = append(ids, e.UserID)
		}
	}
	return ids
}

// BuildContext computes the viewer's tiers from the current graph. The
// result is never cached; each request builds its own.
func (s *CircleService) BuildContext(ctx context.Context, viewerID int64) (model.CircleContext, error) {
	cc := emptyCircleContext(viewerID)
	if model.IsAnonymous(viewerID) {
		cc.ViewerID = 0
		return cc, nil
	}

	creators := idSet{viewerID: {}}
	communities := idSet{}

	memberOf, err := s.store.CommunitiesOfMembers(ctx, []int64{viewerID})
	if err != nil {
		return cc, fmt.Errorf("service/circle: viewer communities: %w", err)
	}
	communityCreators, err := s.store.CommunityCreators(ctx, memberOf)
	if err != nil {
		return cc, fmt.Errorf("service/circle: community creators: %w", err)
	}
	direct, err := s.store.EdgesFrom(ctx, []int64{viewerID})
	if err != nil {
		return cc, fmt.Errorf("service/circle: direct edges: %w", err)
	}

	inner := model.TierScope{
		Communities: communities.claim(memberOf),
		Creators:    creators.claim(edgeTargets(direct, model.TierInner), communityCreators),
	}
	cc.Tiers[model.TierInner] = inner

	innerEdges, err := s.store.EdgesFrom(ctx, inner.Creators)
	if err != nil {
		return cc, fmt.Errorf("service/circle: inner edges: %w", err)
	}
	innerCommunities, err := s.store.CommunitiesOfMembers(ctx, inner.Creators)
	if err != nil {
		return cc, fmt.Errorf("service/circle: inner communities: %w", err)
	}
	trusted := model.TierScope{
		Communities: communities.claim(innerCommunities),
		Creators:    creators.claim(edgeTargets(direct, model.TierTrusted), edgeTargets(innerEdges, model.TierInner)),
	}
	cc.Tiers[model.TierTrusted] = trusted

	trustedEdges, err := s.store.EdgesFrom(ctx, trusted.Creators)
	if err != nil {
		return cc, fmt.Errorf("service/circle: trusted edges: %w", err)
	}
	trustedCommunities, err := s.store.CommunitiesOfMembers(ctx, trusted.Creators)
	if err != nil {
		return cc, fmt.Errorf("service/circle: trusted communities: %w", err)
	}
	cc.Tiers[model.TierExtended] = model.TierScope{
		Communities: communities.claim(trustedCommunities),
		Creators: creators.claim(
			edgeTargets(direct, model.TierExtended),
			edgeTargets(trustedEdges, model.TierInner, model.TierTrusted),
		),
	}

	return cc, nil
}

// ResolveUsersForCircle returns the authors a circle may see: the viewer plus
// every tier up to and including the requested one. "all" is extended.
func ResolveUsersForCircle(cc model.CircleContext, circle model.Circle) []int64 {
	if model.IsAnonymous(cc.ViewerID) {
		return []int64{}
	}

	var tiers []model.CircleTier
	switch circle {
	case model.CircleInner:
		tiers = model.Tiers[:1]
	case model.CircleTrusted:
		tiers = model.Tiers[:2]
	default:
		tiers = model.Tiers
	}

	ids := idSet{}
	lists := [][]int64{{cc.ViewerID}}
	for _, t := range tiers {
		lists = append(lists, cc.Scope(t).Creators)
	}
	return ids.claim(lists...)
}

// ResolveUsersForCircle is the method form used by handlers that hold a
// *CircleService.
func (s *CircleService) ResolveUsersForCircle(cc model.CircleContext, circle model.Circle) []int64 {
	return ResolveUsersForCircle(cc, circle)
}

// MemberCommunities lists the communities the viewer belongs to, any role.
func (s *CircleService) MemberCommunities(ctx context.Context, viewerID int64) ([]int64, error) {
	if model.IsAnonymous(viewerID) {
		return []int64{}, nil
	}
	ids, err := s.store.CommunitiesOfMembers(ctx, []int64{viewerID})
	if err != nil {
		return nil, fmt.Errorf("service/circle: member communities of %d: %w", viewerID, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// SetEdge places userID in the viewer's circle at tier, replacing any
// previous tier.
func (s *CircleService) SetEdge(ctx context.Context, viewerID, userID int64, tier string) (*model.CircleEdge, error) {
	if model.IsAnonymous(viewerID) {
		return nil, apperror.Unauthenticated("You must be signed in to manage your circles.")
	}
	t, err := model.ParseCircleTier(tier)
	if err != nil {
		return nil, apperror.ValidationFailed("tier", "Tier must be inner, trusted, or extended.")
	}
	if userID == viewerID {
		return nil, apperror.ValidationFailed("user_id", "You cannot add yourself to a circle.")
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	edge := &model.CircleEdge{ViewerID: viewerID, UserID: userID, Tier: t}
	if err := s.store.UpsertEdge(ctx, edge); err != nil {
		return nil, fmt.Errorf("service/circle: set edge: %w", err)
	}
	s.logger.Info("circle edge set",
		slog.Int64("viewerID", viewerID),
		slog.Int64("userID", userID),
		slog.String("tier", string(t)),
	)
	return edge, nil
}

func (s *CircleService) RemoveEdge(ctx context.Context, viewerID, userID int64) error {
	if model.IsAnonymous(viewerID) {
		return apperror.Unauthenticated("You must be signed in to manage your circles.")
	}
	if userID == viewerID {
		return apperror.ValidationFailed("user_id", "You cannot remove yourself from a circle.")
	}
	if err := s.store.DeleteEdge(ctx, viewerID, userID); err != nil {
		return fmt.Errorf("service/circle: remove edge: %w", err)
	}
	return nil
}

// isNotFound is shorthand used across the package.
func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
