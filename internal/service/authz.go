package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

// Authorizer answers the permission questions the services ask before they
// mutate anything. Anonymous viewers (id <= 0) are never allowed.
type Authorizer interface {
	CanInviteToCommunity(ctx context.Context, communityID, viewerID int64) (bool, error)
	CanManageCommunity(ctx context.Context, communityID, viewerID int64) (bool, error)
	CanChangeRoles(ctx context.Context, communityID, viewerID int64) (bool, error)
	CanCreateEventInCommunity(ctx context.Context, communityID, viewerID int64) (bool, error)
	CanManageEvent(ctx context.Context, event *model.Event, viewerID int64) (bool, error)
}

// memberLookup is the slice of the store PolicyAuthorizer reads.
type memberLookup interface {
	GetMember(ctx context.Context, communityID, userID int64) (*model.CommunityMember, error)
}

// PolicyAuthorizer derives permissions from community membership rows.
type PolicyAuthorizer struct {
	members memberLookup
}

func NewPolicyAuthorizer(members memberLookup) *PolicyAuthorizer {
	return &PolicyAuthorizer{members: members}
}

// role returns the viewer's role in the community, or "" for non-members.
func (a *PolicyAuthorizer) role(ctx context.Context, communityID, viewerID int64) (model.MemberRole, error) {
	if model.IsAnonymous(viewerID) || communityID <= 0 {
		return "", nil
	}
	m, err := a.members.GetMember(ctx, communityID, viewerID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("service/authz: membership of %d in %d: %w", viewerID, communityID, err)
	}
	return m.Role, nil
}

// CanInviteToCommunity allows any member to invite.
func (a *PolicyAuthorizer) CanInviteToCommunity(ctx context.Context, communityID, viewerID int64) (bool, error) {
	r, err := a.role(ctx, communityID, viewerID)
	return r.Rank() > 0, err
}

// CanManageCommunity allows admins and moderators.
func (a *PolicyAuthorizer) CanManageCommunity(ctx context.Context, communityID, viewerID int64) (bool, error) {
	r, err := a.role(ctx, communityID, viewerID)
	return r.CanManage(), err
}

// CanChangeRoles allows admins only.
func (a *PolicyAuthorizer) CanChangeRoles(ctx context.Context, communityID, viewerID int64) (bool, error) {
	r, err := a.role(ctx, communityID, viewerID)
	return r == model.RoleAdmin, err
}

func (a *PolicyAuthorizer) CanCreateEventInCommunity(ctx context.Context, communityID, viewerID int64) (bool, error) {
	return a.CanInviteToCommunity(ctx, communityID, viewerID)
}

// CanManageEvent allows the organizer and the managers of the event's
// community.
func (a *PolicyAuthorizer) CanManageEvent(ctx context.Context, event *model.Event, viewerID int64) (bool, error) {
	if event == nil || model.IsAnonymous(viewerID) {
		return false, nil
	}
	if event.AuthorID == viewerID {
		return true, nil
	}
	if event.CommunityID == nil {
		return false, nil
	}
	return a.CanManageCommunity(ctx, *event.CommunityID, viewerID)
}

// CanViewConversation applies the feed visibility rule to a single
// conversation: public, written by someone in allowed, or posted in one of
// the viewer's communities. Authors always see their own threads.
func CanViewConversation(c *model.Conversation, viewerID int64, allowed, memberCommunities []int64) bool {
	if c == nil {
		return false
	}
	if c.Privacy == model.PrivacyPublic {
		return true
	}
	if model.IsAnonymous(viewerID) {
		return false
	}
	if c.AuthorID == viewerID || slices.Contains(allowed, c.AuthorID) {
		return true
	}
	return c.CommunityID != nil && slices.Contains(memberCommunities, *c.CommunityID)
}

var _ Authorizer = (*PolicyAuthorizer)(nil)
var _ memberLookup = (repository.CommunityRepository)(nil)
