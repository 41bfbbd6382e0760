package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
	"github.com/sakif/circles/internal/validate"
)

type CreateCommunityInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Privacy string `json:"privacy" validate:"omitempty,oneof=public private"`
}

// CommunityService manages communities and their member lists. The creator
// of a community becomes its first admin.
type CommunityService struct {
	store  repository.Store
	authz  Authorizer
	logger *slog.Logger
}

func NewCommunityService(store repository.Store, authz Authorizer, logger *slog.Logger) *CommunityService {
	return &CommunityService{store: store, authz: authz, logger: logger}
}

func (s *CommunityService) Create(ctx context.Context, creatorID int64, in CreateCommunityInput) (*model.Community, error) {
	if err := signInRequired(creatorID, "You must be signed in to create a community."); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	privacy, err := model.ParsePrivacy(in.Privacy)
	if err != nil {
		return nil, apperror.ValidationFailed("privacy", "Privacy must be public or private.")
	}
	slug, err := uniqueSlug(ctx, s.store, "communities", in.Name)
	if err != nil {
		return nil, err
	}

	c := &model.Community{Name: in.Name, Slug: slug, Privacy: privacy, CreatorID: creatorID}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateCommunity(ctx, c); err != nil {
			return err
		}
		_, err := tx.UpsertMember(ctx, c.ID, creatorID, model.RoleAdmin)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/community: create: %w", err)
	}

	s.logger.Info("community created",
		slog.Int64("communityID", c.ID),
		slog.String("slug", c.Slug),
		slog.Int64("creatorID", creatorID),
	)
	return c, nil
}

// Get resolves an id or slug. Private communities are hidden from
// non-members as if they did not exist.
func (s *CommunityService) Get(ctx context.Context, key string, viewerID int64) (*model.Community, error) {
	c, err := bySlugOrID(ctx, key, s.store.GetCommunityByID, s.store.GetCommunityBySlug)
	if err != nil {
		return nil, err
	}
	if c.Privacy == model.PrivacyPublic {
		return c, nil
	}
	ok, err := s.authz.CanInviteToCommunity(ctx, c.ID, viewerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("community", key)
	}
	return c, nil
}

func (s *CommunityService) ListMembers(ctx context.Context, communityID, viewerID int64) ([]model.CommunityMember, error) {
	if err := signInRequired(viewerID, "You must be signed in to view members."); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCommunityByID(ctx, communityID); err != nil {
		return nil, err
	}
	ok, err := s.authz.CanManageCommunity(ctx, communityID, viewerID)
	if err := forbidUnless(ok, err, "You do not have permission to manage this community's members."); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, communityID)
}

// UpdateMemberRole sets a member's role. Admins only, and never on
// themselves.
func (s *CommunityService) UpdateMemberRole(ctx context.Context, communityID, memberID, viewerID int64, role string) (*model.CommunityMember, error) {
	m, err := s.adminTarget(ctx, communityID, memberID, viewerID, "You cannot change your own role.")
	if err != nil {
		return nil, err
	}
	r, err := model.ParseMemberRole(role)
	if err != nil {
		return nil, apperror.ValidationFailed("role", "Role must be member, moderator, or admin.")
	}
	if err := s.store.SetMemberRole(ctx, m.ID, r); err != nil {
		return nil, err
	}
	m.Role = r

	s.logger.Info("member role changed",
		slog.Int64("communityID", communityID),
		slog.Int64("memberID", memberID),
		slog.String("role", string(r)),
	)
	return m, nil
}

func (s *CommunityService) RemoveMember(ctx context.Context, communityID, memberID, viewerID int64) error {
	m, err := s.adminTarget(ctx, communityID, memberID, viewerID, "You cannot remove yourself.")
	if err != nil {
		return err
	}
	if err := s.store.DeleteMember(ctx, m.ID); err != nil {
		return err
	}
	s.logger.Info("member removed",
		slog.Int64("communityID", communityID),
		slog.Int64("userID", m.UserID),
	)
	return nil
}

// adminTarget checks the viewer is an admin acting on someone else and
// returns the target membership.
func (s *CommunityService) adminTarget(ctx context.Context, communityID, memberID, viewerID int64, selfMessage string) (*model.CommunityMember, error) {
	if err := signInRequired(viewerID, "You must be signed in to manage members."); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCommunityByID(ctx, communityID); err != nil {
		return nil, err
	}
	ok, err := s.authz.CanChangeRoles(ctx, communityID, viewerID)
	if err := forbidUnless(ok, err, "Only community admins can manage members."); err != nil {
		return nil, err
	}
	m, err := s.store.GetMemberByID(ctx, communityID, memberID)
	if err != nil {
		return nil, err
	}
	if m.UserID == viewerID {
		return nil, apperror.Forbidden(selfMessage)
	}
	return m, nil
}
