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

type CreateConversationInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Content     string `json:"content" validate:"required,max=20000"`
	CommunityID *int64 `json:"community_id"`
	EventID     *int64 `json:"event_id"`
	Privacy     string `json:"privacy" validate:"omitempty,oneof=public private"`
}

type ReplyInput struct {
	Content  string `json:"content" validate:"required,max=5000"`
	ImageURL string `json:"image_url" validate:"omitempty,url,max=2048"`
}

// ConversationService owns threads and their replies. Reads go through the
// same visibility rule as the feed.
type ConversationService struct {
	store   repository.Store
	authz   Authorizer
	circles *CircleService
	events  *EventService
	logger  *slog.Logger
}

func NewConversationService(store repository.Store, authz Authorizer, circles *CircleService, events *EventService, logger *slog.Logger) *ConversationService {
	return &ConversationService{store: store, authz: authz, circles: circles, events: events, logger: logger}
}

// Create starts a thread. Without an explicit privacy it inherits the
// privacy of its community or event.
func (s *ConversationService) Create(ctx context.Context, authorID int64, in CreateConversationInput) (*model.Conversation, error) {
	if err := signInRequired(authorID, "You must be signed in to start a conversation."); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	privacy, err := model.ParsePrivacy(in.Privacy)
	if err != nil {
		return nil, apperror.ValidationFailed("privacy", "Privacy must be public or private.")
	}
	inherit := strings.TrimSpace(in.Privacy) == ""

	if in.CommunityID != nil {
		community, err := s.store.GetCommunityByID(ctx, *in.CommunityID)
		if err != nil {
			return nil, err
		}
		ok, err := s.authz.CanInviteToCommunity(ctx, community.ID, authorID)
		if err := forbidUnless(ok, err, "Only members can post in this community."); err != nil {
			return nil, err
		}
		if inherit {
			privacy = community.Privacy
		}
	}
	if in.EventID != nil {
		event, err := s.store.GetEventByID(ctx, *in.EventID)
		if err != nil {
			return nil, err
		}
		visible, err := s.events.canView(ctx, event, authorID)
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, apperror.NotFound("event", *in.EventID)
		}
		if inherit && in.CommunityID == nil {
			privacy = event.Privacy
		}
	}

	slug, err := uniqueSlug(ctx, s.store, "conversations", in.Title)
	if err != nil {
		return nil, err
	}
	c := &model.Conversation{
		Slug:        slug,
		Title:       in.Title,
		Content:     in.Content,
		AuthorID:    authorID,
		CommunityID: in.CommunityID,
		EventID:     in.EventID,
		Privacy:     privacy,
	}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("service/conversation: create: %w", err)
	}

	s.logger.Info("conversation created",
		slog.Int64("conversationID", c.ID),
		slog.String("slug", c.Slug),
		slog.String("privacy", string(c.Privacy)),
	)
	return c, nil
}

// GetBySlugOrID returns the conversation if the viewer may read it and
// NotFound otherwise.
func (s *ConversationService) GetBySlugOrID(ctx context.Context, key string, viewerID int64) (*model.Conversation, error) {
	c, err := bySlugOrID(ctx, key, s.store.GetConversationByID, s.store.GetConversationBySlug)
	if err != nil {
		return nil, err
	}
	if c.Privacy == model.PrivacyPublic {
		return c, nil
	}

	var allowed, member []int64
	if !model.IsAnonymous(viewerID) {
		cc, err := s.circles.BuildContext(ctx, viewerID)
		if err != nil {
			return nil, err
		}
		allowed = ResolveUsersForCircle(cc, model.CircleAll)
		if member, err = s.circles.MemberCommunities(ctx, viewerID); err != nil {
			return nil, err
		}
	}
	if !CanViewConversation(c, viewerID, allowed, member) {
		return nil, apperror.NotFound("conversation", key)
	}
	return c, nil
}

func (s *ConversationService) AddReply(ctx context.Context, key string, viewerID int64, in ReplyInput) (*model.Reply, error) {
	if err := signInRequired(viewerID, "You must be signed in to reply."); err != nil {
		return nil, err
	}
	in.Content = strings.TrimSpace(in.Content)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	c, err := s.GetBySlugOrID(ctx, key, viewerID)
	if err != nil {
		return nil, err
	}

	r := &model.Reply{ConversationID: c.ID, AuthorID: viewerID, Content: in.Content, ImageURL: in.ImageURL}
	if err := s.store.CreateReply(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("reply added",
		slog.Int64("conversationID", c.ID),
		slog.Int64("replyID", r.ID),
	)
	return r, nil
}

func (s *ConversationService) ListReplies(ctx context.Context, key string, viewerID int64, page, perPage int) ([]model.Reply, error) {
	c, err := s.GetBySlugOrID(ctx, key, viewerID)
	if err != nil {
		return nil, err
	}
	page, perPage = normalizePage(page, perPage)
	return s.store.ListReplies(ctx, c.ID, repository.ListOptions{Limit: perPage, Offset: (page - 1) * perPage})
}

func (s *ConversationService) EditReply(ctx context.Context, replyID, viewerID int64, content string) (*model.Reply, error) {
	r, err := s.ownReply(ctx, replyID, viewerID)
	if err != nil {
		return nil, err
	}
	in := ReplyInput{Content: strings.TrimSpace(content), ImageURL: r.ImageURL}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	r.Content = in.Content
	if err := s.store.UpdateReply(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ConversationService) DeleteReply(ctx context.Context, replyID, viewerID int64) error {
	r, err := s.ownReply(ctx, replyID, viewerID)
	if err != nil {
		return err
	}
	return s.store.DeleteReply(ctx, r.ID)
}

func (s *ConversationService) ownReply(ctx context.Context, replyID, viewerID int64) (*model.Reply, error) {
	if err := signInRequired(viewerID, "You must be signed in to edit replies."); err != nil {
		return nil, err
	}
	r, err := s.store.GetReply(ctx, replyID)
	if err != nil {
		return nil, err
	}
	if r.AuthorID != viewerID {
		return nil, apperror.Forbidden("You can only change your own replies.")
	}
	return r, nil
}
