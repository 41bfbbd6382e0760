// Package repository declares the storage interfaces the service layer
// depends on. The only implementation lives in repository/sqlite; services
// never import it.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sakif/circles/internal/model"
)

// ErrDuplicateToken is returned when a freshly generated token collides
// with a stored one. Callers regenerate and retry.
var ErrDuplicateToken = errors.New("duplicate token")

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// CircleRepository reads and writes the social graph.
type CircleRepository interface {
	UpsertEdge(ctx context.Context, edge *model.CircleEdge) error
	DeleteEdge(ctx context.Context, viewerID, userID int64) error
	// EdgesFrom returns every edge whose viewer is in viewerIDs, restricted
	// to active target users.
	EdgesFrom(ctx context.Context, viewerIDs []int64) ([]model.CircleEdge, error)
	// CommunitiesOfMembers returns distinct community ids in which any of
	// userIDs holds a membership.
	CommunitiesOfMembers(ctx context.Context, userIDs []int64) ([]int64, error)
	// CommunityCreators returns the distinct creators of communityIDs.
	CommunityCreators(ctx context.Context, communityIDs []int64) ([]int64, error)
}

type CommunityRepository interface {
	CreateCommunity(ctx context.Context, c *model.Community) error
	GetCommunityByID(ctx context.Context, id int64) (*model.Community, error)
	GetCommunityBySlug(ctx context.Context, slug string) (*model.Community, error)
	SlugExists(ctx context.Context, table, slug string) (bool, error)

	// UpsertMember inserts a membership or raises the role of an existing
	// one. It never lowers a role.
	UpsertMember(ctx context.Context, communityID, userID int64, role model.MemberRole) (*model.CommunityMember, error)
	GetMember(ctx context.Context, communityID, userID int64) (*model.CommunityMember, error)
	GetMemberByID(ctx context.Context, communityID, memberID int64) (*model.CommunityMember, error)
	ListMembers(ctx context.Context, communityID int64) ([]model.CommunityMember, error)
	SetMemberRole(ctx context.Context, memberID int64, role model.MemberRole) error
	DeleteMember(ctx context.Context, memberID int64) error
}

// FeedQuery is the storage-level form of a feed request. Visibility is
// public OR author in AllowedUserIDs OR community in MemberCommunityIDs.
type FeedQuery struct {
	ViewerID           int64
	ViewerEmail        string
	AllowedUserIDs     []int64
	MemberCommunityIDs []int64
	Filter             model.FeedFilter
	Limit              int
	Offset             int
}

type EventQuery struct {
	ViewerID           int64
	ViewerEmail        string
	AllowedUserIDs     []int64
	MemberCommunityIDs []int64
	Filter             model.EventListFilter
	Now                time.Time
	Limit              int
	Offset             int
}

type ConversationRepository interface {
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversationByID(ctx context.Context, id int64) (*model.Conversation, error)
	GetConversationBySlug(ctx context.Context, slug string) (*model.Conversation, error)
	ListFeed(ctx context.Context, q FeedQuery) ([]model.FeedItem, error)
	CountFeed(ctx context.Context, q FeedQuery) (int, error)

	CreateReply(ctx context.Context, r *model.Reply) error
	GetReply(ctx context.Context, id int64) (*model.Reply, error)
	UpdateReply(ctx context.Context, r *model.Reply) error
	DeleteReply(ctx context.Context, id int64) error
	ListReplies(ctx context.Context, conversationID int64, opts ListOptions) ([]model.Reply, error)
}

type EventRepository interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	GetEventBySlug(ctx context.Context, slug string) (*model.Event, error)
	GetEventByShareToken(ctx context.Context, token string) (*model.Event, error)
	SetEventShareToken(ctx context.Context, eventID int64, token string) error
	ListEvents(ctx context.Context, q EventQuery) ([]model.Event, error)
	CountEvents(ctx context.Context, q EventQuery) (int, error)
}

// GuestRepository stores event invitations.
type GuestRepository interface {
	// UpsertGuest inserts a guest or, when (event, email) already exists,
	// returns the stored row untouched with created=false.
	UpsertGuest(ctx context.Context, g *model.Guest) (created bool, err error)
	GetGuestByID(ctx context.Context, eventID, guestID int64) (*model.Guest, error)
	GetGuestByToken(ctx context.Context, token string) (*model.Guest, error)
	GetGuestByEmail(ctx context.Context, eventID int64, email string) (*model.Guest, error)
	// IsLiveGuest reports whether a non-cancelled guest row of the event
	// belongs to the user, either linked by id or matched by email.
	IsLiveGuest(ctx context.Context, eventID, userID int64, email string) (bool, error)
	// ListGuests returns non-cancelled guests, newest first.
	ListGuests(ctx context.Context, eventID int64) ([]model.Guest, error)
	// UpdateGuest writes every mutable column of g.
	UpdateGuest(ctx context.Context, g *model.Guest) error
	DeleteGuest(ctx context.Context, guestID int64) error
	// LinkGuestsByEmail sets converted_user_id on unlinked guests whose
	// email matches and returns how many rows changed.
	LinkGuestsByEmail(ctx context.Context, email string, userID int64) (int, error)
}

// InvitationRepository stores community invitations.
type InvitationRepository interface {
	UpsertInvitation(ctx context.Context, inv *model.CommunityInvitation) (created bool, err error)
	GetInvitationByID(ctx context.Context, communityID, invitationID int64) (*model.CommunityInvitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*model.CommunityInvitation, error)
	ListInvitations(ctx context.Context, communityID int64) ([]model.CommunityInvitation, error)
	UpdateInvitation(ctx context.Context, inv *model.CommunityInvitation) error
	DeleteInvitation(ctx context.Context, invitationID int64) error
}

type OutboxRepository interface {
	EnqueueOutbox(ctx context.Context, m *model.OutboxMessage) error
	ListPendingOutbox(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, id int64) error
	// MarkOutboxAttempt records a failed delivery; the row flips to failed
	// once attempts reaches maxAttempts.
	MarkOutboxAttempt(ctx context.Context, id int64, lastErr string, maxAttempts int) error
}

// Store is the full storage surface. InTx runs fn inside one transaction
// and hands it a Store bound to that transaction; calling InTx on a bound
// Store joins the outer transaction.
type Store interface {
	UserRepository
	CircleRepository
	CommunityRepository
	ConversationRepository
	EventRepository
	GuestRepository
	InvitationRepository
	OutboxRepository

	InTx(ctx context.Context, fn func(Store) error) error
}
