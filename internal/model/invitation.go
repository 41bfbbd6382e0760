package model

import (
	"fmt"
	"strings"
	"time"
)

// EventShareTokenPrefix marks tokens that belong to an event's public share
// link rather than to a single invitation.
const EventShareTokenPrefix = "pe_"

// EntityType names what an invitation points at.
type EntityType string

const (
	EntityCommunity EntityType = "community"
	EntityEvent     EntityType = "event"
)

// ParseEntityType accepts both singular and plural route forms.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "community", "communities":
		return EntityCommunity, nil
	case "event", "events":
		return EntityEvent, nil
	}
	return "", fmt.Errorf("invalid entity type %q", s)
}

// InvitationStatus is the state of a community invitation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationCancelled InvitationStatus = "cancelled"
)

// CommunityInvitation invites an email address (or Bluesky handle) to join a
// community. (community, email) is unique and the token is globally unique.
type CommunityInvitation struct {
	ID              int64            `json:"id"`
	CommunityID     int64            `json:"communityId"`
	Email           string           `json:"email"`
	Token           string           `json:"-"`
	Status          InvitationStatus `json:"status"`
	Source          InvitationSource `json:"invitationSource"`
	InvitedBy       int64            `json:"invitedBy"`
	Message         string           `json:"message,omitempty"`
	ConvertedUserID *int64           `json:"convertedUserId,omitempty"`
	ExpiresAt       time.Time        `json:"expiresAt"`
	AcceptedAt      *time.Time       `json:"acceptedAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (i *CommunityInvitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// HasActivity reports whether the invitation was ever acted upon.
func (i *CommunityInvitation) HasActivity() bool {
	return i.ConvertedUserID != nil || i.Status != InvitationPending
}

// SendResult is returned by every send operation. Created is false when an
// existing invitation for the same address was reused.
type SendResult struct {
	InvitationID int64      `json:"invitation_id"`
	Token        string     `json:"-"`
	Entity       EntityType `json:"entity_type"`
	Created      bool       `json:"created"`
}

// ResendResult reports whether a resend changed anything. Accepted and
// confirmed invitations are left alone.
type ResendResult struct {
	InvitationID int64 `json:"invitation_id"`
	Changed      bool  `json:"changed"`
}

// DeleteResult says whether the row was removed or kept as cancelled history.
type DeleteResult struct {
	InvitationID int64 `json:"invitation_id"`
	Removed      bool  `json:"removed"`
	Cancelled    bool  `json:"cancelled"`
}

// AcceptResult is the outcome of any accept flow.
type AcceptResult struct {
	Entity      EntityType `json:"entity_type"`
	EntityID    int64      `json:"entity_id"`
	EntitySlug  string     `json:"entity_slug"`
	RSVPToken   string     `json:"rsvp_token,omitempty"`
	RedirectURL string     `json:"redirect_url"`
	Message     string     `json:"message"`
}

// BlueskyInviteOutcome is the per-handle result of a batch send.
type BlueskyInviteOutcome struct {
	Handle       string `json:"handle"`
	InvitationID int64  `json:"invitation_id,omitempty"`
	Invited      bool   `json:"invited"`
	Reason       string `json:"reason,omitempty"`
}
