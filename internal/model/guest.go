package model

import (
	"fmt"
	"strings"
	"time"
)

// BlueskyEmailPrefix marks guests invited through a Bluesky handle rather
// than an email address. Such guests must be signed in to respond.
const BlueskyEmailPrefix = "bsky:"

// GuestStatus is the RSVP state of an event guest. Any state may move to any
// other; "pending" is only ever set by the system.
type GuestStatus string

const (
	GuestPending   GuestStatus = "pending"
	GuestConfirmed GuestStatus = "confirmed"
	GuestDeclined  GuestStatus = "declined"
	GuestMaybe     GuestStatus = "maybe"
)

// ParseRSVPResponse maps the public yes/no/maybe vocabulary to a status.
func ParseRSVPResponse(s string) (GuestStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return GuestConfirmed, nil
	case "no":
		return GuestDeclined, nil
	case "maybe":
		return GuestMaybe, nil
	}
	return "", fmt.Errorf("invalid RSVP response %q", s)
}

// Response is the inverse of ParseRSVPResponse; pending maps to "".
func (s GuestStatus) Response() string {
	switch s {
	case GuestConfirmed:
		return "yes"
	case GuestDeclined:
		return "no"
	case GuestMaybe:
		return "maybe"
	}
	return ""
}

// InvitationSource records how a guest or invitation was created.
type InvitationSource string

const (
	SourceDirect    InvitationSource = "direct"
	SourceShareLink InvitationSource = "share_link"
	SourceBluesky   InvitationSource = "bluesky"
)

// Guest is an invitation to one event. (event, email) is unique and the
// RSVP token is globally unique.
type Guest struct {
	ID                  int64            `json:"id"`
	EventID             int64            `json:"eventId"`
	Email               string           `json:"email"`
	Name                string           `json:"name"`
	Phone               string           `json:"phone,omitempty"`
	DietaryRestrictions string           `json:"dietaryRestrictions,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	PlusOne             bool             `json:"plusOne"`
	PlusOneName         string           `json:"plusOneName,omitempty"`
	Status              GuestStatus      `json:"status"`
	Source              InvitationSource `json:"invitationSource"`
	RSVPToken           string           `json:"-"`
	ConvertedUserID     *int64           `json:"convertedUserId,omitempty"`
	InvitedBy           int64            `json:"invitedBy"`
	Message             string           `json:"message,omitempty"`
	RSVPDate            *time.Time       `json:"rsvpDate,omitempty"`
	CancelledAt         *time.Time       `json:"cancelledAt,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

func (g *Guest) IsBluesky() bool {
	return strings.HasPrefix(g.Email, BlueskyEmailPrefix)
}

// IsCancelled reports whether the invitation was withdrawn.
func (g *Guest) IsCancelled() bool {
	return g.CancelledAt != nil
}

// HasActivity reports whether the guest ever did anything with the
// invitation. Guests without activity can be removed outright.
func (g *Guest) HasActivity() bool {
	return g.ConvertedUserID != nil || g.RSVPDate != nil || g.Status != GuestPending
}

// RSVPFields are the optional details a guest supplies with a response.
type RSVPFields struct {
	Name                string
	Phone               string
	DietaryRestrictions string
	Notes               string
	PlusOne             bool
	PlusOneName         string
}

// RSVPView is what the RSVP page renders for a token.
type RSVPView struct {
	Guest     *Guest `json:"guest"`
	Event     *Event `json:"event"`
	IsBluesky bool   `json:"isBluesky"`
}

// RSVPResult is the outcome of a recorded response.
type RSVPResult struct {
	Guest   *Guest `json:"guest"`
	Event   *Event `json:"event"`
	Message string `json:"message"`
}
