package model

import (
	"fmt"
	"strings"
	"time"
)

// Privacy applies to communities, conversations and events alike.
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

// ParsePrivacy accepts "public" or "private"; empty input defaults to public.
func ParsePrivacy(s string) (Privacy, error) {
	switch Privacy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PrivacyPublic:
		return PrivacyPublic, nil
	case PrivacyPrivate:
		return PrivacyPrivate, nil
	}
	return "", fmt.Errorf("invalid privacy %q", s)
}

type Community struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Privacy   Privacy   `json:"privacy"`
	CreatorID int64     `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MemberRole is ordered: member < moderator < admin.
type MemberRole string

const (
	RoleMember    MemberRole = "member"
	RoleModerator MemberRole = "moderator"
	RoleAdmin     MemberRole = "admin"
)

// Rank returns the role's position in the ordering; unknown roles rank 0.
func (r MemberRole) Rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// CanManage reports whether the role may manage invitations and members.
func (r MemberRole) CanManage() bool {
	return r == RoleAdmin || r == RoleModerator
}

func ParseMemberRole(s string) (MemberRole, error) {
	r := MemberRole(strings.ToLower(strings.TrimSpace(s)))
	if r.Rank() == 0 {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

// CommunityMember is a single membership row. (community, user) is unique.
type CommunityMember struct {
	ID          int64      `json:"id"`
	CommunityID int64      `json:"communityId"`
	UserID      int64      `json:"userId"`
	Role        MemberRole `json:"role"`
	JoinedAt    time.Time  `json:"joinedAt"`

	// Populated on listing.
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}
