package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
)

// fakeMembers maps "community/user" to a role.
type fakeMembers struct {
	roles map[[2]int64]model.MemberRole
	err   error
}

func (f *fakeMembers) GetMember(_ context.Context, communityID, userID int64) (*model.CommunityMember, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.roles[[2]int64{communityID, userID}]
	if !ok {
		return nil, apperror.NotFound("member", userID)
	}
	return &model.CommunityMember{CommunityID: communityID, UserID: userID, Role: r}, nil
}

func TestPolicyAuthorizer(t *testing.T) {
	const community = 7
	members := &fakeMembers{roles: map[[2]int64]model.MemberRole{
		{community, 1}: model.RoleAdmin,
		{community, 2}: model.RoleModerator,
		{community, 3}: model.RoleMember,
	}}
	a := NewPolicyAuthorizer(members)
	ctx := context.Background()

	tests := []struct {
		name                        string
		viewer                      int64
		invite, manage, changeRoles bool
	}{
		{"admin", 1, true, true, true},
		{"moderator", 2, true, true, false},
		{"member", 3, true, false, false},
		{"non-member", 4, false, false, false},
		{"anonymous", 0, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := func(what string, got bool, err error, want bool) {
				t.Helper()
				if err != nil {
					t.Fatalf("%s: unexpected error %v", what, err)
				}
				if got != want {
					t.Errorf("%s = %v, want %v", what, got, want)
				}
			}
			ok, err := a.CanInviteToCommunity(ctx, community, tt.viewer)
			check("CanInviteToCommunity", ok, err, tt.invite)
			ok, err = a.CanCreateEventInCommunity(ctx, community, tt.viewer)
			check("CanCreateEventInCommunity", ok, err, tt.invite)
			ok, err = a.CanManageCommunity(ctx, community, tt.viewer)
			check("CanManageCommunity", ok, err, tt.manage)
			ok, err = a.CanChangeRoles(ctx, community, tt.viewer)
			check("CanChangeRoles", ok, err, tt.changeRoles)
		})
	}
}

func TestPolicyAuthorizer_CanManageEvent(t *testing.T) {
	community := int64(7)
	a := NewPolicyAuthorizer(&fakeMembers{roles: map[[2]int64]model.MemberRole{
		{community, 2}: model.RoleModerator,
		{community, 3}: model.RoleMember,
	}})
	ctx := context.Background()

	standalone := &model.Event{ID: 1, AuthorID: 9}
	inCommunity := &model.Event{ID: 2, AuthorID: 9, CommunityID: &community}

	cases := []struct {
		event  *model.Event
		viewer int64
		want   bool
	}{
		{standalone, 9, true},
		{standalone, 2, false},
		{inCommunity, 9, true},
		{inCommunity, 2, true},
		{inCommunity, 3, false},
		{inCommunity, 0, false},
		{nil, 9, false},
	}
	for i, c := range cases {
		got, err := a.CanManageEvent(ctx, c.event, c.viewer)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got != c.want {
			t.Errorf("case %d: CanManageEvent = %v, want %v", i, got, c.want)
		}
	}
}

func TestPolicyAuthorizer_StorageError(t *testing.T) {
	a := NewPolicyAuthorizer(&fakeMembers{err: errors.New("database is locked")})
	if _, err := a.CanInviteToCommunity(context.Background(), 1, 1); err == nil {
		t.Error("storage failures must not read as \"not a member\"")
	}
}

func TestCanViewConversation(t *testing.T) {
	club := int64(5)
	tests := []struct {
		name    string
		c       *model.Conversation
		viewer  int64
		allowed []int64
		member  []int64
		want    bool
	}{
		{"public", &model.Conversation{AuthorID: 1, Privacy: model.PrivacyPublic}, 0, nil, nil, true},
		{"private anonymous", &model.Conversation{AuthorID: 1, Privacy: model.PrivacyPrivate}, 0, []int64{1}, nil, false},
		{"private own", &model.Conversation{AuthorID: 2, Privacy: model.PrivacyPrivate}, 2, nil, nil, true},
		{"private allowed author", &model.Conversation{AuthorID: 1, Privacy: model.PrivacyPrivate}, 2, []int64{1}, nil, true},
		{"private stranger", &model.Conversation{AuthorID: 1, Privacy: model.PrivacyPrivate}, 2, []int64{3}, nil, false},
		{"community member", &model.Conversation{AuthorID: 1, Privacy: model.PrivacyPrivate, CommunityID: &club}, 2, nil, []int64{club}, true},
		{"community outsider", &model.Conversation{AuthorID: 1, Privacy: model.PrivacyPrivate, CommunityID: &club}, 2, nil, []int64{6}, false},
		{"nil", nil, 2, nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanViewConversation(tt.c, tt.viewer, tt.allowed, tt.member); got != tt.want {
				t.Errorf("CanViewConversation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Board Games Night": "board-games-night",
		"  --Hello, World!": "hello-world",
		"Café 2024":         "caf-2024",
		"!!!":               "item",
	}
	for in, want := range tests {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
	if got := slugify("a very long title that keeps going and going well past the limit of sixty"); len(got) > maxSlugLen {
		t.Errorf("slugify produced %d chars, want at most %d", len(got), maxSlugLen)
	}
}
