package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
)

func TestBuildContext_Tiers(t *testing.T) {
	f := newFixture(t)
	viewer := f.user("viewer")
	alice := f.user("alice") // direct inner
	bob := f.user("bob")     // inner of alice, and a direct extended edge
	carol := f.user("carol") // inner of bob
	dave := f.user("dave")   // created the viewer's community
	erin := f.user("erin")   // direct trusted

	garden := f.community(dave, "garden", model.PrivacyPrivate)
	f.join(garden, viewer, model.RoleMember)
	chess := f.community(alice, "chess", model.PrivacyPublic)
	books := f.community(bob, "books", model.PrivacyPublic)

	f.edge(viewer, alice, model.TierInner)
	f.edge(viewer, erin, model.TierTrusted)
	f.edge(viewer, bob, model.TierExtended)
	f.edge(alice, bob, model.TierInner)
	f.edge(alice, viewer, model.TierInner)
	f.edge(bob, carol, model.TierInner)

	cc, err := f.circles().BuildContext(f.ctx, viewer.ID)
	require.NoError(t, err)

	assert.Equal(t, viewer.ID, cc.ViewerID)
	assert.Equal(t, []int64{alice.ID, dave.ID}, cc.Scope(model.TierInner).Creators)
	assert.Equal(t, []int64{garden.ID}, cc.Scope(model.TierInner).Communities)

	// bob is reached through alice before his direct extended edge counts
	assert.Equal(t, []int64{bob.ID, erin.ID}, cc.Scope(model.TierTrusted).Creators)
	assert.Equal(t, []int64{chess.ID}, cc.Scope(model.TierTrusted).Communities)

	assert.Equal(t, []int64{carol.ID}, cc.Scope(model.TierExtended).Creators)
	assert.Equal(t, []int64{books.ID}, cc.Scope(model.TierExtended).Communities)

	for _, tier := range model.Tiers {
		assert.NotContains(t, cc.Scope(tier).Creators, viewer.ID, "viewer listed in %s", tier)
	}
}

func TestBuildContext_SkipsSuspendedUsers(t *testing.T) {
	f := newFixture(t)
	viewer := f.user("viewer")
	gone := &model.User{Email: "gone@example.com", DisplayName: "gone", Username: "gone", Status: model.UserSuspended}
	require.NoError(t, f.db.CreateUser(f.ctx, gone))
	f.edge(viewer, gone, model.TierInner)

	cc, err := f.circles().BuildContext(f.ctx, viewer.ID)
	require.NoError(t, err)
	assert.Empty(t, cc.Scope(model.TierInner).Creators)
}

func TestBuildContext_Anonymous(t *testing.T) {
	f := newFixture(t)
	cc, err := f.circles().BuildContext(f.ctx, 0)
	require.NoError(t, err)
	for _, tier := range model.Tiers {
		assert.Empty(t, cc.Scope(tier).Creators)
		assert.Empty(t, cc.Scope(tier).Communities)
	}
	assert.Empty(t, ResolveUsersForCircle(cc, model.CircleAll))
}

func TestResolveUsersForCircle(t *testing.T) {
	cc := model.CircleContext{
		ViewerID: 10,
		Tiers: map[model.CircleTier]model.TierScope{
			model.TierInner:    {Creators: []int64{3, 1}},
			model.TierTrusted:  {Creators: []int64{5}},
			model.TierExtended: {Creators: []int64{7, 3}},
		},
	}

	tests := []struct {
		circle model.Circle
		want   []int64
	}{
		{model.CircleInner, []int64{1, 3, 10}},
		{model.CircleTrusted, []int64{1, 3, 5, 10}},
		{model.CircleExtended, []int64{1, 3, 5, 7, 10}},
		{model.CircleAll, []int64{1, 3, 5, 7, 10}},
	}
	for _, tt := range tests {
		t.Run(string(tt.circle), func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveUsersForCircle(cc, tt.circle))
		})
	}
}

func TestMemberCommunities(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	viewer := f.user("viewer")
	a := f.community(owner, "a", model.PrivacyPublic)
	f.community(owner, "b", model.PrivacyPublic)
	f.join(a, viewer, model.RoleModerator)

	ids, err := f.circles().MemberCommunities(f.ctx, viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, ids)

	ids, err = f.circles().MemberCommunities(f.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSetEdge(t *testing.T) {
	f := newFixture(t)
	viewer := f.user("viewer")
	friend := f.user("friend")
	svc := f.circles()

	edge, err := svc.SetEdge(f.ctx, viewer.ID, friend.ID, "Trusted")
	require.NoError(t, err)
	assert.Equal(t, model.TierTrusted, edge.Tier)

	_, err = svc.SetEdge(f.ctx, viewer.ID, viewer.ID, "inner")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = svc.SetEdge(f.ctx, viewer.ID, friend.ID, "best-friends")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = svc.SetEdge(f.ctx, viewer.ID, 9999, "inner")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = svc.SetEdge(f.ctx, 0, friend.ID, "inner")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))

	require.NoError(t, svc.RemoveEdge(f.ctx, viewer.ID, friend.ID))
	cc, err := svc.BuildContext(f.ctx, viewer.ID)
	require.NoError(t, err)
	assert.Empty(t, cc.Scope(model.TierTrusted).Creators)
}
