package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
)

func TestUpsertMember_NeverDowngrades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner")
	c := createTestCommunity(t, db, owner, "book-club", model.PrivacyPublic)

	m, err := db.UpsertMember(ctx, c.ID, owner.ID, model.RoleMember)
	if err != nil {
		t.Fatalf("UpsertMember() error = %v", err)
	}
	if m.Role != model.RoleAdmin {
		t.Errorf("role after member upsert = %q, want admin", m.Role)
	}

	members, err := db.ListMembers(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 1 {
		t.Errorf("ListMembers() = %d rows, want 1", len(members))
	}
}

func TestUpsertMember_Raises(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner")
	bob := createTestUser(t, db, "bob")
	c := createTestCommunity(t, db, owner, "runners", model.PrivacyPublic)

	if _, err := db.UpsertMember(ctx, c.ID, bob.ID, model.RoleMember); err != nil {
		t.Fatalf("UpsertMember(member) error = %v", err)
	}
	m, err := db.UpsertMember(ctx, c.ID, bob.ID, model.RoleModerator)
	if err != nil {
		t.Fatalf("UpsertMember(moderator) error = %v", err)
	}
	if m.Role != model.RoleModerator {
		t.Errorf("role = %q, want moderator", m.Role)
	}
}

func TestSetMemberRole_AndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner")
	bob := createTestUser(t, db, "bob")
	c := createTestCommunity(t, db, owner, "chess", model.PrivacyPrivate)

	m, err := db.UpsertMember(ctx, c.ID, bob.ID, model.RoleMember)
	if err != nil {
		t.Fatalf("UpsertMember() error = %v", err)
	}
	if err := db.SetMemberRole(ctx, m.ID, model.RoleMember); err != nil {
		t.Fatalf("SetMemberRole() error = %v", err)
	}
	if err := db.DeleteMember(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMember() error = %v", err)
	}
	if _, err := db.GetMember(ctx, c.ID, bob.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetMember() after delete error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteMember(ctx, m.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteMember() error = %v, want ErrNotFound", err)
	}
}

func TestCreateCommunity_DuplicateSlug(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "owner")
	createTestCommunity(t, db, owner, "garden", model.PrivacyPublic)

	err := db.CreateCommunity(context.Background(), &model.Community{Name: "x", Slug: "garden", Privacy: model.PrivacyPublic, CreatorID: owner.ID})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate slug error = %v, want ErrConflict", err)
	}

	exists, err := db.SlugExists(context.Background(), "communities", "garden")
	if err != nil || !exists {
		t.Errorf("SlugExists() = %v, %v", exists, err)
	}
	if _, err := db.SlugExists(context.Background(), "users", "x"); err == nil {
		t.Error("SlugExists() accepted a table without slugs")
	}
}

func TestCircleQueries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	viewer := createTestUser(t, db, "viewer")
	friend := createTestUser(t, db, "friend")
	c := createTestCommunity(t, db, friend, "hikers", model.PrivacyPrivate)

	if err := db.UpsertEdge(ctx, &model.CircleEdge{ViewerID: viewer.ID, UserID: friend.ID, Tier: model.TierInner}); err != nil {
		t.Fatalf("UpsertEdge() error = %v", err)
	}
	if err := db.UpsertEdge(ctx, &model.CircleEdge{ViewerID: viewer.ID, UserID: friend.ID, Tier: model.TierTrusted}); err != nil {
		t.Fatalf("UpsertEdge() replace error = %v", err)
	}

	edges, err := db.EdgesFrom(ctx, []int64{viewer.ID})
	if err != nil {
		t.Fatalf("EdgesFrom() error = %v", err)
	}
	if len(edges) != 1 || edges[0].Tier != model.TierTrusted {
		t.Errorf("EdgesFrom() = %+v, want one trusted edge", edges)
	}

	communities, err := db.CommunitiesOfMembers(ctx, []int64{friend.ID})
	if err != nil || len(communities) != 1 || communities[0] != c.ID {
		t.Errorf("CommunitiesOfMembers() = %v, %v", communities, err)
	}

	creators, err := db.CommunityCreators(ctx, []int64{c.ID})
	if err != nil || len(creators) != 1 || creators[0] != friend.ID {
		t.Errorf("CommunityCreators() = %v, %v", creators, err)
	}

	if err := db.DeleteEdge(ctx, viewer.ID, friend.ID); err != nil {
		t.Fatalf("DeleteEdge() error = %v", err)
	}
	if edges, _ := db.EdgesFrom(ctx, []int64{viewer.ID}); len(edges) != 0 {
		t.Errorf("EdgesFrom() after delete = %v", edges)
	}
}
