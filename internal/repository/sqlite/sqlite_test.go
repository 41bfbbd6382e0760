package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

// newTestDB opens a fresh in-memory database. t.Cleanup closes it, which
// also throws the database away.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, name string) *model.User {
	t.Helper()
	u := &model.User{
		Email:       name + "@example.com",
		DisplayName: name,
		Username:    name,
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return u
}

func createTestCommunity(t *testing.T, db *DB, creator *model.User, slug string, privacy model.Privacy) *model.Community {
	t.Helper()
	c := &model.Community{Name: slug, Slug: slug, Privacy: privacy, CreatorID: creator.ID}
	if err := db.CreateCommunity(context.Background(), c); err != nil {
		t.Fatalf("failed to create community %s: %v", slug, err)
	}
	if _, err := db.UpsertMember(context.Background(), c.ID, creator.ID, model.RoleAdmin); err != nil {
		t.Fatalf("failed to add creator to community: %v", err)
	}
	return c
}

func createTestEvent(t *testing.T, db *DB, author *model.User, slug string, privacy model.Privacy, startsAt time.Time) *model.Event {
	t.Helper()
	e := &model.Event{
		Slug:     slug,
		Title:    slug,
		StartsAt: startsAt,
		Privacy:  privacy,
		AuthorID: author.ID,
	}
	if err := db.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("failed to create event %s: %v", slug, err)
	}
	return e
}

var convSeq int

func createTestConversation(t *testing.T, db *DB, author *model.User, privacy model.Privacy, communityID, eventID *int64, at time.Time) *model.Conversation {
	t.Helper()
	convSeq++
	c := &model.Conversation{
		Slug:        fmt.Sprintf("conv-%d", convSeq),
		Title:       fmt.Sprintf("Conversation %d", convSeq),
		AuthorID:    author.ID,
		Privacy:     privacy,
		CommunityID: communityID,
		EventID:     eventID,
		CreatedAt:   at,
	}
	if err := db.CreateConversation(context.Background(), c); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	return c
}

func ptr(id int64) *int64 { return &id }

// =========================================================================
// TRANSACTION TESTS
// =========================================================================

func TestInTx_Commit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var id int64
	err := db.InTx(ctx, func(s repository.Store) error {
		u := &model.User{Email: "tx@example.com", Username: "tx"}
		if err := s.CreateUser(ctx, u); err != nil {
			return err
		}
		id = u.ID
		return nil
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}

	if _, err := db.GetUserByID(ctx, id); err != nil {
		t.Errorf("committed user not found: %v", err)
	}
}

func TestInTx_RollbackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.InTx(ctx, func(s repository.Store) error {
		if err := s.CreateUser(ctx, &model.User{Email: "rb@example.com", Username: "rb"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want %v", err, boom)
	}

	if _, err := db.GetUserByEmail(ctx, "rb@example.com"); err == nil {
		t.Error("user survived a rolled-back transaction")
	}
}

func TestInTx_RollbackOnPanic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = db.InTx(ctx, func(s repository.Store) error {
			_ = s.CreateUser(ctx, &model.User{Email: "panic@example.com", Username: "panic"})
			panic("mid-transaction")
		})
	}()

	if _, err := db.GetUserByEmail(ctx, "panic@example.com"); err == nil {
		t.Error("user survived a panicking transaction")
	}
}

func TestInTx_NestedJoinsOuter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("outer failure")

	err := db.InTx(ctx, func(outer repository.Store) error {
		if err := outer.InTx(ctx, func(inner repository.Store) error {
			return inner.CreateUser(ctx, &model.User{Email: "nested@example.com", Username: "nested"})
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v", err)
	}
	if _, err := db.GetUserByEmail(ctx, "nested@example.com"); err == nil {
		t.Error("inner write committed independently of the outer transaction")
	}
}

// =========================================================================
// MIGRATION TESTS
// =========================================================================

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}

func TestInClause(t *testing.T) {
	frag, args := inClause(nil)
	if frag != "NULL" || args != nil {
		t.Errorf("inClause(nil) = %q, %v", frag, args)
	}
	frag, args = inClause([]int64{4, 5, 6})
	if frag != "?,?,?" || len(args) != 3 {
		t.Errorf("inClause(3 ids) = %q, %v", frag, args)
	}
}
