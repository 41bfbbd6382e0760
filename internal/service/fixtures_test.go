package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture is a fresh in-memory database plus helpers that create rows
// directly through the repository.
type fixture struct {
	t   *testing.T
	db  *sqlite.DB
	ctx context.Context
	seq int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &fixture{t: t, db: db, ctx: context.Background()}
}

func (f *fixture) user(name string) *model.User {
	f.t.Helper()
	u := &model.User{Email: name + "@example.com", DisplayName: name, Username: name}
	require.NoError(f.t, f.db.CreateUser(f.ctx, u))
	return u
}

func (f *fixture) community(creator *model.User, name string, privacy model.Privacy) *model.Community {
	f.t.Helper()
	c := &model.Community{Name: name, Slug: name, Privacy: privacy, CreatorID: creator.ID}
	require.NoError(f.t, f.db.CreateCommunity(f.ctx, c))
	f.join(c, creator, model.RoleAdmin)
	return c
}

func (f *fixture) join(c *model.Community, u *model.User, role model.MemberRole) {
	f.t.Helper()
	_, err := f.db.UpsertMember(f.ctx, c.ID, u.ID, role)
	require.NoError(f.t, err)
}

func (f *fixture) event(author *model.User, title string, privacy model.Privacy) *model.Event {
	f.t.Helper()
	e := &model.Event{
		Slug:     slugify(title),
		Title:    title,
		StartsAt: time.Now().Add(72 * time.Hour),
		Privacy:  privacy,
		AuthorID: author.ID,
	}
	require.NoError(f.t, f.db.CreateEvent(f.ctx, e))
	return e
}

func (f *fixture) edge(viewer, user *model.User, tier model.CircleTier) {
	f.t.Helper()
	require.NoError(f.t, f.db.UpsertEdge(f.ctx, &model.CircleEdge{ViewerID: viewer.ID, UserID: user.ID, Tier: tier}))
}

func (f *fixture) conversation(author *model.User, privacy model.Privacy, communityID *int64) *model.Conversation {
	f.t.Helper()
	f.seq++
	c := &model.Conversation{
		Slug:        fmt.Sprintf("thread-%d", f.seq),
		Title:       fmt.Sprintf("Thread %d", f.seq),
		Content:     "hello",
		AuthorID:    author.ID,
		CommunityID: communityID,
		Privacy:     privacy,
		CreatedAt:   time.Now().Add(time.Duration(f.seq) * time.Second),
	}
	require.NoError(f.t, f.db.CreateConversation(f.ctx, c))
	return c
}

func (f *fixture) pendingOutbox() []model.OutboxMessage {
	f.t.Helper()
	msgs, err := f.db.ListPendingOutbox(f.ctx, 100)
	require.NoError(f.t, err)
	return msgs
}

// seqTokens returns a generator producing tok-1, tok-2, ...
func seqTokens() TokenGenerator {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("tok-%d", n), nil
	}
}

func (f *fixture) invitations() *InvitationService {
	s := NewInvitationService(f.db, NewPolicyAuthorizer(f.db), InvitationConfig{BaseURL: "https://circles.test/"}, quietLogger())
	s.tokens = seqTokens()
	return s
}

func (f *fixture) circles() *CircleService {
	return NewCircleService(f.db, quietLogger())
}

func ptr[T any](v T) *T { return &v }
