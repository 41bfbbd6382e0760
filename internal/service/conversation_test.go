package service

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
)

func (f *fixture) conversations() *ConversationService {
	authz := NewPolicyAuthorizer(f.db)
	circles := f.circles()
	events := NewEventService(f.db, authz, circles, quietLogger())
	return NewConversationService(f.db, authz, circles, events, quietLogger())
}

func TestConversationService_CreateInheritsPrivacy(t *testing.T) {
	f := newFixture(t)
	ana, outsider := f.user("ana"), f.user("outsider")
	club := f.community(ana, "club", model.PrivacyPrivate)
	party := f.event(ana, "Party", model.PrivacyPrivate)
	svc := f.conversations()

	plain, err := svc.Create(f.ctx, ana.ID, CreateConversationInput{Title: "Hello world", Content: " hi "})
	require.NoError(t, err)
	assert.Equal(t, model.PrivacyPublic, plain.Privacy)
	assert.Equal(t, "hello-world", plain.Slug)
	assert.Equal(t, "hi", plain.Content)

	inClub, err := svc.Create(f.ctx, ana.ID, CreateConversationInput{Title: "Club", Content: "x", CommunityID: &club.ID})
	require.NoError(t, err)
	assert.Equal(t, model.PrivacyPrivate, inClub.Privacy)

	onEvent, err := svc.Create(f.ctx, ana.ID, CreateConversationInput{Title: "Party", Content: "x", EventID: &party.ID})
	require.NoError(t, err)
	assert.Equal(t, model.PrivacyPrivate, onEvent.Privacy)

	forced, err := svc.Create(f.ctx, ana.ID, CreateConversationInput{Title: "Open", Content: "x", CommunityID: &club.ID, Privacy: "public"})
	require.NoError(t, err)
	assert.Equal(t, model.PrivacyPublic, forced.Privacy)

	_, err = svc.Create(f.ctx, outsider.ID, CreateConversationInput{Title: "Spam", Content: "x", CommunityID: &club.ID})
	assertAppErr(t, err, apperror.ErrForbidden)
	_, err = svc.Create(f.ctx, outsider.ID, CreateConversationInput{Title: "Spam", Content: "x", EventID: &party.ID})
	assertAppErr(t, err, apperror.ErrNotFound)
	_, err = svc.Create(f.ctx, ana.ID, CreateConversationInput{Title: "", Content: "x"})
	assertAppErr(t, err, apperror.ErrValidation)
	_, err = svc.Create(f.ctx, 0, CreateConversationInput{Title: "t", Content: "x"})
	assertAppErr(t, err, apperror.ErrUnauthenticated)
}

func TestConversationService_GetBySlugOrID(t *testing.T) {
	f := newFixture(t)
	ana, friend, member, stranger := f.user("ana"), f.user("friend"), f.user("member"), f.user("stranger")
	club := f.community(stranger, "club", model.PrivacyPrivate)
	f.join(club, member, model.RoleMember)
	f.edge(friend, ana, model.TierInner)

	private := f.conversation(ana, model.PrivacyPrivate, nil)
	clubThread := f.conversation(stranger, model.PrivacyPrivate, &club.ID)
	svc := f.conversations()

	got, err := svc.GetBySlugOrID(f.ctx, strconv.FormatInt(private.ID, 10), friend.ID)
	require.NoError(t, err)
	assert.Equal(t, private.ID, got.ID)

	_, err = svc.GetBySlugOrID(f.ctx, private.Slug, ana.ID)
	require.NoError(t, err)
	_, err = svc.GetBySlugOrID(f.ctx, private.Slug, stranger.ID)
	assertAppErr(t, err, apperror.ErrNotFound)
	_, err = svc.GetBySlugOrID(f.ctx, private.Slug, 0)
	assertAppErr(t, err, apperror.ErrNotFound)

	_, err = svc.GetBySlugOrID(f.ctx, clubThread.Slug, member.ID)
	require.NoError(t, err)
	_, err = svc.GetBySlugOrID(f.ctx, clubThread.Slug, friend.ID)
	assertAppErr(t, err, apperror.ErrNotFound)
}

func TestConversationService_Replies(t *testing.T) {
	f := newFixture(t)
	ana, bo, stranger := f.user("ana"), f.user("bo"), f.user("stranger")
	f.edge(bo, ana, model.TierInner)
	thread := f.conversation(ana, model.PrivacyPrivate, nil)
	svc := f.conversations()

	first, err := svc.AddReply(f.ctx, thread.Slug, bo.ID, ReplyInput{Content: " first! "})
	require.NoError(t, err)
	assert.Equal(t, "first!", first.Content)
	_, err = svc.AddReply(f.ctx, thread.Slug, ana.ID, ReplyInput{Content: "second", ImageURL: "https://img.example.com/a.png"})
	require.NoError(t, err)

	_, err = svc.AddReply(f.ctx, thread.Slug, stranger.ID, ReplyInput{Content: "let me in"})
	assertAppErr(t, err, apperror.ErrNotFound)
	_, err = svc.AddReply(f.ctx, thread.Slug, bo.ID, ReplyInput{Content: "x", ImageURL: "not a url"})
	assertAppErr(t, err, apperror.ErrValidation)
	_, err = svc.AddReply(f.ctx, thread.Slug, 0, ReplyInput{Content: "x"})
	assertAppErr(t, err, apperror.ErrUnauthenticated)

	replies, err := svc.ListReplies(f.ctx, thread.Slug, bo.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, first.ID, replies[0].ID)
	replies, err = svc.ListReplies(f.ctx, thread.Slug, bo.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "second", replies[0].Content)

	edited, err := svc.EditReply(f.ctx, first.ID, bo.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", edited.Content)

	_, err = svc.EditReply(f.ctx, first.ID, ana.ID, "hijack")
	assertAppErr(t, err, apperror.ErrForbidden)
	_, err = svc.EditReply(f.ctx, first.ID, bo.ID, "  ")
	assertAppErr(t, err, apperror.ErrValidation)

	assertAppErr(t, svc.DeleteReply(f.ctx, first.ID, ana.ID), apperror.ErrForbidden)
	require.NoError(t, svc.DeleteReply(f.ctx, first.ID, bo.ID))
	assertAppErr(t, svc.DeleteReply(f.ctx, first.ID, bo.ID), apperror.ErrNotFound)
}
