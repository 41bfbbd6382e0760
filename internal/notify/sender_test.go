package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/sakif/circles/internal/model"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestEmailSender(t *testing.T) {
	d := &fakeDialer{}
	s := &EmailSender{from: "no-reply@circles.local", dialer: d}

	err := s.Send(context.Background(), &model.OutboxMessage{
		Channel: model.ChannelEmail, Recipient: "guest@example.com",
		Subject: "You're invited", Body: "Hi <there>\nRSVP here",
	})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"guest@example.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"You're invited"}, d.sent[0].GetHeader("Subject"))

	assert.Error(t, s.Send(context.Background(), &model.OutboxMessage{Recipient: "bsky:alice.bsky.social"}))

	d.err = errors.New("550 mailbox unavailable")
	assert.Error(t, s.Send(context.Background(), &model.OutboxMessage{Recipient: "guest@example.com"}))
}

func TestPlainToHTML(t *testing.T) {
	assert.Equal(t, "<p>a &lt;b&gt;<br>c</p>", plainToHTML("a <b>\nc"))
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSender(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSender{writer: w}

	err := s.Send(context.Background(), &model.OutboxMessage{
		ID: 9, Channel: model.ChannelEmail, Recipient: "guest@example.com",
		EntityType: model.EntityEvent, EntityID: 3, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "guest@example.com", string(w.msgs[0].Key))

	var ev notificationEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, int64(9), ev.OutboxID)
	assert.Equal(t, "event", ev.EntityType)
	assert.NoError(t, s.Close())
}

type fakePoster struct {
	texts []string
}

func (p *fakePoster) CreatePost(_ context.Context, text string) (string, error) {
	p.texts = append(p.texts, text)
	return "at://post", nil
}

func TestBlueskySender(t *testing.T) {
	p := &fakePoster{}
	s := NewBlueskySender(p, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, s.Send(context.Background(), &model.OutboxMessage{
		Channel: model.ChannelBluesky, Recipient: "bsky:alice.bsky.social", Body: "join us",
	}))
	assert.Equal(t, []string{"@alice.bsky.social join us"}, p.texts)

	assert.Error(t, s.Send(context.Background(), &model.OutboxMessage{Recipient: "alice@example.com"}))
}
