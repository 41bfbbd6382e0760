package notify_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/notify"
	"github.com/sakif/circles/internal/repository/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOutbox(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// recordingSender remembers what it was asked to send and fails for
// recipients listed in failFor.
type recordingSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (s *recordingSender) Send(_ context.Context, m *model.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[m.Recipient] {
		return errors.New("transport down")
	}
	s.sent = append(s.sent, m.Recipient)
	return nil
}

func (s *recordingSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func enqueue(t *testing.T, db *sqlite.DB, recipient string) *model.OutboxMessage {
	t.Helper()
	m := &model.OutboxMessage{Channel: model.ChannelEmail, Recipient: recipient, Subject: "s", Body: "b"}
	require.NoError(t, db.EnqueueOutbox(context.Background(), m))
	return m
}

func TestRelay_DrainOnce(t *testing.T) {
	db := newOutbox(t)
	ctx := context.Background()
	enqueue(t, db, "ok@example.com")
	enqueue(t, db, "bad@example.com")

	sender := &recordingSender{failFor: map[string]bool{"bad@example.com": true}}
	relay := notify.NewRelay(db, sender, notify.RelayConfig{MaxAttempts: 2}, quietLogger())

	res, err := relay.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, notify.DrainResult{Delivered: 1, Failed: 1}, res)
	assert.Equal(t, 2, res.Handled())
	assert.Equal(t, []string{"ok@example.com"}, sender.recipients())

	// The failed message stays pending until it runs out of attempts.
	pending, _ := db.ListPendingOutbox(ctx, 10)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "transport down", pending[0].LastError)

	_, err = relay.DrainOnce(ctx)
	require.NoError(t, err)
	pending, _ = db.ListPendingOutbox(ctx, 10)
	assert.Empty(t, pending, "message should be marked failed after max attempts")
}

func TestRelay_StartStop(t *testing.T) {
	db := newOutbox(t)
	enqueue(t, db, "a@example.com")

	sender := &recordingSender{}
	relay := notify.NewRelay(db, sender, notify.RelayConfig{Interval: 10 * time.Millisecond}, quietLogger())
	relay.Start()
	relay.Start()

	require.Eventually(t, func() bool {
		return len(sender.recipients()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	relay.Stop()
	relay.Stop()
}

func TestRelay_FailedBatchWaitsForInterval(t *testing.T) {
	db := newOutbox(t)
	ctx := context.Background()
	failFor := map[string]bool{}
	for i := 0; i < 5; i++ {
		recipient := fmt.Sprintf("user%d@example.com", i)
		failFor[recipient] = true
		enqueue(t, db, recipient)
	}

	sender := &recordingSender{failFor: failFor}
	relay := notify.NewRelay(db, sender, notify.RelayConfig{
		Interval:    time.Hour,
		BatchSize:   5,
		MaxAttempts: 5,
	}, quietLogger())
	relay.Start()
	time.Sleep(300 * time.Millisecond)
	relay.Stop()

	// The first poll fires immediately; a fully failed batch must then wait
	// the hour instead of retrying.
	pending, err := db.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 5)
	for _, m := range pending {
		assert.Equal(t, 1, m.Attempts)
	}
}

func TestRelay_FullCleanBatchPollsAgain(t *testing.T) {
	db := newOutbox(t)
	for i := 0; i < 6; i++ {
		enqueue(t, db, fmt.Sprintf("user%d@example.com", i))
	}

	sender := &recordingSender{}
	relay := notify.NewRelay(db, sender, notify.RelayConfig{Interval: time.Hour, BatchSize: 3}, quietLogger())
	relay.Start()
	defer relay.Stop()

	// Two full batches and the empty poll after them happen without
	// waiting the interval.
	require.Eventually(t, func() bool {
		return len(sender.recipients()) == 6
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	email := &recordingSender{}
	fallback := &recordingSender{}
	mirror := &recordingSender{failFor: map[string]bool{"x@example.com": true}}

	r := notify.NewRouter(fallback, quietLogger()).
		Route(model.ChannelEmail, email).
		Mirror(mirror)

	require.NoError(t, r.Send(ctx, &model.OutboxMessage{Channel: model.ChannelEmail, Recipient: "x@example.com"}))
	require.NoError(t, r.Send(ctx, &model.OutboxMessage{Channel: model.ChannelBluesky, Recipient: "bsky:a.b.c"}))

	assert.Equal(t, []string{"x@example.com"}, email.recipients())
	assert.Equal(t, []string{"bsky:a.b.c"}, fallback.recipients())
	// mirror failure for x@ is swallowed, the bluesky message still mirrors
	assert.Equal(t, []string{"bsky:a.b.c"}, mirror.recipients())

	failing := notify.NewRouter(nil, quietLogger()).Route(model.ChannelEmail, &recordingSender{failFor: map[string]bool{"y@example.com": true}})
	assert.Error(t, failing.Send(ctx, &model.OutboxMessage{Channel: model.ChannelEmail, Recipient: "y@example.com"}))
	assert.Error(t, failing.Send(ctx, &model.OutboxMessage{Channel: model.ChannelBluesky, Recipient: "bsky:z.b.c"}))
}
