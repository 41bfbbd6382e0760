package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/circles/internal/model"
)

// poster is satisfied by *bluesky.Client.
type poster interface {
	CreatePost(ctx context.Context, text string) (string, error)
}

// BlueskySender delivers bluesky-channel messages as a post that mentions
// the recipient's handle.
type BlueskySender struct {
	client poster
	logger *slog.Logger
}

func NewBlueskySender(client poster, logger *slog.Logger) *BlueskySender {
	return &BlueskySender{client: client, logger: logger}
}

func (s *BlueskySender) Send(ctx context.Context, m *model.OutboxMessage) error {
	handle := strings.TrimPrefix(m.Recipient, model.BlueskyEmailPrefix)
	if handle == "" || handle == m.Recipient {
		return fmt.Errorf("notify: %q is not a bluesky recipient", m.Recipient)
	}

	uri, err := s.client.CreatePost(ctx, "@"+handle+" "+m.Body)
	if err != nil {
		return fmt.Errorf("notify: posting to @%s: %w", handle, err)
	}
	s.logger.Debug("bluesky invitation posted",
		slog.Int64("outboxID", m.ID),
		slog.String("uri", uri),
	)
	return nil
}
