// Package notify delivers the notifications queued in the outbox table.
//
// Services never call a Sender directly: they write an outbox row inside
// the same transaction as the change it announces, and the Relay delivers
// it afterwards. A failed send therefore never undoes an invitation.
//
//	InvitationService ──InTx──▶ notification_outbox ──Relay──▶ Router ──▶ Email / Bluesky
//	                                                                   └─▶ Kafka (mirror)
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/circles/internal/model"
)

// Sender delivers one outbox message.
type Sender interface {
	Send(ctx context.Context, m *model.OutboxMessage) error
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, m *model.OutboxMessage) error

func (f SenderFunc) Send(ctx context.Context, m *model.OutboxMessage) error { return f(ctx, m) }

// LogSender writes messages to the log instead of delivering them. It is
// the fallback when no real transport is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, m *model.OutboxMessage) error {
	s.logger.Info("notification (not delivered: no transport configured)",
		slog.Int64("outboxID", m.ID),
		slog.String("channel", string(m.Channel)),
		slog.String("recipient", m.Recipient),
		slog.String("subject", m.Subject),
	)
	return nil
}

// Router picks a sender by channel. Messages on channels without a route go
// to the fallback. A mirror, when set, receives every successfully routed
// message; mirror failures are logged and do not fail the delivery.
type Router struct {
	routes   map[model.NotificationChannel]Sender
	fallback Sender
	mirror   Sender
	logger   *slog.Logger
}

func NewRouter(fallback Sender, logger *slog.Logger) *Router {
	return &Router{
		routes:   make(map[model.NotificationChannel]Sender),
		fallback: fallback,
		logger:   logger,
	}
}

// Route registers s for channel, replacing any earlier route.
func (r *Router) Route(channel model.NotificationChannel, s Sender) *Router {
	r.routes[channel] = s
	return r
}

// Mirror sets a sender that sees a copy of every delivered message.
func (r *Router) Mirror(s Sender) *Router {
	r.mirror = s
	return r
}

func (r *Router) Send(ctx context.Context, m *model.OutboxMessage) error {
	s, ok := r.routes[m.Channel]
	if !ok {
		s = r.fallback
	}
	if s == nil {
		return fmt.Errorf("notify: no sender for channel %q", m.Channel)
	}
	if err := s.Send(ctx, m); err != nil {
		return err
	}
	if r.mirror != nil {
		if err := r.mirror.Send(ctx, m); err != nil {
			r.logger.Warn("notification mirror failed",
				slog.Int64("outboxID", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
