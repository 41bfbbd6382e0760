package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/circles/internal/model"
)

// notice is the text of one outbox message before it is addressed.
type notice struct {
	subject string
	body    string
}

func displayName(u *model.User) string {
	if u == nil {
		return "Someone"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Someone"
}

func withMessage(lines []string, message string) []string {
	if m := strings.TrimSpace(message); m != "" {
		lines = append(lines, "", "\""+m+"\"")
	}
	return lines
}

func communityInviteNotice(inviter *model.User, c *model.Community, message, link string, channel model.NotificationChannel) notice {
	who := displayName(inviter)
	if channel == model.ChannelBluesky {
		return notice{body: fmt.Sprintf("%s invited you to join %s: %s", who, c.Name, link)}
	}
	lines := []string{fmt.Sprintf("%s invited you to join the %s community.", who, c.Name)}
	lines = withMessage(lines, message)
	lines = append(lines, "", "Accept the invitation: "+link)
	return notice{
		subject: fmt.Sprintf("%s invited you to join %s", who, c.Name),
		body:    strings.Join(lines, "\n"),
	}
}

func eventInviteNotice(inviter *model.User, e *model.Event, message, link string, channel model.NotificationChannel) notice {
	who := displayName(inviter)
	when := e.StartsAt.UTC().Format("Mon Jan 2, 2006 15:04 MST")
	if channel == model.ChannelBluesky {
		return notice{body: fmt.Sprintf("%s invited you to %s on %s. RSVP: %s", who, e.Title, when, link)}
	}
	lines := []string{fmt.Sprintf("%s invited you to %s.", who, e.Title), "", "When: " + when}
	if e.Location != "" {
		lines = append(lines, "Where: "+e.Location)
	}
	lines = withMessage(lines, message)
	lines = append(lines, "", "RSVP: "+link)
	return notice{
		subject: "You're invited: " + e.Title,
		body:    strings.Join(lines, "\n"),
	}
}

func rsvpNotice(g *model.Guest, e *model.Event) notice {
	who := g.Name
	if who == "" {
		who = strings.TrimPrefix(g.Email, model.BlueskyEmailPrefix)
	}
	answer := g.Status.Response()
	lines := []string{fmt.Sprintf("%s answered %q to %s.", who, answer, e.Title)}
	if g.PlusOne {
		plus := "yes"
		if g.PlusOneName != "" {
			plus = g.PlusOneName
		}
		lines = append(lines, "Plus one: "+plus)
	}
	if g.DietaryRestrictions != "" {
		lines = append(lines, "Dietary restrictions: "+g.DietaryRestrictions)
	}
	if g.Notes != "" {
		lines = append(lines, "Notes: "+g.Notes)
	}
	return notice{
		subject: fmt.Sprintf("%s RSVP'd %s to %s", who, answer, e.Title),
		body:    strings.Join(lines, "\n"),
	}
}

// channelFor picks the outbox channel from the recipient's address form.
func channelFor(recipient string) model.NotificationChannel {
	if strings.HasPrefix(recipient, model.BlueskyEmailPrefix) {
		return model.ChannelBluesky
	}
	return model.ChannelEmail
}

type outboxWriter interface {
	EnqueueOutbox(ctx context.Context, m *model.OutboxMessage) error
}

// enqueue writes n to the outbox. Callers pass the transaction-bound store
// so the message commits or rolls back with the change it announces.
func enqueue(ctx context.Context, outbox outboxWriter, recipient string, n notice, entity model.EntityType, entityID int64) error {
	m := &model.OutboxMessage{
		Channel:    channelFor(recipient),
		Recipient:  recipient,
		Subject:    n.subject,
		Body:       n.body,
		EntityType: entity,
		EntityID:   entityID,
	}
	if err := outbox.EnqueueOutbox(ctx, m); err != nil {
		return fmt.Errorf("service: queueing %s notification: %w", m.Channel, err)
	}
	return nil
}
