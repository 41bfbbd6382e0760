package model

import "time"

// NotificationChannel picks the sender for an outbox row.
type NotificationChannel string

const (
	ChannelEmail   NotificationChannel = "email"
	ChannelBluesky NotificationChannel = "bluesky"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxMessage is a notification written in the same transaction as the
// state change it announces and delivered later by the relay.
type OutboxMessage struct {
	ID         int64               `json:"id"`
	Channel    NotificationChannel `json:"channel"`
	Recipient  string              `json:"recipient"`
	Subject    string              `json:"subject"`
	Body       string              `json:"body"`
	EntityType EntityType          `json:"entityType"`
	EntityID   int64               `json:"entityId"`
	Status     OutboxStatus        `json:"status"`
	Attempts   int                 `json:"attempts"`
	LastError  string              `json:"lastError,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}
