package model

import "time"

// Conversation is a discussion thread. It may hang off a community, an event,
// both, or neither.
type Conversation struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	AuthorID    int64     `json:"authorId"`
	CommunityID *int64    `json:"communityId,omitempty"`
	EventID     *int64    `json:"eventId,omitempty"`
	Privacy     Privacy   `json:"privacy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Reply struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	AuthorID       int64     `json:"authorId"`
	AuthorName     string    `json:"authorName,omitempty"`
	Content        string    `json:"content"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
