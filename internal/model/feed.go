package model

import (
	"strings"
	"time"
)

// FeedFilter narrows a feed beyond the visibility rule.
type FeedFilter string

const (
	FilterNone        FeedFilter = ""
	FilterMyEvents    FeedFilter = "my-events"
	FilterAllEvents   FeedFilter = "all-events"
	FilterCommunities FeedFilter = "communities"
)

// ParseFeedFilter normalizes s; unknown values become FilterNone.
func ParseFeedFilter(s string) FeedFilter {
	switch f := FeedFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterMyEvents, FilterAllEvents, FilterCommunities:
		return f
	}
	return FilterNone
}

// FeedItem is one conversation row with the labels a feed card shows.
type FeedItem struct {
	Conversation
	AuthorName    string `json:"authorName"`
	CommunityName string `json:"communityName,omitempty"`
	CommunitySlug string `json:"communitySlug,omitempty"`
	EventTitle    string `json:"eventTitle,omitempty"`
	EventSlug     string `json:"eventSlug,omitempty"`
	ReplyCount    int    `json:"replyCount"`
}

type Pagination struct {
	Page     int  `json:"page"`
	PerPage  int  `json:"per_page"`
	Total    int  `json:"total"`
	HasMore  bool `json:"has_more"`
	NextPage *int `json:"next_page"`
}

type FeedPage struct {
	Conversations []FeedItem `json:"conversations"`
	Pagination    Pagination `json:"pagination"`
}

// EventPage is a page of events, split into upcoming and past when the
// filter asks for the viewer's own events.
type EventPage struct {
	Events     []Event    `json:"events"`
	Upcoming   []Event    `json:"upcoming,omitempty"`
	Past       []Event    `json:"past,omitempty"`
	Pagination Pagination `json:"pagination"`
}

// SplitByTime partitions events around now using EndOrStart.
func SplitByTime(events []Event, now time.Time) (upcoming, past []Event) {
	for _, e := range events {
		if e.EndOrStart().Before(now) {
			past = append(past, e)
		} else {
			upcoming = append(upcoming, e)
		}
	}
	return upcoming, past
}
