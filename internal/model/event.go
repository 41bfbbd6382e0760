package model

import (
	"fmt"
	"strings"
	"time"
)

type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = ""
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

func ParseRecurrenceType(s string) (RecurrenceType, error) {
	switch r := RecurrenceType(strings.ToLower(strings.TrimSpace(s))); r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return r, nil
	case "none":
		return RecurrenceNone, nil
	}
	return "", fmt.Errorf("invalid recurrence type %q", s)
}

// MonthlyMode selects how a monthly rule repeats.
type MonthlyMode string

const (
	MonthlyByDate    MonthlyMode = "date"    // same day of month
	MonthlyByWeekday MonthlyMode = "weekday" // e.g. second Tuesday
)

// Recurrence is stored as metadata only; occurrences are not expanded.
type Recurrence struct {
	Type        RecurrenceType `json:"type,omitempty"`
	Interval    int            `json:"interval,omitempty"`
	Weekdays    []time.Weekday `json:"weekdays,omitempty"`
	MonthlyMode MonthlyMode    `json:"monthlyMode,omitempty"`
}

type Event struct {
	ID            int64      `json:"id"`
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	StartsAt      time.Time  `json:"startsAt"`
	EndsAt        *time.Time `json:"endsAt,omitempty"`
	Recurrence    Recurrence `json:"recurrence"`
	Location      string     `json:"location"`
	CommunityID   *int64     `json:"communityId,omitempty"`
	Privacy       Privacy    `json:"privacy"`
	AllowPlusOnes bool       `json:"allowPlusOnes"`
	FeaturedImage string     `json:"featuredImage,omitempty"`
	ShareToken    string     `json:"-"`
	AuthorID      int64      `json:"authorId"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// EndOrStart is the instant used to split upcoming from past events.
func (e *Event) EndOrStart() time.Time {
	if e.EndsAt != nil {
		return *e.EndsAt
	}
	return e.StartsAt
}

// EventListFilter selects events for ListEvents.
type EventListFilter string

const (
	EventsAll      EventListFilter = ""
	EventsMine     EventListFilter = "my"
	EventsUpcoming EventListFilter = "upcoming"
	EventsPast     EventListFilter = "past"
)

func ParseEventListFilter(s string) EventListFilter {
	switch f := EventListFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case EventsMine, EventsUpcoming, EventsPast:
		return f
	}
	return EventsAll
}
