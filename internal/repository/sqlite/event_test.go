package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

func TestCreateEvent_RoundTripsRecurrence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	host := createTestUser(t, db, "host")

	ends := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	e := &model.Event{
		Slug:     "weekly-run",
		Title:    "Weekly run",
		StartsAt: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC),
		EndsAt:   &ends,
		Recurrence: model.Recurrence{
			Type:     model.RecurrenceWeekly,
			Interval: 1,
			Weekdays: []time.Weekday{time.Monday, time.Thursday},
		},
		Privacy:       model.PrivacyPublic,
		AllowPlusOnes: true,
		AuthorID:      host.ID,
	}
	if err := db.CreateEvent(ctx, e); err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}

	got, err := db.GetEventBySlug(ctx, "weekly-run")
	if err != nil {
		t.Fatalf("GetEventBySlug() error = %v", err)
	}
	if !got.AllowPlusOnes {
		t.Error("AllowPlusOnes lost")
	}
	if got.EndsAt == nil || !got.EndsAt.Equal(ends) {
		t.Errorf("EndsAt = %v, want %v", got.EndsAt, ends)
	}
	if len(got.Recurrence.Weekdays) != 2 || got.Recurrence.Weekdays[1] != time.Thursday {
		t.Errorf("Weekdays = %v", got.Recurrence.Weekdays)
	}
}

func TestShareToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	host := createTestUser(t, db, "host")
	e := createTestEvent(t, db, host, "launch", model.PrivacyPrivate, time.Now())

	if err := db.SetEventShareToken(ctx, e.ID, "pe_abc"); err != nil {
		t.Fatalf("SetEventShareToken() error = %v", err)
	}
	got, err := db.GetEventByShareToken(ctx, "pe_abc")
	if err != nil || got.ID != e.ID {
		t.Errorf("GetEventByShareToken() = %+v, %v", got, err)
	}
	if _, err := db.GetEventByShareToken(ctx, ""); err == nil {
		t.Error("empty share token matched an event")
	}
}

func TestListEvents_MineAndUpcoming(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	viewer := createTestUser(t, db, "viewer")
	host := createTestUser(t, db, "host")
	past := createTestEvent(t, db, viewer, "old", model.PrivacyPrivate, now.Add(-48*time.Hour))
	invited := createTestEvent(t, db, host, "invited", model.PrivacyPrivate, now.Add(24*time.Hour))
	createTestEvent(t, db, host, "unrelated", model.PrivacyPrivate, now.Add(24*time.Hour))
	public := createTestEvent(t, db, host, "open", model.PrivacyPublic, now.Add(72*time.Hour))

	g := &model.Guest{EventID: invited.ID, Email: "someone@else.com", Status: model.GuestPending,
		Source: model.SourceDirect, RSVPToken: "mine", ConvertedUserID: ptr(viewer.ID)}
	if _, err := db.UpsertGuest(ctx, g); err != nil {
		t.Fatalf("UpsertGuest() error = %v", err)
	}

	mine, err := db.ListEvents(ctx, repository.EventQuery{
		ViewerID: viewer.ID, ViewerEmail: viewer.Email, Filter: model.EventsMine, Now: now, Limit: 10,
	})
	if err != nil {
		t.Fatalf("ListEvents(mine) error = %v", err)
	}
	if len(mine) != 2 || mine[0].ID != invited.ID || mine[1].ID != past.ID {
		t.Errorf("ListEvents(mine) = %v", eventIDs(mine))
	}

	upcoming, err := db.ListEvents(ctx, repository.EventQuery{
		ViewerID: viewer.ID, Filter: model.EventsUpcoming, Now: now, Limit: 10,
	})
	if err != nil {
		t.Fatalf("ListEvents(upcoming) error = %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].ID != public.ID {
		t.Errorf("ListEvents(upcoming) = %v, want [%d]", eventIDs(upcoming), public.ID)
	}

	n, err := db.CountEvents(ctx, repository.EventQuery{ViewerID: viewer.ID, AllowedUserIDs: []int64{viewer.ID}, Now: now})
	if err != nil || n != 2 {
		t.Errorf("CountEvents() = %d, %v; want 2", n, err)
	}
}

func eventIDs(events []model.Event) []int64 {
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}
