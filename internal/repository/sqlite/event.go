package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

var _ repository.EventRepository = (*DB)(nil)

const eventColumns = `ev.id, ev.slug, ev.title, ev.description, ev.starts_at, ev.ends_at,
	ev.recurrence_type, ev.recurrence_interval, ev.recurrence_days, ev.monthly_mode,
	ev.location, ev.community_id, ev.privacy, ev.allow_plus_ones, ev.featured_image,
	COALESCE(ev.share_token, ''), ev.author_id, ev.created_at, ev.updated_at`

func (db *DB) CreateEvent(ctx context.Context, e *model.Event) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO events (slug, title, description, starts_at, ends_at,
			recurrence_type, recurrence_interval, recurrence_days, monthly_mode,
			location, community_id, privacy, allow_plus_ones, featured_image, share_token,
			author_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Slug, e.Title, e.Description, e.StartsAt.UTC(), nullTime(e.EndsAt),
		string(e.Recurrence.Type), e.Recurrence.Interval, encodeWeekdays(e.Recurrence.Weekdays), string(e.Recurrence.MonthlyMode),
		e.Location, nullInt64(e.CommunityID), string(e.Privacy), e.AllowPlusOnes, e.FeaturedImage, nullString(e.ShareToken),
		e.AuthorID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("event slug %q is taken", e.Slug))
		}
		return fmt.Errorf("sqlite: creating event: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sqlite: reading event id: %w", err)
	}
	return nil
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var endsAt sql.NullTime
	var recType, recDays, monthly, privacy string
	var communityID sql.NullInt64
	err := row.Scan(
		&e.ID, &e.Slug, &e.Title, &e.Description, &e.StartsAt, &endsAt,
		&recType, &e.Recurrence.Interval, &recDays, &monthly,
		&e.Location, &communityID, &privacy, &e.AllowPlusOnes, &e.FeaturedImage,
		&e.ShareToken, &e.AuthorID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.EndsAt = timePtr(endsAt)
	e.Recurrence.Type = model.RecurrenceType(recType)
	e.Recurrence.Weekdays = decodeWeekdays(recDays)
	e.Recurrence.MonthlyMode = model.MonthlyMode(monthly)
	e.CommunityID = int64Ptr(communityID)
	e.Privacy = model.Privacy(privacy)
	return &e, nil
}

func (db *DB) getEvent(ctx context.Context, where string, key any) (*model.Event, error) {
	e, err := scanEvent(db.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events ev WHERE `+where, key))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("event", key)
		}
		return nil, fmt.Errorf("sqlite: getting event %v: %w", key, err)
	}
	return e, nil
}

func (db *DB) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	return db.getEvent(ctx, `ev.id = ?`, id)
}

func (db *DB) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	return db.getEvent(ctx, `ev.slug = ?`, slug)
}

func (db *DB) GetEventByShareToken(ctx context.Context, token string) (*model.Event, error) {
	if token == "" {
		return nil, apperror.NotFound("event", "share link")
	}
	return db.getEvent(ctx, `ev.share_token = ?`, token)
}

func (db *DB) SetEventShareToken(ctx context.Context, eventID int64, token string) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE events SET share_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC(), eventID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateToken
		}
		return fmt.Errorf("sqlite: setting share token of event %d: %w", eventID, err)
	}
	return requireAffected(res, "event", eventID)
}

// liveGuest matches a non-cancelled guest of ev linked to the user id or
// invited at the email. Args: userID, email, email.
const liveGuest = `EXISTS (
	SELECT 1 FROM guests g WHERE g.event_id = ev.id AND g.cancelled_at IS NULL
	  AND (g.converted_user_id = ? OR (? <> '' AND g.email = ?)))`

// eventWhere mirrors feedWhere for events. The "my" filter bypasses the
// visibility rule: an author or guest always sees the event.
func eventWhere(q repository.EventQuery) (string, []any, string) {
	var args []any
	order := `ev.starts_at DESC, ev.id ASC`

	if q.Filter == model.EventsMine {
		if model.IsAnonymous(q.ViewerID) {
			return `0`, nil, order
		}
		email := strings.ToLower(strings.TrimSpace(q.ViewerEmail))
		args = append(args, q.ViewerID, q.ViewerID, email, email)
		return `(ev.author_id = ? OR ` + liveGuest + `)`, args, order
	}

	var clauses []string
	if model.IsAnonymous(q.ViewerID) {
		clauses = append(clauses, `ev.privacy = 'public'`)
	} else {
		users, userArgs := inClause(q.AllowedUserIDs)
		communities, communityArgs := inClause(q.MemberCommunityIDs)
		clauses = append(clauses,
			`(ev.privacy = 'public' OR ev.author_id IN (`+users+`) OR ev.community_id IN (`+communities+`))`)
		args = append(args, userArgs...)
		args = append(args, communityArgs...)
	}

	switch q.Filter {
	case model.EventsUpcoming:
		clauses = append(clauses, `COALESCE(ev.ends_at, ev.starts_at) >= ?`)
		args = append(args, q.Now.UTC())
		order = `ev.starts_at ASC, ev.id ASC`
	case model.EventsPast:
		clauses = append(clauses, `COALESCE(ev.ends_at, ev.starts_at) < ?`)
		args = append(args, q.Now.UTC())
	}
	return strings.Join(clauses, " AND "), args, order
}

func (db *DB) ListEvents(ctx context.Context, q repository.EventQuery) ([]model.Event, error) {
	where, args, order := eventWhere(q)
	args = append(args, q.Limit, q.Offset)

	rows, err := db.q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ev WHERE `+where+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (db *DB) CountEvents(ctx context.Context, q repository.EventQuery) (int, error) {
	where, args, _ := eventWhere(q)
	var n int
	if err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events ev WHERE `+where, args...,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting events: %w", err)
	}
	return n, nil
}

// Weekdays are stored as "1,3,5".
func encodeWeekdays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	var days []time.Weekday
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}
