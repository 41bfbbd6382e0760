package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

var _ repository.GuestRepository = (*DB)(nil)

const guestColumns = `id, event_id, email, name, phone, dietary_restrictions, notes, plus_one, plus_one_name,
	status, invitation_source, rsvp_token, converted_user_id, invited_by, message, rsvp_date, cancelled_at,
	created_at, updated_at`

func scanGuest(row rowScanner) (*model.Guest, error) {
	var g model.Guest
	var status, source string
	var converted sql.NullInt64
	var rsvpDate, cancelledAt sql.NullTime
	err := row.Scan(
		&g.ID, &g.EventID, &g.Email, &g.Name, &g.Phone, &g.DietaryRestrictions, &g.Notes,
		&g.PlusOne, &g.PlusOneName, &status, &source, &g.RSVPToken, &converted,
		&g.InvitedBy, &g.Message, &rsvpDate, &cancelledAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Status = model.GuestStatus(status)
	g.Source = model.InvitationSource(source)
	g.ConvertedUserID = int64Ptr(converted)
	g.RSVPDate = timePtr(rsvpDate)
	g.CancelledAt = timePtr(cancelledAt)
	return &g, nil
}

// UpsertGuest keys on (event_id, email). When the pair exists the stored row
// is loaded into g and created is false; the caller decides what to change.
func (db *DB) UpsertGuest(ctx context.Context, g *model.Guest) (bool, error) {
	now := time.Now().UTC()
	g.Email = strings.ToLower(strings.TrimSpace(g.Email))
	g.CreatedAt = now
	g.UpdatedAt = now

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO guests (event_id, email, name, phone, dietary_restrictions, notes, plus_one, plus_one_name,
			status, invitation_source, rsvp_token, converted_user_id, invited_by, message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id, email) DO NOTHING`,
		g.EventID, g.Email, g.Name, g.Phone, g.DietaryRestrictions, g.Notes, g.PlusOne, g.PlusOneName,
		string(g.Status), string(g.Source), g.RSVPToken, nullInt64(g.ConvertedUserID), g.InvitedBy, g.Message,
		g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, repository.ErrDuplicateToken
		}
		return false, fmt.Errorf("sqlite: upserting guest for event %d: %w", g.EventID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		existing, err := db.GetGuestByEmail(ctx, g.EventID, g.Email)
		if err != nil {
			return false, err
		}
		*g = *existing
		return false, nil
	}

	if g.ID, err = res.LastInsertId(); err != nil {
		return false, fmt.Errorf("sqlite: reading guest id: %w", err)
	}
	return true, nil
}

func (db *DB) GetGuestByID(ctx context.Context, eventID, guestID int64) (*model.Guest, error) {
	g, err := scanGuest(db.q.QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE id = ? AND event_id = ?`, guestID, eventID))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("invitation", guestID)
		}
		return nil, fmt.Errorf("sqlite: getting guest %d: %w", guestID, err)
	}
	return g, nil
}

func (db *DB) GetGuestByToken(ctx context.Context, token string) (*model.Guest, error) {
	g, err := scanGuest(db.q.QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE rsvp_token = ?`, token))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("invitation", "token")
		}
		return nil, fmt.Errorf("sqlite: getting guest by token: %w", err)
	}
	return g, nil
}

func (db *DB) GetGuestByEmail(ctx context.Context, eventID int64, email string) (*model.Guest, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	g, err := scanGuest(db.q.QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE event_id = ? AND email = ?`, eventID, email))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("invitation", email)
		}
		return nil, fmt.Errorf("sqlite: getting guest %s of event %d: %w", email, eventID, err)
	}
	return g, nil
}

func (db *DB) IsLiveGuest(ctx context.Context, eventID, userID int64, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var ok bool
	err := db.q.QueryRowContext(ctx,
		`SELECT `+liveGuest+` FROM events ev WHERE ev.id = ?`,
		userID, email, email, eventID,
	).Scan(&ok)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking guest %d of event %d: %w", userID, eventID, err)
	}
	return ok, nil
}

func (db *DB) ListGuests(ctx context.Context, eventID int64) ([]model.Guest, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT `+guestColumns+` FROM guests
		 WHERE event_id = ? AND cancelled_at IS NULL
		 ORDER BY created_at DESC, id DESC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing guests of event %d: %w", eventID, err)
	}
	defer rows.Close()

	guests := []model.Guest{}
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning guest: %w", err)
		}
		guests = append(guests, *g)
	}
	return guests, rows.Err()
}

func (db *DB) UpdateGuest(ctx context.Context, g *model.Guest) error {
	g.UpdatedAt = time.Now().UTC()
	res, err := db.q.ExecContext(ctx,
		`UPDATE guests SET name = ?, phone = ?, dietary_restrictions = ?, notes = ?, plus_one = ?, plus_one_name = ?,
			status = ?, invitation_source = ?, rsvp_token = ?, converted_user_id = ?, invited_by = ?, message = ?,
			rsvp_date = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ?`,
		g.Name, g.Phone, g.DietaryRestrictions, g.Notes, g.PlusOne, g.PlusOneName,
		string(g.Status), string(g.Source), g.RSVPToken, nullInt64(g.ConvertedUserID), g.InvitedBy, g.Message,
		nullTime(g.RSVPDate), nullTime(g.CancelledAt), g.UpdatedAt,
		g.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateToken
		}
		return fmt.Errorf("sqlite: updating guest %d: %w", g.ID, err)
	}
	return requireAffected(res, "invitation", g.ID)
}

func (db *DB) DeleteGuest(ctx context.Context, guestID int64) error {
	res, err := db.q.ExecContext(ctx, `DELETE FROM guests WHERE id = ?`, guestID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting guest %d: %w", guestID, err)
	}
	return requireAffected(res, "invitation", guestID)
}

func (db *DB) LinkGuestsByEmail(ctx context.Context, email string, userID int64) (int, error) {
	res, err := db.q.ExecContext(ctx,
		`UPDATE guests SET converted_user_id = ?, updated_at = ?
		 WHERE email = ? AND converted_user_id IS NULL AND cancelled_at IS NULL`,
		userID, time.Now().UTC(), strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: linking guests to user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return int(n), nil
}
