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

var _ repository.InvitationRepository = (*DB)(nil)

const invitationColumns = `id, community_id, email, token, status, invitation_source, invited_by, message,
	converted_user_id, expires_at, accepted_at, created_at, updated_at`

func scanInvitation(row rowScanner) (*model.CommunityInvitation, error) {
	var inv model.CommunityInvitation
	var status, source string
	var converted sql.NullInt64
	var acceptedAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.CommunityID, &inv.Email, &inv.Token, &status, &source, &inv.InvitedBy, &inv.Message,
		&converted, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = model.InvitationStatus(status)
	inv.Source = model.InvitationSource(source)
	inv.ConvertedUserID = int64Ptr(converted)
	inv.AcceptedAt = timePtr(acceptedAt)
	return &inv, nil
}

// UpsertInvitation keys on (community_id, email), like UpsertGuest.
func (db *DB) UpsertInvitation(ctx context.Context, inv *model.CommunityInvitation) (bool, error) {
	now := time.Now().UTC()
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	inv.CreatedAt = now
	inv.UpdatedAt = now

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO community_invitations (community_id, email, token, status, invitation_source, invited_by,
			message, converted_user_id, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (community_id, email) DO NOTHING`,
		inv.CommunityID, inv.Email, inv.Token, string(inv.Status), string(inv.Source), inv.InvitedBy,
		inv.Message, nullInt64(inv.ConvertedUserID), inv.ExpiresAt.UTC(), inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, repository.ErrDuplicateToken
		}
		return false, fmt.Errorf("sqlite: upserting invitation for community %d: %w", inv.CommunityID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		existing, err := scanInvitation(db.q.QueryRowContext(ctx,
			`SELECT `+invitationColumns+` FROM community_invitations WHERE community_id = ? AND email = ?`,
			inv.CommunityID, inv.Email))
		if err != nil {
			return false, fmt.Errorf("sqlite: loading existing invitation: %w", err)
		}
		*inv = *existing
		return false, nil
	}

	if inv.ID, err = res.LastInsertId(); err != nil {
		return false, fmt.Errorf("sqlite: reading invitation id: %w", err)
	}
	return true, nil
}

func (db *DB) GetInvitationByID(ctx context.Context, communityID, invitationID int64) (*model.CommunityInvitation, error) {
	inv, err := scanInvitation(db.q.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM community_invitations WHERE id = ? AND community_id = ?`,
		invitationID, communityID))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("invitation", invitationID)
		}
		return nil, fmt.Errorf("sqlite: getting invitation %d: %w", invitationID, err)
	}
	return inv, nil
}

func (db *DB) GetInvitationByToken(ctx context.Context, token string) (*model.CommunityInvitation, error) {
	inv, err := scanInvitation(db.q.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM community_invitations WHERE token = ?`, token))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("invitation", "token")
		}
		return nil, fmt.Errorf("sqlite: getting invitation by token: %w", err)
	}
	return inv, nil
}

// ListInvitations returns non-cancelled invitations, newest first.
func (db *DB) ListInvitations(ctx context.Context, communityID int64) ([]model.CommunityInvitation, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM community_invitations
		 WHERE community_id = ? AND status <> 'cancelled'
		 ORDER BY created_at DESC, id DESC`,
		communityID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing invitations of community %d: %w", communityID, err)
	}
	defer rows.Close()

	invitations := []model.CommunityInvitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}

func (db *DB) UpdateInvitation(ctx context.Context, inv *model.CommunityInvitation) error {
	inv.UpdatedAt = time.Now().UTC()
	res, err := db.q.ExecContext(ctx,
		`UPDATE community_invitations SET token = ?, status = ?, invitation_source = ?, invited_by = ?, message = ?,
			converted_user_id = ?, expires_at = ?, accepted_at = ?, updated_at = ?
		 WHERE id = ?`,
		inv.Token, string(inv.Status), string(inv.Source), inv.InvitedBy, inv.Message,
		nullInt64(inv.ConvertedUserID), inv.ExpiresAt.UTC(), nullTime(inv.AcceptedAt), inv.UpdatedAt,
		inv.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateToken
		}
		return fmt.Errorf("sqlite: updating invitation %d: %w", inv.ID, err)
	}
	return requireAffected(res, "invitation", inv.ID)
}

func (db *DB) DeleteInvitation(ctx context.Context, invitationID int64) error {
	res, err := db.q.ExecContext(ctx, `DELETE FROM community_invitations WHERE id = ?`, invitationID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting invitation %d: %w", invitationID, err)
	}
	return requireAffected(res, "invitation", invitationID)
}
