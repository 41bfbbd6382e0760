package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

var _ repository.CommunityRepository = (*DB)(nil)

// roleRank mirrors model.MemberRole.Rank in SQL.
const roleRank = `CASE %s WHEN 'admin' THEN 3 WHEN 'moderator' THEN 2 WHEN 'member' THEN 1 ELSE 0 END`

const communityColumns = `id, name, slug, privacy, creator_id, created_at, updated_at`

func (db *DB) CreateCommunity(ctx context.Context, c *model.Community) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO communities (name, slug, privacy, creator_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Slug, string(c.Privacy), c.CreatorID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("community slug %q is taken", c.Slug))
		}
		return fmt.Errorf("sqlite: creating community: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading community id: %w", err)
	}
	return nil
}

func (db *DB) GetCommunityByID(ctx context.Context, id int64) (*model.Community, error) {
	c, err := db.scanCommunity(ctx, `SELECT `+communityColumns+` FROM communities WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("community", id)
		}
		return nil, fmt.Errorf("sqlite: getting community %d: %w", id, err)
	}
	return c, nil
}

func (db *DB) GetCommunityBySlug(ctx context.Context, slug string) (*model.Community, error) {
	c, err := db.scanCommunity(ctx, `SELECT `+communityColumns+` FROM communities WHERE slug = ?`, slug)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("community", slug)
		}
		return nil, fmt.Errorf("sqlite: getting community %q: %w", slug, err)
	}
	return c, nil
}

func (db *DB) scanCommunity(ctx context.Context, query string, args ...any) (*model.Community, error) {
	var c model.Community
	var privacy string
	err := db.q.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.Name, &c.Slug, &privacy, &c.CreatorID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Privacy = model.Privacy(privacy)
	return &c, nil
}

// SlugExists checks slug uniqueness in one of the slugged tables.
func (db *DB) SlugExists(ctx context.Context, table, slug string) (bool, error) {
	switch table {
	case "communities", "conversations", "events":
	default:
		return false, fmt.Errorf("sqlite: table %q has no slug", table)
	}
	var n int
	err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE slug = ?`, slug,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking slug in %s: %w", table, err)
	}
	return n > 0, nil
}

// UpsertMember is a single statement so concurrent accepts for the same
// (community, user) converge on one row. On conflict the stored role is
// replaced only by a higher-ranked one.
func (db *DB) UpsertMember(ctx context.Context, communityID, userID int64, role model.MemberRole) (*model.CommunityMember, error) {
	_, err := db.q.ExecContext(ctx,
		`INSERT INTO community_members (community_id, user_id, role, joined_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (community_id, user_id) DO UPDATE SET role = CASE
		   WHEN `+fmt.Sprintf(roleRank, "excluded.role")+` > `+fmt.Sprintf(roleRank, "community_members.role")+`
		   THEN excluded.role ELSE community_members.role END`,
		communityID, userID, string(role), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: upserting member %d in community %d: %w", userID, communityID, err)
	}
	return db.GetMember(ctx, communityID, userID)
}

const memberSelect = `SELECT m.id, m.community_id, m.user_id, m.role, m.joined_at, u.display_name, u.email
	FROM community_members m JOIN users u ON u.id = m.user_id`

func (db *DB) GetMember(ctx context.Context, communityID, userID int64) (*model.CommunityMember, error) {
	m, err := db.scanMember(ctx, memberSelect+` WHERE m.community_id = ? AND m.user_id = ?`, communityID, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("membership", userID)
		}
		return nil, fmt.Errorf("sqlite: getting member %d of community %d: %w", userID, communityID, err)
	}
	return m, nil
}

func (db *DB) GetMemberByID(ctx context.Context, communityID, memberID int64) (*model.CommunityMember, error) {
	m, err := db.scanMember(ctx, memberSelect+` WHERE m.community_id = ? AND m.id = ?`, communityID, memberID)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("member", memberID)
		}
		return nil, fmt.Errorf("sqlite: getting member %d: %w", memberID, err)
	}
	return m, nil
}

func (db *DB) scanMember(ctx context.Context, query string, args ...any) (*model.CommunityMember, error) {
	var m model.CommunityMember
	var role string
	err := db.q.QueryRowContext(ctx, query, args...).Scan(
		&m.ID, &m.CommunityID, &m.UserID, &role, &m.JoinedAt, &m.DisplayName, &m.Email,
	)
	if err != nil {
		return nil, err
	}
	m.Role = model.MemberRole(role)
	return &m, nil
}

// ListMembers orders by role rank, then join date.
func (db *DB) ListMembers(ctx context.Context, communityID int64) ([]model.CommunityMember, error) {
	rows, err := db.q.QueryContext(ctx,
		memberSelect+` WHERE m.community_id = ?
		 ORDER BY `+fmt.Sprintf(roleRank, "m.role")+` DESC, m.joined_at, m.id`,
		communityID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing members of community %d: %w", communityID, err)
	}
	defer rows.Close()

	members := []model.CommunityMember{}
	for rows.Next() {
		var m model.CommunityMember
		var role string
		if err := rows.Scan(&m.ID, &m.CommunityID, &m.UserID, &role, &m.JoinedAt, &m.DisplayName, &m.Email); err != nil {
			return nil, fmt.Errorf("sqlite: scanning member: %w", err)
		}
		m.Role = model.MemberRole(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetMemberRole sets the role unconditionally; callers enforce who may do it.
func (db *DB) SetMemberRole(ctx context.Context, memberID int64, role model.MemberRole) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE community_members SET role = ? WHERE id = ?`, string(role), memberID)
	if err != nil {
		return fmt.Errorf("sqlite: setting role of member %d: %w", memberID, err)
	}
	return requireAffected(res, "member", memberID)
}

func (db *DB) DeleteMember(ctx context.Context, memberID int64) error {
	res, err := db.q.ExecContext(ctx, `DELETE FROM community_members WHERE id = ?`, memberID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting member %d: %w", memberID, err)
	}
	return requireAffected(res, "member", memberID)
}
