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

var _ repository.ConversationRepository = (*DB)(nil)

const conversationColumns = `c.id, c.slug, c.title, c.content, c.author_id, c.community_id, c.event_id, c.privacy, c.created_at, c.updated_at`

// CreateConversation keeps a caller-supplied CreatedAt (imports and
// fixtures); otherwise it stamps the current time.
func (db *DB) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.CreatedAt

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO conversations (slug, title, content, author_id, community_id, event_id, privacy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Slug, c.Title, c.Content, c.AuthorID,
		nullInt64(c.CommunityID), nullInt64(c.EventID),
		string(c.Privacy), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("conversation slug %q is taken", c.Slug))
		}
		return fmt.Errorf("sqlite: creating conversation: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading conversation id: %w", err)
	}
	return nil
}

func (db *DB) GetConversationByID(ctx context.Context, id int64) (*model.Conversation, error) {
	c, err := scanConversation(db.q.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("conversation", id)
		}
		return nil, fmt.Errorf("sqlite: getting conversation %d: %w", id, err)
	}
	return c, nil
}

func (db *DB) GetConversationBySlug(ctx context.Context, slug string) (*model.Conversation, error) {
	c, err := scanConversation(db.q.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.slug = ?`, slug))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("conversation", slug)
		}
		return nil, fmt.Errorf("sqlite: getting conversation %q: %w", slug, err)
	}
	return c, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner, extra ...any) (*model.Conversation, error) {
	var c model.Conversation
	var communityID, eventID sql.NullInt64
	var privacy string
	dest := []any{
		&c.ID, &c.Slug, &c.Title, &c.Content, &c.AuthorID,
		&communityID, &eventID, &privacy, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.CommunityID = int64Ptr(communityID)
	c.EventID = int64Ptr(eventID)
	c.Privacy = model.Privacy(privacy)
	return &c, nil
}

// feedWhere renders the visibility rule plus the filter.
//
// Visibility: public, OR authored by an allowed user, OR posted in a member
// community. Anonymous viewers only ever see public rows. Filters use EXISTS
// sub-queries so a conversation never appears twice.
func feedWhere(q repository.FeedQuery) (string, []any) {
	var args []any
	clauses := make([]string, 0, 2)

	if model.IsAnonymous(q.ViewerID) {
		clauses = append(clauses, `c.privacy = 'public'`)
	} else {
		users, userArgs := inClause(q.AllowedUserIDs)
		communities, communityArgs := inClause(q.MemberCommunityIDs)
		clauses = append(clauses,
			`(c.privacy = 'public' OR c.author_id IN (`+users+`) OR c.community_id IN (`+communities+`))`)
		args = append(args, userArgs...)
		args = append(args, communityArgs...)
	}

	switch q.Filter {
	case model.FilterMyEvents:
		if model.IsAnonymous(q.ViewerID) {
			clauses = append(clauses, `0`)
			break
		}
		clauses = append(clauses, `c.event_id IS NOT NULL AND EXISTS (
			SELECT 1 FROM events fe WHERE fe.id = c.event_id AND (
				fe.author_id = ? OR EXISTS (
					SELECT 1 FROM guests g
					WHERE g.event_id = fe.id AND g.cancelled_at IS NULL
					  AND (g.converted_user_id = ? OR (? <> '' AND g.email = ?)))))`)
		args = append(args, q.ViewerID, q.ViewerID, q.ViewerEmail, q.ViewerEmail)
	case model.FilterAllEvents:
		clauses = append(clauses, `c.event_id IS NOT NULL`)
	case model.FilterCommunities:
		clauses = append(clauses, `c.community_id IS NOT NULL`)
	}

	return strings.Join(clauses, " AND "), args
}

// ListFeed returns one page ordered newest first, ties broken by id.
func (db *DB) ListFeed(ctx context.Context, q repository.FeedQuery) ([]model.FeedItem, error) {
	where, args := feedWhere(q)
	args = append(args, q.Limit, q.Offset)

	rows, err := db.q.QueryContext(ctx,
		`SELECT `+conversationColumns+`,
		        COALESCE(u.display_name, ''),
		        COALESCE(cm.name, ''), COALESCE(cm.slug, ''),
		        COALESCE(e.title, ''), COALESCE(e.slug, ''),
		        (SELECT COUNT(*) FROM replies r WHERE r.conversation_id = c.id)
		 FROM conversations c
		 LEFT JOIN users u ON u.id = c.author_id
		 LEFT JOIN communities cm ON cm.id = c.community_id
		 LEFT JOIN events e ON e.id = c.event_id
		 WHERE `+where+`
		 ORDER BY c.created_at DESC, c.id ASC
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing feed: %w", err)
	}
	defer rows.Close()

	items := []model.FeedItem{}
	for rows.Next() {
		var item model.FeedItem
		c, err := scanConversation(rows,
			&item.AuthorName,
			&item.CommunityName, &item.CommunitySlug,
			&item.EventTitle, &item.EventSlug,
			&item.ReplyCount,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning feed row: %w", err)
		}
		item.Conversation = *c
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) CountFeed(ctx context.Context, q repository.FeedQuery) (int, error) {
	where, args := feedWhere(q)
	var n int
	err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations c WHERE `+where, args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting feed: %w", err)
	}
	return n, nil
}

// =========================================================================
// REPLIES
// =========================================================================

// CreateReply also bumps the parent conversation's updated_at.
func (db *DB) CreateReply(ctx context.Context, r *model.Reply) error {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO replies (conversation_id, author_id, content, image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ConversationID, r.AuthorID, r.Content, r.ImageURL, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating reply: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sqlite: reading reply id: %w", err)
	}

	if _, err := db.q.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, r.ConversationID,
	); err != nil {
		return fmt.Errorf("sqlite: touching conversation %d: %w", r.ConversationID, err)
	}
	return nil
}

const replySelect = `SELECT r.id, r.conversation_id, r.author_id, COALESCE(u.display_name, ''), r.content, r.image_url, r.created_at, r.updated_at
	FROM replies r LEFT JOIN users u ON u.id = r.author_id`

func scanReply(row rowScanner) (*model.Reply, error) {
	var r model.Reply
	err := row.Scan(&r.ID, &r.ConversationID, &r.AuthorID, &r.AuthorName, &r.Content, &r.ImageURL, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) GetReply(ctx context.Context, id int64) (*model.Reply, error) {
	r, err := scanReply(db.q.QueryRowContext(ctx, replySelect+` WHERE r.id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("reply", id)
		}
		return nil, fmt.Errorf("sqlite: getting reply %d: %w", id, err)
	}
	return r, nil
}

func (db *DB) UpdateReply(ctx context.Context, r *model.Reply) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := db.q.ExecContext(ctx,
		`UPDATE replies SET content = ?, image_url = ?, updated_at = ? WHERE id = ?`,
		r.Content, r.ImageURL, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating reply %d: %w", r.ID, err)
	}
	return requireAffected(res, "reply", r.ID)
}

func (db *DB) DeleteReply(ctx context.Context, id int64) error {
	res, err := db.q.ExecContext(ctx, `DELETE FROM replies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting reply %d: %w", id, err)
	}
	return requireAffected(res, "reply", id)
}

// ListReplies returns replies oldest first.
func (db *DB) ListReplies(ctx context.Context, conversationID int64, opts repository.ListOptions) ([]model.Reply, error) {
	rows, err := db.q.QueryContext(ctx,
		replySelect+` WHERE r.conversation_id = ? ORDER BY r.created_at, r.id LIMIT ? OFFSET ?`,
		conversationID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing replies of %d: %w", conversationID, err)
	}
	defer rows.Close()

	replies := []model.Reply{}
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning reply: %w", err)
		}
		replies = append(replies, *r)
	}
	return replies, rows.Err()
}
