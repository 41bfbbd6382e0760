package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

var _ repository.CircleRepository = (*DB)(nil)

// UpsertEdge places edge.UserID in edge.ViewerID's circle, replacing any
// previous tier for the same pair.
func (db *DB) UpsertEdge(ctx context.Context, edge *model.CircleEdge) error {
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	_, err := db.q.ExecContext(ctx,
		`INSERT INTO circle_edges (viewer_id, user_id, tier, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (viewer_id, user_id) DO UPDATE SET tier = excluded.tier`,
		edge.ViewerID, edge.UserID, string(edge.Tier), edge.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting circle edge %d->%d: %w", edge.ViewerID, edge.UserID, err)
	}
	return nil
}

func (db *DB) DeleteEdge(ctx context.Context, viewerID, userID int64) error {
	_, err := db.q.ExecContext(ctx,
		`DELETE FROM circle_edges WHERE viewer_id = ? AND user_id = ?`, viewerID, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting circle edge %d->%d: %w", viewerID, userID, err)
	}
	return nil
}

// EdgesFrom skips edges pointing at suspended accounts.
func (db *DB) EdgesFrom(ctx context.Context, viewerIDs []int64) ([]model.CircleEdge, error) {
	if len(viewerIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(viewerIDs)
	rows, err := db.q.QueryContext(ctx,
		`SELECT e.viewer_id, e.user_id, e.tier, e.created_at
		 FROM circle_edges e
		 JOIN users u ON u.id = e.user_id
		 WHERE e.viewer_id IN (`+in+`) AND u.status = 'active'
		 ORDER BY e.viewer_id, e.user_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing circle edges: %w", err)
	}
	defer rows.Close()

	var edges []model.CircleEdge
	for rows.Next() {
		var e model.CircleEdge
		var tier string
		if err := rows.Scan(&e.ViewerID, &e.UserID, &tier, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning circle edge: %w", err)
		}
		e.Tier = model.CircleTier(tier)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (db *DB) CommunitiesOfMembers(ctx context.Context, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(userIDs)
	rows, err := db.q.QueryContext(ctx,
		`SELECT DISTINCT community_id FROM community_members
		 WHERE user_id IN (`+in+`) ORDER BY community_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing member communities: %w", err)
	}
	return scanIDs(rows)
}

func (db *DB) CommunityCreators(ctx context.Context, communityIDs []int64) ([]int64, error) {
	if len(communityIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(communityIDs)
	rows, err := db.q.QueryContext(ctx,
		`SELECT DISTINCT c.creator_id FROM communities c
		 JOIN users u ON u.id = c.creator_id
		 WHERE c.id IN (`+in+`) AND u.status = 'active'
		 ORDER BY c.creator_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing community creators: %w", err)
	}
	return scanIDs(rows)
}

// scanIDs drains a single-column integer result set and closes it.
func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
