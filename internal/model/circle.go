package model

import (
	"fmt"
	"strings"
	"time"
)

// CircleTier is the closeness of a stored edge in a viewer's social graph.
type CircleTier string

const (
	TierInner    CircleTier = "inner"
	TierTrusted  CircleTier = "trusted"
	TierExtended CircleTier = "extended"
)

// Tiers lists the stored tiers from closest to furthest.
var Tiers = []CircleTier{TierInner, TierTrusted, TierExtended}

func ParseCircleTier(s string) (CircleTier, error) {
	switch t := CircleTier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierInner, TierTrusted, TierExtended:
		return t, nil
	}
	return "", fmt.Errorf("invalid circle tier %q", s)
}

// Circle is what a feed request asks for: one of the tiers or "all".
type Circle string

const (
	CircleInner    Circle = "inner"
	CircleTrusted  Circle = "trusted"
	CircleExtended Circle = "extended"
	CircleAll      Circle = "all"
)

// ParseCircle normalizes s, falling back to def for unknown or empty input.
func ParseCircle(s string, def Circle) Circle {
	switch c := Circle(strings.ToLower(strings.TrimSpace(s))); c {
	case CircleInner, CircleTrusted, CircleExtended, CircleAll:
		return c
	}
	return def
}

// CircleEdge says viewer places user in tier. (viewer, user) is unique.
type CircleEdge struct {
	ViewerID  int64      `json:"viewerId"`
	UserID    int64      `json:"userId"`
	Tier      CircleTier `json:"tier"`
	CreatedAt time.Time  `json:"createdAt"`
}

// TierScope is what one tier contributes to a feed.
type TierScope struct {
	Communities []int64 `json:"communities"`
	Creators    []int64 `json:"creators"`
}

// CircleContext is the per-request snapshot of a viewer's graph. It is built
// fresh for each request and never cached.
type CircleContext struct {
	ViewerID int64                    `json:"viewerId"`
	Tiers    map[CircleTier]TierScope `json:"tiers"`
}

// Scope returns the tier's scope, or an empty one.
func (c CircleContext) Scope(t CircleTier) TierScope {
	if c.Tiers == nil {
		return TierScope{}
	}
	return c.Tiers[t]
}
