package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/xid"
)

const maxSlugLen = 60

// slugify lowercases s and joins its letter and digit runs with dashes.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	slug := b.String()
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "item"
	}
	return slug
}

type slugChecker interface {
	SlugExists(ctx context.Context, table, slug string) (bool, error)
}

// uniqueSlug slugifies title and appends an xid when the slug is taken.
func uniqueSlug(ctx context.Context, repo slugChecker, table, title string) (string, error) {
	slug := slugify(title)
	taken, err := repo.SlugExists(ctx, table, slug)
	if err != nil {
		return "", fmt.Errorf("service: checking %s slug: %w", table, err)
	}
	if taken {
		slug += "-" + xid.New().String()
	}
	return slug, nil
}

// bySlugOrID resolves a route key that may be either a numeric id or a
// slug. A numeric key that matches no id is retried as a slug.
func bySlugOrID[T any](ctx context.Context, key string,
	byID func(context.Context, int64) (T, error),
	bySlug func(context.Context, string) (T, error),
) (T, error) {
	key = strings.TrimSpace(key)
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		v, err := byID(ctx, id)
		if !isNotFound(err) {
			return v, err
		}
	}
	return bySlug(ctx, key)
}
