package cache

import (
	"context"
	"strings"
	"unicode"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
)

// SearchCache caches search results keyed by normalized query, so "Daft
// Punk!" and "daft  punk" share an entry.
type SearchCache[T any] struct {
	*TwoLevelCache[T]
}

func NewSearchCache[T any](l2 Store, cfg config.CacheConfig, opts ...Option) (*SearchCache[T], error) {
	c, err := New[T](l2, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &SearchCache[T]{TwoLevelCache: c}, nil
}

// NormalizeQuery lower-cases q, strips punctuation and symbols and collapses
// runs of whitespace.
func NormalizeQuery(q string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, q)
	return strings.Join(strings.Fields(stripped), " ")
}

// SearchKey is the logical key for query, qualified by source when one is given.
func SearchKey(source, query string) string {
	q := NormalizeQuery(query)
	if source == "" {
		return q
	}
	return strings.ToLower(source) + ":" + q
}

func (c *SearchCache[T]) GetResults(ctx context.Context, source, query string) (T, bool, error) {
	return c.Get(ctx, SearchKey(source, query))
}

func (c *SearchCache[T]) SetResults(ctx context.Context, source, query string, results T, opts ...SetOption) error {
	return c.Set(ctx, SearchKey(source, query), results, opts...)
}

// Search returns cached results for query or runs search and caches them.
func (c *SearchCache[T]) Search(ctx context.Context, source, query string, search func(context.Context) (T, error)) (T, error) {
	return c.GetOrSet(ctx, SearchKey(source, query), search)
}

func (c *SearchCache[T]) Invalidate(ctx context.Context, source, query string) error {
	return c.Delete(ctx, SearchKey(source, query))
}
