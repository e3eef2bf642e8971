package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/provider"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client, time.Minute, nil), mr
}

func TestCachedMatcher(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	static := provider.NewStaticMatcher(map[string]provider.Candidate{
		"asthma": {ShortForm: "EFO_0000270", Label: "asthma", Score: 10},
	})
	m := cache.Matcher(static)

	for i := 0; i < 3; i++ {
		c, err := m.BestMatch(ctx, []string{"efo"}, "asthma")
		require.NoError(t, err)
		assert.Equal(t, "EFO_0000270", c.ID())
	}
	assert.Equal(t, 1, static.Calls(), "hits should be served from the cache")

	t.Run("misses are cached", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := m.BestMatch(ctx, []string{"efo"}, "zzz")
			assert.ErrorIs(t, err, lookup.ErrNoMatch)
		}
		assert.Equal(t, 2, static.Calls())
	})

	t.Run("entries expire", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		_, err := m.BestMatch(ctx, []string{"efo"}, "asthma")
		require.NoError(t, err)
		assert.Equal(t, 3, static.Calls())
	})
}

func TestCachedMatcherDoesNotCacheServiceErrors(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	static := provider.NewStaticMatcher(map[string]provider.Candidate{
		"asthma": {ShortForm: "EFO_0000270"},
	})
	static.FailWith(&lookup.ServiceError{Service: "ols", Op: "search", Err: errors.New("boom")})
	m := cache.Matcher(static)

	_, err := m.BestMatch(ctx, []string{"efo"}, "asthma")
	assert.ErrorIs(t, err, lookup.ErrServiceUnavailable)

	static.FailWith(nil)
	c, err := m.BestMatch(ctx, []string{"efo"}, "asthma")
	require.NoError(t, err)
	assert.Equal(t, "EFO_0000270", c.ID())
	assert.Equal(t, 2, static.Calls())
}

func TestCachedMatcherFallsThroughWhenRedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	static := provider.NewStaticMatcher(map[string]provider.Candidate{
		"asthma": {ShortForm: "EFO_0000270"},
	})
	m := cache.Matcher(static)

	c, err := m.BestMatch(context.Background(), []string{"efo"}, "asthma")
	require.NoError(t, err)
	assert.Equal(t, "EFO_0000270", c.ID())
}

func TestCachedCrossReferencer(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	static := provider.NewStaticCrossReferencer(map[string][]provider.CrossReference{
		"OMIM:230650": {{ID: "EFO:0000001", Distance: 1}},
	})
	x := cache.CrossReferencer(static)

	for i := 0; i < 2; i++ {
		out, err := x.Map(ctx, []string{"230650"}, "OMIM", "EFO", 2)
		require.NoError(t, err)
		assert.Equal(t, []provider.CrossReference{{ID: "EFO:0000001", Distance: 1}}, out["230650"])
	}
	assert.Equal(t, 1, static.Calls())

	// Different distance is a different question.
	_, err := x.Map(ctx, []string{"230650"}, "OMIM", "EFO", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, static.Calls())

	// Empty answers are cached too.
	for i := 0; i < 2; i++ {
		out, err := x.Map(ctx, []string{"999999"}, "OMIM", "EFO", 2)
		require.NoError(t, err)
		assert.Empty(t, out)
	}
	assert.Equal(t, 3, static.Calls())
}

func TestFlush(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	m := cache.Matcher(provider.NewStaticMatcher(map[string]provider.Candidate{"a": {ShortForm: "X_1"}}))
	_, err := m.BestMatch(ctx, []string{"efo"}, "a")
	require.NoError(t, err)
	_, err = m.BestMatch(ctx, []string{"efo"}, "b")
	require.ErrorIs(t, err, lookup.ErrNoMatch)
	require.NoError(t, mr.Set("unrelated", "keep"))

	n, err := cache.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("unrelated"))
}
