package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/config"
	"github.com/poc/grpc-services/internal/errs"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// brokenStore fails every operation, standing in for an unreachable backend.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errs.New(errs.KindCacheUnavailable, "down")
}
func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errs.New(errs.KindCacheUnavailable, "down")
}
func (brokenStore) Del(context.Context, string) error {
	return errs.New(errs.KindCacheUnavailable, "down")
}

type countingLookup struct {
	calls int
	valid bool
	err   error
}

func (c *countingLookup) fn(context.Context, string) (bool, error) {
	c.calls++
	return c.valid, c.err
}

func newValidationCache(store Store, lookup *countingLookup) *ValidationCache {
	return NewValidationCache(store, lookup.fn, config.ValidationTTLConfig{}, discardLogger())
}

func TestReadThroughCachesLookup(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := &countingLookup{valid: true}
	vc := newValidationCache(NewMemory(clk), lookup)
	ctx := context.Background()

	valid, err := vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, 1, lookup.calls)

	valid, err = vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, 1, lookup.calls, "second read must hit the cache")
}

func TestLookupEntryExpiresAfterThirtyMinutes(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := &countingLookup{valid: true}
	vc := newValidationCache(NewMemory(clk), lookup)
	ctx := context.Background()

	_, err := vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)

	clk.Advance(29 * time.Minute)
	_, err = vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls)

	clk.Advance(time.Minute)
	_, err = vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, lookup.calls)
}

func TestWarmCreateEntryLastsTwentyFourHours(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := &countingLookup{valid: true}
	vc := newValidationCache(NewMemory(clk), lookup)
	ctx := context.Background()

	vc.WarmCreate(ctx, "u-1", true)

	clk.Advance(23 * time.Hour)
	valid, err := vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Zero(t, lookup.calls)

	clk.Advance(2 * time.Hour)
	_, err = vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls)
}

func TestCacheFailuresAreNonFatal(t *testing.T) {
	lookup := &countingLookup{valid: true}
	vc := newValidationCache(brokenStore{}, lookup)
	ctx := context.Background()

	valid, err := vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, 1, lookup.calls)

	// WarmCreate and Invalidate swallow store failures too.
	vc.WarmCreate(ctx, "u-1", true)
	vc.Invalidate(ctx, "u-1")
}

func TestNegativeResultIsCached(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := &countingLookup{valid: false}
	vc := newValidationCache(NewMemory(clk), lookup)
	ctx := context.Background()

	valid, err := vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, 1, lookup.calls)
}

func TestLookupErrorPropagates(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := &countingLookup{err: errs.New(errs.KindUnexpected, "db down")}
	vc := newValidationCache(NewMemory(clk), lookup)

	_, err := vc.IsValidForOrder(context.Background(), "u-1")
	require.Error(t, err)
}

func TestInvalidateForcesAuthoritativeLookup(t *testing.T) {
	clk := clock.NewFake(time.Now())
	lookup := &countingLookup{valid: true}
	vc := newValidationCache(NewMemory(clk), lookup)
	ctx := context.Background()

	_, err := vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	vc.Invalidate(ctx, "u-1")
	_, err = vc.IsValidForOrder(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, lookup.calls)
}
