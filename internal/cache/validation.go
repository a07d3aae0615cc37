package cache

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/poc/grpc-services/internal/config"
	"github.com/poc/grpc-services/internal/metrics"
)

const validationKeyPrefix = "user:valid:"

// ValidationLookup is the authoritative source consulted on a miss.
type ValidationLookup func(ctx context.Context, userID string) (bool, error)

// ValidationCache is the read-through mapping from user id to
// valid-for-orders. Store failures are non-fatal: the caller gets the
// authoritative answer and the miss is logged. Entries are eventually
// consistent within their TTL.
type ValidationCache struct {
	store      Store
	lookup     ValidationLookup
	postCreate time.Duration
	postLookup time.Duration
	log        *slog.Logger
}

func NewValidationCache(store Store, lookup ValidationLookup, cfg config.ValidationTTLConfig, log *slog.Logger) *ValidationCache {
	return &ValidationCache{
		store:      store,
		lookup:     lookup,
		postCreate: cfg.PostCreate(),
		postLookup: cfg.PostLookup(),
		log:        log,
	}
}

// IsValidForOrder returns the cached answer when fresh, otherwise performs
// one authoritative lookup and caches the result. Concurrent misses may each
// perform a lookup; both cache the same answer.
func (v *ValidationCache) IsValidForOrder(ctx context.Context, userID string) (bool, error) {
	key := validationKeyPrefix + userID

	if raw, found, err := v.store.Get(ctx, key); err != nil {
		v.log.Warn("validation cache read failed", "user_id", userID, "error", err)
	} else if found {
		if valid, err := strconv.ParseBool(raw); err == nil {
			metrics.CacheHits.WithLabelValues("validation").Inc()
			return valid, nil
		}
		// Unparseable entry: treat as a miss and overwrite below.
	}
	metrics.CacheMisses.WithLabelValues("validation").Inc()

	valid, err := v.lookup(ctx, userID)
	if err != nil {
		return false, err
	}
	if err := v.store.Set(ctx, key, strconv.FormatBool(valid), v.postLookup); err != nil {
		v.log.Warn("validation cache write failed", "user_id", userID, "error", err)
	}
	return valid, nil
}

// WarmCreate writes the long-lived entry for a freshly created user. Write
// failures are logged and swallowed; creation never fails on cache errors.
func (v *ValidationCache) WarmCreate(ctx context.Context, userID string, valid bool) {
	key := validationKeyPrefix + userID
	if err := v.store.Set(ctx, key, strconv.FormatBool(valid), v.postCreate); err != nil {
		v.log.Warn("validation cache warm write failed", "user_id", userID, "error", err)
	}
}

// Invalidate drops the entry so the next check hits the authoritative
// source. Called when account status or profile changes.
func (v *ValidationCache) Invalidate(ctx context.Context, userID string) {
	if err := v.store.Del(ctx, validationKeyPrefix+userID); err != nil {
		v.log.Warn("validation cache invalidate failed", "user_id", userID, "error", err)
	}
}
