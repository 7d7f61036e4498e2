package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-inventory/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const balanceCacheKeyPrefix = "go-inventory::item_balance::v1"

// CachedBalanceReader serves availability reads from a read-through cache.
// Mutations never read from it; the service invalidates the key after every
// committed balance write.
type CachedBalanceReader struct {
	base  core.BalanceReader
	cache repositorycache.CacheService
}

func NewCachedBalanceReader(
	base core.BalanceReader,
	cacheService repositorycache.CacheService,
) (*CachedBalanceReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base balance reader is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: balance cache service is required")
	}
	return &CachedBalanceReader{base: base, cache: cacheService}, nil
}

// BalanceCacheKey returns go-inventory::item_balance::v1::<tenant_id>::<item_id>
// with each segment URL-path escaped after key normalization.
func BalanceCacheKey(key core.BalanceKey) (string, error) {
	normalized := key.Normalize()
	if err := normalized.Validate(); err != nil {
		return "", err
	}
	segments := []string{
		url.PathEscape(normalized.TenantID),
		url.PathEscape(normalized.ItemID),
	}
	return strings.Join(append([]string{balanceCacheKeyPrefix}, segments...), "::"), nil
}

func (r *CachedBalanceReader) GetBalance(ctx context.Context, key core.BalanceKey) (core.ItemBalance, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.ItemBalance{}, fmt.Errorf("sqlstore: cached balance reader is not configured")
	}
	normalized := key.Normalize()
	cacheKey, err := BalanceCacheKey(normalized)
	if err != nil {
		return core.ItemBalance{}, err
	}
	return repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(ctx context.Context) (core.ItemBalance, error) {
		return r.base.GetBalance(ctx, normalized)
	})
}

func (r *CachedBalanceReader) InvalidateBalance(ctx context.Context, key core.BalanceKey) error {
	if r == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached balance reader is not configured")
	}
	cacheKey, err := BalanceCacheKey(key)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, cacheKey)
}
