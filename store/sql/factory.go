package sqlstore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-inventory/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL stores for a service. Settings handed over
// by the service apply first; explicit factory options override them.
type RepositoryFactory struct {
	db        *bun.DB
	storeOpts []StoreOption
	settings  core.StoreSettings

	cacheTTL    time.Duration
	cacheTTLSet bool

	inventoryStore *InventoryStore
	ledgerStore    *LedgerStore
	balanceReader  *CachedBalanceReader
}

type FactoryOption func(*RepositoryFactory)

func WithFactoryLockTimeout(timeout time.Duration) FactoryOption {
	return func(f *RepositoryFactory) {
		f.storeOpts = append(f.storeOpts, WithLockTimeout(timeout))
	}
}

func WithFactoryClock(clock core.Clock) FactoryOption {
	return func(f *RepositoryFactory) {
		f.storeOpts = append(f.storeOpts, WithClock(clock))
	}
}

// WithFactoryBalanceCacheTTL enables the read-through availability cache with
// the given entry lifetime. Zero disables it.
func WithFactoryBalanceCacheTTL(ttl time.Duration) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheTTL = ttl
		f.cacheTTLSet = true
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// ApplyStoreSettings records the resolved service settings. Stores built
// before the call are rebuilt on the next BuildStores.
func (f *RepositoryFactory) ApplyStoreSettings(settings core.StoreSettings) {
	if f == nil {
		return
	}
	f.settings = settings
	f.inventoryStore = nil
	f.ledgerStore = nil
	f.balanceReader = nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.inventoryStore != nil && f.ledgerStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) Store() core.Store {
	if f == nil || f.inventoryStore == nil {
		return nil
	}
	return f.inventoryStore
}

func (f *RepositoryFactory) LedgerReader() core.LedgerReader {
	if f == nil || f.ledgerStore == nil {
		return nil
	}
	return f.ledgerStore
}

// BalanceReader returns the cached availability reader, or nil when the
// balance cache is disabled.
func (f *RepositoryFactory) BalanceReader() core.BalanceReader {
	if f == nil || f.balanceReader == nil {
		return nil
	}
	return f.balanceReader
}

func (f *RepositoryFactory) InventoryStore() *InventoryStore {
	if f == nil {
		return nil
	}
	return f.inventoryStore
}

func (f *RepositoryFactory) LedgerStore() *LedgerStore {
	if f == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	opts := make([]StoreOption, 0, len(f.storeOpts)+2)
	opts = append(opts, WithLockTimeout(f.settings.LockTimeout), WithClock(f.settings.Clock))
	opts = append(opts, f.storeOpts...)

	inventoryStore, err := NewInventoryStore(f.db, opts...)
	if err != nil {
		return err
	}
	ledgerStore, err := NewLedgerStore(f.db)
	if err != nil {
		return err
	}
	cacheTTL := f.settings.CacheTTL
	if f.cacheTTLSet {
		cacheTTL = f.cacheTTL
	}
	var balanceReader *CachedBalanceReader
	if cacheTTL > 0 {
		balanceReader, err = newBalanceCacheReader(inventoryStore, cacheTTL)
		if err != nil {
			return err
		}
	}
	f.inventoryStore = inventoryStore
	f.ledgerStore = ledgerStore
	f.balanceReader = balanceReader
	return nil
}

func newBalanceCacheReader(base core.BalanceReader, ttl time.Duration) (*CachedBalanceReader, error) {
	config := repositorycache.DefaultConfig()
	config.TTL = ttl
	config.EarlyRefresh = nil
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: balance cache: %w", err)
	}
	return NewCachedBalanceReader(base, cacheService)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
