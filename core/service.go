package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var errLedgerReaderMissing = errors.New("core: ledger reader is not configured")

// Service is the reservation manager. All balance mutations funnel through it.
type Service struct {
	observer
	config            Config
	loggerProvider    LoggerProvider
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	store             Store
	ledgerReader      LedgerReader
	balanceReader     BalanceReader
	balanceCache      BalanceCache
	backoffScheduler  BackoffScheduler
	clock             Clock
	idGenerator       IDGenerator
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Store             Store
	LedgerReader      LedgerReader
	BalanceReader     BalanceReader
	BalanceCache      BalanceCache
	BackoffScheduler  BackoffScheduler
	Clock             Clock
	IDGenerator       IDGenerator
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("inventory", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("inventory"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = defaultClock
	}
	if builder.idGenerator == nil {
		builder.idGenerator = defaultIDGenerator
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.backoffScheduler == nil {
		builder.backoffScheduler = ExponentialBackoffScheduler{
			Initial: finalConfig.Concurrency.InitialBackoff,
			Max:     finalConfig.Concurrency.MaxBackoff,
		}
	}

	if builder.store == nil && builder.repositoryFactory != nil {
		if receiver, ok := builder.repositoryFactory.(StoreSettingsReceiver); ok {
			receiver.ApplyStoreSettings(StoreSettings{
				LockTimeout: finalConfig.Concurrency.LockTimeout,
				CacheTTL:    finalConfig.Cache.TTL,
				Clock:       builder.clock,
			})
		}
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.useStores(stores)
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.useStores(stores)
		}
	}
	if builder.store == nil {
		memory := NewMemoryStore(
			WithMemoryLockTimeout(finalConfig.Concurrency.LockTimeout),
			WithMemoryClock(builder.clock),
		)
		builder.store = memory
		if builder.ledgerReader == nil {
			builder.ledgerReader = memory
		}
	}
	if builder.ledgerReader == nil {
		if reader, ok := builder.store.(LedgerReader); ok {
			builder.ledgerReader = reader
		}
	}
	if builder.balanceCache == nil {
		if cache, ok := builder.balanceReader.(BalanceCache); ok {
			builder.balanceCache = cache
		}
	}

	return &Service{
		observer: observer{
			logger:          logger,
			metricsRecorder: builder.metricsRecorder,
		},
		config:            finalConfig,
		loggerProvider:    provider,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		store:             builder.store,
		ledgerReader:      builder.ledgerReader,
		balanceReader:     builder.balanceReader,
		balanceCache:      builder.balanceCache,
		backoffScheduler:  builder.backoffScheduler,
		clock:             builder.clock,
		idGenerator:       builder.idGenerator,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Store:             s.store,
		LedgerReader:      s.ledgerReader,
		BalanceReader:     s.balanceReader,
		BalanceCache:      s.balanceCache,
		BackoffScheduler:  s.backoffScheduler,
		Clock:             s.clock,
		IDGenerator:       s.idGenerator,
	}
}

// mapError keeps typed inventory errors intact for errors.As callers and
// wraps anything else (driver failures, wiring faults) in a go-errors envelope.
func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if ErrorKindOf(err) != ErrorKindInternal || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return defaultClock()
	}
	return s.clock().UTC()
}

func (s *Service) requireStore() error {
	if s == nil || s.store == nil {
		return fmt.Errorf("core: store is not configured")
	}
	return nil
}

// runUnit executes fn as one atomic unit of work, retrying lost optimistic
// writes with backoff.
func (s *Service) runUnit(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) (int, error) {
	return retryOnConflict(ctx, s.config.Concurrency.MaxAttempts, s.backoffScheduler, func(int) error {
		return s.store.RunInTx(ctx, fn)
	})
}

func (s *Service) invalidateBalance(ctx context.Context, key BalanceKey) error {
	if s == nil || s.balanceCache == nil {
		return nil
	}
	if err := s.balanceCache.InvalidateBalance(ctx, key); err != nil {
		s.recordCounter(ctx, metricName("cache", "invalidation_failed"), 1, map[string]string{"tenant_id": key.TenantID})
		s.logWarn(ctx, "balance cache invalidation failed", map[string]any{
			"tenant_id": key.TenantID,
			"item_id":   key.ItemID,
			"error":     err.Error(),
		})
		return &CacheInvalidationError{Key: key, Cause: err}
	}
	return nil
}
