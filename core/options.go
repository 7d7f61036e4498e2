package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
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

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithStore(store Store) Option {
	return func(b *serviceBuilder) {
		b.store = store
	}
}

func WithLedgerReader(reader LedgerReader) Option {
	return func(b *serviceBuilder) {
		b.ledgerReader = reader
	}
}

// WithBalanceReader routes availability reads through reader, typically a cache.
func WithBalanceReader(reader BalanceReader) Option {
	return func(b *serviceBuilder) {
		b.balanceReader = reader
	}
}

func WithBalanceCache(cache BalanceCache) Option {
	return func(b *serviceBuilder) {
		b.balanceCache = cache
	}
}

func WithBackoffScheduler(scheduler BackoffScheduler) Option {
	return func(b *serviceBuilder) {
		b.backoffScheduler = scheduler
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithIDGenerator(generator IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.idGenerator = generator
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("inventory", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           defaultClock,
		idGenerator:     defaultIDGenerator,
	}
}

func (b *serviceBuilder) useStores(stores StoreProvider) {
	if stores == nil {
		return
	}
	b.store = stores.Store()
	if b.ledgerReader == nil {
		b.ledgerReader = stores.LedgerReader()
	}
	if b.balanceReader == nil {
		if provider, ok := stores.(BalanceReaderProvider); ok {
			b.balanceReader = provider.BalanceReader()
		}
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return inventoryErrorMapper(err)
}

func defaultClock() time.Time {
	return time.Now().UTC()
}

func defaultIDGenerator() string {
	return uuid.NewString()
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw map, useful for embedding
// applications that already parsed their configuration.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded config < runtime config.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	reservation := map[string]any{}
	putDuration(reservation, "default_ttl", cfg.Reservation.DefaultTTL, includeZero)
	putDuration(reservation, "max_ttl", cfg.Reservation.MaxTTL, includeZero)
	if len(reservation) > 0 {
		layer["reservation"] = reservation
	}

	concurrency := map[string]any{}
	putInt(concurrency, "max_attempts", cfg.Concurrency.MaxAttempts, includeZero)
	putDuration(concurrency, "lock_timeout", cfg.Concurrency.LockTimeout, includeZero)
	putDuration(concurrency, "initial_backoff", cfg.Concurrency.InitialBackoff, includeZero)
	putDuration(concurrency, "max_backoff", cfg.Concurrency.MaxBackoff, includeZero)
	if len(concurrency) > 0 {
		layer["concurrency"] = concurrency
	}

	sweeper := map[string]any{}
	putDuration(sweeper, "interval", cfg.Sweeper.Interval, includeZero)
	putDuration(sweeper, "fallback_interval", cfg.Sweeper.FallbackInterval, includeZero)
	putInt(sweeper, "batch_size", cfg.Sweeper.BatchSize, includeZero)
	putDuration(sweeper, "fallback_grace", cfg.Sweeper.FallbackGrace, includeZero)
	if len(sweeper) > 0 {
		layer["sweeper"] = sweeper
	}

	if includeZero || cfg.Cache.TTL > 0 {
		layer["cache"] = map[string]any{"ttl": cfg.Cache.TTL}
	}
	return layer
}

func putDuration(layer map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value > 0 {
		layer[key] = value
	}
}

func putInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value > 0 {
		layer[key] = value
	}
}
