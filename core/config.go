package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultReservationTTL        = 15 * time.Minute
	defaultReservationMaxTTL     = 24 * time.Hour
	defaultMaxAttempts           = 3
	defaultLockTimeout           = 5 * time.Second
	defaultInitialBackoff        = 10 * time.Millisecond
	defaultMaxBackoff            = 250 * time.Millisecond
	defaultSweepInterval         = 5 * time.Second
	defaultFallbackSweepInterval = time.Hour
	defaultSweepBatchSize        = 100
	defaultFallbackGrace         = time.Minute
	defaultBalanceCacheTTL       = 30 * time.Second
)

type ReservationConfig struct {
	DefaultTTL time.Duration `koanf:"default_ttl" mapstructure:"default_ttl"`
	MaxTTL     time.Duration `koanf:"max_ttl" mapstructure:"max_ttl"`
}

type ConcurrencyConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	LockTimeout    time.Duration `koanf:"lock_timeout" mapstructure:"lock_timeout"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type SweeperConfig struct {
	Interval         time.Duration `koanf:"interval" mapstructure:"interval"`
	FallbackInterval time.Duration `koanf:"fallback_interval" mapstructure:"fallback_interval"`
	BatchSize        int           `koanf:"batch_size" mapstructure:"batch_size"`
	FallbackGrace    time.Duration `koanf:"fallback_grace" mapstructure:"fallback_grace"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Reservation ReservationConfig `koanf:"reservation" mapstructure:"reservation"`
	Concurrency ConcurrencyConfig `koanf:"concurrency" mapstructure:"concurrency"`
	Sweeper     SweeperConfig     `koanf:"sweeper" mapstructure:"sweeper"`
	Cache       CacheConfig       `koanf:"cache" mapstructure:"cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "inventory",
		Reservation: ReservationConfig{
			DefaultTTL: defaultReservationTTL,
			MaxTTL:     defaultReservationMaxTTL,
		},
		Concurrency: ConcurrencyConfig{
			MaxAttempts:    defaultMaxAttempts,
			LockTimeout:    defaultLockTimeout,
			InitialBackoff: defaultInitialBackoff,
			MaxBackoff:     defaultMaxBackoff,
		},
		Sweeper: SweeperConfig{
			Interval:         defaultSweepInterval,
			FallbackInterval: defaultFallbackSweepInterval,
			BatchSize:        defaultSweepBatchSize,
			FallbackGrace:    defaultFallbackGrace,
		},
		Cache: CacheConfig{
			TTL: defaultBalanceCacheTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Reservation.DefaultTTL <= 0 {
		return fmt.Errorf("core: reservation.default_ttl must be positive")
	}
	if c.Reservation.MaxTTL > 0 && c.Reservation.DefaultTTL > c.Reservation.MaxTTL {
		return fmt.Errorf("core: reservation.default_ttl exceeds reservation.max_ttl")
	}
	if c.Concurrency.MaxAttempts < 1 {
		return fmt.Errorf("core: concurrency.max_attempts must be at least 1")
	}
	if c.Concurrency.LockTimeout <= 0 {
		return fmt.Errorf("core: concurrency.lock_timeout must be positive")
	}
	if c.Concurrency.MaxBackoff > 0 && c.Concurrency.InitialBackoff > c.Concurrency.MaxBackoff {
		return fmt.Errorf("core: concurrency.initial_backoff exceeds concurrency.max_backoff")
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("core: sweeper.interval must be positive")
	}
	if c.Sweeper.FallbackInterval <= 0 {
		return fmt.Errorf("core: sweeper.fallback_interval must be positive")
	}
	if c.Sweeper.BatchSize < 1 {
		return fmt.Errorf("core: sweeper.batch_size must be at least 1")
	}
	if c.Sweeper.FallbackGrace < 0 {
		return fmt.Errorf("core: sweeper.fallback_grace must not be negative")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("core: cache.ttl must not be negative")
	}
	return nil
}
