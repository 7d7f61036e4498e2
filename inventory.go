package inventory

import "github.com/goliatone/go-inventory/core"

type Config = core.Config
type ReservationConfig = core.ReservationConfig
type ConcurrencyConfig = core.ConcurrencyConfig
type SweeperConfig = core.SweeperConfig
type CacheConfig = core.CacheConfig

type Option = core.Option

type Service = core.Service
type Sweeper = core.Sweeper
type SweeperOption = core.SweeperOption
type SweepResult = core.SweepResult

type ServiceDependencies = core.ServiceDependencies
type Store = core.Store
type StoreTx = core.StoreTx
type LedgerReader = core.LedgerReader
type BalanceReader = core.BalanceReader
type BalanceCache = core.BalanceCache
type StoreProvider = core.StoreProvider
type RepositoryStoreFactory = core.RepositoryStoreFactory
type MetricsRecorder = core.MetricsRecorder

type BalanceKey = core.BalanceKey
type ItemBalance = core.ItemBalance
type Availability = core.Availability
type Reservation = core.Reservation
type ReservationStatus = core.ReservationStatus
type StockTransaction = core.StockTransaction
type TransactionType = core.TransactionType
type PageRequest = core.PageRequest
type LedgerPage = core.LedgerPage

type ReserveRequest = core.ReserveRequest
type ConfirmRequest = core.ConfirmRequest
type ReleaseRequest = core.ReleaseRequest
type AdjustStockRequest = core.AdjustStockRequest
type AdjustStockResult = core.AdjustStockResult

type ErrorKind = core.ErrorKind

const (
	ReservationStatusActive    = core.ReservationStatusActive
	ReservationStatusConfirmed = core.ReservationStatusConfirmed
	ReservationStatusReleased  = core.ReservationStatusReleased
	ReservationStatusExpired   = core.ReservationStatusExpired
)

var (
	ErrNotFound               = core.ErrNotFound
	ErrInsufficientStock      = core.ErrInsufficientStock
	ErrInvalidStateTransition = core.ErrInvalidStateTransition
	ErrConflict               = core.ErrConflict
	ErrValidation             = core.ErrValidation
	ErrInvariantViolation     = core.ErrInvariantViolation
	ErrAlreadyReserved        = core.ErrAlreadyReserved
	ErrTimeout                = core.ErrTimeout
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithStore             = core.WithStore
	WithLedgerReader      = core.WithLedgerReader
	WithBalanceReader     = core.WithBalanceReader
	WithBalanceCache      = core.WithBalanceCache
	WithBackoffScheduler  = core.WithBackoffScheduler
	WithClock             = core.WithClock
	WithIDGenerator       = core.WithIDGenerator

	WithSweeperConfig          = core.WithSweeperConfig
	WithSweeperClock           = core.WithSweeperClock
	WithStaleReservationLister = core.WithStaleReservationLister

	ErrorKindOf = core.ErrorKindOf
	IsRetryable = core.IsRetryable
	MapError    = core.MapError
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

func NewSweeper(service *Service, opts ...SweeperOption) (*Sweeper, error) {
	return core.NewSweeper(service, opts...)
}
