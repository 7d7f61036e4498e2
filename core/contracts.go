package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Store is the keyed balance store plus reservation and ledger persistence.
// Every mutation happens inside RunInTx so the balance write, the reservation
// write and the ledger append commit or roll back together.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error
	GetBalance(ctx context.Context, key BalanceKey) (ItemBalance, error)
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ListExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]Reservation, error)
}

// StoreTx is the transactional view of a Store.
type StoreTx interface {
	// LoadBalance reads the balance, taking the row lock where the backend supports it.
	LoadBalance(ctx context.Context, key BalanceKey) (ItemBalance, error)
	// EnsureBalance returns the balance, creating a zero row when none exists.
	EnsureBalance(ctx context.Context, key BalanceKey) (ItemBalance, error)
	// ApplyDelta writes current+deltas only if the stored version still equals
	// current.Version. A lost race yields a ConflictError.
	ApplyDelta(ctx context.Context, current ItemBalance, availableDelta int64, reservedDelta int64) (ItemBalance, error)
	GetReservation(ctx context.Context, id string) (Reservation, error)
	FindActiveReservation(ctx context.Context, key BalanceKey, orderID string) (Reservation, bool, error)
	CreateReservation(ctx context.Context, reservation Reservation) (Reservation, error)
	// TransitionReservation moves the reservation from -> to only if it is still in from.
	TransitionReservation(ctx context.Context, req TransitionRequest) (Reservation, error)
	RecordTransaction(ctx context.Context, entry StockTransaction) (StockTransaction, error)
}

type TransitionRequest struct {
	ReservationID string
	From          ReservationStatus
	To            ReservationStatus
	At            time.Time
	Reason        string
	PerformedBy   string
}

type LedgerReader interface {
	ListByItem(ctx context.Context, key BalanceKey, page PageRequest) (LedgerPage, error)
	ListByReference(ctx context.Context, tenantID string, referenceID string) ([]StockTransaction, error)
}

// StaleReservationLister backs the fallback sweep, paging every ACTIVE
// reservation expired before cutoff.
type StaleReservationLister interface {
	ListStaleReservations(ctx context.Context, cutoff time.Time, page PageRequest) ([]Reservation, error)
}

// BalanceCache is notified after every committed balance mutation.
type BalanceCache interface {
	InvalidateBalance(ctx context.Context, key BalanceKey) error
}

type BalanceReader interface {
	GetBalance(ctx context.Context, key BalanceKey) (ItemBalance, error)
}

type StoreProvider interface {
	Store() Store
	LedgerReader() LedgerReader
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// StoreSettings are the resolved service settings a repository factory builds
// its stores with.
type StoreSettings struct {
	LockTimeout time.Duration
	CacheTTL    time.Duration
	Clock       Clock
}

// StoreSettingsReceiver is implemented by factories that take the resolved
// service settings before BuildStores runs.
type StoreSettingsReceiver interface {
	ApplyStoreSettings(settings StoreSettings)
}

// BalanceReaderProvider is implemented by store providers that build their own
// availability reader, such as a read-through cache.
type BalanceReaderProvider interface {
	BalanceReader() BalanceReader
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Clock func() time.Time

type IDGenerator func() string

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
