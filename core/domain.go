package core

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed out of the status.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationStatusConfirmed, ReservationStatusReleased, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

// IsReleased reports whether the reservation already returned its stock.
func (s ReservationStatus) IsReleased() bool {
	return s == ReservationStatusReleased || s == ReservationStatusExpired
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusActive, ReservationStatusConfirmed, ReservationStatusReleased, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

func reservationTransitionAllowed(from ReservationStatus, to ReservationStatus) bool {
	if from != ReservationStatusActive {
		return false
	}
	switch to {
	case ReservationStatusConfirmed, ReservationStatusReleased, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

type TransactionType string

const (
	TransactionTypeReserve     TransactionType = "RESERVE"
	TransactionTypeRelease     TransactionType = "RELEASE"
	TransactionTypeConfirm     TransactionType = "CONFIRM"
	TransactionTypeStockIn     TransactionType = "STOCK_IN"
	TransactionTypeStockOut    TransactionType = "STOCK_OUT"
	TransactionTypeAdjustIn    TransactionType = "ADJUST_IN"
	TransactionTypeAdjustOut   TransactionType = "ADJUST_OUT"
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
)

// IsReservation reports whether the type is written by the reservation state machine.
func (t TransactionType) IsReservation() bool {
	switch t {
	case TransactionTypeReserve, TransactionTypeRelease, TransactionTypeConfirm:
		return true
	default:
		return false
	}
}

// Inbound reports whether an adjustment of this type adds stock to the available bucket.
func (t TransactionType) Inbound() bool {
	switch t {
	case TransactionTypeStockIn, TransactionTypeAdjustIn, TransactionTypeTransferIn:
		return true
	default:
		return false
	}
}

// Outbound reports whether an adjustment of this type removes stock from the available bucket.
func (t TransactionType) Outbound() bool {
	switch t {
	case TransactionTypeStockOut, TransactionTypeAdjustOut, TransactionTypeTransferOut:
		return true
	default:
		return false
	}
}

func (t TransactionType) Valid() bool {
	return t.IsReservation() || t.Inbound() || t.Outbound()
}

const (
	ReferenceTypeOrder = "ORDER"

	ReasonExpired = "expired"

	PerformedBySystem  = "system"
	PerformedBySweeper = "system:expiry-sweeper"
)

// BalanceKey identifies the single logical stock pool of an item within a tenant.
type BalanceKey struct {
	TenantID string
	ItemID   string
}

func (k BalanceKey) Normalize() BalanceKey {
	return BalanceKey{
		TenantID: strings.TrimSpace(k.TenantID),
		ItemID:   strings.TrimSpace(k.ItemID),
	}
}

func (k BalanceKey) Validate() error {
	if strings.TrimSpace(k.TenantID) == "" {
		return validationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(k.ItemID) == "" {
		return validationError("item_id", "item id is required")
	}
	return nil
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s", k.TenantID, k.ItemID)
}

type ItemBalance struct {
	TenantID  string
	ItemID    string
	Available int64
	Reserved  int64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b ItemBalance) Key() BalanceKey {
	return BalanceKey{TenantID: b.TenantID, ItemID: b.ItemID}
}

// OnHand is conserved by reserve, release and expire; confirm consumes stock.
func (b ItemBalance) OnHand() int64 {
	return b.Available + b.Reserved
}

// WithDelta returns the balance after applying the deltas, or an invariant
// violation when either bucket would go negative or overflow.
func (b ItemBalance) WithDelta(availableDelta int64, reservedDelta int64) (ItemBalance, error) {
	if addOverflows(b.Available, availableDelta) || addOverflows(b.Reserved, reservedDelta) {
		return ItemBalance{}, &InvariantViolationError{
			Key:     b.Key(),
			Message: fmt.Sprintf("delta (%d, %d) overflows available=%d reserved=%d", availableDelta, reservedDelta, b.Available, b.Reserved),
		}
	}
	next := b
	next.Available = b.Available + availableDelta
	next.Reserved = b.Reserved + reservedDelta
	if next.Available < 0 || next.Reserved < 0 {
		return ItemBalance{}, &InvariantViolationError{
			Key:     b.Key(),
			Message: fmt.Sprintf("delta (%d, %d) would leave available=%d reserved=%d", availableDelta, reservedDelta, next.Available, next.Reserved),
		}
	}
	return next, nil
}

func addOverflows(value int64, delta int64) bool {
	if delta > 0 {
		return value > math.MaxInt64-delta
	}
	return value < math.MinInt64-delta
}

type Reservation struct {
	ID          string
	TenantID    string
	ItemID      string
	OrderID     string
	Quantity    int64
	Status      ReservationStatus
	Reason      string
	PerformedBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	ResolvedAt  *time.Time
}

func (r Reservation) Key() BalanceKey {
	return BalanceKey{TenantID: r.TenantID, ItemID: r.ItemID}
}

// ExpiredAt reports whether the reservation is ACTIVE and past its TTL at now.
func (r Reservation) ExpiredAt(now time.Time) bool {
	return r.Status == ReservationStatusActive && r.ExpiresAt.Before(now)
}

type StockTransaction struct {
	ID            int64
	TenantID      string
	ItemID        string
	Type          TransactionType
	Quantity      int64
	PrevAvailable int64
	NewAvailable  int64
	PrevReserved  int64
	NewReserved   int64
	ReservationID string
	ReferenceID   string
	ReferenceType string
	Reason        string
	PerformedBy   string
	CreatedAt     time.Time
}

// newTransaction builds the ledger row documenting the move from prev to next.
func newTransaction(txType TransactionType, quantity int64, prev ItemBalance, next ItemBalance) StockTransaction {
	return StockTransaction{
		TenantID:      prev.TenantID,
		ItemID:        prev.ItemID,
		Type:          txType,
		Quantity:      quantity,
		PrevAvailable: prev.Available,
		NewAvailable:  next.Available,
		PrevReserved:  prev.Reserved,
		NewReserved:   next.Reserved,
	}
}

type PageRequest struct {
	Limit  int
	Offset int
}

func (p PageRequest) Normalize() PageRequest {
	out := p
	if out.Limit <= 0 {
		out.Limit = 50
	}
	if out.Limit > 500 {
		out.Limit = 500
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

type LedgerPage struct {
	Items   []StockTransaction
	Total   int
	Limit   int
	Offset  int
	HasNext bool
}
