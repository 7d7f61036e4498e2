package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-inventory/core"
	"github.com/uptrace/bun"
)

type itemBalanceRecord struct {
	bun.BaseModel `bun:"table:inventory_item_balances,alias:ib"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	ItemID    string    `bun:"item_id,notnull"`
	Available int64     `bun:"available,notnull"`
	Reserved  int64     `bun:"reserved,notnull"`
	Version   int64     `bun:"version,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *itemBalanceRecord) toDomain() core.ItemBalance {
	if r == nil {
		return core.ItemBalance{}
	}
	return core.ItemBalance{
		TenantID:  r.TenantID,
		ItemID:    r.ItemID,
		Available: r.Available,
		Reserved:  r.Reserved,
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type reservationRecord struct {
	bun.BaseModel `bun:"table:inventory_reservations,alias:ir"`

	ID          string     `bun:"id,pk"`
	TenantID    string     `bun:"tenant_id,notnull"`
	ItemID      string     `bun:"item_id,notnull"`
	OrderID     string     `bun:"order_id,notnull"`
	Quantity    int64      `bun:"quantity,notnull"`
	Status      string     `bun:"status,notnull"`
	Reason      string     `bun:"reason,notnull"`
	PerformedBy string     `bun:"performed_by,notnull"`
	ExpiresAt   time.Time  `bun:"expires_at,notnull"`
	ResolvedAt  *time.Time `bun:"resolved_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newReservationRecord(reservation core.Reservation) *reservationRecord {
	return &reservationRecord{
		ID:          strings.TrimSpace(reservation.ID),
		TenantID:    reservation.TenantID,
		ItemID:      reservation.ItemID,
		OrderID:     reservation.OrderID,
		Quantity:    reservation.Quantity,
		Status:      string(reservation.Status),
		Reason:      reservation.Reason,
		PerformedBy: reservation.PerformedBy,
		ExpiresAt:   reservation.ExpiresAt.UTC(),
		ResolvedAt:  cloneTimePointer(reservation.ResolvedAt),
		CreatedAt:   reservation.CreatedAt.UTC(),
		UpdatedAt:   reservation.UpdatedAt.UTC(),
	}
}

func (r *reservationRecord) toDomain() core.Reservation {
	if r == nil {
		return core.Reservation{}
	}
	return core.Reservation{
		ID:          r.ID,
		TenantID:    r.TenantID,
		ItemID:      r.ItemID,
		OrderID:     r.OrderID,
		Quantity:    r.Quantity,
		Status:      core.ReservationStatus(r.Status),
		Reason:      r.Reason,
		PerformedBy: r.PerformedBy,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		ExpiresAt:   r.ExpiresAt.UTC(),
		ResolvedAt:  cloneTimePointer(r.ResolvedAt),
	}
}

type stockTransactionRecord struct {
	bun.BaseModel `bun:"table:inventory_stock_transactions,alias:ist"`

	ID            int64     `bun:"id,pk,autoincrement"`
	TenantID      string    `bun:"tenant_id,notnull"`
	ItemID        string    `bun:"item_id,notnull"`
	Type          string    `bun:"type,notnull"`
	Quantity      int64     `bun:"quantity,notnull"`
	PrevAvailable int64     `bun:"prev_available,notnull"`
	NewAvailable  int64     `bun:"new_available,notnull"`
	PrevReserved  int64     `bun:"prev_reserved,notnull"`
	NewReserved   int64     `bun:"new_reserved,notnull"`
	ReservationID *string   `bun:"reservation_id"`
	ReferenceID   string    `bun:"reference_id,notnull"`
	ReferenceType string    `bun:"reference_type,notnull"`
	Reason        string    `bun:"reason,notnull"`
	PerformedBy   string    `bun:"performed_by,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newStockTransactionRecord(entry core.StockTransaction) *stockTransactionRecord {
	record := &stockTransactionRecord{
		TenantID:      entry.TenantID,
		ItemID:        entry.ItemID,
		Type:          string(entry.Type),
		Quantity:      entry.Quantity,
		PrevAvailable: entry.PrevAvailable,
		NewAvailable:  entry.NewAvailable,
		PrevReserved:  entry.PrevReserved,
		NewReserved:   entry.NewReserved,
		ReferenceID:   entry.ReferenceID,
		ReferenceType: entry.ReferenceType,
		Reason:        entry.Reason,
		PerformedBy:   entry.PerformedBy,
		CreatedAt:     entry.CreatedAt.UTC(),
	}
	if trimmed := strings.TrimSpace(entry.ReservationID); trimmed != "" {
		record.ReservationID = &trimmed
	}
	return record
}

func (r *stockTransactionRecord) toDomain() core.StockTransaction {
	if r == nil {
		return core.StockTransaction{}
	}
	entry := core.StockTransaction{
		ID:            r.ID,
		TenantID:      r.TenantID,
		ItemID:        r.ItemID,
		Type:          core.TransactionType(r.Type),
		Quantity:      r.Quantity,
		PrevAvailable: r.PrevAvailable,
		NewAvailable:  r.NewAvailable,
		PrevReserved:  r.PrevReserved,
		NewReserved:   r.NewReserved,
		ReferenceID:   r.ReferenceID,
		ReferenceType: r.ReferenceType,
		Reason:        r.Reason,
		PerformedBy:   r.PerformedBy,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.ReservationID != nil {
		entry.ReservationID = *r.ReservationID
	}
	return entry
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
