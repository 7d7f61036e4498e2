package query

import (
	"context"

	"github.com/goliatone/go-inventory/core"
)

type AvailabilityReader interface {
	GetAvailability(ctx context.Context, tenantID string, itemID string) (core.Availability, error)
}

type ReservationReader interface {
	GetReservation(ctx context.Context, tenantID string, reservationID string) (core.Reservation, error)
}

type LedgerReader interface {
	ListItemLedger(ctx context.Context, tenantID string, itemID string, page core.PageRequest) (core.LedgerPage, error)
	ListReferenceLedger(ctx context.Context, tenantID string, referenceID string) ([]core.StockTransaction, error)
}

type GetAvailabilityQuery struct {
	reader AvailabilityReader
}

func NewGetAvailabilityQuery(reader AvailabilityReader) *GetAvailabilityQuery {
	return &GetAvailabilityQuery{reader: reader}
}

func (q *GetAvailabilityQuery) Query(ctx context.Context, msg GetAvailabilityMessage) (core.Availability, error) {
	if q == nil || q.reader == nil {
		return core.Availability{}, queryDependencyError("query: availability reader is required")
	}
	return q.reader.GetAvailability(ctx, msg.TenantID, msg.ItemID)
}

type GetReservationQuery struct {
	reader ReservationReader
}

func NewGetReservationQuery(reader ReservationReader) *GetReservationQuery {
	return &GetReservationQuery{reader: reader}
}

func (q *GetReservationQuery) Query(ctx context.Context, msg GetReservationMessage) (core.Reservation, error) {
	if q == nil || q.reader == nil {
		return core.Reservation{}, queryDependencyError("query: reservation reader is required")
	}
	return q.reader.GetReservation(ctx, msg.TenantID, msg.ReservationID)
}

type ListItemLedgerQuery struct {
	reader LedgerReader
}

func NewListItemLedgerQuery(reader LedgerReader) *ListItemLedgerQuery {
	return &ListItemLedgerQuery{reader: reader}
}

func (q *ListItemLedgerQuery) Query(ctx context.Context, msg ListItemLedgerMessage) (core.LedgerPage, error) {
	if q == nil || q.reader == nil {
		return core.LedgerPage{}, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.ListItemLedger(ctx, msg.TenantID, msg.ItemID, msg.Page)
}

type ListReferenceLedgerQuery struct {
	reader LedgerReader
}

func NewListReferenceLedgerQuery(reader LedgerReader) *ListReferenceLedgerQuery {
	return &ListReferenceLedgerQuery{reader: reader}
}

func (q *ListReferenceLedgerQuery) Query(ctx context.Context, msg ListReferenceLedgerMessage) ([]core.StockTransaction, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.ListReferenceLedger(ctx, msg.TenantID, msg.ReferenceID)
}
