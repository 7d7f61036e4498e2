package query

import (
	"strings"

	"github.com/goliatone/go-inventory/core"
)

const (
	TypeGetAvailability     = "inventory.query.availability.get"
	TypeGetReservation      = "inventory.query.reservation.get"
	TypeListItemLedger      = "inventory.query.ledger.item"
	TypeListReferenceLedger = "inventory.query.ledger.reference"
)

type GetAvailabilityMessage struct {
	TenantID string
	ItemID   string
}

func (GetAvailabilityMessage) Type() string { return TypeGetAvailability }

func (m GetAvailabilityMessage) Validate() error {
	return validateKey(m.TenantID, m.ItemID)
}

type GetReservationMessage struct {
	TenantID      string
	ReservationID string
}

func (GetReservationMessage) Type() string { return TypeGetReservation }

func (m GetReservationMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.ReservationID) == "" {
		return queryValidationError("reservation_id", "reservation id is required")
	}
	return nil
}

type ListItemLedgerMessage struct {
	TenantID string
	ItemID   string
	Page     core.PageRequest
}

func (ListItemLedgerMessage) Type() string { return TypeListItemLedger }

func (m ListItemLedgerMessage) Validate() error {
	if err := validateKey(m.TenantID, m.ItemID); err != nil {
		return err
	}
	if m.Page.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Page.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}

type ListReferenceLedgerMessage struct {
	TenantID    string
	ReferenceID string
}

func (ListReferenceLedgerMessage) Type() string { return TypeListReferenceLedger }

func (m ListReferenceLedgerMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.ReferenceID) == "" {
		return queryValidationError("reference_id", "reference id is required")
	}
	return nil
}

func validateKey(tenantID string, itemID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(itemID) == "" {
		return queryValidationError("item_id", "item id is required")
	}
	return nil
}
