package command

import (
	"strings"

	"github.com/goliatone/go-inventory/core"
)

const (
	TypeCreateReservation  = "inventory.command.reservation.create"
	TypeConfirmReservation = "inventory.command.reservation.confirm"
	TypeReleaseReservation = "inventory.command.reservation.release"
	TypeAdjustStock        = "inventory.command.stock.adjust"
	TypeSweepReservations  = "inventory.command.reservations.sweep"
)

const (
	SweepModePrimary  = "primary"
	SweepModeFallback = "fallback"
)

type CreateReservationMessage struct {
	Request core.ReserveRequest
}

func (CreateReservationMessage) Type() string { return TypeCreateReservation }

func (m CreateReservationMessage) Validate() error {
	if err := validateKey(m.Request.TenantID, m.Request.ItemID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.OrderID) == "" {
		return commandValidationError("order_id", "order id is required")
	}
	if m.Request.Quantity <= 0 {
		return commandValidationError("quantity", "quantity must be positive")
	}
	if m.Request.TTL < 0 {
		return commandValidationError("ttl", "ttl must not be negative")
	}
	return nil
}

type ConfirmReservationMessage struct {
	Request core.ConfirmRequest
}

func (ConfirmReservationMessage) Type() string { return TypeConfirmReservation }

func (m ConfirmReservationMessage) Validate() error {
	return validateReservationRef(m.Request.TenantID, m.Request.ReservationID)
}

type ReleaseReservationMessage struct {
	Request core.ReleaseRequest
}

func (ReleaseReservationMessage) Type() string { return TypeReleaseReservation }

func (m ReleaseReservationMessage) Validate() error {
	return validateReservationRef(m.Request.TenantID, m.Request.ReservationID)
}

type AdjustStockMessage struct {
	Request core.AdjustStockRequest
}

func (AdjustStockMessage) Type() string { return TypeAdjustStock }

func (m AdjustStockMessage) Validate() error {
	if err := validateKey(m.Request.TenantID, m.Request.ItemID); err != nil {
		return err
	}
	txType := core.TransactionType(strings.ToUpper(strings.TrimSpace(string(m.Request.Type))))
	if !txType.Inbound() && !txType.Outbound() {
		return commandValidationError("type", "type must be a stock adjustment type")
	}
	if m.Request.Quantity <= 0 {
		return commandValidationError("quantity", "quantity must be positive")
	}
	return nil
}

// SweepReservationsMessage runs one expiry pass. An empty mode runs the
// primary pass.
type SweepReservationsMessage struct {
	Mode string
}

func (SweepReservationsMessage) Type() string { return TypeSweepReservations }

func (m SweepReservationsMessage) Validate() error {
	switch normalizeSweepMode(m.Mode) {
	case SweepModePrimary, SweepModeFallback:
		return nil
	default:
		return commandValidationError("mode", "mode must be primary or fallback")
	}
}

func normalizeSweepMode(mode string) string {
	trimmed := strings.ToLower(strings.TrimSpace(mode))
	if trimmed == "" {
		return SweepModePrimary
	}
	return trimmed
}

func validateKey(tenantID string, itemID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(itemID) == "" {
		return commandValidationError("item_id", "item id is required")
	}
	return nil
}

func validateReservationRef(tenantID string, reservationID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(reservationID) == "" {
		return commandValidationError("reservation_id", "reservation id is required")
	}
	return nil
}
