package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-inventory/core"
)

var (
	_ gocmd.Querier[GetAvailabilityMessage, core.Availability]           = (*GetAvailabilityQuery)(nil)
	_ gocmd.Querier[GetReservationMessage, core.Reservation]             = (*GetReservationQuery)(nil)
	_ gocmd.Querier[ListItemLedgerMessage, core.LedgerPage]              = (*ListItemLedgerQuery)(nil)
	_ gocmd.Querier[ListReferenceLedgerMessage, []core.StockTransaction] = (*ListReferenceLedgerQuery)(nil)
)
