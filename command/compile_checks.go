package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateReservationMessage]  = (*CreateReservationCommand)(nil)
	_ gocmd.Commander[ConfirmReservationMessage] = (*ConfirmReservationCommand)(nil)
	_ gocmd.Commander[ReleaseReservationMessage] = (*ReleaseReservationCommand)(nil)
	_ gocmd.Commander[AdjustStockMessage]        = (*AdjustStockCommand)(nil)
	_ gocmd.Commander[SweepReservationsMessage]  = (*SweepReservationsCommand)(nil)
)
