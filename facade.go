package inventory

import (
	"fmt"

	inventorycommand "github.com/goliatone/go-inventory/command"
	"github.com/goliatone/go-inventory/core"
	inventoryquery "github.com/goliatone/go-inventory/query"
)

type CommandQueryService interface {
	inventorycommand.MutatingService
	inventoryquery.AvailabilityReader
	inventoryquery.ReservationReader
	inventoryquery.LedgerReader
}

type Commands struct {
	CreateReservation  *inventorycommand.CreateReservationCommand
	ConfirmReservation *inventorycommand.ConfirmReservationCommand
	ReleaseReservation *inventorycommand.ReleaseReservationCommand
	AdjustStock        *inventorycommand.AdjustStockCommand
	SweepReservations  *inventorycommand.SweepReservationsCommand
}

type Queries struct {
	GetAvailability     *inventoryquery.GetAvailabilityQuery
	GetReservation      *inventoryquery.GetReservationQuery
	ListItemLedger      *inventoryquery.ListItemLedgerQuery
	ListReferenceLedger *inventoryquery.ListReferenceLedgerQuery
}

type Facade struct {
	service  CommandQueryService
	sweeper  inventorycommand.SweepRunner
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	sweeper inventorycommand.SweepRunner
}

func WithSweepRunner(sweeper inventorycommand.SweepRunner) FacadeOption {
	return func(options *facadeOptions) {
		options.sweeper = sweeper
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("inventory: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	sweeper := cfg.sweeper
	if sweeper == nil {
		resolved, err := resolveSweeper(service)
		if err != nil {
			return nil, err
		}
		sweeper = resolved
	}

	facade := &Facade{service: service, sweeper: sweeper}
	facade.commands = Commands{
		CreateReservation:  inventorycommand.NewCreateReservationCommand(service),
		ConfirmReservation: inventorycommand.NewConfirmReservationCommand(service),
		ReleaseReservation: inventorycommand.NewReleaseReservationCommand(service),
		AdjustStock:        inventorycommand.NewAdjustStockCommand(service),
		SweepReservations:  inventorycommand.NewSweepReservationsCommand(sweeper),
	}
	facade.queries = Queries{
		GetAvailability:     inventoryquery.NewGetAvailabilityQuery(service),
		GetReservation:      inventoryquery.NewGetReservationQuery(service),
		ListItemLedger:      inventoryquery.NewListItemLedgerQuery(service),
		ListReferenceLedger: inventoryquery.NewListReferenceLedgerQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Sweeper() inventorycommand.SweepRunner {
	if f == nil {
		return nil
	}
	return f.sweeper
}

// resolveSweeper builds a sweeper over the concrete service. Other service
// implementations get no sweep command unless one is passed explicitly.
func resolveSweeper(service CommandQueryService) (inventorycommand.SweepRunner, error) {
	if runner, ok := service.(inventorycommand.SweepRunner); ok {
		return runner, nil
	}
	concrete, ok := service.(*core.Service)
	if !ok || concrete == nil {
		return nil, nil
	}
	sweeper, err := core.NewSweeper(concrete, core.WithSweeperConfig(concrete.Config().Sweeper))
	if err != nil {
		return nil, err
	}
	return sweeper, nil
}
