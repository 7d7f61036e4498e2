package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-inventory/core"
)

type MutatingService interface {
	Reserve(ctx context.Context, req core.ReserveRequest) (core.Reservation, error)
	Confirm(ctx context.Context, req core.ConfirmRequest) (core.Reservation, error)
	Release(ctx context.Context, req core.ReleaseRequest) (core.Reservation, error)
	AdjustStock(ctx context.Context, req core.AdjustStockRequest) (core.AdjustStockResult, error)
}

type SweepRunner interface {
	SweepExpired(ctx context.Context) (core.SweepResult, error)
	SweepStale(ctx context.Context) (core.SweepResult, error)
}

type CreateReservationCommand struct {
	service MutatingService
}

func NewCreateReservationCommand(service MutatingService) *CreateReservationCommand {
	return &CreateReservationCommand{service: service}
}

func (c *CreateReservationCommand) Execute(ctx context.Context, msg CreateReservationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reservation service is required")
	}
	out, err := c.service.Reserve(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ConfirmReservationCommand struct {
	service MutatingService
}

func NewConfirmReservationCommand(service MutatingService) *ConfirmReservationCommand {
	return &ConfirmReservationCommand{service: service}
}

func (c *ConfirmReservationCommand) Execute(ctx context.Context, msg ConfirmReservationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: confirm service is required")
	}
	out, err := c.service.Confirm(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReleaseReservationCommand struct {
	service MutatingService
}

func NewReleaseReservationCommand(service MutatingService) *ReleaseReservationCommand {
	return &ReleaseReservationCommand{service: service}
}

func (c *ReleaseReservationCommand) Execute(ctx context.Context, msg ReleaseReservationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: release service is required")
	}
	out, err := c.service.Release(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AdjustStockCommand struct {
	service MutatingService
}

func NewAdjustStockCommand(service MutatingService) *AdjustStockCommand {
	return &AdjustStockCommand{service: service}
}

func (c *AdjustStockCommand) Execute(ctx context.Context, msg AdjustStockMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: stock service is required")
	}
	out, err := c.service.AdjustStock(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SweepReservationsCommand struct {
	sweeper SweepRunner
}

func NewSweepReservationsCommand(sweeper SweepRunner) *SweepReservationsCommand {
	return &SweepReservationsCommand{sweeper: sweeper}
}

func (c *SweepReservationsCommand) Execute(ctx context.Context, msg SweepReservationsMessage) error {
	if c == nil || c.sweeper == nil {
		return commandDependencyError("command: reservation sweeper is required")
	}
	var (
		out core.SweepResult
		err error
	)
	if normalizeSweepMode(msg.Mode) == SweepModeFallback {
		out, err = c.sweeper.SweepStale(ctx)
	} else {
		out, err = c.sweeper.SweepExpired(ctx)
	}
	storeResult(ctx, out)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
