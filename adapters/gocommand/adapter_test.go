package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	inventory "github.com/goliatone/go-inventory"
	inventorycommand "github.com/goliatone/go-inventory/command"
	"github.com/goliatone/go-inventory/core"
	inventoryquery "github.com/goliatone/go-inventory/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type okMessage struct{}

func (okMessage) Type() string { return "inventory.command.test_ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "inventory.command.test_fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "inventory.command.test_test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "inventory.command.test_queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("inventory.command.test_queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

func TestRegisterInventoryDispatchesThroughFacade(t *testing.T) {
	svc, err := inventory.NewService(inventory.Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := inventory.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	adapter := NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := RegisterInventory(adapter, facade)
	if err != nil {
		t.Fatalf("register inventory: %v", err)
	}
	defer func() {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
	}()
	if len(subscriptions) != 9 {
		t.Fatalf("expected 9 subscriptions, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	if err := Dispatch(ctx, inventorycommand.AdjustStockMessage{Request: core.AdjustStockRequest{
		TenantID: "t1", ItemID: "sku-1", Type: core.TransactionTypeStockIn, Quantity: 8,
	}}); err != nil {
		t.Fatalf("dispatch adjust: %v", err)
	}
	if err := Dispatch(ctx, inventorycommand.CreateReservationMessage{Request: core.ReserveRequest{
		TenantID: "t1", ItemID: "sku-1", OrderID: "order-1", Quantity: 3,
	}}); err != nil {
		t.Fatalf("dispatch reserve: %v", err)
	}

	availability, err := Query[inventoryquery.GetAvailabilityMessage, core.Availability](ctx, inventoryquery.GetAvailabilityMessage{
		TenantID: "t1",
		ItemID:   "sku-1",
	})
	if err != nil {
		t.Fatalf("query availability: %v", err)
	}
	if availability.Available != 5 || availability.Reserved != 3 {
		t.Fatalf("unexpected availability after dispatch: %#v", availability)
	}

	rows, err := Query[inventoryquery.ListReferenceLedgerMessage, []core.StockTransaction](ctx, inventoryquery.ListReferenceLedgerMessage{
		TenantID:    "t1",
		ReferenceID: "order-1",
	})
	if err != nil {
		t.Fatalf("query reference ledger: %v", err)
	}
	if len(rows) != 1 || rows[0].Type != core.TransactionTypeReserve {
		t.Fatalf("expected single RESERVE row for order-1, got %#v", rows)
	}
}

func TestRegisterInventoryRequiresFacade(t *testing.T) {
	if _, err := RegisterInventory(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected missing facade error")
	}
}
