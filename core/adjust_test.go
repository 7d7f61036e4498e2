package core

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestAdjustStockInboundCreatesBalance(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	result, err := svc.AdjustStock(ctx, AdjustStockRequest{
		TenantID:      "t1",
		ItemID:        "sku-1",
		Type:          "stock_in",
		Quantity:      12,
		ReferenceID:   "po-77",
		ReferenceType: "PURCHASE_ORDER",
		PerformedBy:   "user:ana",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if result.Balance.Available != 12 || result.Balance.Reserved != 0 || result.Balance.Version != 1 {
		t.Fatalf("unexpected balance %#v", result.Balance)
	}
	entry := result.Transaction
	if entry.ID == 0 || entry.Type != TransactionTypeStockIn {
		t.Fatalf("expected recorded STOCK_IN row, got %#v", entry)
	}
	if entry.PrevAvailable != 0 || entry.NewAvailable != 12 || entry.PrevReserved != 0 || entry.NewReserved != 0 {
		t.Fatalf("unexpected before/after snapshot %#v", entry)
	}
	if !entry.CreatedAt.Equal(clock.Now()) {
		t.Fatalf("expected ledger timestamp from the service clock, got %s", entry.CreatedAt)
	}

	rows, err := svc.ListReferenceLedger(ctx, "t1", "po-77")
	if err != nil {
		t.Fatalf("list reference ledger: %v", err)
	}
	if len(rows) != 1 || rows[0].ReferenceType != "PURCHASE_ORDER" || rows[0].PerformedBy != "user:ana" {
		t.Fatalf("expected one attributed row for po-77, got %#v", rows)
	}
}

func TestAdjustStockOutboundTypes(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 20)

	steps := []struct {
		txType TransactionType
		qty    int64
		want   int64
	}{
		{txType: TransactionTypeStockOut, qty: 3, want: 17},
		{txType: TransactionTypeAdjustOut, qty: 2, want: 15},
		{txType: TransactionTypeTransferOut, qty: 5, want: 10},
		{txType: TransactionTypeAdjustIn, qty: 1, want: 11},
		{txType: TransactionTypeTransferIn, qty: 4, want: 15},
	}
	for _, step := range steps {
		result, err := svc.AdjustStock(ctx, AdjustStockRequest{TenantID: "t1", ItemID: "sku-1", Type: step.txType, Quantity: step.qty})
		if err != nil {
			t.Fatalf("%s: %v", step.txType, err)
		}
		if result.Balance.Available != step.want {
			t.Fatalf("%s: expected available %d, got %d", step.txType, step.want, result.Balance.Available)
		}
	}
	if got := len(ledgerFor(t, svc, "t1", "sku-1")); got != len(steps)+1 {
		t.Fatalf("expected one ledger row per adjustment, got %d", got)
	}
}

func TestAdjustStockOutboundLeavesReservedUntouched(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 10)
	if _, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 6}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, err := svc.AdjustStock(ctx, AdjustStockRequest{TenantID: "t1", ItemID: "sku-1", Type: TransactionTypeStockOut, Quantity: 5})
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %T: %v", err, err)
	}
	if insufficient.Available != 4 || insufficient.Requested != 5 {
		t.Fatalf("unexpected insufficient details %#v", insufficient)
	}

	if _, err := svc.AdjustStock(ctx, AdjustStockRequest{TenantID: "t1", ItemID: "sku-1", Type: TransactionTypeStockOut, Quantity: 4}); err != nil {
		t.Fatalf("stock out within available: %v", err)
	}
	assertBalance(t, svc, "t1", "sku-1", 0, 6)
}

func TestAdjustStockOutboundUnknownItem(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.AdjustStock(context.Background(), AdjustStockRequest{TenantID: "t1", ItemID: "ghost", Type: TransactionTypeStockOut, Quantity: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for outbound on unknown item, got %v", err)
	}
}

func TestAdjustStockValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	cases := []struct {
		name  string
		req   AdjustStockRequest
		field string
	}{
		{name: "missing tenant", req: AdjustStockRequest{ItemID: "sku-1", Type: TransactionTypeStockIn, Quantity: 1}, field: "tenant_id"},
		{name: "missing item", req: AdjustStockRequest{TenantID: "t1", Type: TransactionTypeStockIn, Quantity: 1}, field: "item_id"},
		{name: "reservation type", req: AdjustStockRequest{TenantID: "t1", ItemID: "sku-1", Type: TransactionTypeReserve, Quantity: 1}, field: "type"},
		{name: "unknown type", req: AdjustStockRequest{TenantID: "t1", ItemID: "sku-1", Type: "SHRINKAGE", Quantity: 1}, field: "type"},
		{name: "zero quantity", req: AdjustStockRequest{TenantID: "t1", ItemID: "sku-1", Type: TransactionTypeStockIn}, field: "quantity"},
		{name: "negative quantity", req: AdjustStockRequest{TenantID: "t1", ItemID: "sku-1", Type: TransactionTypeStockIn, Quantity: -3}, field: "quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AdjustStock(context.Background(), tc.req)
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
			if validation.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, validation.Field)
			}
		})
	}
}

func TestListItemLedgerPaging(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	for i := 0; i < 5; i++ {
		seedStock(t, svc, "t1", "sku-1", 1)
	}

	page, err := svc.ListItemLedger(ctx, "t1", "sku-1", PageRequest{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || !page.HasNext {
		t.Fatalf("unexpected page %#v", page)
	}
	if page.Items[0].NewAvailable != 3 || page.Items[1].NewAvailable != 4 {
		t.Fatalf("expected oldest-first ordering, got %#v", page.Items)
	}

	last, err := svc.ListItemLedger(ctx, "t1", "sku-1", PageRequest{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("list last page: %v", err)
	}
	if len(last.Items) != 1 || last.HasNext {
		t.Fatalf("expected final page of one row, got %#v", last)
	}
}

func TestAdjustStockInboundOverflowIsValidationError(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 5)

	_, err := svc.AdjustStock(ctx, AdjustStockRequest{TenantID: "t1", ItemID: "sku-1", Type: TransactionTypeStockIn, Quantity: math.MaxInt64})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if validation.Field != "quantity" {
		t.Fatalf("expected quantity field, got %q", validation.Field)
	}
	if errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("inbound overflow must not report insufficient stock")
	}
	assertBalance(t, svc, "t1", "sku-1", 5, 0)
	if got := len(ledgerFor(t, svc, "t1", "sku-1")); got != 1 {
		t.Fatalf("expected only the seed row, got %d", got)
	}

	if _, err := svc.AdjustStock(ctx, AdjustStockRequest{TenantID: "t1", ItemID: "sku-1", Type: TransactionTypeStockIn, Quantity: math.MaxInt64 - 5}); err != nil {
		t.Fatalf("inbound up to the limit: %v", err)
	}
	assertBalance(t, svc, "t1", "sku-1", math.MaxInt64, 0)
}

func TestItemBalanceWithDeltaRejectsOverflow(t *testing.T) {
	balance := ItemBalance{TenantID: "t1", ItemID: "sku-1", Available: math.MaxInt64 - 1, Reserved: 2}
	if _, err := balance.WithDelta(2, 0); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation on available overflow, got %v", err)
	}
	if _, err := balance.WithDelta(0, math.MaxInt64); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation on reserved overflow, got %v", err)
	}
	next, err := balance.WithDelta(1, -2)
	if err != nil {
		t.Fatalf("apply in-range delta: %v", err)
	}
	if next.Available != math.MaxInt64 || next.Reserved != 0 {
		t.Fatalf("unexpected balance %#v", next)
	}
}
