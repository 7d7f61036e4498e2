package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReserveThenConfirm_ScenarioA(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 10)

	reservation, err := svc.Reserve(ctx, ReserveRequest{
		TenantID: "t1",
		ItemID:   "sku-1",
		OrderID:  "orderA",
		Quantity: 3,
		TTL:      10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reservation.Status != ReservationStatusActive {
		t.Fatalf("expected ACTIVE reservation, got %s", reservation.Status)
	}
	assertBalance(t, svc, "t1", "sku-1", 7, 3)

	confirmed, err := svc.Confirm(ctx, ConfirmRequest{TenantID: "t1", ReservationID: reservation.ID})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != ReservationStatusConfirmed {
		t.Fatalf("expected CONFIRMED reservation, got %s", confirmed.Status)
	}
	if confirmed.ResolvedAt == nil {
		t.Fatalf("expected resolved_at to be set on confirm")
	}
	assertBalance(t, svc, "t1", "sku-1", 7, 0)

	entries := ledgerFor(t, svc, "t1", "sku-1")
	if countLedgerType(entries, TransactionTypeReserve) != 1 || countLedgerType(entries, TransactionTypeConfirm) != 1 {
		t.Fatalf("expected one RESERVE and one CONFIRM row, got %#v", entries)
	}
	last := entries[len(entries)-1]
	if last.PrevReserved != 3 || last.NewReserved != 0 || last.PrevAvailable != 7 || last.NewAvailable != 7 {
		t.Fatalf("unexpected confirm ledger snapshot: %#v", last)
	}
	if last.ReferenceType != ReferenceTypeOrder || last.ReferenceID != "orderA" || last.ReservationID != reservation.ID {
		t.Fatalf("expected confirm row to reference the order and reservation, got %#v", last)
	}
}

func TestReserveThenRelease_ScenarioB(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 7)

	reservation, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "orderB", Quantity: 5})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	assertBalance(t, svc, "t1", "sku-1", 2, 5)

	released, err := svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: reservation.ID, Reason: "cancelled"})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != ReservationStatusReleased {
		t.Fatalf("expected RELEASED reservation, got %s", released.Status)
	}
	if released.Reason != "cancelled" {
		t.Fatalf("expected release reason cancelled, got %q", released.Reason)
	}
	assertBalance(t, svc, "t1", "sku-1", 7, 0)

	entries := ledgerFor(t, svc, "t1", "sku-1")
	last := entries[len(entries)-1]
	if last.Type != TransactionTypeRelease || last.Reason != "cancelled" || last.Quantity != 5 {
		t.Fatalf("unexpected release ledger row: %#v", last)
	}
}

func TestReserveInsufficientStock_ScenarioC(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 7)
	before := ledgerFor(t, svc, "t1", "sku-1")

	_, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "orderC", Quantity: 20})
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %T: %v", err, err)
	}
	if insufficient.Available != 7 || insufficient.Requested != 20 {
		t.Fatalf("expected InsufficientStock(7, 20), got (%d, %d)", insufficient.Available, insufficient.Requested)
	}
	if IsRetryable(err) {
		t.Fatalf("insufficient stock must not be retryable")
	}
	assertBalance(t, svc, "t1", "sku-1", 7, 0)
	if after := ledgerFor(t, svc, "t1", "sku-1"); len(after) != len(before) {
		t.Fatalf("expected no ledger rows on failure, got %d new rows", len(after)-len(before))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 4)

	reservation, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 2})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	for i := 0; i < 3; i++ {
		released, releaseErr := svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: reservation.ID, Reason: "cancelled"})
		if releaseErr != nil {
			t.Fatalf("release %d: %v", i, releaseErr)
		}
		if released.Status != ReservationStatusReleased {
			t.Fatalf("expected RELEASED after call %d, got %s", i, released.Status)
		}
	}
	assertBalance(t, svc, "t1", "sku-1", 4, 0)
	if got := countLedgerType(ledgerFor(t, svc, "t1", "sku-1"), TransactionTypeRelease); got != 1 {
		t.Fatalf("expected exactly one RELEASE row, got %d", got)
	}
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 10)

	confirmed, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o-confirmed", Quantity: 1})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := svc.Confirm(ctx, ConfirmRequest{TenantID: "t1", ReservationID: confirmed.ID}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	released, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o-released", Quantity: 1})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: released.ID}); err != nil {
		t.Fatalf("release: %v", err)
	}

	tests := []struct {
		name string
		run  func() error
		from ReservationStatus
	}{
		{
			name: "confirm twice",
			run: func() error {
				_, err := svc.Confirm(ctx, ConfirmRequest{TenantID: "t1", ReservationID: confirmed.ID})
				return err
			},
			from: ReservationStatusConfirmed,
		},
		{
			name: "release confirmed",
			run: func() error {
				_, err := svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: confirmed.ID})
				return err
			},
			from: ReservationStatusConfirmed,
		},
		{
			name: "confirm released",
			run: func() error {
				_, err := svc.Confirm(ctx, ConfirmRequest{TenantID: "t1", ReservationID: released.ID})
				return err
			},
			from: ReservationStatusReleased,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			var transitionErr *InvalidStateTransitionError
			if !errors.As(err, &transitionErr) {
				t.Fatalf("expected InvalidStateTransitionError, got %T: %v", err, err)
			}
			if transitionErr.From != tt.from {
				t.Fatalf("expected from=%s, got %s", tt.from, transitionErr.From)
			}
		})
	}
	assertBalance(t, svc, "t1", "sku-1", 9, 0)
}

func TestReserveRejectsDuplicateActiveOrder(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 10)

	first, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 2})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	_, err = svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 2})
	var already *AlreadyReservedError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyReservedError, got %T: %v", err, err)
	}
	if already.ReservationID != first.ID {
		t.Fatalf("expected conflicting reservation %q, got %q", first.ID, already.ReservationID)
	}
	assertBalance(t, svc, "t1", "sku-1", 8, 2)

	if _, err := svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: first.ID}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 2}); err != nil {
		t.Fatalf("expected reserve to succeed once prior reservation is released: %v", err)
	}
}

func TestReservationLookupIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 5)

	reservation, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 1})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := svc.GetReservation(ctx, "t2", reservation.ID); ErrorKindOf(err) != ErrorKindNotFound {
		t.Fatalf("expected not found for foreign tenant, got %v", err)
	}
	if _, err := svc.Confirm(ctx, ConfirmRequest{TenantID: "t2", ReservationID: reservation.ID}); ErrorKindOf(err) != ErrorKindNotFound {
		t.Fatalf("expected not found when confirming across tenants, got %v", err)
	}
	if _, err := svc.Release(ctx, ReleaseRequest{TenantID: "t2", ReservationID: reservation.ID}); ErrorKindOf(err) != ErrorKindNotFound {
		t.Fatalf("expected not found when releasing across tenants, got %v", err)
	}
	assertBalance(t, svc, "t1", "sku-1", 4, 1)
}

func TestReserveValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 5)

	tests := []struct {
		name  string
		req   ReserveRequest
		field string
	}{
		{name: "missing tenant", req: ReserveRequest{ItemID: "sku-1", OrderID: "o", Quantity: 1}, field: "tenant_id"},
		{name: "missing item", req: ReserveRequest{TenantID: "t1", OrderID: "o", Quantity: 1}, field: "item_id"},
		{name: "missing order", req: ReserveRequest{TenantID: "t1", ItemID: "sku-1", Quantity: 1}, field: "order_id"},
		{name: "zero quantity", req: ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o"}, field: "quantity"},
		{name: "negative quantity", req: ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o", Quantity: -2}, field: "quantity"},
		{name: "ttl above max", req: ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o", Quantity: 1, TTL: 48 * time.Hour}, field: "ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Reserve(ctx, tt.req)
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
			if validation.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, validation.Field)
			}
		})
	}
	assertBalance(t, svc, "t1", "sku-1", 5, 0)
}

func TestReserveUnknownItemIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Reserve(context.Background(), ReserveRequest{TenantID: "t1", ItemID: "missing", OrderID: "o", Quantity: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReserveAppliesDefaultTTL(t *testing.T) {
	svc, _, clock := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 5)

	reservation, err := svc.Reserve(context.Background(), ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o", Quantity: 1})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	want := clock.Now().Add(svc.Config().Reservation.DefaultTTL)
	if !reservation.ExpiresAt.Equal(want) {
		t.Fatalf("expected expires_at %s, got %s", want, reservation.ExpiresAt)
	}
}

func TestConservationAcrossReserveReleaseExpire(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 20)
	sweeper, err := NewSweeper(svc)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}

	onHand := mustBalance(t, svc, "t1", "sku-1").OnHand()
	check := func(step string) {
		t.Helper()
		balance := mustBalance(t, svc, "t1", "sku-1")
		if balance.Available < 0 || balance.Reserved < 0 {
			t.Fatalf("%s: negative balance %#v", step, balance)
		}
		if balance.OnHand() != onHand {
			t.Fatalf("%s: expected on-hand %d, got %d", step, onHand, balance.OnHand())
		}
	}

	r1, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 4, TTL: time.Minute})
	if err != nil {
		t.Fatalf("reserve o1: %v", err)
	}
	check("reserve o1")
	if _, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o2", Quantity: 6, TTL: time.Hour}); err != nil {
		t.Fatalf("reserve o2: %v", err)
	}
	check("reserve o2")
	if _, err := svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: r1.ID}); err != nil {
		t.Fatalf("release o1: %v", err)
	}
	check("release o1")

	clock.Advance(2 * time.Hour)
	result, err := sweeper.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Expired != 1 {
		t.Fatalf("expected one expired reservation, got %#v", result)
	}
	check("expire o2")
	assertBalance(t, svc, "t1", "sku-1", 20, 0)
}

func TestLedgerCompleteness(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 10)

	r1, _ := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 2})
	r2, _ := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o2", Quantity: 3})
	_, _ = svc.Confirm(ctx, ConfirmRequest{TenantID: "t1", ReservationID: r1.ID})
	_, _ = svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: r2.ID})
	_, _ = svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o3", Quantity: 50})

	entries := ledgerFor(t, svc, "t1", "sku-1")
	if len(entries) != 5 {
		t.Fatalf("expected 5 ledger rows (seed + 4 mutations), got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		prev, next := entries[i-1], entries[i]
		if next.ID <= prev.ID {
			t.Fatalf("expected monotonic ledger ids, got %d after %d", next.ID, prev.ID)
		}
		if next.PrevAvailable != prev.NewAvailable || next.PrevReserved != prev.NewReserved {
			t.Fatalf("ledger chain broken between rows %d and %d: %#v -> %#v", prev.ID, next.ID, prev, next)
		}
	}
	final := mustBalance(t, svc, "t1", "sku-1")
	last := entries[len(entries)-1]
	if last.NewAvailable != final.Available || last.NewReserved != final.Reserved {
		t.Fatalf("expected last ledger row to match balance %#v, got %#v", final, last)
	}

	history, err := svc.ListReferenceLedger(ctx, "t1", "o1")
	if err != nil {
		t.Fatalf("list reference ledger: %v", err)
	}
	if len(history) != 2 || history[0].Type != TransactionTypeReserve || history[1].Type != TransactionTypeConfirm {
		t.Fatalf("expected RESERVE then CONFIRM for o1, got %#v", history)
	}
}

func TestMutationsInvalidateBalanceCache(t *testing.T) {
	ctx := context.Background()
	cache := &recordingBalanceCache{}
	svc, _, _ := newTestService(t, WithBalanceCache(cache))
	seedStock(t, svc, "t1", "sku-1", 5)

	reservation, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 1})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: reservation.ID}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: reservation.ID}); err != nil {
		t.Fatalf("second release: %v", err)
	}
	_, _ = svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o2", Quantity: 99})

	keys := cache.invalidated()
	if len(keys) != 3 {
		t.Fatalf("expected invalidations for seed, reserve and first release only, got %d", len(keys))
	}
	for _, key := range keys {
		if key != (BalanceKey{TenantID: "t1", ItemID: "sku-1"}) {
			t.Fatalf("unexpected invalidated key %#v", key)
		}
	}
}

func TestCacheInvalidationFailureIsReported(t *testing.T) {
	ctx := context.Background()
	cache := &recordingBalanceCache{}
	metrics := &captureMetricsRecorder{}
	svc, _, _ := newTestService(t, WithBalanceCache(cache), WithMetricsRecorder(metrics))
	seedStock(t, svc, "t1", "sku-1", 5)
	cache.failWith(errors.New("cache down"))

	reservation, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 1})
	var invalidation *CacheInvalidationError
	if !errors.As(err, &invalidation) {
		t.Fatalf("expected CacheInvalidationError, got %T: %v", err, err)
	}
	if ErrorKindOf(err) != ErrorKindCacheInvalidation || IsRetryable(err) {
		t.Fatalf("expected non-retryable cache invalidation kind, got %s", ErrorKindOf(err))
	}
	if invalidation.Key != (BalanceKey{TenantID: "t1", ItemID: "sku-1"}) {
		t.Fatalf("unexpected key %#v", invalidation.Key)
	}
	if reservation.ID == "" || reservation.Status != ReservationStatusActive {
		t.Fatalf("expected committed reservation alongside the error, got %#v", reservation)
	}
	assertBalance(t, svc, "t1", "sku-1", 4, 1)

	_, err = svc.Release(ctx, ReleaseRequest{TenantID: "t1", ReservationID: reservation.ID})
	if !errors.Is(err, ErrCacheInvalidation) {
		t.Fatalf("expected release to report cache invalidation failure, got %v", err)
	}
	assertBalance(t, svc, "t1", "sku-1", 5, 0)

	failures := 0
	counters, _ := metrics.snapshot()
	for _, counter := range counters {
		if counter.name == "inventory.cache.invalidation_failed" {
			failures += int(counter.value)
		}
	}
	if failures != 2 {
		t.Fatalf("expected two invalidation failure counts, got %d", failures)
	}
	if mapped := MapError(err); mapped == nil || mapped.TextCode != InventoryErrorCacheInvalidation {
		t.Fatalf("expected cache invalidation text code, got %#v", mapped)
	}
}

func TestGetAvailability(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	seedStock(t, svc, "t1", "sku-1", 9)
	if _, err := svc.Reserve(ctx, ReserveRequest{TenantID: "t1", ItemID: "sku-1", OrderID: "o1", Quantity: 4}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	availability, err := svc.GetAvailability(ctx, "t1", "sku-1")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if availability.Available != 5 || availability.Reserved != 4 || availability.OnHand != 9 {
		t.Fatalf("unexpected availability %#v", availability)
	}
	if _, err := svc.GetAvailability(ctx, "t1", "unknown"); ErrorKindOf(err) != ErrorKindNotFound {
		t.Fatalf("expected not found for unknown item, got %v", err)
	}
}
