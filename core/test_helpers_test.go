package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start.UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) IDGenerator {
	var counter atomic.Int64
	return func() string {
		return fmt.Sprintf("%s_%d", prefix, counter.Add(1))
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(WithMemoryClock(clock.Now), WithMemoryLockTimeout(time.Second))
	base := []Option{
		WithStore(store),
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs("res")),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store, clock
}

func seedStock(t *testing.T, svc *Service, tenantID string, itemID string, quantity int64) {
	t.Helper()
	_, err := svc.AdjustStock(context.Background(), AdjustStockRequest{
		TenantID:      tenantID,
		ItemID:        itemID,
		Type:          TransactionTypeStockIn,
		Quantity:      quantity,
		ReferenceID:   "seed",
		ReferenceType: "TEST",
		PerformedBy:   "test",
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func mustBalance(t *testing.T, svc *Service, tenantID string, itemID string) ItemBalance {
	t.Helper()
	balance, err := svc.GetBalance(context.Background(), tenantID, itemID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return balance
}

func assertBalance(t *testing.T, svc *Service, tenantID string, itemID string, available int64, reserved int64) {
	t.Helper()
	balance := mustBalance(t, svc, tenantID, itemID)
	if balance.Available != available || balance.Reserved != reserved {
		t.Fatalf("expected balance {available:%d reserved:%d}, got {available:%d reserved:%d}",
			available, reserved, balance.Available, balance.Reserved)
	}
}

func ledgerFor(t *testing.T, svc *Service, tenantID string, itemID string) []StockTransaction {
	t.Helper()
	page, err := svc.ListItemLedger(context.Background(), tenantID, itemID, PageRequest{Limit: 500})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	return page.Items
}

func countLedgerType(entries []StockTransaction, txType TransactionType) int {
	count := 0
	for _, entry := range entries {
		if entry.Type == txType {
			count++
		}
	}
	return count
}

// conflictingStore fails the first n units of work with a ConflictError.
type conflictingStore struct {
	Store
	remaining atomic.Int32
	calls     atomic.Int32
}

func newConflictingStore(base Store, failures int) *conflictingStore {
	store := &conflictingStore{Store: base}
	store.remaining.Store(int32(failures))
	return store
}

func (s *conflictingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error {
	s.calls.Add(1)
	if s.remaining.Add(-1) >= 0 {
		return &ConflictError{Entity: "item_balance", ID: "forced"}
	}
	return s.Store.RunInTx(ctx, fn)
}

type recordingBalanceCache struct {
	mu   sync.Mutex
	keys []BalanceKey
	err  error
}

func (c *recordingBalanceCache) InvalidateBalance(_ context.Context, key BalanceKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	return c.err
}

func (c *recordingBalanceCache) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *recordingBalanceCache) invalidated() []BalanceKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]BalanceKey(nil), c.keys...)
}
