package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type MemoryStoreOption func(*MemoryStore)

func WithMemoryLockTimeout(timeout time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if timeout > 0 {
			s.lockTimeout = timeout
		}
	}
}

func WithMemoryClock(clock Clock) MemoryStoreOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.Now = clock
		}
	}
}

type activeReservationKey struct {
	TenantID string
	ItemID   string
	OrderID  string
}

// MemoryStore keeps balances, reservations and the ledger in process memory.
// Each balance key has its own lock held for the lifetime of a unit of work;
// writes are staged and become visible only when the unit commits.
type MemoryStore struct {
	mu           sync.RWMutex
	balances     map[BalanceKey]ItemBalance
	reservations map[string]Reservation
	active       map[activeReservationKey]string
	ledger       []StockTransaction

	// ledgerSeq is held from a unit's first ledger row until it commits or
	// rolls back, so ledger ids are handed out in commit order.
	ledgerSeq    chan struct{}
	nextLedgerID int64

	locksMu     sync.Mutex
	locks       map[BalanceKey]chan struct{}
	lockTimeout time.Duration

	Now Clock
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	store := &MemoryStore{
		balances:     map[BalanceKey]ItemBalance{},
		reservations: map[string]Reservation{},
		active:       map[activeReservationKey]string{},
		ledgerSeq:    make(chan struct{}, 1),
		locks:        map[BalanceKey]chan struct{}{},
		lockTimeout:  defaultLockTimeout,
		Now:          defaultClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error {
	if s == nil {
		return fmt.Errorf("core: memory store is not configured")
	}
	if fn == nil {
		return fmt.Errorf("core: transaction function is required")
	}
	tx := &memoryTx{
		store:        s,
		held:         map[BalanceKey]chan struct{}{},
		balances:     map[BalanceKey]ItemBalance{},
		reservations: map[string]Reservation{},
	}
	defer tx.releaseLocks()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.commit(tx); err != nil {
		return err
	}
	tx.committed = true
	return nil
}

func (s *MemoryStore) GetBalance(_ context.Context, key BalanceKey) (ItemBalance, error) {
	if s == nil {
		return ItemBalance{}, fmt.Errorf("core: memory store is not configured")
	}
	key = key.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.balances[key]
	if !ok {
		return ItemBalance{}, balanceNotFound(key)
	}
	return balance, nil
}

func (s *MemoryStore) GetReservation(_ context.Context, id string) (Reservation, error) {
	if s == nil {
		return Reservation{}, fmt.Errorf("core: memory store is not configured")
	}
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	reservation, ok := s.reservations[id]
	if !ok {
		return Reservation{}, &NotFoundError{Entity: "reservation", ID: id}
	}
	return cloneReservation(reservation), nil
}

func (s *MemoryStore) ListExpiredReservations(_ context.Context, cutoff time.Time, limit int) ([]Reservation, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory store is not configured")
	}
	expired := s.expiredBefore(cutoff)
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *MemoryStore) ListStaleReservations(_ context.Context, cutoff time.Time, page PageRequest) ([]Reservation, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory store is not configured")
	}
	page = page.Normalize()
	expired := s.expiredBefore(cutoff)
	if page.Offset >= len(expired) {
		return []Reservation{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(expired) {
		end = len(expired)
	}
	return expired[page.Offset:end], nil
}

func (s *MemoryStore) expiredBefore(cutoff time.Time) []Reservation {
	s.mu.RLock()
	out := make([]Reservation, 0)
	for _, id := range s.active {
		reservation := s.reservations[id]
		if reservation.Status == ReservationStatusActive && reservation.ExpiresAt.Before(cutoff) {
			out = append(out, cloneReservation(reservation))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out
}

func (s *MemoryStore) ListByItem(_ context.Context, key BalanceKey, page PageRequest) (LedgerPage, error) {
	if s == nil {
		return LedgerPage{}, fmt.Errorf("core: memory store is not configured")
	}
	key = key.Normalize()
	page = page.Normalize()
	matched := s.filterLedger(func(entry StockTransaction) bool {
		return entry.TenantID == key.TenantID && entry.ItemID == key.ItemID
	})
	out := LedgerPage{
		Items:  []StockTransaction{},
		Total:  len(matched),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	if page.Offset < len(matched) {
		end := page.Offset + page.Limit
		if end > len(matched) {
			end = len(matched)
		}
		out.Items = matched[page.Offset:end]
	}
	out.HasNext = page.Offset+len(out.Items) < out.Total
	return out, nil
}

func (s *MemoryStore) ListByReference(_ context.Context, tenantID string, referenceID string) ([]StockTransaction, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	referenceID = strings.TrimSpace(referenceID)
	return s.filterLedger(func(entry StockTransaction) bool {
		return entry.TenantID == tenantID && entry.ReferenceID == referenceID
	}), nil
}

func (s *MemoryStore) filterLedger(match func(StockTransaction) bool) []StockTransaction {
	s.mu.RLock()
	out := make([]StockTransaction, 0)
	for _, entry := range s.ledger {
		if match(entry) {
			out = append(out, entry)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, balance := range tx.balances {
		if committed, ok := s.balances[key]; ok && committed.Version >= balance.Version && balance.Version > 0 {
			return &ConflictError{Entity: "item_balance", ID: key.String()}
		}
	}
	for _, reservation := range tx.reservations {
		if reservation.Status != ReservationStatusActive {
			continue
		}
		index := activeKeyOf(reservation)
		if holder, ok := s.active[index]; ok && holder != reservation.ID {
			return &AlreadyReservedError{Key: reservation.Key(), OrderID: reservation.OrderID, ReservationID: holder}
		}
	}

	for key, balance := range tx.balances {
		s.balances[key] = balance
	}
	for id, reservation := range tx.reservations {
		s.reservations[id] = reservation
		index := activeKeyOf(reservation)
		if reservation.Status == ReservationStatusActive {
			s.active[index] = id
		} else if s.active[index] == id {
			delete(s.active, index)
		}
	}
	s.ledger = append(s.ledger, tx.ledger...)
	return nil
}

func (s *MemoryStore) lockChannel(key BalanceKey) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func (s *MemoryStore) now() time.Time {
	if s == nil || s.Now == nil {
		return defaultClock()
	}
	return s.Now().UTC()
}

type memoryTx struct {
	store        *MemoryStore
	held         map[BalanceKey]chan struct{}
	balances     map[BalanceKey]ItemBalance
	reservations map[string]Reservation
	ledger       []StockTransaction

	sequenced bool
	seqStart  int64
	committed bool
}

func (tx *memoryTx) lock(ctx context.Context, key BalanceKey) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	ch := tx.store.lockChannel(key)
	timer := time.NewTimer(tx.store.lockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		tx.held[key] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &TimeoutError{Key: key}
	}
}

func (tx *memoryTx) acquireLedgerSeq(ctx context.Context, key BalanceKey) error {
	if tx.sequenced {
		return nil
	}
	timer := time.NewTimer(tx.store.lockTimeout)
	defer timer.Stop()

	select {
	case tx.store.ledgerSeq <- struct{}{}:
		tx.sequenced = true
		tx.seqStart = tx.store.nextLedgerID
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &TimeoutError{Key: key}
	}
}

func (tx *memoryTx) releaseLocks() {
	if tx.sequenced {
		if !tx.committed {
			tx.store.nextLedgerID = tx.seqStart
		}
		tx.sequenced = false
		<-tx.store.ledgerSeq
	}
	for key, ch := range tx.held {
		<-ch
		delete(tx.held, key)
	}
}

func (tx *memoryTx) current(key BalanceKey) (ItemBalance, bool) {
	if balance, ok := tx.balances[key]; ok {
		return balance, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	balance, ok := tx.store.balances[key]
	return balance, ok
}

func (tx *memoryTx) LoadBalance(ctx context.Context, key BalanceKey) (ItemBalance, error) {
	key = key.Normalize()
	if err := tx.lock(ctx, key); err != nil {
		return ItemBalance{}, err
	}
	balance, ok := tx.current(key)
	if !ok {
		return ItemBalance{}, balanceNotFound(key)
	}
	return balance, nil
}

func (tx *memoryTx) EnsureBalance(ctx context.Context, key BalanceKey) (ItemBalance, error) {
	key = key.Normalize()
	if err := tx.lock(ctx, key); err != nil {
		return ItemBalance{}, err
	}
	if balance, ok := tx.current(key); ok {
		return balance, nil
	}
	now := tx.store.now()
	balance := ItemBalance{
		TenantID:  key.TenantID,
		ItemID:    key.ItemID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx.balances[key] = balance
	return balance, nil
}

func (tx *memoryTx) ApplyDelta(ctx context.Context, current ItemBalance, availableDelta int64, reservedDelta int64) (ItemBalance, error) {
	key := current.Key().Normalize()
	if err := tx.lock(ctx, key); err != nil {
		return ItemBalance{}, err
	}
	stored, ok := tx.current(key)
	if !ok {
		return ItemBalance{}, balanceNotFound(key)
	}
	if stored.Version != current.Version {
		return ItemBalance{}, &ConflictError{
			Entity: "item_balance",
			ID:     key.String(),
			Cause:  fmt.Errorf("expected version %d, found %d", current.Version, stored.Version),
		}
	}
	next, err := stored.WithDelta(availableDelta, reservedDelta)
	if err != nil {
		return ItemBalance{}, err
	}
	next.Version = stored.Version + 1
	next.UpdatedAt = tx.store.now()
	tx.balances[key] = next
	return next, nil
}

func (tx *memoryTx) GetReservation(_ context.Context, id string) (Reservation, error) {
	id = strings.TrimSpace(id)
	if reservation, ok := tx.reservations[id]; ok {
		return cloneReservation(reservation), nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	reservation, ok := tx.store.reservations[id]
	if !ok {
		return Reservation{}, &NotFoundError{Entity: "reservation", ID: id}
	}
	return cloneReservation(reservation), nil
}

func (tx *memoryTx) FindActiveReservation(_ context.Context, key BalanceKey, orderID string) (Reservation, bool, error) {
	key = key.Normalize()
	index := activeReservationKey{TenantID: key.TenantID, ItemID: key.ItemID, OrderID: strings.TrimSpace(orderID)}
	for _, reservation := range tx.reservations {
		if reservation.Status == ReservationStatusActive && activeKeyOf(reservation) == index {
			return cloneReservation(reservation), true, nil
		}
	}

	tx.store.mu.RLock()
	id, ok := tx.store.active[index]
	reservation := tx.store.reservations[id]
	tx.store.mu.RUnlock()
	if !ok {
		return Reservation{}, false, nil
	}
	if staged, stagedOK := tx.reservations[id]; stagedOK && staged.Status != ReservationStatusActive {
		return Reservation{}, false, nil
	}
	return cloneReservation(reservation), true, nil
}

func (tx *memoryTx) CreateReservation(ctx context.Context, reservation Reservation) (Reservation, error) {
	reservation.ID = strings.TrimSpace(reservation.ID)
	if reservation.ID == "" {
		return Reservation{}, validationError("id", "reservation id is required")
	}
	if _, err := tx.GetReservation(ctx, reservation.ID); err == nil {
		return Reservation{}, &ConflictError{Entity: "reservation", ID: reservation.ID}
	}
	if reservation.Status == ReservationStatusActive {
		if existing, found, _ := tx.FindActiveReservation(ctx, reservation.Key(), reservation.OrderID); found {
			return Reservation{}, &AlreadyReservedError{Key: reservation.Key(), OrderID: reservation.OrderID, ReservationID: existing.ID}
		}
	}
	tx.reservations[reservation.ID] = cloneReservation(reservation)
	return cloneReservation(reservation), nil
}

func (tx *memoryTx) TransitionReservation(ctx context.Context, req TransitionRequest) (Reservation, error) {
	current, err := tx.GetReservation(ctx, req.ReservationID)
	if err != nil {
		return Reservation{}, err
	}
	if current.Status != req.From {
		return Reservation{}, &ConflictError{
			Entity: "reservation",
			ID:     current.ID,
			Cause:  fmt.Errorf("expected status %s, found %s", req.From, current.Status),
		}
	}
	if !reservationTransitionAllowed(req.From, req.To) {
		return Reservation{}, &InvalidStateTransitionError{ReservationID: current.ID, From: req.From, To: req.To}
	}
	at := req.At
	if at.IsZero() {
		at = tx.store.now()
	}
	current.Status = req.To
	current.UpdatedAt = at
	current.ResolvedAt = &at
	if req.Reason != "" {
		current.Reason = req.Reason
	}
	if req.PerformedBy != "" {
		current.PerformedBy = req.PerformedBy
	}
	tx.reservations[current.ID] = current
	return cloneReservation(current), nil
}

func (tx *memoryTx) RecordTransaction(ctx context.Context, entry StockTransaction) (StockTransaction, error) {
	if !entry.Type.Valid() {
		return StockTransaction{}, validationError("type", "unknown transaction type "+string(entry.Type))
	}
	if err := tx.acquireLedgerSeq(ctx, BalanceKey{TenantID: entry.TenantID, ItemID: entry.ItemID}); err != nil {
		return StockTransaction{}, err
	}
	tx.store.nextLedgerID++
	entry.ID = tx.store.nextLedgerID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = tx.store.now()
	}
	tx.ledger = append(tx.ledger, entry)
	return entry, nil
}

func activeKeyOf(reservation Reservation) activeReservationKey {
	return activeReservationKey{
		TenantID: reservation.TenantID,
		ItemID:   reservation.ItemID,
		OrderID:  reservation.OrderID,
	}
}

func cloneReservation(reservation Reservation) Reservation {
	out := reservation
	if reservation.ResolvedAt != nil {
		resolved := *reservation.ResolvedAt
		out.ResolvedAt = &resolved
	}
	return out
}

func balanceNotFound(key BalanceKey) error {
	return &NotFoundError{Entity: "item_balance", ID: key.String()}
}

var (
	_ Store                  = (*MemoryStore)(nil)
	_ LedgerReader           = (*MemoryStore)(nil)
	_ StaleReservationLister = (*MemoryStore)(nil)
	_ StoreTx                = (*memoryTx)(nil)
)
