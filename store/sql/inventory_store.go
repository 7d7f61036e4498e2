package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-inventory/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const defaultLockTimeout = 5 * time.Second

type StoreOption func(*InventoryStore)

// WithLockTimeout bounds how long a unit of work waits on a balance row lock.
// Only postgres honours it; sqlite serialises writers on the connection.
func WithLockTimeout(timeout time.Duration) StoreOption {
	return func(s *InventoryStore) {
		if timeout > 0 {
			s.lockTimeout = timeout
		}
	}
}

func WithClock(clock core.Clock) StoreOption {
	return func(s *InventoryStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InventoryStore is the bun implementation of the balance store. Balance rows
// are locked with SELECT ... FOR UPDATE on postgres and every balance write is
// guarded by a version compare-and-set on all dialects.
type InventoryStore struct {
	db              *bun.DB
	balanceRepo     repository.Repository[*itemBalanceRecord]
	reservationRepo repository.Repository[*reservationRecord]
	lockRows        bool
	lockTimeout     time.Duration
	now             core.Clock
}

func NewInventoryStore(db *bun.DB, opts ...StoreOption) (*InventoryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	balanceRepo := repository.NewRepository[*itemBalanceRecord](db, itemBalanceHandlers())
	if validator, ok := balanceRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid item balance repository wiring: %w", err)
		}
	}
	reservationRepo := repository.NewRepository[*reservationRecord](db, reservationHandlers())
	if validator, ok := reservationRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid reservation repository wiring: %w", err)
		}
	}
	store := &InventoryStore{
		db:              db,
		balanceRepo:     balanceRepo,
		reservationRepo: reservationRepo,
		lockRows:        db.Dialect().Name() == dialect.PG,
		lockTimeout:     defaultLockTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *InventoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx core.StoreTx) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: inventory store is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: unit of work is required")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if s.lockRows && s.lockTimeout > 0 {
			statement := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, statement); err != nil {
				return err
			}
		}
		return fn(ctx, &storeTx{tx: tx, lockRows: s.lockRows, now: s.now})
	})
}

// LockTimeout is the row lock wait applied to each unit of work.
func (s *InventoryStore) LockTimeout() time.Duration {
	if s == nil {
		return 0
	}
	return s.lockTimeout
}

func (s *InventoryStore) GetBalance(ctx context.Context, key core.BalanceKey) (core.ItemBalance, error) {
	if s == nil || s.balanceRepo == nil {
		return core.ItemBalance{}, fmt.Errorf("sqlstore: inventory store is not configured")
	}
	key = key.Normalize()
	records, _, err := s.balanceRepo.List(ctx,
		repository.SelectBy("tenant_id", "=", key.TenantID),
		repository.SelectBy("item_id", "=", key.ItemID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ItemBalance{}, err
	}
	if len(records) == 0 {
		return core.ItemBalance{}, &core.NotFoundError{Entity: "item_balance", ID: key.String()}
	}
	return records[0].toDomain(), nil
}

func (s *InventoryStore) GetReservation(ctx context.Context, id string) (core.Reservation, error) {
	if s == nil || s.db == nil {
		return core.Reservation{}, fmt.Errorf("sqlstore: inventory store is not configured")
	}
	return getReservation(ctx, s.db, strings.TrimSpace(id))
}

// ListExpiredReservations returns ACTIVE reservations whose expiry is strictly
// before cutoff, oldest expiry first.
func (s *InventoryStore) ListExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]core.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listExpired(ctx, cutoff, limit, 0)
}

func (s *InventoryStore) ListStaleReservations(ctx context.Context, cutoff time.Time, page core.PageRequest) ([]core.Reservation, error) {
	page = page.Normalize()
	return s.listExpired(ctx, cutoff, page.Limit, page.Offset)
}

func (s *InventoryStore) listExpired(ctx context.Context, cutoff time.Time, limit int, offset int) ([]core.Reservation, error) {
	if s == nil || s.reservationRepo == nil {
		return nil, fmt.Errorf("sqlstore: inventory store is not configured")
	}
	records, _, err := s.reservationRepo.List(ctx,
		repository.SelectBy("status", "=", string(core.ReservationStatusActive)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.expires_at < ?", cutoff.UTC())
		}),
		repository.OrderBy("expires_at ASC"),
		repository.OrderBy("id ASC"),
		repository.SelectPaginate(limit, offset),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Reservation, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

type storeTx struct {
	tx       bun.Tx
	lockRows bool
	now      core.Clock
}

func (t *storeTx) LoadBalance(ctx context.Context, key core.BalanceKey) (core.ItemBalance, error) {
	key = key.Normalize()
	record := &itemBalanceRecord{}
	query := t.tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", key.TenantID).
		Where("?TableAlias.item_id = ?", key.ItemID).
		Limit(1)
	if t.lockRows {
		query = query.For("UPDATE")
	}
	if err := query.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ItemBalance{}, &core.NotFoundError{Entity: "item_balance", ID: key.String()}
		}
		return core.ItemBalance{}, translateLockError(err, key)
	}
	return record.toDomain(), nil
}

func (t *storeTx) EnsureBalance(ctx context.Context, key core.BalanceKey) (core.ItemBalance, error) {
	key = key.Normalize()
	now := t.clock()
	record := &itemBalanceRecord{
		ID:        uuid.NewString(),
		TenantID:  key.TenantID,
		ItemID:    key.ItemID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := t.tx.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id, item_id) DO NOTHING").
		Exec(ctx); err != nil {
		return core.ItemBalance{}, translateLockError(err, key)
	}
	return t.LoadBalance(ctx, key)
}

func (t *storeTx) ApplyDelta(ctx context.Context, current core.ItemBalance, availableDelta int64, reservedDelta int64) (core.ItemBalance, error) {
	key := current.Key().Normalize()
	next, err := current.WithDelta(availableDelta, reservedDelta)
	if err != nil {
		return core.ItemBalance{}, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = t.clock()

	res, err := t.tx.NewUpdate().
		Model((*itemBalanceRecord)(nil)).
		Set("available = ?", next.Available).
		Set("reserved = ?", next.Reserved).
		Set("version = ?", next.Version).
		Set("updated_at = ?", next.UpdatedAt).
		Where("tenant_id = ?", key.TenantID).
		Where("item_id = ?", key.ItemID).
		Where("version = ?", current.Version).
		Exec(ctx)
	if err != nil {
		if isCheckViolation(err) {
			return core.ItemBalance{}, &core.InvariantViolationError{Key: key, Message: err.Error()}
		}
		return core.ItemBalance{}, translateLockError(err, key)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.ItemBalance{}, err
	}
	if affected == 0 {
		return core.ItemBalance{}, &core.ConflictError{
			Entity: "item_balance",
			ID:     key.String(),
			Cause:  fmt.Errorf("version %d is no longer current", current.Version),
		}
	}
	return next, nil
}

func (t *storeTx) GetReservation(ctx context.Context, id string) (core.Reservation, error) {
	return getReservation(ctx, t.tx, strings.TrimSpace(id))
}

func (t *storeTx) FindActiveReservation(ctx context.Context, key core.BalanceKey, orderID string) (core.Reservation, bool, error) {
	key = key.Normalize()
	record := &reservationRecord{}
	err := t.tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", key.TenantID).
		Where("?TableAlias.item_id = ?", key.ItemID).
		Where("?TableAlias.order_id = ?", strings.TrimSpace(orderID)).
		Where("?TableAlias.status = ?", string(core.ReservationStatusActive)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Reservation{}, false, nil
		}
		return core.Reservation{}, false, err
	}
	return record.toDomain(), true, nil
}

func (t *storeTx) CreateReservation(ctx context.Context, reservation core.Reservation) (core.Reservation, error) {
	record := newReservationRecord(reservation)
	if record.ID == "" {
		return core.Reservation{}, &core.ValidationError{Field: "id", Message: "reservation id is required"}
	}
	if _, err := t.tx.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Reservation{}, &core.AlreadyReservedError{
				Key:     reservation.Key(),
				OrderID: reservation.OrderID,
			}
		}
		return core.Reservation{}, err
	}
	return record.toDomain(), nil
}

func (t *storeTx) TransitionReservation(ctx context.Context, req core.TransitionRequest) (core.Reservation, error) {
	id := strings.TrimSpace(req.ReservationID)
	at := req.At.UTC()
	if req.At.IsZero() {
		at = t.clock()
	}
	update := t.tx.NewUpdate().
		Model((*reservationRecord)(nil)).
		Set("status = ?", string(req.To)).
		Set("resolved_at = ?", at).
		Set("updated_at = ?", at)
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		update = update.Set("reason = ?", reason)
	}
	if performedBy := strings.TrimSpace(req.PerformedBy); performedBy != "" {
		update = update.Set("performed_by = ?", performedBy)
	}
	res, err := update.
		Where("id = ?", id).
		Where("status = ?", string(req.From)).
		Exec(ctx)
	if err != nil {
		return core.Reservation{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Reservation{}, err
	}
	if affected == 0 {
		current, getErr := getReservation(ctx, t.tx, id)
		if getErr != nil {
			return core.Reservation{}, getErr
		}
		return core.Reservation{}, &core.ConflictError{
			Entity: "reservation",
			ID:     id,
			Cause:  fmt.Errorf("expected status %s, found %s", req.From, current.Status),
		}
	}
	return getReservation(ctx, t.tx, id)
}

func (t *storeTx) RecordTransaction(ctx context.Context, entry core.StockTransaction) (core.StockTransaction, error) {
	if !entry.Type.Valid() {
		return core.StockTransaction{}, &core.ValidationError{Field: "type", Message: "unknown transaction type " + string(entry.Type)}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.clock()
	}
	record := newStockTransactionRecord(entry)
	if _, err := t.tx.NewInsert().Model(record).Returning("id").Exec(ctx); err != nil {
		return core.StockTransaction{}, err
	}
	return record.toDomain(), nil
}

func (t *storeTx) clock() time.Time {
	if t == nil || t.now == nil {
		return time.Now().UTC()
	}
	return t.now().UTC()
}

func getReservation(ctx context.Context, db bun.IDB, id string) (core.Reservation, error) {
	record := &reservationRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Reservation{}, &core.NotFoundError{Entity: "reservation", ID: id}
		}
		return core.Reservation{}, err
	}
	return record.toDomain(), nil
}
