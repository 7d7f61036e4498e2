package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

type ReserveRequest struct {
	TenantID    string
	ItemID      string
	OrderID     string
	Quantity    int64
	TTL         time.Duration
	PerformedBy string
}

type ConfirmRequest struct {
	TenantID      string
	ReservationID string
	PerformedBy   string
}

type ReleaseRequest struct {
	TenantID      string
	ReservationID string
	Reason        string
	PerformedBy   string
}

type Availability struct {
	TenantID  string
	ItemID    string
	Available int64
	Reserved  int64
	OnHand    int64
}

func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (reservation Reservation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": req.TenantID,
		"item_id":   req.ItemID,
		"order_id":  req.OrderID,
		"quantity":  req.Quantity,
	}
	defer func() {
		if reservation.ID != "" {
			fields["reservation_id"] = reservation.ID
		}
		s.observeOperation(ctx, startedAt, "reserve", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return Reservation{}, err
	}
	key := BalanceKey{TenantID: req.TenantID, ItemID: req.ItemID}.Normalize()
	if err = key.Validate(); err != nil {
		return Reservation{}, err
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		err = validationError("order_id", "order id is required")
		return Reservation{}, err
	}
	if req.Quantity <= 0 {
		err = validationError("quantity", "quantity must be positive")
		return Reservation{}, err
	}
	ttl := req.TTL
	if ttl < 0 {
		err = validationError("ttl", "ttl must not be negative")
		return Reservation{}, err
	}
	if ttl == 0 {
		ttl = s.config.Reservation.DefaultTTL
	}
	if max := s.config.Reservation.MaxTTL; max > 0 && ttl > max {
		err = validationError("ttl", "ttl exceeds the configured maximum")
		return Reservation{}, err
	}
	performedBy := strings.TrimSpace(req.PerformedBy)

	attempts, err := s.runUnit(ctx, func(ctx context.Context, tx StoreTx) error {
		balance, loadErr := tx.LoadBalance(ctx, key)
		if loadErr != nil {
			return loadErr
		}
		existing, found, findErr := tx.FindActiveReservation(ctx, key, orderID)
		if findErr != nil {
			return findErr
		}
		if found {
			return &AlreadyReservedError{Key: key, OrderID: orderID, ReservationID: existing.ID}
		}
		if balance.Available < req.Quantity {
			return &InsufficientStockError{Key: key, Available: balance.Available, Requested: req.Quantity}
		}

		next, applyErr := tx.ApplyDelta(ctx, balance, -req.Quantity, req.Quantity)
		if applyErr != nil {
			return applyErr
		}
		now := s.now()
		created, createErr := tx.CreateReservation(ctx, Reservation{
			ID:          s.idGenerator(),
			TenantID:    key.TenantID,
			ItemID:      key.ItemID,
			OrderID:     orderID,
			Quantity:    req.Quantity,
			Status:      ReservationStatusActive,
			PerformedBy: performedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		})
		if createErr != nil {
			return createErr
		}

		entry := newTransaction(TransactionTypeReserve, req.Quantity, balance, next)
		entry.ReservationID = created.ID
		entry.ReferenceID = orderID
		entry.ReferenceType = ReferenceTypeOrder
		entry.PerformedBy = performedBy
		entry.CreatedAt = now
		if _, recordErr := tx.RecordTransaction(ctx, entry); recordErr != nil {
			return recordErr
		}
		reservation = created
		return nil
	})
	fields["attempts"] = attempts
	if err != nil {
		err = s.mapError(err)
		return Reservation{}, err
	}
	err = s.invalidateBalance(ctx, key)
	return reservation, err
}

func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (reservation Reservation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":      req.TenantID,
		"reservation_id": req.ReservationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "confirm", err, fields)
	}()

	var attempts int
	reservation, _, attempts, err = s.transition(ctx, transitionInput{
		tenantID:      req.TenantID,
		reservationID: req.ReservationID,
		target:        ReservationStatusConfirmed,
		performedBy:   req.PerformedBy,
	})
	fields["attempts"] = attempts
	return reservation, err
}

// Release returns the reserved stock to available. Releasing a reservation
// that is already RELEASED or EXPIRED succeeds without touching the balance.
func (s *Service) Release(ctx context.Context, req ReleaseRequest) (reservation Reservation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":      req.TenantID,
		"reservation_id": req.ReservationID,
		"reason":         req.Reason,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "release", err, fields)
	}()

	var (
		attempts int
		outcome  transitionOutcome
	)
	reservation, outcome, attempts, err = s.transition(ctx, transitionInput{
		tenantID:      req.TenantID,
		reservationID: req.ReservationID,
		target:        ReservationStatusReleased,
		reason:        req.Reason,
		performedBy:   req.PerformedBy,
	})
	fields["attempts"] = attempts
	fields["noop"] = err == nil && outcome == transitionNoop
	return reservation, err
}

// expire is the sweeper's entry point. It reports false without error when
// the reservation is no longer ACTIVE or not yet past its TTL.
func (s *Service) expire(ctx context.Context, tenantID string, reservationID string, performedBy string) (reservation Reservation, expired bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":      tenantID,
		"reservation_id": reservationID,
	}
	defer func() {
		fields["expired"] = expired
		s.observeOperation(ctx, startedAt, "expire", err, fields)
	}()

	var (
		attempts int
		outcome  transitionOutcome
	)
	reservation, outcome, attempts, err = s.transition(ctx, transitionInput{
		tenantID:      tenantID,
		reservationID: reservationID,
		target:        ReservationStatusExpired,
		reason:        ReasonExpired,
		performedBy:   performedBy,
		requireDue:    true,
	})
	fields["attempts"] = attempts
	if err != nil && !errors.Is(err, ErrCacheInvalidation) {
		return Reservation{}, false, err
	}
	return reservation, outcome == transitionApplied, err
}

type transitionInput struct {
	tenantID      string
	reservationID string
	target        ReservationStatus
	reason        string
	performedBy   string
	// requireDue skips reservations that have not yet passed their TTL.
	requireDue bool
}

type transitionOutcome int

const (
	transitionApplied transitionOutcome = iota
	transitionNoop
)

func (s *Service) transition(ctx context.Context, in transitionInput) (Reservation, transitionOutcome, int, error) {
	if err := s.requireStore(); err != nil {
		return Reservation{}, transitionNoop, 0, s.mapError(err)
	}
	tenantID := strings.TrimSpace(in.tenantID)
	if tenantID == "" {
		return Reservation{}, transitionNoop, 0, validationError("tenant_id", "tenant id is required")
	}
	reservationID := strings.TrimSpace(in.reservationID)
	if reservationID == "" {
		return Reservation{}, transitionNoop, 0, validationError("reservation_id", "reservation id is required")
	}

	var (
		out     Reservation
		key     BalanceKey
		outcome transitionOutcome
	)
	attempts, err := s.runUnit(ctx, func(ctx context.Context, tx StoreTx) error {
		outcome = transitionNoop
		current, getErr := tx.GetReservation(ctx, reservationID)
		if getErr != nil {
			return getErr
		}
		if current.TenantID != tenantID {
			return &NotFoundError{Entity: "reservation", ID: reservationID}
		}
		key = current.Key()

		// Lock the balance row first, then re-read the reservation so the
		// status guard sees the latest committed state.
		balance, loadErr := tx.LoadBalance(ctx, key)
		if loadErr != nil {
			return loadErr
		}
		current, getErr = tx.GetReservation(ctx, reservationID)
		if getErr != nil {
			return getErr
		}

		now := s.now()
		if current.Status != ReservationStatusActive {
			switch {
			case in.target == ReservationStatusExpired:
				// Already settled by a caller or the other sweep pass.
				out = current
				return nil
			case in.target == ReservationStatusReleased && current.Status.IsReleased():
				out = current
				return nil
			default:
				return &InvalidStateTransitionError{ReservationID: current.ID, From: current.Status, To: in.target}
			}
		}
		if in.requireDue && !current.ExpiredAt(now) {
			out = current
			return nil
		}
		if !reservationTransitionAllowed(current.Status, in.target) {
			return &InvalidStateTransitionError{ReservationID: current.ID, From: current.Status, To: in.target}
		}

		availableDelta, reservedDelta, txType := transitionDeltas(in.target, current.Quantity)
		next, applyErr := tx.ApplyDelta(ctx, balance, availableDelta, reservedDelta)
		if applyErr != nil {
			return applyErr
		}
		updated, transErr := tx.TransitionReservation(ctx, TransitionRequest{
			ReservationID: current.ID,
			From:          ReservationStatusActive,
			To:            in.target,
			At:            now,
			Reason:        strings.TrimSpace(in.reason),
			PerformedBy:   strings.TrimSpace(in.performedBy),
		})
		if transErr != nil {
			return transErr
		}

		entry := newTransaction(txType, current.Quantity, balance, next)
		entry.ReservationID = current.ID
		entry.ReferenceID = current.OrderID
		entry.ReferenceType = ReferenceTypeOrder
		entry.Reason = strings.TrimSpace(in.reason)
		entry.PerformedBy = strings.TrimSpace(in.performedBy)
		entry.CreatedAt = now
		if _, recordErr := tx.RecordTransaction(ctx, entry); recordErr != nil {
			return recordErr
		}
		out = updated
		outcome = transitionApplied
		return nil
	})
	if err != nil {
		return Reservation{}, transitionNoop, attempts, s.mapError(err)
	}
	if outcome == transitionApplied {
		return out, outcome, attempts, s.invalidateBalance(ctx, key)
	}
	return out, outcome, attempts, nil
}

// transitionDeltas returns the balance movement for leaving ACTIVE towards target.
func transitionDeltas(target ReservationStatus, quantity int64) (int64, int64, TransactionType) {
	switch target {
	case ReservationStatusConfirmed:
		return 0, -quantity, TransactionTypeConfirm
	default:
		return quantity, -quantity, TransactionTypeRelease
	}
}

func (s *Service) GetReservation(ctx context.Context, tenantID string, reservationID string) (Reservation, error) {
	if err := s.requireStore(); err != nil {
		return Reservation{}, s.mapError(err)
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Reservation{}, validationError("tenant_id", "tenant id is required")
	}
	reservationID = strings.TrimSpace(reservationID)
	if reservationID == "" {
		return Reservation{}, validationError("reservation_id", "reservation id is required")
	}
	reservation, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, s.mapError(err)
	}
	if reservation.TenantID != tenantID {
		return Reservation{}, &NotFoundError{Entity: "reservation", ID: reservationID}
	}
	return reservation, nil
}

// GetBalance reads the balance straight from the store.
func (s *Service) GetBalance(ctx context.Context, tenantID string, itemID string) (ItemBalance, error) {
	if err := s.requireStore(); err != nil {
		return ItemBalance{}, s.mapError(err)
	}
	key := BalanceKey{TenantID: tenantID, ItemID: itemID}.Normalize()
	if err := key.Validate(); err != nil {
		return ItemBalance{}, err
	}
	balance, err := s.store.GetBalance(ctx, key)
	if err != nil {
		return ItemBalance{}, s.mapError(err)
	}
	return balance, nil
}

// GetAvailability reads through the balance reader when one is configured.
func (s *Service) GetAvailability(ctx context.Context, tenantID string, itemID string) (Availability, error) {
	if err := s.requireStore(); err != nil {
		return Availability{}, s.mapError(err)
	}
	key := BalanceKey{TenantID: tenantID, ItemID: itemID}.Normalize()
	if err := key.Validate(); err != nil {
		return Availability{}, err
	}
	var reader BalanceReader = s.store
	if s.balanceReader != nil {
		reader = s.balanceReader
	}
	balance, err := reader.GetBalance(ctx, key)
	if err != nil {
		return Availability{}, s.mapError(err)
	}
	return Availability{
		TenantID:  balance.TenantID,
		ItemID:    balance.ItemID,
		Available: balance.Available,
		Reserved:  balance.Reserved,
		OnHand:    balance.OnHand(),
	}, nil
}
