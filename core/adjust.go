package core

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

type AdjustStockRequest struct {
	TenantID      string
	ItemID        string
	Type          TransactionType
	Quantity      int64
	ReferenceID   string
	ReferenceType string
	Reason        string
	PerformedBy   string
}

type AdjustStockResult struct {
	Balance     ItemBalance
	Transaction StockTransaction
}

// AdjustStock is the single write path for stock movements that do not
// belong to a reservation. It never touches the reserved bucket.
func (s *Service) AdjustStock(ctx context.Context, req AdjustStockRequest) (result AdjustStockResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":        req.TenantID,
		"item_id":          req.ItemID,
		"transaction_type": string(req.Type),
		"quantity":         req.Quantity,
		"reference_id":     req.ReferenceID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "adjust_stock", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return AdjustStockResult{}, err
	}
	key := BalanceKey{TenantID: req.TenantID, ItemID: req.ItemID}.Normalize()
	if err = key.Validate(); err != nil {
		return AdjustStockResult{}, err
	}
	txType := TransactionType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if !txType.Inbound() && !txType.Outbound() {
		err = validationError("type", "unsupported adjustment type "+string(req.Type))
		return AdjustStockResult{}, err
	}
	if req.Quantity <= 0 {
		err = validationError("quantity", "quantity must be positive")
		return AdjustStockResult{}, err
	}

	delta := req.Quantity
	if txType.Outbound() {
		delta = -req.Quantity
	}

	attempts, err := s.runUnit(ctx, func(ctx context.Context, tx StoreTx) error {
		var (
			balance ItemBalance
			loadErr error
		)
		if txType.Inbound() {
			balance, loadErr = tx.EnsureBalance(ctx, key)
		} else {
			balance, loadErr = tx.LoadBalance(ctx, key)
		}
		if loadErr != nil {
			return loadErr
		}
		if txType.Inbound() && delta > math.MaxInt64-balance.Available {
			return validationError("quantity", fmt.Sprintf("quantity %d would overflow available %d", req.Quantity, balance.Available))
		}
		if txType.Outbound() && balance.Available < req.Quantity {
			return &InsufficientStockError{Key: key, Available: balance.Available, Requested: req.Quantity}
		}
		next, applyErr := tx.ApplyDelta(ctx, balance, delta, 0)
		if applyErr != nil {
			return applyErr
		}

		entry := newTransaction(txType, req.Quantity, balance, next)
		entry.ReferenceID = strings.TrimSpace(req.ReferenceID)
		entry.ReferenceType = strings.TrimSpace(req.ReferenceType)
		entry.Reason = strings.TrimSpace(req.Reason)
		entry.PerformedBy = strings.TrimSpace(req.PerformedBy)
		entry.CreatedAt = s.now()
		recorded, recordErr := tx.RecordTransaction(ctx, entry)
		if recordErr != nil {
			return recordErr
		}
		result = AdjustStockResult{Balance: next, Transaction: recorded}
		return nil
	})
	fields["attempts"] = attempts
	if err != nil {
		err = s.mapError(err)
		return AdjustStockResult{}, err
	}
	err = s.invalidateBalance(ctx, key)
	return result, err
}

// ListItemLedger pages the audit trail of one item, oldest first.
func (s *Service) ListItemLedger(ctx context.Context, tenantID string, itemID string, page PageRequest) (LedgerPage, error) {
	key := BalanceKey{TenantID: tenantID, ItemID: itemID}.Normalize()
	if err := key.Validate(); err != nil {
		return LedgerPage{}, err
	}
	if s == nil || s.ledgerReader == nil {
		return LedgerPage{}, s.mapError(errLedgerReaderMissing)
	}
	out, err := s.ledgerReader.ListByItem(ctx, key, page.Normalize())
	if err != nil {
		return LedgerPage{}, s.mapError(err)
	}
	return out, nil
}

// ListReferenceLedger returns every ledger row written for a reference, such as an order id.
func (s *Service) ListReferenceLedger(ctx context.Context, tenantID string, referenceID string) ([]StockTransaction, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, validationError("tenant_id", "tenant id is required")
	}
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return nil, validationError("reference_id", "reference id is required")
	}
	if s == nil || s.ledgerReader == nil {
		return nil, s.mapError(errLedgerReaderMissing)
	}
	out, err := s.ledgerReader.ListByReference(ctx, tenantID, referenceID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}
