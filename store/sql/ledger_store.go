package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-inventory/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// LedgerStore reads the append-only stock transaction ledger. Writes go
// through the inventory store's unit of work only.
type LedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*stockTransactionRecord]
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*stockTransactionRecord](db, stockTransactionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid stock transaction repository wiring: %w", err)
		}
	}
	return &LedgerStore{db: db, repo: repo}, nil
}

func (s *LedgerStore) ListByItem(ctx context.Context, key core.BalanceKey, page core.PageRequest) (core.LedgerPage, error) {
	if s == nil || s.repo == nil {
		return core.LedgerPage{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	key = key.Normalize()
	page = page.Normalize()
	records, total, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", key.TenantID),
		repository.SelectBy("item_id", "=", key.ItemID),
		repository.OrderBy("id ASC"),
		repository.SelectPaginate(page.Limit, page.Offset),
	)
	if err != nil {
		return core.LedgerPage{}, err
	}
	items := make([]core.StockTransaction, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.LedgerPage{
		Items:   items,
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasNext: page.Offset+len(items) < total,
	}, nil
}

func (s *LedgerStore) ListByReference(ctx context.Context, tenantID string, referenceID string) ([]core.StockTransaction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	records := make([]*stockTransactionRecord, 0)
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.reference_id = ?", strings.TrimSpace(referenceID)).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.StockTransaction, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
