package sqlstore

import "github.com/goliatone/go-inventory/core"

var (
	_ core.Store                  = (*InventoryStore)(nil)
	_ core.StoreTx                = (*storeTx)(nil)
	_ core.StaleReservationLister = (*InventoryStore)(nil)
	_ core.BalanceReader          = (*InventoryStore)(nil)
	_ core.LedgerReader           = (*LedgerStore)(nil)
	_ core.BalanceReader          = (*CachedBalanceReader)(nil)
	_ core.BalanceCache           = (*CachedBalanceReader)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
	_ core.StoreSettingsReceiver  = (*RepositoryFactory)(nil)
	_ core.BalanceReaderProvider  = (*RepositoryFactory)(nil)
)
