// Package core contains the inventory domain: item balances, reservations,
// the stock ledger contracts and the reservation service that mutates them.
// Persistence adapters implement Store and depend on this package; core must
// not depend on any storage or transport adapter.
package core
