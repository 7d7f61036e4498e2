package sqlstore

import (
	"strconv"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func itemBalanceHandlers() repository.ModelHandlers[*itemBalanceRecord] {
	return repository.ModelHandlers[*itemBalanceRecord]{
		NewRecord: func() *itemBalanceRecord {
			return &itemBalanceRecord{}
		},
		GetID: func(record *itemBalanceRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *itemBalanceRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *itemBalanceRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

// Reservation ids come from the service's IDGenerator and are not required
// to be UUIDs, so GetID only reports parseable values.
func reservationHandlers() repository.ModelHandlers[*reservationRecord] {
	return repository.ModelHandlers[*reservationRecord]{
		NewRecord: func() *reservationRecord {
			return &reservationRecord{}
		},
		GetID: func(record *reservationRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *reservationRecord, id uuid.UUID) {
			if record == nil || strings.TrimSpace(record.ID) != "" {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *reservationRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func stockTransactionHandlers() repository.ModelHandlers[*stockTransactionRecord] {
	return repository.ModelHandlers[*stockTransactionRecord]{
		NewRecord: func() *stockTransactionRecord {
			return &stockTransactionRecord{}
		},
		GetID: func(*stockTransactionRecord) uuid.UUID {
			return uuid.Nil
		},
		SetID: func(*stockTransactionRecord, uuid.UUID) {},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *stockTransactionRecord) string {
			if record == nil || record.ID == 0 {
				return ""
			}
			return strconv.FormatInt(record.ID, 10)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
