package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/medsupply/internal/jsonstore"
	"github.com/example/medsupply/internal/models"
)

// LedgerRepository is the append-only view over the credit ledger.
// Entries are never updated or removed; corrections are new entries.
type LedgerRepository struct {
	col *jsonstore.Collection[[]models.LedgerEntry]
}

// NewLedgerRepository constructs a LedgerRepository.
func NewLedgerRepository(col *jsonstore.Collection[[]models.LedgerEntry]) *LedgerRepository {
	return &LedgerRepository{col: col}
}

// All returns every ledger entry.
func (r *LedgerRepository) All() ([]models.LedgerEntry, error) {
	return r.col.Read()
}

// EntriesFor returns the entries for one doctor in insertion order.
func (r *LedgerRepository) EntriesFor(doctorID string) ([]models.LedgerEntry, error) {
	entries, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	var out []models.LedgerEntry
	for i := range entries {
		if entries[i].DoctorID == doctorID {
			out = append(out, entries[i])
		}
	}
	return out, nil
}

// Append adds a new entry. A missing id or timestamp is filled in.
func (r *LedgerRepository) Append(entry models.LedgerEntry) (*models.LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.IssuedAt.IsZero() {
		entry.IssuedAt = time.Now().UTC()
	}

	err := r.col.Mutate(func(entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
		return append(entries, entry), nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// BalanceFor computes the signed running balance for a doctor: credits
// add, debits subtract.
func (r *LedgerRepository) BalanceFor(doctorID string) (float64, error) {
	entries, err := r.EntriesFor(doctorID)
	if err != nil {
		return 0, err
	}

	balance := decimal.Zero
	for _, e := range entries {
		amount := decimal.NewFromFloat(e.Amount)
		if e.Direction == models.LedgerDirectionDebit {
			balance = balance.Sub(amount)
		} else {
			balance = balance.Add(amount)
		}
	}
	v, _ := balance.Round(2).Float64()
	return v, nil
}
