// Package repository provides typed CRUD views over the file-backed
// collections. Each repository wraps exactly one collection; writes go
// through Collection.Mutate so read-modify-write cycles are serialized
// per collection.
package repository

import (
	"github.com/example/medsupply/internal/jsonstore"
	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/pkg/logger"
)

// Stores bundles every collection backing the application. Constructed
// once at process start and passed into the repositories; there are no
// package-level singletons.
type Stores struct {
	Users         *jsonstore.Collection[[]models.User]
	Orders        *jsonstore.Collection[[]models.Order]
	ReferralCodes *jsonstore.Collection[[]models.ReferralCode]
	Ledger        *jsonstore.Collection[[]models.LedgerEntry]
	Prospects     *jsonstore.Collection[[]models.Prospect]
	Settings      *jsonstore.Collection[models.Settings]
}

// NewStores builds and initializes all collections under dataDir.
func NewStores(dataDir string, log logger.Logger) (*Stores, error) {
	users, err := jsonstore.New(dataDir, "users", []models.User{}, log)
	if err != nil {
		return nil, err
	}
	orders, err := jsonstore.New(dataDir, "orders", []models.Order{}, log)
	if err != nil {
		return nil, err
	}
	codes, err := jsonstore.New(dataDir, "referral-codes", []models.ReferralCode{}, log)
	if err != nil {
		return nil, err
	}
	ledger, err := jsonstore.New(dataDir, "credit-ledger", []models.LedgerEntry{}, log)
	if err != nil {
		return nil, err
	}
	prospects, err := jsonstore.New(dataDir, "sales-prospects", []models.Prospect{}, log)
	if err != nil {
		return nil, err
	}
	settings, err := jsonstore.New(dataDir, "settings", models.DefaultSettings(), log)
	if err != nil {
		return nil, err
	}

	s := &Stores{
		Users:         users,
		Orders:        orders,
		ReferralCodes: codes,
		Ledger:        ledger,
		Prospects:     prospects,
		Settings:      settings,
	}

	for _, init := range []func() error{
		users.Init, orders.Init, codes.Init, ledger.Init, prospects.Init, settings.Init,
	} {
		if err := init(); err != nil {
			return nil, err
		}
	}

	return s, nil
}
