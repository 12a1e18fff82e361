package repository

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/pkg/logger"
)

func newTestStores(t *testing.T) *Stores {
	t.Helper()
	stores, err := NewStores(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	return stores
}

func TestUserInsertAndLookup(t *testing.T) {
	stores := newTestStores(t)
	repo := NewUserRepository(stores.Users)

	created, err := repo.Insert(models.User{
		Email:        "Alice@Example.com",
		FirstName:    "Alice",
		LastName:     "Nguyen",
		ReferralCode: "ABC123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.RoleCustomer, created.Role)

	byEmail, err := repo.FindByEmail("alice@example.COM")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byCode, err := repo.FindByReferralCode("abc123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byCode.ID)
}

func TestUserInsertRejectsDuplicateEmail(t *testing.T) {
	stores := newTestStores(t)
	repo := NewUserRepository(stores.Users)

	_, err := repo.Insert(models.User{Email: "dup@example.com"})
	require.NoError(t, err)

	_, err = repo.Insert(models.User{Email: "DUP@example.com"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestUserInsertRejectsBadEmail(t *testing.T) {
	stores := newTestStores(t)
	repo := NewUserRepository(stores.Users)

	_, err := repo.Insert(models.User{Email: "not-an-email"})
	ve, ok := apperrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "email")
}

func TestUserUpdateNotFound(t *testing.T) {
	stores := newTestStores(t)
	repo := NewUserRepository(stores.Users)

	_, err := repo.Update("missing", func(u *models.User) {})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserUpdateBumpsUpdatedAt(t *testing.T) {
	stores := newTestStores(t)
	repo := NewUserRepository(stores.Users)

	created, err := repo.Insert(models.User{Email: "bump@example.com"})
	require.NoError(t, err)

	updated, err := repo.Update(created.ID, func(u *models.User) {
		u.ReferralCredits = 5.00
	})
	require.NoError(t, err)
	assert.Equal(t, 5.00, updated.ReferralCredits)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestOrderLifecycleCRUD(t *testing.T) {
	stores := newTestStores(t)
	repo := NewOrderRepository(stores.Orders)

	created, err := repo.Insert(models.Order{
		UserID: "u1",
		Items:  []models.OrderItem{{ProductID: "p1", Quantity: 2, Price: 10}},
		Total:  20,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, created.Status)

	byID, err := repo.FindByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byID.ID)

	_, err = repo.Update(created.ID, func(o *models.Order) {
		o.Status = models.OrderStatusPaid
	})
	require.NoError(t, err)

	owned, err := repo.FindByUserID("u1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, models.OrderStatusPaid, owned[0].Status)

	require.NoError(t, repo.RemoveByID(created.ID))
	_, err = repo.FindByID(created.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrderPendingMirrorAndOpenShipments(t *testing.T) {
	stores := newTestStores(t)
	repo := NewOrderRepository(stores.Orders)

	synced, err := repo.Insert(models.Order{UserID: "u1"})
	require.NoError(t, err)
	_, err = repo.Update(synced.ID, func(o *models.Order) {
		now := o.UpdatedAt
		o.MirrorSyncedAt = &now
	})
	require.NoError(t, err)

	unsynced, err := repo.Insert(models.Order{UserID: "u1"})
	require.NoError(t, err)

	shipped, err := repo.Insert(models.Order{
		UserID:             "u2",
		Status:             models.OrderStatusPaid,
		ShipStationOrderID: "ss-1",
	})
	require.NoError(t, err)

	pending, err := repo.PendingMirror()
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, o := range pending {
		ids[o.ID] = true
	}
	assert.False(t, ids[synced.ID])
	assert.True(t, ids[unsynced.ID])
	assert.True(t, ids[shipped.ID])

	open, err := repo.OpenShipments()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, shipped.ID, open[0].ID)
}

func TestOrderFindByPaymentIntent(t *testing.T) {
	stores := newTestStores(t)
	repo := NewOrderRepository(stores.Orders)

	created, err := repo.Insert(models.Order{UserID: "u1", PaymentIntentID: "pi_123"})
	require.NoError(t, err)

	found, err := repo.FindByPaymentIntentID("pi_123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.FindByPaymentIntentID("")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLedgerBalance(t *testing.T) {
	stores := newTestStores(t)
	repo := NewLedgerRepository(stores.Ledger)

	_, err := repo.Append(models.LedgerEntry{DoctorID: "d1", Amount: 5.00, Direction: models.LedgerDirectionCredit})
	require.NoError(t, err)
	_, err = repo.Append(models.LedgerEntry{DoctorID: "d1", Amount: 10.00, Direction: models.LedgerDirectionCredit, FirstOrderBonus: true})
	require.NoError(t, err)
	_, err = repo.Append(models.LedgerEntry{DoctorID: "d1", Amount: 3.50, Direction: models.LedgerDirectionDebit})
	require.NoError(t, err)
	_, err = repo.Append(models.LedgerEntry{DoctorID: "d2", Amount: 99.99, Direction: models.LedgerDirectionCredit})
	require.NoError(t, err)

	balance, err := repo.BalanceFor("d1")
	require.NoError(t, err)
	assert.Equal(t, 11.50, balance)
}

func TestReferralCodeHistoryIsAppendOnly(t *testing.T) {
	stores := newTestStores(t)
	repo := NewReferralCodeRepository(stores.ReferralCodes)

	created, err := repo.Insert(models.ReferralCode{Code: "REP001"})
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusAvailable, created.Status)
	require.Len(t, created.History, 1)

	assigned, err := repo.SetStatus(created.ID, models.CodeStatusAssigned, "rep-1", "assigned to rep")
	require.NoError(t, err)
	assert.Equal(t, "rep-1", assigned.SalesRepID)
	require.Len(t, assigned.History, 2)

	revoked, err := repo.SetStatus(created.ID, models.CodeStatusRevoked, "", "left territory")
	require.NoError(t, err)
	require.Len(t, revoked.History, 3)
	assert.Equal(t, models.CodeStatusAssigned, revoked.History[1].Status)
	assert.Equal(t, models.CodeStatusRevoked, revoked.History[2].Status)

	_, err = repo.Insert(models.ReferralCode{Code: "rep001"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestSettingsMergeOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	stores, err := NewStores(dir, logger.NewNopLogger())
	require.NoError(t, err)
	repo := NewSettingsRepository(stores.Settings)

	// A legacy or hand-edited settings file carrying only one key must
	// still read back with every other key defaulted.
	require.NoError(t, os.WriteFile(stores.Settings.Path(), []byte(`{"taxRate":0.0825}`), 0o644))

	got, err := repo.Get()
	require.NoError(t, err)
	defaults := models.DefaultSettings()
	assert.Equal(t, 0.0825, got.TaxRate)
	assert.Equal(t, defaults.ReferralCommissionRate, got.ReferralCommissionRate)
	assert.Equal(t, defaults.FlatShippingRate, got.FlatShippingRate)
	assert.Equal(t, defaults.Currency, got.Currency)

	updated, err := repo.Update(func(s *models.Settings) {
		s.AutoSubmitOrders = false
	})
	require.NoError(t, err)
	assert.False(t, updated.AutoSubmitOrders)
	assert.Equal(t, 0.0825, updated.TaxRate)
}

func TestProspectCRUD(t *testing.T) {
	stores := newTestStores(t)
	repo := NewProspectRepository(stores.Prospects)

	_, err := repo.Insert(models.Prospect{})
	_, ok := apperrors.AsValidation(err)
	assert.True(t, ok)

	created, err := repo.Insert(models.Prospect{Name: "Dr. Patel", ClinicName: "Lakeside Clinic"})
	require.NoError(t, err)
	assert.Equal(t, models.ProspectStatusNew, created.Status)

	updated, err := repo.Update(created.ID, func(p *models.Prospect) {
		p.Status = models.ProspectStatusContacted
		p.Notes = "left voicemail"
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProspectStatusContacted, updated.Status)
}
