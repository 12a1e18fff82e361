package services

import (
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/internal/repository"
	"github.com/example/medsupply/pkg/logger"
)

type testEnv struct {
	stores    *repository.Stores
	users     *repository.UserRepository
	orders    *repository.OrderRepository
	codes     *repository.ReferralCodeRepository
	ledger    *repository.LedgerRepository
	settings  *repository.SettingsRepository
	referrals *ReferralService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	stores, err := repository.NewStores(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	env := &testEnv{
		stores:   stores,
		users:    repository.NewUserRepository(stores.Users),
		orders:   repository.NewOrderRepository(stores.Orders),
		codes:    repository.NewReferralCodeRepository(stores.ReferralCodes),
		ledger:   repository.NewLedgerRepository(stores.Ledger),
		settings: repository.NewSettingsRepository(stores.Settings),
	}
	env.referrals = NewReferralService(env.users, env.codes, env.ledger, env.settings, logger.NewNopLogger())
	return env
}

func (e *testEnv) createUser(t *testing.T, email, code string) *models.User {
	t.Helper()
	u, err := e.users.Insert(models.User{
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		ReferralCode: code,
	})
	require.NoError(t, err)
	return u
}

func TestGenerateReferralCodeShape(t *testing.T) {
	env := newTestEnv(t)

	code, err := env.referrals.GenerateReferralCode()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{6}$`), code)
}

func TestGenerateReferralCodeAvoidsCollisions(t *testing.T) {
	env := newTestEnv(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code, err := env.referrals.GenerateReferralCode()
		require.NoError(t, err)
		assert.False(t, seen[code])
		seen[code] = true
		env.createUser(t, fmt.Sprintf("u%d@example.com", i), code)
	}
}

func TestApplyReferralCreditHappyPath(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.createUser(t, "referrer@example.com", "ABC123")
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	credit, err := env.referrals.ApplyReferralCredit(CreditInput{
		ReferralCode: "ABC123",
		Total:        100.00,
		PurchaserID:  buyer.ID,
		OrderID:      "order-1",
	})
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, referrer.ID, credit.ReferrerID)
	assert.Equal(t, "Test User", credit.ReferrerName)
	assert.Equal(t, 5.00, credit.Commission)

	stored, err := env.users.FindByID(referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.00, stored.ReferralCredits)
	assert.Equal(t, 1, stored.TotalReferrals)
	assert.Contains(t, stored.ReferralOrdersCredited, "order-1")
}

func TestApplyReferralCreditIsIdempotentPerOrder(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.createUser(t, "referrer@example.com", "ABC123")
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	in := CreditInput{
		ReferralCode: "ABC123",
		Total:        100.00,
		PurchaserID:  buyer.ID,
		OrderID:      "order-1",
	}

	first, err := env.referrals.ApplyReferralCredit(in)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := env.referrals.ApplyReferralCredit(in)
	require.NoError(t, err)
	assert.Nil(t, second, "repeat credit for the same order must be a no-op")

	stored, err := env.users.FindByID(referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.00, stored.ReferralCredits)
	assert.Equal(t, 1, stored.TotalReferrals)
}

func TestApplyReferralCreditConcurrentSameOrder(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.createUser(t, "referrer@example.com", "ABC123")
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.referrals.ApplyReferralCredit(CreditInput{
				ReferralCode: "ABC123",
				Total:        100.00,
				PurchaserID:  buyer.ID,
				OrderID:      "order-1",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := env.users.FindByID(referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.00, stored.ReferralCredits, "racing credits for one order must land exactly once")
	assert.Equal(t, 1, stored.TotalReferrals)

	entries, err := env.ledger.EntriesFor(referrer.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one commission entry plus the first-order bonus")
}

func TestApplyReferralCreditRejectsSelfReferral(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.createUser(t, "referrer@example.com", "ABC123")

	credit, err := env.referrals.ApplyReferralCredit(CreditInput{
		ReferralCode: "ABC123",
		Total:        100.00,
		PurchaserID:  referrer.ID,
		OrderID:      "order-1",
	})
	require.NoError(t, err)
	assert.Nil(t, credit)

	stored, err := env.users.FindByID(referrer.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ReferralCredits)
	assert.Zero(t, stored.TotalReferrals)
}

func TestApplyReferralCreditNoOps(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	tests := []struct {
		name string
		in   CreditInput
	}{
		{"empty code", CreditInput{Total: 100, PurchaserID: buyer.ID, OrderID: "o1"}},
		{"unknown code", CreditInput{ReferralCode: "ZZZZZZ", Total: 100, PurchaserID: buyer.ID, OrderID: "o1"}},
		{"zero total", CreditInput{ReferralCode: "DEF456", Total: 0, PurchaserID: "other", OrderID: "o1"}},
		{"negative total", CreditInput{ReferralCode: "DEF456", Total: -5, PurchaserID: "other", OrderID: "o1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credit, err := env.referrals.ApplyReferralCredit(tt.in)
			require.NoError(t, err)
			assert.Nil(t, credit)
		})
	}
}

func TestApplyReferralCreditCommissionRounding(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "referrer@example.com", "ABC123")
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	credit, err := env.referrals.ApplyReferralCredit(CreditInput{
		ReferralCode: "ABC123",
		Total:        33.33,
		PurchaserID:  buyer.ID,
		OrderID:      "order-1",
	})
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, 1.67, credit.Commission, "round half up at 2 decimals")
}

func TestApplyReferralCreditWritesLedger(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.createUser(t, "referrer@example.com", "ABC123")
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	_, err := env.referrals.ApplyReferralCredit(CreditInput{
		ReferralCode: "ABC123",
		Total:        100.00,
		PurchaserID:  buyer.ID,
		OrderID:      "order-1",
	})
	require.NoError(t, err)

	entries, err := env.ledger.EntriesFor(referrer.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2, "commission entry plus first-order bonus")
	assert.Equal(t, 5.00, entries[0].Amount)
	assert.False(t, entries[0].FirstOrderBonus)
	assert.True(t, entries[1].FirstOrderBonus)

	defaults := models.DefaultSettings()
	balance, err := env.ledger.BalanceFor(referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.00+defaults.FirstOrderBonusAmount, balance)
}

func TestCreditedOrdersListIsCapped(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.createUser(t, "referrer@example.com", "ABC123")

	// Pre-load the referrer just under the cap, then credit twice more.
	preloaded := make([]string, 0, creditedOrdersCap)
	for i := 0; i < creditedOrdersCap; i++ {
		preloaded = append(preloaded, fmt.Sprintf("old-%d", i))
	}
	_, err := env.users.Update(referrer.ID, func(u *models.User) {
		u.ReferralOrdersCredited = preloaded
	})
	require.NoError(t, err)

	buyer := env.createUser(t, "buyer@example.com", "DEF456")
	credit, err := env.referrals.ApplyReferralCredit(CreditInput{
		ReferralCode: "ABC123",
		Total:        10,
		PurchaserID:  buyer.ID,
		OrderID:      "new-order",
	})
	require.NoError(t, err)
	require.NotNil(t, credit)

	stored, err := env.users.FindByID(referrer.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ReferralOrdersCredited, creditedOrdersCap)
	assert.Contains(t, stored.ReferralOrdersCredited, "new-order")
	assert.NotContains(t, stored.ReferralOrdersCredited, "old-0", "oldest entry evicted")
}

func TestPoolCodeLifecycle(t *testing.T) {
	env := newTestEnv(t)

	minted, err := env.referrals.MintPoolCode()
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusAvailable, minted.Status)

	assigned, err := env.referrals.AssignPoolCode(minted.ID, "rep-1", "territory north")
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusAssigned, assigned.Status)

	// Cannot assign twice.
	_, err = env.referrals.AssignPoolCode(minted.ID, "rep-2", "")
	assert.Error(t, err)

	revoked, err := env.referrals.RevokePoolCode(minted.ID, "rep left")
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusRevoked, revoked.Status)

	retired, err := env.referrals.RetirePoolCode(minted.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusRetired, retired.Status)
	assert.GreaterOrEqual(t, len(retired.History), 4)
}
