package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/internal/repository"
	"github.com/example/medsupply/internal/utils"
	"github.com/example/medsupply/pkg/logger"
)

const (
	referralCodeLength = 6
	maxCodeAttempts    = 100

	// The credited-orders list on a user is capped so the idempotency
	// guard cannot grow without bound.
	creditedOrdersCap = 1000
)

// ErrCodeSpaceExhausted is returned when code generation cannot find a
// free code. With a 16^6 space this indicates misconfiguration, not
// bad luck.
var ErrCodeSpaceExhausted = errors.New("referral code space exhausted")

// ReferralService generates referral codes and applies commission
// credits exactly once per order.
type ReferralService struct {
	users    *repository.UserRepository
	codes    *repository.ReferralCodeRepository
	ledger   *repository.LedgerRepository
	settings *repository.SettingsRepository
	log      logger.Logger
}

// NewReferralService constructs a ReferralService.
func NewReferralService(
	users *repository.UserRepository,
	codes *repository.ReferralCodeRepository,
	ledger *repository.LedgerRepository,
	settings *repository.SettingsRepository,
	log logger.Logger,
) *ReferralService {
	return &ReferralService{
		users:    users,
		codes:    codes,
		ledger:   ledger,
		settings: settings,
		log:      log.WithField("component", "referral"),
	}
}

// GenerateReferralCode produces a random 6-character uppercase hex code
// that collides with no user code and no pooled code.
func (s *ReferralService) GenerateReferralCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		buf := make([]byte, referralCodeLength/2)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		code := strings.ToUpper(hex.EncodeToString(buf))

		if _, err := s.users.FindByReferralCode(code); err == nil {
			continue
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return "", err
		}
		if _, err := s.codes.FindByCode(code); err == nil {
			continue
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return "", err
		}
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// CreditInput carries the checkout context into the crediting path.
type CreditInput struct {
	ReferralCode string
	Total        float64
	PurchaserID  string
	OrderID      string
}

// ReferralCredit is the successful outcome of ApplyReferralCredit.
type ReferralCredit struct {
	ReferrerID   string  `json:"referrerId"`
	ReferrerName string  `json:"referrerName"`
	Commission   float64 `json:"commission"`
}

// ApplyReferralCredit credits the owner of a referral code with a
// commission on the order total. A nil result with nil error means no
// credit applied: empty code, unusable total, unknown code,
// self-referral, or an order that already credited its referrer.
// Calling this twice with the same order id has no additional effect.
func (s *ReferralService) ApplyReferralCredit(in CreditInput) (*ReferralCredit, error) {
	if in.ReferralCode == "" || !utils.IsPositiveFinite(in.Total) {
		return nil, nil
	}

	referrer, err := s.users.FindByReferralCode(in.ReferralCode)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if referrer.ID == in.PurchaserID {
		return nil, nil
	}
	if in.OrderID != "" && referrer.HasCreditedOrder(in.OrderID) {
		return nil, nil
	}

	settings, err := s.settings.Get()
	if err != nil {
		return nil, err
	}
	commission := utils.Commission(in.Total, settings.ReferralCommissionRate)

	// The pre-read guard above runs on a stale copy; re-check under the
	// collection lock so concurrent credits for the same order cannot
	// both land.
	var alreadyCredited, firstCredit bool
	updated, err := s.users.Update(referrer.ID, func(u *models.User) {
		if in.OrderID != "" && u.HasCreditedOrder(in.OrderID) {
			alreadyCredited = true
			return
		}
		firstCredit = u.TotalReferrals == 0
		u.ReferralCredits = utils.SumMoney(u.ReferralCredits, commission)
		u.TotalReferrals++
		if in.OrderID != "" {
			u.ReferralOrdersCredited = append(u.ReferralOrdersCredited, in.OrderID)
			if n := len(u.ReferralOrdersCredited); n > creditedOrdersCap {
				u.ReferralOrdersCredited = u.ReferralOrdersCredited[n-creditedOrdersCap:]
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if alreadyCredited {
		return nil, nil
	}

	if _, err := s.ledger.Append(models.LedgerEntry{
		DoctorID:  referrer.ID,
		Amount:    commission,
		Direction: models.LedgerDirectionCredit,
		OrderID:   in.OrderID,
	}); err != nil {
		// The user record already carries the credit; a ledger append
		// failure is logged and reconciled manually rather than rolled
		// back across collections.
		s.log.WithFields(map[string]interface{}{
			"referrer": referrer.ID,
			"order":    in.OrderID,
			"error":    err.Error(),
		}).Error("ledger append failed after credit")
	} else if firstCredit && settings.FirstOrderBonusAmount > 0 {
		if _, err := s.ledger.Append(models.LedgerEntry{
			DoctorID:        referrer.ID,
			Amount:          settings.FirstOrderBonusAmount,
			Direction:       models.LedgerDirectionCredit,
			FirstOrderBonus: true,
			OrderID:         in.OrderID,
		}); err != nil {
			s.log.WithField("referrer", referrer.ID).Error("first-order bonus append failed")
		}
	}

	return &ReferralCredit{
		ReferrerID:   updated.ID,
		ReferrerName: updated.FullName(),
		Commission:   commission,
	}, nil
}

// ReferralStats is the dashboard view of a referrer's standing.
type ReferralStats struct {
	ReferralCode    string  `json:"referralCode"`
	ReferralCredits float64 `json:"referralCredits"`
	TotalReferrals  int     `json:"totalReferrals"`
	LedgerBalance   float64 `json:"ledgerBalance"`
}

// StatsFor summarizes a user's referral earnings.
func (s *ReferralService) StatsFor(userID string) (*ReferralStats, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.BalanceFor(userID)
	if err != nil {
		return nil, err
	}
	return &ReferralStats{
		ReferralCode:    user.ReferralCode,
		ReferralCredits: user.ReferralCredits,
		TotalReferrals:  user.TotalReferrals,
		LedgerBalance:   balance,
	}, nil
}

// MintPoolCode creates a pooled referral code for the sales-rep
// program.
func (s *ReferralService) MintPoolCode() (*models.ReferralCode, error) {
	code, err := s.GenerateReferralCode()
	if err != nil {
		return nil, err
	}
	return s.codes.Insert(models.ReferralCode{Code: code})
}

// AssignPoolCode hands an available pooled code to a sales rep.
func (s *ReferralService) AssignPoolCode(codeID, salesRepID, note string) (*models.ReferralCode, error) {
	existing, err := s.codes.FindByID(codeID)
	if err != nil {
		return nil, err
	}
	if existing.Status != models.CodeStatusAvailable {
		return nil, apperrors.ErrInvalidState
	}
	return s.codes.SetStatus(codeID, models.CodeStatusAssigned, salesRepID, note)
}

// RevokePoolCode takes an assigned code away from its rep.
func (s *ReferralService) RevokePoolCode(codeID, note string) (*models.ReferralCode, error) {
	existing, err := s.codes.FindByID(codeID)
	if err != nil {
		return nil, err
	}
	if existing.Status != models.CodeStatusAssigned {
		return nil, apperrors.ErrInvalidState
	}
	return s.codes.SetStatus(codeID, models.CodeStatusRevoked, "", note)
}

// RetirePoolCode permanently removes a code from circulation.
func (s *ReferralService) RetirePoolCode(codeID, note string) (*models.ReferralCode, error) {
	existing, err := s.codes.FindByID(codeID)
	if err != nil {
		return nil, err
	}
	if existing.Status == models.CodeStatusRetired {
		return nil, apperrors.ErrInvalidState
	}
	return s.codes.SetStatus(codeID, models.CodeStatusRetired, "", note)
}
