package repository

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/internal/jsonstore"
	"github.com/example/medsupply/internal/models"
)

// ReferralCodeRepository manages the pooled referral codes handed to
// sales reps. Status changes are recorded in each code's append-only
// history.
type ReferralCodeRepository struct {
	col *jsonstore.Collection[[]models.ReferralCode]
}

// NewReferralCodeRepository constructs a ReferralCodeRepository.
func NewReferralCodeRepository(col *jsonstore.Collection[[]models.ReferralCode]) *ReferralCodeRepository {
	return &ReferralCodeRepository{col: col}
}

// All returns every pooled code.
func (r *ReferralCodeRepository) All() ([]models.ReferralCode, error) {
	return r.col.Read()
}

// FindByID returns the code record with the given id.
func (r *ReferralCodeRepository) FindByID(id string) (*models.ReferralCode, error) {
	codes, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	for i := range codes {
		if codes[i].ID == id {
			return &codes[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// FindByCode looks a code up case-insensitively.
func (r *ReferralCodeRepository) FindByCode(code string) (*models.ReferralCode, error) {
	if code == "" {
		return nil, apperrors.ErrNotFound
	}
	codes, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	for i := range codes {
		if strings.EqualFold(codes[i].Code, code) {
			return &codes[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// ForSalesRep lists the codes assigned to one rep.
func (r *ReferralCodeRepository) ForSalesRep(salesRepID string) ([]models.ReferralCode, error) {
	codes, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	var out []models.ReferralCode
	for i := range codes {
		if codes[i].SalesRepID == salesRepID {
			out = append(out, codes[i])
		}
	}
	return out, nil
}

// Insert appends a new code in the available state. Duplicate code
// strings are rejected with ErrConflict.
func (r *ReferralCodeRepository) Insert(code models.ReferralCode) (*models.ReferralCode, error) {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if code.CreatedAt.IsZero() {
		code.CreatedAt = now
	}
	code.UpdatedAt = now
	if code.Status == "" {
		code.Status = models.CodeStatusAvailable
	}
	code.History = append(code.History, models.CodeEvent{Status: code.Status, At: now})

	err := r.col.Mutate(func(codes []models.ReferralCode) ([]models.ReferralCode, error) {
		for i := range codes {
			if strings.EqualFold(codes[i].Code, code.Code) {
				return nil, apperrors.ErrConflict
			}
		}
		return append(codes, code), nil
	})
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// SetStatus transitions a code and appends the change to its history.
func (r *ReferralCodeRepository) SetStatus(id, status, salesRepID, note string) (*models.ReferralCode, error) {
	var updated *models.ReferralCode
	err := r.col.Mutate(func(codes []models.ReferralCode) ([]models.ReferralCode, error) {
		for i := range codes {
			if codes[i].ID != id {
				continue
			}
			now := time.Now().UTC()
			codes[i].Status = status
			if salesRepID != "" {
				codes[i].SalesRepID = salesRepID
			}
			codes[i].History = append(codes[i].History, models.CodeEvent{
				Status: status,
				Note:   note,
				At:     now,
			})
			codes[i].UpdatedAt = now
			clone := codes[i]
			updated = &clone
			return codes, nil
		}
		return nil, apperrors.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
