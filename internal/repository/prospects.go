package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/internal/jsonstore"
	"github.com/example/medsupply/internal/models"
)

// ProspectRepository is the typed view over the sales-prospects
// collection.
type ProspectRepository struct {
	col *jsonstore.Collection[[]models.Prospect]
}

// NewProspectRepository constructs a ProspectRepository.
func NewProspectRepository(col *jsonstore.Collection[[]models.Prospect]) *ProspectRepository {
	return &ProspectRepository{col: col}
}

// All returns every prospect.
func (r *ProspectRepository) All() ([]models.Prospect, error) {
	return r.col.Read()
}

// FindByID returns the prospect with the given id.
func (r *ProspectRepository) FindByID(id string) (*models.Prospect, error) {
	prospects, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	for i := range prospects {
		if prospects[i].ID == id {
			return &prospects[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// Insert appends a new prospect. A missing id is generated.
func (r *ProspectRepository) Insert(p models.Prospect) (*models.Prospect, error) {
	if p.Name == "" {
		return nil, apperrors.NewValidation("prospect name is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = models.ProspectStatusNew
	}

	err := r.col.Mutate(func(prospects []models.Prospect) ([]models.Prospect, error) {
		return append(prospects, p), nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update applies fn to the prospect with the given id and bumps
// updatedAt. Returns ErrNotFound when no prospect matches.
func (r *ProspectRepository) Update(id string, fn func(*models.Prospect)) (*models.Prospect, error) {
	var updated *models.Prospect
	err := r.col.Mutate(func(prospects []models.Prospect) ([]models.Prospect, error) {
		for i := range prospects {
			if prospects[i].ID == id {
				fn(&prospects[i])
				prospects[i].UpdatedAt = time.Now().UTC()
				clone := prospects[i]
				updated = &clone
				return prospects, nil
			}
		}
		return nil, apperrors.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
