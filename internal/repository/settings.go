package repository

import (
	"github.com/example/medsupply/internal/jsonstore"
	"github.com/example/medsupply/internal/models"
)

// SettingsRepository wraps the singleton settings collection. The
// collection's default value is models.DefaultSettings, so every read
// merges the stored document onto the hard-coded defaults and no key is
// ever partially missing.
type SettingsRepository struct {
	col *jsonstore.Collection[models.Settings]
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(col *jsonstore.Collection[models.Settings]) *SettingsRepository {
	return &SettingsRepository{col: col}
}

// Get returns the current settings.
func (r *SettingsRepository) Get() (models.Settings, error) {
	return r.col.Read()
}

// Update applies fn to the settings and persists the result.
func (r *SettingsRepository) Update(fn func(*models.Settings)) (models.Settings, error) {
	var updated models.Settings
	err := r.col.Mutate(func(s models.Settings) (models.Settings, error) {
		fn(&s)
		updated = s
		return s, nil
	})
	if err != nil {
		return models.Settings{}, err
	}
	return updated, nil
}
