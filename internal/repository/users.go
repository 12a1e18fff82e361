package repository

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/internal/jsonstore"
	"github.com/example/medsupply/internal/models"
)

// UserRepository is the typed view over the users collection.
type UserRepository struct {
	col *jsonstore.Collection[[]models.User]
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(col *jsonstore.Collection[[]models.User]) *UserRepository {
	return &UserRepository{col: col}
}

// All returns every user.
func (r *UserRepository) All() ([]models.User, error) {
	return r.col.Read()
}

// FindByID returns the user with the given id.
func (r *UserRepository) FindByID(id string) (*models.User, error) {
	users, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// FindByEmail looks a user up case-insensitively by email.
func (r *UserRepository) FindByEmail(email string) (*models.User, error) {
	users, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// FindByReferralCode resolves a personal referral code to its owner.
func (r *UserRepository) FindByReferralCode(code string) (*models.User, error) {
	if code == "" {
		return nil, apperrors.ErrNotFound
	}
	users, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].ReferralCode, code) {
			return &users[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// Insert validates and appends a new user. A missing id is generated.
// Duplicate emails are rejected with ErrConflict.
func (r *UserRepository) Insert(user models.User) (*models.User, error) {
	if !govalidator.IsEmail(user.Email) {
		return nil, apperrors.NewFieldValidation("invalid user", map[string]string{
			"email": "must be a valid email address",
		})
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}

	err := r.col.Mutate(func(users []models.User) ([]models.User, error) {
		for i := range users {
			if strings.EqualFold(users[i].Email, user.Email) {
				return nil, apperrors.ErrConflict
			}
		}
		return append(users, user), nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update applies fn to the user with the given id and bumps updatedAt.
// Returns ErrNotFound when no user matches.
func (r *UserRepository) Update(id string, fn func(*models.User)) (*models.User, error) {
	var updated *models.User
	err := r.col.Mutate(func(users []models.User) ([]models.User, error) {
		for i := range users {
			if users[i].ID == id {
				fn(&users[i])
				users[i].UpdatedAt = time.Now().UTC()
				clone := users[i]
				updated = &clone
				return users, nil
			}
		}
		return nil, apperrors.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
