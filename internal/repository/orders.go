package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/internal/jsonstore"
	"github.com/example/medsupply/internal/models"
)

// OrderRepository is the typed view over the orders collection.
type OrderRepository struct {
	col *jsonstore.Collection[[]models.Order]
}

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(col *jsonstore.Collection[[]models.Order]) *OrderRepository {
	return &OrderRepository{col: col}
}

// All returns every order.
func (r *OrderRepository) All() ([]models.Order, error) {
	return r.col.Read()
}

// FindByID returns the order with the given id.
func (r *OrderRepository) FindByID(id string) (*models.Order, error) {
	orders, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].ID == id {
			return &orders[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// FindByUserID returns all orders owned by a user, newest first.
func (r *OrderRepository) FindByUserID(userID string) ([]models.Order, error) {
	orders, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	var owned []models.Order
	for i := len(orders) - 1; i >= 0; i-- {
		if orders[i].UserID == userID {
			owned = append(owned, orders[i])
		}
	}
	return owned, nil
}

// FindByPaymentIntentID resolves a payment-provider correlation id to
// the local order.
func (r *OrderRepository) FindByPaymentIntentID(paymentIntentID string) (*models.Order, error) {
	if paymentIntentID == "" {
		return nil, apperrors.ErrNotFound
	}
	orders, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].PaymentIntentID == paymentIntentID {
			return &orders[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// FindByIdempotencyKey returns the order created for a client-supplied
// idempotency key, if any.
func (r *OrderRepository) FindByIdempotencyKey(key string) (*models.Order, error) {
	if key == "" {
		return nil, apperrors.ErrNotFound
	}
	orders, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].IdempotencyKey == key {
			return &orders[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// PendingMirror lists orders the background job still has to push into
// the relational mirror.
func (r *OrderRepository) PendingMirror() ([]models.Order, error) {
	orders, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	var pending []models.Order
	for i := range orders {
		if orders[i].NeedsMirrorSync() {
			pending = append(pending, orders[i])
		}
	}
	return pending, nil
}

// OpenShipments lists orders with a forwarded shipment that is not yet
// in a terminal status.
func (r *OrderRepository) OpenShipments() ([]models.Order, error) {
	orders, err := r.col.Read()
	if err != nil {
		return nil, err
	}
	var open []models.Order
	for i := range orders {
		if orders[i].ShipStationOrderID != "" && !orders[i].Terminal() {
			open = append(open, orders[i])
		}
	}
	return open, nil
}

// Insert appends a new order. A missing id is generated.
func (r *OrderRepository) Insert(order models.Order) (*models.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}

	err := r.col.Mutate(func(orders []models.Order) ([]models.Order, error) {
		return append(orders, order), nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Update applies fn to the order with the given id and bumps updatedAt.
// Returns ErrNotFound when no order matches.
func (r *OrderRepository) Update(id string, fn func(*models.Order)) (*models.Order, error) {
	var updated *models.Order
	err := r.col.Mutate(func(orders []models.Order) ([]models.Order, error) {
		for i := range orders {
			if orders[i].ID == id {
				fn(&orders[i])
				orders[i].UpdatedAt = time.Now().UTC()
				clone := orders[i]
				updated = &clone
				return orders, nil
			}
		}
		return nil, apperrors.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveByID deletes an order from the collection. Orders are the only
// records that may be removed.
func (r *OrderRepository) RemoveByID(id string) error {
	return r.col.Mutate(func(orders []models.Order) ([]models.Order, error) {
		for i := range orders {
			if orders[i].ID == id {
				return append(orders[:i], orders[i+1:]...), nil
			}
		}
		return nil, apperrors.ErrNotFound
	})
}
