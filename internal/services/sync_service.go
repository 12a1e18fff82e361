package services

import (
	"context"
	"time"

	"github.com/example/medsupply/internal/integrations"
	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/internal/repository"
	"github.com/example/medsupply/pkg/logger"
)

// Shipping-provider statuses that mean the shipment is done.
var fulfilledShipmentStatuses = map[string]bool{
	"shipped":   true,
	"delivered": true,
	"fulfilled": true,
}

// SyncService is the background job reconciling local orders against
// the relational mirror and the shipping provider. It runs on a fixed
// interval for the lifetime of the process; one order's failure never
// blocks the rest of a batch, and anything still unmirrored is simply
// retried on the next tick.
type SyncService struct {
	orders   *repository.OrderRepository
	mirror   integrations.RelationalMirror
	shipping integrations.ShippingProvider
	interval time.Duration
	log      logger.Logger
}

// NewSyncService constructs a SyncService. A nil mirror records every
// pending order as skipped; a nil shipping provider disables shipment
// polling.
func NewSyncService(
	orders *repository.OrderRepository,
	mirror integrations.RelationalMirror,
	shipping integrations.ShippingProvider,
	interval time.Duration,
	log logger.Logger,
) *SyncService {
	return &SyncService{
		orders:   orders,
		mirror:   mirror,
		shipping: shipping,
		interval: interval,
		log:      log.WithField("component", "sync"),
	}
}

// Start runs the periodic loop until ctx is cancelled. Ticks are
// sequential; a tick completes before the next one is scheduled.
func (s *SyncService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.log.Info("background sync stopped")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single sync tick. Exported so tests and admin
// endpoints can drive a tick without the timer.
func (s *SyncService) RunOnce(ctx context.Context) {
	s.syncMirror(ctx)
	s.pollShipments(ctx)
}

func (s *SyncService) syncMirror(ctx context.Context) {
	pending, err := s.orders.PendingMirror()
	if err != nil {
		s.log.WithField("error", err.Error()).Error("listing unmirrored orders failed")
		return
	}

	for _, order := range pending {
		if s.mirror == nil {
			// Record the skip once. Rewriting it every tick would bump
			// updatedAt on orders nobody touched.
			detail, recorded := order.IntegrationDetails[models.ProviderMirror]
			if recorded && detail.Status == integrations.StatusSkipped &&
				detail.Reason == integrations.ReasonMirrorDisabled {
				continue
			}
			s.recordMirrorResult(order.ID, models.IntegrationResult{
				Status: integrations.StatusSkipped,
				Reason: integrations.ReasonMirrorDisabled,
			}, false)
			continue
		}

		result, err := s.mirror.PersistOrder(ctx, order)
		if err != nil {
			s.log.WithFields(map[string]interface{}{
				"order": order.ID,
				"error": err.Error(),
			}).Warn("mirror push failed, will retry next tick")
			s.recordMirrorResult(order.ID, models.IntegrationResult{
				Status: integrations.StatusPending,
				Reason: integrations.ReasonProviderError,
				Error:  err.Error(),
			}, false)
			continue
		}

		s.recordMirrorResult(order.ID, models.IntegrationResult{
			Status: result.Status,
			Reason: result.Reason,
		}, result.Status == integrations.StatusSuccess)
	}
}

func (s *SyncService) recordMirrorResult(orderID string, result models.IntegrationResult, synced bool) {
	now := time.Now().UTC()
	result.SyncedAt = &now

	_, err := s.orders.Update(orderID, func(o *models.Order) {
		if o.IntegrationDetails == nil {
			o.IntegrationDetails = map[string]models.IntegrationResult{}
		}
		o.IntegrationDetails[models.ProviderMirror] = result
		if synced {
			o.MirrorSyncedAt = &now
			o.MirrorDirty = false
		}
	})
	if err != nil {
		s.log.WithFields(map[string]interface{}{
			"order": orderID,
			"error": err.Error(),
		}).Error("recording mirror result failed")
	}
}

func (s *SyncService) pollShipments(ctx context.Context) {
	if s.shipping == nil || !s.shipping.Configured() {
		return
	}

	open, err := s.orders.OpenShipments()
	if err != nil {
		s.log.WithField("error", err.Error()).Error("listing open shipments failed")
		return
	}

	for _, order := range open {
		status, err := s.shipping.ShipmentStatus(ctx, order.ShipStationOrderID)
		if err != nil {
			s.log.WithFields(map[string]interface{}{
				"order": order.ID,
				"error": err.Error(),
			}).Warn("shipment status poll failed")
			continue
		}

		if !fulfilledShipmentStatuses[status] {
			continue
		}
		if !models.CanTransition(order.Status, models.OrderStatusFulfilled) {
			continue
		}

		if _, err := s.orders.Update(order.ID, func(o *models.Order) {
			o.Status = models.OrderStatusFulfilled
			o.MirrorDirty = true
		}); err != nil {
			s.log.WithFields(map[string]interface{}{
				"order": order.ID,
				"error": err.Error(),
			}).Error("recording fulfillment failed")
		}
	}
}
