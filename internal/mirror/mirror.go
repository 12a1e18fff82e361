// Package mirror implements the optional relational mirror of the
// orders collection. When a DATABASE_URL is configured, orders are
// upserted into Postgres by the background sync job; the JSON store
// remains authoritative.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/medsupply/internal/integrations"
	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/pkg/logger"
)

// OrderRecord is the relational projection of a local order. Items and
// integration details are carried as JSON columns; the mirror is a
// reporting copy, not a second source of truth.
type OrderRecord struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index"`
	Status          string
	Total           float64
	ShippingTotal   float64
	TaxTotal        float64
	ReferralCode    string
	PaymentIntentID string
	WooOrderID      string
	ItemsJSON       string `gorm:"type:text"`
	DetailsJSON     string `gorm:"type:text"`
	PlacedAt        time.Time
	UpdatedAt       time.Time
}

// TableName keeps the mirror table name stable across gorm versions.
func (OrderRecord) TableName() string {
	return "order_mirror"
}

// GormMirror implements integrations.RelationalMirror on Postgres.
type GormMirror struct {
	db  *gorm.DB
	log logger.Logger
}

// Connect opens the mirror database, creating it when absent, and runs
// the schema migration.
func Connect(dsn string, log logger.Logger) (*GormMirror, error) {
	if err := ensureDatabase(dsn); err != nil {
		return nil, fmt.Errorf("mirror: ensure database: %w", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: connect: %w", err)
	}

	if err := conn.AutoMigrate(&OrderRecord{}); err != nil {
		return nil, fmt.Errorf("mirror: migrate: %w", err)
	}

	return &GormMirror{db: conn, log: log.WithField("component", "mirror")}, nil
}

// PersistOrder upserts an order into the mirror. A failure is reported
// in the result, never paniced, so one bad order cannot abort a sync
// batch.
func (m *GormMirror) PersistOrder(ctx context.Context, order models.Order) (*integrations.MirrorResult, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("mirror: marshal items: %w", err)
	}
	details, err := json.Marshal(order.IntegrationDetails)
	if err != nil {
		return nil, fmt.Errorf("mirror: marshal details: %w", err)
	}

	record := OrderRecord{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          order.Status,
		Total:           order.Total,
		ShippingTotal:   order.ShippingTotal,
		TaxTotal:        order.TaxTotal,
		ReferralCode:    order.ReferralCode,
		PaymentIntentID: order.PaymentIntentID,
		WooOrderID:      order.WooOrderID,
		ItemsJSON:       string(items),
		DetailsJSON:     string(details),
		PlacedAt:        order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}

	err = m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("mirror: upsert order %s: %w", order.ID, err)
	}

	return &integrations.MirrorResult{Status: integrations.StatusSuccess}, nil
}

// FetchByUserID reads a user's orders back out of the mirror.
func (m *GormMirror) FetchByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var records []OrderRecord
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("placed_at desc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("mirror: fetch orders for %s: %w", userID, err)
	}

	orders := make([]models.Order, 0, len(records))
	for _, r := range records {
		o := models.Order{
			ID:              r.ID,
			UserID:          r.UserID,
			Status:          r.Status,
			Total:           r.Total,
			ShippingTotal:   r.ShippingTotal,
			TaxTotal:        r.TaxTotal,
			ReferralCode:    r.ReferralCode,
			PaymentIntentID: r.PaymentIntentID,
			WooOrderID:      r.WooOrderID,
			CreatedAt:       r.PlacedAt,
			UpdatedAt:       r.UpdatedAt,
		}
		if r.ItemsJSON != "" {
			if err := json.Unmarshal([]byte(r.ItemsJSON), &o.Items); err != nil {
				m.log.WithField("order", r.ID).Warn("mirror row has unreadable items json")
			}
		}
		if r.DetailsJSON != "" {
			if err := json.Unmarshal([]byte(r.DetailsJSON), &o.IntegrationDetails); err != nil {
				m.log.WithField("order", r.ID).Warn("mirror row has unreadable details json")
			}
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// ensureDatabase creates the target database if it does not exist yet.
func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
