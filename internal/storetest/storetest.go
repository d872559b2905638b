// Package storetest opens throwaway sqlite databases carrying the gateway schema.
package storetest

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	idempotencydatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
	merchantdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/merchant"
	orderdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/order"
	paymentdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	refunddatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/refund"
	webhookdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/webhook"
)

// Models lists every table the gateway persists.
var Models = []interface{}{
	&merchantdatamodel.Merchant{},
	&orderdatamodel.Order{},
	&paymentdatamodel.Payment{},
	&refunddatamodel.Refund{},
	&webhookdatamodel.WebhookLog{},
	&idempotencydatamodel.IdempotencyKey{},
}

// NewDB returns an isolated in-memory database. The name is unique per call and the
// cache is shared, so every pooled connection sees the same tables.
func NewDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers anyway; one connection avoids shared-cache lock errors
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, err
	}
	return db, nil
}

// MustNewDB is NewDB for test setup code.
func MustNewDB() *gorm.DB {
	db, err := NewDB()
	if err != nil {
		panic(err)
	}
	return db
}

// SeedMerchant inserts a merchant with the given id and optional webhook settings.
func SeedMerchant(db *gorm.DB, id string, webhookURL, webhookSecret *string) *merchantdatamodel.Merchant {
	m := &merchantdatamodel.Merchant{
		ID:            id,
		Name:          "Merchant " + id,
		Email:         id + "@example.com",
		APIKey:        "key_" + id,
		APISecret:     "secret_" + id,
		WebhookURL:    webhookURL,
		WebhookSecret: webhookSecret,
		IsActive:      true,
	}
	if err := db.Create(m).Error; err != nil {
		panic(err)
	}
	return m
}
