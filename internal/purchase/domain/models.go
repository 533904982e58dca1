// Package domain contains one-time purchase records.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// One-time product types sold through payment-mode checkouts.
const (
	ProductLifetime = "lifetime"
	ProductBundle3  = "bundle_3"
	ProductBundle6  = "bundle_6"
)

// ProductAnnual is not sold as a one-time product; annual subscription
// checkouts record a row under it so their signup credit grant is keyed
// to the checkout session like every other grant.
const ProductAnnual = "annual"

// KnownProductType reports whether the product type is one we sell.
func KnownProductType(productType string) bool {
	switch productType {
	case ProductLifetime, ProductBundle3, ProductBundle6:
		return true
	default:
		return false
	}
}

// Purchase records one completed payment-mode checkout. The checkout
// session id is unique, which is what makes redelivered checkout events
// harmless.
type Purchase struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	AccountID         string            `gorm:"type:text;not null;index:ix_purchases_account"`
	ProductType       string            `gorm:"type:text;not null"`
	ExternalProductID string            `gorm:"type:text"`
	CheckoutSessionID string            `gorm:"type:text;not null;uniqueIndex:ux_purchases_checkout_session"`
	Amount            int64             `gorm:"not null"`
	Currency          string            `gorm:"type:text;not null"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Purchase) TableName() string { return "purchases" }

var (
	ErrDuplicateSession = errors.New("duplicate_checkout_session")
	ErrInvalidPurchase  = errors.New("invalid_purchase")
)

type Repository interface {
	// Insert records the purchase. A replayed checkout session returns
	// ErrDuplicateSession so the caller can skip the side effects.
	Insert(ctx context.Context, db *gorm.DB, purchase *Purchase) error
	ListByAccountID(ctx context.Context, db *gorm.DB, accountID string) ([]Purchase, error)
}
