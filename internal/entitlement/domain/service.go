package domain

import (
	"context"

	"gorm.io/gorm"

	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
)

type Repository interface {
	// Apply merges the update into the account's row, creating it when
	// absent. Only the named columns are written.
	Apply(ctx context.Context, db *gorm.DB, accountID string, update Update) error
	FindByAccountID(ctx context.Context, db *gorm.DB, accountID string) (*Entitlement, error)
}

type Service interface {
	// Project derives the entitlement fields from a subscription record.
	// Credits are untouched.
	Project(ctx context.Context, subscription *subscriptiondomain.Subscription) error
	// GrantCredits adds the configured credit amount for a one-time product
	// and returns how many were granted.
	GrantCredits(ctx context.Context, accountID, productType string) (int64, error)
	GetByAccountID(ctx context.Context, accountID string) (*Entitlement, error)
}
