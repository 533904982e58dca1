package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrPeriodPlanMismatch   = errors.New("period_plan_mismatch")
	ErrInvalidPlanType      = errors.New("invalid_plan_type")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)

type Repository interface {
	// Upsert writes the projected state for an account, one row per
	// account. PromoUsed never flips back to false and ExternalScheduleID
	// is never cleared by a write that omits it.
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByAccountID(ctx context.Context, db *gorm.DB, accountID string) (*Subscription, error)
	FindByExternalSubscriptionID(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	FindByScheduleID(ctx context.Context, db *gorm.DB, scheduleID string) (*Subscription, error)
	SetSchedule(ctx context.Context, db *gorm.DB, accountID string, scheduleID *string, promoUsed bool) error
	SetPlanType(ctx context.Context, db *gorm.DB, accountID string, planType PlanType, priceID *string) error
}
