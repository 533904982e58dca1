// Package domain contains the profile entitlement projection derived from
// subscription and purchase state.
package domain

import (
	"errors"
	"time"

	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
)

// Status is what the rest of the product reads to gate features.
type Status string

const (
	StatusPro     Status = "pro"
	StatusFree    Status = "free"
	StatusExpired Status = "expired"
)

// Entitlement is the per-account projection row. Credits accumulate across
// purchases and are never reset by subscription writes.
type Entitlement struct {
	AccountID         string                      `gorm:"primaryKey;type:text"`
	Status            Status                      `gorm:"type:text;not null;default:free"`
	PlanType          *subscriptiondomain.PlanType `gorm:"type:text"`
	ExpiresAt         *time.Time                  `gorm:""`
	CancelAtPeriodEnd bool                        `gorm:"not null;default:false"`
	CreditCount       int64                       `gorm:"not null;default:0"`
	CreditGrantedAt   *time.Time                  `gorm:""`
	UpdatedAt         time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Entitlement) TableName() string { return "profile_entitlements" }

// Update names the columns one write intends to touch. Unset fields keep
// their stored value, which is what lets a subscription projection and a
// concurrent credit grant coexist on the same row.
type Update struct {
	Status            *Status
	PlanType          *subscriptiondomain.PlanType
	ExpiresAt         *time.Time
	ClearExpiresAt    bool
	CancelAtPeriodEnd *bool
	AddCredits        int64
	CreditGrantedAt   *time.Time
}

// IsZero reports whether the update would touch nothing.
func (u Update) IsZero() bool {
	return u.Status == nil && u.PlanType == nil && u.ExpiresAt == nil &&
		!u.ClearExpiresAt && u.CancelAtPeriodEnd == nil && u.AddCredits == 0 &&
		u.CreditGrantedAt == nil
}

var (
	ErrInvalidProductType = errors.New("invalid_product_type")
	ErrInvalidUpdate      = errors.New("invalid_update")
)
