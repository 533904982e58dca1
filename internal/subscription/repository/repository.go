package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	// promo_used only ever flips to true and a write that carries no
	// schedule id must not clear one recorded earlier.
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, account_id, external_customer_id, external_subscription_id, external_price_id,
			external_schedule_id, plan_type, status, period_start, period_end,
			cancel_at_period_end, promo_used, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			external_customer_id = excluded.external_customer_id,
			external_subscription_id = COALESCE(excluded.external_subscription_id, subscriptions.external_subscription_id),
			external_price_id = excluded.external_price_id,
			external_schedule_id = COALESCE(excluded.external_schedule_id, subscriptions.external_schedule_id),
			plan_type = excluded.plan_type,
			status = excluded.status,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			promo_used = subscriptions.promo_used OR excluded.promo_used,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		subscription.ID,
		subscription.AccountID,
		subscription.ExternalCustomerID,
		subscription.ExternalSubscriptionID,
		subscription.ExternalPriceID,
		subscription.ExternalScheduleID,
		subscription.PlanType,
		subscription.Status,
		subscription.PeriodStart,
		subscription.PeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.PromoUsed,
		subscription.Metadata,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

const selectColumns = `id, account_id, external_customer_id, external_subscription_id,
	 external_price_id, external_schedule_id, plan_type, status, period_start,
	 period_end, cancel_at_period_end, promo_used, metadata, created_at, updated_at`

func (r *repo) FindByAccountID(ctx context.Context, db *gorm.DB, accountID string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM subscriptions WHERE account_id = ?`,
		accountID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByExternalSubscriptionID(ctx context.Context, db *gorm.DB, externalID string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM subscriptions WHERE external_subscription_id = ?`,
		externalID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByScheduleID(ctx context.Context, db *gorm.DB, scheduleID string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM subscriptions WHERE external_schedule_id = ?`,
		scheduleID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) SetSchedule(ctx context.Context, db *gorm.DB, accountID string, scheduleID *string, promoUsed bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			external_schedule_id = COALESCE(?, external_schedule_id),
			promo_used = promo_used OR ?,
			updated_at = ?
		 WHERE account_id = ?`,
		scheduleID,
		promoUsed,
		time.Now().UTC(),
		accountID,
	).Error
}

func (r *repo) SetPlanType(ctx context.Context, db *gorm.DB, accountID string, planType subscriptiondomain.PlanType, priceID *string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			plan_type = ?,
			external_price_id = COALESCE(?, external_price_id),
			updated_at = ?
		 WHERE account_id = ?`,
		planType,
		priceID,
		time.Now().UTC(),
		accountID,
	).Error
}
