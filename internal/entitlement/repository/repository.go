package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	entitlementdomain "github.com/insightlabs/orrery/internal/entitlement/domain"
)

type repo struct{}

func Provide() entitlementdomain.Repository {
	return &repo{}
}

func (r *repo) Apply(ctx context.Context, db *gorm.DB, accountID string, update entitlementdomain.Update) error {
	if update.IsZero() {
		return nil
	}

	now := time.Now().UTC()
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO profile_entitlements (account_id, status, credit_count, updated_at)
		 VALUES (?, 'free', 0, ?)
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID,
		now,
	).Error; err != nil {
		return err
	}

	columns := map[string]any{"updated_at": now}
	if update.Status != nil {
		columns["status"] = *update.Status
	}
	if update.PlanType != nil {
		columns["plan_type"] = *update.PlanType
	}
	if update.ExpiresAt != nil {
		columns["expires_at"] = *update.ExpiresAt
	} else if update.ClearExpiresAt {
		columns["expires_at"] = gorm.Expr("NULL")
	}
	if update.CancelAtPeriodEnd != nil {
		columns["cancel_at_period_end"] = *update.CancelAtPeriodEnd
	}
	if update.AddCredits != 0 {
		columns["credit_count"] = gorm.Expr("credit_count + ?", update.AddCredits)
	}
	if update.CreditGrantedAt != nil {
		columns["credit_granted_at"] = *update.CreditGrantedAt
	}

	return db.WithContext(ctx).
		Table("profile_entitlements").
		Where("account_id = ?", accountID).
		Updates(columns).Error
}

func (r *repo) FindByAccountID(ctx context.Context, db *gorm.DB, accountID string) (*entitlementdomain.Entitlement, error) {
	var entitlement entitlementdomain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT account_id, status, plan_type, expires_at, cancel_at_period_end,
		 credit_count, credit_granted_at, updated_at
		 FROM profile_entitlements WHERE account_id = ?`,
		accountID,
	).Scan(&entitlement).Error
	if err != nil {
		return nil, err
	}
	if entitlement.AccountID == "" {
		return nil, nil
	}
	return &entitlement, nil
}
