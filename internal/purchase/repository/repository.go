package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	purchasedomain "github.com/insightlabs/orrery/internal/purchase/domain"
	"github.com/insightlabs/orrery/pkg/db"
)

type repo struct{}

func Provide() purchasedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, gormDB *gorm.DB, purchase *purchasedomain.Purchase) error {
	if purchase == nil || strings.TrimSpace(purchase.CheckoutSessionID) == "" {
		return purchasedomain.ErrInvalidPurchase
	}
	err := gormDB.WithContext(ctx).Exec(
		`INSERT INTO purchases (
			id, account_id, product_type, external_product_id, checkout_session_id,
			amount, currency, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		purchase.ID,
		purchase.AccountID,
		purchase.ProductType,
		purchase.ExternalProductID,
		purchase.CheckoutSessionID,
		purchase.Amount,
		purchase.Currency,
		purchase.Metadata,
		purchase.CreatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return purchasedomain.ErrDuplicateSession
		}
		return err
	}
	return nil
}

func (r *repo) ListByAccountID(ctx context.Context, gormDB *gorm.DB, accountID string) ([]purchasedomain.Purchase, error) {
	var purchases []purchasedomain.Purchase
	err := gormDB.WithContext(ctx).Raw(
		`SELECT id, account_id, product_type, external_product_id, checkout_session_id,
		 amount, currency, metadata, created_at
		 FROM purchases WHERE account_id = ? ORDER BY created_at ASC`,
		accountID,
	).Scan(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}
