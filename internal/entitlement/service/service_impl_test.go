package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/insightlabs/orrery/internal/clock"
	"github.com/insightlabs/orrery/internal/config"
	entitlementdomain "github.com/insightlabs/orrery/internal/entitlement/domain"
	entitlementrepo "github.com/insightlabs/orrery/internal/entitlement/repository"
	entitlementservice "github.com/insightlabs/orrery/internal/entitlement/service"
	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
)

func TestProjectDoesNotEraseCredits(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFakeClock(time.Now().UTC()))

	// Credits granted by a one-time purchase event.
	granted, err := svc.GrantCredits(ctx, "acct_1", "bundle_3")
	if err != nil {
		t.Fatalf("grant credits: %v", err)
	}
	if granted != 3 {
		t.Fatalf("expected 3 credits, got %d", granted)
	}

	// A subscription projection arriving later must leave them alone.
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	if err := svc.Project(ctx, &subscriptiondomain.Subscription{
		AccountID:   "acct_1",
		PlanType:    subscriptiondomain.PlanStandard,
		Status:      subscriptiondomain.StatusActive,
		PeriodStart: time.Now().UTC(),
		PeriodEnd:   &periodEnd,
	}); err != nil {
		t.Fatalf("project: %v", err)
	}

	entitlement, err := svc.GetByAccountID(ctx, "acct_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entitlement.CreditCount != 3 {
		t.Fatalf("expected credits to survive projection, got %d", entitlement.CreditCount)
	}
	if entitlement.Status != entitlementdomain.StatusPro {
		t.Fatalf("expected pro, got %s", entitlement.Status)
	}
	if entitlement.ExpiresAt == nil {
		t.Fatalf("expected expires_at to be set")
	}
}

func TestCreditGrantsAreAdditive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFakeClock(time.Now().UTC()))

	if _, err := svc.GrantCredits(ctx, "acct_2", "bundle_6"); err != nil {
		t.Fatalf("grant bundle_6: %v", err)
	}
	if _, err := svc.GrantCredits(ctx, "acct_2", "bundle_3"); err != nil {
		t.Fatalf("grant bundle_3: %v", err)
	}

	entitlement, err := svc.GetByAccountID(ctx, "acct_2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entitlement.CreditCount != 9 {
		t.Fatalf("expected 9 credits, got %d", entitlement.CreditCount)
	}
	if entitlement.CreditGrantedAt == nil {
		t.Fatalf("expected credit granted timestamp")
	}
}

func TestGrantCreditsUnknownProduct(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFakeClock(time.Now().UTC()))

	if _, err := svc.GrantCredits(ctx, "acct_3", "bundle_99"); !errors.Is(err, entitlementdomain.ErrInvalidProductType) {
		t.Fatalf("expected invalid product type, got %v", err)
	}
	entitlement, err := svc.GetByAccountID(ctx, "acct_3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entitlement != nil {
		t.Fatalf("expected no row for rejected grant, got %+v", entitlement)
	}
}

func TestProjectStatusDerivation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFakeClock(time.Now().UTC()))

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	tests := []struct {
		name         string
		subscription subscriptiondomain.Subscription
		want         entitlementdomain.Status
	}{{
		name: "past_due keeps pro",
		subscription: subscriptiondomain.Subscription{
			PlanType: subscriptiondomain.PlanStandard,
			Status:   subscriptiondomain.StatusPastDue,
			PeriodEnd: &periodEnd,
		},
		want: entitlementdomain.StatusPro,
	}, {
		name: "canceled expires",
		subscription: subscriptiondomain.Subscription{
			PlanType: subscriptiondomain.PlanStandard,
			Status:   subscriptiondomain.StatusCanceled,
			PeriodEnd: &periodEnd,
		},
		want: entitlementdomain.StatusExpired,
	}, {
		name: "lifetime always pro",
		subscription: subscriptiondomain.Subscription{
			PlanType: subscriptiondomain.PlanLifetime,
			Status:   subscriptiondomain.StatusActive,
		},
		want: entitlementdomain.StatusPro,
	}}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subscription := tt.subscription
			subscription.AccountID = fmt.Sprintf("acct_status_%d", i)
			if err := svc.Project(ctx, &subscription); err != nil {
				t.Fatalf("project: %v", err)
			}
			entitlement, err := svc.GetByAccountID(ctx, subscription.AccountID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if entitlement.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, entitlement.Status)
			}
			if tt.subscription.PlanType == subscriptiondomain.PlanLifetime && entitlement.ExpiresAt != nil {
				t.Fatalf("expected nil expires_at for lifetime, got %v", entitlement.ExpiresAt)
			}
		})
	}
}

func newTestService(t *testing.T, clk clock.Clock) entitlementdomain.Service {
	t.Helper()

	db := setupTestDB(t)
	return entitlementservice.NewService(entitlementservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		Plans: config.NewStaticPlanConfigHolder(config.DefaultPlanConfig()),
		Repo:  entitlementrepo.Provide(),
	})
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_ent_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	if err := db.Exec(
		`CREATE TABLE profile_entitlements (
			account_id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'free',
			plan_type TEXT,
			expires_at DATETIME,
			cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
			credit_count BIGINT NOT NULL DEFAULT 0,
			credit_granted_at DATETIME,
			updated_at DATETIME NOT NULL
		)`,
	).Error; err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}
