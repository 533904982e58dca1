package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/insightlabs/orrery/internal/clock"
	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
	subscriptionrepo "github.com/insightlabs/orrery/internal/subscription/repository"
	subscriptionservice "github.com/insightlabs/orrery/internal/subscription/service"
)

func TestProjectIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	svc, dbHandle := newTestService(t, 21, clock.NewFakeClock(time.Now().UTC()))

	now := time.Now().UTC().Truncate(time.Second)
	remote := &providerdomain.Subscription{
		ID:                 "sub_1",
		Customer:           "cus_1",
		Status:             "active",
		CurrentPeriodStart: now.Unix(),
		CurrentPeriodEnd:   now.Add(30 * 24 * time.Hour).Unix(),
		Items: providerdomain.SubscriptionItems{
			Data: []providerdomain.SubscriptionItem{{Price: providerdomain.PriceRef{ID: "price_std"}}},
		},
		Metadata: map[string]string{"user_id": "acct_1"},
	}
	req := subscriptiondomain.ProjectRequest{
		AccountID: "acct_1",
		PlanType:  subscriptiondomain.PlanStandard,
		Remote:    remote,
	}

	first, err := svc.Project(ctx, req)
	if err != nil {
		t.Fatalf("first project: %v", err)
	}
	second, err := svc.Project(ctx, req)
	if err != nil {
		t.Fatalf("second project: %v", err)
	}

	if first.AccountID != second.AccountID || second.AccountID != "acct_1" {
		t.Fatalf("expected one row for acct_1, got %+v and %+v", first, second)
	}
	if second.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected active, got %s", second.Status)
	}
	if second.ExternalSubscriptionID == nil || *second.ExternalSubscriptionID != "sub_1" {
		t.Fatalf("expected external subscription sub_1")
	}
	if !second.PeriodStart.Equal(now) {
		t.Fatalf("expected period start %v, got %v", now, second.PeriodStart)
	}
	assertCount(t, dbHandle, `SELECT COUNT(*) FROM subscriptions WHERE account_id = ?`, 1, "acct_1")
}

func TestMapProviderStatusTotal(t *testing.T) {
	cases := map[string]subscriptiondomain.Status{
		"active":             subscriptiondomain.StatusActive,
		"trialing":           subscriptiondomain.StatusTrialing,
		"past_due":           subscriptiondomain.StatusPastDue,
		"canceled":           subscriptiondomain.StatusCanceled,
		"incomplete":         subscriptiondomain.StatusExpired,
		"incomplete_expired": subscriptiondomain.StatusExpired,
		"unpaid":             subscriptiondomain.StatusExpired,
		"paused":             subscriptiondomain.StatusExpired,
		"":                   subscriptiondomain.StatusExpired,
		"something_new":      subscriptiondomain.StatusExpired,
	}
	for providerStatus, want := range cases {
		if got := subscriptiondomain.MapProviderStatus(providerStatus); got != want {
			t.Fatalf("status %q: expected %s, got %s", providerStatus, want, got)
		}
	}
}

func TestProjectLifetimeHasNoPeriodEnd(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 22, clock.NewFakeClock(time.Now().UTC()))

	record, err := svc.Project(ctx, subscriptiondomain.ProjectRequest{
		AccountID: "acct_life",
		PlanType:  subscriptiondomain.PlanLifetime,
	})
	if err != nil {
		t.Fatalf("project lifetime: %v", err)
	}
	if record.PeriodEnd != nil {
		t.Fatalf("expected nil period end for lifetime, got %v", record.PeriodEnd)
	}
	if record.ExternalSubscriptionID != nil {
		t.Fatalf("expected no subscription ref for lifetime purchase")
	}
}

func TestProjectRejectsMissingPeriodEnd(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 23, clock.NewFakeClock(time.Now().UTC()))

	_, err := svc.Project(ctx, subscriptiondomain.ProjectRequest{
		AccountID: "acct_bad",
		PlanType:  subscriptiondomain.PlanStandard,
		Remote: &providerdomain.Subscription{
			ID:       "sub_bad",
			Customer: "cus_bad",
			Status:   "active",
		},
	})
	if err != subscriptiondomain.ErrPeriodPlanMismatch {
		t.Fatalf("expected period plan mismatch, got %v", err)
	}
}

func TestProjectPeriodStartFallbackChain(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, 24, clock.NewFakeClock(frozen))

	itemStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	startDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		remote *providerdomain.Subscription
		want   time.Time
	}{{
		name: "item period start",
		remote: &providerdomain.Subscription{
			ID: "sub_item", Customer: "cus_1", Status: "active",
			StartDate:        startDate.Unix(),
			CurrentPeriodEnd: periodEnd.Unix(),
			Items: providerdomain.SubscriptionItems{
				Data: []providerdomain.SubscriptionItem{{CurrentPeriodStart: itemStart.Unix()}},
			},
		},
		want: itemStart,
	}, {
		name: "start date",
		remote: &providerdomain.Subscription{
			ID: "sub_start", Customer: "cus_1", Status: "active",
			StartDate:        startDate.Unix(),
			CurrentPeriodEnd: periodEnd.Unix(),
		},
		want: startDate,
	}, {
		name: "clock fallback",
		remote: &providerdomain.Subscription{
			ID: "sub_clock", Customer: "cus_1", Status: "active",
			CurrentPeriodEnd: periodEnd.Unix(),
		},
		want: frozen,
	}}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := svc.Project(ctx, subscriptiondomain.ProjectRequest{
				AccountID: fmt.Sprintf("acct_fb_%d", i),
				PlanType:  subscriptiondomain.PlanStandard,
				Remote:    tt.remote,
			})
			if err != nil {
				t.Fatalf("project: %v", err)
			}
			if !record.PeriodStart.Equal(tt.want) {
				t.Fatalf("expected period start %v, got %v", tt.want, record.PeriodStart)
			}
		})
	}
}

func TestPromoUsedAndScheduleAreSticky(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 25, clock.NewFakeClock(time.Now().UTC()))

	now := time.Now().UTC()
	remote := &providerdomain.Subscription{
		ID: "sub_sticky", Customer: "cus_1", Status: "active",
		CurrentPeriodStart: now.Unix(),
		CurrentPeriodEnd:   now.Add(30 * 24 * time.Hour).Unix(),
	}
	if _, err := svc.Project(ctx, subscriptiondomain.ProjectRequest{
		AccountID: "acct_sticky",
		PlanType:  subscriptiondomain.PlanPromoIntro,
		Remote:    remote,
	}); err != nil {
		t.Fatalf("project: %v", err)
	}

	scheduleID := "sched_1"
	if err := svc.RecordSchedule(ctx, "acct_sticky", &scheduleID, true); err != nil {
		t.Fatalf("record schedule: %v", err)
	}

	// A later upsert carrying neither flag must not regress either one.
	if _, err := svc.Project(ctx, subscriptiondomain.ProjectRequest{
		AccountID: "acct_sticky",
		PlanType:  subscriptiondomain.PlanPromoIntro,
		Remote:    remote,
	}); err != nil {
		t.Fatalf("re-project: %v", err)
	}

	record, err := svc.GetByAccountID(ctx, "acct_sticky")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.PromoUsed {
		t.Fatalf("expected promo_used to stay true")
	}
	if record.ExternalScheduleID == nil || *record.ExternalScheduleID != "sched_1" {
		t.Fatalf("expected schedule id to stay sched_1, got %v", record.ExternalScheduleID)
	}

	found, err := svc.GetByScheduleID(ctx, "sched_1")
	if err != nil {
		t.Fatalf("get by schedule: %v", err)
	}
	if found == nil || found.AccountID != "acct_sticky" {
		t.Fatalf("expected schedule lookup to return acct_sticky")
	}
}

func TestSwitchPlan(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 26, clock.NewFakeClock(time.Now().UTC()))

	now := time.Now().UTC()
	if _, err := svc.Project(ctx, subscriptiondomain.ProjectRequest{
		AccountID: "acct_switch",
		PlanType:  subscriptiondomain.PlanPromoIntro,
		Remote: &providerdomain.Subscription{
			ID: "sub_switch", Customer: "cus_1", Status: "active",
			CurrentPeriodStart: now.Unix(),
			CurrentPeriodEnd:   now.Add(30 * 24 * time.Hour).Unix(),
		},
	}); err != nil {
		t.Fatalf("project: %v", err)
	}

	standardPrice := "price_std"
	if err := svc.SwitchPlan(ctx, "acct_switch", subscriptiondomain.PlanStandard, &standardPrice); err != nil {
		t.Fatalf("switch plan: %v", err)
	}

	record, err := svc.GetByAccountID(ctx, "acct_switch")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.PlanType != subscriptiondomain.PlanStandard {
		t.Fatalf("expected standard plan, got %s", record.PlanType)
	}
	if record.ExternalPriceID == nil || *record.ExternalPriceID != "price_std" {
		t.Fatalf("expected price_std, got %v", record.ExternalPriceID)
	}
}

func newTestService(t *testing.T, node int64, clk clock.Clock) (subscriptiondomain.Service, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	genID, err := snowflake.NewNode(node)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: genID,
		Clock: clk,
		Repo:  subscriptionrepo.Provide(),
	})
	return svc, db
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE subscriptions (
			id BIGINT PRIMARY KEY,
			account_id TEXT NOT NULL,
			external_customer_id TEXT,
			external_subscription_id TEXT,
			external_price_id TEXT,
			external_schedule_id TEXT,
			plan_type TEXT NOT NULL,
			status TEXT NOT NULL,
			period_start DATETIME NOT NULL,
			period_end DATETIME,
			cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
			promo_used BOOLEAN NOT NULL DEFAULT FALSE,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_subscriptions_account ON subscriptions(account_id)`,
		`CREATE INDEX ix_subscriptions_schedule ON subscriptions(external_schedule_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

func assertCount(t *testing.T, db *gorm.DB, query string, want int64, args ...any) {
	t.Helper()
	var got int64
	if err := db.Raw(query, args...).Scan(&got).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	if got != want {
		t.Fatalf("expected count %d, got %d", want, got)
	}
}
