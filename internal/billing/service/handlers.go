package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	billingdomain "github.com/insightlabs/orrery/internal/billing/domain"
	obslogger "github.com/insightlabs/orrery/internal/observability/logger"
	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
	purchasedomain "github.com/insightlabs/orrery/internal/purchase/domain"
	scheduledomain "github.com/insightlabs/orrery/internal/schedule/domain"
	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
)

func (s *Service) handleCheckoutCompleted(ctx context.Context, log *zap.Logger, event *billingdomain.Event) error {
	session := event.Checkout
	accountID := billingdomain.MetadataValue(session.Metadata, billingdomain.MetadataAccountID)
	if accountID == "" {
		return s.dropEvent(ctx, log, event, "missing_account")
	}
	log = obslogger.WithAccount(log, accountID)

	release := s.accountLocks.Acquire(accountID)
	defer release()

	switch session.Mode {
	case billingdomain.CheckoutModeSubscription:
		return s.applySubscriptionCheckout(ctx, log, event, accountID)
	case billingdomain.CheckoutModePayment:
		return s.applyPaymentCheckout(ctx, log, event, accountID)
	default:
		return s.dropEvent(ctx, log, event, "unknown_checkout_mode")
	}
}

func (s *Service) applySubscriptionCheckout(ctx context.Context, log *zap.Logger, event *billingdomain.Event, accountID string) error {
	session := event.Checkout
	subscriptionID := strings.TrimSpace(session.Subscription)
	if subscriptionID == "" {
		return s.dropEvent(ctx, log, event, "missing_subscription_ref")
	}

	// The checkout payload carries no period or item detail; the
	// subscription object is the source of truth.
	remote, err := s.provider.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	planType := s.resolvePlanType(session.Metadata, remote, nil)
	record, err := s.subscriptionSvc.Project(ctx, subscriptiondomain.ProjectRequest{
		AccountID: accountID,
		PlanType:  planType,
		Remote:    remote,
	})
	if err != nil {
		return err
	}
	if err := s.entitlementSvc.Project(ctx, record); err != nil {
		return err
	}

	if planType == subscriptiondomain.PlanAnnual {
		if err := s.grantAnnualCredits(ctx, log, accountID, session); err != nil {
			return err
		}
	}

	if planType == subscriptiondomain.PlanPromoIntro && !record.PromoUsed {
		return s.scheduleSvc.AttachPromoSchedule(ctx, accountID, subscriptionID, record.PeriodStart)
	}
	return nil
}

// grantAnnualCredits grants the annual signup credits at most once per
// checkout session. The unique session index on purchases provides the
// dedupe, same as the payment path.
func (s *Service) grantAnnualCredits(ctx context.Context, log *zap.Logger, accountID string, session *billingdomain.CheckoutSession) error {
	purchase := &purchasedomain.Purchase{
		ID:                s.genID.Generate(),
		AccountID:         accountID,
		ProductType:       purchasedomain.ProductAnnual,
		CheckoutSessionID: session.ID,
		Amount:            session.AmountTotal,
		Currency:          strings.ToUpper(strings.TrimSpace(session.Currency)),
		CreatedAt:         s.clock.Now().UTC(),
	}
	if err := s.purchaseRepo.Insert(ctx, s.db, purchase); err != nil {
		if errors.Is(err, purchasedomain.ErrDuplicateSession) {
			log.Info("checkout session replayed, annual credits already granted",
				zap.String("checkout_session_id", session.ID))
			return nil
		}
		return err
	}
	_, err := s.entitlementSvc.GrantCredits(ctx, accountID, purchasedomain.ProductAnnual)
	return err
}

func (s *Service) applyPaymentCheckout(ctx context.Context, log *zap.Logger, event *billingdomain.Event, accountID string) error {
	session := event.Checkout
	productType := billingdomain.MetadataValue(session.Metadata, billingdomain.MetadataProductType)
	if !purchasedomain.KnownProductType(productType) {
		return s.dropEvent(ctx, log, event, "unknown_product_type")
	}

	purchase := &purchasedomain.Purchase{
		ID:                s.genID.Generate(),
		AccountID:         accountID,
		ProductType:       productType,
		ExternalProductID: billingdomain.MetadataValue(session.Metadata, billingdomain.MetadataProductID),
		CheckoutSessionID: session.ID,
		Amount:            session.AmountTotal,
		Currency:          strings.ToUpper(strings.TrimSpace(session.Currency)),
		CreatedAt:         s.clock.Now().UTC(),
	}
	if err := s.purchaseRepo.Insert(ctx, s.db, purchase); err != nil {
		if errors.Is(err, purchasedomain.ErrDuplicateSession) {
			log.Info("checkout session replayed, purchase already recorded",
				zap.String("checkout_session_id", session.ID))
			return nil
		}
		return err
	}

	if productType == purchasedomain.ProductLifetime {
		record, err := s.subscriptionSvc.Project(ctx, subscriptiondomain.ProjectRequest{
			AccountID: accountID,
			PlanType:  subscriptiondomain.PlanLifetime,
		})
		if err != nil {
			return err
		}
		if err := s.entitlementSvc.Project(ctx, record); err != nil {
			return err
		}
	}

	_, err := s.entitlementSvc.GrantCredits(ctx, accountID, productType)
	return err
}

func (s *Service) handleSubscriptionChanged(ctx context.Context, log *zap.Logger, event *billingdomain.Event, deleted bool) error {
	remote := event.Subscription
	accountID := billingdomain.MetadataValue(remote.Metadata, billingdomain.MetadataAccountID)
	if accountID == "" {
		// Older subscriptions were created before we stamped metadata;
		// fall back to the local record.
		existing, err := s.subscriptionSvc.GetByExternalSubscriptionID(ctx, remote.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return s.dropEvent(ctx, log, event, "missing_account")
		}
		accountID = existing.AccountID
	}
	log = obslogger.WithAccount(log, accountID)

	release := s.accountLocks.Acquire(accountID)
	defer release()

	existing, err := s.subscriptionSvc.GetByAccountID(ctx, accountID)
	if err != nil {
		return err
	}
	if existing != nil && existing.PlanType == subscriptiondomain.PlanLifetime {
		// A lifetime account never regresses because a stale subscription
		// object arrived late.
		return nil
	}

	req := subscriptiondomain.ProjectRequest{
		AccountID: accountID,
		PlanType:  s.resolvePlanType(remote.Metadata, remote, existing),
		Remote:    remote,
	}
	if deleted {
		req.ForceStatus = subscriptiondomain.StatusCanceled
	}

	record, err := s.subscriptionSvc.Project(ctx, req)
	if err != nil {
		return err
	}
	return s.entitlementSvc.Project(ctx, record)
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, log *zap.Logger, event *billingdomain.Event) error {
	invoice := event.Invoice
	subscriptionRef := invoice.SubscriptionRef()
	if subscriptionRef == "" {
		return s.dropEvent(ctx, log, event, "missing_subscription_ref")
	}

	accountID := invoice.AccountRef()
	if accountID == "" {
		existing, err := s.subscriptionSvc.GetByExternalSubscriptionID(ctx, subscriptionRef)
		if err != nil {
			return err
		}
		if existing == nil {
			return s.dropEvent(ctx, log, event, "missing_account")
		}
		accountID = existing.AccountID
	}
	log = obslogger.WithAccount(log, accountID)

	release := s.accountLocks.Acquire(accountID)
	defer release()

	existing, err := s.subscriptionSvc.GetByAccountID(ctx, accountID)
	if err != nil {
		return err
	}
	if existing != nil && existing.PlanType == subscriptiondomain.PlanLifetime {
		return nil
	}

	// The invoice object carries no period data, so refresh from the
	// provider. The subscription's own status already reflects the failed
	// payment by the time this event fires.
	remote, err := s.provider.RetrieveSubscription(ctx, subscriptionRef)
	if err != nil {
		return err
	}

	record, err := s.subscriptionSvc.Project(ctx, subscriptiondomain.ProjectRequest{
		AccountID: accountID,
		PlanType:  s.resolvePlanType(remote.Metadata, remote, existing),
		Remote:    remote,
	})
	if err != nil {
		return err
	}
	return s.entitlementSvc.Project(ctx, record)
}

func (s *Service) handleScheduleEvent(ctx context.Context, log *zap.Logger, event *billingdomain.Event) error {
	schedule := event.Schedule

	record, err := s.subscriptionSvc.GetByScheduleID(ctx, schedule.ID)
	if err != nil {
		return err
	}
	if record != nil {
		release := s.accountLocks.Acquire(record.AccountID)
		defer release()
	}

	return s.scheduleSvc.HandleScheduleEvent(ctx, scheduledomain.ScheduleEvent{
		ScheduleID: schedule.ID,
		Completed:  event.Type == billingdomain.EventScheduleCompleted,
		Phases:     schedule.Phases,
	})
}

// resolvePlanType picks the plan in order of trust: explicit metadata, the
// price id against the configured catalog, the existing local record, then
// standard.
func (s *Service) resolvePlanType(metadata map[string]string, remote *providerdomain.Subscription, existing *subscriptiondomain.Subscription) subscriptiondomain.PlanType {
	if raw := billingdomain.MetadataValue(metadata, billingdomain.MetadataPlanType); raw != "" {
		if planType, ok := subscriptiondomain.ParsePlanType(raw); ok {
			return planType
		}
	}
	if remote != nil {
		if raw := billingdomain.MetadataValue(remote.Metadata, billingdomain.MetadataPlanType); raw != "" {
			if planType, ok := subscriptiondomain.ParsePlanType(raw); ok {
				return planType
			}
		}
		if item := remote.FirstItem(); item != nil {
			plans := s.plans.Get()
			switch strings.TrimSpace(item.Price.ID) {
			case plans.PromoPriceID:
				return subscriptiondomain.PlanPromoIntro
			case plans.AnnualPriceID:
				return subscriptiondomain.PlanAnnual
			case plans.StandardPriceID:
				return subscriptiondomain.PlanStandard
			}
		}
	}
	if existing != nil {
		return existing.PlanType
	}
	return subscriptiondomain.PlanStandard
}
