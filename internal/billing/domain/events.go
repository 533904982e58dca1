// Package domain defines the canonical billing events decoded off the
// webhook ingress and the vocabulary shared by the event handlers.
package domain

import (
	"strings"
	"time"

	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
)

// Provider event type tags accepted by the router. Everything else is
// acknowledged and ignored.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventScheduleUpdated      = "subscription_schedule.updated"
	EventScheduleCompleted    = "subscription_schedule.completed"
)

// Metadata keys the provider objects carry back to us. AccountID is set on
// every checkout we create; objects without it cannot be attributed.
const (
	MetadataAccountID   = "user_id"
	MetadataPlanType    = "plan_type"
	MetadataProductType = "product_type"
	MetadataProductID   = "product_id"
)

// Checkout session modes.
const (
	CheckoutModeSubscription = "subscription"
	CheckoutModePayment      = "payment"
)

// Event is a decoded webhook event. Exactly one of the payload fields is
// populated, selected by Type.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time

	Checkout     *CheckoutSession
	Subscription *providerdomain.Subscription
	Invoice      *Invoice
	Schedule     *providerdomain.Schedule
}

// CheckoutSession is the provider checkout object carried by
// checkout.session.completed.
type CheckoutSession struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Mode         string            `json:"mode"`
	AmountTotal  int64             `json:"amount_total"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

// Invoice is the slice of the provider invoice object the failure handler
// needs. Some payloads carry the subscription reference only under
// parent.subscription_details.
type Invoice struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
	Parent       *InvoiceParent    `json:"parent"`
}

type InvoiceParent struct {
	SubscriptionDetails *SubscriptionDetails `json:"subscription_details"`
}

type SubscriptionDetails struct {
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// SubscriptionRef resolves the subscription id across payload variants.
func (i *Invoice) SubscriptionRef() string {
	if i == nil {
		return ""
	}
	if ref := strings.TrimSpace(i.Subscription); ref != "" {
		return ref
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return strings.TrimSpace(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// AccountRef resolves the account id from invoice metadata, falling back to
// the subscription details metadata.
func (i *Invoice) AccountRef() string {
	if i == nil {
		return ""
	}
	if id := MetadataValue(i.Metadata, MetadataAccountID); id != "" {
		return id
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return MetadataValue(i.Parent.SubscriptionDetails.Metadata, MetadataAccountID)
	}
	return ""
}

// MetadataValue reads a trimmed metadata value, empty when absent.
func MetadataValue(metadata map[string]string, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	return strings.TrimSpace(metadata[key])
}
