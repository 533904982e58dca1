// Package ingress verifies and decodes provider webhook deliveries into
// canonical billing events.
package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	billingdomain "github.com/insightlabs/orrery/internal/billing/domain"
	"github.com/insightlabs/orrery/internal/config"
	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
)

// SignatureHeader carries the delivery signature in the provider's
// `t=<unix>,v1=<hex>` scheme. The signed payload is "<t>.<raw body>".
const SignatureHeader = "Orrery-Signature"

type Ingress struct {
	webhookSecret string
}

func New(cfg config.Config) (*Ingress, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, billingdomain.ErrInvalidConfig
	}
	return &Ingress{webhookSecret: secret}, nil
}

// Verify checks the delivery signature against the shared webhook secret.
func (i *Ingress) Verify(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" {
		return billingdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return billingdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(i.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return billingdomain.ErrInvalidSignature
}

// Decode parses a verified payload into a typed billing event. Unknown event
// types return ErrEventIgnored so the router can acknowledge them.
func (i *Ingress) Decode(payload []byte) (*billingdomain.Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return nil, billingdomain.ErrInvalidPayload
	}

	event := &billingdomain.Event{
		ID:         envelope.ID,
		Type:       strings.TrimSpace(envelope.Type),
		OccurredAt: timestamp(envelope.Created),
	}

	switch event.Type {
	case billingdomain.EventCheckoutCompleted:
		var session billingdomain.CheckoutSession
		if err := json.Unmarshal(envelope.Data.Object, &session); err != nil {
			return nil, billingdomain.ErrInvalidPayload
		}
		if strings.TrimSpace(session.ID) == "" {
			return nil, billingdomain.ErrInvalidPayload
		}
		event.Checkout = &session
	case billingdomain.EventSubscriptionCreated,
		billingdomain.EventSubscriptionUpdated,
		billingdomain.EventSubscriptionDeleted:
		var subscription providerdomain.Subscription
		if err := json.Unmarshal(envelope.Data.Object, &subscription); err != nil {
			return nil, billingdomain.ErrInvalidPayload
		}
		if strings.TrimSpace(subscription.ID) == "" {
			return nil, billingdomain.ErrInvalidPayload
		}
		event.Subscription = &subscription
	case billingdomain.EventInvoicePaymentFailed:
		var invoice billingdomain.Invoice
		if err := json.Unmarshal(envelope.Data.Object, &invoice); err != nil {
			return nil, billingdomain.ErrInvalidPayload
		}
		event.Invoice = &invoice
	case billingdomain.EventScheduleUpdated,
		billingdomain.EventScheduleCompleted:
		var schedule providerdomain.Schedule
		if err := json.Unmarshal(envelope.Data.Object, &schedule); err != nil {
			return nil, billingdomain.ErrInvalidPayload
		}
		if strings.TrimSpace(schedule.ID) == "" {
			return nil, billingdomain.ErrInvalidPayload
		}
		event.Schedule = &schedule
	default:
		return nil, billingdomain.ErrEventIgnored
	}

	return event, nil
}

type eventEnvelope struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Created int64        `json:"created"`
	Data    envelopeData `json:"data"`
}

type envelopeData struct {
	Object json.RawMessage `json:"object"`
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(value int64) time.Time {
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
