// Package stripe implements the outbound provider client against the
// Stripe REST API using form-encoded requests.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/insightlabs/orrery/internal/config"
	"github.com/insightlabs/orrery/internal/observability/metrics"
	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Provide binds the client to the provider contract for dependency injection.
func Provide(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) providerdomain.Client {
	return NewClient(cfg, logger, m)
}

func NewClient(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.ProviderBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.ProviderAPIKey),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 12 * time.Second},
		logger:  logger.Named("provider.stripe"),
		metrics: m,
	}
}

func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*providerdomain.Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, providerdomain.ErrProviderRejected
	}
	var sub providerdomain.Subscription
	err := c.doRequest(ctx, "retrieve_subscription", http.MethodGet, "/v1/subscriptions/"+subscriptionID, nil, "", &sub)
	if err != nil {
		return nil, err
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: empty subscription response", providerdomain.ErrProviderRejected)
	}
	return &sub, nil
}

func (c *Client) CreateScheduleFromSubscription(ctx context.Context, subscriptionID string) (*providerdomain.Schedule, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, providerdomain.ErrProviderRejected
	}
	values := url.Values{}
	values.Set("from_subscription", subscriptionID)

	var schedule providerdomain.Schedule
	err := c.doRequest(ctx, "create_schedule", http.MethodPost, "/v1/subscription_schedules", values, "schedule-from:"+subscriptionID, &schedule)
	if err != nil {
		return nil, err
	}
	if schedule.ID == "" {
		return nil, fmt.Errorf("%w: empty schedule response", providerdomain.ErrProviderRejected)
	}
	return &schedule, nil
}

func (c *Client) UpdateSchedulePhases(ctx context.Context, scheduleID string, phases []providerdomain.Phase) (*providerdomain.Schedule, error) {
	scheduleID = strings.TrimSpace(scheduleID)
	if scheduleID == "" || len(phases) == 0 {
		return nil, providerdomain.ErrProviderRejected
	}
	values := url.Values{}
	for i, phase := range phases {
		prefix := "phases[" + strconv.Itoa(i) + "]"
		values.Set(prefix+"[items][0][price]", phase.Price)
		quantity := phase.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		values.Set(prefix+"[items][0][quantity]", strconv.FormatInt(quantity, 10))
		values.Set(prefix+"[start_date]", strconv.FormatInt(phase.Start.Unix(), 10))
		if phase.End != nil {
			values.Set(prefix+"[end_date]", strconv.FormatInt(phase.End.Unix(), 10))
		}
	}

	var schedule providerdomain.Schedule
	err := c.doRequest(ctx, "update_schedule_phases", http.MethodPost, "/v1/subscription_schedules/"+scheduleID, values, "schedule-phases:"+scheduleID, &schedule)
	if err != nil {
		return nil, err
	}
	if schedule.ID == "" {
		return nil, fmt.Errorf("%w: empty schedule response", providerdomain.ErrProviderRejected)
	}
	return &schedule, nil
}

func (c *Client) doRequest(
	ctx context.Context,
	operation string,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if c.apiKey == "" {
		return providerdomain.ErrNotConfigured
	}
	var bodyReader *strings.Reader
	if values != nil {
		bodyReader = strings.NewReader(values.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: %v", providerdomain.ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordProviderCall(ctx, operation, 0)
		c.logger.Warn("provider request failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", providerdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordProviderCall(ctx, operation, resp.StatusCode)

	if resp.StatusCode >= http.StatusInternalServerError {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", providerdomain.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return fmt.Errorf("%w: status %d", providerdomain.ErrProviderRejected, resp.StatusCode)
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			message = "status " + strconv.Itoa(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s", providerdomain.ErrProviderRejected, message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", providerdomain.ErrProviderRejected, err)
	}
	return nil
}

var _ providerdomain.Client = (*Client)(nil)
