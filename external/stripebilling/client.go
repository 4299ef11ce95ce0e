package stripebilling

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/valyala/bytebufferpool"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/platform/logging"
)

const checkoutSessionPath = "/stripe/create-checkout-session-public"

// lookupKeyByPlanID maps catalog plan ids to the billing system's price
// lookup keys. The mapping is total: unknown ids charge the premium price.
var lookupKeyByPlanID = map[string]string{
	"starter": "zodiya_trial",
	"premium": "zodiya_premium",
	"gold":    "zodiya_gold",
}

const fallbackLookupKey = "zodiya_premium"

// LookupKeyForPlan resolves a plan id to its billing lookup key.
func LookupKeyForPlan(planID string) string {
	if key, ok := lookupKeyByPlanID[planID]; ok {
		return key
	}
	return fallbackLookupKey
}

// ProviderError carries a user-presentable message from the payment provider.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

type ClientConfig struct {
	HTTPClient   *http.Client
	BaseURL      string
	StripeAPIURL string
	StripeSecret string
	Timeout      time.Duration
	Logger       *logging.Logger
}

// Client creates payment sessions through the billing proxy and confirms
// payment intents against the Stripe API. Card collection itself stays inside
// the provider; this client only drives the narrow mount/confirm surface.
type Client struct {
	httpClient   *http.Client
	sessionURL   string
	stripeAPIURL string
	stripeSecret string
	logger       *logging.Logger
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}

	stripeAPIURL := strings.TrimRight(strings.TrimSpace(cfg.StripeAPIURL), "/")
	if stripeAPIURL == "" {
		stripeAPIURL = "https://api.stripe.com"
	}

	return &Client{
		httpClient:   httpClient,
		sessionURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + checkoutSessionPath,
		stripeAPIURL: stripeAPIURL,
		stripeSecret: strings.TrimSpace(cfg.StripeSecret),
		logger:       logger,
	}
}

type checkoutSessionRequest struct {
	LookupKey   string `json:"lookup_key"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	UTMSource   string `json:"utmSource"`
	UTMCampaign string `json:"utmCampaign"`
}

type checkoutSessionResponse struct {
	ClientSecret string `json:"client_secret"`
	Message      string `json:"message"`
}

// CreatePaymentSession requests a payment-collection session for the given
// plan and returns its client secret. Unlike the enrichment lookups this call
// is fatal on failure: checkout cannot render without a secret, so errors are
// surfaced rather than swallowed.
func (c *Client) CreatePaymentSession(ctx context.Context, planID, email, name string, attribution funnel.Attribution) (string, error) {
	payload := checkoutSessionRequest{
		LookupKey:   LookupKeyForPlan(planID),
		Email:       email,
		Name:        name,
		UTMSource:   attribution.Source,
		UTMCampaign: attribution.Campaign,
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := sonic.ConfigDefault.NewEncoder(buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode checkout session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL, strings.NewReader(buf.String()))
	if err != nil {
		return "", fmt.Errorf("create checkout session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request checkout session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read checkout session response: %w", err)
	}

	var decoded checkoutSessionResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("checkout session failed with status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("decode checkout session response: %w", err)
	}

	if strings.TrimSpace(decoded.ClientSecret) == "" {
		message := strings.TrimSpace(decoded.Message)
		if message == "" {
			message = "Failed to initialize payment"
		}
		c.logger.WarnContext(ctx, "checkout session rejected",
			"status_code", resp.StatusCode,
			"lookup_key", payload.LookupKey,
		)
		return "", fmt.Errorf("create checkout session: %s", message)
	}

	return decoded.ClientSecret, nil
}

// ConfirmPayment confirms the payment intent behind the given client secret.
// Provider rejections come back as *ProviderError so the caller can show the
// provider's message and allow a retry; other errors are transport-level.
func (c *Client) ConfirmPayment(ctx context.Context, clientSecret string) error {
	intentID, ok := intentIDFromClientSecret(clientSecret)
	if !ok {
		return &ProviderError{Message: "Invalid payment session"}
	}

	form := url.Values{}
	form.Set("client_secret", clientSecret)

	confirmURL := fmt.Sprintf("%s/v1/payment_intents/%s/confirm", c.stripeAPIURL, url.PathEscape(intentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, confirmURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create confirm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.stripeSecret != "" {
		req.SetBasicAuth(c.stripeSecret, "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request payment confirmation: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read confirm response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var decoded struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := "Payment failed"
	if err := sonic.Unmarshal(body, &decoded); err == nil && strings.TrimSpace(decoded.Error.Message) != "" {
		message = decoded.Error.Message
	}

	c.logger.WarnContext(ctx, "payment confirmation rejected", "status_code", resp.StatusCode)
	return &ProviderError{Message: message}
}

// intentIDFromClientSecret extracts the payment-intent id from a secret of
// the form "pi_xxx_secret_yyy".
func intentIDFromClientSecret(clientSecret string) (string, bool) {
	clientSecret = strings.TrimSpace(clientSecret)
	intentID, _, found := strings.Cut(clientSecret, "_secret_")
	if !found || intentID == "" {
		return "", false
	}
	return intentID, true
}
