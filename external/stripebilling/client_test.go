package stripebilling

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/platform/logging"
)

func TestLookupKeyForPlan(t *testing.T) {
	cases := []struct {
		planID string
		want   string
	}{
		{"starter", "zodiya_trial"},
		{"premium", "zodiya_premium"},
		{"gold", "zodiya_gold"},
		{"platinum", "zodiya_premium"},
		{"", "zodiya_premium"},
	}
	for _, tc := range cases {
		if got := LookupKeyForPlan(tc.planID); got != tc.want {
			t.Fatalf("LookupKeyForPlan(%q) = %q, want %q", tc.planID, got, tc.want)
		}
	}
}

func TestCreatePaymentSession_ReturnsSecret(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stripe/create-checkout-session-public" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"client_secret":"pi_123_secret_abc"}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		Logger:     logging.NewNop(),
	})

	secret, err := client.CreatePaymentSession(t.Context(), "gold", "maya@example.com", "Maya",
		funnel.Attribution{Source: "instagram", Campaign: "spring"})
	if err != nil {
		t.Fatalf("create payment session failed: %v", err)
	}
	if secret != "pi_123_secret_abc" {
		t.Fatalf("unexpected secret %q", secret)
	}
	if payload["lookup_key"] != "zodiya_gold" {
		t.Fatalf("unexpected lookup key %q", payload["lookup_key"])
	}
	if payload["utmSource"] != "instagram" || payload["utmCampaign"] != "spring" {
		t.Fatalf("attribution not forwarded: %v", payload)
	}
}

func TestCreatePaymentSession_EmptySecretIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"client_secret":"","message":"Unknown price"}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{HTTPClient: srv.Client(), BaseURL: srv.URL, Logger: logging.NewNop()})

	_, err := client.CreatePaymentSession(t.Context(), "premium", "maya@example.com", "Maya", funnel.Attribution{})
	if err == nil {
		t.Fatal("expected error on empty client secret")
	}
	if !strings.Contains(err.Error(), "Unknown price") {
		t.Fatalf("provider message lost: %v", err)
	}
}

func TestConfirmPayment_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_123/confirm" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, _, ok := r.BasicAuth()
		if !ok || user != "sk_test_key" {
			t.Errorf("missing basic auth, user=%q", user)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("client_secret"); got != "pi_123_secret_abc" {
			t.Errorf("unexpected client_secret %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded"}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		HTTPClient:   srv.Client(),
		BaseURL:      srv.URL,
		StripeAPIURL: srv.URL,
		StripeSecret: "sk_test_key",
		Logger:       logging.NewNop(),
	})

	if err := client.ConfirmPayment(t.Context(), "pi_123_secret_abc"); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
}

func TestConfirmPayment_RejectionCarriesProviderMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		HTTPClient:   srv.Client(),
		BaseURL:      srv.URL,
		StripeAPIURL: srv.URL,
		Logger:       logging.NewNop(),
	})

	err := client.ConfirmPayment(t.Context(), "pi_123_secret_abc")
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if providerErr.Message != "Your card was declined." {
		t.Fatalf("unexpected message %q", providerErr.Message)
	}
}

func TestConfirmPayment_MalformedSecret(t *testing.T) {
	client := NewClient(ClientConfig{Logger: logging.NewNop()})

	err := client.ConfirmPayment(t.Context(), "not-a-secret")
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestIntentIDFromClientSecret(t *testing.T) {
	cases := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"pi_123_secret_abc", "pi_123", true},
		{" pi_9_secret_x ", "pi_9", true},
		{"_secret_abc", "", false},
		{"pi_123", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		id, ok := intentIDFromClientSecret(tc.in)
		if id != tc.wantID || ok != tc.wantOK {
			t.Fatalf("intentIDFromClientSecret(%q) = (%q, %t), want (%q, %t)", tc.in, id, ok, tc.wantID, tc.wantOK)
		}
	}
}
