package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/zodiya/funnel-api/external/astro"
	"github.com/zodiya/funnel-api/external/places"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/infrastructure/repository/memory"
	"github.com/zodiya/funnel-api/internal/platform/debounce"
	idgen "github.com/zodiya/funnel-api/internal/platform/id"
	"github.com/zodiya/funnel-api/internal/platform/logging"
	"github.com/zodiya/funnel-api/internal/usecase"
)

type stubSignupClient struct {
	result astro.SignupResult
}

func (c stubSignupClient) SubmitSignup(context.Context, astro.SignupInput) (astro.SignupResult, error) {
	return c.result, nil
}

type stubPlaceClient struct {
	suggestions []funnel.CitySuggestion
	details     places.PlaceDetails
}

func (c stubPlaceClient) SearchPlaces(context.Context, string) ([]funnel.CitySuggestion, error) {
	return c.suggestions, nil
}

func (c stubPlaceClient) ResolvePlace(context.Context, string) (places.PlaceDetails, error) {
	return c.details, nil
}

type stubBillingClient struct {
	secret string
}

func (c stubBillingClient) CreatePaymentSession(context.Context, string, string, string, funnel.Attribution) (string, error) {
	return c.secret, nil
}

func (c stubBillingClient) ConfirmPayment(context.Context, string) error {
	return nil
}

func newFunnelTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo := memory.NewSessionRepository()
	logger := logging.NewNop()

	funnelSvc := usecase.NewFunnelService(
		repo,
		idgen.NewRandomGenerator(),
		stubSignupClient{result: astro.SignupResult{Token: "jwt-123"}},
		usecase.FunnelServiceConfig{
			LoadingDuration: 10 * time.Millisecond,
			SessionTTL:      time.Hour,
			PortalURL:       "https://portal.zodiya.app",
		},
		logger,
	)

	debouncer := debounce.New(time.Millisecond)
	t.Cleanup(debouncer.Close)

	lat, lon, offset := 38.7223, -9.1393, 0.0
	onboardingSvc := usecase.NewOnboardingService(funnelSvc, stubPlaceClient{
		suggestions: []funnel.CitySuggestion{{Description: "Lisbon, Portugal", PlaceID: "pid-1"}},
		details:     places.PlaceDetails{City: "Lisbon", Lat: &lat, Lon: &lon, UTCOffsetHours: &offset},
	}, debouncer, nil, logger)

	checkoutSvc := usecase.NewCheckoutService(funnelSvc, stubBillingClient{secret: "pi_1_secret_a"}, logger)

	handler := NewHandler(funnelSvc, onboardingSvc, checkoutSvc, usecase.NewPlanService(), logger)
	router := NewRouter(handler, slog.New(slog.NewTextHandler(io.Discard, nil)), []string{"*"})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var envelope map[string]any
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal response %q: %v", raw, err)
	}
	return resp.StatusCode, envelope
}

func dataField(t *testing.T, envelope map[string]any) map[string]any {
	t.Helper()
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data in envelope: %v", envelope)
	}
	return data
}

func TestFunnelFlow_EndToEnd(t *testing.T) {
	srv := newFunnelTestServer(t)

	status, envelope := doJSON(t, http.MethodPost, srv.URL+"/v1/funnel/sessions", `{"utm_source":"instagram","utm_campaign":"spring"}`)
	if status != http.StatusOK {
		t.Fatalf("start session status %d: %v", status, envelope)
	}
	data := dataField(t, envelope)
	sessionID, _ := data["sessionId"].(string)
	if sessionID == "" {
		t.Fatalf("missing session id: %v", data)
	}
	if data["screen"] != "hero" {
		t.Fatalf("expected hero screen, got %v", data["screen"])
	}

	base := srv.URL + "/v1/funnel/sessions/" + sessionID

	status, envelope = doJSON(t, http.MethodPost, base+"/start-reading", "")
	if status != http.StatusOK || dataField(t, envelope)["screen"] != "onboarding" {
		t.Fatalf("start reading: status=%d envelope=%v", status, envelope)
	}

	status, envelope = doJSON(t, http.MethodPatch, base+"/onboarding", `{
		"first_name":"Maya",
		"birth_date":"1992-07-14",
		"birth_time":"08:45",
		"birth_city":"Lisbon",
		"gender":"female",
		"life_area":"career",
		"has_had_reading":"no",
		"email":"maya@example.com"
	}`)
	if status != http.StatusOK {
		t.Fatalf("update onboarding status %d: %v", status, envelope)
	}

	// Walk the wizard to the final step, then submit.
	for step := 1; step < 7; step++ {
		status, envelope = doJSON(t, http.MethodPost, base+"/onboarding/advance", "")
		if status != http.StatusOK {
			t.Fatalf("advance at step %d: status=%d envelope=%v", step, status, envelope)
		}
	}
	status, envelope = doJSON(t, http.MethodPost, base+"/onboarding/advance", "")
	if status != http.StatusOK {
		t.Fatalf("final advance status %d: %v", status, envelope)
	}
	data = dataField(t, envelope)
	if data["screen"] != "loading" {
		t.Fatalf("expected loading after submission, got %v", data["screen"])
	}
	if data["authToken"] != "jwt-123" {
		t.Fatalf("token not surfaced: %v", data["authToken"])
	}

	// The timed transition lands on the plans screen.
	deadline := time.Now().Add(2 * time.Second)
	for {
		status, envelope = doJSON(t, http.MethodGet, base, "")
		if status != http.StatusOK {
			t.Fatalf("get session status %d: %v", status, envelope)
		}
		if dataField(t, envelope)["screen"] == "plans" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never reached plans: %v", envelope)
		}
		time.Sleep(5 * time.Millisecond)
	}

	status, envelope = doJSON(t, http.MethodPost, base+"/plan", `{"plan_id":"gold"}`)
	if status != http.StatusOK {
		t.Fatalf("select plan status %d: %v", status, envelope)
	}
	data = dataField(t, envelope)
	if data["screen"] != "checkout" || data["selectedPlanId"] != "gold" {
		t.Fatalf("unexpected checkout state: %v", data)
	}

	status, envelope = doJSON(t, http.MethodPost, base+"/checkout/payment-session", "")
	if status != http.StatusOK {
		t.Fatalf("payment session status %d: %v", status, envelope)
	}
	checkout, _ := dataField(t, envelope)["checkout"].(map[string]any)
	if checkout["clientSecret"] != "pi_1_secret_a" {
		t.Fatalf("client secret missing: %v", checkout)
	}

	status, envelope = doJSON(t, http.MethodPost, base+"/checkout/confirm", "")
	if status != http.StatusOK {
		t.Fatalf("confirm status %d: %v", status, envelope)
	}
	data = dataField(t, envelope)
	if data["screen"] != "success" {
		t.Fatalf("expected success screen, got %v", data["screen"])
	}
	if data["dashboardUrl"] != "https://portal.zodiya.app/home?token=jwt-123" {
		t.Fatalf("unexpected dashboard url %v", data["dashboardUrl"])
	}
}

func TestCityAutocompleteFlow(t *testing.T) {
	srv := newFunnelTestServer(t)

	_, envelope := doJSON(t, http.MethodPost, srv.URL+"/v1/funnel/sessions", `{}`)
	sessionID, _ := dataField(t, envelope)["sessionId"].(string)
	base := srv.URL + "/v1/funnel/sessions/" + sessionID

	if status, _ := doJSON(t, http.MethodPost, base+"/start-reading", ""); status != http.StatusOK {
		t.Fatalf("start reading status %d", status)
	}

	status, envelope := doJSON(t, http.MethodPost, base+"/onboarding/city-search", `{"input":"lis"}`)
	if status != http.StatusAccepted {
		t.Fatalf("city search status %d: %v", status, envelope)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, envelope = doJSON(t, http.MethodGet, base+"/onboarding/city-suggestions", "")
		suggestions, _ := dataField(t, envelope)["suggestions"].([]any)
		if len(suggestions) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("suggestions never arrived: %v", envelope)
		}
		time.Sleep(5 * time.Millisecond)
	}

	status, envelope = doJSON(t, http.MethodPost, base+"/onboarding/city-selection", `{"description":"Lisbon, Portugal","place_id":"pid-1"}`)
	if status != http.StatusOK {
		t.Fatalf("city selection status %d: %v", status, envelope)
	}
	onboarding, _ := dataField(t, envelope)["onboarding"].(map[string]any)
	dataObj, _ := onboarding["data"].(map[string]any)
	if dataObj["birthCity"] != "Lisbon" {
		t.Fatalf("optimistic city not applied: %v", dataObj["birthCity"])
	}
}

func TestListPlans(t *testing.T) {
	srv := newFunnelTestServer(t)

	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/v1/plans", "")
	if status != http.StatusOK {
		t.Fatalf("plans status %d: %v", status, envelope)
	}
	data := dataField(t, envelope)
	plans, _ := data["plans"].([]any)
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	if data["defaultPlanId"] != "premium" {
		t.Fatalf("unexpected default plan %v", data["defaultPlanId"])
	}
}

func TestGetSession_UnknownIDReturnsNotFoundEnvelope(t *testing.T) {
	srv := newFunnelTestServer(t)

	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/v1/funnel/sessions/does-not-exist", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %v", status, envelope)
	}
	errorObj, _ := envelope["error"].(map[string]any)
	if errorObj["status"] != "NOT_FOUND" {
		t.Fatalf("unexpected error body %v", errorObj)
	}
}

func TestStartSession_RejectsUnknownFields(t *testing.T) {
	srv := newFunnelTestServer(t)

	status, envelope := doJSON(t, http.MethodPost, srv.URL+"/v1/funnel/sessions", `{"bogus":"field"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", status, envelope)
	}
}
