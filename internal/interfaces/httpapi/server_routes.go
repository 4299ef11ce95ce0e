package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
}

func registerFunnelRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/plans", handler.ListPlans)

	mux.HandleFunc("POST /v1/funnel/sessions", handler.StartSession)
	mux.HandleFunc("GET /v1/funnel/sessions/{sessionID}", handler.GetSession)
	mux.HandleFunc("POST /v1/funnel/sessions/{sessionID}/start-reading", handler.StartReading)

	mux.HandleFunc("PATCH /v1/funnel/sessions/{sessionID}/onboarding", handler.UpdateOnboarding)
	mux.HandleFunc("POST /v1/funnel/sessions/{sessionID}/onboarding/advance", handler.AdvanceOnboarding)
	mux.HandleFunc("POST /v1/funnel/sessions/{sessionID}/onboarding/city-search", handler.SearchCities)
	mux.HandleFunc("GET /v1/funnel/sessions/{sessionID}/onboarding/city-suggestions", handler.ListCitySuggestions)
	mux.HandleFunc("POST /v1/funnel/sessions/{sessionID}/onboarding/city-selection", handler.SelectCitySuggestion)

	mux.HandleFunc("POST /v1/funnel/sessions/{sessionID}/plan", handler.SelectPlan)
	mux.HandleFunc("POST /v1/funnel/sessions/{sessionID}/checkout/payment-session", handler.CreatePaymentSession)
	mux.HandleFunc("POST /v1/funnel/sessions/{sessionID}/checkout/confirm", handler.ConfirmPayment)
}
