package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/platform/logging"
	"github.com/zodiya/funnel-api/internal/usecase"
)

type Handler struct {
	funnelService     *usecase.FunnelService
	onboardingService *usecase.OnboardingService
	checkoutService   *usecase.CheckoutService
	planService       *usecase.PlanService
	logger            *logging.Logger
	validator         *validator.Validate
}

func NewHandler(
	funnelService *usecase.FunnelService,
	onboardingService *usecase.OnboardingService,
	checkoutService *usecase.CheckoutService,
	planService *usecase.PlanService,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		funnelService:     funnelService,
		onboardingService: onboardingService,
		checkoutService:   checkoutService,
		planService:       planService,
		logger:            logger,
		validator:         validator.New(),
	}
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

func decodeJSONBody(r *http.Request, target any) error {
	decoder := jsoniter.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

type startSessionRequest struct {
	SessionID   string `json:"session_id" validate:"omitempty,max=64"`
	UTMSource   string `json:"utm_source" validate:"omitempty,max=200"`
	UTMCampaign string `json:"utm_campaign" validate:"omitempty,max=200"`
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.StartSession")
	defer span.End()

	var req startSessionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	session, err := h.funnelService.StartSession(ctx, usecase.StartSessionInput{
		SessionID: req.SessionID,
		Source:    req.UTMSource,
		Campaign:  req.UTMCampaign,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "start session failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.sessionToDTO(session))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetSession")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))
	session, err := h.funnelService.Snapshot(ctx, sessionID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.sessionToDTO(session))
}

func (h *Handler) StartReading(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.StartReading")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))
	session, err := h.funnelService.StartReading(ctx, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "start reading failed", "session_id", sessionID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.sessionToDTO(session))
}

type attributionDTO struct {
	UTMSource   string `json:"utmSource,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
}

type onboardingDataDTO struct {
	FirstName     string   `json:"firstName"`
	BirthDate     string   `json:"birthDate"`
	BirthTime     string   `json:"birthTime"`
	TimeUnknown   bool     `json:"timeUnknown"`
	BirthCity     string   `json:"birthCity"`
	PlaceID       string   `json:"placeId,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	TZOffsetHours *float64 `json:"tzOffsetHours,omitempty"`
	Gender        string   `json:"gender"`
	LifeArea      string   `json:"lifeArea"`
	HasHadReading string   `json:"hasHadReading"`
	Email         string   `json:"email"`
}

type citySuggestionDTO struct {
	Description string `json:"description"`
	PlaceID     string `json:"placeId"`
}

type onboardingStateDTO struct {
	Step        int                 `json:"step"`
	StepCount   int                 `json:"stepCount"`
	CanAdvance  bool                `json:"canAdvance"`
	Data        onboardingDataDTO   `json:"data"`
	Suggestions []citySuggestionDTO `json:"suggestions"`
}

type checkoutDTO struct {
	ClientSecret   string `json:"clientSecret,omitempty"`
	FailureMessage string `json:"failureMessage,omitempty"`
	Completed      bool   `json:"completed"`
}

type sessionDTO struct {
	SessionID      string             `json:"sessionId"`
	Screen         string             `json:"screen"`
	Attribution    attributionDTO     `json:"attribution"`
	Onboarding     onboardingStateDTO `json:"onboarding"`
	SelectedPlanID string             `json:"selectedPlanId,omitempty"`
	AuthToken      string             `json:"authToken,omitempty"`
	Checkout       checkoutDTO        `json:"checkout"`
	Notice         string             `json:"notice,omitempty"`
	DashboardURL   string             `json:"dashboardUrl,omitempty"`
}

func (h *Handler) sessionToDTO(session funnel.Session) sessionDTO {
	data := session.Onboarding.Data

	suggestions := make([]citySuggestionDTO, 0, len(session.Onboarding.Suggestions))
	for _, s := range session.Onboarding.Suggestions {
		suggestions = append(suggestions, citySuggestionDTO{
			Description: s.Description,
			PlaceID:     s.PlaceID,
		})
	}

	return sessionDTO{
		SessionID: session.ID,
		Screen:    string(session.Screen),
		Attribution: attributionDTO{
			UTMSource:   session.Attribution.Source,
			UTMCampaign: session.Attribution.Campaign,
		},
		Onboarding: onboardingStateDTO{
			Step:       session.Onboarding.Step,
			StepCount:  funnel.StepCount(),
			CanAdvance: funnel.CanAdvance(session.Onboarding.Step, data, time.Now().UTC()),
			Data: onboardingDataDTO{
				FirstName:     data.FirstName,
				BirthDate:     data.BirthDate,
				BirthTime:     data.BirthTime,
				TimeUnknown:   data.TimeUnknown,
				BirthCity:     data.BirthCity,
				PlaceID:       data.PlaceID,
				Lat:           data.Lat,
				Lon:           data.Lon,
				TZOffsetHours: data.TZOffsetHours,
				Gender:        data.Gender,
				LifeArea:      data.LifeArea,
				HasHadReading: data.HasHadReading,
				Email:         data.Email,
			},
			Suggestions: suggestions,
		},
		SelectedPlanID: session.SelectedPlanID,
		AuthToken:      session.AuthToken,
		Checkout: checkoutDTO{
			ClientSecret:   session.Checkout.ClientSecret,
			FailureMessage: session.Checkout.FailureMessage,
			Completed:      session.Checkout.Completed,
		},
		Notice:       session.Notice,
		DashboardURL: h.funnelService.DashboardURL(session),
	}
}
