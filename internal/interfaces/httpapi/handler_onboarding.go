package httpapi

import (
	"net/http"
	"strings"

	"github.com/zodiya/funnel-api/internal/usecase"
)

type updateOnboardingRequest struct {
	FirstName     *string `json:"first_name" validate:"omitempty,max=100"`
	BirthDate     *string `json:"birth_date" validate:"omitempty,max=10"`
	BirthTime     *string `json:"birth_time" validate:"omitempty,max=5"`
	TimeUnknown   *bool   `json:"time_unknown"`
	BirthCity     *string `json:"birth_city" validate:"omitempty,max=200"`
	Gender        *string `json:"gender" validate:"omitempty,max=20"`
	LifeArea      *string `json:"life_area" validate:"omitempty,max=50"`
	HasHadReading *string `json:"has_had_reading" validate:"omitempty,max=10"`
	Email         *string `json:"email" validate:"omitempty,max=254"`
}

func (h *Handler) UpdateOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UpdateOnboarding")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))

	var req updateOnboardingRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	session, err := h.onboardingService.UpdateFields(ctx, sessionID, usecase.UpdateOnboardingInput{
		FirstName:     req.FirstName,
		BirthDate:     req.BirthDate,
		BirthTime:     req.BirthTime,
		TimeUnknown:   req.TimeUnknown,
		BirthCity:     req.BirthCity,
		Gender:        req.Gender,
		LifeArea:      req.LifeArea,
		HasHadReading: req.HasHadReading,
		Email:         req.Email,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.sessionToDTO(session))
}

func (h *Handler) AdvanceOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.AdvanceOnboarding")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))
	session, err := h.onboardingService.Advance(ctx, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "advance onboarding failed", "session_id", sessionID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.sessionToDTO(session))
}

type citySearchRequest struct {
	Input string `json:"input" validate:"max=200"`
}

func (h *Handler) SearchCities(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SearchCities")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))

	var req citySearchRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	session, err := h.onboardingService.SearchCities(ctx, sessionID, req.Input)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusAccepted, h.sessionToDTO(session))
}

func (h *Handler) ListCitySuggestions(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListCitySuggestions")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))
	session, err := h.funnelService.Snapshot(ctx, sessionID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	suggestions := make([]citySuggestionDTO, 0, len(session.Onboarding.Suggestions))
	for _, s := range session.Onboarding.Suggestions {
		suggestions = append(suggestions, citySuggestionDTO{
			Description: s.Description,
			PlaceID:     s.PlaceID,
		})
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type citySelectionRequest struct {
	Description string `json:"description" validate:"required,max=300"`
	PlaceID     string `json:"place_id" validate:"required,max=200"`
}

func (h *Handler) SelectCitySuggestion(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SelectCitySuggestion")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))

	var req citySelectionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	session, err := h.onboardingService.SelectSuggestion(ctx, sessionID, usecase.SelectSuggestionInput{
		Description: req.Description,
		PlaceID:     req.PlaceID,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.sessionToDTO(session))
}
