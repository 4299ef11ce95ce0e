package httpapi

import (
	"net/http"
	"strings"
)

type selectPlanRequest struct {
	PlanID string `json:"plan_id" validate:"required,max=50"`
}

func (h *Handler) SelectPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SelectPlan")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))

	var req selectPlanRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	session, err := h.funnelService.SelectPlan(ctx, sessionID, req.PlanID)
	if err != nil {
		h.logger.WarnContext(ctx, "select plan failed", "session_id", sessionID, "plan_id", req.PlanID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.sessionToDTO(session))
}

func (h *Handler) CreatePaymentSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreatePaymentSession")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))
	session, err := h.checkoutService.CreatePaymentSession(ctx, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "create payment session failed", "session_id", sessionID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.sessionToDTO(session))
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ConfirmPayment")
	defer span.End()

	sessionID := strings.TrimSpace(r.PathValue("sessionID"))
	session, err := h.checkoutService.ConfirmPayment(ctx, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "confirm payment failed", "session_id", sessionID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.sessionToDTO(session))
}
