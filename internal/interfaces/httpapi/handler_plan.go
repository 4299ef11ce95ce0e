package httpapi

import (
	"net/http"

	"github.com/zodiya/funnel-api/internal/domain/plan"
)

type planDTO struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Label         string   `json:"label,omitempty"`
	Price         string   `json:"price"`
	Duration      string   `json:"duration"`
	Tagline       string   `json:"tagline,omitempty"`
	OriginalPrice string   `json:"originalPrice,omitempty"`
	Discount      string   `json:"discount,omitempty"`
	Badge         string   `json:"badge,omitempty"`
	Features      []string `json:"features"`
	Popular       bool     `json:"popular"`
}

type planCatalogDTO struct {
	Plans         []planDTO `json:"plans"`
	DefaultPlanID string    `json:"defaultPlanId"`
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListPlans")
	defer span.End()

	plans, defaultID := h.planService.List(ctx)
	writeSuccess(ctx, w, http.StatusOK, planCatalogDTO{
		Plans:         plansToDTO(plans),
		DefaultPlanID: defaultID,
	})
}

func plansToDTO(plans []plan.Plan) []planDTO {
	out := make([]planDTO, 0, len(plans))
	for _, p := range plans {
		out = append(out, planDTO{
			ID:            p.ID,
			Name:          p.Name,
			Label:         p.Label,
			Price:         p.Price,
			Duration:      p.Duration,
			Tagline:       p.Tagline,
			OriginalPrice: p.OriginalPrice,
			Discount:      p.Discount,
			Badge:         p.Badge,
			Features:      append([]string(nil), p.Features...),
			Popular:       p.Popular,
		})
	}
	return out
}
