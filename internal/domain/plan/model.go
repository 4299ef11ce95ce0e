package plan

// Plan is an immutable catalog entry. Instances are statically defined and
// never mutated; one is selected per session.
type Plan struct {
	ID            string
	Name          string
	Label         string
	Price         string
	Duration      string
	Tagline       string
	OriginalPrice string
	Discount      string
	Badge         string
	Features      []string
	Popular       bool
}

// DefaultPlanID is the plan pre-highlighted when the catalog is shown.
const DefaultPlanID = "premium"

var catalog = []Plan{
	{
		ID:       "starter",
		Name:     "STARTER",
		Label:    "TRY IT",
		Price:    "€2.99",
		Duration: "3-day trial",
		Tagline:  "3-day trial",
		Features: []string{
			"Natal Chart Report",
			"Synastry chart",
			"Transit chart",
			"Solar return chart",
			"Numerology insight",
			"Daily Tarot",
		},
		Badge: "Then €79.96 every month, auto-renewal unless you cancel before the trial expires.",
	},
	{
		ID:       "premium",
		Name:     "PREMIUM",
		Label:    "HOT OFFER",
		Price:    "€14.99 / week",
		Duration: "Billed €119.92 every 2 months, auto-renewal",
		Tagline:  "2 months",
		Discount: "-10%",
		Features: []string{
			"All included starter +",
			"Synastry report",
			"Daily transit report",
			"Moon phase report",
			"Numerology report",
		},
		Popular: true,
	},
	{
		ID:       "gold",
		Name:     "GOLD",
		Label:    "BEST VALUE",
		Price:    "€13.99 / week",
		Duration: "Billed 167.88€ every 3 month, auto-renewal",
		Tagline:  "Save 20%",
		Discount: "-20%",
		Features: []string{
			"All Premium features +",
			"Yearly horoscope report",
			"Yearly synastry report",
			"Yearly moon phase report",
			"Yearly numerology report",
		},
	},
}

// Catalog returns the three-tier offer set in display order.
func Catalog() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks up a catalog entry.
func ByID(planID string) (Plan, bool) {
	for _, p := range catalog {
		if p.ID == planID {
			return p, true
		}
	}
	return Plan{}, false
}
