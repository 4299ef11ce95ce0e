package funnel

import (
	"strings"
	"time"
)

// Screen is one of the mutually exclusive funnel screens. A session shows
// exactly one screen at a time.
type Screen string

const (
	ScreenHero       Screen = "hero"
	ScreenOnboarding Screen = "onboarding"
	ScreenLoading    Screen = "loading"
	ScreenPlans      Screen = "plans"
	ScreenCheckout   Screen = "checkout"
	ScreenSuccess    Screen = "success"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// MinBirthDate is the earliest accepted date of birth.
const MinBirthDate = "1940-01-01"

const DateLayout = "2006-01-02"

// CitySuggestion is an ephemeral autocomplete entry. The suggestion set is
// replaced wholesale on every successful lookup.
type CitySuggestion struct {
	Description string
	PlaceID     string
}

// Attribution holds campaign-tracking values captured once per session.
// Once a value is set it is never overwritten for the session's lifetime.
type Attribution struct {
	Source   string
	Campaign string
}

// OnboardingData accumulates the visitor's profile across the wizard steps.
// It is mutable until step seven is submitted, then frozen onto the session.
type OnboardingData struct {
	FirstName     string
	BirthDate     string // DateLayout
	BirthTime     string // HH:MM, empty when TimeUnknown
	TimeUnknown   bool
	BirthCity     string
	PlaceID       string
	Lat           *float64
	Lon           *float64
	TZOffsetHours *float64
	Gender        string
	LifeArea      string
	HasHadReading string
	Email         string
}

// OnboardingState is the step controller's working state.
type OnboardingState struct {
	Step        int
	Data        OnboardingData
	Suggestions []CitySuggestion
	// LookupSeq is the sequence number of the most recently issued city
	// lookup. A lookup result is applied only when it still carries this
	// number, which drops superseded responses regardless of network order.
	LookupSeq int64
}

// Checkout is the payment-session state for the checkout screen.
type Checkout struct {
	ClientSecret   string
	FailureMessage string
	Confirming     bool
	Completed      bool
}

// Session is the funnel orchestrator's session-scoped record. It is owned and
// mutated exclusively through the funnel service; handlers and workers receive
// read-only snapshots.
type Session struct {
	ID          string
	Screen      Screen
	Attribution Attribution
	Onboarding  OnboardingState
	// Result holds the frozen onboarding bundle once step seven completes.
	Result         *OnboardingData
	AuthToken      string
	SelectedPlanID string
	ContactEmail   string
	ContactName    string
	Checkout       Checkout
	// LoadingGen counts entries into the loading screen; the timed
	// loading -> plans transition fires once per generation.
	LoadingGen int64
	Notice     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time
}

// NewSession returns a hero-screen session with the default onboarding seed.
func NewSession(sessionID string, now time.Time, ttl time.Duration) Session {
	seedTZ := -8.0
	return Session{
		ID:     sessionID,
		Screen: ScreenHero,
		Onboarding: OnboardingState{
			Step: 1,
			Data: OnboardingData{TZOffsetHours: &seedTZ},
		},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// SanitizeCityName keeps the text before the first comma, trimmed. "New York,
// NY, USA" becomes "New York".
func SanitizeCityName(raw string) string {
	head, _, _ := strings.Cut(raw, ",")
	return strings.TrimSpace(head)
}

// IsBirthDateInRange reports whether dateStr is a calendar date within
// [MinBirthDate, today], both ends inclusive.
func IsBirthDateInRange(dateStr string, today time.Time) bool {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(dateStr))
	if err != nil {
		return false
	}

	min, err := time.Parse(DateLayout, MinBirthDate)
	if err != nil {
		return false
	}
	max, err := time.Parse(DateLayout, today.Format(DateLayout))
	if err != nil {
		return false
	}

	return !parsed.Before(min) && !parsed.After(max)
}
