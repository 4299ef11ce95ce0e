package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zodiya/funnel-api/external/places"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/infrastructure/repository/memory"
	"github.com/zodiya/funnel-api/internal/platform/debounce"
	"github.com/zodiya/funnel-api/internal/platform/logging"
)

type fakePlaceClient struct {
	mu           sync.Mutex
	suggestions  []funnel.CitySuggestion
	searchErr    error
	details      places.PlaceDetails
	resolveErr   error
	searchCalls  int
	resolveCalls int
}

func (c *fakePlaceClient) SearchPlaces(_ context.Context, _ string) ([]funnel.CitySuggestion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchCalls++
	return c.suggestions, c.searchErr
}

func (c *fakePlaceClient) ResolvePlace(_ context.Context, _ string) (places.PlaceDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveCalls++
	return c.details, c.resolveErr
}

func (c *fakePlaceClient) calls() (search, resolve int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchCalls, c.resolveCalls
}

func newOnboardingServiceForTest(t *testing.T, placeClient placeLookup) (*OnboardingService, *memory.SessionRepository) {
	t.Helper()
	funnelSvc, repo := newFunnelServiceForTest(&fakeSignupClient{})
	funnelSvc.schedule = func(_ time.Duration, _ func()) *time.Timer { return time.NewTimer(time.Hour) }

	debouncer := debounce.New(time.Millisecond)
	t.Cleanup(debouncer.Close)

	svc := NewOnboardingService(funnelSvc, placeClient, debouncer, nil, logging.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

// waitForSession polls until the predicate holds or the deadline passes.
func waitForSession(t *testing.T, svc *OnboardingService, sessionID string, predicate func(funnel.Session) bool) funnel.Session {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		session, err := svc.funnel.Snapshot(context.Background(), sessionID)
		if err == nil && predicate(session) {
			return session
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
	return funnel.Session{}
}

func TestOnboardingService_UpdateFields(t *testing.T) {
	svc, repo := newOnboardingServiceForTest(t, &fakePlaceClient{})
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
	})

	name := "  Maya "
	date := "1992-07-14"
	session, err := svc.UpdateFields(t.Context(), "sess-001", UpdateOnboardingInput{
		FirstName: &name,
		BirthDate: &date,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if session.Onboarding.Data.FirstName != "Maya" {
		t.Fatalf("name not trimmed: %q", session.Onboarding.Data.FirstName)
	}
	if session.Onboarding.Data.BirthDate != "1992-07-14" {
		t.Fatalf("birth date not applied: %q", session.Onboarding.Data.BirthDate)
	}

	// A later write replaces the earlier value.
	newName := "Ana"
	session, err = svc.UpdateFields(t.Context(), "sess-001", UpdateOnboardingInput{FirstName: &newName})
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	if session.Onboarding.Data.FirstName != "Ana" {
		t.Fatalf("last write did not win: %q", session.Onboarding.Data.FirstName)
	}
	if session.Onboarding.Data.BirthDate != "1992-07-14" {
		t.Fatalf("untouched field was cleared: %q", session.Onboarding.Data.BirthDate)
	}
}

func TestOnboardingService_UpdateFields_TimeUnknownClearsBirthTime(t *testing.T) {
	svc, repo := newOnboardingServiceForTest(t, &fakePlaceClient{})
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		s.Onboarding.Data.BirthTime = "08:45"
	})

	unknown := true
	session, err := svc.UpdateFields(t.Context(), "sess-001", UpdateOnboardingInput{TimeUnknown: &unknown})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !session.Onboarding.Data.TimeUnknown {
		t.Fatal("time-unknown flag not set")
	}
	if session.Onboarding.Data.BirthTime != "" {
		t.Fatalf("birth time must be cleared, got %q", session.Onboarding.Data.BirthTime)
	}
}

func TestOnboardingService_UpdateFields_RejectedOffOnboarding(t *testing.T) {
	svc, repo := newOnboardingServiceForTest(t, &fakePlaceClient{})
	seedSession(t, repo, nil) // hero screen

	name := "Maya"
	if _, err := svc.UpdateFields(t.Context(), "sess-001", UpdateOnboardingInput{FirstName: &name}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput off the onboarding screen, got %v", err)
	}
}

func TestOnboardingService_Advance(t *testing.T) {
	svc, repo := newOnboardingServiceForTest(t, &fakePlaceClient{})
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		s.Onboarding.Data = readyOnboardingData()
	})

	session, err := svc.Advance(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if session.Onboarding.Step != 2 {
		t.Fatalf("expected step 2, got %d", session.Onboarding.Step)
	}
}

func TestOnboardingService_Advance_FailingValidatorIsSilentNoop(t *testing.T) {
	svc, repo := newOnboardingServiceForTest(t, &fakePlaceClient{})
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		// Step 1 data missing entirely.
	})

	session, err := svc.Advance(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("advance must not fail loudly: %v", err)
	}
	if session.Onboarding.Step != 1 {
		t.Fatalf("invalid step advanced to %d", session.Onboarding.Step)
	}
}

func TestOnboardingService_Advance_FinalStepCompletesOnboarding(t *testing.T) {
	svc, repo := newOnboardingServiceForTest(t, &fakePlaceClient{})
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		s.Onboarding.Step = funnel.StepCount()
		s.Onboarding.Data = readyOnboardingData()
	})

	session, err := svc.Advance(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("final advance failed: %v", err)
	}
	if session.Screen != funnel.ScreenLoading {
		t.Fatalf("final advance must submit the wizard, got screen %s", session.Screen)
	}
}

func TestOnboardingService_SearchCities_ShortQueryClearsSuggestions(t *testing.T) {
	placeClient := &fakePlaceClient{}
	svc, repo := newOnboardingServiceForTest(t, placeClient)
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		s.Onboarding.Suggestions = []funnel.CitySuggestion{{Description: "Lisbon, Portugal", PlaceID: "pid-1"}}
	})

	session, err := svc.SearchCities(t.Context(), "sess-001", "l")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if session.Onboarding.Data.BirthCity != "l" {
		t.Fatalf("keystroke not recorded: %q", session.Onboarding.Data.BirthCity)
	}
	if len(session.Onboarding.Suggestions) != 0 {
		t.Fatalf("short query must clear suggestions, got %d", len(session.Onboarding.Suggestions))
	}

	time.Sleep(20 * time.Millisecond)
	if search, _ := placeClient.calls(); search != 0 {
		t.Fatalf("short query must not hit the lookup, got %d calls", search)
	}
}

func TestOnboardingService_SearchCities_AppliesDebouncedResults(t *testing.T) {
	placeClient := &fakePlaceClient{
		suggestions: []funnel.CitySuggestion{
			{Description: "Lisbon, Portugal", PlaceID: "pid-1"},
			{Description: "Lisburn, UK", PlaceID: "pid-2"},
		},
	}
	svc, repo := newOnboardingServiceForTest(t, placeClient)
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
	})

	if _, err := svc.SearchCities(t.Context(), "sess-001", "lis"); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	session := waitForSession(t, svc, "sess-001", func(s funnel.Session) bool {
		return len(s.Onboarding.Suggestions) == 2
	})
	if session.Onboarding.Suggestions[0].PlaceID != "pid-1" {
		t.Fatalf("unexpected suggestions %+v", session.Onboarding.Suggestions)
	}
}

func TestOnboardingService_RunCitySearch_StaleSequenceIsDropped(t *testing.T) {
	placeClient := &fakePlaceClient{
		suggestions: []funnel.CitySuggestion{{Description: "Old Town", PlaceID: "pid-old"}},
	}
	svc, repo := newOnboardingServiceForTest(t, placeClient)
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		s.Onboarding.LookupSeq = 5
		s.Onboarding.Suggestions = []funnel.CitySuggestion{{Description: "Current", PlaceID: "pid-now"}}
	})

	svc.runCitySearch(t.Context(), "sess-001", "old", 4)

	session, err := svc.funnel.Snapshot(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(session.Onboarding.Suggestions) != 1 || session.Onboarding.Suggestions[0].PlaceID != "pid-now" {
		t.Fatalf("stale lookup clobbered suggestions: %+v", session.Onboarding.Suggestions)
	}
}

func TestOnboardingService_RunCitySearch_FailsOpenToEmpty(t *testing.T) {
	placeClient := &fakePlaceClient{searchErr: errors.New("proxy down")}
	svc, repo := newOnboardingServiceForTest(t, placeClient)
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		s.Onboarding.LookupSeq = 3
		s.Onboarding.Suggestions = []funnel.CitySuggestion{{Description: "Stale", PlaceID: "pid-stale"}}
	})

	svc.runCitySearch(t.Context(), "sess-001", "lis", 3)

	session, err := svc.funnel.Snapshot(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(session.Onboarding.Suggestions) != 0 {
		t.Fatalf("failed lookup must clear to empty, got %+v", session.Onboarding.Suggestions)
	}
}

func TestOnboardingService_SelectSuggestion_OptimisticThenEnriched(t *testing.T) {
	lat, lon, offset := 38.7223, -9.1393, 0.0
	placeClient := &fakePlaceClient{
		details: places.PlaceDetails{
			City:           "Lisbon",
			Lat:            &lat,
			Lon:            &lon,
			UTCOffsetHours: &offset,
		},
	}
	svc, repo := newOnboardingServiceForTest(t, placeClient)
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		s.Onboarding.Suggestions = []funnel.CitySuggestion{{Description: "Lisbon, Portugal", PlaceID: "pid-1"}}
	})

	session, err := svc.SelectSuggestion(t.Context(), "sess-001", SelectSuggestionInput{
		Description: "Lisbon, Portugal",
		PlaceID:     "pid-1",
	})
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if session.Onboarding.Data.BirthCity != "Lisbon" {
		t.Fatalf("optimistic city not sanitized: %q", session.Onboarding.Data.BirthCity)
	}
	if session.Onboarding.Data.PlaceID != "pid-1" {
		t.Fatalf("place id not stored: %q", session.Onboarding.Data.PlaceID)
	}
	if len(session.Onboarding.Suggestions) != 0 {
		t.Fatal("selection must clear the suggestion list")
	}

	enriched := waitForSession(t, svc, "sess-001", func(s funnel.Session) bool {
		return s.Onboarding.Data.Lat != nil
	})
	if *enriched.Onboarding.Data.Lat != lat || *enriched.Onboarding.Data.Lon != lon {
		t.Fatalf("coordinates not applied: %+v", enriched.Onboarding.Data)
	}
	if enriched.Onboarding.Data.TZOffsetHours == nil || *enriched.Onboarding.Data.TZOffsetHours != 0 {
		t.Fatalf("timezone not applied: %v", enriched.Onboarding.Data.TZOffsetHours)
	}
}

func TestOnboardingService_SelectSuggestion_RequiresPlaceID(t *testing.T) {
	svc, repo := newOnboardingServiceForTest(t, &fakePlaceClient{})
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
	})

	_, err := svc.SelectSuggestion(t.Context(), "sess-001", SelectSuggestionInput{Description: "Lisbon, Portugal"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without a place id, got %v", err)
	}
}

func TestOnboardingService_ResolveSelectedPlace_StaleSequenceKeepsOptimisticValue(t *testing.T) {
	placeClient := &fakePlaceClient{
		details: places.PlaceDetails{City: "Somewhere Else"},
	}
	svc, repo := newOnboardingServiceForTest(t, placeClient)
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		s.Onboarding.LookupSeq = 7
		s.Onboarding.Data.BirthCity = "Lisbon"
	})

	svc.resolveSelectedPlace(t.Context(), "sess-001", "pid-1", 6)

	session, err := svc.funnel.Snapshot(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if session.Onboarding.Data.BirthCity != "Lisbon" {
		t.Fatalf("stale enrichment overwrote the city: %q", session.Onboarding.Data.BirthCity)
	}
}

func TestOnboardingService_ResolveSelectedPlace_FailureKeepsOptimisticValue(t *testing.T) {
	placeClient := &fakePlaceClient{resolveErr: errors.New("geocode down")}
	svc, repo := newOnboardingServiceForTest(t, placeClient)
	seedSession(t, repo, func(s *funnel.Session) {
		s.Screen = funnel.ScreenOnboarding
		s.Onboarding.LookupSeq = 2
		s.Onboarding.Data.BirthCity = "Lisbon"
		s.Onboarding.Data.PlaceID = "pid-1"
	})

	svc.resolveSelectedPlace(t.Context(), "sess-001", "pid-1", 2)

	session, err := svc.funnel.Snapshot(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if session.Onboarding.Data.BirthCity != "Lisbon" || session.Onboarding.Data.Lat != nil {
		t.Fatalf("failed enrichment must leave data untouched: %+v", session.Onboarding.Data)
	}
}
