package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/zodiya/funnel-api/external/places"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/platform/debounce"
	"github.com/zodiya/funnel-api/internal/platform/logging"
)

const minCityQueryLength = 2

type placeLookup interface {
	SearchPlaces(ctx context.Context, input string) ([]funnel.CitySuggestion, error)
	ResolvePlace(ctx context.Context, placeID string) (places.PlaceDetails, error)
}

// UpdateOnboardingInput carries field writes for the wizard. Nil pointers
// leave the field untouched; set pointers win last-write-wins.
type UpdateOnboardingInput struct {
	FirstName     *string
	BirthDate     *string
	BirthTime     *string
	TimeUnknown   *bool
	BirthCity     *string
	Gender        *string
	LifeArea      *string
	HasHadReading *string
	Email         *string
}

type SelectSuggestionInput struct {
	Description string
	PlaceID     string
}

// OnboardingService is the wizard's step controller: field updates, the
// validator-gated advance, debounced city autocomplete, and the optimistic
// suggestion selection with asynchronous geocode enrichment.
type OnboardingService struct {
	funnel      *FunnelService
	placeClient placeLookup
	debouncer   *debounce.Debouncer
	enrichPool  *ants.Pool
	logger      *logging.Logger
	now         func() time.Time
}

func NewOnboardingService(
	funnelService *FunnelService,
	placeClient placeLookup,
	debouncer *debounce.Debouncer,
	enrichPool *ants.Pool,
	logger *logging.Logger,
) *OnboardingService {
	if logger == nil {
		logger = logging.Default()
	}
	return &OnboardingService{
		funnel:      funnelService,
		placeClient: placeClient,
		debouncer:   debouncer,
		enrichPool:  enrichPool,
		logger:      logger,
		now:         time.Now,
	}
}

// UpdateFields applies the given field writes to the session's working data.
func (s *OnboardingService) UpdateFields(ctx context.Context, sessionID string, input UpdateOnboardingInput) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OnboardingService.UpdateFields")
	defer span.End()

	return s.funnel.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Screen != funnel.ScreenOnboarding {
			return fmt.Errorf("%w: session is not on the onboarding screen", ErrInvalidInput)
		}

		data := &session.Onboarding.Data
		if input.FirstName != nil {
			data.FirstName = strings.TrimSpace(*input.FirstName)
		}
		if input.BirthDate != nil {
			data.BirthDate = strings.TrimSpace(*input.BirthDate)
		}
		if input.BirthTime != nil {
			data.BirthTime = strings.TrimSpace(*input.BirthTime)
		}
		if input.TimeUnknown != nil {
			data.TimeUnknown = *input.TimeUnknown
			if data.TimeUnknown {
				data.BirthTime = ""
			}
		}
		if input.BirthCity != nil {
			data.BirthCity = strings.TrimSpace(*input.BirthCity)
		}
		if input.Gender != nil {
			data.Gender = strings.TrimSpace(*input.Gender)
		}
		if input.LifeArea != nil {
			data.LifeArea = strings.TrimSpace(*input.LifeArea)
		}
		if input.HasHadReading != nil {
			data.HasHadReading = strings.TrimSpace(*input.HasHadReading)
		}
		if input.Email != nil {
			data.Email = strings.TrimSpace(*input.Email)
		}
		return nil
	})
}

// Advance moves the wizard forward one step when the active step's validator
// passes; a failing validator makes it a silent no-op. Advancing past the
// final step is the terminal submission handled by CompleteOnboarding.
func (s *OnboardingService) Advance(ctx context.Context, sessionID string) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OnboardingService.Advance")
	defer span.End()

	session, err := s.funnel.get(ctx, sessionID)
	if err != nil {
		return funnel.Session{}, err
	}
	if session.Screen == funnel.ScreenOnboarding && session.Onboarding.Step == funnel.StepCount() {
		return s.funnel.CompleteOnboarding(ctx, sessionID)
	}

	return s.funnel.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Screen != funnel.ScreenOnboarding {
			return fmt.Errorf("%w: session is not on the onboarding screen", ErrInvalidInput)
		}
		step := session.Onboarding.Step
		if step >= funnel.StepCount() {
			return nil
		}
		if !funnel.CanAdvance(step, session.Onboarding.Data, s.now().UTC()) {
			return nil
		}
		session.Onboarding.Step = step + 1
		return nil
	})
}

// SearchCities records the keystroke and schedules a debounced autocomplete
// lookup. Input shorter than two characters clears the suggestion list without
// issuing a request. Results are sequence-guarded: a response for a superseded
// keystroke is dropped even when the network reorders replies, and lookup
// failures fail open to an empty list.
func (s *OnboardingService) SearchCities(ctx context.Context, sessionID, query string) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OnboardingService.SearchCities")
	defer span.End()

	query = strings.TrimSpace(query)

	var seq int64
	session, err := s.funnel.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Screen != funnel.ScreenOnboarding {
			return fmt.Errorf("%w: session is not on the onboarding screen", ErrInvalidInput)
		}

		session.Onboarding.Data.BirthCity = query
		session.Onboarding.LookupSeq++
		seq = session.Onboarding.LookupSeq
		if len(query) < minCityQueryLength {
			session.Onboarding.Suggestions = nil
		}
		return nil
	})
	if err != nil {
		return funnel.Session{}, err
	}

	if len(query) < minCityQueryLength {
		s.debouncer.Cancel(citySearchKey(sessionID))
		return session, nil
	}

	lookupCtx := context.WithoutCancel(ctx)
	s.debouncer.Trigger(citySearchKey(sessionID), func() {
		s.runCitySearch(lookupCtx, sessionID, query, seq)
	})
	return session, nil
}

func (s *OnboardingService) runCitySearch(ctx context.Context, sessionID, query string, seq int64) {
	suggestions, err := s.placeClient.SearchPlaces(ctx, query)
	if err != nil {
		s.logger.DebugContext(ctx, "city autocomplete failed open",
			"session_id", sessionID,
			"error", err,
		)
		suggestions = nil
	}

	_, err = s.funnel.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Onboarding.LookupSeq != seq {
			return nil // superseded by a newer keystroke or selection
		}
		session.Onboarding.Suggestions = suggestions
		return nil
	})
	if err != nil {
		s.logger.DebugContext(ctx, "apply city suggestions", "session_id", sessionID, "error", err)
	}
}

// SelectSuggestion applies the chosen suggestion optimistically (sanitized
// description plus place id, visible before any network resolution) and then
// enriches it on a worker: a successful geocode overwrites the city name and
// fills coordinates and timezone, while a failed or superseded resolution
// leaves the optimistic value untouched.
func (s *OnboardingService) SelectSuggestion(ctx context.Context, sessionID string, input SelectSuggestionInput) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OnboardingService.SelectSuggestion")
	defer span.End()

	input.PlaceID = strings.TrimSpace(input.PlaceID)
	if input.PlaceID == "" {
		return funnel.Session{}, fmt.Errorf("%w: place_id is required", ErrInvalidInput)
	}

	var seq int64
	session, err := s.funnel.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Screen != funnel.ScreenOnboarding {
			return fmt.Errorf("%w: session is not on the onboarding screen", ErrInvalidInput)
		}

		session.Onboarding.Data.BirthCity = funnel.SanitizeCityName(input.Description)
		session.Onboarding.Data.PlaceID = input.PlaceID
		session.Onboarding.Suggestions = nil
		session.Onboarding.LookupSeq++
		seq = session.Onboarding.LookupSeq
		return nil
	})
	if err != nil {
		return funnel.Session{}, err
	}

	s.debouncer.Cancel(citySearchKey(sessionID))

	enrichCtx := context.WithoutCancel(ctx)
	enrich := func() { s.resolveSelectedPlace(enrichCtx, sessionID, input.PlaceID, seq) }
	if s.enrichPool != nil {
		if err := s.enrichPool.Submit(enrich); err != nil {
			s.logger.WarnContext(ctx, "submit geocode enrichment", "session_id", sessionID, "error", err)
		}
	} else {
		go enrich()
	}
	return session, nil
}

func (s *OnboardingService) resolveSelectedPlace(ctx context.Context, sessionID, placeID string, seq int64) {
	details, err := s.placeClient.ResolvePlace(ctx, placeID)
	if err != nil {
		// Enrichment is best effort: keep the optimistic value.
		s.logger.DebugContext(ctx, "geocode enrichment failed",
			"session_id", sessionID,
			"place_id", placeID,
			"error", err,
		)
		return
	}

	_, err = s.funnel.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Onboarding.LookupSeq != seq {
			return nil
		}
		data := &session.Onboarding.Data
		if details.City != "" {
			data.BirthCity = details.City
		}
		if details.Lat != nil {
			lat := *details.Lat
			data.Lat = &lat
		}
		if details.Lon != nil {
			lon := *details.Lon
			data.Lon = &lon
		}
		if details.UTCOffsetHours != nil {
			offset := *details.UTCOffsetHours
			data.TZOffsetHours = &offset
		}
		return nil
	})
	if err != nil {
		s.logger.DebugContext(ctx, "apply geocode enrichment", "session_id", sessionID, "error", err)
	}
}

func citySearchKey(sessionID string) string {
	return "city-search:" + sessionID
}
