package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zodiya/funnel-api/external/astro"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/domain/plan"
	"github.com/zodiya/funnel-api/internal/platform/id"
	"github.com/zodiya/funnel-api/internal/platform/logging"
)

const (
	defaultLoadingDuration = 4 * time.Second
	defaultSessionTTL      = 24 * time.Hour
	signupPasswordLength   = 10

	accountExistsNotice = "Account already exists. Please log in to your dashboard to continue."
)

type signupSubmitter interface {
	SubmitSignup(ctx context.Context, input astro.SignupInput) (astro.SignupResult, error)
}

type StartSessionInput struct {
	SessionID string
	Source    string
	Campaign  string
}

type FunnelServiceConfig struct {
	LoadingDuration time.Duration
	SessionTTL      time.Duration
	PortalURL       string
}

// FunnelService owns the funnel state machine: it holds every visitor session,
// drives screen transitions, and serializes all mutations of a session behind
// a per-session lock so HTTP handlers, debounce timers, and enrichment workers
// never interleave writes.
type FunnelService struct {
	repo         funnel.Repository
	idGenerator  id.Generator
	signupClient signupSubmitter
	logger       *logging.Logger

	loadingDuration time.Duration
	sessionTTL      time.Duration
	portalURL       string

	locks    sessionLocks
	now      func() time.Time
	schedule func(d time.Duration, fn func()) *time.Timer
}

func NewFunnelService(
	repo funnel.Repository,
	idGenerator id.Generator,
	signupClient signupSubmitter,
	cfg FunnelServiceConfig,
	logger *logging.Logger,
) *FunnelService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.LoadingDuration <= 0 {
		cfg.LoadingDuration = defaultLoadingDuration
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	return &FunnelService{
		repo:            repo,
		idGenerator:     idGenerator,
		signupClient:    signupClient,
		logger:          logger,
		loadingDuration: cfg.LoadingDuration,
		sessionTTL:      cfg.SessionTTL,
		portalURL:       strings.TrimRight(strings.TrimSpace(cfg.PortalURL), "/"),
		now:             time.Now,
		schedule:        time.AfterFunc,
	}
}

// StartSession resumes the identified session or creates a new one, capturing
// attribution parameters on the way in. Capture is idempotent: a parameter is
// written only while still empty and never overwritten within the session.
func (s *FunnelService) StartSession(ctx context.Context, input StartSessionInput) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.FunnelService.StartSession")
	defer span.End()

	input.SessionID = strings.TrimSpace(input.SessionID)
	input.Source = strings.TrimSpace(input.Source)
	input.Campaign = strings.TrimSpace(input.Campaign)

	if input.SessionID != "" {
		session, err := s.mutate(ctx, input.SessionID, func(session *funnel.Session) error {
			captureAttribution(session, input.Source, input.Campaign)
			return nil
		})
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return funnel.Session{}, err
		}
		// Expired or unknown id: fall through and start fresh.
	}

	sessionID, err := s.idGenerator.NewID()
	if err != nil {
		return funnel.Session{}, fmt.Errorf("generate session id: %w", err)
	}

	session := funnel.NewSession(sessionID, s.now().UTC(), s.sessionTTL)
	captureAttribution(&session, input.Source, input.Campaign)
	if err := s.repo.Create(ctx, session); err != nil {
		return funnel.Session{}, fmt.Errorf("create session: %w", err)
	}

	s.logger.InfoContext(ctx, "funnel session started",
		"session_id", session.ID,
		"utm_source", session.Attribution.Source,
		"utm_campaign", session.Attribution.Campaign,
	)
	return session, nil
}

func captureAttribution(session *funnel.Session, source, campaign string) {
	if session.Attribution.Source == "" && source != "" {
		session.Attribution.Source = source
	}
	if session.Attribution.Campaign == "" && campaign != "" {
		session.Attribution.Campaign = campaign
	}
}

// Snapshot returns a read-only copy of the session.
func (s *FunnelService) Snapshot(ctx context.Context, sessionID string) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.FunnelService.Snapshot")
	defer span.End()

	return s.get(ctx, sessionID)
}

// StartReading moves the session from the hero screen into onboarding. Any
// activation works; repeated calls on later screens are no-ops.
func (s *FunnelService) StartReading(ctx context.Context, sessionID string) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.FunnelService.StartReading")
	defer span.End()

	return s.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Screen == funnel.ScreenHero {
			session.Screen = funnel.ScreenOnboarding
		}
		return nil
	})
}

// CompleteOnboarding submits the finished wizard: it freezes the data bundle,
// fires the signup call, and moves the session to the loading screen. An
// "account exists" signup response suppresses the transition and leaves the
// session on onboarding with a notice; plain signup failures are swallowed and
// the funnel proceeds without a token.
func (s *FunnelService) CompleteOnboarding(ctx context.Context, sessionID string) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.FunnelService.CompleteOnboarding")
	defer span.End()

	session, err := s.get(ctx, sessionID)
	if err != nil {
		return funnel.Session{}, err
	}
	if session.Screen != funnel.ScreenOnboarding {
		return funnel.Session{}, fmt.Errorf("%w: session is not on the onboarding screen", ErrInvalidInput)
	}
	if session.Onboarding.Step != funnel.StepCount() {
		return funnel.Session{}, fmt.Errorf("%w: onboarding is not on its final step", ErrInvalidInput)
	}

	today := s.now().UTC()
	for step := 1; step <= funnel.StepCount(); step++ {
		if !funnel.CanAdvance(step, session.Onboarding.Data, today) {
			return funnel.Session{}, fmt.Errorf("%w: step %d is incomplete", ErrInvalidInput, step)
		}
	}

	result := s.submitSignup(ctx, session)

	return s.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Screen != funnel.ScreenOnboarding {
			return nil
		}

		if result.AlreadyExists {
			session.Notice = accountExistsNotice
			return fmt.Errorf("%w: %s", ErrAccountExists, accountExistsNotice)
		}
		if result.Token != "" {
			session.AuthToken = result.Token
		}

		data := session.Onboarding.Data
		session.Result = &data
		session.Notice = ""
		session.Screen = funnel.ScreenLoading
		session.LoadingGen++
		s.scheduleLoadingExit(session.ID, session.LoadingGen)
		return nil
	})
}

// submitSignup runs the signup side effect. Transport failures degrade to an
// empty result so the funnel can proceed without a token.
func (s *FunnelService) submitSignup(ctx context.Context, session funnel.Session) astro.SignupResult {
	if s.signupClient == nil {
		return astro.SignupResult{}
	}

	password, err := id.NewPassword(signupPasswordLength)
	if err != nil {
		s.logger.WarnContext(ctx, "generate signup password", "error", err)
		return astro.SignupResult{}
	}

	result, err := s.signupClient.SubmitSignup(ctx, signupPayload(session, password))
	if err != nil {
		s.logger.WarnContext(ctx, "signup request failed, proceeding without token",
			"session_id", session.ID,
			"error", err,
		)
		return astro.SignupResult{}
	}
	return result
}

// signupPayload maps the frozen onboarding bundle onto the signup contract.
// Calendar fields come from the birth date; clock fields default to zero when
// the visitor marked the time unknown. The password is a placeholder the
// account holder resets later.
func signupPayload(session funnel.Session, password string) astro.SignupInput {
	data := session.Onboarding.Data

	input := astro.SignupInput{
		Name:        data.FirstName,
		Email:       data.Email,
		Gender:      data.Gender,
		City:        data.BirthCity,
		Lat:         data.Lat,
		Lon:         data.Lon,
		TZone:       data.TZOffsetHours,
		Password:    password,
		UTMSource:   session.Attribution.Source,
		UTMCampaign: session.Attribution.Campaign,
	}
	if input.Gender == "" {
		input.Gender = "unknown"
	}

	if parsed, err := time.Parse(funnel.DateLayout, data.BirthDate); err == nil {
		day, month, year := parsed.Day(), int(parsed.Month()), parsed.Year()
		input.Day, input.Month, input.Year = &day, &month, &year
	}

	if !data.TimeUnknown {
		if hourStr, minStr, ok := strings.Cut(data.BirthTime, ":"); ok {
			if hour, err := strconv.Atoi(strings.TrimSpace(hourStr)); err == nil {
				input.Hour = hour
			}
			if min, err := strconv.Atoi(strings.TrimSpace(minStr)); err == nil {
				input.Min = min
			}
		}
	}
	return input
}

// scheduleLoadingExit arms the fixed loading timer. The generation counter
// makes the exit fire exactly once per entry into the loading screen: a timer
// armed for an older generation finds the counter advanced and does nothing.
func (s *FunnelService) scheduleLoadingExit(sessionID string, generation int64) {
	s.schedule(s.loadingDuration, func() {
		ctx := context.Background()
		_, err := s.mutate(ctx, sessionID, func(session *funnel.Session) error {
			if session.Screen != funnel.ScreenLoading || session.LoadingGen != generation {
				return nil
			}
			session.Screen = funnel.ScreenPlans
			return nil
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Warn("loading transition failed", "session_id", sessionID, "error", err)
		}
	})
}

// SelectPlan records the chosen catalog entry, persists the identity fields
// checkout needs, and moves the session to the checkout screen.
func (s *FunnelService) SelectPlan(ctx context.Context, sessionID, planID string) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.FunnelService.SelectPlan")
	defer span.End()

	planID = strings.TrimSpace(planID)
	if _, ok := plan.ByID(planID); !ok {
		return funnel.Session{}, fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, planID)
	}

	return s.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Screen != funnel.ScreenPlans && session.Screen != funnel.ScreenCheckout {
			return fmt.Errorf("%w: session is not on the plans screen", ErrInvalidInput)
		}
		if session.Screen == funnel.ScreenCheckout && session.Checkout.ClientSecret != "" {
			return fmt.Errorf("%w: checkout already initialized", ErrInvalidInput)
		}

		session.SelectedPlanID = planID
		if session.Result != nil {
			session.ContactEmail = session.Result.Email
			session.ContactName = session.Result.FirstName
		}
		session.Screen = funnel.ScreenCheckout
		return nil
	})
}

// DashboardURL builds the portal link shown on the success screen. Empty when
// no portal is configured or signup never issued a token.
func (s *FunnelService) DashboardURL(session funnel.Session) string {
	if s.portalURL == "" || session.AuthToken == "" || session.Screen != funnel.ScreenSuccess {
		return ""
	}
	return s.portalURL + "/home?token=" + session.AuthToken
}

// SweepExpired deletes sessions past their TTL.
func (s *FunnelService) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.FunnelService.SweepExpired")
	defer span.End()

	removed, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "expired funnel sessions removed", "count", removed)
	}
	return removed, nil
}

func (s *FunnelService) get(ctx context.Context, sessionID string) (funnel.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return funnel.Session{}, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}

	session, exists, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return funnel.Session{}, fmt.Errorf("get session: %w", err)
	}
	if !exists || !session.ExpiresAt.After(s.now().UTC()) {
		return funnel.Session{}, fmt.Errorf("%w: session not found", ErrNotFound)
	}
	return session, nil
}

// mutate loads the session, applies fn under the session's lock, and saves the
// result. Mutations made before fn's error are still persisted so policies
// like the account-exists notice survive the failed transition.
func (s *FunnelService) mutate(ctx context.Context, sessionID string, fn func(*funnel.Session) error) (funnel.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return funnel.Session{}, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}

	release := s.locks.acquire(sessionID)
	defer release()

	session, err := s.get(ctx, sessionID)
	if err != nil {
		return funnel.Session{}, err
	}

	fnErr := fn(&session)
	session.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, session); err != nil {
		return funnel.Session{}, fmt.Errorf("save session: %w", err)
	}
	if fnErr != nil {
		return session, fnErr
	}
	return session, nil
}

// sessionLocks hands out one mutex per live session id, dropping entries when
// the last holder releases.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) acquire(sessionID string) (release func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{}
		l.locks[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}
