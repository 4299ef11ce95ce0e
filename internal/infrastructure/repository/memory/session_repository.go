package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zodiya/funnel-api/internal/domain/funnel"
)

type SessionRepository struct {
	mu    sync.RWMutex
	items map[string]funnel.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{items: make(map[string]funnel.Session)}
}

func (r *SessionRepository) Create(_ context.Context, session funnel.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[session.ID] = cloneSession(session)
	return nil
}

func (r *SessionRepository) Get(_ context.Context, sessionID string) (funnel.Session, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[sessionID]
	if !ok {
		return funnel.Session{}, false, nil
	}
	return cloneSession(item), true, nil
}

func (r *SessionRepository) Save(_ context.Context, session funnel.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[session.ID] = cloneSession(session)
	return nil
}

func (r *SessionRepository) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, item := range r.items {
		if !item.ExpiresAt.After(now) {
			delete(r.items, id)
			removed++
		}
	}
	return removed, nil
}

func cloneSession(item funnel.Session) funnel.Session {
	copied := item
	copied.Onboarding.Suggestions = append([]funnel.CitySuggestion(nil), item.Onboarding.Suggestions...)
	copied.Onboarding.Data = cloneOnboardingData(item.Onboarding.Data)
	if item.Result != nil {
		result := cloneOnboardingData(*item.Result)
		copied.Result = &result
	}
	return copied
}

func cloneOnboardingData(data funnel.OnboardingData) funnel.OnboardingData {
	copied := data
	copied.Lat = cloneFloat(data.Lat)
	copied.Lon = cloneFloat(data.Lon)
	copied.TZOffsetHours = cloneFloat(data.TZOffsetHours)
	return copied
}

func cloneFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
