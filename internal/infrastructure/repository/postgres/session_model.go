package postgres

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
)

type sessionModel struct {
	SessionID string    `db:"session_id"`
	State     string    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// sessionState is the JSON document stored in the state column. Everything
// except the identity and timestamp columns lives here, so schema changes
// track the domain model without migrations.
type sessionState struct {
	Screen         funnel.Screen          `json:"screen"`
	Attribution    funnel.Attribution     `json:"attribution"`
	Onboarding     funnel.OnboardingState `json:"onboarding"`
	Result         *funnel.OnboardingData `json:"result,omitempty"`
	AuthToken      string                 `json:"authToken,omitempty"`
	SelectedPlanID string                 `json:"selectedPlanId,omitempty"`
	ContactEmail   string                 `json:"contactEmail,omitempty"`
	ContactName    string                 `json:"contactName,omitempty"`
	Checkout       funnel.Checkout        `json:"checkout"`
	LoadingGen     int64                  `json:"loadingGen"`
	Notice         string                 `json:"notice,omitempty"`
}

func toSessionModel(session funnel.Session) (sessionModel, error) {
	state, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(sessionState{
		Screen:         session.Screen,
		Attribution:    session.Attribution,
		Onboarding:     session.Onboarding,
		Result:         session.Result,
		AuthToken:      session.AuthToken,
		SelectedPlanID: session.SelectedPlanID,
		ContactEmail:   session.ContactEmail,
		ContactName:    session.ContactName,
		Checkout:       session.Checkout,
		LoadingGen:     session.LoadingGen,
		Notice:         session.Notice,
	})
	if err != nil {
		return sessionModel{}, err
	}

	return sessionModel{
		SessionID: session.ID,
		State:     state,
		CreatedAt: session.CreatedAt.UTC(),
		UpdatedAt: session.UpdatedAt.UTC(),
		ExpiresAt: session.ExpiresAt.UTC(),
	}, nil
}

func (m sessionModel) toDomain() (funnel.Session, error) {
	var state sessionState
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(m.State, &state); err != nil {
		return funnel.Session{}, err
	}

	return funnel.Session{
		ID:             m.SessionID,
		Screen:         state.Screen,
		Attribution:    state.Attribution,
		Onboarding:     state.Onboarding,
		Result:         state.Result,
		AuthToken:      state.AuthToken,
		SelectedPlanID: state.SelectedPlanID,
		ContactEmail:   state.ContactEmail,
		ContactName:    state.ContactName,
		Checkout:       state.Checkout,
		LoadingGen:     state.LoadingGen,
		Notice:         state.Notice,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		ExpiresAt:      m.ExpiresAt,
	}, nil
}
