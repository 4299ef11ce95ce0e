package funnel

import (
	"context"
	"time"
)

// Repository stores funnel sessions. Implementations must treat Session as a
// value: Save replaces the stored record wholesale.
type Repository interface {
	Create(ctx context.Context, session Session) error
	Get(ctx context.Context, sessionID string) (Session, bool, error)
	Save(ctx context.Context, session Session) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
