package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
)

type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session funnel.Session) error {
	return r.upsert(ctx, session)
}

func (r *SessionRepository) Save(ctx context.Context, session funnel.Session) error {
	return r.upsert(ctx, session)
}

func (r *SessionRepository) upsert(ctx context.Context, session funnel.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	model, err := toSessionModel(session)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	const query = `
INSERT INTO funnel_sessions (session_id, state, created_at, updated_at, expires_at)
VALUES (:session_id, :state, :created_at, :updated_at, :expires_at)
ON CONFLICT (session_id)
DO UPDATE SET
    state = EXCLUDED.state,
    updated_at = EXCLUDED.updated_at,
    expires_at = EXCLUDED.expires_at`

	if _, err := r.db.NamedExecContext(ctx, query, model); err != nil {
		return fmt.Errorf("upsert funnel session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (funnel.Session, bool, error) {
	const query = `
SELECT session_id, state, created_at, updated_at, expires_at
FROM funnel_sessions
WHERE session_id = $1`

	var model sessionModel
	if err := r.db.GetContext(ctx, &model, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return funnel.Session{}, false, nil
		}
		return funnel.Session{}, false, fmt.Errorf("get funnel session: %w", err)
	}

	session, err := model.toDomain()
	if err != nil {
		return funnel.Session{}, false, fmt.Errorf("unmarshal session state: %w", err)
	}
	return session, true, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	const query = `DELETE FROM funnel_sessions WHERE expires_at <= $1`

	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired funnel sessions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}
