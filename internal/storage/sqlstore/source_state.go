package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"prism/internal/domain"
)

type SourceStateStore struct {
	db *sqlx.DB
}

func NewSourceStateStore(db *sqlx.DB) *SourceStateStore {
	return &SourceStateStore{db: db}
}

func (s *SourceStateStore) Get(ctx context.Context, source string) (*domain.SourceState, error) {
	exec := GetExecutor(ctx, s.db)

	var state domain.SourceState
	query := exec.Rebind(`
		SELECT source, last_run_at, last_status, last_error, total_ingested
		FROM source_state
		WHERE source = ?`)

	err := sqlx.GetContext(ctx, exec, &state, query, source)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for sources never run before
		return &domain.SourceState{Source: source}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SourceStateStore) Update(ctx context.Context, state *domain.SourceState) error {
	exec := GetExecutor(ctx, s.db)

	query := exec.Rebind(`
		INSERT INTO source_state (source, last_run_at, last_status, last_error, total_ingested)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET
			last_run_at = EXCLUDED.last_run_at,
			last_status = EXCLUDED.last_status,
			last_error = EXCLUDED.last_error,
			total_ingested = EXCLUDED.total_ingested`)

	_, err := exec.ExecContext(ctx, query,
		state.Source,
		state.LastRunAt.UTC(),
		state.LastStatus,
		state.LastError,
		state.TotalIngested,
	)
	return err
}
