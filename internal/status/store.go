package status

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
)

// PGStateStore is the Postgres-backed StateStore.
type PGStateStore struct {
	pool db.Pool
}

// NewPGStateStore creates a state store backed by the given pool.
func NewPGStateStore(pool db.Pool) *PGStateStore {
	return &PGStateStore{pool: pool}
}

// Get returns the current state for an attraction, or nil if never observed.
func (s *PGStateStore) Get(ctx context.Context, attractionID int64) (*model.CurrentState, error) {
	var st model.CurrentState
	err := s.pool.QueryRow(ctx,
		`SELECT attraction_id, open, observed_at, last_changed_at
		 FROM park_data.attraction_current_state WHERE attraction_id = $1`,
		attractionID,
	).Scan(&st.AttractionID, &st.Open, &st.ObservedAt, &st.LastChangedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "status: get state for attraction %d", attractionID)
	}
	return &st, nil
}

// Seed records the first observation for an attraction.
func (s *PGStateStore) Seed(ctx context.Context, state model.CurrentState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO park_data.attraction_current_state (attraction_id, open, observed_at, last_changed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attraction_id) DO NOTHING`,
		state.AttractionID, state.Open, state.ObservedAt, state.LastChangedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "status: seed state for attraction %d", state.AttractionID)
	}
	return nil
}

// Touch advances observed_at for an unchanged state.
func (s *PGStateStore) Touch(ctx context.Context, attractionID int64, observedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE park_data.attraction_current_state SET observed_at = $1 WHERE attraction_id = $2`,
		observedAt, attractionID,
	)
	if err != nil {
		return eris.Wrapf(err, "status: touch state for attraction %d", attractionID)
	}
	return nil
}

// Apply inserts the transition and updates current state in one transaction,
// so a crash mid-write never leaves a transition without its state update.
func (s *PGStateStore) Apply(ctx context.Context, t model.StatusTransition, state model.CurrentState) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "status: begin apply tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO park_data.status_transitions
		 (attraction_id, changed_at, prev_open, new_open, duration_minutes, wait_minutes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.AttractionID, t.ChangedAt, t.PrevOpen, t.NewOpen, t.DurationMinutes, t.WaitMinutes,
	); err != nil {
		return eris.Wrapf(err, "status: insert transition for attraction %d", t.AttractionID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE park_data.attraction_current_state
		 SET open = $1, observed_at = $2, last_changed_at = $3
		 WHERE attraction_id = $4`,
		state.Open, state.ObservedAt, state.LastChangedAt, state.AttractionID,
	); err != nil {
		return eris.Wrapf(err, "status: update state for attraction %d", state.AttractionID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "status: commit apply tx")
	}
	return nil
}
