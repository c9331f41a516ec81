package status

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/model"
)

// ErrOutOfOrder is returned when a reading is timestamped before the last
// persisted observation for its attraction. The caller records a quality
// issue instead of applying the reading.
var ErrOutOfOrder = errors.New("status: reading older than persisted state")

// StateStore persists the last known computed state per attraction and the
// transitions derived from it. State lives in the database, not memory, so
// restarts never fabricate spurious transitions.
type StateStore interface {
	// Get returns the current state for an attraction, or nil if the
	// attraction has never been observed.
	Get(ctx context.Context, attractionID int64) (*model.CurrentState, error)
	// Seed records the first observation without emitting a transition.
	Seed(ctx context.Context, state model.CurrentState) error
	// Touch advances observed_at for an unchanged state.
	Touch(ctx context.Context, attractionID int64, observedAt time.Time) error
	// Apply atomically inserts the transition and updates current state.
	Apply(ctx context.Context, t model.StatusTransition, state model.CurrentState) error
}

// Detector compares newly computed states against persisted state and emits
// transition records. Safe for concurrent use across attractions: each
// attraction's state is disjoint.
type Detector struct {
	store StateStore
	log   *zap.Logger
}

// NewDetector creates a change detector backed by the given state store.
func NewDetector(store StateStore) *Detector {
	return &Detector{
		store: store,
		log:   zap.L().With(zap.String("component", "status.detector")),
	}
}

// Observe applies one reading. It returns the emitted transition, or nil when
// the state is unchanged or this is the attraction's first observation.
// Readings older than the persisted observation return ErrOutOfOrder.
func (d *Detector) Observe(ctx context.Context, reading model.StatusReading) (*model.StatusTransition, error) {
	computed := Compute(reading.RawIsOpen, reading.WaitMinutes)

	prev, err := d.store.Get(ctx, reading.AttractionID)
	if err != nil {
		return nil, err
	}

	// First observation seeds state; there is no prior state to compare.
	if prev == nil {
		state := model.CurrentState{
			AttractionID:  reading.AttractionID,
			Open:          computed.Open,
			ObservedAt:    reading.ObservedAt,
			LastChangedAt: reading.ObservedAt,
		}
		if err := d.store.Seed(ctx, state); err != nil {
			return nil, err
		}
		d.log.Debug("seeded state",
			zap.Int64("attraction_id", reading.AttractionID),
			zap.Bool("open", computed.Open),
		)
		return nil, nil
	}

	if reading.ObservedAt.Before(prev.ObservedAt) {
		return nil, ErrOutOfOrder
	}

	if prev.Open == computed.Open {
		if err := d.store.Touch(ctx, reading.AttractionID, reading.ObservedAt); err != nil {
			return nil, err
		}
		return nil, nil
	}

	duration := int(reading.ObservedAt.Sub(prev.LastChangedAt).Minutes())
	if duration < 0 {
		duration = 0
	}

	transition := model.StatusTransition{
		AttractionID:    reading.AttractionID,
		ChangedAt:       reading.ObservedAt,
		PrevOpen:        prev.Open,
		NewOpen:         computed.Open,
		DurationMinutes: duration,
		WaitMinutes:     reading.WaitMinutes,
	}
	state := model.CurrentState{
		AttractionID:  reading.AttractionID,
		Open:          computed.Open,
		ObservedAt:    reading.ObservedAt,
		LastChangedAt: reading.ObservedAt,
	}

	if err := d.store.Apply(ctx, transition, state); err != nil {
		return nil, err
	}

	d.log.Debug("transition",
		zap.Int64("attraction_id", reading.AttractionID),
		zap.Bool("new_open", computed.Open),
		zap.Int("duration_minutes", duration),
	)
	return &transition, nil
}
