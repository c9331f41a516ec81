// Package classify assigns importance tiers to attractions through four
// ordered tiers of authority: manual override, cached result, name-pattern
// rule, then an AI fallback. The engine short-circuits on the first resolver
// with an answer.
package classify

import (
	"context"
	"fmt"

	"github.com/parkpulse/parkpulse/internal/model"
)

// Key identifies one attraction for classification.
type Key struct {
	ParkID       int64
	AttractionID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.ParkID, k.AttractionID)
}

// Resolver is one tier of classification authority. Resolve returns nil
// (without error) when this tier has no answer for the key. parkName is
// context for resolvers that need it (the AI tier); cheap tiers ignore it.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, key Key, attraction model.Attraction, parkName string) (*model.ClassificationRecord, error)
}
