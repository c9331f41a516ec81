// Package collector ingests park status: it syncs the park and attraction
// catalog from the upstream API and runs the polling cycle that turns raw
// readings into transitions, snapshots and quality issues.
package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
)

// Catalog provides access to the parks and attractions tables.
type Catalog struct {
	pool db.Pool
}

// NewCatalog creates a catalog store backed by the given pool.
func NewCatalog(pool db.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// ListActiveParks returns every active park.
func (c *Catalog) ListActiveParks(ctx context.Context) ([]model.Park, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, name, timezone, latitude, longitude, active
		 FROM park_data.parks WHERE active ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "collector: list active parks")
	}
	defer rows.Close()

	var out []model.Park
	for rows.Next() {
		var p model.Park
		if err := rows.Scan(&p.ID, &p.Name, &p.Timezone, &p.Latitude, &p.Longitude, &p.Active); err != nil {
			return nil, eris.Wrap(err, "collector: scan park")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActiveAttractions returns a park's active attractions.
func (c *Catalog) ListActiveAttractions(ctx context.Context, parkID int64) ([]model.Attraction, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, park_id, name, tier, active, updated_at
		 FROM park_data.attractions WHERE park_id = $1 AND active ORDER BY id`,
		parkID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "collector: list attractions for park %d", parkID)
	}
	defer rows.Close()

	var out []model.Attraction
	for rows.Next() {
		var a model.Attraction
		var tier *int
		if err := rows.Scan(&a.ID, &a.ParkID, &a.Name, &tier, &a.Active, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "collector: scan attraction")
		}
		if tier != nil {
			t := model.Tier(*tier)
			a.Tier = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertParks writes parks from the upstream catalog, preserving tier and
// active flags on existing rows.
func (c *Catalog) UpsertParks(ctx context.Context, parks []model.Park) (int64, error) {
	if len(parks) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(parks))
	for i, p := range parks {
		rows[i] = []any{p.ID, p.Name, p.Timezone, p.Latitude, p.Longitude, true, time.Now().UTC()}
	}
	return db.BulkUpsert(ctx, c.pool, db.UpsertConfig{
		Table:        "park_data.parks",
		Columns:      []string{"id", "name", "timezone", "latitude", "longitude", "active", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"name", "timezone", "latitude", "longitude", "updated_at"},
	}, rows)
}

// UpsertAttractions writes attractions from the upstream catalog. The tier
// column is deliberately excluded from the update set: classification owns
// it.
func (c *Catalog) UpsertAttractions(ctx context.Context, attractions []model.Attraction) (int64, error) {
	if len(attractions) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(attractions))
	for i, a := range attractions {
		rows[i] = []any{a.ID, a.ParkID, a.Name, true, time.Now().UTC()}
	}
	return db.BulkUpsert(ctx, c.pool, db.UpsertConfig{
		Table:        "park_data.attractions",
		Columns:      []string{"id", "park_id", "name", "active", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"name", "active", "updated_at"},
	}, rows)
}

// DeactivateMissingAttractions marks a park's attractions inactive when the
// upstream catalog no longer lists them. Rows are kept; history references
// them.
func (c *Catalog) DeactivateMissingAttractions(ctx context.Context, parkID int64, seen []int64) (int64, error) {
	tag, err := c.pool.Exec(ctx,
		`UPDATE park_data.attractions
		 SET active = FALSE, updated_at = now()
		 WHERE park_id = $1 AND active AND NOT (id = ANY($2))`,
		parkID, seen,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "collector: deactivate attractions for park %d", parkID)
	}
	return tag.RowsAffected(), nil
}

// SetParksActive restricts collection to the given upstream park IDs,
// deactivating everything else. No-op with an empty list.
func (c *Catalog) SetParksActive(ctx context.Context, parkIDs []int64) error {
	if len(parkIDs) == 0 {
		return nil
	}
	if _, err := c.pool.Exec(ctx,
		`UPDATE park_data.parks SET active = (id = ANY($1)), updated_at = now()
		 WHERE active <> (id = ANY($1))`,
		parkIDs,
	); err != nil {
		return eris.Wrap(err, "collector: set active parks")
	}
	return nil
}
