package collector

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkpulse/parkpulse/pkg/queuetimes"
)

func expectUpsert(mock pgxmock.PgxPoolIface, tempTable string, columns []string, affected int64) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{tempTable}, columns).
		WillReturnResult(affected)
	mock.ExpectExec("ON CONFLICT").
		WillReturnResult(pgxmock.NewResult("INSERT", affected))
	mock.ExpectCommit()
}

func TestSyncer_SyncsParksAndAttractions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	qt := &fakeQueueTimes{
		groups: []queuetimes.ParkGroup{{
			ID:   1,
			Name: "Testland Resorts",
			Parks: []queuetimes.Park{
				{ID: 6, Name: "Testland", Timezone: "America/Los_Angeles", Latitude: "33.81", Longitude: "-117.92"},
				{ID: 7, Name: "Otherland", Timezone: "Europe/Paris"},
			},
		}},
		queues: map[int64]*queuetimes.QueueResponse{
			6: {Rides: []queuetimes.Ride{{ID: 11, Name: "Thunder Coaster"}, {ID: 12, Name: "Splash Run"}}},
		},
	}

	expectUpsert(mock, "_tmp_upsert_park_data_parks",
		[]string{"id", "name", "timezone", "latitude", "longitude", "active", "updated_at"}, 1)
	mock.ExpectExec("UPDATE park_data.parks").
		WithArgs([]int64{6}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expectUpsert(mock, "_tmp_upsert_park_data_attractions",
		[]string{"id", "park_id", "name", "active", "updated_at"}, 2)
	mock.ExpectExec("UPDATE park_data.attractions").
		WithArgs(int64(6), []int64{11, 12}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	s := NewSyncer(qt, NewCatalog(mock))
	sum, err := s.Sync(context.Background(), []int64{6})
	require.NoError(t, err)

	// Park 7 is filtered out by the id list.
	assert.Equal(t, 1, sum.Parks)
	assert.Equal(t, int64(2), sum.Attractions)
	assert.Zero(t, sum.Deactivated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
