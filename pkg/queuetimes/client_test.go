package queuetimes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestClient_Parks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/en-US/parks.json", r.URL.Path)
		w.Write([]byte(`[
			{"id": 1, "name": "Testland Resorts", "parks": [
				{"id": 6, "name": "Testland", "timezone": "America/Los_Angeles",
				 "latitude": "33.8121", "longitude": "-117.9190"}
			]}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	groups, err := c.Parks(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Parks, 1)

	park := groups[0].Parks[0]
	assert.Equal(t, int64(6), park.ID)
	lat, lon, ok := park.Coords()
	require.True(t, ok)
	assert.InDelta(t, 33.8121, lat, 1e-9)
	assert.InDelta(t, -117.9190, lon, 1e-9)
}

func TestClient_QueueTimesFlattensLands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/en-US/parks/6/queue_times.json", r.URL.Path)
		w.Write([]byte(`{
			"lands": [{"id": 1, "name": "Frontier", "rides": [
				{"id": 11, "name": "Thunder Coaster", "is_open": true, "wait_time": 25}
			]}],
			"rides": [{"id": 12, "name": "Splash Run", "is_open": false, "wait_time": 0}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	resp, err := c.QueueTimes(context.Background(), 6)
	require.NoError(t, err)

	rides := resp.AllRides()
	require.Len(t, rides, 2)
	assert.Equal(t, int64(11), rides[0].ID)
	require.NotNil(t, rides[0].IsOpen)
	assert.True(t, *rides[0].IsOpen)
	assert.Equal(t, int64(12), rides[1].ID)
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Parks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.QueueTimes(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPark_CoordsMalformed(t *testing.T) {
	_, _, ok := Park{Latitude: "", Longitude: "-117.9"}.Coords()
	assert.False(t, ok)

	_, _, ok = Park{Latitude: "north", Longitude: "-117.9"}.Coords()
	assert.False(t, ok)
}
