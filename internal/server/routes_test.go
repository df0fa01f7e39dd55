package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/config"
	"github.com/scythe504/mathquest-backend/internal/middleware"
	"github.com/scythe504/mathquest-backend/internal/relay"
	"github.com/scythe504/mathquest-backend/internal/repository"
	"github.com/scythe504/mathquest-backend/internal/store"
)

type fakeHistory struct {
	enabled bool
	duels   []internal.DuelSummary
	limit   int
}

func (f *fakeHistory) Enabled() bool { return f.enabled }

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]internal.DuelSummary, error) {
	if !f.enabled {
		return nil, repository.ErrDisabled
	}
	f.limit = limit
	return f.duels, nil
}

func newTestServer(t *testing.T, history *fakeHistory) (*httptest.Server, *store.Hub) {
	t.Helper()
	hub := store.NewHub(zerolog.Nop())
	cfg := &config.RelayConfig{Port: "0", AllowedOrigins: []string{"http://play.test"}}
	s := NewServer(cfg, hub, relay.New(hub, zerolog.Nop()), history, zerolog.Nop())
	ts := httptest.NewServer(s.RegisterRoutes())
	t.Cleanup(ts.Close)
	return ts, hub
}

func getEnvelope(t *testing.T, url string) (int, internal.Response, json.RawMessage) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw struct {
		internal.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	return resp.StatusCode, raw.Response, raw.Data
}

func TestHelloAndHealth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeHistory{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	resp2, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["persistence"])
}

func TestRoomsAvailable(t *testing.T) {
	ts, hub := newTestServer(t, &fakeHistory{})

	status, env, _ := getEnvelope(t, ts.URL+"/rooms-available")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, http.StatusNotFound, env.StatusCode)

	require.NoError(t, hub.Seed(internal.DuelPath("BBBB"), store.Doc{"hostId": "p2", "hostName": "Bob", "status": "waiting", "createdAt": 20}))
	require.NoError(t, hub.Seed(internal.DuelPath("AAAA"), store.Doc{"hostId": "p1", "hostName": "Ada", "status": "waiting", "createdAt": 10}))
	require.NoError(t, hub.Seed(internal.DuelPath("PRIV"), store.Doc{"hostId": "p3", "status": "waiting", "private": true, "createdAt": 5}))
	require.NoError(t, hub.Seed(internal.DuelPath("FULL"), store.Doc{"hostId": "p4", "guestId": "p5", "status": "playing", "createdAt": 1}))

	status, env, data := getEnvelope(t, ts.URL+"/rooms-available")
	assert.Equal(t, http.StatusOK, status)
	assert.GreaterOrEqual(t, env.RespEndTime, env.RespStartTime)

	var rooms []internal.RoomListing
	require.NoError(t, json.Unmarshal(data, &rooms))
	assert.Equal(t, []internal.RoomListing{
		{ID: "AAAA", HostName: "Ada", CreatedAt: 10},
		{ID: "BBBB", HostName: "Bob", CreatedAt: 20},
	}, rooms)
}

func TestOnlineCount(t *testing.T) {
	ts, hub := newTestServer(t, &fakeHistory{})
	require.NoError(t, hub.Seed(internal.OnlinePath("p1"), store.Doc{"name": "Ada"}))
	require.NoError(t, hub.Seed(internal.OnlinePath("p2"), store.Doc{"name": "Bob"}))

	_, _, data := getEnvelope(t, ts.URL+"/online")
	var body map[string]int
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, 2, body["online"])
}

func TestRecentDuels(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts, _ := newTestServer(t, &fakeHistory{})
		status, _, _ := getEnvelope(t, ts.URL+"/duels/recent")
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	t.Run("bad limit", func(t *testing.T) {
		ts, _ := newTestServer(t, &fakeHistory{enabled: true})
		status, _, _ := getEnvelope(t, ts.URL+"/duels/recent?limit=abc")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("enabled", func(t *testing.T) {
		history := &fakeHistory{enabled: true, duels: []internal.DuelSummary{
			{ID: "x1", RoomCode: "ABCD", HostName: "Ada", FinishedAt: time.Unix(100, 0).UTC()},
		}}
		ts, _ := newTestServer(t, history)

		status, _, data := getEnvelope(t, ts.URL+"/duels/recent?limit=5")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 5, history.limit)

		var duels []internal.DuelSummary
		require.NoError(t, json.Unmarshal(data, &duels))
		require.Len(t, duels, 1)
		assert.Equal(t, "ABCD", duels[0].RoomCode)
	})
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, &fakeHistory{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/rooms-available", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://play.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://play.test", resp.Header.Get("Access-Control-Allow-Origin"))
}
