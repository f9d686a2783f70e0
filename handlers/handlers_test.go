package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tourney-service/handlers"
	"tourney-service/models"
	"tourney-service/provider"
	"tourney-service/services"
	"tourney-service/workers"
)

const token = "test-service-token"

type testServer struct {
	app      *fiber.App
	provider *provider.Memory
	games    *services.GameService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))

	logger := zap.NewNop()
	mem := provider.NewMemory()
	tournaments := services.NewTournamentService(db, mem, 1, logger)
	games := services.NewGameService(db, mem, logger)

	reg := prometheus.NewRegistry()
	worker := workers.NewReconcileWorker(games, workers.Options{MaxConcurrency: 2}, nil, workers.NewMetrics(reg), logger)

	app := handlers.NewApp(handlers.AppDeps{
		ServiceToken: token,
		Tournaments:  tournaments,
		Games:        games,
		Reconciler:   worker,
		Gatherer:     reg,
		Logger:       logger,
	})
	return &testServer{app: app, provider: mem, games: games}
}

type request struct {
	method string
	path   string
	body   any
	user   string
	noAuth bool
}

func (s *testServer) do(t *testing.T, r request) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	req.Header.Set("Content-Type", "application/json")
	if !r.noAuth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if r.user != "" {
		req.Header.Set("X-User-ID", r.user)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (s *testServer) startTournament(t *testing.T, name string) string {
	t.Helper()
	status, body := s.do(t, request{method: http.MethodPost, path: "/tournaments", body: map[string]string{"name": name}})
	require.Equal(t, http.StatusCreated, status, body)
	return body["id"].(string)
}

func (s *testServer) createGame(t *testing.T, tournamentID, mapID string) map[string]any {
	t.Helper()
	status, body := s.do(t, request{
		method: http.MethodPost,
		path:   "/tournaments/" + tournamentID + "/games",
		body:   map[string]any{"map_id": mapID},
		user:   "captain-1",
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  request
		want int
	}{
		{name: "missing token", req: request{method: http.MethodGet, path: "/tournaments/active", noAuth: true}, want: http.StatusUnauthorized},
		{name: "valid token", req: request{method: http.MethodGet, path: "/tournaments/active"}, want: http.StatusOK},
		{name: "healthz is public", req: request{method: http.MethodGet, path: "/healthz", noAuth: true}, want: http.StatusOK},
		{name: "callback is public", req: request{method: http.MethodPost, path: "/callback/result", body: map[string]string{"shortCode": "NOPE"}, noAuth: true}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := s.do(t, tt.req)
			assert.Equal(t, tt.want, status)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/tournaments/active", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTournamentRoutes(t *testing.T) {
	s := newTestServer(t)
	id := s.startTournament(t, "Preseason Cup")

	status, body := s.do(t, request{method: http.MethodPost, path: "/tournaments", body: map[string]string{"name": "Winter Cup"}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "already active")

	status, body = s.do(t, request{method: http.MethodPost, path: "/tournaments", body: map[string]string{"name": ""}})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = s.do(t, request{method: http.MethodGet, path: "/tournaments/active"})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["tournaments"], 1)

	status, body = s.do(t, request{method: http.MethodGet, path: "/tournaments/" + id})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "preseason-cup", body["slug"])

	status, _ = s.do(t, request{method: http.MethodGet, path: "/tournaments/missing"})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, request{method: http.MethodPost, path: "/tournaments/" + id + "/complete"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["completed"])
}

func TestGameRoutes(t *testing.T) {
	s := newTestServer(t)
	tournamentID := s.startTournament(t, "Preseason Cup")

	// creator identity is required
	status, _ := s.do(t, request{
		method: http.MethodPost,
		path:   "/tournaments/" + tournamentID + "/games",
		body:   map[string]any{"map_id": models.MapSummonersRift},
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	game := s.createGame(t, tournamentID, "summoners_rift")
	gameID := game["id"].(string)
	code := game["join_code"].(string)
	assert.Equal(t, "open", game["status"])
	assert.Equal(t, "Summoners Rift", game["map_name"])
	assert.Equal(t, "captain-1", game["creator_id"])

	status, body := s.do(t, request{
		method: http.MethodPost,
		path:   "/tournaments/" + tournamentID + "/games",
		body:   map[string]any{"map_id": models.MapSummonersRift},
		user:   "captain-2",
	})
	assert.Equal(t, http.StatusConflict, status, body)

	status, body = s.do(t, request{
		method: http.MethodPost,
		path:   "/tournaments/" + tournamentID + "/games",
		body:   map[string]any{"map_id": "DOMINION"},
		user:   "captain-2",
	})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = s.do(t, request{method: http.MethodPost, path: "/games/" + gameID + "/join", user: "player-1"})
	assert.Equal(t, http.StatusCreated, status, body)
	status, body = s.do(t, request{method: http.MethodPost, path: "/games/" + gameID + "/join", user: "player-1"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["joined"])

	status, body = s.do(t, request{method: http.MethodGet, path: "/games/" + gameID + "/participants"})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["participants"], 1)

	s.provider.PushLobbyEvent(code, provider.EventGameAllocationStarted, "player-1")
	status, body = s.do(t, request{method: http.MethodPost, path: "/games/" + gameID + "/reconcile"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["transition"].(map[string]any)["started"])
	assert.Equal(t, "active", body["game"].(map[string]any)["status"])

	status, body = s.do(t, request{method: http.MethodGet, path: "/tournaments/" + tournamentID + "/games?status=active"})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["games"], 1)

	status, _ = s.do(t, request{method: http.MethodGet, path: "/tournaments/" + tournamentID + "/games?status=pending"})
	assert.Equal(t, http.StatusBadRequest, status)

	// finishing is driven by the provider, not by clients
	status, _ = s.do(t, request{method: http.MethodPost, path: "/games/" + gameID + "/finish"})
	assert.Equal(t, http.StatusNotFound, status)

	s.provider.CompleteMatch(code, "NA1_31337", json.RawMessage(`{"metadata":{"matchId":"NA1_31337"}}`))
	status, body = s.do(t, request{method: http.MethodPost, path: "/games/" + gameID + "/reconcile"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["transition"].(map[string]any)["finished"])
	assert.Equal(t, "finished", body["game"].(map[string]any)["status"])

	status, _ = s.do(t, request{method: http.MethodPost, path: "/games/" + gameID + "/join", user: "player-2"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, request{method: http.MethodGet, path: "/games/missing"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReconcile_ProviderErrors(t *testing.T) {
	s := newTestServer(t)
	tournamentID := s.startTournament(t, "Preseason Cup")
	game := s.createGame(t, tournamentID, models.MapHowlingAbyss)
	gameID := game["id"].(string)

	s.provider.FailNext(provider.OpLobbyEvents, &provider.Error{Op: provider.OpLobbyEvents, StatusCode: 503, Temporary: true})
	status, _ := s.do(t, request{method: http.MethodPost, path: "/games/" + gameID + "/reconcile"})
	assert.Equal(t, http.StatusServiceUnavailable, status)

	s.provider.FailNext(provider.OpMatchIDs, &provider.Error{Op: provider.OpMatchIDs, StatusCode: 403})
	status, _ = s.do(t, request{method: http.MethodPost, path: "/games/" + gameID + "/reconcile"})
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestCallback_FinishesGame(t *testing.T) {
	s := newTestServer(t)
	tournamentID := s.startTournament(t, "Preseason Cup")
	game := s.createGame(t, tournamentID, models.MapHowlingAbyss)
	gameID := game["id"].(string)
	code := game["join_code"].(string)

	s.provider.CompleteMatch(code, "NA1_31337", json.RawMessage(`{"metadata":{"matchId":"NA1_31337"}}`))

	status, body := s.do(t, request{
		method: http.MethodPost,
		path:   "/callback/result",
		body:   map[string]any{"shortCode": code, "gameId": 31337},
		noAuth: true,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "ok", body["status"])

	stored, err := s.games.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusFinished, stored.Status())
	assert.Equal(t, "NA1_31337", stored.MatchID)

	status, _ = s.do(t, request{method: http.MethodPost, path: "/callback/result", body: map[string]any{}, noAuth: true})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "tourney_reconcile_cycles_total")
}
