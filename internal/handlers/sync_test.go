package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/marketsync/internal/cache"
	"github.com/charlesng35/marketsync/internal/database/testutil"
	"github.com/charlesng35/marketsync/internal/engine"
	"github.com/charlesng35/marketsync/internal/models"
	"github.com/charlesng35/marketsync/internal/syncqueue"
	"github.com/charlesng35/marketsync/pkg/response"
)

type fakeRemote struct {
	mu     sync.Mutex
	reject bool
	calls  int
}

func (f *fakeRemote) Apply(_ context.Context, _ models.PendingOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.reject {
		return errors.New("rejected")
	}
	return nil
}

type syncEnv struct {
	engine *engine.Engine
	remote *fakeRemote
	router *gin.Engine
}

func newSyncEnv(t *testing.T, online bool) *syncEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	remote := &fakeRemote{}
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	eng, err := engine.New(engine.Config{
		Cache:      cache.Config{DefaultTTL: time.Minute},
		DeadLetter: true,
	}, db, remote, engine.WithInitialOnline(online))
	require.NoError(t, err)

	syncHandler, err := NewSyncHandler(eng)
	require.NoError(t, err)
	settingsHandler, err := NewSettingsHandler(eng.Coordinator)
	require.NoError(t, err)
	cacheHandler, err := NewCacheHandler(eng.Cache)
	require.NoError(t, err)

	router := gin.New()
	api := router.Group("/api")
	api.GET("/sync/status", syncHandler.Status)
	api.POST("/sync/drain", syncHandler.Drain)
	api.GET("/sync/pending", syncHandler.Pending)
	api.GET("/sync/dead-letters", syncHandler.DeadLetters)
	api.POST("/sync/dead-letters/:id/requeue", syncHandler.Requeue)
	api.POST("/mutations", syncHandler.Mutate)
	api.PUT("/settings/offline-mode", settingsHandler.SetOfflineMode)
	api.PUT("/connectivity", settingsHandler.SetConnectivity)
	api.GET("/cache/stats", cacheHandler.Stats)
	api.DELETE("/cache", cacheHandler.Invalidate)

	return &syncEnv{engine: eng, remote: remote, router: router}
}

func (e *syncEnv) request(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp response.Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func decodeData(t *testing.T, resp response.Response, target any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, target))
}

func TestSyncHandlerMutateEnqueues(t *testing.T) {
	env := newSyncEnv(t, false)

	rec, resp := env.request(t, http.MethodPost, "/api/mutations", map[string]any{
		"action": "create",
		"table":  models.TableUsers,
		"record": map[string]any{"id": "u-1", "username": "ada", "email": "ada@example.com"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, resp.Success)

	var op models.PendingOperation
	decodeData(t, resp, &op)
	require.Equal(t, "u-1", op.RecordID)
	require.Equal(t, models.ActionCreate, op.Action)

	rec, resp = env.request(t, http.MethodGet, "/api/sync/pending?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Meta)
	require.Equal(t, int64(1), resp.Meta.Total)
	require.Equal(t, 10, resp.Meta.Limit)
}

func TestSyncHandlerMutateValidation(t *testing.T) {
	env := newSyncEnv(t, false)

	rec, resp := env.request(t, http.MethodPost, "/api/mutations", map[string]any{
		"action": "merge",
		"table":  models.TableUsers,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, resp.Success)

	rec, _ = env.request(t, http.MethodPost, "/api/mutations", map[string]any{
		"action": "create",
		"table":  "ledgers",
		"record": map[string]any{"name": "x"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.request(t, http.MethodPost, "/api/mutations", map[string]any{
		"action": "update",
		"table":  models.TableUsers,
		"record": map[string]any{"username": "nobody"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	longID := strings.Repeat("u", 65)
	rec, _ = env.request(t, http.MethodPost, "/api/mutations", map[string]any{
		"action": "create",
		"table":  models.TableUsers,
		"record": map[string]any{"id": longID, "username": "long", "email": "long@example.com"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	backlog, err := env.engine.Queue.Backlog(context.Background())
	require.NoError(t, err)
	require.Zero(t, backlog)
}

func TestSyncHandlerDrainSuppressedWhileOffline(t *testing.T) {
	env := newSyncEnv(t, false)

	rec, resp := env.request(t, http.MethodPost, "/api/sync/drain", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, "sync.suppressed", resp.Error.Code)
}

func TestSyncHandlerDrainAndStatus(t *testing.T) {
	env := newSyncEnv(t, true)

	rec, _ := env.request(t, http.MethodPost, "/api/mutations", map[string]any{
		"action": "create",
		"table":  models.TableOpportunities,
		"record": map[string]any{"id": "o-1", "creator_id": "u-1", "title": "Launch"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec, resp := env.request(t, http.MethodPost, "/api/sync/drain", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result syncqueue.Result
	decodeData(t, resp, &result)
	require.Equal(t, 1, result.Synced)
	require.Zero(t, result.Remaining)

	rec, resp = env.request(t, http.MethodGet, "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	decodeData(t, resp, &status)
	require.Equal(t, true, status["online"])
	require.Equal(t, true, status["sync_enabled"])
	require.EqualValues(t, 0, status["backlog"])
	require.NotEmpty(t, status["last_full_sync"])
}

func TestSyncHandlerDeadLetterRequeue(t *testing.T) {
	env := newSyncEnv(t, true)
	env.remote.reject = true
	ctx := context.Background()

	_, err := env.engine.Mutate(ctx, engine.Mutation{
		Action: models.ActionCreate,
		Table:  models.TableUsers,
		Record: map[string]any{"id": "u-2", "username": "grace", "email": "grace@example.com"},
	})
	require.NoError(t, err)

	for i := 0; i < env.engine.Queue.RetryCeiling(); i++ {
		_, err := env.engine.Coordinator.SyncNow(ctx)
		require.NoError(t, err)
	}

	rec, resp := env.request(t, http.MethodGet, "/api/sync/dead-letters", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var letters []models.DeadLetter
	decodeData(t, resp, &letters)
	require.Len(t, letters, 1)
	require.Equal(t, "u-2", letters[0].RecordID)

	rec, _ = env.request(t, http.MethodPost, "/api/sync/dead-letters/abc/requeue", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.request(t, http.MethodPost, "/api/sync/dead-letters/9999/requeue", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	env.remote.reject = false
	rec, _ = env.request(t, http.MethodPost, "/api/sync/dead-letters/"+jsonID(letters[0].ID)+"/requeue", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	backlog, err := env.engine.Queue.Backlog(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), backlog)
}

func TestSettingsHandlerOfflineMode(t *testing.T) {
	env := newSyncEnv(t, true)

	rec, _ := env.request(t, http.MethodPut, "/api/settings/offline-mode", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := env.request(t, http.MethodPut, "/api/settings/offline-mode", map[string]any{"offline_mode": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	decodeData(t, resp, &body)
	require.True(t, body["offline_mode"])
	require.True(t, body["online"])
	require.False(t, env.engine.Coordinator.SyncEnabled())

	rec, _ = env.request(t, http.MethodPost, "/api/sync/drain", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSettingsHandlerConnectivity(t *testing.T) {
	env := newSyncEnv(t, true)

	rec, resp := env.request(t, http.MethodPut, "/api/connectivity", map[string]any{"online": false})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	decodeData(t, resp, &body)
	require.False(t, body["online"])
	require.False(t, env.engine.Coordinator.Online())

	rec, _ = env.request(t, http.MethodPut, "/api/connectivity", map[string]any{"online": "yes"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheHandlerInvalidate(t *testing.T) {
	env := newSyncEnv(t, false)

	require.NoError(t, cache.Set(env.engine.Cache, "users:1", "a"))
	require.NoError(t, cache.Set(env.engine.Cache, "users:2", "b"))
	require.NoError(t, cache.Set(env.engine.Cache, "orders:1", "c"))

	rec, _ := env.request(t, http.MethodDelete, "/api/cache", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.request(t, http.MethodDelete, "/api/cache?pattern=(", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := env.request(t, http.MethodDelete, "/api/cache?pattern=users:", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	decodeData(t, resp, &body)
	require.Equal(t, 2, body["removed"])
	require.True(t, env.engine.Cache.Has("orders:1"))

	rec, resp = env.request(t, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats cache.Stats
	decodeData(t, resp, &stats)
	require.Equal(t, 1, stats.CurrentEntries)

	rec, _ = env.request(t, http.MethodDelete, "/api/cache?all=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, env.engine.Cache.Has("orders:1"))
}

func jsonID(id uint64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
