package syncqueue

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/charlesng35/marketsync/internal/circuitbreaker"
	"github.com/charlesng35/marketsync/internal/models"
)

type capturedRequest struct {
	Method         string
	Path           string
	Body           string
	Authorization  string
	IdempotencyKey string
}

func newRemote(t *testing.T, status func(r *http.Request) int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = append(captured, capturedRequest{
			Method:         r.Method,
			Path:           r.URL.Path,
			Body:           string(body),
			Authorization:  r.Header.Get("Authorization"),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		mu.Unlock()
		w.WriteHeader(status(r))
		_, _ = w.Write([]byte(`{"error":"rejected"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestHTTPApplierRoutes(t *testing.T) {
	srv, captured := newRemote(t, func(*http.Request) int { return http.StatusOK })
	applier, err := NewHTTPApplier(HTTPApplierConfig{BaseURL: srv.URL + "/v1/", Token: "secret"}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	ops := []models.PendingOperation{
		{ID: 1, Action: models.ActionCreate, Table: models.TableOpportunities, RecordID: "o1", Payload: datatypes.JSON(`{"title":"Bounty"}`)},
		{ID: 2, Action: models.ActionUpdate, Table: models.TableUsers, RecordID: "u1", Payload: datatypes.JSON(`{"bio":"hi"}`)},
		{ID: 3, Action: models.ActionDelete, Table: models.TableAchievements, RecordID: "a1"},
	}
	for _, op := range ops {
		require.NoError(t, applier.Apply(ctx, op))
	}

	got := *captured
	require.Len(t, got, 3)
	require.Equal(t, http.MethodPost, got[0].Method)
	require.Equal(t, "/v1/opportunities", got[0].Path)
	require.JSONEq(t, `{"title":"Bounty"}`, got[0].Body)
	require.Equal(t, http.MethodPut, got[1].Method)
	require.Equal(t, "/v1/users/u1", got[1].Path)
	require.Equal(t, http.MethodDelete, got[2].Method)
	require.Equal(t, "/v1/achievements/a1", got[2].Path)
	require.Empty(t, got[2].Body)

	for i, req := range got {
		require.Equal(t, "Bearer secret", req.Authorization)
		require.Equal(t, IdempotencyKey(ops[i]), req.IdempotencyKey)
	}
}

func TestIdempotencyKeyIsStable(t *testing.T) {
	op := models.PendingOperation{ID: 7, Action: models.ActionUpdate, Table: models.TableUsers, RecordID: "u1", RetryCount: 0}
	retried := op
	retried.RetryCount = 2
	require.Equal(t, IdempotencyKey(op), IdempotencyKey(retried))

	other := op
	other.ID = 8
	require.NotEqual(t, IdempotencyKey(op), IdempotencyKey(other))
}

func TestHTTPApplierStatusMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		action      models.SyncAction
		unavailable bool
		rejected    bool
	}{
		{name: "delete of missing record", status: http.StatusNotFound, action: models.ActionDelete},
		{name: "update of missing record", status: http.StatusNotFound, action: models.ActionUpdate, rejected: true},
		{name: "validation failure", status: http.StatusUnprocessableEntity, action: models.ActionCreate, rejected: true},
		{name: "server error", status: http.StatusBadGateway, action: models.ActionUpdate, unavailable: true},
		{name: "throttled", status: http.StatusTooManyRequests, action: models.ActionUpdate, unavailable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newRemote(t, func(*http.Request) int { return tt.status })
			applier, err := NewHTTPApplier(HTTPApplierConfig{BaseURL: srv.URL}, nil)
			require.NoError(t, err)

			err = applier.Apply(context.Background(), models.PendingOperation{ID: 1, Action: tt.action, Table: models.TableUsers, RecordID: "u1", Payload: datatypes.JSON(`{}`)})
			switch {
			case tt.unavailable:
				require.ErrorIs(t, err, ErrRemoteUnavailable)
			case tt.rejected:
				var rejected *RejectedError
				require.ErrorAs(t, err, &rejected)
				require.Equal(t, tt.status, rejected.StatusCode)
				require.NotErrorIs(t, err, ErrRemoteUnavailable)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestHTTPApplierOpenCircuitReportsUnavailable(t *testing.T) {
	srv, captured := newRemote(t, func(*http.Request) int { return http.StatusServiceUnavailable })
	applier, err := NewHTTPApplier(HTTPApplierConfig{
		BaseURL:        srv.URL,
		CircuitBreaker: circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour},
	}, nil)
	require.NoError(t, err)

	op := models.PendingOperation{ID: 1, Action: models.ActionUpdate, Table: models.TableUsers, RecordID: "u1"}
	for i := 0; i < 2; i++ {
		require.ErrorIs(t, applier.Apply(context.Background(), op), ErrRemoteUnavailable)
	}
	require.True(t, applier.Breaker().IsOpen())

	err = applier.Apply(context.Background(), op)
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	require.Len(t, *captured, 2)
}

func TestHTTPApplierTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	applier, err := NewHTTPApplier(HTTPApplierConfig{BaseURL: url, Timeout: time.Second}, nil)
	require.NoError(t, err)

	err = applier.Apply(context.Background(), models.PendingOperation{ID: 1, Action: models.ActionCreate, Table: models.TableUsers})
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.ErrorIs(t, applier.Ping(context.Background()), ErrRemoteUnavailable)
}

func TestHTTPApplierPing(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv, captured := newRemote(t, func(r *http.Request) int {
		return int(status.Load())
	})
	applier, err := NewHTTPApplier(HTTPApplierConfig{BaseURL: srv.URL, HealthPath: "/status"}, nil)
	require.NoError(t, err)
	require.NoError(t, applier.Ping(context.Background()))
	require.Equal(t, "/status", (*captured)[0].Path)

	for _, code := range []int{http.StatusNotFound, http.StatusUnauthorized, http.StatusTooManyRequests} {
		status.Store(int32(code))
		require.NoError(t, applier.Ping(context.Background()), "status %d", code)
	}

	status.Store(http.StatusServiceUnavailable)
	require.ErrorIs(t, applier.Ping(context.Background()), ErrRemoteUnavailable)

	_, err = NewHTTPApplier(HTTPApplierConfig{BaseURL: "not a url"}, nil)
	require.Error(t, err)
}
