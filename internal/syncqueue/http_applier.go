package syncqueue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/marketsync/internal/circuitbreaker"
	"github.com/charlesng35/marketsync/internal/models"
	"github.com/charlesng35/marketsync/internal/monitoring"
	"github.com/charlesng35/marketsync/pkg/logger"
)

// idempotencyNamespace seeds deterministic Idempotency-Key values so a replayed
// operation carries the same key as its first attempt.
var idempotencyNamespace = uuid.MustParse("6f0c7a52-1d3e-4b8e-9a55-3c2f4d9b7e10")

const defaultRemoteTimeout = 15 * time.Second

// HTTPApplierConfig configures the REST remote.
type HTTPApplierConfig struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	HealthPath     string
	CircuitBreaker circuitbreaker.Config
}

// HTTPApplier applies pending operations against a REST API:
// POST /{table}, PUT /{table}/{id}, DELETE /{table}/{id}.
type HTTPApplier struct {
	base       *url.URL
	token      string
	healthPath string
	client     *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	log        *zap.Logger
}

// RejectedError reports a remote rejection of an operation.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return "remote rejected operation: status " + strconv.Itoa(e.StatusCode)
	}
	return "remote rejected operation: status " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}

// NewHTTPApplier builds an applier for cfg.BaseURL.
func NewHTTPApplier(cfg HTTPApplierConfig, client *http.Client) (*HTTPApplier, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("syncqueue: invalid remote base url %q", cfg.BaseURL)
	}

	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRemoteTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	breakerCfg := cfg.CircuitBreaker
	if breakerCfg.Name == "" {
		breakerCfg.Name = "remote"
	}
	breakerCfg.IsFailure = func(err error) bool {
		return errors.Is(err, ErrRemoteUnavailable)
	}

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	return &HTTPApplier{
		base:       base,
		token:      cfg.Token,
		healthPath: healthPath,
		client:     client,
		breaker:    circuitbreaker.New(breakerCfg),
		log:        logger.WithModule("syncqueue"),
	}, nil
}

// Breaker exposes the circuit breaker guarding the remote.
func (a *HTTPApplier) Breaker() *circuitbreaker.CircuitBreaker {
	return a.breaker
}

// Apply sends op to the remote.
func (a *HTTPApplier) Apply(ctx context.Context, op models.PendingOperation) error {
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		return a.send(ctx, op)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	return err
}

func (a *HTTPApplier) send(ctx context.Context, op models.PendingOperation) error {
	method, target, err := a.route(op)
	if err != nil {
		return err
	}

	var body io.Reader
	if op.Action != models.ActionDelete && len(op.Payload) > 0 {
		body = bytes.NewReader(op.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("syncqueue: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", IdempotencyKey(op))
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		monitoring.ObserveRemoteCall(string(op.Action), "error", time.Since(start))
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	monitoring.ObserveRemoteCall(string(op.Action), strconv.Itoa(resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode == http.StatusNotFound && op.Action == models.ActionDelete:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.log.Debug("remote rejected operation",
			zap.Uint64("operation_id", op.ID),
			zap.String("table", op.Table),
			zap.Int("status", resp.StatusCode),
		)
		return &RejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
}

func (a *HTTPApplier) route(op models.PendingOperation) (string, string, error) {
	collection := a.base.JoinPath(op.Table)
	switch op.Action {
	case models.ActionCreate:
		return http.MethodPost, collection.String(), nil
	case models.ActionUpdate:
		return http.MethodPut, collection.JoinPath(op.RecordID).String(), nil
	case models.ActionDelete:
		return http.MethodDelete, collection.JoinPath(op.RecordID).String(), nil
	default:
		return "", "", fmt.Errorf("syncqueue: unsupported action %q", op.Action)
	}
}

// Ping checks the remote health endpoint. Any response below 500 means the remote is reachable,
// so a missing health route or a rejected token does not read as an outage.
func (a *HTTPApplier) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base.JoinPath(a.healthPath).String(), nil)
	if err != nil {
		return err
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: health status %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	return nil
}

// IdempotencyKey derives a stable key for op from its id, action, and target.
func IdempotencyKey(op models.PendingOperation) string {
	name := strconv.FormatUint(op.ID, 10) + ":" + string(op.Action) + ":" + op.Table + ":" + op.RecordID
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}
