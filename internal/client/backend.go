// Package client provides the outbound HTTP client for the backend API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/metrics"
	"dashboard-gateway/internal/model"
	"dashboard-gateway/internal/tracing"
)

// ErrCircuitOpen is returned when the breaker rejects a call without sending it.
var ErrCircuitOpen = errors.New("backend circuit breaker is open")

// ErrResponseTooLarge is returned when a backend body exceeds upstream.response_max_bytes.
var ErrResponseTooLarge = errors.New("backend response too large")

// errServerStatus marks a 5xx as a breaker failure while still returning the response.
var errServerStatus = errors.New("backend server error")

const userAgent = "dashboard-gateway/1.0"

// BackendClient sends requests to the backend API.
type BackendClient struct {
	httpClient *http.Client
	baseURL    string
	maxBody    int64
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     *tracing.Tracer
}

// NewBackendClient creates a BackendClient with connection pooling and timeouts.
// The metrics and tracer parameters are optional; pass nil to disable them.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, tr *tracing.Tracer) *BackendClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		baseURL: cfg.Upstream.BaseURL,
		maxBody: cfg.Upstream.ResponseMaxBytes,
		logger:  logger.With("component", "backend_client"),
		metrics: m,
		tracer:  tr,
	}

	if cb := cfg.Upstream.CircuitBreaker; cb.Enabled {
		c.breaker = c.newBreaker(cb)
	}

	return c
}

func (c *BackendClient) newBreaker(cb config.CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	threshold := uint32(max(cb.FailureThreshold, 1)) //nolint:gosec // bounded by config validation
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     time.Duration(cb.OpenSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller that goes away is not the backend's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if c.metrics != nil {
				c.metrics.BreakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
			}
		},
	})
}

// BreakerState reports the breaker state, or "disabled".
func (c *BackendClient) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// BaseURL returns the backend root address.
func (c *BackendClient) BaseURL() string {
	return c.baseURL
}

// Do sends br to the backend and reads the whole response.
// The provided context controls the lifetime of the backend call: when it
// is canceled (e.g. the dashboard disconnects), the call is canceled too.
func (c *BackendClient) Do(ctx context.Context, br *model.BackendRequest) (*model.BackendResponse, error) {
	target := c.baseURL + br.Path
	switch {
	case br.RawQuery != "":
		target += "?" + br.RawQuery
	case len(br.Query) > 0:
		target += "?" + br.Query.Encode()
	}

	var body io.Reader
	if len(br.Body) > 0 {
		body = bytes.NewReader(br.Body)
	}

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "backend "+br.Method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.request.method", br.Method),
				attribute.String("url.path", br.Path),
			),
		)
		defer span.End()
		resp, err := c.do(ctx, br, target, body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "backend call failed")
			return nil, err
		}
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.StatusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		return resp, nil
	}

	return c.do(ctx, br, target, body)
}

func (c *BackendClient) do(ctx context.Context, br *model.BackendRequest, target string, body io.Reader) (*model.BackendResponse, error) {
	req, err := http.NewRequestWithContext(ctx, br.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header = c.requestHeaders(br)
	tracing.Inject(ctx, req.Header)

	c.logger.Debug("backend request",
		"method", br.Method,
		"path", br.Path,
		"request_id", br.RequestID,
	)

	if c.breaker == nil {
		return c.send(req)
	}

	var resp *model.BackendResponse
	_, err = c.breaker.Execute(func() (interface{}, error) {
		r, err := c.send(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= 500 {
			return nil, errServerStatus
		}
		return nil, nil
	})
	if resp != nil {
		return resp, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.recordError(br.Method, "circuit_open")
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return nil, err
}

// send executes req and reads the body in full.
func (c *BackendClient) send(req *http.Request) (*model.BackendResponse, error) {
	method := metrics.NormalizeMethod(req.Method)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
	}
	if err != nil {
		c.recordError(req.Method, errorReason(err))
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	raw, err := c.readBody(resp.Body)
	if err != nil {
		c.recordError(req.Method, "read")
		return nil, err
	}

	return &model.BackendResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       model.ParseBody(raw),
	}, nil
}

func (c *BackendClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody <= 0 {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read backend response: %w", err)
		}
		return raw, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	if int64(len(raw)) > c.maxBody {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, c.maxBody)
	}
	return raw, nil
}

// requestHeaders merges the fixed JSON headers with the caller's Authorization.
func (c *BackendClient) requestHeaders(br *model.BackendRequest) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("User-Agent", userAgent)
	if br.Authorization != "" {
		h.Set("Authorization", br.Authorization)
	}
	if br.RequestID != "" {
		h.Set("X-Request-Id", br.RequestID)
	}
	return h
}

func (c *BackendClient) recordError(method, reason string) {
	if c.metrics != nil {
		c.metrics.UpstreamErrors.WithLabelValues(metrics.NormalizeMethod(method), reason).Inc()
	}
}

func errorReason(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "connection"
	}
}
