package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"punchclock.service/internal/core/model"
	"punchclock.service/pkg/auth"
)

// ErrRejected marks a punch the server refused as invalid (4xx).
var ErrRejected = errors.New("punch rejected by server")

// PunchRepository is the agent's typed view of the punch API.
type PunchRepository interface {
	SubmitPunch(ctx context.Context, p model.Punch) error
	Ping(ctx context.Context) error
}

// StatusError carries the HTTP status of a failed call.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("punch api returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code >= 400 && e.Code < 500 && e.Code != http.StatusRequestTimeout && e.Code != http.StatusTooManyRequests {
		return ErrRejected
	}
	return nil
}

type submitRequest struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employeeId"`
	Type       model.PunchType `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
}

// HTTPClient talks to the punch API over HTTPS with a device token.
type HTTPClient struct {
	client   *http.Client
	baseURL  string
	deviceID string
	secret   string
	cb       *gobreaker.CircuitBreaker
}

// NewHTTPClient creates a client for the API at baseURL. Submissions go
// through a circuit breaker so a struggling server is not hammered on every pass.
func NewHTTPClient(baseURL, deviceID, secret string) *HTTPClient {
	settings := gobreaker.Settings{
		Name:        "Punch-API",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejected punch says nothing about server health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		secret:   secret,
		cb:       gobreaker.NewCircuitBreaker(settings),
	}
}

// SubmitPunch posts p. Both 201 (created) and 200 (already known) count as delivered.
func (c *HTTPClient) SubmitPunch(ctx context.Context, p model.Punch) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.submit(ctx, p)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("punch api circuit open: %w", err)
	}
	return err
}

func (c *HTTPClient) submit(ctx context.Context, p model.Punch) error {
	payload, err := json.Marshal(submitRequest{
		ID:         p.ID,
		EmployeeID: p.EmployeeID,
		Type:       p.Type,
		Timestamp:  p.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal punch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/punches", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create punch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call punch api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return nil
}

// Ping checks the unauthenticated health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call health endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func (c *HTTPClient) authorize(req *http.Request) error {
	tok, err := auth.NewDeviceToken(c.secret, c.deviceID, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("failed to sign device token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

func statusError(resp *http.Response) error {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(io.LimitReader(resp.Body, 1024))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(buf.String())}
}
