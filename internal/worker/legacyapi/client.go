package legacyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"punchclock.service/internal/ports/messaging"
)

// Client contract for the legacy payroll system.
type Client interface {
	RecordShift(ctx context.Context, event messaging.LaborEvent) error
}

// HTTPClient posts closed shifts to the legacy payroll API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: baseURL,
	}
}

type shiftPayload struct {
	EmployeeID  string  `json:"employeeId"`
	WorkDate    string  `json:"workDate"`
	ClockIn     string  `json:"clockIn"`
	ClockOut    string  `json:"clockOut"`
	HoursWorked float64 `json:"hoursWorked"`
	ExternalRef string  `json:"externalRef"`
}

// RecordShift sends the closed shift. ExternalRef lets the legacy side drop
// replays of the same record.
func (c *HTTPClient) RecordShift(ctx context.Context, event messaging.LaborEvent) error {
	payload, err := json.Marshal(shiftPayload{
		EmployeeID:  event.EmployeeID,
		WorkDate:    event.WorkDate.Format(time.DateOnly),
		ClockIn:     event.ClockIn.UTC().Format(time.RFC3339),
		ClockOut:    event.ClockOut.UTC().Format(time.RFC3339),
		HoursWorked: event.HoursWorked,
		ExternalRef: fmt.Sprintf("time-record-%d", event.TimeRecordID),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal legacy api payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create legacy api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call legacy api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("legacy api returned non-successful status code: %d", resp.StatusCode)
	}

	log.Ctx(ctx).Info().Str("employee_id", event.EmployeeID).Int64("time_record_id", event.TimeRecordID).
		Msg("Recorded shift in legacy system")
	return nil
}
