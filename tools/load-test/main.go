// Replays a day of punches for many employees against the punch API. Every
// punch is submitted twice to exercise server-side deduplication.
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"punchclock.service/internal/agent/remote"
	"punchclock.service/internal/core/model"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "punch API base URL")
	secret := flag.String("secret", "change-me", "JWT_SECRET of the API")
	numEmployees := flag.Int("employees", 5000, "number of simulated employees")
	concurrency := flag.Int("concurrency", 50, "concurrent employees")
	flag.Parse()

	client := remote.NewHTTPClient(*baseURL, "load-test", *secret)
	day := time.Now().UTC().Add(-24 * time.Hour).Truncate(24 * time.Hour)
	sequence := []struct {
		typ    model.PunchType
		offset time.Duration
	}{
		{model.PunchClockIn, 8 * time.Hour},
		{model.PunchBreakStart, 12 * time.Hour},
		{model.PunchBreakEnd, 13 * time.Hour},
		{model.PunchClockOut, 17 * time.Hour},
	}
	totalRequests := *numEmployees * len(sequence) * 2

	fmt.Printf("Starting load test: %d employees, %d requests to %s with concurrency %d\n", *numEmployees, totalRequests, *baseURL, *concurrency)

	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrency)
	var successCount, failCount int64

	startTime := time.Now()
	for i := 0; i < *numEmployees; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(empID string) {
			defer wg.Done()
			defer func() { <-sem }()

			for _, step := range sequence {
				p := model.Punch{ID: uuid.NewString(), EmployeeID: empID, Type: step.typ, Timestamp: day.Add(step.offset)}
				for attempt := 0; attempt < 2; attempt++ {
					if err := client.SubmitPunch(context.Background(), p); err != nil {
						atomic.AddInt64(&failCount, 1)
						continue
					}
					atomic.AddInt64(&successCount, 1)
				}
			}
		}(fmt.Sprintf("load-test-emp-%d", i))
	}

	wg.Wait()
	duration := time.Since(startTime)

	fmt.Println("\n--- Load Test Results ---")
	fmt.Printf("Total Duration: %v\n", duration)
	fmt.Printf("Total Requests: %d\n", totalRequests)
	fmt.Printf("Successful:     %d\n", successCount)
	fmt.Printf("Failed:         %d\n", failCount)
	fmt.Printf("Requests/Sec:   %.2f\n", float64(totalRequests)/duration.Seconds())
}
