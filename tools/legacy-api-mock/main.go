// Stand-in for the legacy payroll API during local development.
package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type shift struct {
	EmployeeID  string  `json:"employeeId"`
	WorkDate    string  `json:"workDate"`
	HoursWorked float64 `json:"hoursWorked"`
	ExternalRef string  `json:"externalRef"`
}

type mock struct {
	failRate float64
	mu       sync.Mutex
	seen     map[string]bool
}

func (m *mock) recordShift(w http.ResponseWriter, r *http.Request) {
	var s shift
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if rand.Float64() < m.failRate {
		log.Warn().Str("external_ref", s.ExternalRef).Msg("Simulated legacy outage")
		http.Error(w, "legacy system unavailable", http.StatusServiceUnavailable)
		return
	}

	m.mu.Lock()
	replay := m.seen[s.ExternalRef]
	m.seen[s.ExternalRef] = true
	m.mu.Unlock()

	log.Info().
		Str("employee_id", s.EmployeeID).
		Str("work_date", s.WorkDate).
		Float64("hours", s.HoursWorked).
		Bool("replay", replay).
		Msg("Received shift")
	w.WriteHeader(http.StatusOK)
}

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	failRate := flag.Float64("fail-rate", 0, "fraction of requests answered with 503")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	m := &mock{failRate: *failRate, seen: map[string]bool{}}
	http.HandleFunc("/", m.recordShift)
	log.Info().Str("addr", *addr).Float64("fail_rate", *failRate).Msg("Legacy API mock server starting")
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}
