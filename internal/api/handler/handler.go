package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/core"
	"punchclock.service/internal/core/model"
	"punchclock.service/internal/ports/repository"
	"punchclock.service/pkg/auth"
)

// PunchRecorder is the part of the punch service the handlers call.
type PunchRecorder interface {
	RecordPunch(ctx context.Context, p model.Punch, deviceID string) (core.PunchResult, error)
	GetTimeRecord(ctx context.Context, employeeID string, date time.Time) (*model.TimeRecord, error)
}

type PunchHandler struct {
	Service PunchRecorder
}

type PunchRequest struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employeeId"`
	Type       model.PunchType `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
}

type PunchResponse struct {
	ID        string            `json:"id"`
	Duplicate bool              `json:"duplicate"`
	Record    *model.TimeRecord `json:"record,omitempty"`
}

// RecordPunch answers 201 for a new punch and 200 for one already recorded.
func (h *PunchHandler) RecordPunch(w http.ResponseWriter, r *http.Request) {
	var req PunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p := model.Punch{ID: req.ID, EmployeeID: req.EmployeeID, Type: req.Type, Timestamp: req.Timestamp}
	res, err := h.Service.RecordPunch(r.Context(), p, auth.DeviceIDFromContext(r.Context()))
	if errors.Is(err, core.ErrInvalidPunch) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("punch_id", req.ID).Msg("Failed to record punch")
		http.Error(w, "Service error recording punch", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, PunchResponse{ID: req.ID, Duplicate: res.Duplicate, Record: res.Record})
}

// GetTimeRecord returns the daily record for {employeeId} on {date} (YYYY-MM-DD).
func (h *PunchHandler) GetTimeRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	date, err := time.Parse(time.DateOnly, vars["date"])
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	rec, err := h.Service.GetTimeRecord(r.Context(), vars["employeeId"], date)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Time record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("employee_id", vars["employeeId"]).Msg("Failed to load time record")
		http.Error(w, "Service error loading time record", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Service is operational."))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
