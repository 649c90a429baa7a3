package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"punchclock.service/internal/api/handler"
	"punchclock.service/pkg/auth"
)

// NewRouter sets up the gorilla/mux router and defines all API routes.
// Everything except the health check requires a device token.
func NewRouter(service handler.PunchRecorder, jwtSecret string) *mux.Router {
	punchHandler := handler.PunchHandler{
		Service: service,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", handler.Health).Methods(http.MethodGet)

	secured := api.NewRoute().Subrouter()
	secured.Use(auth.Middleware(jwtSecret))
	secured.HandleFunc("/punches", punchHandler.RecordPunch).Methods(http.MethodPost)
	secured.HandleFunc("/employees/{employeeId}/time-records/{date}", punchHandler.GetTimeRecord).Methods(http.MethodGet)

	return r
}
