package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/mediscansdk"
)

// HealthzHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Always 200 while the process is serving.
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	mediscansdk.HealthResponse	"status, message, uptime, version"
//	@Router			/health [get].
func HealthzHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, mediscansdk.HealthResponse{
			Status:  "ok",
			Message: "Server is running",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Pings the store. Answers 503 with status "degraded" when it is unreachable.
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	mediscansdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	mediscansdk.HealthResponse	"store unreachable"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &mediscansdk.HealthChecks{Database: "ok"}
		status, code := "ok", http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, mediscansdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
