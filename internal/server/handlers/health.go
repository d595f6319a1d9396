package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"go.uber.org/atomic"

	"github.com/studentid/walletpass/internal/logger"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadinessResponse is the body of the readiness endpoint.
type ReadinessResponse struct {
	Status string `json:"status" example:"ready"`
	Reason string `json:"reason,omitempty" example:"document store unavailable"`
}

// HandleHealth godoc
//
//	@Summary		Health (liveness) Check
//	@Description	Check if the HTTP service is alive and responding.
//	@Tags			Common
//	@Produce		plain
//
//	@Success		200	{string}	string	"OK"
//
//	@Router			/health/live [get]
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleReadiness godoc
//
//	@Summary		Readiness Check
//	@Description	Checks if the service is ready to accept traffic: not draining, document store reachable
//	@Description	and object storage available.
//	@Tags			Common
//	@Produce		json
//	@Success		200	{object}	ReadinessResponse	"status ready"
//	@Failure		503	{object}	ReadinessResponse	"status not ready"
//	@Router			/health/ready [get]
func HandleReadiness(ready *atomic.Bool, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			writeReadiness(w, http.StatusServiceUnavailable, ReadinessResponse{Status: "not ready", Reason: "draining"})
			return
		}

		for _, c := range checks {
			if err := c.Check(r.Context()); err != nil {
				logger.ContextRequestLogger(r.Context()).Warn("readiness check failed",
					slog.String("check", c.Name),
					slog.String("error", err.Error()),
				)
				writeReadiness(w, http.StatusServiceUnavailable, ReadinessResponse{Status: "not ready", Reason: c.Name + " unavailable"})
				return
			}
		}

		writeReadiness(w, http.StatusOK, ReadinessResponse{Status: "ready"})
	}
}

func writeReadiness(w http.ResponseWriter, status int, body ReadinessResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// DrainResponse is the body of the drain and undrain endpoints.
type DrainResponse struct {
	Status string `json:"status" example:"draining"`
}

// HandleDrain godoc
//
//	@Summary		Drain the instance
//	@Description	Marks the instance as not ready so load balancers stop routing to it. In-flight and new
//	@Description	requests are still served.
//	@Tags			Common
//	@Produce		json
//	@Success		200	{object}	DrainResponse	"draining or already draining"
//	@Router			/drain [get]
func HandleDrain(ready *atomic.Bool, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "draining"
		if !ready.Swap(false) {
			status = "already draining"
		} else {
			log.Info("server marked as not ready")
		}
		writeDrain(w, status)
	}
}

// HandleUndrain godoc
//
//	@Summary		Undrain the instance
//	@Description	Marks a drained instance as ready again.
//	@Tags			Common
//	@Produce		json
//	@Success		200	{object}	DrainResponse	"ready or already ready"
//	@Router			/undrain [get]
func HandleUndrain(ready *atomic.Bool, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		if ready.Swap(true) {
			status = "already ready"
		} else {
			log.Info("server marked as ready")
		}
		writeDrain(w, status)
	}
}

func writeDrain(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(DrainResponse{Status: status})
}
