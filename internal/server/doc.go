// Package server provides the HTTP server for the pass service.
//
// the server is configured through environment variables
// (see internal/config/config.go for details)
//
// Routes:
//   - POST /pass and POST /v1/passes: pass issuance, restricted to ALLOWED_ORIGINS
//   - /health/live, /health/ready, /version, /drain, /undrain: infrastructure
//   - /downloads/*: signed pass downloads when STORAGE_BACKEND=file
//   - /metrics: prometheus metrics when METRICS_ENABLED=true
//
// middleware is in internal/server/middleware
package server
