// Package handlers provides general infrastructure HTTP handlers
// (health, readiness, version, drain and pass downloads).
//
// The pass issuance endpoint itself lives in internal/issuance.
package handlers
