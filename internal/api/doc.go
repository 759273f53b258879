// Package api exposes the daemon's operability HTTP surface: liveness,
// readiness, Prometheus metrics, and two small read-only JSON endpoints
// for device identity and known updates.
//
// Nothing here mutates daemon state. Downloading and applying packages
// remain the control loop's job (internal/service, internal/apply); this
// package only reports on them.
package api
