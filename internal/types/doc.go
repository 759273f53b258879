// Package types holds the domain model shared across meadowd's packages:
// the update descriptor announced over the broker, the daemon's settings
// record, and the error-kind vocabulary used to classify failures.
package types
