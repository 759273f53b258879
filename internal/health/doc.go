// Package health provides a small Checker interface and Result shape for
// polling external process state. The only implementation is PIDChecker,
// which internal/apply uses to wait for the previous app process to exit
// before an update is merged in.
package health
