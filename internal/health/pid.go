package health

import (
	"context"
	"fmt"
	"syscall"
	"time"
)

const CheckTypePID CheckType = "pid"

// PIDChecker reports whether a process is still alive, by sending it
// signal 0 — the standard Unix idiom for a liveness probe that doesn't
// actually affect the target process. Used by internal/apply to poll for
// quiescence before an apply proceeds.
type PIDChecker struct {
	PID int
}

// NewPIDChecker creates a new PID liveness checker.
func NewPIDChecker(pid int) *PIDChecker {
	return &PIDChecker{PID: pid}
}

// Check reports Healthy=true while the process is still running.
func (p *PIDChecker) Check(ctx context.Context) Result {
	start := time.Now()

	err := syscall.Kill(p.PID, syscall.Signal(0))
	switch {
	case err == nil:
		return Result{
			Healthy:   true,
			Message:   fmt.Sprintf("pid %d is running", p.PID),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	case err == syscall.ESRCH:
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("pid %d has exited", p.PID),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	default:
		// EPERM means the process exists but we can't signal it; treat that
		// as still running rather than silently misreporting quiescence.
		return Result{
			Healthy:   true,
			Message:   fmt.Sprintf("pid %d: %v (assuming alive)", p.PID, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
}

// Type returns the health check type
func (p *PIDChecker) Type() CheckType {
	return CheckTypePID
}
