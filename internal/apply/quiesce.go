package apply

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wildernesslabs/meadowd/internal/health"
	"github.com/wildernesslabs/meadowd/internal/telemetry"
	"github.com/wildernesslabs/meadowd/internal/types"
)

const quiescencePollInterval = time.Second

// quiesce polls pid once per second until it exits, logging a warning
// every whole minute elapsed, and failing Timeout once
// update_apply_timeout_seconds has passed.
func (e *Engine) quiesce(logger zerolog.Logger, pid int) error {
	checker := health.NewPIDChecker(pid)
	timeout := e.settings.ApplyTimeout()
	deadline := time.Now().Add(timeout)
	ctx := context.Background()

	ticker := time.NewTicker(quiescencePollInterval)
	defer ticker.Stop()

	start := time.Now()
	lastMinuteLogged := 0
	defer func() { telemetry.QuiescenceWaitDuration.Observe(time.Since(start).Seconds()) }()

	for {
		result := checker.Check(ctx)
		if !result.Healthy {
			return nil
		}

		elapsed := time.Since(start)
		if minute := int(elapsed / time.Minute); minute > lastMinuteLogged {
			lastMinuteLogged = minute
			logger.Warn().Int("pid", pid).Dur("elapsed", elapsed).Msg("still waiting for process to quiesce")
		}

		if time.Now().After(deadline) {
			return types.NewError(types.ErrorKindTimeout, fmt.Errorf("pid %d did not exit within %s", pid, timeout))
		}

		<-ticker.C
	}
}
