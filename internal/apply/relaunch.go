package apply

import (
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"
)

// relaunch starts the updated application: systemctl start when the app is
// service-managed, otherwise a direct, detached spawn.
func (e *Engine) relaunch(logger zerolog.Logger, t *task) {
	if t.appIsServiceManaged(e.settings) {
		name := e.settings.AppServiceName
		if err := runSystemctl("start", name); err != nil {
			logger.Error().Str("service", name).Err(err).Msg("systemctl start failed")
			return
		}
		logger.Info().Str("service", name).Msg("systemctl start succeeded")
		return
	}

	if err := spawnDetached(t.appExePath, t.optionalCommand, t.appDir); err != nil {
		logger.Error().Err(err).Msg("relaunch failed")
		return
	}
	logger.Info().Str("exe", t.appExePath).Msg("relaunched application")
}

// spawnDetached starts a new process whose executable is either exePath
// alone or command with exePath as its first argument. The child gets its
// own process group and no inherited stdio, so the daemon's own lifecycle
// never takes the application down with it.
func spawnDetached(exePath, command, workDir string) error {
	var cmd *exec.Cmd
	if command != "" {
		cmd = exec.Command(command, exePath)
	} else {
		cmd = exec.Command(exePath)
	}

	cmd.Dir = workDir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return err
	}

	// The child is detached and in its own process group; releasing it
	// here avoids leaving a zombie once it exits.
	return cmd.Process.Release()
}
