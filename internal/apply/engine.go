package apply

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/wildernesslabs/meadowd/internal/extractor"
	"github.com/wildernesslabs/meadowd/internal/logging"
	"github.com/wildernesslabs/meadowd/internal/store"
	"github.com/wildernesslabs/meadowd/internal/telemetry"
	"github.com/wildernesslabs/meadowd/internal/types"
)

// Engine runs applies against one store, using the scratch directories
// named in settings.
type Engine struct {
	store    *store.Store
	settings *types.Settings
}

// New returns an Engine backed by st, using settings for its scratch
// directories, timeouts, and service-management options.
func New(st *store.Store, settings *types.Settings) *Engine {
	return &Engine{store: st, settings: settings}
}

// task carries the parameters common to ApplyTracked and ApplyExtracted
// through the pipeline.
type task struct {
	tracked         bool
	mpakID          string // only set when tracked
	appExePath      string
	appDir          string
	pid             int
	optionalCommand string
}

// ApplyTracked applies an update already present in the store. It returns
// once the package is validated and the asynchronous worker has been
// spawned — success here means "accepted", not "applied"; watch the
// store's ApplyState for the outcome.
func (e *Engine) ApplyTracked(mpakID, appExePath string, pid int, optionalCommand string) error {
	record, ok := e.store.Get(mpakID)
	if !ok {
		return types.NewError(types.ErrorKindNotKnown, fmt.Errorf("update %s is not in the store", mpakID))
	}

	if err := e.resetExtractDir(); err != nil {
		return err
	}

	mpakPath := e.store.MpakPath(mpakID)
	if err := extractor.Extract(mpakPath, e.settings.TempExtractPath); err != nil {
		e.cleanupScratch()
		return err
	}
	if !extractor.HasAppDirectory(e.settings.TempExtractPath) {
		e.cleanupScratch()
		return types.NewError(types.ErrorKindInvalidPkg, fmt.Errorf("package %s has no app/ directory", mpakID))
	}

	t := &task{
		tracked:         true,
		mpakID:          mpakID,
		appExePath:      appExePath,
		appDir:          filepath.Dir(appExePath),
		pid:             pid,
		optionalCommand: optionalCommand,
	}

	_ = record // descriptor validity already confirmed by Get
	go e.run(t)
	return nil
}

// ApplyExtracted applies a package the caller has already unpacked into
// <temp_extract_path>/app/. No descriptor state is touched.
func (e *Engine) ApplyExtracted(appDir, exePath string, pid int, optionalCommand string) error {
	if !extractor.HasAppDirectory(e.settings.TempExtractPath) {
		return types.NewError(types.ErrorKindInvalidPkg, fmt.Errorf("%s has no app/ directory", e.settings.TempExtractPath))
	}

	t := &task{
		appExePath:      exePath,
		appDir:          appDir,
		pid:             pid,
		optionalCommand: optionalCommand,
	}

	go e.run(t)
	return nil
}

func (e *Engine) resetExtractDir() error {
	if err := os.RemoveAll(e.settings.TempExtractPath); err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("purge extract dir: %w", err))
	}
	if err := os.MkdirAll(e.settings.TempExtractPath, 0755); err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("recreate extract dir: %w", err))
	}
	return nil
}

func (e *Engine) cleanupScratch() {
	os.RemoveAll(e.settings.TempExtractPath)
	os.RemoveAll(e.settings.StagingPath)
}

// run carries one apply through quiesce, merge, swap and relaunch. It
// always runs on its own goroutine, spawned by ApplyTracked/ApplyExtracted.
func (e *Engine) run(t *task) {
	logger := logging.WithComponent("apply")
	if t.mpakID != "" {
		logger = logging.WithMpakID(t.mpakID)
	}

	start := time.Now()
	outcome := "success"
	defer func() {
		telemetry.ApplyTotal.WithLabelValues(outcome).Inc()
		telemetry.ApplyDuration.Observe(time.Since(start).Seconds())
	}()

	if t.appIsServiceManaged(e.settings) {
		e.stopService(logger)
	}

	if err := e.quiesce(logger, t.pid); err != nil {
		logger.Warn().Err(err).Msg("apply aborted: process did not quiesce in time")
		e.cleanupScratch()
		e.markFailed(t, err)
		outcome = "timeout"
		return
	}

	preserved, err := e.mergeIntoStaging(t)
	if err != nil {
		logger.Error().Err(err).Msg("merge into staging failed")
		e.cleanupScratch()
		e.markFailed(t, err)
		outcome = "failure"
		return
	}
	logger.Info().Int("preserved_files", preserved).Msg("merged package into staging")

	if err := e.swap(t.appDir); err != nil {
		logger.Error().Err(err).Msg("directory swap failed")
		e.cleanupScratch()
		e.markFailed(t, err)
		outcome = "failure"
		return
	}

	e.cleanupScratch()

	if t.tracked {
		e.markApplied(t.mpakID)
	}

	e.relaunch(logger, t)
}

func (t *task) appIsServiceManaged(settings *types.Settings) bool {
	return settings.AppIsSystemdService && settings.AppServiceName != ""
}

// stopService invokes systemctl stop before the quiescence poll, per
// §4.4.2: the poll is the authority on whether the process has actually
// exited, so a failed stop is logged but does not abort the apply.
func (e *Engine) stopService(logger zerolog.Logger) {
	name := e.settings.AppServiceName
	if err := runSystemctl("stop", name); err != nil {
		logger.Warn().Str("service", name).Err(err).Msg("systemctl stop reported failure, proceeding to quiescence poll")
		return
	}
	logger.Info().Str("service", name).Msg("systemctl stop succeeded")
}

func (e *Engine) markApplied(mpakID string) {
	if _, err := e.store.Update(mpakID, func(r *types.StoreRecord) {
		r.Descriptor.Applied = types.BoolPtr(true)
		r.ApplyState = types.ApplyStateApplied
	}); err != nil {
		logging.WithMpakID(mpakID).Error().Err(err).Msg("failed to persist applied state")
	}
}

func (e *Engine) markFailed(t *task, cause error) {
	if !t.tracked {
		return
	}
	if _, err := e.store.Update(t.mpakID, func(r *types.StoreRecord) {
		r.ApplyState = types.ApplyStateFailed
		r.LastError = cause.Error()
	}); err != nil {
		logging.WithMpakID(t.mpakID).Error().Err(err).Msg("failed to persist failed state")
	}
}

func runSystemctl(args ...string) error {
	return exec.Command("systemctl", args...).Run()
}
