package apply

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/wildernesslabs/meadowd/internal/types"
)

// swap moves e.settings.StagingPath into appDir, leaving the pre-swap
// appDir contents in e.settings.RollbackPath. It tries the atomic
// same-filesystem strategy first and falls back to a file-by-file copy
// only when that strategy fails with a cross-device error.
func (e *Engine) swap(appDir string) error {
	rollback := e.settings.RollbackPath
	staging := e.settings.StagingPath

	err := swapByRename(appDir, staging, rollback)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return types.NewError(types.ErrorKindSwapFailed, err)
	}

	if err := swapByCopy(appDir, staging, rollback); err != nil {
		return types.NewError(types.ErrorKindSwapFailed, fmt.Errorf("file-by-file fallback: %w", err))
	}
	return nil
}

// swapByRename is Strategy A (§4.4.4): two single-operation renames, same
// filesystem. A failed first rename aborts outright; a failed second
// rename triggers a restore attempt before surfacing the error.
func swapByRename(appDir, staging, rollback string) error {
	if err := os.RemoveAll(rollback); err != nil {
		return fmt.Errorf("clear rollback dir: %w", err)
	}

	if err := os.Rename(appDir, rollback); err != nil {
		return fmt.Errorf("rename app dir to rollback: %w", err)
	}

	if err := os.Rename(staging, appDir); err != nil {
		if restoreErr := os.Rename(rollback, appDir); restoreErr != nil {
			return fmt.Errorf("CriticalInconsistent: swap failed (%v) and restore also failed (%v); rollback preserved at %s", err, restoreErr, rollback)
		}
		return fmt.Errorf("rename staging to app dir: %w", err)
	}

	return nil
}

// swapByCopy is Strategy B (§4.4.4): not atomic, used only when the
// filesystems differ.
func swapByCopy(appDir, staging, rollback string) error {
	if err := os.RemoveAll(rollback); err != nil {
		return fmt.Errorf("clear rollback dir: %w", err)
	}
	if err := os.MkdirAll(rollback, 0755); err != nil {
		return fmt.Errorf("create rollback dir: %w", err)
	}
	if err := copyTree(appDir, rollback); err != nil {
		return fmt.Errorf("copy app dir into rollback: %w", err)
	}

	if err := emptyDir(appDir); err != nil {
		return fmt.Errorf("empty app dir: %w", err)
	}

	if err := copyTree(staging, appDir); err != nil {
		if restoreErr := copyTree(rollback, appDir); restoreErr != nil {
			return fmt.Errorf("copy staging into app dir failed (%v) and restore also failed (%v); rollback preserved at %s", err, restoreErr, rollback)
		}
		return fmt.Errorf("copy staging into app dir: %w (restored from rollback)", err)
	}

	return nil
}

func emptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(dir + string(os.PathSeparator) + e.Name()); err != nil {
			return err
		}
	}
	return nil
}

// isCrossDevice reports whether err is an EXDEV-equivalent rename failure.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}
