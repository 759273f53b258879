package apply

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wildernesslabs/meadowd/internal/types"
)

// mergeIntoStaging builds the post-apply contents in e.settings.StagingPath:
// the package's app/ subtree, plus every file from t.appDir whose relative
// path isn't covered by the package. It returns the count of preserved
// files for logging.
func (e *Engine) mergeIntoStaging(t *task) (int, error) {
	staging := e.settings.StagingPath
	packageApp := filepath.Join(e.settings.TempExtractPath, "app")

	if err := os.RemoveAll(staging); err != nil {
		return 0, types.NewError(types.ErrorKindIOFailure, fmt.Errorf("purge staging: %w", err))
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return 0, types.NewError(types.ErrorKindIOFailure, fmt.Errorf("recreate staging: %w", err))
	}

	if err := copyTree(packageApp, staging); err != nil {
		return 0, types.NewError(types.ErrorKindIOFailure, fmt.Errorf("copy package into staging: %w", err))
	}

	present, err := relativeFileSet(packageApp)
	if err != nil {
		return 0, types.NewError(types.ErrorKindIOFailure, fmt.Errorf("walk package app/: %w", err))
	}

	preserved := 0
	if _, err := os.Stat(t.appDir); err == nil {
		preserved, err = preserveUncovered(t.appDir, staging, present)
		if err != nil {
			return 0, types.NewError(types.ErrorKindIOFailure, fmt.Errorf("preserve existing files: %w", err))
		}
	}

	return preserved, nil
}

// relativeFileSet returns the set of paths, relative to root, of every
// regular file under root.
func relativeFileSet(root string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		set[rel] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// preserveUncovered copies every regular file under appDir whose relative
// path is not in present into staging at the same relative path.
func preserveUncovered(appDir, staging string, present map[string]struct{}) (int, error) {
	count := 0
	err := filepath.Walk(appDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(appDir, path)
		if err != nil {
			return err
		}
		if _, covered := present[rel]; covered {
			return nil
		}
		dest := filepath.Join(staging, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := copyFile(path, dest, info.Mode()); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// copyTree recursively copies src's contents into dst. src not existing is
// not an error — an empty package app/ is unusual but not invalid.
func copyTree(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(dest, info.Mode())
		}
		return copyFile(path, dest, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm()|0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
