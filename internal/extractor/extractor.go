package extractor

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/wildernesslabs/meadowd/internal/types"
)

// Extract unpacks archivePath (a zip file, the .mpak extension is
// cosmetic) into destinationRoot. destinationRoot is assumed pre-cleaned
// by the caller; Extract never removes anything from it itself.
func Extract(archivePath, destinationRoot string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return types.NewError(types.ErrorKindInvalidPkg, fmt.Errorf("open %s: %w", archivePath, err))
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractMember(f, destinationRoot); err != nil {
			return err
		}
	}

	return nil
}

func extractMember(f *zip.File, destinationRoot string) error {
	if f.Mode()&os.ModeSymlink != 0 {
		return types.NewError(types.ErrorKindUnsafeMember, fmt.Errorf("%s: symlink members are rejected", f.Name))
	}
	if !isRegularOrDir(f.Mode()) {
		return types.NewError(types.ErrorKindUnsafeMember, fmt.Errorf("%s: device/special members are rejected", f.Name))
	}

	target, err := safeJoin(destinationRoot, f.Name)
	if err != nil {
		return err
	}

	if strings.HasSuffix(f.Name, "/") {
		return os.MkdirAll(target, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("create parent of %s: %w", f.Name, err))
	}

	src, err := f.Open()
	if err != nil {
		return types.NewError(types.ErrorKindInvalidPkg, fmt.Errorf("open member %s: %w", f.Name, err))
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode().Perm()|0600)
	if err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("create %s: %w", target, err))
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("write %s: %w", target, err))
	}

	return nil
}

func isRegularOrDir(mode fs.FileMode) bool {
	return mode.IsRegular() || mode.IsDir()
}

// safeJoin resolves name against root, rejecting absolute paths and any
// ".." path component outright (fail UnsafeMember) rather than clamping
// them to stay inside root — the zip contents come from a remote server,
// so a traversal attempt is treated as hostile input, not a path to fix up.
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", types.NewError(types.ErrorKindUnsafeMember, fmt.Errorf("%s: absolute member paths are rejected", name))
	}

	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", types.NewError(types.ErrorKindUnsafeMember, fmt.Errorf("%s: member path contains '..'", name))
		}
	}

	return filepath.Join(root, name), nil
}

// HasAppDirectory reports whether root contains a top-level app/
// directory, the requirement §4.4.1 of an apply's setup stage enforces
// before proceeding to merge-and-swap.
func HasAppDirectory(root string) bool {
	info, err := os.Stat(filepath.Join(root, "app"))
	return err == nil && info.IsDir()
}
