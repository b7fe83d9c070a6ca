package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/oukeidos/subflow/internal/logger"
)

// maxExclusiveAttempts bounds the numbered suffixes tried by AtomicWriteExclusive.
const maxExclusiveAttempts = 10

// AtomicWrite writes data to a temp file in the same directory and renames
// it over path. Symlinked paths are refused.
func AtomicWrite(path string, data []byte, perms os.FileMode) error {
	if err := RejectSymlinkPath(path); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "subflow-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := tmp.Chmod(perms); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}
	return commit(tmp, path, data)
}

// AtomicWriteExclusive never replaces an existing file. When path is taken it
// tries path_1, path_2 and so on, and returns the path actually written.
func AtomicWriteExclusive(path string, data []byte, perms os.FileMode) (string, error) {
	if err := RejectSymlinkPath(path); err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)

	var lastErr error
	for i := 0; i < maxExclusiveAttempts; i++ {
		candidate := path
		if i > 0 {
			candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		}
		if _, err := os.Lstat(candidate); err == nil {
			lastErr = os.ErrExist
			continue
		}
		tmp, err := os.OpenFile(candidate+".tmp", os.O_WRONLY|os.O_CREATE|os.O_EXCL, perms)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				lastErr = err
				continue
			}
			return "", err
		}
		if err := commit(tmp, candidate, data); err != nil {
			return "", err
		}
		return candidate, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("no free file name for %s: %w", path, lastErr)
	}
	return "", fmt.Errorf("failed to create %s", path)
}

// commit writes data to tmp, syncs it and renames it to dest. tmp is removed
// on any failure.
func commit(tmp *os.File, dest string, data []byte) error {
	tmpPath := tmp.Name()
	fail := func(step string, err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to %s temp file: %w", step, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := renameAtomic(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file to destination: %w", err)
	}
	dir := filepath.Dir(dest)
	if err := syncDir(dir); err != nil {
		logger.Warn("Directory fsync failed (safe to ignore on some platforms)", "path", dir, "error", err)
	}
	return nil
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		logger.Debug("Directory fsync not supported on Windows; skipping", "path", dir)
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
