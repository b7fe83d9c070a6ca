package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrSymlinkPath is returned when a translated output, session log, lock
// file or log file would be written through a symlink or reparse point.
var ErrSymlinkPath = errors.New("refusing to write through a symlink")

// RejectSymlinkPath walks path from the root down and fails on the first
// symlink, or reparse point on Windows. The walk ends at the first component
// that does not exist yet, so fresh outputs in fresh directories pass.
func RejectSymlinkPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	for _, component := range ancestry(abs) {
		info, err := os.Lstat(component)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to access path: %w", err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s (symlink at %s)", ErrSymlinkPath, path, component)
		}
		reparse, err := isReparsePoint(component)
		if err != nil {
			return fmt.Errorf("failed to check reparse point: %w", err)
		}
		if reparse {
			return fmt.Errorf("%w: %s (reparse point at %s)", ErrSymlinkPath, path, component)
		}
	}
	return nil
}

// ancestry lists abs and its ancestors below the volume root, outermost first.
func ancestry(abs string) []string {
	var out []string
	for p := abs; ; {
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		out = append(out, p)
		p = parent
	}
	slices.Reverse(out)
	return out
}
