package files

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// numberedSiblings is how many "_N" names are tried before a UUID suffix.
const numberedSiblings = 9

// SafePath picks where a new subtitle output or session log can go without
// replacing anything. A free path is returned as is. Otherwise the first free
// "<base>_N<ext>" is used, then "<base>_<uuid><ext>". The bool reports
// whether the name changed.
func SafePath(path string) (string, bool, error) {
	if path == "" {
		return "", false, errors.New("path is empty")
	}
	free, err := isFree(path)
	if err != nil {
		return "", false, err
	}
	if free {
		return path, false, nil
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; n <= numberedSiblings; n++ {
		candidate := base + "_" + strconv.Itoa(n) + ext
		free, err := isFree(candidate)
		if err != nil {
			return "", false, err
		}
		if free {
			return candidate, true, nil
		}
	}
	return base + "_" + uniqueSuffix() + ext, true, nil
}

func isFree(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	default:
		return false, err
	}
}

func uniqueSuffix() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
