package cleanup

import (
	"errors"
	"strings"
	"testing"
)

func TestRunAll_LIFOAndErrors(t *testing.T) {
	var order []int
	errBoom := errors.New("boom")
	Register(func() error { order = append(order, 1); return nil })
	Register(nil)
	Register(func() error { order = append(order, 2); return errBoom })
	Register(func() error { order = append(order, 3); return nil })

	err := RunAll()
	if !errors.Is(err, errBoom) || !strings.Contains(err.Error(), "cleanup failed") {
		t.Fatalf("unexpected error %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Fatalf("unexpected order %v", order)
	}
	if err := RunAll(); err != nil {
		t.Fatalf("second RunAll should be empty, got %v", err)
	}
}
