package snapshot

import (
	"errors"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// Closed error set for every OS call in the data layer. Callers match with
// errors.Is instead of inspecting platform error types.
var (
	ErrNotFound     = errors.New("process no longer exists")
	ErrAccessDenied = errors.New("access denied")
)

// Class tags an error for exhaustive switching where errors.Is is clumsy.
type Class int

const (
	ClassNone Class = iota
	ClassNotFound
	ClassAccessDenied
	ClassOther
)

// Classify maps a raw OS/gopsutil error onto the taxonomy.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrNotFound),
		errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrProcessDone),
		errors.Is(err, syscall.ESRCH):
		return ClassNotFound
	case errors.Is(err, ErrAccessDenied),
		errors.Is(err, os.ErrPermission),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.EACCES):
		return ClassAccessDenied
	default:
		return ClassOther
	}
}

// Normalize collapses an error onto the sentinel values so callers can rely
// on errors.Is(err, ErrNotFound) regardless of where the error came from.
func Normalize(err error) error {
	switch Classify(err) {
	case ClassNone:
		return nil
	case ClassNotFound:
		return ErrNotFound
	case ClassAccessDenied:
		return ErrAccessDenied
	default:
		return err
	}
}
