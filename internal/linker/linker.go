// Package linker creates the hard link from a discovered source file to its
// generated destination path (§4.6). It never overwrites, never retries
// internally, and never follows symlinks when checking destination
// existence — the only filesystem writer in the core.
package linker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/clearmedia/internal/apperr"
)

// Outcome is the result of a Link call, ordered by the precedence of the
// checks that produce it.
type Outcome string

const (
	OutcomeSuccess     Outcome = "SUCCESS"
	OutcomeConflict    Outcome = "CONFLICT"
	OutcomeCrossDevice Outcome = "CROSS_DEVICE"
	OutcomeNoSource    Outcome = "NO_SOURCE"
	OutcomeUnknown     Outcome = "UNKNOWN"
)

type Linker struct {
	logger hclog.Logger
}

func New(logger hclog.Logger) *Linker {
	return &Linker{logger: logger}
}

// Link attempts to create a hard link at destination pointing at source's
// data, following the check order in §4.6.
func (l *Linker) Link(source, destination string) (Outcome, error) {
	l.logger.Debug("link attempt", "source", source, "destination", destination)

	info, err := os.Lstat(source)
	if err != nil || !info.Mode().IsRegular() {
		l.logger.Warn("source missing or not a regular file", "source", source)
		return OutcomeNoSource, apperr.NewLinkMissingSource(fmt.Sprintf("source %q is missing or not a regular file", source))
	}

	if _, err := os.Lstat(destination); err == nil {
		l.logger.Warn("destination already exists", "destination", destination)
		return OutcomeConflict, apperr.NewLinkConflict(fmt.Sprintf("destination exists: %s", destination))
	}

	parent := filepath.Dir(destination)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return OutcomeUnknown, apperr.NewLinkUnknown(fmt.Sprintf("create destination directory %s", parent), err)
	}

	if err := os.Link(source, destination); err != nil {
		if isCrossDevice(err) {
			l.logger.Warn("cross-device link rejected", "source", source, "destination", destination)
			return OutcomeCrossDevice, apperr.NewLinkCrossDevice(
				fmt.Sprintf("source and destination are on different filesystems: %s -> %s", source, destination), err)
		}
		return OutcomeUnknown, apperr.NewLinkUnknown(fmt.Sprintf("link %s -> %s", source, destination), err)
	}

	l.logger.Info("link created", "source", source, "destination", destination)
	return OutcomeSuccess, nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errno, ok := linkErr.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	return errors.Is(err, syscall.EXDEV)
}
