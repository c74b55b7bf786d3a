// Package logger constructs the root hclog.Logger from LOG_LEVEL/LOG_FORMAT
// and hands out named sub-loggers to each component. There is no
// package-level logging singleton: callers receive a logger explicitly at
// construction, matching the "no implicit process-wide state" design note.
package logger

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// New builds the root logger for the process.
func New(level, format string) hclog.Logger {
	opts := &hclog.LoggerOptions{
		Name:            "clearmedia",
		Level:           hclog.LevelFromString(level),
		Output:          os.Stderr,
		JSONFormat:      strings.EqualFold(format, "json"),
		IncludeLocation: false,
	}
	if opts.Level == hclog.NoLevel {
		opts.Level = hclog.Info
	}
	return hclog.New(opts)
}
