package scanner

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hashicorp/go-hclog"
)

// Registerer is the subset of internal/registry.Registry the scanner task
// needs; declared here so tests can supply a stub.
type Registerer interface {
	RegisterIfNew(path string, deviceID, inode, size uint64) (id uint64, wasNew bool, err error)
}

// Task runs §4.8: every interval it performs one full walk, registers each
// discovered file, and pushes the id of every newly-registered row onto the
// dispatcher channel. A full send on the dispatcher channel blocks the
// scanner deliberately — backpressure is explicit.
type Task struct {
	Options    WalkOptions
	Registry   Registerer
	Dispatcher chan<- uint64
	Logger     hclog.Logger
}

// RunOnce performs a single scan-and-register pass, as used both by the
// recurring schedule and by tests that want a deterministic single pass.
func (t *Task) RunOnce(ctx context.Context) (found, registered int, err error) {
	entries, err := Walk(ctx, t.Options, t.Logger)
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return len(entries), registered, ctx.Err()
		default:
		}

		id, wasNew, regErr := t.Registry.RegisterIfNew(entry.Path, entry.DeviceID, entry.Inode, uint64(entry.Size))
		if regErr != nil {
			t.Logger.Error("failed to register discovered file", "path", entry.Path, "error", regErr)
			continue
		}
		if !wasNew {
			continue
		}
		registered++

		select {
		case t.Dispatcher <- id:
		case <-ctx.Done():
			return len(entries), registered, ctx.Err()
		}
	}

	return len(entries), registered, nil
}

// Schedule registers t to run every interval under s, in singleton mode so
// an overrunning scan is never started again concurrently with itself —
// the next tick reschedules instead of stacking.
func Schedule(s gocron.Scheduler, t *Task, interval time.Duration) (gocron.Job, error) {
	return s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			found, registered, err := t.RunOnce(context.Background())
			if err != nil {
				t.Logger.Error("scan pass failed", "error", err)
				return
			}
			t.Logger.Info("scan pass complete", "files_found", found, "newly_registered", registered)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}
