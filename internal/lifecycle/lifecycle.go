// Package lifecycle is the startup/shutdown orchestration of §4.10: given
// an already-open store and an already-wired scanner task and worker pool,
// it runs the scanner schedule and the workers under a single cancellable
// context, and when that context is cancelled it tears the pipeline down in
// order and closes the store. A failed scan pass is logged by the scanner
// and does not stop the pipeline.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/mantonx/clearmedia/internal/scanner"
	"github.com/mantonx/clearmedia/internal/worker"
)

// Controller wires a scanner Task, a worker Pool, and the gocron scheduler
// that drives the scanner's recurring pass into one supervised unit.
type Controller struct {
	db        *gorm.DB
	pool      *worker.Pool
	task      *scanner.Task
	interval  time.Duration
	logger    hclog.Logger
	scheduler gocron.Scheduler
}

func New(db *gorm.DB, pool *worker.Pool, task *scanner.Task, interval time.Duration, logger hclog.Logger) *Controller {
	return &Controller{db: db, pool: pool, task: task, interval: interval, logger: logger}
}

// Run starts the scanner schedule and the worker pool, and blocks until ctx
// is cancelled. On return, it has already stopped the scheduler, closed the
// dispatcher channel, and waited for every worker to finish its current id.
func (c *Controller) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	c.scheduler = scheduler

	if _, err := scanner.Schedule(scheduler, c.task, c.interval); err != nil {
		return fmt.Errorf("schedule scanner task: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	c.pool.Start(groupCtx)
	scheduler.Start()
	c.logger.Info("pipeline running", "scan_interval", c.interval)

	group.Go(func() error {
		<-groupCtx.Done()
		return groupCtx.Err()
	})

	<-ctx.Done()
	c.logger.Info("shutdown signal received, draining pipeline")

	if err := c.scheduler.Shutdown(); err != nil {
		c.logger.Warn("error shutting down scheduler", "error", err)
	}

	c.pool.Close()
	c.pool.Wait()

	_ = group.Wait()

	if sqlDB, err := c.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			c.logger.Warn("error closing store", "error", err)
		}
	}

	c.logger.Info("pipeline stopped cleanly")
	return nil
}
