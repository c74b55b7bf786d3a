// Package worker is the dispatcher channel and fixed-size worker pool that
// run the per-id pipeline (§4.9): claim, analyse, match, generate a path,
// link, finalise. A worker that panics mid-step recovers, records FAILED,
// and keeps taking ids — the pool itself never dies.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/clearmedia/internal/analyser"
	"github.com/mantonx/clearmedia/internal/apperr"
	"github.com/mantonx/clearmedia/internal/catalogue"
	"github.com/mantonx/clearmedia/internal/database"
	"github.com/mantonx/clearmedia/internal/ids"
	"github.com/mantonx/clearmedia/internal/linker"
	"github.com/mantonx/clearmedia/internal/pathgen"
	"github.com/mantonx/clearmedia/internal/registry"
	"github.com/mantonx/clearmedia/internal/status"
)

// Linker is the seam the pool calls through to create the final hardlink.
// *linker.Linker satisfies it for production use; tests can inject a fake to
// exercise outcomes (CROSS_DEVICE in particular) that aren't reproducible on
// a single-filesystem test temp dir.
type Linker interface {
	Link(source, destination string) (linker.Outcome, error)
}

// Pool owns the dispatcher channel and the fixed set of long-running
// workers draining it.
type Pool struct {
	dispatcher chan uint64
	count      int
	wg         sync.WaitGroup

	registry  *registry.Registry
	status    *status.Manager
	analyser  *analyser.Client
	catalogue *catalogue.Client
	linker    Linker
	targetDir string
	logger    hclog.Logger
}

// New constructs a pool and its dispatcher channel, buffered to at least
// count so the scanner's producer side rarely blocks under normal load.
func New(count int, targetDir string, reg *registry.Registry, st *status.Manager, an *analyser.Client, cat *catalogue.Client, lk Linker, logger hclog.Logger) *Pool {
	bufferSize := count
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Pool{
		dispatcher: make(chan uint64, bufferSize),
		count:      count,
		registry:   reg,
		status:     st,
		analyser:   an,
		catalogue:  cat,
		linker:     lk,
		targetDir:  targetDir,
		logger:     logger,
	}
}

// Dispatcher exposes the send side of the pool's channel to the scanner and
// the admin surface's retry path.
func (p *Pool) Dispatcher() chan<- uint64 {
	return p.dispatcher
}

// Start launches count long-running workers. They run until ctx is
// cancelled or the dispatcher channel is closed and drained.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Wait blocks until every worker has exited, which happens once the
// dispatcher channel is closed and drained or ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close closes the dispatcher channel; call only after the producer (the
// scanner) has stopped sending.
func (p *Pool) Close() {
	close(p.dispatcher)
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With("worker", id)
	log.Debug("worker started")

	for {
		select {
		case mediaID, ok := <-p.dispatcher:
			if !ok {
				log.Debug("dispatcher closed, worker exiting")
				return
			}
			p.processWithRecovery(ctx, log, mediaID)
		case <-ctx.Done():
			log.Debug("context cancelled, worker exiting")
			return
		}
	}
}

func (p *Pool) processWithRecovery(ctx context.Context, log hclog.Logger, id uint64) {
	log = log.With("trace_id", ids.New())
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked while processing id, marking failed", "id", id, "panic", r)
			if err := p.status.Fail(id, "internal error during processing"); err != nil {
				log.Error("failed to record panic as a failure", "id", id, "error", err)
			}
		}
	}()
	p.process(ctx, log, id)
}

// process implements the six-step pipeline in §4.9. Each attempt carries its
// own trace id (set by the caller) so every external call and status
// transition for this claim can be correlated in the logs even across a
// later retry, which gets a fresh trace id of its own.
func (p *Pool) process(ctx context.Context, log hclog.Logger, id uint64) {
	row, err := p.status.Claim(id)
	if err != nil {
		log.Debug("claim did not win, discarding", "id", id, "error", err)
		return
	}
	log = log.With("id", id, "file", row.OriginalFilename)

	select {
	case <-ctx.Done():
		p.failWithCancellation(log, id)
		return
	default:
	}

	guess, err := p.analyser.Analyse(ctx, row.OriginalFilename)
	if err != nil {
		p.fail(log, id, "analyse", err)
		return
	}
	p.saveProgress(log, id, "llm_guess", guess)

	match, err := p.catalogue.Search(ctx, guess)
	if err != nil {
		if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindNoMatch {
			log.Info("no catalogue match", "title", guess.Title)
			if noMatchErr := p.status.NoMatch(id, appErr.Message); noMatchErr != nil {
				log.Error("failed to record no-match", "error", noMatchErr)
			}
			return
		}
		p.fail(log, id, "match", err)
		return
	}
	processedData := p.saveProgress(log, id, "processed_data", match)

	ext := filepath.Ext(row.OriginalFilename)
	destination, err := pathgen.Generate(p.targetDir, pathgen.Match{
		Type:    match.Type,
		Title:   match.Title,
		Year:    match.Year,
		TmdbID:  match.TmdbID,
		Season:  match.Season,
		Episode: match.Episode,
	}, ext)
	if err != nil {
		p.fail(log, id, "path", err)
		return
	}

	outcome, linkErr := p.linker.Link(row.OriginalFilepath, destination)
	p.finalise(log, id, match, destination, processedData, outcome, linkErr)
}

// saveProgress marshals value to JSON and persists it under field on row id
// without changing status, so a row that later fails in a subsequent step
// still carries whatever upstream progress this attempt made. Returns the
// marshalled JSON (or "" on marshal failure) for the caller to reuse.
func (p *Pool) saveProgress(log hclog.Logger, id uint64, field string, value interface{}) string {
	data, err := json.Marshal(value)
	if err != nil {
		log.Warn("failed to marshal progress field", "field", field, "error", err)
		return ""
	}
	if err := p.status.SaveProgress(id, map[string]interface{}{field: string(data)}); err != nil {
		log.Warn("failed to save progress field", "field", field, "error", err)
	}
	return string(data)
}

func (p *Pool) finalise(log hclog.Logger, id uint64, match catalogue.Match, destination, processedData string, outcome linker.Outcome, linkErr error) {
	mediaType := database.MediaTypeMovie
	if match.Type == "tv" {
		mediaType = database.MediaTypeTV
	}

	switch outcome {
	case linker.OutcomeSuccess:
		if err := p.status.Complete(id, status.CompleteResult{
			NewFilepath:   destination,
			TmdbID:        match.TmdbID,
			MediaType:     mediaType,
			ProcessedData: processedData,
		}); err != nil {
			log.Error("failed to record completion", "error", err)
		}
	case linker.OutcomeConflict:
		if err := p.status.Conflict(id, destination, linkErr.Error()); err != nil {
			log.Error("failed to record conflict", "error", err)
		}
	default:
		p.fail(log, id, "link", linkErr)
	}
}

func (p *Pool) fail(log hclog.Logger, id uint64, step string, err error) {
	log.Warn("pipeline step failed", "step", step, "error", err)
	if failErr := p.status.Fail(id, fmt.Sprintf("%s: %v", step, err)); failErr != nil {
		log.Error("failed to record failure", "error", failErr)
	}
}

func (p *Pool) failWithCancellation(log hclog.Logger, id uint64) {
	log.Warn("cancelled mid-pipeline", "id", id)
	if err := p.status.Fail(id, apperr.NewCancelled("lifecycle cancellation").Error()); err != nil {
		log.Error("failed to record cancellation", "error", err)
	}
}
