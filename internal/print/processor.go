package print

import (
	"context"
	gosync "sync"
	"time"

	"github.com/emberpos/core/internal/config"
	"github.com/emberpos/core/internal/db"
	apperrors "github.com/emberpos/core/internal/errors"
	"github.com/emberpos/core/internal/logging"
	"github.com/emberpos/core/internal/models"
	"github.com/emberpos/core/internal/sync"
)

// Notifier receives operator-facing print events. Implementations must not
// block; a nil Notifier disables notifications.
type Notifier interface {
	PrintJobsChanged(stats map[models.PrintStatus]int)
	PrintJobFailed(job *models.PrintJob)
}

// Processor drains print_jobs on a tight interval. It owns its worker pool
// and retry schedule: a stalled sync endpoint must never delay a kitchen
// ticket.
type Processor struct {
	store    *db.Store
	printer  Printer
	notifier Notifier
	cfg      config.PrintConfig

	kick   chan struct{}
	stopCh chan struct{}
	wg     gosync.WaitGroup

	mu        gosync.Mutex
	isRunning bool
	draining  bool
}

// NewProcessor creates a print job processor. notifier may be nil.
func NewProcessor(store *db.Store, printer Printer, notifier Notifier, cfg config.PrintConfig) *Processor {
	return &Processor{
		store:    store,
		printer:  printer,
		notifier: notifier,
		cfg:      cfg,
		kick:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop, first releasing jobs a previous process
// left mid-print.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.mu.Unlock()

	released, err := p.store.ReleasePrintingJobs()
	if err != nil {
		logging.ErrorWithCode("Failed to release printing jobs", string(apperrors.ErrStorage), err)
	} else if released > 0 {
		logging.Info("Released orphaned printing jobs",
			map[string]interface{}{"count": released})
	}

	p.wg.Add(1)
	go p.loop(ctx)

	logging.Info("Print job processor started",
		map[string]interface{}{
			"poll_interval": p.cfg.PollInterval.String(),
			"workers":       p.cfg.Workers,
			"max_attempts":  p.cfg.MaxAttempts,
		})
}

// Stop shuts the loop down and waits for in-flight prints to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	logging.Info("Print job processor stopped")
}

// Kick requests an immediate drain, used right after a job is queued so a
// kitchen ticket does not wait out the poll interval.
func (p *Processor) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// loop re-arms the drain on a fixed interval and on kicks.
func (p *Processor) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Drain(ctx)
		case <-p.kick:
			p.Drain(ctx)
		}
	}
}

// Drain dispatches every currently pending job once. Failures stay on their
// rows; the loop never propagates an error across its own boundary.
func (p *Processor) Drain(ctx context.Context) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.draining = false
		p.mu.Unlock()
	}()

	jobs, err := p.store.DuePendingPrintJobs(time.Now(), p.cfg.BatchLimit)
	if err != nil {
		logging.ErrorWithCode("Failed to poll print jobs", string(apperrors.ErrStorage), err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	logging.Debug("Draining print jobs", map[string]interface{}{"pending": len(jobs)})

	work := make(chan *models.PrintJob)
	var workers gosync.WaitGroup
	workerCount := p.cfg.Workers
	if workerCount > len(jobs) {
		workerCount = len(jobs)
	}
	for i := 0; i < workerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for job := range work {
				p.processJob(ctx, job)
			}
		}()
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
		case <-p.stopCh:
		case work <- job:
			continue
		}
		break
	}
	close(work)
	workers.Wait()

	if p.notifier != nil {
		stats, err := p.store.PrintJobStats()
		if err != nil {
			logging.ErrorWithCode("Failed to read print job stats", string(apperrors.ErrStorage), err)
			return
		}
		p.notifier.PrintJobsChanged(stats)
	}
}

// processJob performs a single PENDING → PRINTING → printed/retry/failed
// transition.
func (p *Processor) processJob(ctx context.Context, job *models.PrintJob) {
	claimed, err := p.store.MarkPrintJobPrinting(job.ID)
	if err != nil {
		logging.ErrorWithCode("Failed to claim print job", string(apperrors.ErrStorage), err,
			map[string]interface{}{"job_id": job.ID})
		return
	}
	if !claimed {
		return
	}

	printCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	err = p.printer.Print(printCtx, job.PrinterName, []byte(job.Content))
	cancel()

	if err == nil {
		if err := p.store.MarkPrintJobPrinted(job.ID); err != nil {
			logging.ErrorWithCode("Failed to mark print job printed", string(apperrors.ErrStorage), err,
				map[string]interface{}{"job_id": job.ID})
			return
		}
		logging.Info("Print job printed",
			map[string]interface{}{
				"job_id":  job.ID,
				"type":    job.PrintType,
				"printer": job.PrinterName,
			})
		return
	}

	attempts := job.Attempts + 1
	terminal := attempts >= p.cfg.MaxAttempts
	next := time.Now().Add(sync.Backoff(attempts, p.cfg.BackoffBase, p.cfg.BackoffCap))
	if recErr := p.store.RecordPrintFailure(job.ID, err.Error(), next, terminal); recErr != nil {
		logging.ErrorWithCode("Failed to record print failure", string(apperrors.ErrStorage), recErr,
			map[string]interface{}{"job_id": job.ID})
		return
	}
	job.Attempts = attempts

	if terminal {
		// Surfaced immediately: an un-printed kitchen ticket needs a human.
		job.Status = models.PrintStatusFailed
		logging.ErrorWithCode("Print job failed", string(apperrors.ErrPrintTerminal), err,
			map[string]interface{}{
				"job_id":   job.ID,
				"type":     job.PrintType,
				"printer":  job.PrinterName,
				"attempts": attempts,
			})
		if p.notifier != nil {
			p.notifier.PrintJobFailed(job)
		}
	} else {
		logging.Warn("Print job failed, will retry",
			map[string]interface{}{
				"job_id":   job.ID,
				"printer":  job.PrinterName,
				"attempts": attempts,
				"error":    err.Error(),
			})
	}
}
