package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/emberpos/core/internal/config"
	"github.com/emberpos/core/internal/db"
	apperrors "github.com/emberpos/core/internal/errors"
	"github.com/emberpos/core/internal/logging"
	"github.com/emberpos/core/internal/models"
)

// Notifier receives operator-facing queue events. Implementations must not
// block; a nil Notifier disables notifications.
type Notifier interface {
	SyncQueueChanged(stats map[models.SyncStatus]int)
	SyncEntryFailed(entry *models.SyncQueueEntry, terminal bool)
}

// Processor drains sync_queue in the background. Distinct records are pushed
// concurrently up to the worker bound; entries for the same record are
// serialized in creation order.
type Processor struct {
	store    *db.Store
	remote   RemoteClient
	notifier Notifier
	cfg      config.SyncConfig
	timeout  time.Duration

	kick   chan struct{}
	stopCh chan struct{}
	wg     gosync.WaitGroup

	mu        gosync.Mutex
	isRunning bool
	draining  bool
}

// NewProcessor creates a sync queue processor. notifier may be nil.
func NewProcessor(store *db.Store, remote RemoteClient, notifier Notifier, cfg config.SyncConfig, timeout time.Duration) *Processor {
	return &Processor{
		store:    store,
		remote:   remote,
		notifier: notifier,
		cfg:      cfg,
		timeout:  timeout,
		kick:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop. Entries orphaned IN_FLIGHT by a previous
// process are released first: at-least-once delivery makes re-sending safe.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.mu.Unlock()

	released, err := p.store.ReleaseInFlightSyncEntries()
	if err != nil {
		logging.ErrorWithCode("Failed to release in-flight sync entries", string(apperrors.ErrStorage), err)
	} else if released > 0 {
		logging.Info("Released orphaned in-flight sync entries",
			map[string]interface{}{"count": released})
	}

	p.wg.Add(1)
	go p.loop(ctx)

	logging.Info("Sync queue processor started",
		map[string]interface{}{
			"poll_interval": p.cfg.PollInterval.String(),
			"workers":       p.cfg.Workers,
			"max_attempts":  p.cfg.MaxAttempts,
		})
}

// Stop shuts the loop down and waits for in-flight work to finish.
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

	logging.Info("Sync queue processor stopped")
}

// Kick requests an immediate drain, used when connectivity is restored.
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

// Drain processes every currently-due entry once. Failures stay on their
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

	entries, err := p.store.DuePendingSyncEntries(time.Now(), p.cfg.BatchLimit)
	if err != nil {
		logging.ErrorWithCode("Failed to poll sync queue", string(apperrors.ErrStorage), err)
		return
	}
	if len(entries) == 0 {
		return
	}

	logging.Debug("Draining sync queue", map[string]interface{}{"due": len(entries)})

	// Group by record, preserving global FIFO. A group is the unit of
	// worker dispatch, so same-record entries never run concurrently and
	// never reorder.
	groups := groupByRecord(entries)

	jobs := make(chan []*models.SyncQueueEntry)
	var workers gosync.WaitGroup
	workerCount := p.cfg.Workers
	if workerCount > len(groups) {
		workerCount = len(groups)
	}
	for i := 0; i < workerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for group := range jobs {
				p.processGroup(ctx, group)
			}
		}()
	}

	for _, group := range groups {
		select {
		case <-ctx.Done():
		case <-p.stopCh:
		case jobs <- group:
			continue
		}
		break
	}
	close(jobs)
	workers.Wait()

	p.notifyStats()
}

// groupByRecord partitions entries by (table, record) keeping both the
// in-group order and the first-seen order of groups.
func groupByRecord(entries []*models.SyncQueueEntry) [][]*models.SyncQueueEntry {
	index := make(map[string]int)
	var groups [][]*models.SyncQueueEntry
	for _, e := range entries {
		key := e.TableName + "|" + string(e.RecordID)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}

// processGroup pushes one record's entries in creation order, stopping at
// the first failure so later mutations cannot overtake a failed earlier one.
func (p *Processor) processGroup(ctx context.Context, group []*models.SyncQueueEntry) {
	for _, entry := range group {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}
		if err := p.processEntry(ctx, entry); err != nil {
			return
		}
	}
}

// processEntry performs a single PENDING → IN_FLIGHT → ack/retry/terminal
// transition.
func (p *Processor) processEntry(ctx context.Context, entry *models.SyncQueueEntry) error {
	claimed, err := p.store.MarkSyncEntryInFlight(entry.ID, time.Now())
	if err != nil {
		logging.ErrorWithCode("Failed to claim sync entry", string(apperrors.ErrStorage), err,
			map[string]interface{}{"entry_id": entry.ID})
		return err
	}
	if !claimed {
		// Another drain pass owns this entry.
		return nil
	}

	pushCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err = p.remote.Push(pushCtx, entry)
	cancel()

	if err == nil {
		return p.acknowledge(entry)
	}
	return p.fail(entry, err)
}

// acknowledge deletes the entry and flips the order's synced flag when the
// entry carried an order mutation.
func (p *Processor) acknowledge(entry *models.SyncQueueEntry) error {
	if err := p.store.AckSyncEntry(entry.ID); err != nil {
		logging.ErrorWithCode("Failed to delete acknowledged sync entry", string(apperrors.ErrStorage), err,
			map[string]interface{}{"entry_id": entry.ID})
		return err
	}

	if entry.TableName == (models.Order{}).TableName() && entry.OperationType != models.OperationDelete {
		if err := p.store.MarkOrderSynced(entry.RecordID); err != nil {
			logging.ErrorWithCode("Failed to mark order synced", string(apperrors.ErrStorage), err,
				map[string]interface{}{"order_id": entry.RecordID})
		}
	}

	logging.Debug("Sync entry acknowledged",
		map[string]interface{}{
			"entry_id": entry.ID,
			"table":    entry.TableName,
			"record":   entry.RecordID,
			"attempts": entry.Attempts,
		})
	return nil
}

// fail records a retry gate or a terminal failure on the entry's row.
func (p *Processor) fail(entry *models.SyncQueueEntry, pushErr error) error {
	attempts := entry.Attempts + 1
	terminal := apperrors.Is(pushErr, apperrors.ErrSyncTerminal) || attempts >= p.cfg.MaxAttempts

	next := time.Now().Add(Backoff(attempts, p.cfg.BackoffBase, p.cfg.BackoffCap))
	if err := p.store.RecordSyncFailure(entry.ID, pushErr.Error(), next, terminal); err != nil {
		logging.ErrorWithCode("Failed to record sync failure", string(apperrors.ErrStorage), err,
			map[string]interface{}{"entry_id": entry.ID})
		return err
	}
	entry.Attempts = attempts

	if terminal {
		if entry.TableName == (models.Order{}).TableName() {
			if err := p.store.SetOrderSyncError(entry.RecordID, pushErr.Error()); err != nil {
				logging.ErrorWithCode("Failed to set order sync error", string(apperrors.ErrStorage), err,
					map[string]interface{}{"order_id": entry.RecordID})
			}
		}
		logging.ErrorWithCode("Sync entry failed terminally", string(apperrors.ErrSyncTerminal), pushErr,
			map[string]interface{}{
				"entry_id": entry.ID,
				"table":    entry.TableName,
				"record":   entry.RecordID,
				"attempts": attempts,
			})
	} else {
		logging.Warn("Sync entry failed, will retry",
			map[string]interface{}{
				"entry_id":     entry.ID,
				"table":        entry.TableName,
				"record":       entry.RecordID,
				"attempts":     attempts,
				"next_attempt": next.Format(time.RFC3339),
				"error":        pushErr.Error(),
			})
	}

	if p.notifier != nil {
		p.notifier.SyncEntryFailed(entry, terminal)
	}
	return pushErr
}

// notifyStats publishes queue depth after a drain pass.
func (p *Processor) notifyStats() {
	if p.notifier == nil {
		return
	}
	stats, err := p.store.SyncQueueStats()
	if err != nil {
		logging.ErrorWithCode("Failed to read sync queue stats", string(apperrors.ErrStorage), err)
		return
	}
	p.notifier.SyncQueueChanged(stats)
}
