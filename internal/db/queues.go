package db

import (
	"database/sql"
	"time"

	apperrors "github.com/emberpos/core/internal/errors"
	"github.com/emberpos/core/internal/models"
	"github.com/emberpos/core/internal/uuid"
)

// =====================================================
// Sync Queue Operations
// =====================================================

// scanSyncEntries reads sync_queue rows from a query result.
func scanSyncEntries(rows *sql.Rows) ([]*models.SyncQueueEntry, error) {
	defer rows.Close()

	var entries []*models.SyncQueueEntry
	for rows.Next() {
		var e models.SyncQueueEntry
		var data string
		if err := rows.Scan(&e.ID, &e.OperationType, &e.TableName, &e.RecordID, &data,
			&e.Status, &e.Attempts, &e.LastAttempt, &e.NextAttemptAt, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, storageErr("failed to scan sync queue row", err)
		}
		e.Data = []byte(data)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate sync queue rows", err)
	}
	return entries, nil
}

const syncEntryColumns = `id, operation_type, table_name, record_id, data,
	status, attempts, last_attempt, next_attempt_at, error_message, created_at`

// DuePendingSyncEntries returns PENDING entries whose backoff gate has
// passed, in global FIFO order by creation time. An entry is excluded while
// an earlier entry for the same record is in flight, terminally failed, or
// still gated — later mutations must never overtake earlier ones for the
// same record.
func (s *Store) DuePendingSyncEntries(now time.Time, limit int) ([]*models.SyncQueueEntry, error) {
	nowMillis := now.UnixMilli()
	query := `
	SELECT ` + syncEntryColumns + `
	FROM sync_queue e
	WHERE e.status = 'PENDING' AND e.next_attempt_at <= ?
	  AND NOT EXISTS (
		SELECT 1 FROM sync_queue e2
		WHERE e2.table_name = e.table_name AND e2.record_id = e.record_id
		  AND (e2.created_at < e.created_at OR (e2.created_at = e.created_at AND e2.rowid < e.rowid))
		  AND NOT (e2.status = 'PENDING' AND e2.next_attempt_at <= ?)
	  )
	ORDER BY e.created_at, e.rowid
	LIMIT ?`

	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(nowMillis, nowMillis, limit)
	if err != nil {
		return nil, storageErr("failed to poll sync queue", err)
	}
	return scanSyncEntries(rows)
}

// MarkSyncEntryInFlight transitions PENDING → IN_FLIGHT. Returns false if
// another worker claimed the entry first.
func (s *Store) MarkSyncEntryInFlight(id models.UUID, now time.Time) (bool, error) {
	res, err := s.db.Exec(
		"UPDATE sync_queue SET status = 'IN_FLIGHT', last_attempt = ? WHERE id = ? AND status = 'PENDING'",
		now.Unix(), id)
	if err != nil {
		return false, storageErr("failed to mark sync entry in flight", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("failed to check in-flight claim", err)
	}
	return affected == 1, nil
}

// AckSyncEntry deletes an acknowledged entry. Acknowledgment is the only
// path that removes queue rows.
func (s *Store) AckSyncEntry(id models.UUID) error {
	if _, err := s.db.Exec("DELETE FROM sync_queue WHERE id = ?", id); err != nil {
		return storageErr("failed to delete acknowledged sync entry", err)
	}
	return nil
}

// RecordSyncFailure increments attempts and either re-arms the entry with a
// backoff gate (transient) or parks it as FAILED for operator review
// (terminal). Attempts only ever grows.
func (s *Store) RecordSyncFailure(id models.UUID, message string, nextAttempt time.Time, terminal bool) error {
	status := models.SyncStatusPending
	if terminal {
		status = models.SyncStatusFailed
	}
	_, err := s.db.Exec(`
	UPDATE sync_queue
	SET status = ?, attempts = attempts + 1, last_attempt = ?, next_attempt_at = ?, error_message = ?
	WHERE id = ?`,
		status, time.Now().Unix(), nextAttempt.UnixMilli(), message, id)
	if err != nil {
		return storageErr("failed to record sync failure", err)
	}
	return nil
}

// GetSyncEntry retrieves a sync queue entry by ID.
func (s *Store) GetSyncEntry(id models.UUID) (*models.SyncQueueEntry, error) {
	rows, err := s.db.Query("SELECT "+syncEntryColumns+" FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return nil, storageErr("failed to read sync entry", err)
	}
	entries, err := scanSyncEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.New(apperrors.ErrNotFound, "sync entry not found")
	}
	return entries[0], nil
}

// SyncEntriesForRecord returns all surviving entries for one record in
// creation order. Used by tests and the operator review surface.
func (s *Store) SyncEntriesForRecord(table string, recordID models.UUID) ([]*models.SyncQueueEntry, error) {
	rows, err := s.db.Query(
		"SELECT "+syncEntryColumns+" FROM sync_queue WHERE table_name = ? AND record_id = ? ORDER BY created_at, rowid",
		table, recordID)
	if err != nil {
		return nil, storageErr("failed to list sync entries for record", err)
	}
	return scanSyncEntries(rows)
}

// SyncQueueStats reports queue depth by status for operator notifications.
func (s *Store) SyncQueueStats() (map[models.SyncStatus]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM sync_queue GROUP BY status")
	if err != nil {
		return nil, storageErr("failed to read sync queue stats", err)
	}
	defer rows.Close()

	stats := map[models.SyncStatus]int{
		models.SyncStatusPending:  0,
		models.SyncStatusInFlight: 0,
		models.SyncStatusFailed:   0,
	}
	for rows.Next() {
		var status models.SyncStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storageErr("failed to scan sync queue stats", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// RetryFailedSyncEntries resets terminally failed entries back to PENDING.
// This is the operator's manual re-trigger; attempts restart from zero.
func (s *Store) RetryFailedSyncEntries() (int, error) {
	res, err := s.db.Exec(`
	UPDATE sync_queue
	SET status = 'PENDING', attempts = 0, next_attempt_at = 0, error_message = ''
	WHERE status = 'FAILED'`)
	if err != nil {
		return 0, storageErr("failed to retry failed sync entries", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("failed to count retried sync entries", err)
	}
	return int(affected), nil
}

// ReleaseInFlightSyncEntries returns orphaned IN_FLIGHT entries to PENDING.
// Called once at startup: an entry stuck in flight means the process died
// mid-send, and at-least-once delivery makes re-sending safe.
func (s *Store) ReleaseInFlightSyncEntries() (int, error) {
	res, err := s.db.Exec("UPDATE sync_queue SET status = 'PENDING' WHERE status = 'IN_FLIGHT'")
	if err != nil {
		return 0, storageErr("failed to release in-flight sync entries", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("failed to count released sync entries", err)
	}
	return int(affected), nil
}

// =====================================================
// Print Job Operations
// =====================================================

// CreatePrintJob queues a physical print request. Print jobs are device
// traffic, not syncable data, so no sync entry is written.
func (s *Store) CreatePrintJob(job *models.PrintJob) error {
	if job.PrinterName == "" {
		return apperrors.New(apperrors.ErrValidation, "print job has no target printer")
	}
	job.ID = models.UUID(uuid.New())
	job.Status = models.PrintStatusPending
	job.CreatedAt = time.Now().UnixMilli()

	query := `
	INSERT INTO print_jobs (id, order_id, print_type, printer_name, content, status,
		attempts, next_attempt_at, error_message, printed_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, 0, 0, '', 0, ?)
	`
	if _, err := s.db.Exec(query, job.ID, job.OrderID, job.PrintType, job.PrinterName,
		job.Content, job.Status, job.CreatedAt); err != nil {
		return storageErr("failed to insert print job", err)
	}
	return nil
}

const printJobColumns = `id, order_id, print_type, printer_name, content,
	status, attempts, next_attempt_at, error_message, printed_at, created_at`

// scanPrintJobs reads print_jobs rows from a query result.
func scanPrintJobs(rows *sql.Rows) ([]*models.PrintJob, error) {
	defer rows.Close()

	var jobs []*models.PrintJob
	for rows.Next() {
		var j models.PrintJob
		if err := rows.Scan(&j.ID, &j.OrderID, &j.PrintType, &j.PrinterName, &j.Content,
			&j.Status, &j.Attempts, &j.NextAttemptAt, &j.ErrorMessage, &j.PrintedAt, &j.CreatedAt); err != nil {
			return nil, storageErr("failed to scan print job row", err)
		}
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate print job rows", err)
	}
	return jobs, nil
}

// DuePendingPrintJobs returns queued jobs whose retry gate has passed,
// oldest first.
func (s *Store) DuePendingPrintJobs(now time.Time, limit int) ([]*models.PrintJob, error) {
	stmt, err := s.PrepareStmt(
		"SELECT " + printJobColumns + " FROM print_jobs WHERE status = 'PENDING' AND next_attempt_at <= ? ORDER BY created_at, rowid LIMIT ?")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(now.UnixMilli(), limit)
	if err != nil {
		return nil, storageErr("failed to poll print jobs", err)
	}
	return scanPrintJobs(rows)
}

// GetPrintJob retrieves a print job by ID.
func (s *Store) GetPrintJob(id models.UUID) (*models.PrintJob, error) {
	rows, err := s.db.Query("SELECT "+printJobColumns+" FROM print_jobs WHERE id = ?", id)
	if err != nil {
		return nil, storageErr("failed to read print job", err)
	}
	jobs, err := scanPrintJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, apperrors.New(apperrors.ErrNotFound, "print job not found")
	}
	return jobs[0], nil
}

// MarkPrintJobPrinting transitions PENDING → PRINTING. Returns false if the
// job was claimed by another worker.
func (s *Store) MarkPrintJobPrinting(id models.UUID) (bool, error) {
	res, err := s.db.Exec(
		"UPDATE print_jobs SET status = 'PRINTING' WHERE id = ? AND status = 'PENDING'", id)
	if err != nil {
		return false, storageErr("failed to mark print job printing", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("failed to check printing claim", err)
	}
	return affected == 1, nil
}

// MarkPrintJobPrinted records a successful dispatch.
func (s *Store) MarkPrintJobPrinted(id models.UUID) error {
	_, err := s.db.Exec(
		"UPDATE print_jobs SET status = 'PRINTED', printed_at = ? WHERE id = ?",
		time.Now().Unix(), id)
	if err != nil {
		return storageErr("failed to mark print job printed", err)
	}
	return nil
}

// RecordPrintFailure increments attempts and either re-arms the job behind
// its retry gate or parks it as FAILED once the cap is exhausted.
func (s *Store) RecordPrintFailure(id models.UUID, message string, nextAttempt time.Time, terminal bool) error {
	status := models.PrintStatusPending
	if terminal {
		status = models.PrintStatusFailed
	}
	_, err := s.db.Exec(
		"UPDATE print_jobs SET status = ?, attempts = attempts + 1, next_attempt_at = ?, error_message = ? WHERE id = ?",
		status, nextAttempt.UnixMilli(), message, id)
	if err != nil {
		return storageErr("failed to record print failure", err)
	}
	return nil
}

// ReleasePrintingJobs returns orphaned PRINTING jobs to PENDING at startup.
func (s *Store) ReleasePrintingJobs() (int, error) {
	res, err := s.db.Exec("UPDATE print_jobs SET status = 'PENDING' WHERE status = 'PRINTING'")
	if err != nil {
		return 0, storageErr("failed to release printing jobs", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("failed to count released print jobs", err)
	}
	return int(affected), nil
}

// RetryFailedPrintJobs resets FAILED jobs to PENDING for a manual re-trigger.
func (s *Store) RetryFailedPrintJobs() (int, error) {
	res, err := s.db.Exec(
		"UPDATE print_jobs SET status = 'PENDING', attempts = 0, next_attempt_at = 0, error_message = '' WHERE status = 'FAILED'")
	if err != nil {
		return 0, storageErr("failed to retry failed print jobs", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("failed to count retried print jobs", err)
	}
	return int(affected), nil
}

// PrintJobStats reports job counts by status for operator notifications.
func (s *Store) PrintJobStats() (map[models.PrintStatus]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM print_jobs GROUP BY status")
	if err != nil {
		return nil, storageErr("failed to read print job stats", err)
	}
	defer rows.Close()

	stats := map[models.PrintStatus]int{
		models.PrintStatusPending:  0,
		models.PrintStatusPrinting: 0,
		models.PrintStatusPrinted:  0,
		models.PrintStatusFailed:   0,
	}
	for rows.Next() {
		var status models.PrintStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storageErr("failed to scan print job stats", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
