package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/emberpos/core/internal/errors"
	"github.com/emberpos/core/internal/models"
)

// RemoteClient delivers one queued mutation to the remote backend. Delivery
// is at-least-once; the backend de-duplicates on record_id + version.
type RemoteClient interface {
	Push(ctx context.Context, entry *models.SyncQueueEntry) error
}

// PushRequest is the wire shape of one sync attempt.
type PushRequest struct {
	TableName     string               `json:"table_name"`
	OperationType models.OperationType `json:"operation_type"`
	RecordID      models.UUID          `json:"record_id"`
	Data          json.RawMessage      `json:"data"`
	// Version is the entry's local creation time in milliseconds; it only
	// ever increases for a record, so the backend can drop replays.
	Version int64 `json:"version"`
}

// HTTPRemote pushes sync entries over HTTP POST.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRemote creates a RemoteClient against the given base URL. timeout
// bounds each attempt; a timed-out attempt counts as a transient failure.
func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Push sends one entry. Network errors and 5xx responses are transient;
// 4xx responses mean the payload itself is rejected and retrying is
// pointless, so they are terminal.
func (r *HTTPRemote) Push(ctx context.Context, entry *models.SyncQueueEntry) error {
	req := PushRequest{
		TableName:     entry.TableName,
		OperationType: entry.OperationType,
		RecordID:      entry.RecordID,
		Data:          entry.Data,
		Version:       entry.CreatedAt,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncTerminal, "failed to marshal push request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v1/sync", bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncTerminal, "failed to build push request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return apperrors.Wrap(apperrors.ErrSyncTimeout, "sync attempt timed out", err)
		}
		return apperrors.Wrap(apperrors.ErrSyncTransient, "sync endpoint unreachable", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.New(apperrors.ErrSyncTransient, fmt.Sprintf("sync endpoint returned %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.New(apperrors.ErrSyncTerminal, fmt.Sprintf("sync endpoint rejected payload with %d", resp.StatusCode))
	default:
		return apperrors.New(apperrors.ErrSyncTransient, fmt.Sprintf("sync endpoint returned %d", resp.StatusCode))
	}
}

// isTimeout reports whether a transport error is a timeout.
func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(timeout); ok && t.Timeout() {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return false
}
