package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberpos/core/internal/logging"
)

// Monitor watches the backend's event socket to detect connectivity. A
// restored connection kicks the processor so queued mutations drain
// immediately instead of waiting for the next poll tick.
type Monitor struct {
	url         string
	dialTimeout time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration
	processor   *Processor

	stopCh chan struct{}
	wg     gosync.WaitGroup

	mu       gosync.Mutex
	isOnline bool
	running  bool
}

// NewMonitor creates a connectivity monitor against the backend events URL.
func NewMonitor(url string, dialTimeout time.Duration, processor *Processor) *Monitor {
	return &Monitor{
		url:         url,
		dialTimeout: dialTimeout,
		backoffBase: 1 * time.Second,
		backoffCap:  30 * time.Second,
		processor:   processor,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the reconnect loop. A monitor with no URL stays idle and
// reports online, leaving the processor on its poll schedule.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running || m.url == "" {
		m.isOnline = true
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop shuts the reconnect loop down.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

// IsOnline reports the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isOnline
}

// loop dials, holds the connection until it drops, then retries with the
// same capped exponential curve the sync entries use.
func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		default:
		}

		conn, err := m.dial(ctx)
		if err != nil {
			m.setOnline(false)
			delay := Backoff(attempts, m.backoffBase, m.backoffCap)
			attempts++
			logging.Debug("Connectivity dial failed",
				map[string]interface{}{"retry_in": delay.String(), "error": err.Error()})

			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-time.After(delay):
			}
			continue
		}

		attempts = 0
		m.setOnline(true)
		logging.Info("Connectivity restored, draining sync queue")
		m.processor.Kick()

		m.hold(ctx, conn)
		m.setOnline(false)
		logging.Warn("Connectivity lost")
	}
}

// dial opens the websocket within the dial timeout.
func (m *Monitor) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, m.url, nil)
	return conn, err
}

// hold reads until the connection drops or the monitor stops. Messages are
// discarded; only liveness matters here.
func (m *Monitor) hold(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-m.stopCh:
	case <-done:
	}
}

// setOnline records the connectivity state.
func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	m.isOnline = online
	m.mu.Unlock()
}
