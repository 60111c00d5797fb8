package print

import (
	"context"
	"net"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberpos/core/internal/config"
	"github.com/emberpos/core/internal/db"
	apperrors "github.com/emberpos/core/internal/errors"
	"github.com/emberpos/core/internal/models"
)

func newStore(t *testing.T) *db.Store {
	t.Helper()

	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	migrator := db.NewMigrator(database.DB)
	require.NoError(t, migrator.Initialize())
	require.NoError(t, migrator.Up())

	store := db.NewStore(database.DB)
	t.Cleanup(func() { store.Close() })
	return store
}

func newJob(t *testing.T, store *db.Store, printer string) *models.PrintJob {
	t.Helper()
	job := &models.PrintJob{
		OrderID:     "order-1",
		PrintType:   models.PrintTypeKitchen,
		PrinterName: printer,
		Content:     "1x Fish and chips\n",
	}
	require.NoError(t, store.CreatePrintJob(job))
	return job
}

// testPrintConfig uses a millisecond backoff curve so retry gates expire
// within the test.
func testPrintConfig() config.PrintConfig {
	return config.PrintConfig{
		PollInterval: time.Hour,
		Workers:      2,
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
		BackoffCap:   4 * time.Millisecond,
		DialTimeout:  time.Second,
		BatchLimit:   20,
	}
}

// fakePrinter scripts per-call outcomes and records what was printed.
type fakePrinter struct {
	mu      gosync.Mutex
	printed []string
	calls   int
	// respond decides the outcome given the 1-based call number. A nil
	// respond always succeeds.
	respond func(call int) error
}

func (f *fakePrinter) Print(_ context.Context, printerName string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.respond != nil {
		if err := f.respond(f.calls); err != nil {
			return err
		}
	}
	f.printed = append(f.printed, printerName+":"+string(content))
	return nil
}

func (f *fakePrinter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeNotifier records print events.
type fakeNotifier struct {
	mu     gosync.Mutex
	stats  []map[models.PrintStatus]int
	failed []models.UUID
}

func (f *fakeNotifier) PrintJobsChanged(stats map[models.PrintStatus]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, stats)
}

func (f *fakeNotifier) PrintJobFailed(job *models.PrintJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, job.ID)
}

func (f *fakeNotifier) failedJobs() []models.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.UUID(nil), f.failed...)
}

func TestDrainPrintsPendingJobs(t *testing.T) {
	store := newStore(t)
	printer := &fakePrinter{}
	notifier := &fakeNotifier{}
	p := NewProcessor(store, printer, notifier, testPrintConfig())

	job := newJob(t, store, "kitchen-1")
	p.Drain(context.Background())

	assert.Equal(t, 1, printer.callCount())

	got, err := store.GetPrintJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintStatusPrinted, got.Status)
	assert.NotZero(t, got.PrintedAt)

	notifier.mu.Lock()
	require.NotEmpty(t, notifier.stats)
	last := notifier.stats[len(notifier.stats)-1]
	notifier.mu.Unlock()
	assert.Equal(t, 1, last[models.PrintStatusPrinted])
	assert.Equal(t, 0, last[models.PrintStatusPending])
}

func TestDrainRetriesTransientFailure(t *testing.T) {
	store := newStore(t)
	printer := &fakePrinter{
		respond: func(call int) error {
			if call == 1 {
				return apperrors.New(apperrors.ErrPrintTransient, "printer kitchen-1 unreachable")
			}
			return nil
		},
	}
	p := NewProcessor(store, printer, nil, testPrintConfig())

	job := newJob(t, store, "kitchen-1")

	p.Drain(context.Background())
	got, err := store.GetPrintJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.NotZero(t, got.NextAttemptAt)

	// Once the retry gate expires the next drain retries and succeeds.
	time.Sleep(20 * time.Millisecond)
	p.Drain(context.Background())
	got, err = store.GetPrintJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintStatusPrinted, got.Status)
}

func TestDrainFailsJobAtAttemptCap(t *testing.T) {
	store := newStore(t)
	printer := &fakePrinter{
		respond: func(int) error {
			return apperrors.New(apperrors.ErrPrintTransient, "printer kitchen-1 unreachable")
		},
	}
	notifier := &fakeNotifier{}
	cfg := testPrintConfig()
	cfg.MaxAttempts = 3
	p := NewProcessor(store, printer, notifier, cfg)

	job := newJob(t, store, "kitchen-1")

	for i := 0; i < 3; i++ {
		p.Drain(context.Background())
		time.Sleep(20 * time.Millisecond)
	}

	got, err := store.GetPrintJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintStatusFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Contains(t, got.ErrorMessage, "unreachable")

	require.Len(t, notifier.failedJobs(), 1)
	assert.Equal(t, job.ID, notifier.failedJobs()[0])

	// Further drains leave the failed job alone.
	before := printer.callCount()
	p.Drain(context.Background())
	assert.Equal(t, before, printer.callCount())
}

func TestStartReleasesOrphanedJobs(t *testing.T) {
	store := newStore(t)
	job := newJob(t, store, "kitchen-1")

	claimed, err := store.MarkPrintJobPrinting(job.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	p := NewProcessor(store, &fakePrinter{}, nil, testPrintConfig())
	p.Start(context.Background())
	defer p.Stop()

	got, err := store.GetPrintJob(job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.PrintStatusPrinting, got.Status)
}

func TestKickDrainsImmediately(t *testing.T) {
	store := newStore(t)
	printer := &fakePrinter{}
	p := NewProcessor(store, printer, nil, testPrintConfig())

	job := newJob(t, store, "kitchen-1")

	p.Start(context.Background())
	defer p.Stop()
	p.Kick()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.GetPrintJob(job.ID)
		require.NoError(t, err)
		if got.Status == models.PrintStatusPrinted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("kicked processor did not print the job")
}

func TestNetworkPrinterWritesContent(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	}()

	printer := NewNetworkPrinter(time.Second)
	err = printer.Print(context.Background(), listener.Addr().String(), []byte("RECEIPT\n"))
	require.NoError(t, err)

	select {
	case content := <-received:
		assert.Equal(t, "RECEIPT\n", string(content))
	case <-time.After(2 * time.Second):
		t.Fatal("printer content never arrived")
	}
}

func TestNetworkPrinterUnreachable(t *testing.T) {
	// Grab a port and close it so nothing is listening there.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	printer := NewNetworkPrinter(200 * time.Millisecond)
	err = printer.Print(context.Background(), addr, []byte("x"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPrintTransient), "got %v", err)
	assert.True(t, apperrors.IsRetryable(err))
}
