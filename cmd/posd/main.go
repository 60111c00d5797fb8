// Package main runs the POS core as a standalone service: the local durable
// store, both queue processors, the crash recovery manager and the operator
// events endpoint. The POS UI talks to this process; it never touches the
// database directly.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/emberpos/core/internal/config"
	"github.com/emberpos/core/internal/db"
	"github.com/emberpos/core/internal/events"
	"github.com/emberpos/core/internal/logging"
	"github.com/emberpos/core/internal/models"
	"github.com/emberpos/core/internal/print"
	"github.com/emberpos/core/internal/recovery"
	"github.com/emberpos/core/internal/sync"
)

// Version is set at build time.
var Version = "0.1.0"

var configDefaults = map[string]string{
	models.ConfigAppVersion:  Version,
	models.ConfigPrinterName: "",
	models.ConfigTaxRate:     "0.20",
	models.ConfigCurrency:    "GBP",
	models.ConfigOfflineMode: "false",
	models.ConfigLastSync:    "",
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logging.Init(os.Stdout, logging.LevelInfo)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("Invalid configuration", err)
		os.Exit(1)
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open local store", err)
		os.Exit(1)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		logging.Error("Failed to initialize migrations", err)
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		logging.Error("Failed to apply migrations", err)
		os.Exit(1)
	}

	store := db.NewStore(database.DB)
	defer store.Close()

	if err := store.SeedConfig(configDefaults); err != nil {
		logging.Error("Failed to seed config", err)
		os.Exit(1)
	}

	recoveryMgr := recovery.NewManager(cfg.DataDir, cfg.Recovery.StaleAfter)
	result := recoveryMgr.ReadSnapshotOnStartup()
	if result.HasSnapshot {
		// The restore/discard choice belongs to the operator; the UI picks
		// the snapshot up through the recovery API and reports back.
		logging.Info("Crash snapshot available for operator decision",
			map[string]interface{}{"stale": result.Stale})
	}

	hub := events.NewHub()
	defer hub.Close()

	remote := sync.NewHTTPRemote(cfg.Remote.BaseURL, cfg.Remote.RequestTimeout)
	syncProc := sync.NewProcessor(store, remote, hub, cfg.Sync, cfg.Remote.RequestTimeout)
	printProc := print.NewProcessor(store, print.NewNetworkPrinter(cfg.Print.DialTimeout), hub, cfg.Print)
	monitor := sync.NewMonitor(cfg.Remote.EventsURL, cfg.Remote.RequestTimeout, syncProc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncProc.Start(ctx)
	printProc.Start(ctx)
	monitor.Start(ctx)

	if cfg.EventsListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/events", hub)
		mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok","service":"posd"}`))
		})

		server := &http.Server{Addr: cfg.EventsListenAddr, Handler: mux}
		go func() {
			logging.Info("Events endpoint listening",
				map[string]interface{}{"addr": cfg.EventsListenAddr})
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("Events endpoint failed", err)
			}
		}()
		defer server.Shutdown(context.Background())
	}

	logging.Info("POS core started", map[string]interface{}{"version": Version})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("Shutting down")
	monitor.Stop()
	printProc.Stop()
	syncProc.Stop()
}
