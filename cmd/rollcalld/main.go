package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rollcall-app/rollcall/internal/api"
	"github.com/rollcall-app/rollcall/internal/attendance"
	"github.com/rollcall-app/rollcall/internal/clock"
	"github.com/rollcall-app/rollcall/internal/config"
	"github.com/rollcall-app/rollcall/internal/connectivity"
	"github.com/rollcall-app/rollcall/internal/queue"
	"github.com/rollcall-app/rollcall/internal/remote"
	"github.com/rollcall-app/rollcall/internal/store"
	"github.com/rollcall-app/rollcall/internal/syncer"
	"github.com/rollcall-app/rollcall/internal/utils"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := utils.NewLogger(cfg.LogLevel)
	clk := clock.System()

	// A store that fails to open is fatal: everything depends on it.
	st, err := store.Open(cfg.LocalDBPath, clk)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer st.Close()

	q := queue.New(st.DB(), clk)
	remoteClient := remote.NewClient(cfg.RemoteURL, cfg.DeviceID, 15*time.Second)

	monitor := connectivity.NewMonitor(remoteClient, cfg.ProbeInterval, logger)
	engine := syncer.NewEngine(q, remoteClient, monitor, clk, cfg.SyncInterval, logger)
	monitor.Start(ctx)
	defer monitor.Stop()
	engine.Start(ctx)
	defer engine.Stop()

	secret := []byte(cfg.QRSecret)
	manager := attendance.NewSessionManager(st, q, engine, clk, logger)
	validator := attendance.NewValidator(st, q, manager, engine, clk, secret, logger)

	handlers := api.NewHandlers(st, q, engine, monitor, manager, validator, secret, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.APIPort),
		Handler: handlers.Router(),
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down rollcalld...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Infof("Starting rollcalld API on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	logger.Info("rollcalld stopped gracefully")
}
