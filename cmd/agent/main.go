package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/api"
	"github.com/heimdex/heimdex-shorts/internal/app"
	"github.com/heimdex/heimdex-shorts/internal/catalog"
	"github.com/heimdex/heimdex-shorts/internal/cloud"
	"github.com/heimdex/heimdex-shorts/internal/config"
	"github.com/heimdex/heimdex-shorts/internal/db"
	"github.com/heimdex/heimdex-shorts/internal/events"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/playback"
	"github.com/heimdex/heimdex-shorts/internal/scriptgen"
	"github.com/heimdex/heimdex-shorts/internal/ui"
	"github.com/heimdex/heimdex-shorts/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.WorkDir(), cfg.OutputDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex shorts agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                HEIMDEX SHORTS v%-27s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Printf("║  Inbox:      %-45s ║\n", logging.SanitizePath(cfg.InboxDir()))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	broker := events.NewBroker(logger)
	defer broker.Close()

	engine, err := app.NewEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize render engine: %w", err)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), cfg.TimeoutDoctor())
	if caps, err := engine.Doctor.Refresh(initCtx); err != nil {
		logger.Warn("initial media probe failed", "error", err)
	} else {
		logger.Info("media capabilities detected",
			"can_render", caps.CanRender,
			"ffmpeg", caps.FFmpeg.Version,
		)
	}
	initCancel()

	uploader := cloud.NewUploader(cfg.CloudEnabled(), cfg.CloudBaseURL(), cfg.CloudToken(), logger)
	if uploader.Enabled() {
		logger.Info("cloud upload enabled", "base_url", cfg.CloudBaseURL())
	}

	service := catalog.NewService(repo, broker, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := catalog.NewRunner(service, repo, engine.Pipeline, catalog.RunnerOptions{
		Uploader:   uploader,
		Doctor:     engine.Doctor,
		Events:     broker,
		Background: cfg.Background(),
		Logger:     logger,
	})
	go runner.Start(ctx)

	janitor := catalog.NewJanitor(app.RunsDir(cfg), cfg.Retention(), logger)
	if err := janitor.Start(""); err != nil {
		logger.Warn("run directory cleanup disabled", "error", err)
	}

	inbox := watcher.New(cfg.InboxDir(), service, watcher.Options{
		Background: cfg.Background(),
		Logger:     logger,
	})
	if err := inbox.Start(ctx); err != nil {
		logger.Warn("script inbox disabled", "dir", logging.SanitizePath(cfg.InboxDir()), "error", err)
	}

	var generator api.ScriptGenerator
	if cfg.OpenAIAPIKey() != "" {
		g, err := scriptgen.New(scriptgen.Config{
			APIKey: cfg.OpenAIAPIKey(),
			Model:  cfg.OpenAIModel(),
			Logger: logger,
		})
		if err != nil {
			logger.Warn("script generation disabled", "error", err)
		} else {
			generator = g
		}
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Service:   service,
		Config:    repo,
		Runner:    runner,
		Doctor:    engine.Doctor,
		Playback:  playback.NewServer(cfg.OutputDir(), logger),
		Events:    broker,
		Generator: generator,
		Logger:    logger,
		StartTime: startTime,
		DeviceID:  deviceID,
		Version:   config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		trayEvents, unsubscribe := broker.Subscribe(32)
		defer unsubscribe()
		tray := ui.NewTray(ui.TrayConfig{
			Runner: runner,
			Events: trayEvents,
			Logger: logger,
			OnOpenOutput: func() error {
				return openFolder(cfg.OutputDir())
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()
	inbox.Stop()
	<-janitor.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureDeviceID(repo catalog.Repository) (string, error) {
	return ensureSecret(repo, "device_id", 16)
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	return ensureSecret(repo, api.AuthTokenKey, 32)
}

// ensureSecret returns the stored value of key, generating n random bytes
// hex-encoded on first use.
func ensureSecret(repo catalog.Repository, key string, n int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	value := hex.EncodeToString(b)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}
