// Command audiotabd runs the audiotab dataflow engine: it loads the
// engine config, opens the hardware registry and node catalog, and serves
// the websocket command surface a UI or bench client drives pipelines
// through.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/command"
	"github.com/audiotab-dev/audiotab/internal/hal"
	"github.com/audiotab-dev/audiotab/internal/hal/drivers"
	"github.com/audiotab-dev/audiotab/internal/logging"
	"github.com/audiotab-dev/audiotab/nodes"
)

func main() {
	var (
		configPath = flag.String("config", "audiotab.yaml", "Path to the engine config file")
		verbose    = flag.Bool("v", false, "Verbose (debug) logging")
	)
	flag.Parse()

	cfg, err := audiotab.LoadEngineConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	logConfig.Level = parseLogLevel(cfg.LogLevel)
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	registry := hal.NewRegistry(logger)
	registry.RegisterDriver(drivers.NewMockAudioDriver(
		drivers.NewMockAudioDevice("mockaudio-0", 48000, 2, 440),
	))

	store, err := hal.OpenHardwareStore(cfg.HardwareConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open hardware store: %v\n", err)
		os.Exit(1)
	}

	kernelBinding := command.NewKernelBinding(cfg.RingBufferPath, cfg.MaxConcurrentNodes, logger)
	// 30 s of stereo waveform history for the visualization client
	if err := kernelBinding.OpenRingBuffer(48000, 2, 48000*30); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create ring buffer: %v\n", err)
		os.Exit(1)
	}
	nodes.SetVisualizationRing(kernelBinding.Ring())
	nodes.SetOutputDeviceResolver(func(deviceID string) (hal.PacketSink, error) {
		dev, err := hal.ByID(registry.DiscoverAll(context.Background()), deviceID)
		if err != nil {
			return nil, err
		}
		sink, ok := dev.(hal.PacketSink)
		if !ok {
			return nil, audiotab.NewError("audio_output", audiotab.ErrCodeInvalidConfig,
				"device "+deviceID+" is not an output device")
		}
		return sink, nil
	})
	srv := command.NewServer(audiotab.DefaultCatalog(), registry, kernelBinding, logger)
	srv.SetHardwareStore(store, func(rec hal.HardwareRecord) (hal.Device, error) {
		cfg := hal.DefaultDeviceConfig(rec.UserName, rec.SampleRate, rec.Channels)
		cfg.Calibration = rec.Calibration
		return registry.Create(rec.DriverID, rec.DeviceID, cfg)
	})

	httpServer := &http.Server{
		Addr:    cfg.CommandServerAddr,
		Handler: http.HandlerFunc(srv.ServeHTTP),
	}

	logger.Info("starting command server", "addr", cfg.CommandServerAddr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("command server stopped", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
}

func parseLogLevel(level string) logging.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
