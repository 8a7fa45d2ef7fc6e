package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/streamscribe/streamscribe/internal/audio"
	"github.com/streamscribe/streamscribe/internal/capture"
	"github.com/streamscribe/streamscribe/internal/config"
	"github.com/streamscribe/streamscribe/internal/metrics"
	"github.com/streamscribe/streamscribe/internal/sentence"
	"github.com/streamscribe/streamscribe/internal/server"
	"github.com/streamscribe/streamscribe/internal/session"
	"github.com/streamscribe/streamscribe/internal/transcript"
	"github.com/streamscribe/streamscribe/internal/transcription"
	"github.com/streamscribe/streamscribe/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "streamscribe"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Int("frame_ms", cfg.VAD.FrameMs),
		slog.Float64("energy_threshold", cfg.VAD.EnergyThreshold),
		slog.Float64("min_segment_duration", cfg.Segmenter.MinSegmentDuration),
		slog.Float64("max_segment_duration", cfg.Segmenter.MaxSegmentDuration),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.Bool("archive_enabled", cfg.Archive.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Create the shared transcription client
	transcriptionClient, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		UploadFormat:  cfg.Transcription.UploadFormat,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Build the output sink chain: structured log, plus SQLite archive
	// when enabled
	var archive *transcript.Archive
	sink := transcript.Sink(transcript.NewLogSink(logger))
	if cfg.Archive.Enabled {
		archive, err = transcript.OpenArchive(context.Background(), cfg.Archive.Path)
		if err != nil {
			logger.Error("Failed to open transcript archive", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sink = transcript.NewMultiSink(sink, archive)
		logger.Info("Transcript archive opened", slog.String("path", cfg.Archive.Path))
	}

	// Session registry
	registry := session.NewRegistry(logger, appMetrics)

	// Session factory wires one full pipeline per start request
	factory := newSessionFactory(cfg, logger, appMetrics, transcriptionClient, sink, registry)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpConfig := server.HTTPServerConfig{
			Address: cfg.HTTP.Address,
			Port:    cfg.HTTP.Port,
		}
		httpServer = server.NewHTTPServer(httpConfig, logger, registry, factory,
			appMetrics, transcriptionClient.GetStats)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Info("HTTP API server started",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop all sessions (drains queued segments and flushes sentences)
	stopped := registry.StopAll()

	// Close the transcription client after the last dispatcher is done
	if err := transcriptionClient.Close(); err != nil {
		logger.Warn("Error closing transcription client", slog.String("error", err.Error()))
	}

	// Close the transcript archive last so final sentences are persisted
	if archive != nil {
		if err := archive.Close(); err != nil {
			logger.Warn("Error closing transcript archive", slog.String("error", err.Error()))
		}
	}

	// Log final statistics
	transcriptionStats := transcriptionClient.GetStats()
	logger.Info("Final service statistics",
		slog.Int("sessions_stopped", stopped),
		slog.Uint64("total_transcription_requests", transcriptionStats.TotalRequests),
		slog.Uint64("successful_transcriptions", transcriptionStats.SuccessRequests),
		slog.Float64("transcription_success_rate", transcriptionStats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// newSessionFactory returns the builder used by the HTTP API to wire a
// complete pipeline for one stream
func newSessionFactory(cfg *config.Config, logger *slog.Logger, appMetrics *metrics.Metrics,
	engine transcription.Engine, sink transcript.Sink, registry *session.Registry) server.SessionFactory {

	return func(req server.StartRequest) (*session.Session, error) {
		id := req.ID
		if id == "" {
			id = deriveSessionID(req.URL)
		}

		classifier, err := vad.Select(nil, cfg.VAD.DetectorThreshold, vad.EnergyConfig{
			Threshold:  cfg.VAD.EnergyThreshold,
			FrameBytes: cfg.VAD.FrameBytes(cfg.Capture.SampleRate),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create classifier: %w", err)
		}

		assembler, err := audio.NewAssembler(audio.AssemblerConfig{
			FrameDuration: cfg.VAD.GetFrameDuration(),
			MinSegment:    cfg.Segmenter.GetMinSegmentDuration(),
			MaxSegment:    cfg.Segmenter.GetMaxSegmentDuration(),
			MinSpeech:     cfg.Segmenter.GetMinSpeechDuration(),
			MaxSilence:    cfg.Segmenter.GetMaxSilenceDuration(),
			SampleRate:    cfg.Capture.SampleRate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create assembler: %w", err)
		}

		source := capture.NewFFmpegSource(capture.FFmpegConfig{
			FFmpegPath: cfg.Capture.FFmpegPath,
			Input:      req.URL,
			SampleRate: cfg.Capture.SampleRate,
			Channels:   cfg.Capture.Channels,
			ChunkSize:  cfg.Capture.ChunkBytes(),
			StopGrace:  cfg.Capture.GetStopGrace(),
		}, logger)

		return session.New(id, req.Title, session.Deps{
			Source:     source,
			Classifier: classifier,
			Assembler:  assembler,
			Queue:      audio.NewSegmentQueue(cfg.Segmenter.QueueCapacity),
			Engine:     engine,
			Aggregator: sentence.NewAggregator(sentence.Config{
				MaxBufferRunes: cfg.Sentence.MaxBufferRunes,
				MinBreakOffset: cfg.Sentence.MinBreakOffset,
			}),
			Dedup:       sentence.NewDeduplicator(cfg.Sentence.DedupWindow, cfg.Sentence.DedupThreshold),
			Sink:        sink,
			Metrics:     appMetrics,
			Logger:      logger,
			FrameBytes:  cfg.VAD.FrameBytes(cfg.Capture.SampleRate),
			ReadTimeout: cfg.Capture.GetReadTimeout(),

			// A session whose stream ended on its own leaves the
			// registry without an explicit stop request
			OnExit: func(s *session.Session) {
				registry.Unregister(s.ID)
			},
		})
	}
}

// deriveSessionID turns a stream URL into a stable session identifier
func deriveSessionID(url string) string {
	id := url
	for _, prefix := range []string{"https://", "http://", "rtmp://"} {
		id = strings.TrimPrefix(id, prefix)
	}

	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, id)

	return strings.Trim(id, "-")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
