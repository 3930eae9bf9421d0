package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/co-subtitles/internal/api"
	"github.com/yegors/co-subtitles/internal/audio"
	"github.com/yegors/co-subtitles/internal/config"
	"github.com/yegors/co-subtitles/internal/pipeline"
	"github.com/yegors/co-subtitles/internal/session"
	"github.com/yegors/co-subtitles/internal/subtitles"
	"github.com/yegors/co-subtitles/internal/webrtc"
	"github.com/yegors/co-subtitles/internal/websocket"
	"github.com/yegors/co-subtitles/pkg/logger"
)

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Ingest: audio.IngestConfig{
			SampleRate: cfg.Audio.SampleRate,
			ChunkSize:  cfg.Audio.ChunkSamples,
			VolumeGain: cfg.Audio.VolumeGain,
		},
		Pipeline: pipeline.Config{
			SampleRate:     cfg.Audio.SampleRate,
			Punctuation:    cfg.Speech.Punctuation,
			PollInterval:   cfg.Speech.PollInterval(),
			StreamLimit:    cfg.Speech.StreamLimit(),
			InitialBackoff: cfg.Speech.InitialBackoff(),
			MaxBackoff:     cfg.Speech.MaxBackoff(),
		},
		Renderer: subtitles.RendererConfig{
			WindowSize:   cfg.Subtitles.WindowSize,
			SlowInterval: cfg.Subtitles.SlowInterval(),
			FastInterval: cfg.Subtitles.FastInterval(),
		},
		VoiceInterval: cfg.Audio.VoiceInterval(),
		DefaultAudio:  cfg.Languages.DefaultAudio,
		DefaultTransl: cfg.Languages.DefaultTranslation,
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting subtitle server",
		logger.String("version", Version),
		logger.String("config_path", configPath),
		logger.String("speech_provider", cfg.Speech.Provider),
		logger.String("translation_provider", cfg.Translation.Provider),
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	providers, closers, err := newProviders(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAll(closers, log)

	// Viewer hub
	wsServer := websocket.NewServer(log)
	go wsServer.Run(ctx)

	sessions := session.NewManager(
		sessionConfig(cfg),
		providers,
		wsServer,
		session.WebRTCPeers(webrtc.Config{ICEServers: cfg.WebRTC.ICEServers}, log),
		log,
	)

	router := api.NewRouter(sessions, wsServer, cfg, Version, log)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal or a listener failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case <-sigCh:
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server error", logger.Error(err))
			runErr = err
		}
	}

	log.Info("Shutting down server...")

	log.Info("Closing sessions...", logger.Int("sessions", sessions.Count()))
	sessions.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	// stops the viewer hub
	cancel()

	log.Info("Server fully stopped")
	return runErr
}
