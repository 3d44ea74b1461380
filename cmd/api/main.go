package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ootdStylist/internal/config"
	"ootdStylist/internal/events"
	"ootdStylist/internal/imageprep"
	"ootdStylist/internal/media"
	"ootdStylist/internal/server"
	"ootdStylist/internal/snapshot"
	"ootdStylist/internal/storage"
	"ootdStylist/internal/stylist"
	"ootdStylist/internal/vision"
	"ootdStylist/pkg/logger"
)

const mediaPrefix = "/media"

func main() {
	configPath := flag.String("config", "config.json", "path to an optional config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	if !cfg.HasCredentials() {
		logger.Warnf("no API key, project or service account configured; analysis and generation will fail until one is set")
	}

	ctx := context.Background()
	store, err := storage.NewStore(ctx, storage.Options{
		DatabaseURL: cfg.Storage.DatabaseURL,
		RedisURL:    cfg.Storage.RedisURL,
		TTL:         cfg.Storage.SessionTTL,
	})
	if err != nil {
		logger.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()

	backends := vision.NewBackends(ctx, cfg.AI)
	defer backends.Close()

	fonts, err := snapshot.LoadFonts(cfg.Snapshot.FontFile)
	if err != nil {
		logger.Fatalf("failed to load snapshot font: %v", err)
	}
	if cfg.Snapshot.FontFile == "" && cfg.Locale != "en" {
		logger.Warnf("no snapshot.font_file configured; Hangul text is left out of shared result cards")
	}

	uploader, err := media.NewUploader(ctx, media.Config{
		Bucket:          cfg.Media.Bucket,
		Region:          cfg.Media.Region,
		Endpoint:        cfg.Media.Endpoint,
		PublicURL:       cfg.Media.PublicURL,
		KeyPrefix:       cfg.Media.KeyPrefix,
		ForcePathStyle:  cfg.Media.ForcePathStyle,
		AccessKeyID:     cfg.Media.AccessKeyID,
		SecretAccessKey: cfg.Media.SecretKey,
		LocalDir:        cfg.Media.LocalDir,
		LocalURLPrefix:  mediaPrefix,
	})
	if err != nil {
		logger.Fatalf("failed to init media uploader: %v", err)
	}

	orchestrator := stylist.New(stylist.Options{
		Store:     store,
		Preparer:  imageprep.New(cfg.Image.MaxWidth, cfg.Image.MaxHeight, cfg.Image.Quality),
		Analyzer:  backends.Analyzer,
		Generator: backends.Generator,
		Events:    events.NewBroker(),
		Uploader:  uploader,
		Locale:    cfg.Locale,
		Timeout:   cfg.AI.Timeout,
		Fonts:     fonts,
	})

	opts := server.Options{
		Port:         cfg.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if cfg.StaticFS != "" {
		if _, err := os.Stat(cfg.StaticFS); err == nil {
			opts.Static = http.FileServer(http.Dir(cfg.StaticFS))
		}
	}
	if cfg.Media.Bucket == "" && cfg.Media.LocalDir != "" {
		opts.Media = http.FileServer(http.Dir(cfg.Media.LocalDir))
		opts.MediaPrefix = mediaPrefix
	}

	srv := server.New(opts, stylist.Handler{
		Stylist:       orchestrator,
		MaxImageBytes: int64(cfg.Image.MaxBytes),
	})

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownChan
		logger.Infof("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server failed: %v", err)
	}
	orchestrator.Wait()
}
