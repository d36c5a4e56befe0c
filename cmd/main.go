package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"repost-warden/internal"
	"repost-warden/internal/archive"
	"repost-warden/internal/bot"
	"repost-warden/internal/engine"
	"repost-warden/internal/index"
	"repost-warden/internal/logging"
	"repost-warden/internal/s3"
	"repost-warden/internal/scheduler"
	"repost-warden/internal/stats"
	"repost-warden/internal/store"
)

func main() {
	// Load .env file if it exists (try multiple paths)
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, path := range envPaths {
		_ = godotenv.Load(path)
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	idx, err := index.Open(ctx, st)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	log.Info().Int("fingerprints", idx.Len()).Str("db", cfg.DBPath).Msg("similarity index loaded")

	var arch *archive.Archive
	if cfg.ArchiveEnabled() {
		client, err := s3.New(s3.Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return fmt.Errorf("init archive: %w", err)
		}
		arch = archive.New(client)
		log.Info().Str("bucket", cfg.S3Bucket).Msg("evidence archive enabled")
	}

	var archiver engine.Archiver
	if arch != nil {
		archiver = arch
	}
	eng := engine.New(idx, st, cfg.SimilarityThreshold, archiver, log)
	agg := stats.New(st, cfg.TopContributors, cfg.TopOffenders)

	b, err := bot.New(cfg, eng, agg, st, log)
	if err != nil {
		return fmt.Errorf("init bot: %w", err)
	}

	if cfg.DigestChatID != 0 {
		digest := scheduler.NewDigest(agg, b, arch, cfg.DigestCron, log)
		go func() {
			if err := digest.Run(ctx); err != nil {
				log.Error().Err(err).Msg("digest scheduler stopped")
			}
		}()
	} else {
		log.Info().Msg("DIGEST_CHAT_ID not set, weekly digest disabled")
	}

	return b.Run(ctx)
}
