package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/audit"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/guard"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/service"
	"github.com/kozaktomas/face-attendance/internal/store"
	"github.com/kozaktomas/face-attendance/internal/verify"
	"github.com/kozaktomas/face-attendance/internal/video"
)

// app holds what every command needs once the configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *service.Service
}

// newApp loads the configuration and wires the service from it.
func newApp() (*app, error) {
	cfg := config.Load()

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Storage.EmbeddingsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating embeddings directory: %w", err)
	}

	g := guard.New(guard.Options{
		ModelWorkers:    cfg.Concurrency.ModelWorkers,
		ShardComparison: cfg.Concurrency.ShardComparisonLock,
	})
	client := face.NewClient(face.ClientOptions{
		BaseURL:           cfg.FaceService.URL,
		MinDetectionScore: cfg.Registration.MinDetectionScore,
		Logger:            logger.Named("face"),
	})

	svc, err := service.New(service.Dependencies{
		Store:     store.NewFileStore(cfg.Storage.EmbeddingsDir),
		Extractor: client,
		Detector:  client,
		Decoder:   video.NewFFmpeg(cfg.Video.FFmpegPath, logger.Named("video")),
		AuditLog:  audit.NewLog(cfg.Storage.AuditLogPath, g, logger.Named("audit")),
		Guard:     g,
		Notifier:  notify.New(cfg.Registration.NotifyURL, logger.Named("notify")),
		Logger:    logger,
		Thresholds: verify.Thresholds{
			DistanceCutoff:  cfg.Verification.DistanceCutoff,
			VerifyThreshold: cfg.Verification.VerifyThreshold,
		},
		MaxFrames: cfg.Registration.MaxFrames,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("creating service: %w", err)
	}

	logger.Debug("service ready",
		zap.String("embeddings_dir", cfg.Storage.EmbeddingsDir),
		zap.String("audit_log", cfg.Storage.AuditLogPath),
		zap.String("face_service", cfg.FaceService.URL),
		zap.Int("model_workers", g.ModelWorkers()),
		zap.Bool("sharded_comparison", cfg.Concurrency.ShardComparisonLock))

	return &app{cfg: cfg, logger: logger, service: svc}, nil
}

// Close releases the service and flushes the logger.
func (a *app) Close() {
	if err := a.service.Close(); err != nil {
		a.logger.Warn("closing service", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// embedPhoto reads an image file and extracts its face embedding.
func (a *app) embedPhoto(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	img, err := face.Decode(data)
	if err != nil {
		return nil, err
	}
	embedding, err := a.service.Embed(ctx, img)
	if err != nil {
		if errors.Is(err, face.ErrNoEmbedding) {
			return nil, fmt.Errorf("no face found in %s", path)
		}
		return nil, fmt.Errorf("extracting embedding: %w", err)
	}
	return embedding, nil
}
