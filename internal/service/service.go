// Package service wires the template store, verification engine,
// registration pipeline and audit log into one owned context.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/audit"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/guard"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/register"
	"github.com/kozaktomas/face-attendance/internal/store"
	"github.com/kozaktomas/face-attendance/internal/verify"
	"github.com/kozaktomas/face-attendance/internal/video"
)

// ErrClosed is returned by operations on a closed Service.
var ErrClosed = errors.New("service closed")

// Dependencies are the collaborators a Service is built from. Store,
// Extractor, Detector, Decoder and AuditLog are required.
type Dependencies struct {
	Store     store.TemplateWriter
	Extractor face.Extractor
	Detector  face.Detector
	Decoder   video.Decoder
	AuditLog  *audit.Log
	Guard     *guard.Guard
	Notifier  notify.Notifier
	Logger    *zap.Logger

	Thresholds verify.Thresholds
	MaxFrames  int
}

// Service is the single owner of the shared resources. Every entry point
// (HTTP handlers, CLI commands) goes through it.
type Service struct {
	store     store.TemplateWriter
	extractor face.Extractor
	guard     *guard.Guard
	audit     *audit.Log
	notifier  notify.Notifier
	logger    *zap.Logger

	engine   *verify.Engine
	pipeline *register.Pipeline

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Service.
func New(deps Dependencies) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("service: store is required")
	case deps.Extractor == nil:
		return nil, errors.New("service: extractor is required")
	case deps.Detector == nil:
		return nil, errors.New("service: detector is required")
	case deps.Decoder == nil:
		return nil, errors.New("service: video decoder is required")
	case deps.AuditLog == nil:
		return nil, errors.New("service: audit log is required")
	}
	if deps.Guard == nil {
		deps.Guard = guard.New(guard.Options{})
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Thresholds == (verify.Thresholds{}) {
		deps.Thresholds = verify.DefaultThresholds()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:     deps.Store,
		extractor: deps.Extractor,
		guard:     deps.Guard,
		audit:     deps.AuditLog,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		engine:    verify.NewEngine(deps.Store, deps.Guard, deps.Thresholds, deps.Logger.Named("verify")),
		pipeline: register.NewPipeline(deps.Store, deps.Decoder, deps.Detector, deps.Extractor, deps.Guard, register.Options{
			MaxFrames: deps.MaxFrames,
			Logger:    deps.Logger.Named("register"),
		}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Close cancels in-flight work. It is safe to call more than once.
func (s *Service) Close() error {
	s.cancel()
	return nil
}

// Thresholds returns the verification thresholds in use.
func (s *Service) Thresholds() verify.Thresholds {
	return s.engine.Thresholds()
}

// bind derives a context that ends when either ctx or the service ends.
func (s *Service) bind(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if s.ctx.Err() != nil {
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

// Embed extracts the embedding of the first face found in a whole photo.
func (s *Service) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	var vectors [][]float32
	err = s.guard.Model(ctx, func() error {
		var err error
		vectors, err = s.extractor.Extract(ctx, img)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("extracting embedding: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, face.ErrNoEmbedding
	}
	return vectors[0], nil
}

// Verify scores the embedding against the person's templates.
func (s *Service) Verify(ctx context.Context, tenant, organizationID, personID string, embedding []float32) (verify.Result, error) {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return verify.Result{}, err
	}
	defer done()

	return s.engine.Verify(ctx, verify.Request{
		Tenant:         tenant,
		OrganizationID: organizationID,
		PersonID:       personID,
		Embedding:      embedding,
	})
}

// IsRegistered reports whether the person has at least one template.
// Any error, including an invalid tenant, reads as not registered.
func (s *Service) IsRegistered(ctx context.Context, tenant, organizationID, personID string) bool {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return false
	}
	defer done()

	t, err := store.NormalizeTenant(tenant)
	if err != nil {
		return false
	}
	ok, err := s.store.HasAnyTemplate(ctx, t, organizationID, personID)
	if err != nil {
		s.logger.Warn("registration check failed",
			zap.String("tenant", t),
			zap.String("organization_id", organizationID),
			zap.String("person_id", personID),
			zap.Error(err))
		return false
	}
	return ok
}

// TemplateCount returns the number of stored templates of a person.
func (s *Service) TemplateCount(ctx context.Context, tenant, organizationID, personID string) (int, error) {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return 0, err
	}
	defer done()

	t, err := store.NormalizeTenant(tenant)
	if err != nil {
		return 0, err
	}
	return s.store.CountTemplates(ctx, t, organizationID, personID)
}

// RegistrationRequest describes an enrollment.
type RegistrationRequest struct {
	Tenant         string
	OrganizationID string
	PersonID       string
	PersonName     string
}

// RegisterFromVideo enrolls a person from an uploaded video. A successful
// registration is reported to the notifier; a notifier failure is logged only.
func (s *Service) RegisterFromVideo(ctx context.Context, req RegistrationRequest, videoData []byte, onProgress func(register.Progress)) (register.Result, error) {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return register.Result{}, err
	}
	defer done()

	pipeline := s.pipeline
	if onProgress != nil {
		pipeline = pipeline.WithProgress(onProgress)
	}
	res, err := pipeline.RegisterFromVideo(ctx, register.Request{
		Tenant:         req.Tenant,
		OrganizationID: req.OrganizationID,
		PersonID:       req.PersonID,
	}, videoData)
	if err != nil {
		return res, err
	}

	tenant, _ := store.NormalizeTenant(req.Tenant)
	if err := s.notifier.Registered(ctx, notify.Registration{
		PersonID:        req.PersonID,
		PersonName:      req.PersonName,
		OrganizationID:  req.OrganizationID,
		Tenant:          tenant,
		EmbeddingsSaved: res.Saved,
		Status:          notify.StatusSuccess,
	}); err != nil {
		s.logger.Warn("registration notification failed", zap.String("person_id", req.PersonID), zap.Error(err))
	}
	return res, nil
}

// RecordAttempt appends an audit record.
func (s *Service) RecordAttempt(ctx context.Context, rec audit.Record) error {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return err
	}
	defer done()

	if t, err := store.NormalizeTenant(rec.Tenant); err == nil {
		rec.Tenant = t
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.Error("failed to write audit record", zap.String("person_id", rec.PersonID), zap.Error(err))
		return err
	}
	return nil
}

// Identify returns the enrolled persons of a bucket nearest to the embedding.
func (s *Service) Identify(ctx context.Context, tenant, organizationID string, embedding []float32, limit int) ([]verify.Match, error) {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	return s.engine.Identify(ctx, tenant, organizationID, embedding, limit)
}
