// Package register turns a short enrollment video into stored face templates.
package register

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/guard"
	"github.com/kozaktomas/face-attendance/internal/store"
	"github.com/kozaktomas/face-attendance/internal/video"
)

// DefaultMaxFrames is the number of leading frames sampled from a video.
const DefaultMaxFrames = 15

var (
	// ErrNoValidFrames is returned when the video yields no frames.
	ErrNoValidFrames = errors.New("no valid frames found in video")

	// ErrNoFacesDetected is returned when no template could be stored.
	ErrNoFacesDetected = errors.New("no faces detected")
)

// Request identifies the person being enrolled.
type Request struct {
	Tenant         string
	OrganizationID string
	PersonID       string
}

// Result summarizes a registration.
type Result struct {
	// PassID identifies this registration run in logs.
	PassID string `json:"pass_id"`
	// Saved is the number of templates written.
	Saved int `json:"embeddings_saved"`
	// Frames is the number of frames sampled from the video.
	Frames int `json:"frames"`
}

// Progress is reported after every processed frame.
type Progress struct {
	Frame  int
	Frames int
	Saved  int
}

// Options configures a Pipeline.
type Options struct {
	MaxFrames int
	Logger    *zap.Logger
	// OnProgress, if set, is called after each frame.
	OnProgress func(Progress)
}

// Pipeline samples frames, detects and crops faces, extracts embeddings and stores them.
type Pipeline struct {
	store     store.TemplateWriter
	decoder   video.Decoder
	detector  face.Detector
	extractor face.Extractor
	guard     *guard.Guard

	maxFrames  int
	logger     *zap.Logger
	onProgress func(Progress)
}

// NewPipeline creates a registration pipeline.
func NewPipeline(s store.TemplateWriter, dec video.Decoder, det face.Detector, ext face.Extractor, g *guard.Guard, opts Options) *Pipeline {
	p := &Pipeline{
		store:      s,
		decoder:    dec,
		detector:   det,
		extractor:  ext,
		guard:      g,
		maxFrames:  opts.MaxFrames,
		logger:     opts.Logger,
		onProgress: opts.OnProgress,
	}
	if p.maxFrames < 1 {
		p.maxFrames = DefaultMaxFrames
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// WithProgress returns a copy of the pipeline reporting to fn.
func (p *Pipeline) WithProgress(fn func(Progress)) *Pipeline {
	cp := *p
	cp.onProgress = fn
	return &cp
}

// RegisterFromVideo enrolls the person from the video bytes.
//
// Templates are stored as frame i+1 of the sampled frames; when a frame holds
// more than one face or a crop yields more than one vector, each gets its own
// detection index. A frame the face service rejects, or a crop that yields no
// vector, is skipped. Face service outages and store failures abort the
// registration.
func (p *Pipeline) RegisterFromVideo(ctx context.Context, req Request, videoData []byte) (Result, error) {
	if err := store.ValidateKey(req.Tenant, req.OrganizationID, req.PersonID); err != nil {
		return Result{}, err
	}
	tenant, _ := store.NormalizeTenant(req.Tenant)
	result := Result{PassID: uuid.NewString()}
	logger := p.logger.With(
		zap.String("pass_id", result.PassID),
		zap.String("tenant", tenant),
		zap.String("organization_id", req.OrganizationID),
		zap.String("person_id", req.PersonID))

	frames, err := p.decoder.Frames(ctx, videoData, p.maxFrames)
	if err != nil {
		if errors.Is(err, video.ErrUnreadable) {
			return result, fmt.Errorf("%w: %w", ErrNoValidFrames, err)
		}
		return result, fmt.Errorf("decoding video: %w", err)
	}
	if len(frames) > p.maxFrames {
		frames = frames[:p.maxFrames]
	}
	if len(frames) == 0 {
		return result, ErrNoValidFrames
	}
	result.Frames = len(frames)

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		boxes, err := p.detector.Detect(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if !skippable(err) {
				return result, fmt.Errorf("detecting faces in frame %d: %w", i+1, err)
			}
			logger.Warn("frame skipped", zap.Int("frame", i+1), zap.Error(err))
			boxes = nil
		}

		detection := 0
		for _, box := range boxes {
			crop, ok := face.Crop(frame, box)
			if !ok {
				continue
			}

			var vectors [][]float32
			err := p.guard.Model(ctx, func() error {
				var err error
				vectors, err = p.extractor.Extract(ctx, crop)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				if !skippable(err) {
					return result, fmt.Errorf("extracting embedding in frame %d: %w", i+1, err)
				}
				logger.Warn("face skipped", zap.Int("frame", i+1), zap.Error(err))
				continue
			}

			for _, vec := range vectors {
				if len(vec) == 0 {
					continue
				}
				key := store.Key{
					Tenant:         tenant,
					OrganizationID: req.OrganizationID,
					PersonID:       req.PersonID,
					FrameIndex:     i + 1,
					DetectionIndex: detection,
				}
				if err := p.store.Put(ctx, key, vec); err != nil {
					return result, fmt.Errorf("storing template %s: %w", key.FileName(), err)
				}
				detection++
				result.Saved++
			}
		}

		if p.onProgress != nil {
			p.onProgress(Progress{Frame: i + 1, Frames: len(frames), Saved: result.Saved})
		}
	}

	if result.Saved == 0 {
		logger.Info("registration stored nothing", zap.Int("frames", result.Frames))
		return result, ErrNoFacesDetected
	}

	logger.Info("registration completed", zap.Int("frames", result.Frames), zap.Int("saved", result.Saved))
	return result, nil
}

// skippable reports whether err concerns a single frame or crop rather than
// the face service as a whole.
func skippable(err error) bool {
	return errors.Is(err, face.ErrNoEmbedding) || errors.Is(err, face.ErrRejected)
}
