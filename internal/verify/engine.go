// Package verify decides whether a query embedding matches a person's
// enrolled templates.
package verify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/guard"
	"github.com/kozaktomas/face-attendance/internal/store"
)

// ErrDimensionMismatch is returned when templates exist but none has the
// dimension of the query, which means the extraction model changed.
var ErrDimensionMismatch = errors.New("no template matches the query dimension")

// Request is a single verification attempt.
type Request struct {
	Tenant         string
	OrganizationID string
	PersonID       string
	Embedding      []float32
}

// Result is the verification decision. Score is never negative.
type Result struct {
	Verified bool    `json:"verified"`
	Score    float64 `json:"weighted_sum"`
	// Templates is the number of templates compared.
	Templates int `json:"templates"`
}

// Engine scores query embeddings against stored templates.
type Engine struct {
	store      store.TemplateReader
	guard      *guard.Guard
	logger     *zap.Logger
	thresholds Thresholds
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(s store.TemplateReader, g *guard.Guard, t Thresholds, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      s,
		guard:      g,
		logger:     logger,
		thresholds: t,
	}
}

// Thresholds returns the engine's decision thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Verify scores req against every template of the person.
//
// An invalid tenant returns the negative result together with store.ErrInvalidTenant.
// A missing bucket or a person without templates is a plain negative result.
// Store failures are returned as errors, never as a negative decision, and so
// is a person none of whose templates has the query's dimension.
func (e *Engine) Verify(ctx context.Context, req Request) (Result, error) {
	tenant, err := store.NormalizeTenant(req.Tenant)
	if err != nil {
		return Result{}, err
	}

	found, err := e.store.HasAnyTemplate(ctx, tenant, req.OrganizationID, req.PersonID)
	if err != nil {
		return Result{}, fmt.Errorf("checking templates: %w", err)
	}
	if !found {
		e.logger.Info("no templates enrolled",
			zap.String("tenant", tenant),
			zap.String("organization_id", req.OrganizationID),
			zap.String("person_id", req.PersonID))
		return Result{}, nil
	}

	var result Result
	err = e.guard.Comparison(ctx, guard.BucketKey(tenant, req.OrganizationID), func() error {
		var err error
		result, err = e.compare(ctx, tenant, req)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("verification completed",
		zap.String("tenant", tenant),
		zap.String("organization_id", req.OrganizationID),
		zap.String("person_id", req.PersonID),
		zap.Int("templates", result.Templates),
		zap.Float64("score", result.Score),
		zap.Bool("verified", result.Verified))
	return result, nil
}

func (e *Engine) compare(ctx context.Context, tenant string, req Request) (Result, error) {
	var result Result
	mismatched := 0
	for tpl, err := range e.store.ListTemplates(ctx, tenant, req.OrganizationID, req.PersonID) {
		if err != nil {
			return Result{}, fmt.Errorf("reading templates: %w", err)
		}
		if len(tpl.Embedding) != len(req.Embedding) {
			e.logger.Warn("template dimension mismatch",
				zap.String("template", tpl.Key.FileName()),
				zap.Int("template_dim", len(tpl.Embedding)),
				zap.Int("query_dim", len(req.Embedding)))
			mismatched++
			continue
		}
		d := CosineDistance(req.Embedding, tpl.Embedding)
		e.logger.Debug("template distance",
			zap.String("template", tpl.Key.FileName()),
			zap.Float64("distance", d))
		result.Score += e.thresholds.Contribution(d)
		result.Templates++
	}
	if result.Templates == 0 && mismatched > 0 {
		return Result{}, fmt.Errorf("%w: %d templates of %s, query has %d dimensions",
			ErrDimensionMismatch, mismatched, req.PersonID, len(req.Embedding))
	}
	result.Verified = e.thresholds.Verified(result.Score)
	return result, nil
}
