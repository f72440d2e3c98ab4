package verify

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/coder/hnsw"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/guard"
	"github.com/kozaktomas/face-attendance/internal/store"
)

const (
	// graphMaxNeighbors (M) is the maximum number of neighbors per node.
	graphMaxNeighbors = 16
	// candidatesPerMatch widens the graph search so that persons with many
	// templates do not crowd the others out of the top k.
	candidatesPerMatch = 8
)

// Match is one enrolled person near the query.
type Match struct {
	PersonID string `json:"person_id"`
	// Distance is the cosine distance of the person's closest template.
	Distance float64 `json:"distance"`
	// Score and Verified are computed over all of the person's templates.
	Score    float64 `json:"weighted_sum"`
	Verified bool    `json:"verified"`
}

// Identify returns up to k enrolled persons of the bucket closest to query,
// nearest first. An empty or missing bucket yields no matches.
func (e *Engine) Identify(ctx context.Context, tenant, organizationID string, query []float32, k int) ([]Match, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return nil, err
	}
	if k < 1 || len(query) == 0 {
		return nil, nil
	}

	var matches []Match
	err = e.guard.Comparison(ctx, guard.BucketKey(tenant, organizationID), func() error {
		var err error
		matches, err = e.identify(ctx, tenant, organizationID, query, k)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("identification completed",
		zap.String("tenant", tenant),
		zap.String("organization_id", organizationID),
		zap.Int("matches", len(matches)))
	return matches, nil
}

func (e *Engine) identify(ctx context.Context, tenant, organizationID string, query []float32, k int) ([]Match, error) {
	g := hnsw.NewGraph[int]()
	g.M = graphMaxNeighbors
	g.Ml = 1.0 / float64(graphMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	// node id -> person, and person -> all embeddings for scoring
	var owners []string
	byPerson := make(map[string][][]float32)
	mismatched := 0

	for tpl, err := range e.store.ListBucket(ctx, tenant, organizationID) {
		if err != nil {
			return nil, fmt.Errorf("reading bucket: %w", err)
		}
		if len(tpl.Embedding) != len(query) {
			e.logger.Warn("template dimension mismatch",
				zap.String("template", tpl.Key.FileName()),
				zap.Int("template_dim", len(tpl.Embedding)),
				zap.Int("query_dim", len(query)))
			mismatched++
			continue
		}
		g.Add(hnsw.MakeNode(len(owners), tpl.Embedding))
		owners = append(owners, tpl.Key.PersonID)
		byPerson[tpl.Key.PersonID] = append(byPerson[tpl.Key.PersonID], tpl.Embedding)
	}
	if len(owners) == 0 {
		if mismatched > 0 {
			return nil, fmt.Errorf("%w: %d templates in bucket, query has %d dimensions",
				ErrDimensionMismatch, mismatched, len(query))
		}
		return nil, nil
	}

	best := make(map[string]float64)
	for _, n := range g.Search(query, min(len(owners), k*candidatesPerMatch)) {
		person := owners[n.Key]
		d := CosineDistance(query, n.Value)
		if cur, ok := best[person]; !ok || d < cur {
			best[person] = d
		}
	}

	matches := make([]Match, 0, len(best))
	for person, d := range best {
		score, _ := e.thresholds.Score(query, byPerson[person])
		matches = append(matches, Match{
			PersonID: person,
			Distance: d,
			Score:    score,
			Verified: e.thresholds.Verified(score),
		})
	}
	slices.SortFunc(matches, func(a, b Match) int {
		return cmp.Or(cmp.Compare(a.Distance, b.Distance), strings.Compare(a.PersonID, b.PersonID))
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
