package store

import (
	"context"
	"iter"
)

// TemplateReader provides read-only access to enrolled templates
type TemplateReader interface {
	// ListTemplates lazily yields every template of a person. Absence of the
	// bucket or the person yields nothing; only unexpected failures yield an error.
	ListTemplates(ctx context.Context, tenant, organizationID, personID string) iter.Seq2[Template, error]
	// ListBucket lazily yields every template in an organization bucket
	ListBucket(ctx context.Context, tenant, organizationID string) iter.Seq2[Template, error]
	// HasAnyTemplate reports whether the person has at least one template, without loading vectors
	HasAnyTemplate(ctx context.Context, tenant, organizationID, personID string) (bool, error)
	// CountTemplates returns the number of templates stored for a person
	CountTemplates(ctx context.Context, tenant, organizationID, personID string) (int, error)
}

// TemplateWriter provides write access to enrolled templates
type TemplateWriter interface {
	TemplateReader

	// Put writes a template under its key, creating namespace buckets as needed
	Put(ctx context.Context, key Key, embedding []float32) error
}
