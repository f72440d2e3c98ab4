// Package mock provides an in-memory implementation of the store interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/store"
)

// MockStore is an in-memory store.TemplateWriter
type MockStore struct {
	mu        sync.RWMutex
	templates map[store.Key][]float32

	// Error injection
	PutError   error
	ListError  error
	CountError error

	// PutCalls counts successful Put calls
	PutCalls int
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		templates: make(map[store.Key][]float32),
	}
}

func normalizeKey(key store.Key) (store.Key, error) {
	tenant, err := store.NormalizeTenant(key.Tenant)
	if err != nil {
		return store.Key{}, err
	}
	key.Tenant = tenant
	return key, nil
}

// Put stores a copy of the embedding
func (m *MockStore) Put(ctx context.Context, key store.Key, embedding []float32) error {
	if m.PutError != nil {
		return m.PutError
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[key] = slices.Clone(embedding)
	m.PutCalls++
	return nil
}

// Templates returns a snapshot of all stored templates ordered by key
func (m *MockStore) Templates() []store.Template {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.Template, 0, len(m.templates))
	for k, v := range m.templates {
		out = append(out, store.Template{Key: k, Embedding: slices.Clone(v)})
	}
	slices.SortFunc(out, func(a, b store.Template) int {
		return cmp.Or(
			strings.Compare(a.Key.Tenant, b.Key.Tenant),
			strings.Compare(a.Key.OrganizationID, b.Key.OrganizationID),
			strings.Compare(a.Key.PersonID, b.Key.PersonID),
			cmp.Compare(a.Key.FrameIndex, b.Key.FrameIndex),
			cmp.Compare(a.Key.DetectionIndex, b.Key.DetectionIndex),
		)
	})
	return out
}

func (m *MockStore) matching(tenant, organizationID, personID string) ([]store.Template, error) {
	t, err := store.NormalizeTenant(tenant)
	if err != nil {
		return nil, err
	}
	var out []store.Template
	for _, tpl := range m.Templates() {
		if tpl.Key.Tenant != t || tpl.Key.OrganizationID != organizationID {
			continue
		}
		if personID != "" && tpl.Key.PersonID != personID {
			continue
		}
		out = append(out, tpl)
	}
	return out, nil
}

func (m *MockStore) seq(tenant, organizationID, personID string) iter.Seq2[store.Template, error] {
	return func(yield func(store.Template, error) bool) {
		if m.ListError != nil {
			yield(store.Template{}, m.ListError)
			return
		}
		templates, err := m.matching(tenant, organizationID, personID)
		if err != nil {
			yield(store.Template{}, err)
			return
		}
		for _, tpl := range templates {
			if !yield(tpl, nil) {
				return
			}
		}
	}
}

// ListTemplates yields templates of a person
func (m *MockStore) ListTemplates(ctx context.Context, tenant, organizationID, personID string) iter.Seq2[store.Template, error] {
	return m.seq(tenant, organizationID, personID)
}

// ListBucket yields every template in a bucket
func (m *MockStore) ListBucket(ctx context.Context, tenant, organizationID string) iter.Seq2[store.Template, error] {
	return m.seq(tenant, organizationID, "")
}

// HasAnyTemplate reports whether a person has templates
func (m *MockStore) HasAnyTemplate(ctx context.Context, tenant, organizationID, personID string) (bool, error) {
	n, err := m.CountTemplates(ctx, tenant, organizationID, personID)
	return n > 0, err
}

// CountTemplates counts templates of a person
func (m *MockStore) CountTemplates(ctx context.Context, tenant, organizationID, personID string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	templates, err := m.matching(tenant, organizationID, personID)
	if err != nil {
		return 0, err
	}
	return len(templates), nil
}

var _ store.TemplateWriter = (*MockStore)(nil)
