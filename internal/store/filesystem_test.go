package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func collect(t *testing.T, seq func(func(Template, error) bool)) []Template {
	t.Helper()
	var out []Template
	for tpl, err := range seq {
		if err != nil {
			t.Fatalf("unexpected iteration error: %v", err)
		}
		out = append(out, tpl)
	}
	return out
}

func TestFileStore_RoundTripNormalizesTenant(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()
	v := []float32{0.25, -1.5, 3.125, 0}

	if err := s.Put(ctx, Key{Tenant: "AcmeCo ", OrganizationID: "7", PersonID: "555", FrameIndex: 3}, v); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got := collect(t, s.ListTemplates(ctx, "acmeco", "7", "555"))
	if len(got) != 1 {
		t.Fatalf("expected 1 template, got %d", len(got))
	}
	if got[0].Key.FrameIndex != 3 || got[0].Key.PersonID != "555" || got[0].Key.Tenant != "acmeco" {
		t.Errorf("unexpected key %+v", got[0].Key)
	}
	if len(got[0].Embedding) != len(v) {
		t.Fatalf("expected %d values, got %d", len(v), len(got[0].Embedding))
	}
	for i := range v {
		if math.Abs(float64(got[0].Embedding[i]-v[i])) > 1e-6 {
			t.Errorf("value %d: got %v, want %v", i, got[0].Embedding[i], v[i])
		}
	}

	expected := filepath.Join(s.Root(), "acmeco", "company_7", "555_3.npy")
	if _, err := os.Stat(expected); err != nil {
		t.Errorf("expected template at %s: %v", expected, err)
	}
}

func TestFileStore_MissingBucketIsEmpty(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	if got := collect(t, s.ListTemplates(ctx, "tenant", "42", "person")); len(got) != 0 {
		t.Errorf("expected no templates, got %d", len(got))
	}
	has, err := s.HasAnyTemplate(ctx, "tenant", "42", "person")
	if err != nil {
		t.Fatalf("HasAnyTemplate failed: %v", err)
	}
	if has {
		t.Error("expected HasAnyTemplate to be false")
	}
}

func TestFileStore_PersonPrefixIsNotAMatch(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()
	v := []float32{1, 2, 3}

	for _, key := range []Key{
		{Tenant: "t", OrganizationID: "1", PersonID: "55", FrameIndex: 1},
		{Tenant: "t", OrganizationID: "1", PersonID: "55", FrameIndex: 2},
		{Tenant: "t", OrganizationID: "1", PersonID: "55_1", FrameIndex: 1},
		{Tenant: "t", OrganizationID: "1", PersonID: "555", FrameIndex: 1},
	} {
		if err := s.Put(ctx, key, v); err != nil {
			t.Fatalf("Put(%+v) failed: %v", key, err)
		}
	}

	n, err := s.CountTemplates(ctx, "t", "1", "55")
	if err != nil {
		t.Fatalf("CountTemplates failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 templates for person 55, got %d", n)
	}

	all := collect(t, s.ListBucket(ctx, "T", "1"))
	if len(all) != 4 {
		t.Errorf("expected 4 templates in bucket, got %d", len(all))
	}
}

func TestFileStore_MultipleDetectionsPerFrameDoNotCollide(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	for det := range 3 {
		key := Key{Tenant: "t", OrganizationID: "1", PersonID: "p", FrameIndex: 4, DetectionIndex: det}
		if err := s.Put(ctx, key, []float32{float32(det + 1)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got := collect(t, s.ListTemplates(ctx, "t", "1", "p"))
	if len(got) != 3 {
		t.Fatalf("expected 3 templates, got %d", len(got))
	}
	for i, tpl := range got {
		if tpl.Key.DetectionIndex != i {
			t.Errorf("template %d: detection index %d", i, tpl.Key.DetectionIndex)
		}
		if tpl.Embedding[0] != float32(i+1) {
			t.Errorf("template %d: value %v", i, tpl.Embedding[0])
		}
	}
}

func TestFileStore_InvalidTenant(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	for _, tenant := range []string{"", "   ", "null", "NULL", " Null "} {
		err := s.Put(ctx, Key{Tenant: tenant, OrganizationID: "1", PersonID: "p"}, []float32{1})
		if !errors.Is(err, ErrInvalidTenant) {
			t.Errorf("Put with tenant %q: expected ErrInvalidTenant, got %v", tenant, err)
		}
		if _, err := s.HasAnyTemplate(ctx, tenant, "1", "p"); !errors.Is(err, ErrInvalidTenant) {
			t.Errorf("HasAnyTemplate with tenant %q: expected ErrInvalidTenant, got %v", tenant, err)
		}
	}
}

func TestFileStore_InvalidKey(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	tests := []struct {
		name string
		key  Key
		vec  []float32
	}{
		{"traversal org", Key{Tenant: "t", OrganizationID: "../x", PersonID: "p"}, []float32{1}},
		{"empty person", Key{Tenant: "t", OrganizationID: "1", PersonID: ""}, []float32{1}},
		{"slash person", Key{Tenant: "t", OrganizationID: "1", PersonID: "a/b"}, []float32{1}},
		{"negative frame", Key{Tenant: "t", OrganizationID: "1", PersonID: "p", FrameIndex: -1}, []float32{1}},
		{"empty vector", Key{Tenant: "t", OrganizationID: "1", PersonID: "p"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Put(ctx, tt.key, tt.vec); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestFileStore_CorruptTemplateIsStoreIOError(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	bucket, err := s.BucketPath("t", "1")
	if err != nil {
		t.Fatalf("BucketPath failed: %v", err)
	}
	if err := os.MkdirAll(bucket, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bucket, "p_1.npy"), []byte("not numpy"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotErr error
	for _, err := range s.ListTemplates(ctx, "t", "1", "p") {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrStoreIO) {
		t.Errorf("expected ErrStoreIO, got %v", gotErr)
	}
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()
	if err := s.Put(ctx, Key{Tenant: "t", OrganizationID: "1", PersonID: "p", FrameIndex: 1}, []float32{1}); err != nil {
		t.Fatal(err)
	}
	bucket, _ := s.BucketPath("t", "1")
	for _, name := range []string{"p_1.txt", ".abc.tmp", "p_x.npy", "p_01.npy", "p_.npy"} {
		if err := os.WriteFile(filepath.Join(bucket, name), []byte("junk"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if got := collect(t, s.ListTemplates(ctx, "t", "1", "p")); len(got) != 1 {
		t.Errorf("expected 1 template, got %d", len(got))
	}
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		name   string
		ok     bool
		person string
		frame  int
		det    int
	}{
		{"555_3.npy", true, "555", 3, 0},
		{"555_3-2.npy", true, "555", 3, 2},
		{"55_1_3.npy", true, "55_1", 3, 0},
		{"user_name_10-1.npy", true, "user_name", 10, 1},
		{"555_3-0.npy", false, "", 0, 0},
		{"555.npy", false, "", 0, 0},
		{"_3.npy", false, "", 0, 0},
		{"555_3.bin", false, "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := ParseFileName(tt.name)
			if ok != tt.ok {
				t.Fatalf("ParseFileName(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
			if !ok {
				return
			}
			if key.PersonID != tt.person || key.FrameIndex != tt.frame || key.DetectionIndex != tt.det {
				t.Errorf("ParseFileName(%q) = %+v", tt.name, key)
			}
		})
	}
}
