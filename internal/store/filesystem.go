package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FileStore is a TemplateWriter backed by a directory tree.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at dir. The directory is created lazily on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Root returns the store root directory.
func (s *FileStore) Root() string {
	return s.root
}

// BucketPath returns the directory of an organization bucket.
func (s *FileStore) BucketPath(tenant, organizationID string) (string, error) {
	t, err := NormalizeTenant(tenant)
	if err != nil {
		return "", err
	}
	if err := validateIDs(organizationID, "", true); err != nil {
		return "", err
	}
	return filepath.Join(s.root, t, bucketPrefix+organizationID), nil
}

// Put writes the embedding atomically: the blob is written to a temporary file
// in the bucket and renamed into place, so readers never see a partial template.
func (s *FileStore) Put(ctx context.Context, key Key, embedding []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bucket, err := s.BucketPath(key.Tenant, key.OrganizationID)
	if err != nil {
		return err
	}
	if err := validateIDs(key.OrganizationID, key.PersonID, false); err != nil {
		return err
	}
	if key.FrameIndex < 0 || key.DetectionIndex < 0 {
		return fmt.Errorf("%w: negative frame or detection index", ErrInvalidKey)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrInvalidKey)
	}

	if err := os.MkdirAll(bucket, dirPerm); err != nil {
		return fmt.Errorf("%w: creating bucket %s: %w", ErrStoreIO, bucket, err)
	}

	target := filepath.Join(bucket, key.FileName())
	tmp := filepath.Join(bucket, "."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm) //nolint:gosec // path built from validated segments
	if err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrStoreIO, tmp, err)
	}
	if err := writeNPY(f, embedding); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: writing %s: %w", ErrStoreIO, target, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: closing %s: %w", ErrStoreIO, target, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: renaming into %s: %w", ErrStoreIO, target, err)
	}
	return nil
}

// ListTemplates yields the templates of one person ordered by frame and detection index.
func (s *FileStore) ListTemplates(ctx context.Context, tenant, organizationID, personID string) iter.Seq2[Template, error] {
	if personID == "" {
		return errSeq(fmt.Errorf("%w: empty person id", ErrInvalidKey))
	}
	return s.list(ctx, tenant, organizationID, personID)
}

// ListBucket yields every template in an organization bucket.
func (s *FileStore) ListBucket(ctx context.Context, tenant, organizationID string) iter.Seq2[Template, error] {
	return s.list(ctx, tenant, organizationID, "")
}

// HasAnyTemplate reports whether a person has at least one template file.
func (s *FileStore) HasAnyTemplate(ctx context.Context, tenant, organizationID, personID string) (bool, error) {
	n, err := s.CountTemplates(ctx, tenant, organizationID, personID)
	return n > 0, err
}

// CountTemplates counts the template files of a person without reading them.
func (s *FileStore) CountTemplates(ctx context.Context, tenant, organizationID, personID string) (int, error) {
	if personID == "" {
		return 0, fmt.Errorf("%w: empty person id", ErrInvalidKey)
	}
	entries, _, err := s.scan(ctx, tenant, organizationID, personID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *FileStore) list(ctx context.Context, tenant, organizationID, personID string) iter.Seq2[Template, error] {
	return func(yield func(Template, error) bool) {
		entries, bucket, err := s.scan(ctx, tenant, organizationID, personID)
		if err != nil {
			yield(Template{}, err)
			return
		}
		for _, key := range entries {
			if err := ctx.Err(); err != nil {
				yield(Template{}, err)
				return
			}
			vec, err := readTemplateFile(filepath.Join(bucket, key.FileName()))
			if err != nil {
				yield(Template{}, fmt.Errorf("%w: reading %s: %w", ErrStoreIO, key.FileName(), err))
				return
			}
			if !yield(Template{Key: key, Embedding: vec}, nil) {
				return
			}
		}
	}
}

// scan lists template keys in a bucket, optionally restricted to one person.
// A missing bucket is not an error.
func (s *FileStore) scan(ctx context.Context, tenant, organizationID, personID string) ([]Key, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	bucket, err := s.BucketPath(tenant, organizationID)
	if err != nil {
		return nil, "", err
	}
	if err := validateIDs(organizationID, personID, true); err != nil {
		return nil, "", err
	}
	normalizedTenant, _ := NormalizeTenant(tenant)

	dirEntries, err := os.ReadDir(bucket)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, bucket, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: listing %s: %w", ErrStoreIO, bucket, err)
	}

	var keys []Key
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		key, ok := ParseFileName(de.Name())
		if !ok {
			continue
		}
		if personID != "" && key.PersonID != personID {
			continue
		}
		key.Tenant = normalizedTenant
		key.OrganizationID = organizationID
		keys = append(keys, key)
	}

	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(
			strings.Compare(a.PersonID, b.PersonID),
			cmp.Compare(a.FrameIndex, b.FrameIndex),
			cmp.Compare(a.DetectionIndex, b.DetectionIndex),
		)
	})
	return keys, bucket, nil
}

// ParseFileName parses "{person}_{frame}.npy" or "{person}_{frame}-{detection}.npy".
// The person id is everything before the last underscore, so ids that contain
// underscores themselves are never confused with a shorter id.
func ParseFileName(name string) (Key, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, TemplateExt) {
		return Key{}, false
	}
	base := strings.TrimSuffix(name, TemplateExt)
	sep := strings.LastIndexByte(base, '_')
	if sep <= 0 || sep == len(base)-1 {
		return Key{}, false
	}

	person, index := base[:sep], base[sep+1:]
	frameStr, detStr, hasDet := strings.Cut(index, "-")

	frame, err := strconv.Atoi(frameStr)
	if err != nil || frame < 0 {
		return Key{}, false
	}
	det := 0
	if hasDet {
		det, err = strconv.Atoi(detStr)
		if err != nil || det <= 0 {
			return Key{}, false
		}
	}
	key := Key{PersonID: person, FrameIndex: frame, DetectionIndex: det}
	// Only canonical names round-trip through Key.FileName.
	if key.FileName() != name {
		return Key{}, false
	}
	return key, true
}

func readTemplateFile(path string) ([]float32, error) {
	f, err := os.Open(path) //nolint:gosec // path built from validated segments
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readNPY(f)
}

func errSeq(err error) iter.Seq2[Template, error] {
	return func(yield func(Template, error) bool) {
		yield(Template{}, err)
	}
}
