// Package store persists enrolled face embedding templates on the local filesystem.
//
// Layout: {root}/{tenant}/company_{organization}/{person}_{frame}[-{detection}].npy
//
// The presence of a template file in an organization bucket is the only record
// that a person is enrolled; there is no separate index.
package store

import "fmt"

// TemplateExt is the file extension of a stored template.
const TemplateExt = ".npy"

// bucketPrefix is prepended to the organization id to form the bucket directory name.
const bucketPrefix = "company_"

// Key identifies a single template. DetectionIndex distinguishes several faces
// detected in the same sampled frame; 0 is the first (or only) face.
type Key struct {
	Tenant         string
	OrganizationID string
	PersonID       string
	FrameIndex     int
	DetectionIndex int
}

// FileName returns the template file name for the key (without the bucket path).
func (k Key) FileName() string {
	if k.DetectionIndex > 0 {
		return fmt.Sprintf("%s_%d-%d%s", k.PersonID, k.FrameIndex, k.DetectionIndex, TemplateExt)
	}
	return fmt.Sprintf("%s_%d%s", k.PersonID, k.FrameIndex, TemplateExt)
}

// Template is one stored embedding tied to an enrolled person and frame.
type Template struct {
	Key       Key
	Embedding []float32
}
