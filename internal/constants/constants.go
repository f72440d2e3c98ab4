// Package constants provides shared constants used across the codebase.
package constants

// Upload constants
const (
	// MaxPhotoUploadSize is the maximum size of a verification photo in bytes (20MB)
	MaxPhotoUploadSize = 20 << 20

	// MaxVideoUploadSize is the maximum size of a registration video in bytes (100MB)
	MaxVideoUploadSize = 100 << 20

	// MultipartMemory is how much of a multipart form is kept in memory before spilling to disk
	MultipartMemory = 32 << 20
)

// Identification constants
const (
	// MaxIdentifyLimit caps the number of persons returned by an identification
	MaxIdentifyLimit = 50
)

// Server constants
const (
	// DefaultWebPort is the port the HTTP API listens on
	DefaultWebPort = 8080

	// DefaultWebHost is the address the HTTP API binds to
	DefaultWebHost = "0.0.0.0"
)
