// Package face talks to the external face service that detects faces in
// frames and turns face crops into embedding vectors.
package face

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrNoEmbedding is returned when extraction produced no vector.
	ErrNoEmbedding = errors.New("no embedding extracted")

	// ErrRejected is returned when the face service refuses an image (4xx).
	// It concerns that one image only, unlike transport failures and 5xx.
	ErrRejected = errors.New("image rejected by face service")
)

// Detector finds faces in an image.
type Detector interface {
	// Detect returns face bounding boxes in image coordinates. Boxes may extend
	// past the image bounds; callers clamp them.
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// Extractor turns an image into embedding vectors. A single crop can yield
// more than one vector.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) ([][]float32, error)
}
