// Package video samples still frames from an uploaded registration video.
package video

import (
	"context"
	"errors"
	"image"
)

// ErrUnreadable is returned when the upload is not a video the decoder understands.
var ErrUnreadable = errors.New("unreadable video")

// Decoder returns up to maxFrames consecutive frames from the start of a video.
type Decoder interface {
	Frames(ctx context.Context, video []byte, maxFrames int) ([]image.Image, error)
}
