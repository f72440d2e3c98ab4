package video

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/bmp"
)

const bmpFileHeaderLen = 14

// ReadFrames decodes a stream of concatenated BMP files, as written by
// ffmpeg's image2pipe muxer, stopping after maxFrames frames or at EOF.
func ReadFrames(r io.Reader, maxFrames int) ([]image.Image, error) {
	var frames []image.Image
	header := make([]byte, bmpFileHeaderLen)

	for len(frames) < maxFrames {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return frames, fmt.Errorf("reading frame %d header: %w", len(frames)+1, err)
		}
		if header[0] != 'B' || header[1] != 'M' {
			return frames, fmt.Errorf("frame %d: not a BMP image", len(frames)+1)
		}

		size := int(binary.LittleEndian.Uint32(header[2:6]))
		if size <= bmpFileHeaderLen {
			return frames, fmt.Errorf("frame %d: invalid BMP size %d", len(frames)+1, size)
		}
		data := make([]byte, size)
		copy(data, header)
		if _, err := io.ReadFull(r, data[bmpFileHeaderLen:]); err != nil {
			return frames, fmt.Errorf("reading frame %d: %w", len(frames)+1, err)
		}

		img, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			return frames, fmt.Errorf("decoding frame %d: %w", len(frames)+1, err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}
