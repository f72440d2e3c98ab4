package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const defaultFFmpegPath = "ffmpeg"

// FFmpeg decodes videos by running an external ffmpeg binary.
type FFmpeg struct {
	path   string
	logger *zap.Logger
}

// NewFFmpeg creates a decoder using the ffmpeg binary at path (looked up in PATH when bare).
func NewFFmpeg(path string, logger *zap.Logger) *FFmpeg {
	if path == "" {
		path = defaultFFmpegPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpeg{path: path, logger: logger}
}

// Frames implements Decoder. The video is spooled to a temporary file because
// some containers keep their index at the end and cannot be read from a pipe.
func (f *FFmpeg) Frames(ctx context.Context, video []byte, maxFrames int) ([]image.Image, error) {
	if maxFrames < 1 || len(video) == 0 {
		return nil, nil
	}

	tmp, err := os.CreateTemp("", "registration-*.video")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(video); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.path, //nolint:gosec // binary path is from trusted config
		"-hide_banner", "-loglevel", "error",
		"-i", tmp.Name(),
		"-frames:v", strconv.Itoa(maxFrames),
		"-f", "image2pipe", "-vcodec", "bmp", "-pix_fmt", "bgr24",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	frames, readErr := ReadFrames(stdout, maxFrames)
	// drain so ffmpeg is never blocked on a full pipe
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && len(frames) == 0 {
		msg := strings.TrimSpace(stderr.String())
		f.logger.Info("ffmpeg could not decode upload", zap.Int("exit_code", exitErr.ExitCode()), zap.String("stderr", msg))
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, msg)
	}
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, fmt.Errorf("running ffmpeg: %w", waitErr)
	}
	if readErr != nil {
		if len(frames) == 0 {
			return nil, fmt.Errorf("%w: %w", ErrUnreadable, readErr)
		}
		f.logger.Warn("truncated frame stream", zap.Int("frames", len(frames)), zap.Error(readErr))
	}

	f.logger.Debug("sampled video frames", zap.Int("frames", len(frames)), zap.Int("bytes", len(video)))
	return frames, nil
}

var _ Decoder = (*FFmpeg)(nil)
