package video

import (
	"context"
	"errors"
	"os/exec"
	"testing"
)

func TestFFmpeg_EmptyInput(t *testing.T) {
	frames, err := NewFFmpeg("", nil).Frames(context.Background(), nil, 15)
	if err != nil || frames != nil {
		t.Errorf("expected no frames and no error, got %v, %v", frames, err)
	}
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	_, err := NewFFmpeg("/nonexistent/ffmpeg", nil).Frames(context.Background(), []byte("data"), 15)
	if err == nil || errors.Is(err, ErrUnreadable) {
		t.Errorf("expected infrastructure error, got %v", err)
	}
}

func TestFFmpeg_GarbageInput(t *testing.T) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	_, err = NewFFmpeg(path, nil).Frames(context.Background(), []byte("definitely not a video"), 15)
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", err)
	}
}
