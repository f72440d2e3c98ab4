package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kozaktomas/face-attendance/internal/audit"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/guard"
	"github.com/kozaktomas/face-attendance/internal/service"
	"github.com/kozaktomas/face-attendance/internal/store"
	"github.com/kozaktomas/face-attendance/internal/store/mock"
)

// colorExtractor embeds an image as its top-left pixel color, so tests
// control the query vector through the uploaded photo.
type colorExtractor struct{}

func (colorExtractor) Extract(_ context.Context, img image.Image) ([][]float32, error) {
	r, g, b, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	if r == 0 && g == 0 && b == 0 {
		return nil, face.ErrNoEmbedding
	}
	return [][]float32{{float32(r), float32(g), float32(b)}}, nil
}

type wholeFrameDetector struct{}

func (wholeFrameDetector) Detect(_ context.Context, img image.Image) ([]image.Rectangle, error) {
	return []image.Rectangle{img.Bounds()}, nil
}

// pngFramesDecoder treats the uploaded "video" as a single PNG repeated as frames.
type pngFramesDecoder struct{ frames int }

func (d pngFramesDecoder) Frames(_ context.Context, data []byte, maxFrames int) ([]image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil
	}
	out := make([]image.Image, min(d.frames, maxFrames))
	for i := range out {
		out[i] = img
	}
	return out, nil
}

type testEnv struct {
	svc     *service.Service
	store   *mock.MockStore
	logPath string
	handler *AttendanceHandler
	logs    *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	g := guard.New(guard.Options{})
	env := &testEnv{
		store:   mock.NewMockStore(),
		logPath: filepath.Join(t.TempDir(), "attendance_logs.csv"),
	}
	svc, err := service.New(service.Dependencies{
		Store:     env.store,
		Extractor: colorExtractor{},
		Detector:  wholeFrameDetector{},
		Decoder:   pngFramesDecoder{frames: 15},
		AuditLog:  audit.NewLog(env.logPath, g, nil),
		Guard:     g,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	env.svc = svc
	core, logs := observer.New(zapcore.DebugLevel)
	env.logs = logs
	env.handler = NewAttendanceHandler(svc, 5, zap.New(core))
	return env
}

// enroll stores n templates equal to the embedding of a photo of color c.
func (e *testEnv) enroll(t *testing.T, tenant, org, person string, c color.RGBA, n int) {
	t.Helper()
	vec, _ := colorExtractor{}.Extract(context.Background(), solidImage(c))
	for i := range n {
		key := store.Key{Tenant: tenant, OrganizationID: org, PersonID: person, FrameIndex: i + 1}
		if err := e.store.Put(context.Background(), key, vec[0]); err != nil {
			t.Fatal(err)
		}
	}
}

func solidImage(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(c)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartRequest builds a POST request with form fields and optional file parts.
func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".bin")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
