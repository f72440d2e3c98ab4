package service

import (
	"context"
	"encoding/csv"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/audit"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/guard"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/register"
	"github.com/kozaktomas/face-attendance/internal/store"
	"github.com/kozaktomas/face-attendance/internal/store/mock"
)

type staticExtractor struct {
	vector []float32
	err    error
}

func (e staticExtractor) Extract(context.Context, image.Image) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return [][]float32{e.vector}, nil
}

type wholeFrameDetector struct{}

func (wholeFrameDetector) Detect(_ context.Context, img image.Image) ([]image.Rectangle, error) {
	return []image.Rectangle{img.Bounds()}, nil
}

type framesDecoder int

func (n framesDecoder) Frames(context.Context, []byte, int) ([]image.Image, error) {
	out := make([]image.Image, int(n))
	for i := range out {
		out[i] = image.NewRGBA(image.Rect(0, 0, 20, 20))
	}
	return out, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	regs []notify.Registration
	err  error
}

func (n *recordingNotifier) Registered(_ context.Context, reg notify.Registration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.regs = append(n.regs, reg)
	return n.err
}

type fixture struct {
	svc      *Service
	store    *mock.MockStore
	notifier *recordingNotifier
	logPath  string
}

func newFixture(t *testing.T, vector []float32) *fixture {
	t.Helper()
	g := guard.New(guard.Options{})
	logPath := filepath.Join(t.TempDir(), "attendance_logs.csv")
	f := &fixture{
		store:    mock.NewMockStore(),
		notifier: &recordingNotifier{},
		logPath:  logPath,
	}
	svc, err := New(Dependencies{
		Store:     f.store,
		Extractor: staticExtractor{vector: vector},
		Detector:  wholeFrameDetector{},
		Decoder:   framesDecoder(15),
		AuditLog:  audit.NewLog(logPath, g, nil),
		Guard:     g,
		Notifier:  f.notifier,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	f.svc = svc
	return f
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Dependencies{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestService_RegisterThenVerify(t *testing.T) {
	f := newFixture(t, []float32{0.3, 0.4, 0.5})
	ctx := context.Background()

	if f.svc.IsRegistered(ctx, "AcmeCo", "7", "555") {
		t.Fatal("person must not be registered before enrollment")
	}

	res, err := f.svc.RegisterFromVideo(ctx, RegistrationRequest{
		Tenant: "AcmeCo", OrganizationID: "7", PersonID: "555", PersonName: "Jana",
	}, []byte("video"), nil)
	if err != nil {
		t.Fatalf("RegisterFromVideo() error = %v", err)
	}
	if res.Saved != 15 {
		t.Errorf("expected 15 templates, got %d", res.Saved)
	}

	if !f.svc.IsRegistered(ctx, " acmeco ", "7", "555") {
		t.Error("expected person to be registered")
	}
	if n, err := f.svc.TemplateCount(ctx, "ACMECO", "7", "555"); err != nil || n != 15 {
		t.Errorf("TemplateCount() = %d, %v", n, err)
	}

	emb, err := f.svc.Embed(ctx, image.NewRGBA(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	result, err := f.svc.Verify(ctx, "acmeco", "7", "555", emb)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !result.Verified || result.Score < 14.99 {
		t.Errorf("expected verified with score 15, got %+v", result)
	}

	if len(f.notifier.regs) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.regs))
	}
	if reg := f.notifier.regs[0]; reg.Tenant != "acmeco" || reg.EmbeddingsSaved != 15 || reg.PersonName != "Jana" {
		t.Errorf("unexpected notification %+v", reg)
	}
}

func TestService_NotifierFailureDoesNotFailRegistration(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	f.notifier.err = errors.New("logger down")

	res, err := f.svc.RegisterFromVideo(context.Background(), RegistrationRequest{
		Tenant: "acmeco", OrganizationID: "7", PersonID: "555",
	}, []byte("video"), nil)
	if err != nil {
		t.Fatalf("RegisterFromVideo() error = %v", err)
	}
	if res.Saved == 0 {
		t.Error("expected templates to be saved")
	}
}

func TestService_RegisterProgress(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	var frames []int
	_, err := f.svc.RegisterFromVideo(context.Background(), RegistrationRequest{
		Tenant: "acmeco", OrganizationID: "7", PersonID: "555",
	}, []byte("video"), func(p register.Progress) { frames = append(frames, p.Frame) })
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 15 || frames[14] != 15 {
		t.Errorf("unexpected progress frames %v", frames)
	}
}

func TestService_IsRegisteredFalseOnAnyError(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	ctx := context.Background()
	if err := f.store.Put(ctx, store.Key{Tenant: "acmeco", OrganizationID: "7", PersonID: "555", FrameIndex: 1}, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}

	if f.svc.IsRegistered(ctx, "null", "7", "555") {
		t.Error("invalid tenant must read as not registered")
	}
	f.store.CountError = errors.New("disk gone")
	if f.svc.IsRegistered(ctx, "acmeco", "7", "555") {
		t.Error("store failure must read as not registered")
	}
}

func TestService_VerifyInvalidTenant(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	res, err := f.svc.Verify(context.Background(), "", "7", "555", []float32{1, 0})
	if !errors.Is(err, store.ErrInvalidTenant) {
		t.Errorf("expected ErrInvalidTenant, got %v", err)
	}
	if res.Verified || res.Score != 0 {
		t.Errorf("expected negative result, got %+v", res)
	}
}

func TestService_EmbedNoFace(t *testing.T) {
	g := guard.New(guard.Options{})
	svc, err := New(Dependencies{
		Store:     mock.NewMockStore(),
		Extractor: staticExtractor{err: face.ErrNoEmbedding},
		Detector:  wholeFrameDetector{},
		Decoder:   framesDecoder(1),
		AuditLog:  audit.NewLog(filepath.Join(t.TempDir(), "log.csv"), g, nil),
		Guard:     g,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	if _, err := svc.Embed(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4))); !errors.Is(err, face.ErrNoEmbedding) {
		t.Errorf("expected ErrNoEmbedding, got %v", err)
	}
}

func TestService_RecordAttempt(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	err := f.svc.RecordAttempt(context.Background(), audit.Record{
		PersonID: "555", OrganizationID: "7", Tenant: " AcmeCo", Verified: true, Score: 5,
	})
	if err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}

	file, err := os.Open(f.logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	header := rows[0]
	for i, name := range header {
		if name == "tenant" && rows[1][i] != "acmeco" {
			t.Errorf("tenant column = %q, want normalized", rows[1][i])
		}
	}
}

func TestService_Identify(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	ctx := context.Background()
	for i := range 5 {
		if err := f.store.Put(ctx, store.Key{Tenant: "acmeco", OrganizationID: "7", PersonID: "555", FrameIndex: i + 1}, []float32{1, 0}); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := f.svc.Identify(ctx, "acmeco", "7", []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if len(matches) != 1 || matches[0].PersonID != "555" || !matches[0].Verified {
		t.Errorf("unexpected matches %+v", matches)
	}
}

func TestService_Closed(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	f.svc.Close()

	if _, err := f.svc.Verify(context.Background(), "acmeco", "7", "555", []float32{1, 0}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if f.svc.IsRegistered(context.Background(), "acmeco", "7", "555") {
		t.Error("closed service must report not registered")
	}
}
