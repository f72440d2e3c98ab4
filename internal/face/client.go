package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultServiceURL        = "http://localhost:8000"
	defaultMinDetectionScore = 0.8
	defaultMaxRetries        = 3
	defaultRetryBase         = 200 * time.Millisecond
)

// ClientOptions configures a Client. Zero values take defaults.
type ClientOptions struct {
	BaseURL string
	// MinDetectionScore drops detections the service is less sure about.
	MinDetectionScore float64
	MaxRetries        uint64
	RetryBase         time.Duration
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client is a Detector and Extractor backed by the face service over HTTP.
type Client struct {
	baseURL    string
	minScore   float64
	maxRetries uint64
	retryBase  time.Duration
	client     *http.Client
	logger     *zap.Logger
}

// NewClient creates a face service client.
func NewClient(opts ClientOptions) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		minScore:   opts.MinDetectionScore,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		client:     opts.HTTPClient,
		logger:     opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultServiceURL
	}
	if c.minScore == 0 {
		c.minScore = defaultMinDetectionScore
	}
	if c.maxRetries == 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.retryBase == 0 {
		c.retryBase = defaultRetryBase
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 60 * time.Second}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Detection is a single detected face
type Detection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// Response is the body returned by the face endpoints
type Response struct {
	FacesCount int         `json:"faces_count"`
	Faces      []Detection `json:"faces"`
	Model      string      `json:"model"`
}

// Detect implements Detector using the /detect/face endpoint.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	resp, err := c.post(ctx, "/detect/face", img)
	if err != nil {
		return nil, err
	}

	boxes := make([]image.Rectangle, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			c.logger.Warn("skipping detection with malformed bbox", zap.Int("face_index", f.FaceIndex))
			continue
		}
		if f.DetScore < c.minScore {
			continue
		}
		boxes = append(boxes, image.Rect(int(f.BBox[0]), int(f.BBox[1]), int(f.BBox[2]), int(f.BBox[3])))
	}
	return boxes, nil
}

// Extract implements Extractor using the /embed/face endpoint. The service
// embeds the image as given without requiring a detection.
func (c *Client) Extract(ctx context.Context, img image.Image) ([][]float32, error) {
	resp, err := c.post(ctx, "/embed/face", img)
	if err != nil {
		return nil, err
	}

	var out [][]float32
	for _, f := range resp.Faces {
		if len(f.Embedding) > 0 {
			out = append(out, f.Embedding)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoEmbedding
	}
	return out, nil
}

// post uploads the image to endpoint, retrying connection failures and 5xx responses.
func (c *Client) post(ctx context.Context, endpoint string, img image.Image) (*Response, error) {
	data, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	var body []byte
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(c.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		body, err = c.postOnce(ctx, endpoint, data)
		return err
	})
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

func (c *Client) postOnce(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		c.logger.Debug("face service unreachable, retrying", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, retry.RetryableError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, retry.RetryableError(fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w (status %d): %s", ErrRejected, resp.StatusCode, string(body))
	}
	return body, nil
}

var (
	_ Detector  = (*Client)(nil)
	_ Extractor = (*Client)(nil)
)
