// Package upstream forwards staged files to the external image host and
// extracts the public URL it assigns.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrUnavailable means the image host could not be reached.
	ErrUnavailable = errors.New("image host unavailable")
	// ErrRejected means the image host answered with a non-2xx status or
	// without a usable URL.
	ErrRejected = errors.New("image host rejected the upload")
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudprime_upstream_requests_total",
			Help: "Uploads forwarded to the image host, by outcome",
		},
		[]string{"outcome"},
	)

	requestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cloudprime_upstream_request_duration_seconds",
			Help:    "Latency of forwarding an upload to the image host",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// maxErrorBody caps how much of a failed response is kept for logging.
const maxErrorBody = 512

// File describes the staged file to forward.
type File struct {
	Path        string
	Name        string
	ContentType string
}

// Uploader is the contract the upload orchestrator depends on.
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

// Client posts files to the image host as multipart/form-data.
type Client struct {
	httpClient *http.Client
	url        string
	field      string
	logger     *slog.Logger
}

// New creates an upstream client. timeout bounds the whole request including
// the streamed body; zero disables it and leaves the caller's context in charge.
func New(url, field string, timeout time.Duration) *Client {
	if field == "" {
		field = "image"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 10,
			},
		},
		url:    url,
		field:  field,
		logger: slog.Default().With("component", "upstream"),
	}
}

// imageResponse is the subset of the host's JSON reply this service reads.
type imageResponse struct {
	ImageURL string `json:"image_url"`
	Image    string `json:"image"`
}

// Upload streams f to the image host and returns the public URL. Transport
// failures wrap ErrUnavailable; any other failure wraps ErrRejected.
func (c *Client) Upload(ctx context.Context, f File) (string, error) {
	start := time.Now()
	url, err := c.upload(ctx, f)
	requestDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		requestsTotal.WithLabelValues("success").Inc()
	case errors.Is(err, ErrUnavailable):
		requestsTotal.WithLabelValues("unavailable").Inc()
	default:
		requestsTotal.WithLabelValues("rejected").Inc()
	}
	return url, err
}

func (c *Client) upload(ctx context.Context, f File) (string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open staged file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeBody(mw, c.field, f, file))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("image host rejected upload",
			"status", resp.StatusCode,
			"file", f.Name,
			"body", strings.TrimSpace(string(body)),
		)
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: invalid response body: %v", ErrRejected, err)
	}

	switch {
	case out.ImageURL != "":
		return out.ImageURL, nil
	case out.Image != "":
		return out.Image, nil
	default:
		return "", fmt.Errorf("%w: response has no image URL", ErrRejected)
	}
}

func writeBody(mw *multipart.Writer, field string, f File, src io.Reader) error {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(field), escapeQuotes(f.Name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
