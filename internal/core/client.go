package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HeaderAPIKey carries the API key on programmatic requests.
const HeaderAPIKey = "X-API-Key"

// APIError is a failure reported by the CloudPrime server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// UploadResult is the record the server keeps for an upload.
type UploadResult struct {
	ID           string    `json:"id"`
	FileName     string    `json:"fileName"`
	OriginalName string    `json:"originalName"`
	FileType     string    `json:"fileType"`
	FileSize     string    `json:"fileSize"`
	MimeType     string    `json:"mimeType"`
	PublicURL    string    `json:"publicUrl"`
	UploadedAt   time.Time `json:"uploadedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Usage is the per-key usage summary.
type Usage struct {
	KeyName          string     `json:"keyName"`
	IsActive         bool       `json:"isActive"`
	LastUsed         *time.Time `json:"lastUsed"`
	UsageCount       int64      `json:"usageCount"`
	TotalUploads     int64      `json:"totalUploads"`
	UploadsThisMonth int        `json:"uploadsThisMonth"`
	UploadLimit      int        `json:"uploadLimit"`
	UsagePercentage  int        `json:"usagePercentage"`
	CreatedAt        time.Time  `json:"createdAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Client talks to the API-key endpoints of a CloudPrime server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload streams the file at path to the programmatic upload endpoint.
func (c *Client) Upload(ctx context.Context, path string) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/upload-image", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		pr.Close()
		return nil, err
	}
	return &result, nil
}

// Usage fetches the usage summary of the configured key.
func (c *Client) Usage(ctx context.Context) (*Usage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/api-keys/usage", nil)
	if err != nil {
		return nil, err
	}
	var usage Usage
	if err := c.do(req, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes the data field of the response envelope into dst.
func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
