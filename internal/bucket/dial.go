package bucket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"

	"dialvision/internal/domain"
	"dialvision/internal/httpclient"
)

var ErrNoBucket = errors.New("dial: service returned no bucket")

// DialClient uploads files into the caller's DIAL bucket.
// It is a session bound to one bucket and must be closed after use.
type DialClient struct {
	apiKey  string
	baseURL string
	bucket  string
	client  *http.Client
	logger  *slog.Logger

	closeOnce sync.Once
}

type DialConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type bucketResponse struct {
	Bucket  string `json:"bucket"`
	AppData string `json:"appdata,omitempty"`
}

// OpenDial starts a bucket session by resolving the user's bucket name.
func OpenDial(ctx context.Context, cfg DialConfig) (*DialClient, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &DialClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/bucket", nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dial bucket request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("dial bucket %d: %s", resp.StatusCode, string(body))
	}

	var br bucketResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("decode bucket: %w", err)
	}
	if br.Bucket == "" {
		return nil, ErrNoBucket
	}
	c.bucket = br.Bucket

	c.logger.Debug("dial bucket session opened", "bucket", c.bucket)
	return c, nil
}

func (c *DialClient) Bucket() string { return c.bucket }

// PutFile uploads content as files/{bucket}/{name}. The content is read
// fully into memory before sending.
func (c *DialClient) PutFile(ctx context.Context, name, mimeType string, content io.Reader) (*domain.StoredFile, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachment"; filename=%q`, name))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	endpoint := c.baseURL + "/v1/files/" + url.PathEscape(c.bucket) + "/" + escapePath(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dial upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("dial upload %d: %s", resp.StatusCode, string(respBody))
	}

	var stored domain.StoredFile
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode upload: %w", err)
	}
	if stored.Name == "" {
		stored.Name = name
	}

	c.logger.Info("file uploaded", "name", name, "mime", mimeType, "bytes", len(data), "url", stored.URL)
	return &stored, nil
}

// Close releases pooled connections of the session.
func (c *DialClient) Close() error {
	c.closeOnce.Do(func() {
		c.client.CloseIdleConnections()
		c.logger.Debug("dial bucket session closed", "bucket", c.bucket)
	})
	return nil
}

// escapePath escapes every segment of a slash separated file path.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
