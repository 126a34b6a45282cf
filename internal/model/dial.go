package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dialvision/internal/domain"
	"dialvision/internal/httpclient"
)

const deploymentPlaceholder = "{deployment}"

// DialClient sends chat completion requests to one DIAL deployment. DIAL
// routes the request to the vendor behind the deployment and adapts
// attachments to that vendor's message format.
type DialClient struct {
	endpoint   string
	apiKey     string
	deployment string
	client     *http.Client
	logger     *slog.Logger
}

type DialConfig struct {
	Endpoint   string // may contain {deployment}
	APIKey     string
	Deployment string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewDialClient(cfg DialConfig) *DialClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DialClient{
		endpoint:   completionsURL(cfg.Endpoint, cfg.Deployment, cfg.APIVersion),
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

func (d *DialClient) Deployment() string { return d.deployment }

func completionsURL(endpoint, deployment, apiVersion string) string {
	u := strings.ReplaceAll(endpoint, deploymentPlaceholder, url.PathEscape(deployment))
	if apiVersion == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "api-version=" + url.QueryEscape(apiVersion)
}

type chatRequest struct {
	Messages []domain.Message `json:"messages"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   domain.Usage `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (d *DialClient) Completion(ctx context.Context, messages []domain.Message) (*domain.Completion, error) {
	jsonBody, err := json.Marshal(chatRequest{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Api-Key", d.apiKey)

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dial %s request: %w", d.deployment, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("dial %s %d: %s", d.deployment, resp.StatusCode, string(respBody))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := &domain.Completion{
		Deployment:   d.deployment,
		FinishReason: "stop",
		Usage:        cr.Usage,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	if len(cr.Choices) > 0 {
		out.Content = cr.Choices[0].Message.Content
		if cr.Choices[0].FinishReason != "" {
			out.FinishReason = cr.Choices[0].FinishReason
		}
	}

	d.logger.Debug("completion received",
		"deployment", d.deployment,
		"finish_reason", out.FinishReason,
		"tokens", out.Usage.TotalTokens,
		"latency_ms", out.LatencyMs,
	)
	return out, nil
}
