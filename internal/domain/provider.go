package domain

import (
	"context"
	"io"
)

// Bucket uploads binary blobs into a user scoped object store.
// A Bucket is a session: callers must Close it when done.
type Bucket interface {
	PutFile(ctx context.Context, name, mimeType string, content io.Reader) (*StoredFile, error)
	Close() error
}

// StoredFile is the storage record of an uploaded blob.
type StoredFile struct {
	Name          string `json:"name"`
	Bucket        string `json:"bucket,omitempty"`
	URL           string `json:"url"`
	ContentType   string `json:"contentType,omitempty"`
	ContentLength int64  `json:"contentLength,omitempty"`
}

// ModelClient sends chat requests to a single model deployment.
type ModelClient interface {
	Completion(ctx context.Context, messages []Message) (*Completion, error)
	Deployment() string
}

type Completion struct {
	Deployment   string
	Content      string
	FinishReason string // stop | length | content_filter
	Usage        Usage
	LatencyMs    int64
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
