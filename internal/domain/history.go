package domain

import (
	"context"
	"time"
)

// RunRecorder persists the outcome of a vision run.
type RunRecorder interface {
	StartRun(ctx context.Context, prompt string) (string, error)
	AddAttachment(ctx context.Context, runID string, att Attachment) error
	AddCompletion(ctx context.Context, runID string, c Completion) error
	FinishRun(ctx context.Context, runID string, runErr error) error
}

// Notifier forwards a finished completion to an external channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, c Completion) error
}

type RunRecord struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	Status     string    `json:"status"` // running | ok | failed
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

type CompletionRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Deployment string    `json:"deployment"`
	Content    string    `json:"content"`
	TokensIn   int       `json:"tokens_in"`
	TokensOut  int       `json:"tokens_out"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
