package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"dialvision/internal/bucket"
	"dialvision/internal/domain"
)

var (
	ErrNoImages      = errors.New("no images configured")
	ErrNoDeployments = errors.New("no deployments configured")
)

// Image is a local file together with the MIME type declared for it.
type Image struct {
	File     string
	MimeType string
}

// ModelFactory builds a client for one deployment.
type ModelFactory func(deployment string) domain.ModelClient

// PutImage uploads dir/fileName inside its own bucket session and returns the
// attachment that references it.
func PutImage(ctx context.Context, open bucket.Opener, dir, fileName, mimeType string) (domain.Attachment, error) {
	var att domain.Attachment
	err := bucket.WithSession(ctx, open, func(b domain.Bucket) error {
		data, err := os.ReadFile(filepath.Join(dir, fileName))
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}

		stored, err := b.PutFile(ctx, fileName, mimeType, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("upload %s: %w", fileName, err)
		}

		att = domain.NewAttachment(fileName, stored.URL, mimeType)
		return nil
	})
	return att, err
}

// Runner uploads the images, then asks every deployment about them.
type Runner struct {
	open        bucket.Opener
	newModel    ModelFactory
	images      []Image
	deployments []string
	prompt      string
	dir         string
	out         io.Writer
	recorder    domain.RunRecorder
	notifiers   []domain.Notifier
	logger      *slog.Logger
}

// RunnerConfig holds the dependencies of a Runner. Recorder and Notifiers
// are optional.
type RunnerConfig struct {
	Open        bucket.Opener
	NewModel    ModelFactory
	Images      []Image
	Deployments []string
	Prompt      string
	Dir         string
	Out         io.Writer
	Recorder    domain.RunRecorder
	Notifiers   []domain.Notifier
	Logger      *slog.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	return &Runner{
		open:        cfg.Open,
		newModel:    cfg.NewModel,
		images:      cfg.Images,
		deployments: cfg.Deployments,
		prompt:      cfg.Prompt,
		dir:         cfg.Dir,
		out:         cfg.Out,
		recorder:    cfg.Recorder,
		notifiers:   cfg.Notifiers,
		logger:      cfg.Logger,
	}
}

// Run performs every upload before any completion. The first error stops
// the run; nothing after it is attempted.
func (r *Runner) Run(ctx context.Context) (err error) {
	if len(r.images) == 0 {
		return ErrNoImages
	}
	if len(r.deployments) == 0 {
		return ErrNoDeployments
	}

	runID := r.startRun(ctx)
	defer func() { r.finishRun(ctx, runID, err) }()

	attachments, err := r.uploadAll(ctx, runID)
	if err != nil {
		return err
	}
	for i, att := range attachments {
		data, _ := json.Marshal(att)
		fmt.Fprintf(r.out, "Attachment %d: %s\n", i+1, data)
	}

	msg := domain.NewUserMessage(r.prompt, attachments...)
	for _, deployment := range r.deployments {
		fmt.Fprintf(r.out, "Deployment name: %s\n", deployment)

		client := r.newModel(deployment)
		completion, err := client.Completion(ctx, []domain.Message{msg})
		if err != nil {
			return fmt.Errorf("completion %s: %w", deployment, err)
		}
		fmt.Fprintln(r.out, completion.Content)

		r.recordCompletion(ctx, runID, *completion)
		r.notify(ctx, *completion)
	}

	r.logger.Info("run finished", "images", len(attachments), "deployments", len(r.deployments))
	return nil
}

func (r *Runner) uploadAll(ctx context.Context, runID string) ([]domain.Attachment, error) {
	attachments := make([]domain.Attachment, 0, len(r.images))
	for _, img := range r.images {
		att, err := PutImage(ctx, r.open, r.dir, img.File, img.MimeType)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, att)

		if r.recorder != nil && runID != "" {
			if err := r.recorder.AddAttachment(ctx, runID, att); err != nil {
				r.logger.Warn("cannot record attachment", "title", att.Title, "err", err)
			}
		}
	}
	return attachments, nil
}

func (r *Runner) startRun(ctx context.Context) string {
	if r.recorder == nil {
		return ""
	}
	id, err := r.recorder.StartRun(ctx, r.prompt)
	if err != nil {
		r.logger.Warn("cannot record run", "err", err)
		return ""
	}
	return id
}

func (r *Runner) finishRun(ctx context.Context, runID string, runErr error) {
	if r.recorder == nil || runID == "" {
		return
	}
	if err := r.recorder.FinishRun(ctx, runID, runErr); err != nil {
		r.logger.Warn("cannot finish run record", "run", runID, "err", err)
	}
}

func (r *Runner) recordCompletion(ctx context.Context, runID string, c domain.Completion) {
	if r.recorder == nil || runID == "" {
		return
	}
	if err := r.recorder.AddCompletion(ctx, runID, c); err != nil {
		r.logger.Warn("cannot record completion", "deployment", c.Deployment, "err", err)
	}
}

func (r *Runner) notify(ctx context.Context, c domain.Completion) {
	for _, n := range r.notifiers {
		if err := n.Notify(ctx, c); err != nil {
			r.logger.Warn("notification failed", "notifier", n.Name(), "deployment", c.Deployment, "err", err)
		}
	}
}
