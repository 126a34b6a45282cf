package vision

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dialvision/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type putCall struct {
	name, mime, body string
}

// mockBucket records uploads and returns url-<name>.
type mockBucket struct {
	puts    []putCall
	opened  int
	closed  int
	failOn  string
	openErr error
}

func (m *mockBucket) open(ctx context.Context) (domain.Bucket, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opened++
	return m, nil
}

func (m *mockBucket) PutFile(ctx context.Context, name, mimeType string, content io.Reader) (*domain.StoredFile, error) {
	if name == m.failOn {
		return nil, errors.New("storage unavailable")
	}
	data, _ := io.ReadAll(content)
	m.puts = append(m.puts, putCall{name: name, mime: mimeType, body: string(data)})
	return &domain.StoredFile{Name: name, URL: "url-" + name}, nil
}

func (m *mockBucket) Close() error {
	m.closed++
	return nil
}

// mockModels records every request per deployment.
type mockModels struct {
	requests map[string][][]domain.Message
	order    []string
	failFor  string
}

func newMockModels() *mockModels {
	return &mockModels{requests: make(map[string][][]domain.Message)}
}

func (m *mockModels) factory(deployment string) domain.ModelClient {
	return &mockModel{parent: m, deployment: deployment}
}

type mockModel struct {
	parent     *mockModels
	deployment string
}

func (m *mockModel) Deployment() string { return m.deployment }

func (m *mockModel) Completion(ctx context.Context, messages []domain.Message) (*domain.Completion, error) {
	m.parent.order = append(m.parent.order, m.deployment)
	m.parent.requests[m.deployment] = append(m.parent.requests[m.deployment], messages)
	if m.deployment == m.parent.failFor {
		return nil, errors.New("unsupported attachment type")
	}
	return &domain.Completion{Deployment: m.deployment, Content: "seen by " + m.deployment}, nil
}

type mockRecorder struct {
	started     int
	attachments []domain.Attachment
	completions []domain.Completion
	finishedErr error
	finished    bool
}

func (r *mockRecorder) StartRun(ctx context.Context, prompt string) (string, error) {
	r.started++
	return "run-1", nil
}

func (r *mockRecorder) AddAttachment(ctx context.Context, runID string, att domain.Attachment) error {
	r.attachments = append(r.attachments, att)
	return nil
}

func (r *mockRecorder) AddCompletion(ctx context.Context, runID string, c domain.Completion) error {
	r.completions = append(r.completions, c)
	return nil
}

func (r *mockRecorder) FinishRun(ctx context.Context, runID string, runErr error) error {
	r.finished = true
	r.finishedErr = runErr
	return nil
}

type mockNotifier struct {
	sent []domain.Completion
	err  error
}

func (n *mockNotifier) Name() string { return "mock" }

func (n *mockNotifier) Notify(ctx context.Context, c domain.Completion) error {
	n.sent = append(n.sent, c)
	return n.err
}

func writeImages(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "dialx-banner.png"), []byte("png-bytes"), 0o644)
	os.WriteFile(filepath.Join(dir, "pic2.jpg"), []byte("jpg-bytes"), 0o644)
	return dir
}

func defaultImages() []Image {
	return []Image{
		{File: "dialx-banner.png", MimeType: "image/png"},
		{File: "pic2.jpg", MimeType: "image/jpg"},
	}
}

// --- PutImage ---

func TestPutImage_BuildsAttachment(t *testing.T) {
	dir := writeImages(t)
	b := &mockBucket{}

	att, err := PutImage(context.Background(), b.open, dir, "dialx-banner.png", "image/png")
	if err != nil {
		t.Fatalf("put image: %v", err)
	}

	want := domain.Attachment{Title: "dialx-banner.png", URL: "url-dialx-banner.png", Type: "image/png"}
	if att != want {
		t.Fatalf("expected %+v, got %+v", want, att)
	}
	if len(b.puts) != 1 || b.puts[0].body != "png-bytes" || b.puts[0].mime != "image/png" {
		t.Fatalf("unexpected uploads %+v", b.puts)
	}
	if b.opened != 1 || b.closed != 1 {
		t.Fatalf("expected one scoped session, opened=%d closed=%d", b.opened, b.closed)
	}
}

func TestPutImage_MissingFileClosesSession(t *testing.T) {
	b := &mockBucket{}

	_, err := PutImage(context.Background(), b.open, t.TempDir(), "absent.png", "image/png")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(b.puts) != 0 {
		t.Fatal("nothing should be uploaded")
	}
	if b.closed != 1 {
		t.Fatalf("session must be closed on failure, closed=%d", b.closed)
	}
}

// --- Runner ---

func TestRunner_SendsSameMessageToEveryDeployment(t *testing.T) {
	dir := writeImages(t)
	b := &mockBucket{}
	models := newMockModels()
	var out bytes.Buffer

	r := NewRunner(RunnerConfig{
		Open:        b.open,
		NewModel:    models.factory,
		Images:      defaultImages(),
		Deployments: []string{"gpt-4o", "gemini-2.5-pro"},
		Prompt:      "What do you see on this pictures?",
		Dir:         dir,
		Out:         &out,
		Logger:      testLogger(),
	})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if b.opened != 2 || b.closed != 2 {
		t.Fatalf("expected a session per image, opened=%d closed=%d", b.opened, b.closed)
	}
	if strings.Join(models.order, ",") != "gpt-4o,gemini-2.5-pro" {
		t.Fatalf("unexpected deployment order %v", models.order)
	}

	for _, dep := range []string{"gpt-4o", "gemini-2.5-pro"} {
		reqs := models.requests[dep]
		if len(reqs) != 1 || len(reqs[0]) != 1 {
			t.Fatalf("%s: expected exactly one request with one message, got %v", dep, reqs)
		}
		msg := reqs[0][0]
		if msg.Role != domain.RoleUser || msg.Content != "What do you see on this pictures?" {
			t.Fatalf("%s: unexpected message %+v", dep, msg)
		}
		atts := msg.Attachments()
		if len(atts) != 2 {
			t.Fatalf("%s: expected 2 attachments, got %d", dep, len(atts))
		}
		if atts[0].Title != "dialx-banner.png" || atts[0].Type != "image/png" || atts[0].URL != "url-dialx-banner.png" {
			t.Fatalf("%s: unexpected first attachment %+v", dep, atts[0])
		}
		if atts[1].Title != "pic2.jpg" || atts[1].Type != "image/jpg" {
			t.Fatalf("%s: unexpected second attachment %+v", dep, atts[1])
		}
	}

	printed := out.String()
	for _, want := range []string{"Attachment 1:", "Attachment 2:", "Deployment name: gpt-4o", "seen by gemini-2.5-pro"} {
		if !strings.Contains(printed, want) {
			t.Errorf("output missing %q:\n%s", want, printed)
		}
	}
}

func TestRunner_UploadFailureSkipsCompletions(t *testing.T) {
	dir := writeImages(t)
	b := &mockBucket{failOn: "pic2.jpg"}
	models := newMockModels()
	rec := &mockRecorder{}
	var out bytes.Buffer

	r := NewRunner(RunnerConfig{
		Open:        b.open,
		NewModel:    models.factory,
		Images:      defaultImages(),
		Deployments: []string{"gpt-4o"},
		Dir:         dir,
		Out:         &out,
		Recorder:    rec,
		Logger:      testLogger(),
	})
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if len(models.order) != 0 {
		t.Fatalf("no completion should be attempted, got %v", models.order)
	}
	if out.Len() != 0 {
		t.Fatalf("nothing should be printed when an upload fails, got %q", out.String())
	}
	if b.closed != b.opened {
		t.Fatalf("every session must be closed, opened=%d closed=%d", b.opened, b.closed)
	}
	if !rec.finished || rec.finishedErr == nil {
		t.Fatal("run record should be finished with the error")
	}
}

func TestRunner_OpenFailureSkipsCompletions(t *testing.T) {
	dir := writeImages(t)
	b := &mockBucket{openErr: errors.New("dial unreachable")}
	models := newMockModels()

	r := NewRunner(RunnerConfig{
		Open: b.open, NewModel: models.factory, Images: defaultImages(),
		Deployments: []string{"gpt-4o"}, Dir: dir, Out: io.Discard, Logger: testLogger(),
	})
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected open error")
	}
	if len(models.order) != 0 {
		t.Fatalf("no completion should be attempted, got %v", models.order)
	}
}

func TestRunner_DeploymentFailureAborts(t *testing.T) {
	dir := writeImages(t)
	b := &mockBucket{}
	models := newMockModels()
	models.failFor = "gemini-2.5-pro"

	r := NewRunner(RunnerConfig{
		Open: b.open, NewModel: models.factory, Images: defaultImages(),
		Deployments: []string{"gemini-2.5-pro", "gpt-4o"}, Dir: dir, Out: io.Discard, Logger: testLogger(),
	})
	err := r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "gemini-2.5-pro") {
		t.Fatalf("expected error naming the deployment, got %v", err)
	}
	if len(models.order) != 1 {
		t.Fatalf("later deployments must not run, got %v", models.order)
	}
}

func TestRunner_RecordsAndNotifies(t *testing.T) {
	dir := writeImages(t)
	rec := &mockRecorder{}
	n := &mockNotifier{err: errors.New("telegram down")}

	r := NewRunner(RunnerConfig{
		Open: (&mockBucket{}).open, NewModel: newMockModels().factory, Images: defaultImages(),
		Deployments: []string{"gpt-4o", "gemini-2.5-pro"}, Dir: dir, Out: io.Discard,
		Recorder: rec, Notifiers: []domain.Notifier{n}, Logger: testLogger(),
	})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("notifier errors must not fail the run: %v", err)
	}

	if rec.started != 1 || len(rec.attachments) != 2 || len(rec.completions) != 2 {
		t.Fatalf("unexpected records: %+v", rec)
	}
	if !rec.finished || rec.finishedErr != nil {
		t.Fatal("run should finish without error")
	}
	if len(n.sent) != 2 || n.sent[1].Deployment != "gemini-2.5-pro" {
		t.Fatalf("unexpected notifications %+v", n.sent)
	}
}

func TestRunner_RequiresImagesAndDeployments(t *testing.T) {
	r := NewRunner(RunnerConfig{Deployments: []string{"gpt-4o"}, Logger: testLogger()})
	if err := r.Run(context.Background()); !errors.Is(err, ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}

	r = NewRunner(RunnerConfig{Images: defaultImages(), Logger: testLogger()})
	if err := r.Run(context.Background()); !errors.Is(err, ErrNoDeployments) {
		t.Fatalf("expected ErrNoDeployments, got %v", err)
	}
}
