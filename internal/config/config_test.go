package config

import (
	"os"
	"path/filepath"
	"testing"
)

// --- Defaults ---

func TestDefaults_RunMatchesDemo(t *testing.T) {
	cfg := Defaults()
	if len(cfg.Run.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(cfg.Run.Images))
	}
	if cfg.Run.Images[0].File != "dialx-banner.png" || cfg.Run.Images[0].MimeType != "image/png" {
		t.Fatalf("unexpected first image: %+v", cfg.Run.Images[0])
	}
	if cfg.Run.Images[1].File != "pic2.jpg" || cfg.Run.Images[1].MimeType != "image/jpg" {
		t.Fatalf("unexpected second image: %+v", cfg.Run.Images[1])
	}
	if len(cfg.Run.Deployments) != 2 || cfg.Run.Deployments[0] != "gpt-4o" {
		t.Fatalf("unexpected deployments: %v", cfg.Run.Deployments)
	}
	if cfg.Storage.Backend != "dial" {
		t.Fatalf("expected dial backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Dial.TimeoutSeconds != 0 {
		t.Fatalf("expected no request timeout by default, got %ds", cfg.Dial.TimeoutSeconds)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTripJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := Defaults()
	original.Run.Prompt = "describe"
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Run.Prompt != "describe" {
		t.Fatalf("expected 'describe', got %q", loaded.Run.Prompt)
	}
}

func TestLoadSave_RoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := Defaults()
	original.Run.Deployments = []string{"claude-3-7-sonnet"}
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Run.Deployments) != 1 || loaded.Run.Deployments[0] != "claude-3-7-sonnet" {
		t.Fatalf("unexpected deployments: %v", loaded.Run.Deployments)
	}
}

func TestLoad_YAMLPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "run:\n  prompt: hello\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.Prompt != "hello" {
		t.Fatalf("expected prompt 'hello', got %q", cfg.Run.Prompt)
	}
	if cfg.Dial.BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base URL, got %q", cfg.Dial.BaseURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ExpandsEnvInFile(t *testing.T) {
	t.Setenv("TEST_DIAL_KEY", "dial-key-abc")
	t.Setenv("DIAL_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"dial": {"apiKey": "${TEST_DIAL_KEY}"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dial.APIKey != "dial-key-abc" {
		t.Fatalf("expected expanded key, got %q", cfg.Dial.APIKey)
	}
}

func TestLoadOrDefaults_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("DIAL_API_KEY", "from-env")
	t.Setenv("DIAL_URL", "http://dial.local/")

	cfg, err := LoadOrDefaults(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dial.APIKey != "from-env" {
		t.Fatalf("expected key from env, got %q", cfg.Dial.APIKey)
	}
	if cfg.Dial.BaseURL != "http://dial.local" {
		t.Fatalf("expected trimmed base URL, got %q", cfg.Dial.BaseURL)
	}
}

func TestLoadOrDefaults_BrokenFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{"), 0o644)

	if _, err := LoadOrDefaults(path); err == nil {
		t.Fatal("expected parse error for existing broken file")
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "storage.backend")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "dial" {
		t.Fatalf("expected 'dial', got %v", val)
	}

	val, err = GetByPath(cfg, "run.images.1.file")
	if err != nil {
		t.Fatalf("get indexed: %v", err)
	}
	if val != "pic2.jpg" {
		t.Fatalf("expected 'pic2.jpg', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	if _, err := GetByPath(cfg, "nonexistent.path"); err == nil {
		t.Fatal("expected error for nonexistent path")
	}
	if _, err := GetByPath(cfg, "run.images.7"); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Dial.APIKey = "dial-1234567890abcdef"
	cfg.Notify.Telegram.Token = "short"

	sanitized := Sanitize(cfg)

	if sanitized.Dial.APIKey != "dial****cdef" {
		t.Fatalf("unexpected masked key %q", sanitized.Dial.APIKey)
	}
	if sanitized.Notify.Telegram.Token != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.Notify.Telegram.Token)
	}
	if sanitized.Storage.S3.SecretKey != "" {
		t.Fatal("empty secret should stay empty")
	}
	if cfg.Dial.APIKey != "dial-1234567890abcdef" {
		t.Fatal("original config should not be modified")
	}
}

func TestListPaths_ReturnsLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, expected := range []string{"dial.baseUrl", "general.logLevel", "history.enabled", "storage.backend"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"url": "${NONEXISTENT_VAR_12345:-http://x}"}`)
	expected := `{"url": "http://x"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	if result != `"${TOTALLY_UNSET_VAR_XYZ}"` {
		t.Fatalf("expected original kept, got %q", result)
	}
}
