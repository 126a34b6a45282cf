package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for dialvision.
type Config struct {
	General GeneralConfig `json:"general" yaml:"general"`
	Dial    DialConfig    `json:"dial" yaml:"dial"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Run     RunConfig     `json:"run" yaml:"run"`
	History HistoryConfig `json:"history" yaml:"history"`
	Notify  NotifyConfig  `json:"notify" yaml:"notify"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"` // debug | info | warn | error
}

// DialConfig holds the static credentials and endpoints of the DIAL service.
type DialConfig struct {
	APIKey              string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL             string `json:"baseUrl" yaml:"baseUrl"`
	CompletionsEndpoint string `json:"completionsEndpoint" yaml:"completionsEndpoint"` // may contain {deployment}
	APIVersion          string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	TimeoutSeconds      int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type StorageConfig struct {
	Backend string   `json:"backend" yaml:"backend"` // "dial" | "s3"
	S3      S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

type S3Config struct {
	Bucket            string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region            string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint          string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKey         string `json:"accessKey,omitempty" yaml:"accessKey,omitempty"`
	SecretKey         string `json:"secretKey,omitempty" yaml:"secretKey,omitempty"`
	PresignTTLMinutes int    `json:"presignTtlMinutes,omitempty" yaml:"presignTtlMinutes,omitempty"`
}

// RunConfig describes what the run command uploads and whom it asks.
type RunConfig struct {
	ImagesDir   string        `json:"imagesDir" yaml:"imagesDir"`
	Images      []ImageConfig `json:"images" yaml:"images"`
	Deployments []string      `json:"deployments" yaml:"deployments"`
	Prompt      string        `json:"prompt" yaml:"prompt"`
}

type ImageConfig struct {
	File     string `json:"file" yaml:"file"`
	MimeType string `json:"mimeType" yaml:"mimeType"`
}

type HistoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Token     string `json:"token,omitempty" yaml:"token,omitempty"`
	ChatID    int64  `json:"chatId,omitempty" yaml:"chatId,omitempty"`
	ParseMode string `json:"parseMode,omitempty" yaml:"parseMode,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.dialvision).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dialvision"
	}
	return filepath.Join(home, ".dialvision")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file (chosen by extension) on top of Defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	ApplyEnv(cfg)
	cfg.Run.ImagesDir = ExpandPath(cfg.Run.ImagesDir)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)

	return cfg, nil
}

// LoadOrDefaults behaves like Load but falls back to Defaults (plus the
// environment) when the file does not exist.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(ExpandPath(path)); os.IsNotExist(statErr) {
		cfg = Defaults()
		ApplyEnv(cfg)
		cfg.Run.ImagesDir = ExpandPath(cfg.Run.ImagesDir)
		cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
		return cfg, nil
	}
	return nil, err
}

// ApplyEnv overrides DIAL credentials from DIAL_API_KEY and DIAL_URL.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("DIAL_API_KEY"); v != "" {
		cfg.Dial.APIKey = v
	}
	if v := os.Getenv("DIAL_URL"); v != "" {
		cfg.Dial.BaseURL = strings.TrimRight(v, "/")
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset VAR
// without a default is left as is.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes the config as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
