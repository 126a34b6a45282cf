package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"dialvision/internal/bucket"
	"dialvision/internal/config"
	"dialvision/internal/domain"
	"dialvision/internal/history"
	"dialvision/internal/httpclient"
	"dialvision/internal/model"
	"dialvision/internal/notify"
	"dialvision/internal/vision"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	verbose    bool
)

func main() {
	// .env is optional; DIAL_API_KEY and DIAL_URL may also come from the shell.
	_ = godotenv.Load()

	logger = newLogger("info")

	root := &cobra.Command{
		Use:   "dialvision",
		Short: "Upload images to DIAL and ask several models what they see",
		Long: `dialvision uploads images to the DIAL file bucket, attaches them to a
single user message and sends that message to each configured model
deployment through the DIAL chat completion API.`,
		SilenceUsage: true,
		RunE:         runVision,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.dialvision/config.json)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	addRunFlags(root)

	root.AddCommand(runCmd())
	root.AddCommand(uploadCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(initCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	deploymentFlags []string
	promptFlag      string
)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&deploymentFlags, "deployment", "d", nil, "deployment to ask (repeatable, overrides config)")
	cmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "prompt sent with the images (overrides config)")
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Upload the configured images and query every deployment",
		RunE:  runVision,
	}
	addRunFlags(cmd)
	return cmd
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// readConfig loads an explicitly named config file, which must exist, or
// the default one, which falls back to defaults when absent.
func readConfig(explicitPath string) (*config.Config, error) {
	if explicitPath != "" {
		return config.Load(explicitPath)
	}
	return config.LoadOrDefaults(config.DefaultConfigPath())
}

// loadConfig reads the config selected by --config and resets the global
// logger to the configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := readConfig(configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.General.LogLevel
	if verbose {
		level = "debug"
	}
	logger = newLogger(level)
	return cfg, nil
}

func runVision(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cfg, deploymentFlags, promptFlag)

	open, err := bucket.NewOpener(cfg, logger)
	if err != nil {
		return err
	}

	runnerCfg := vision.RunnerConfig{
		Open:        open,
		NewModel:    modelFactory(cfg),
		Images:      imagesFromConfig(cfg),
		Deployments: cfg.Run.Deployments,
		Prompt:      cfg.Run.Prompt,
		Dir:         cfg.Run.ImagesDir,
		Out:         cmd.OutOrStdout(),
		Logger:      logger,
	}

	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.DBPath, logger)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		runnerCfg.Recorder = store
	}

	notifiers, err := buildNotifiers(cfg)
	if err != nil {
		return err
	}
	runnerCfg.Notifiers = notifiers

	logger.Info("starting run",
		"images", len(runnerCfg.Images),
		"deployments", strings.Join(runnerCfg.Deployments, ","),
		"storage", cfg.Storage.Backend,
	)
	return vision.NewRunner(runnerCfg).Run(cmd.Context())
}

func applyRunFlags(cfg *config.Config, deployments []string, prompt string) {
	if len(deployments) > 0 {
		cfg.Run.Deployments = deployments
	}
	if prompt != "" {
		cfg.Run.Prompt = prompt
	}
}

func imagesFromConfig(cfg *config.Config) []vision.Image {
	images := make([]vision.Image, 0, len(cfg.Run.Images))
	for _, img := range cfg.Run.Images {
		images = append(images, vision.Image{File: img.File, MimeType: img.MimeType})
	}
	return images
}

func modelFactory(cfg *config.Config) vision.ModelFactory {
	httpClient := httpclient.New(time.Duration(cfg.Dial.TimeoutSeconds) * time.Second)
	return func(deployment string) domain.ModelClient {
		return model.NewDialClient(model.DialConfig{
			Endpoint:   cfg.Dial.CompletionsEndpoint,
			APIKey:     cfg.Dial.APIKey,
			Deployment: deployment,
			APIVersion: cfg.Dial.APIVersion,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
}

func buildNotifiers(cfg *config.Config) ([]domain.Notifier, error) {
	var notifiers []domain.Notifier
	if tc := cfg.Notify.Telegram; tc.Enabled {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:     tc.Token,
			ChatID:    tc.ChatID,
			ParseMode: tc.ParseMode,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}
	return notifiers, nil
}

func newLogger(level string) *slog.Logger {
	return newLoggerTo(os.Stderr, level)
}

func newLoggerTo(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// uploadFiles uploads every file within one bucket session and prints the
// resulting attachments.
func uploadFiles(ctx context.Context, open bucket.Opener, files []string, mimeType string, out io.Writer) error {
	return bucket.WithSession(ctx, open, func(b domain.Bucket) error {
		for _, file := range files {
			mt := mimeType
			if mt == "" {
				var ok bool
				if mt, ok = bucket.MimeForFile(file); !ok {
					return fmt.Errorf("cannot guess MIME type of %s, pass --type", file)
				}
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			stored, err := b.PutFile(ctx, baseName(file), mt, f)
			f.Close()
			if err != nil {
				return fmt.Errorf("upload %s: %w", file, err)
			}
			if err := printJSON(out, domain.NewAttachment(baseName(file), stored.URL, mt)); err != nil {
				return err
			}
		}
		return nil
	})
}
