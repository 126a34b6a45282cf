package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dialvision/internal/bucket"
	"dialvision/internal/config"
	"dialvision/internal/history"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the configuration and services",
		Long: `Verifies that the configuration loads, the images exist, the bucket
is reachable with the configured key and the history database is writable.
Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dialvision doctor v%s\n\n", version)

			var r doctorReport

			cfg, err := loadConfig()
			if err != nil {
				r.fail(out, "Config", err.Error())
				return r.summary(out)
			}
			if _, statErr := os.Stat(resolveConfigPath()); statErr != nil {
				r.warn(out, "Config file", "not found, using defaults and environment")
			} else {
				r.pass(out, "Config file", resolveConfigPath())
			}

			if cfg.Dial.APIKey == "" {
				r.fail(out, "API key", "dial.apiKey is empty (set DIAL_API_KEY)")
			} else {
				r.pass(out, "API key", "configured")
			}

			for _, img := range cfg.Run.Images {
				path := filepath.Join(cfg.Run.ImagesDir, img.File)
				if _, err := os.Stat(path); err != nil {
					r.fail(out, "Image "+img.File, "not found at "+path)
				} else {
					r.pass(out, "Image "+img.File, img.MimeType)
				}
			}

			if len(cfg.Run.Deployments) == 0 {
				r.fail(out, "Deployments", "none configured")
			} else {
				r.pass(out, "Deployments", fmt.Sprint(cfg.Run.Deployments))
			}

			if err := checkBucket(cmd.Context(), cfg); err != nil {
				r.fail(out, "Bucket ("+cfg.Storage.Backend+")", err.Error())
			} else {
				r.pass(out, "Bucket ("+cfg.Storage.Backend+")", "reachable")
			}

			if cfg.History.Enabled {
				if err := checkHistory(cfg.History.DBPath); err != nil {
					r.fail(out, "History", err.Error())
				} else {
					r.pass(out, "History", cfg.History.DBPath)
				}
			}

			if tc := cfg.Notify.Telegram; tc.Enabled {
				if tc.Token == "" || tc.ChatID == 0 {
					r.warn(out, "Telegram", "enabled but token or chatId missing")
				} else {
					r.pass(out, "Telegram", fmt.Sprintf("chat %d", tc.ChatID))
				}
			}

			return r.summary(out)
		},
	}
}

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(w io.Writer, check, detail string) {
	r.passed++
	fmt.Fprintf(w, "  [PASS] %-24s %s\n", check, detail)
}

func (r *doctorReport) fail(w io.Writer, check, detail string) {
	r.failed++
	fmt.Fprintf(w, "  [FAIL] %-24s %s\n", check, detail)
}

func (r *doctorReport) warn(w io.Writer, check, detail string) {
	r.warned++
	fmt.Fprintf(w, "  [WARN] %-24s %s\n", check, detail)
}

func (r *doctorReport) summary(w io.Writer) error {
	fmt.Fprintf(w, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkBucket(ctx context.Context, cfg *config.Config) error {
	open, err := bucket.NewOpener(cfg, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	b, err := open(ctx)
	if err != nil {
		return err
	}
	return b.Close()
}

func checkHistory(dbPath string) error {
	store, err := history.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	return store.Close()
}
