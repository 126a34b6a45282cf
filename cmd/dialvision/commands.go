package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"dialvision/internal/bucket"
	"dialvision/internal/config"
	"dialvision/internal/history"

	"github.com/spf13/cobra"
)

func uploadCmd() *cobra.Command {
	var mimeType string
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files to the bucket and print their attachments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			open, err := bucket.NewOpener(cfg, logger)
			if err != nil {
				return err
			}
			return uploadFiles(cmd.Context(), open, args, mimeType, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&mimeType, "type", "t", "", "MIME type for every file (default: guessed from extension)")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs and their completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := history.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %s  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.ID, run.Status)
				if run.Error != "" {
					fmt.Fprintf(out, "  error: %s\n", run.Error)
				}
				atts, err := store.Attachments(ctx, run.ID)
				if err != nil {
					return err
				}
				for _, a := range atts {
					fmt.Fprintf(out, "  attachment: %s (%s) %s\n", a.Title, a.Type, a.URL)
				}
				comps, err := store.Completions(ctx, run.ID)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, c := range comps {
					fmt.Fprintf(tw, "  %s\t%dms\t%s\n", c.Deployment, c.LatencyMs, oneLine(c.Content, 80))
				}
				tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg := config.Defaults()
			cfg.Dial.APIKey = "${DIAL_API_KEY}"
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. dial.baseUrl)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), val)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), config.Sanitize(cfg))
		},
	})

	return cmd
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func baseName(path string) string {
	return filepath.Base(path)
}

// oneLine flattens s to a single line of at most n runes.
func oneLine(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return string(r)
}
