package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"HotkeyChat/internal/backend"
	"HotkeyChat/internal/config"
	"HotkeyChat/internal/ledger"
)

func newModelsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the Ollama server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			cfg.Backend = config.BackendOllama
			if cmd.Flags().Changed("base-url") {
				cfg.BaseURL = f.baseURL
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Timeout = f.timeout
			}

			models, err := backend.NewOllama(cfg, backend.Options{}).ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models installed.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%.1f GB\t%s\n", m.Name, float64(m.Size)/1e9, m.ModifiedAt)
			}
			return w.Flush()
		},
	}
}

func newExchangesCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "exchanges <session-id>",
		Short: "Show the recorded requests of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ledger") {
				cfg.Ledger = f.ledger
			}
			if cfg.Ledger == "" {
				return fmt.Errorf("no ledger configured")
			}
			if _, err := os.Stat(cfg.Ledger); err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}

			l, err := ledger.Open(cfg.Ledger)
			if err != nil {
				return err
			}
			defer l.Close()

			ctx := cmd.Context()
			sum, err := l.Summarize(ctx, args[0])
			if err != nil {
				return err
			}
			exchanges, err := l.Exchanges(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d exchanges, %d failed\n", sum.Total, sum.Failed)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tMODEL\tTURNS\tDURATION\tOUTCOME")
			for _, ex := range exchanges {
				outcome := ex.Outcome
				if ex.Error != "" {
					outcome += ": " + ex.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					ex.StartedAt.Local().Format(time.DateTime), ex.Model, ex.Turns,
					ex.Duration.Round(time.Millisecond), outcome)
			}
			return w.Flush()
		},
	}
}
