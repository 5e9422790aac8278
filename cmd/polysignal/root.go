package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"polysignal/internal/config"
	"polysignal/internal/model"
	"polysignal/internal/report"
	"polysignal/internal/scheduler"
)

const configEnv = "POLYSIGNAL_CONFIG"

type rootOptions struct {
	configPath  string
	marketsFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "polysignal",
		Short:         "Pick the prediction market where price and news agree the most",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := "config.toml"
	if p := os.Getenv(configEnv); p != "" {
		defaultPath = p
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultPath, "path to the TOML config (env "+configEnv+")")
	root.PersistentFlags().StringVar(&opts.marketsFile, "markets", "", "read candidates from this JSON file instead of the configured sources")

	root.AddCommand(selectCmd(opts))
	root.AddCommand(watchCmd(opts))
	root.AddCommand(configCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.marketsFile != "" {
		cfg.Sources.Enabled = []string{"file"}
		cfg.Sources.File.Path = o.marketsFile
	}
	setupLogging(cfg.General.LogLevel)
	return cfg, nil
}

// setupLogging installs the JSON handler. Logs go to stderr so stdout carries
// only decision payloads.
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func selectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select",
		Short: "Run one selection and print the decision as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.engine.SelectMarket(cmd.Context())
			report.LogDecision(d)
			return report.WriteJSON(cmd.OutOrStdout(), d)
		},
	}
}

func watchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run selection every schedule.interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			schedOpts := []scheduler.Option{
				scheduler.WithDecisionHook(func(d model.Decision) {
					if err := report.WriteJSON(out, d); err != nil {
						slog.Error("writing decision failed", "error", err)
					}
				}),
			}
			if a.db != nil {
				schedOpts = append(schedOpts, scheduler.WithMaintenance(a.purgeCache))
			}

			sched := scheduler.New(a.engine, report.NewTracker(), cfg.Schedule, schedOpts...)
			if err := sched.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				return fmt.Errorf("scheduler: %w", err)
			}
			slog.Info("polysignal stopped")
			return nil
		},
	}
}

func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.load(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", opts.configPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.News.APIKey != "" {
				cfg.News.APIKey = strings.Repeat("*", 8)
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in defaults as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(config.DefaultConfig())
		},
	})

	return cmd
}
