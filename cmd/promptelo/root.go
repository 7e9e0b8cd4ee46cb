package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/promptelo/internal/config"
	"github.com/okian/promptelo/pkg/logger"
)

// cli carries state shared by subcommands after the root pre-run.
type cli struct {
	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "promptelo",
		Short:         "Rank candidate system prompts with an Elo pairwise tournament",
		Long:          "Generates candidate system prompts for a task, runs each against the task's test cases and ranks them by Elo from pairwise judge verdicts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().String("config", "", "YAML config file (overrides PROMPTELO_CONFIG)")
	root.PersistentFlags().String("env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().Bool("offline", false, "use simulated backends instead of OpenAI")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	root.PersistentFlags().String("log-format", "", "text or json")

	root.AddCommand(newRunCmd(c))
	root.AddCommand(newServeCmd(c))
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if path, _ := flags.GetString("config"); path != "" {
		if err := os.Setenv(config.EnvConfigFile, path); err != nil {
			return err
		}
	}

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	if flags.Changed("offline") {
		cfg.Offline, _ = flags.GetBool("offline")
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}

	if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr()), logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	c.log = logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel),
			logger.Error(err),
		)
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}
