package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/internal/report"
	"github.com/okian/promptelo/internal/task"
	"github.com/okian/promptelo/pkg/logger"
)

func newRunCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one tournament for a task file and print the leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd)
		},
	}
	cmd.Flags().String("task", "", "task YAML file (required)")
	cmd.Flags().Int("rounds", 0, "number of rounds")
	cmd.Flags().Int("pairs", 0, "pairs per round; negative means as many as possible")
	cmd.Flags().Float64("k", 0, "Elo K-factor")
	cmd.Flags().Int64("seed", 0, "pairing seed")
	cmd.Flags().Int("candidates", 0, "number of prompts to generate")
	cmd.Flags().String("mode", "", "judge mode: evidence or prompt_only")
	cmd.Flags().Int("parallelism", 0, "concurrent matches and answer calls")
	cmd.Flags().String("out", "", "report directory (default from config)")
	cmd.Flags().String("json", "", "also write the full result as JSON to this file")
	cmd.Flags().Int("width", report.DefaultWidth, "terminal leaderboard width")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func (c *cli) run(cmd *cobra.Command) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("task")
	t, err := task.Load(path)
	if err != nil {
		return err
	}

	settings := model.Settings{}
	settings.Rounds, _ = flags.GetInt("rounds")
	settings.PairsPerRound, _ = flags.GetInt("pairs")
	settings.KFactor, _ = flags.GetFloat64("k")
	settings.Seed, _ = flags.GetInt64("seed")
	settings.Candidates, _ = flags.GetInt("candidates")
	settings.Parallelism, _ = flags.GetInt("parallelism")
	if mode, _ := flags.GetString("mode"); mode != "" {
		settings.Mode = model.JudgeMode(mode)
		if !settings.Mode.Valid() {
			return fmt.Errorf("unknown judge mode %q", mode)
		}
	}
	if settings.Candidates > 0 {
		c.cfg.Candidates = settings.Candidates
	}
	if settings.Seed != 0 {
		c.cfg.Seed = settings.Seed
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	caps, err := buildCapabilities(c.cfg, c.log)
	if err != nil {
		return err
	}
	store, closeStore, err := buildStore(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := newService(c.cfg, caps, store, c.log)
	res, runErr := svc.Run(ctx, model.Job{Task: t, Settings: settings})
	if res == nil {
		return runErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	out := cmd.OutOrStdout()
	width, _ := flags.GetInt("width")
	if err := report.Terminal(out, res, width); err != nil {
		return err
	}

	dir, _ := flags.GetString("out")
	if dir == "" {
		dir = c.cfg.ReportDir
	}
	file, err := report.WriteText(dir, res)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSaved: %s\n", file)

	if jsonPath, _ := flags.GetString("json"); jsonPath != "" {
		if err := writeJSONFile(jsonPath, res); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved: %s\n", jsonPath)
	}

	c.log.Info(ctx, "run finished",
		logger.String("id", res.ID),
		logger.String("termination", string(res.Termination)),
	)
	return runErr
}

func writeJSONFile(path string, res *model.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteJSON(f, res); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
