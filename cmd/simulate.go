package main

import (
	"context"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/okian/podium/internal/simulate"
	"github.com/okian/podium/pkg/logger"
)

// Default simulation settings.
const (
	defaultJudges       = 8
	defaultContestants  = 12
	defaultRescoreRatio = 0.2
	defaultTimeout      = 30 * time.Second
	defaultRunTimeout   = 10 * time.Minute
)

func newSimulateCmd() *cobra.Command {
	cfg := &simulate.Config{}
	var noColor bool
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running server with concurrent judges and verify its standings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(); err != nil {
				return err
			}
			cfg.Color = !noColor && !color.NoColor
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTimeout)
			defer cancel()
			_, err := simulate.Run(ctx, cfg, cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.StringVar(&cfg.FixturePath, "fixture", "", "YAML fixture describing the event")
	f.IntVar(&cfg.Judges, "judges", defaultJudges, "number of concurrent judges")
	f.IntVar(&cfg.Contestants, "contestants", defaultContestants, "contestants to generate when the fixture names none")
	f.Float64Var(&cfg.RescoreRatio, "rescore", defaultRescoreRatio, "share of submissions re-scored later")
	f.Float64Var(&cfg.Rate, "rate", 0, "submissions per second across all judges, 0 is unlimited")
	f.IntVar(&cfg.Burst, "burst", runtime.NumCPU(), "rate limiter burst")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "seed for generated scores")
	f.BoolVar(&cfg.Advance, "advance", false, "advance the round after verification")
	f.BoolVar(&noColor, "no-color", false, "disable the leader highlight")
	return cmd
}
