package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/sampling"
	"github.com/trezcool/hazira/services/gateway"
	"github.com/trezcool/hazira/services/geosource"
	logsvc "github.com/trezcool/hazira/services/logger"
)

var isTerminalFunc = term.IsTerminal // mockable

type flags struct {
	api      string
	jwt      string
	token    string
	replay   string
	lat      float64
	lng      float64
	accuracy float64
	interval time.Duration
}

func newRootCmd(conf *core.Config, logger core.Logger) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "collector",
		Short:        "Collect location samples for a session and submit them",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.token == "" || f.jwt == "" {
				return errors.New("--token and --jwt are required")
			}

			src, err := newSource(cmd, f)
			if err != nil {
				return err
			}
			client, err := gateway.NewClient(f.api, f.jwt)
			if err != nil {
				return err
			}

			opts := sampling.OptionsFromConfig(conf)
			opts.Logger = logger
			if f.interval > 0 {
				opts.Interval = f.interval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := collector{
				gateway: client,
				src:     src,
				opts:    opts,
				out:     cmd.OutOrStdout(),
				tty:     isTerminalFunc(int(os.Stdout.Fd())),
			}
			_, err = c.run(ctx, f.token)
			return err
		},
	}

	cmd.Flags().StringVar(&f.api, "api", "http://localhost:8000", "Submission Gateway base URL")
	cmd.Flags().StringVar(&f.jwt, "jwt", os.Getenv("HAZIRA_JWT"), "bearer token of the student (defaults to $HAZIRA_JWT)")
	cmd.Flags().StringVar(&f.token, "token", "", "session token shared by the teacher")
	cmd.Flags().StringVar(&f.replay, "replay", "", "TOML replay script to read positions from")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "fixed latitude")
	cmd.Flags().Float64Var(&f.lng, "lng", 0, "fixed longitude")
	cmd.Flags().Float64Var(&f.accuracy, "accuracy", 10, "fixed accuracy in meters")
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "override the sampling interval")
	return cmd
}

func newSource(cmd *cobra.Command, f flags) (sampling.Source, error) {
	if f.replay != "" {
		return geosource.LoadReplay(f.replay)
	}
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
		return nil, errors.New("either --replay or both --lat and --lng are required")
	}
	return geosource.Static{Latitude: f.lat, Longitude: f.lng, AccuracyMeters: f.accuracy}, nil
}

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "COLLECTOR : ", log.LstdFlags|log.Lmicroseconds),
		conf,
	)

	if err := newRootCmd(conf, logger).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
