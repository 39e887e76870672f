package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skeddy/internal/app"
	"skeddy/internal/dateparse"
	"skeddy/internal/reminder"
	logx "skeddy/pkg/logx"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "skeddy",
		Short: "Telegram reminder bot that understands plain English",
		Long: `skeddy turns messages like "remind me call mom in 2 hours" into reminders
and delivers them in the same chat when they are due.

Examples:
  skeddy                                   # run the bot with ./config.yaml
  skeddy run --config /etc/skeddy.yaml     # run with an explicit config
  skeddy parse "remind me gym tomorrow at 6pm"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (json or yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cfgPath)
		},
	})
	root.AddCommand(newParseCmd())
	return root
}

func newParseCmd() *cobra.Command {
	var (
		at string
		tz string
	)
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Show how a reminder message would be understood",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return fmt.Errorf("--tz: %w", err)
				}
				loc = l
			}
			ref := time.Now().In(loc)
			if at != "" {
				t, err := time.ParseInLocation(time.RFC3339, at, loc)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				ref = t
			}
			return printExtraction(cmd.OutOrStdout(), strings.Join(args, " "), ref)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "reference instant (RFC3339), default now")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for the reference instant")
	return cmd
}

func printExtraction(w io.Writer, text string, ref time.Time) error {
	ex, err := reminder.NewExtractor(dateparse.NewWhen()).Extract(text, ref)
	switch {
	case errors.Is(err, reminder.ErrNotUnderstood):
		_, err = fmt.Fprintln(w, "not understood")
		return err
	case err != nil:
		return err
	}
	past := ""
	if ex.DueAt.Before(ref) {
		past = " (in the past, would be rejected)"
	}
	_, err = fmt.Fprintf(w, "message: %s\ndue:     %s%s\nin:      %s\n",
		ex.Message, ex.DueAt.Format(time.RFC3339), past, ex.DueAt.Sub(ref).Round(time.Second))
	return err
}

func runBot(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Console logger until the app has built its own from config.
	boot := logx.NewConsole("info")

	a, err := app.NewApp(cfgPath)
	if err != nil {
		boot.Error("startup failed", logx.String("config", cfgPath), logx.Err(err))
		return err
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	reason, runErr := waitStop(ctx, a)
	if runErr != nil {
		boot.Error("app failed", logx.Err(runErr))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	return runErr
}

type runner interface {
	Done() <-chan struct{}
	Err() error
}

// waitStop blocks until a signal arrives or the app dies. The app context is
// derived from ctx, so after a signal both are done; the signal wins.
func waitStop(ctx context.Context, r runner) (app.StopReason, error) {
	select {
	case <-ctx.Done():
	case <-r.Done():
	}
	switch {
	case ctx.Err() != nil:
		return app.StopSignal, nil
	case r.Err() != nil:
		return app.StopFatalError, r.Err()
	default:
		return app.StopUnknown, nil
	}
}
