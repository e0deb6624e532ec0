package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fgaction/internal/config"
	"fgaction/internal/logger"
	"fgaction/internal/scheduler"
)

var (
	runName     string
	runTitle    string
	runStrategy string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run one command as a foreground action",
	Long: `Run a single command under the supervisor and exit with its result.
The execution context is stopped when the command exits or on Ctrl+C.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "action name (defaults to the command)")
	runCmd.Flags().StringVar(&runTitle, "title", "", "status title")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "strategy request, e.g. in-process")
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, lc, err := loadConfig(nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, lc)
	if err != nil {
		return err
	}
	rt.sup.Start(ctx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rt.close(closeCtx)
	}()

	spec := config.ActionSpec{
		Name:     runName,
		Command:  args[0],
		Args:     args[1:],
		Title:    runTitle,
		Strategy: runStrategy,
	}
	if spec.Name == "" {
		spec.Name = args[0]
	}

	log := logger.WithComponent("main")
	log.Info().Str("action", spec.Name).Msg("Running action")

	if err := scheduler.RunOnce(ctx, rt.sup, spec, cfg.Notification); err != nil {
		return fmt.Errorf("action %q: %w", spec.Name, err)
	}
	return nil
}
