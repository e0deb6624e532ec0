package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	serviceName        = "fgaction"
	startupErrorLogDir = "log/fgaction"
)

var (
	configPath  string
	loggingPath string
	apiAddr     string
	output      string
)

var rootCmd = &cobra.Command{
	Use:           "fgaction",
	Short:         "Foreground action supervisor",
	Long:          `fgaction runs long-lived actions inside OS-level execution contexts and guarantees those contexts are stopped however the action ends.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fgaction %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "conf/fgaction/fgaction.json", "path to main configuration file")
	rootCmd.PersistentFlags().StringVar(&loggingPath, "logging", "conf/fgaction/Logging.json", "path to logging configuration file")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://127.0.0.1:8088", "control API base URL for client commands")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format: table or json")

	rootCmd.AddCommand(serveCmd, runCmd, listCmd, stopCmd, launchCmd, versionCmd)
}
