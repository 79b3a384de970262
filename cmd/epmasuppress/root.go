package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"epmasuppress/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	logFile       string
	noColor       bool
	notifications bool
	quiet         bool
	progressOnly  bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "epmasuppress",
	Short: "Suppress stale order drug notes in EPMA",
	Long: `epmasuppress works through a spreadsheet of hospital numbers and drug
names and retitles the matching "**Order Drug**" notes in EPMA as SUPPRESSED.

For each patient it:
  - searches the inpatient finder by hospital number
  - opens the patient notes
  - suppresses every order drug note whose linked drug is in the list,
    and every order drug note with no order link at all

Notes linked to a drug that is not in the list are left alone and reported.
Every action is written to a JSONL report in the report directory.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetNoColor(true)
		}

		// Progress mode is default unless verbose is specified
		if !verbose && !quiet {
			progressOnly = true
		}

		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}

		if progressOnly {
			ui.SetProgressOnlyMode(true)
			// keep log lines from interleaving with the progress output
			if !cmd.Flags().Changed("log-level") {
				logLevel = "warn"
			}
		}

		if cmd.Name() != "version" && cmd.Name() != "help" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./epmasuppress.yaml or $HOME/.epmasuppress.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "notify when the run finishes")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&progressOnly, "progress", "p", false, "show only progress and essential info")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show all output (logo, logs, progress)")

	rootCmd.SetVersionTemplate(`epmasuppress {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}
