package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"epmasuppress/pkg/config"
	"epmasuppress/pkg/epma"
	"epmasuppress/pkg/logger"
	"epmasuppress/pkg/ui"
	"epmasuppress/pkg/worklist"
)

var seedCount int

// seedCmd fills a test patient with order drug notes
var seedCmd = &cobra.Command{
	Use:    "seed-notes <hospital-number>",
	Short:  "Add order drug notes to a patient on a test EPMA",
	Hidden: true,
	Long: `Add "Suppress this!" order drug notes to one patient, for exercising a
test EPMA. Never point this at the live site.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 100, "number of notes to add")
	seedCmd.Flags().BoolVar(&headless, "headless", false, "run Chrome without a window")
	seedCmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored account")
}

func runSeed(cmd *cobra.Command, args []string) error {
	hospitalNumber := worklist.NormalizeHospitalNumber(args[0])
	if hospitalNumber == "" {
		return fmt.Errorf("invalid hospital number %q", args[0])
	}

	flags := map[string]interface{}{"log-level": logLevel}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = headless
	}
	if cmd.Flags().Changed("log-file") {
		flags["log-file"] = logFile
	}
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}

	account, _, err := resolveAccount(cfg)
	if err != nil {
		ui.PrintError("No EPMA login", err.Error())
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := epma.NewRodDriver(ctx, cfg.Browser, cfg.Timing.EditorStep)
	if err != nil {
		ui.PrintError("Failed to start the browser", err.Error())
		return err
	}
	session := epma.NewSession(driver, cfg.EPMA, cfg.Timing)
	defer session.Close()

	if err := session.Login(ctx, account.Username, account.Password); err != nil {
		ui.PrintError("Login failed", err.Error())
		return err
	}

	outcome, err := session.OpenPatient(ctx, hospitalNumber)
	if err != nil {
		ui.PrintError("Could not open patient", err.Error())
		return err
	}
	if outcome != epma.Opened {
		return fmt.Errorf("patient %s: %s", hospitalNumber, outcome)
	}

	created, err := session.PopulateNotes(ctx, seedCount)
	ui.PrintInfo("Notes added", fmt.Sprintf("%d of %d", created, seedCount))
	return err
}
