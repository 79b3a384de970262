package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"epmasuppress/pkg/auth"
	"epmasuppress/pkg/checkpoint"
	"epmasuppress/pkg/config"
	"epmasuppress/pkg/epma"
	"epmasuppress/pkg/logger"
	"epmasuppress/pkg/report"
	"epmasuppress/pkg/suppressor"
	"epmasuppress/pkg/ui"
	"epmasuppress/pkg/ui/tui"
	"epmasuppress/pkg/worklist"
)

var (
	// Run command flags
	inputFile         string
	sheetName         string
	strictNumbers     bool
	headless          bool
	chromeBin         string
	controlURL        string
	baseURL           string
	maxAttempts       int
	accountName       string
	resumeRun         bool
	forceRestart      bool
	dryRun            bool
	useTUI            bool
	patientsPerMinute int
	reportDir         string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Suppress the order drug notes listed in the worklist",
	Long: `Read the worklist spreadsheet and suppress the matching order drug notes
for every patient in it.

The worklist has no header row. Column A holds the hospital number and
column B the drug name; a patient may appear on several rows.

The EPMA login is taken from:
  - the account named with --account
  - EPMA_USERNAME and EPMA_PASSWORD
  - the only stored account ('epmasuppress auth login')
and otherwise you are asked for it.`,
	Example: `  # Run against the default worklist in the current directory
  epmasuppress run

  # Check what would be suppressed without changing anything
  epmasuppress run --input ward12.xlsx --dry-run

  # Headless, at most 20 patients a minute
  epmasuppress run --headless --patients-per-minute 20

  # Continue an interrupted run
  epmasuppress run --resume`,
	Args: cobra.NoArgs,
	RunE: runSuppress,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addRunFlags(runCmd)
	addRunFlags(rootCmd)

	// run is the default command
	rootCmd.Args = cobra.NoArgs
	rootCmd.RunE = runSuppress
}

// addRunFlags registers the run flags on cmd. The root carries them too
// because run is the default command.
func addRunFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&inputFile, "input", "i", "", "worklist spreadsheet (.xls, .xlsx or .csv)")
	fs.StringVar(&sheetName, "sheet", "", "worksheet to read (default is the first)")
	fs.BoolVar(&strictNumbers, "strict", false, "skip rows whose hospital number is not 7 digits")
	fs.BoolVar(&headless, "headless", false, "run Chrome without a window")
	fs.StringVar(&chromeBin, "chrome-bin", "", "Chrome or Chromium binary to launch")
	fs.StringVar(&controlURL, "control-url", "", "DevTools URL of an already running Chrome")
	fs.StringVar(&baseURL, "base-url", "", "EPMA address, including the port")
	fs.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	fs.BoolVar(&resumeRun, "resume", false, "resume from the last checkpoint")
	fs.BoolVar(&forceRestart, "force-restart", false, "ignore an existing checkpoint and start again")
	fs.BoolVar(&dryRun, "dry-run", false, "report what would be suppressed without editing notes")
	fs.BoolVar(&useTUI, "tui", false, "use the interactive terminal UI")
	fs.IntVar(&patientsPerMinute, "patients-per-minute", 0, "limit patient searches per minute (0 = unlimited)")
	fs.IntVar(&maxAttempts, "max-attempts", 0, "attempts per note before the patient is marked failed")
	fs.StringVar(&reportDir, "report-dir", "", "directory for the suppression report")
}

// runFlags collects the flags the user actually set
func runFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed

	if changed("input") {
		flags["input"] = inputFile
	}
	if changed("sheet") {
		flags["sheet"] = sheetName
	}
	if changed("strict") {
		flags["strict"] = strictNumbers
	}
	if changed("headless") {
		flags["headless"] = headless
	}
	if changed("chrome-bin") {
		flags["chrome-bin"] = chromeBin
	}
	if changed("control-url") {
		flags["control-url"] = controlURL
	}
	if changed("base-url") {
		flags["base-url"] = baseURL
	}
	if changed("max-attempts") {
		flags["max-attempts"] = maxAttempts
	}
	if changed("dry-run") {
		flags["dry-run"] = dryRun
	}
	if changed("patients-per-minute") {
		flags["patients-per-minute"] = patientsPerMinute
	}
	if changed("report-dir") {
		flags["report-dir"] = reportDir
	}
	if changed("notifications") {
		flags["enabled"] = notifications
	}
	if changed("log-level") || logLevel != "info" {
		flags["log-level"] = logLevel
	}
	if changed("log-file") {
		flags["log-file"] = logFile
	}
	return flags
}

func runSuppress(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, runFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialise logging", err.Error())
		return err
	}
	logger.WithField("version", version).Info("epmasuppress starting")

	wl, err := worklist.Read(cfg.Input.File, worklist.Options{
		Sheet:                cfg.Input.Sheet,
		HospitalNumberColumn: cfg.Input.HospitalNumberColumn,
		DrugNameColumn:       cfg.Input.DrugNameColumn,
		Strict:               cfg.Input.StrictHospitalNumbers,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to read worklist")
		ui.PrintError("Failed to read worklist", err.Error())
		return err
	}
	ui.PrintInfo("Worklist", fmt.Sprintf("%s (%d patients, %d drugs)", wl.Source, wl.Len(), wl.DrugCount()))

	account, prompted, err := resolveAccount(cfg)
	if err != nil {
		ui.PrintError("No EPMA login", err.Error())
		return err
	}
	if prompted && !cmd.Flags().Changed("headless") && os.Getenv("EPMA_HEADLESS") == "" {
		if cfg.Browser.Headless, err = askYesNo("Run headless?"); err != nil {
			return err
		}
	}
	if cfg.Output.DryRun {
		ui.PrintHighlight("[DRY RUN - NO NOTES WILL BE CHANGED]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := epma.NewRodDriver(ctx, cfg.Browser, cfg.Timing.EditorStep)
	if err != nil {
		logger.WithError(err).Error("Failed to start the browser")
		ui.PrintError("Failed to start the browser", err.Error())
		return err
	}
	session := epma.NewSession(driver, cfg.EPMA, cfg.Timing)
	defer session.Close()

	if err := session.Login(ctx, account.Username, account.Password); err != nil {
		logger.WithError(err).Error("Login failed")
		ui.PrintError("Login failed", err.Error())
		return err
	}

	runID := report.NewRunID()
	recorder, err := report.NewWriter(cfg.Output.ReportDirectory, runID)
	if err != nil {
		ui.PrintError("Failed to create report", err.Error())
		return err
	}
	defer recorder.Close()

	opts := []suppressor.Option{
		suppressor.WithRecorder(recorder),
		suppressor.WithRunID(runID),
		suppressor.WithProgress(!quiet),
	}
	if mgr, err := checkpoint.NewManager(cfg.Input.File); err != nil {
		logger.WithError(err).Warn("Checkpoints unavailable, this run cannot be resumed")
	} else {
		opts = append(opts, suppressor.WithCheckpoint(mgr, resumeRun, forceRestart))
	}

	start := time.Now()
	var summary *suppressor.Summary
	if useTUI {
		summary, err = runWithTUI(ctx, cfg, session, wl, opts)
	} else {
		ui.PrintHighlight("[STARTING SUPPRESSION RUN]")
		summary, err = suppressor.New(cfg, session, opts...).Run(ctx, wl)
	}
	elapsed := time.Since(start)

	notifier := ui.NewNotifierFromConfig(cfg.Notifications)

	switch {
	case errors.Is(err, suppressor.ErrCheckpointExists):
		return err
	case errors.Is(err, context.Canceled):
		ui.PrintWarning("Run stopped before the end of the worklist")
	case err != nil:
		logger.WithError(err).Error("Suppression run failed")
		notifier.SendError("Suppression run failed", err.Error())
		return err
	}

	printSummary(summary, recorder.Path())
	fmt.Printf("Time taken to execute suppressions: %d seconds\n", int(elapsed.Seconds()))
	if summary != nil && !summary.Stopped {
		notifier.SendSuccess("Suppression run complete",
			fmt.Sprintf("%d notes suppressed across %d patients", summary.NotesSuppressed, summary.Completed()))
	}
	return nil
}

// runWithTUI drives the run and the terminal UI together. Quitting the UI
// stops the run; the run ending closes the UI.
func runWithTUI(ctx context.Context, cfg *config.Config, session *epma.Session, wl *worklist.Worklist, opts []suppressor.Option) (*suppressor.Summary, error) {
	terminal := tui.NewTUI(wl.Len())
	prevConsole := logger.SetConsoleOutput(io.Discard)
	defer logger.SetConsoleOutput(prevConsole)
	prevOut := ui.SetOutput(io.Discard)
	defer ui.SetOutput(prevOut)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	s := suppressor.New(cfg, session, append(opts, suppressor.WithTUI(terminal))...)

	var summary *suppressor.Summary
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer terminal.Stop()
		var err error
		summary, err = s.Run(gctx, wl)
		return err
	})
	g.Go(func() error {
		err := terminal.Start()
		cancelRun()
		return err
	})

	err := g.Wait()
	return summary, err
}

// resolveAccount finds the EPMA login. prompted reports whether the user
// had to type it.
func resolveAccount(cfg *config.Config) (*auth.Account, bool, error) {
	if accountName == "" && cfg.EPMA.Username != "" && cfg.EPMA.Password != "" {
		logger.Info("Using credentials from the environment")
		return &auth.Account{Username: cfg.EPMA.Username, Password: cfg.EPMA.Password}, false, nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		logger.WithError(err).Warn("Credential manager unavailable")
	} else {
		var account *auth.Account
		if accountName != "" {
			account, err = manager.Retrieve(accountName)
			if err != nil {
				ui.PrintInfo("Stored accounts", "Use 'epmasuppress auth list' to see them")
				return nil, false, fmt.Errorf("account %s: %w", accountName, err)
			}
		} else {
			account, err = manager.RetrieveDefault()
		}
		if err == nil {
			logger.WithField("account", account.Username).Info("Using stored credentials")
			ui.PrintInfo("Using account", account.Username)
			return account, false, nil
		}
		if !errors.Is(err, auth.ErrCredentialsNotFound) {
			return nil, false, err
		}
	}

	username := cfg.EPMA.Username
	if username == "" {
		if username, err = prompt("Enter your EPMA username: "); err != nil {
			return nil, false, err
		}
	}
	password, err := readPassword("Enter your EPMA password: ")
	if err != nil {
		return nil, false, err
	}
	if username == "" || password == "" {
		return nil, false, errors.New("username and password are required")
	}
	return &auth.Account{Username: auth.NormalizeUsername(username), Password: password}, true, nil
}

func printSummary(s *suppressor.Summary, reportPath string) {
	if s == nil {
		return
	}
	ui.PrintHighlight("Run summary")
	ui.PrintInfo("Run ID", s.RunID)
	ui.PrintInfo("Patients", fmt.Sprintf("%d out of %d completed", s.Completed(), s.Total))
	if s.Resumed > 0 {
		ui.PrintInfo("Done in an earlier run", fmt.Sprint(s.Resumed))
	}
	ui.PrintInfo("Processed", fmt.Sprint(s.Processed))
	ui.PrintInfo("Not found", fmt.Sprint(s.Skipped))
	ui.PrintInfo("Failed", fmt.Sprint(s.Failed))
	label := "Notes suppressed"
	if s.DryRun {
		label = "Notes that would be suppressed"
	}
	ui.PrintInfo(label, fmt.Sprint(s.NotesSuppressed))
	ui.PrintInfo("Notes left alone", fmt.Sprint(s.NotesNotInList))
	ui.PrintInfo("Report", reportPath)
	if s.Failed > 0 {
		ui.PrintWarning("Some patients failed", "run again with --resume to retry them")
	}
}
