package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"epmasuppress/pkg/config"
	"epmasuppress/pkg/report"
	"epmasuppress/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage epmasuppress configuration files.

Configuration is loaded from:
  - Command line flags (highest priority)
  - EPMA_* environment variables
  - .env file
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with every option at its default.

The file is created in the current directory as 'epmasuppress.yaml'
unless a different path is given with --config.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the configuration after every source has been applied.
The EPMA password is never shown.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - EPMA URL and paths
  - Timing and retry values
  - Input file and report directory`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# epmasuppress configuration
#
# Any value can also be set with an EPMA_* environment variable,
# for example EPMA_BASE_URL, EPMA_USERNAME, EPMA_PASSWORD, EPMA_HEADLESS.
# The password is never read from this file.

epma:
  base_url: "https://epma.nnuh.nhs.uk:50000"
  login_path: "/Account/Login"
  inpatient_path: "/PatientSearch/Inpatient"
  # Upper-cased before login. Leave empty to be asked.
  username: ""

browser:
  headless: false
  # Chrome binary; empty lets go-rod find or download one
  bin: ""
  # Attach to an already running Chrome (ws://...) instead of launching
  control_url: ""
  window_width: 1920
  window_height: 1080
  flags: []

# Waits against EPMA. The defaults match the live site; shorten with care.
timing:
  login_field: 10s
  search_field: 10s
  no_results: 2s
  result_row: 20s
  patient_url: 3s
  similar_patients: 5s
  patient_notes_link: 10s
  note_list: 3s
  note_click: 10s
  order_link: 10s
  editor_step: 5s
  edit_settle: 500ms
  save_settle: 1s
  intercepted_backoff: 500ms
  # 0 means no limit
  patients_per_minute: 0

input:
  file: "Order_Drug_Suppression.xls"
  # Empty reads the first sheet
  sheet: ""
  hospital_number_column: 0
  drug_name_column: 1
  # Reject hospital numbers that are not seven digits
  strict_hospital_numbers: false

retry:
  max_attempts: 3
  base_delay: 500ms
  max_delay: 5s
  multiplier: 2.0
  jitter_factor: 0.1

output:
  report_directory: "./reports"
  dry_run: false

notifications:
  enabled: true
  on_complete: true
  on_error: true
  # terminal, desktop or none
  notification_type: "terminal"

logging:
  # debug, info, warn, error
  level: "info"
  # Also write JSON logs to this file
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "epmasuppress.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("%s already exists", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Check the EPMA address and the worklist file name")
	fmt.Println("2. Run 'epmasuppress config validate' to check the configuration")
	fmt.Println("3. Save your login with 'epmasuppress auth login'")
	fmt.Println("4. Try a dry run with 'epmasuppress run --dry-run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		return err
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (EPMA_*)")
	fmt.Println("3. .env file")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: (searched in the usual locations)")
	}
	fmt.Println("5. Default values")

	if reports, err := report.ListReports(cfg.Output.ReportDirectory); err == nil && len(reports) > 0 {
		fmt.Printf("\nLatest report: %s\n", reports[0])
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		home := os.Getenv("HOME")
		for _, candidate := range []string{
			"epmasuppress.yaml",
			".epmasuppress.yaml",
			".epmasuppress.yml",
			filepath.Join(home, ".config", "epmasuppress", "config.yaml"),
			filepath.Join(home, ".epmasuppress.yaml"),
		} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			ui.PrintError("No configuration file found", "Specify a file with --config flag")
			return fmt.Errorf("no configuration file found")
		}
	}

	ui.PrintInfo("Validating configuration", path)

	cfg, err := config.Load(path, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		return err
	}

	var warnings, problems []string

	if _, err := os.Stat(cfg.Input.File); err != nil {
		warnings = append(warnings, fmt.Sprintf("Worklist %s not found", cfg.Input.File))
	}
	if err := os.MkdirAll(cfg.Output.ReportDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("Cannot create report directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}
	if cfg.Output.DryRun {
		warnings = append(warnings, "dry_run is on, no notes will be changed")
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d configuration errors", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  EPMA: %s\n", cfg.EPMA.BaseURL)
	fmt.Printf("  Worklist: %s\n", cfg.Input.File)
	fmt.Printf("  Report directory: %s\n", cfg.Output.ReportDirectory)
	fmt.Printf("  Headless: %t\n", cfg.Browser.Headless)
	if cfg.Timing.PatientsPerMinute > 0 {
		fmt.Printf("  Pacing: %d patients/minute\n", cfg.Timing.PatientsPerMinute)
	} else {
		fmt.Println("  Pacing: unlimited")
	}
	fmt.Printf("  Max retries: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
