package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultInputFile is the worklist name the clerical team has always used
const DefaultInputFile = "Order_Drug_Suppression.xls"

// Config holds all configuration options for the suppression run
type Config struct {
	EPMA          EPMAConfig         `yaml:"epma" json:"epma"`
	Browser       BrowserConfig      `yaml:"browser" json:"browser"`
	Timing        TimingConfig       `yaml:"timing" json:"timing"`
	Input         InputConfig        `yaml:"input" json:"input"`
	Retry         RetryConfig        `yaml:"retry" json:"retry"`
	Output        OutputConfig       `yaml:"output" json:"output"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// EPMAConfig locates the EPMA portal and holds the login
type EPMAConfig struct {
	BaseURL       string `yaml:"base_url" json:"base_url"`
	LoginPath     string `yaml:"login_path" json:"login_path"`
	InpatientPath string `yaml:"inpatient_path" json:"inpatient_path"`
	Username      string `yaml:"username" json:"username"`
	// Password is only ever read from the environment or a prompt.
	Password string `yaml:"-" json:"-"`
}

// LoginURL returns the absolute login page URL
func (e EPMAConfig) LoginURL() string {
	return joinURL(e.BaseURL, e.LoginPath)
}

// InpatientURL returns the absolute inpatient finder URL
func (e EPMAConfig) InpatientURL() string {
	return joinURL(e.BaseURL, e.InpatientPath)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// BrowserConfig controls the Chrome instance
type BrowserConfig struct {
	Headless     bool     `yaml:"headless" json:"headless"`
	Bin          string   `yaml:"bin" json:"bin"`
	ControlURL   string   `yaml:"control_url" json:"control_url"`
	WindowWidth  int      `yaml:"window_width" json:"window_width"`
	WindowHeight int      `yaml:"window_height" json:"window_height"`
	Flags        []string `yaml:"flags" json:"flags"`
}

// TimingConfig holds every wait and settle delay used against EPMA.
// The defaults were tuned against the live site; shorten with care.
type TimingConfig struct {
	LoginField         time.Duration `yaml:"login_field" json:"login_field"`
	SearchField        time.Duration `yaml:"search_field" json:"search_field"`
	NoResults          time.Duration `yaml:"no_results" json:"no_results"`
	ResultRow          time.Duration `yaml:"result_row" json:"result_row"`
	PatientURL         time.Duration `yaml:"patient_url" json:"patient_url"`
	SimilarPatients    time.Duration `yaml:"similar_patients" json:"similar_patients"`
	PatientNotesLink   time.Duration `yaml:"patient_notes_link" json:"patient_notes_link"`
	NoteList           time.Duration `yaml:"note_list" json:"note_list"`
	NoteClick          time.Duration `yaml:"note_click" json:"note_click"`
	OrderLink          time.Duration `yaml:"order_link" json:"order_link"`
	EditorStep         time.Duration `yaml:"editor_step" json:"editor_step"`
	EditSettle         time.Duration `yaml:"edit_settle" json:"edit_settle"`
	SaveSettle         time.Duration `yaml:"save_settle" json:"save_settle"`
	InterceptedBackoff time.Duration `yaml:"intercepted_backoff" json:"intercepted_backoff"`
	PatientsPerMinute  int           `yaml:"patients_per_minute" json:"patients_per_minute"`
}

// InputConfig describes the worklist spreadsheet
type InputConfig struct {
	File                  string `yaml:"file" json:"file"`
	Sheet                 string `yaml:"sheet" json:"sheet"`
	HospitalNumberColumn  int    `yaml:"hospital_number_column" json:"hospital_number_column"`
	DrugNameColumn        int    `yaml:"drug_name_column" json:"drug_name_column"`
	StrictHospitalNumbers bool   `yaml:"strict_hospital_numbers" json:"strict_hospital_numbers"`
}

// RetryConfig bounds the retries around note suppression
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// OutputConfig holds where run artefacts are written
type OutputConfig struct {
	ReportDirectory string `yaml:"report_directory" json:"report_directory"`
	DryRun          bool   `yaml:"dry_run" json:"dry_run"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config matching the behaviour of the live tool
func DefaultConfig() *Config {
	return &Config{
		EPMA: EPMAConfig{
			BaseURL:       "https://epma.nnuh.nhs.uk:50000",
			LoginPath:     "/Account/Login",
			InpatientPath: "/PatientSearch/Inpatient",
		},
		Browser: BrowserConfig{
			Headless:     false,
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Timing: TimingConfig{
			LoginField:         10 * time.Second,
			SearchField:        10 * time.Second,
			NoResults:          2 * time.Second,
			ResultRow:          20 * time.Second,
			PatientURL:         3 * time.Second,
			SimilarPatients:    5 * time.Second,
			PatientNotesLink:   10 * time.Second,
			NoteList:           3 * time.Second,
			NoteClick:          10 * time.Second,
			OrderLink:          10 * time.Second,
			EditorStep:         5 * time.Second,
			EditSettle:         500 * time.Millisecond,
			SaveSettle:         1 * time.Second,
			InterceptedBackoff: 500 * time.Millisecond,
			PatientsPerMinute:  0,
		},
		Input: InputConfig{
			File:                 DefaultInputFile,
			HospitalNumberColumn: 0,
			DrugNameColumn:       1,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Output: OutputConfig{
			ReportDirectory: "./reports",
		},
		Notifications: NotificationConfig{
			Enabled:          true,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from EPMA_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("EPMA_BASE_URL"); v != "" {
		c.EPMA.BaseURL = v
	}
	if v := os.Getenv("EPMA_USERNAME"); v != "" {
		c.EPMA.Username = v
	}
	if v := os.Getenv("EPMA_PASSWORD"); v != "" {
		c.EPMA.Password = v
	}
	if v := os.Getenv("EPMA_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("EPMA_HEADLESS: %w", err))
		} else {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("EPMA_CHROME_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("EPMA_CONTROL_URL"); v != "" {
		c.Browser.ControlURL = v
	}
	if v := os.Getenv("EPMA_INPUT_FILE"); v != "" {
		c.Input.File = v
	}
	if v := os.Getenv("EPMA_REPORT_DIR"); v != "" {
		c.Output.ReportDirectory = v
	}
	if v := os.Getenv("EPMA_PATIENTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("EPMA_PATIENTS_PER_MINUTE: %w", err))
		} else {
			c.Timing.PatientsPerMinute = n
		}
	}
	if v := os.Getenv("EPMA_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("EPMA_MAX_ATTEMPTS: %w", err))
		} else {
			c.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("EPMA_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("EPMA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EPMA_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"epmasuppress.yaml",
		".epmasuppress.yaml",
		".epmasuppress.yml",
		filepath.Join(home, ".config", "epmasuppress", "config.yaml"),
		filepath.Join(home, ".epmasuppress.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.EPMA.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("EPMA base URL %q is not an absolute URL", c.EPMA.BaseURL))
	}
	if c.EPMA.LoginPath == "" || c.EPMA.InpatientPath == "" {
		errs = append(errs, errors.New("EPMA login and inpatient paths are required"))
	}

	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		errs = append(errs, errors.New("browser window size must be positive"))
	}

	waits := map[string]time.Duration{
		"login_field":        c.Timing.LoginField,
		"search_field":       c.Timing.SearchField,
		"no_results":         c.Timing.NoResults,
		"result_row":         c.Timing.ResultRow,
		"patient_url":        c.Timing.PatientURL,
		"similar_patients":   c.Timing.SimilarPatients,
		"patient_notes_link": c.Timing.PatientNotesLink,
		"note_list":          c.Timing.NoteList,
		"note_click":         c.Timing.NoteClick,
		"order_link":         c.Timing.OrderLink,
		"editor_step":        c.Timing.EditorStep,
	}
	for name, d := range waits {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timing.%s must be positive", name))
		}
	}
	if c.Timing.EditSettle < 0 || c.Timing.SaveSettle < 0 || c.Timing.InterceptedBackoff < 0 {
		errs = append(errs, errors.New("settle delays cannot be negative"))
	}
	if c.Timing.PatientsPerMinute < 0 {
		errs = append(errs, errors.New("patients per minute cannot be negative"))
	}

	if c.Input.File == "" {
		errs = append(errs, errors.New("input file is required"))
	}
	if c.Input.HospitalNumberColumn < 0 || c.Input.DrugNameColumn < 0 {
		errs = append(errs, errors.New("input columns cannot be negative"))
	}
	if c.Input.HospitalNumberColumn == c.Input.DrugNameColumn {
		errs = append(errs, errors.New("hospital number and drug name columns must differ"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.MaxAttempts > 10 {
		errs = append(errs, errors.New("retry max attempts should not exceed 10"))
	}

	if c.Output.ReportDirectory == "" {
		errs = append(errs, errors.New("report directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration to a file. The password is never written.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges explicitly set command line flags
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["input"].(string); ok && v != "" {
		c.Input.File = v
	}
	if v, ok := flags["sheet"].(string); ok && v != "" {
		c.Input.Sheet = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["chrome-bin"].(string); ok && v != "" {
		c.Browser.Bin = v
	}
	if v, ok := flags["control-url"].(string); ok && v != "" {
		c.Browser.ControlURL = v
	}
	if v, ok := flags["base-url"].(string); ok && v != "" {
		c.EPMA.BaseURL = v
	}
	if v, ok := flags["report-dir"].(string); ok && v != "" {
		c.Output.ReportDirectory = v
	}
	if v, ok := flags["dry-run"].(bool); ok {
		c.Output.DryRun = v
	}
	if v, ok := flags["patients-per-minute"].(int); ok && v >= 0 {
		c.Timing.PatientsPerMinute = v
	}
	if v, ok := flags["max-attempts"].(int); ok && v > 0 {
		c.Retry.MaxAttempts = v
	}
	if v, ok := flags["strict"].(bool); ok {
		c.Input.StrictHospitalNumbers = v
	}
	if v, ok := flags["enabled"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > environment > .env file > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".epmasuppress.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
