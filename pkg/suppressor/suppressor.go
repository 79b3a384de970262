package suppressor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"epmasuppress/pkg/checkpoint"
	"epmasuppress/pkg/config"
	"epmasuppress/pkg/epma"
	errs "epmasuppress/pkg/errors"
	"epmasuppress/pkg/logger"
	"epmasuppress/pkg/ratelimit"
	"epmasuppress/pkg/report"
	"epmasuppress/pkg/retry"
	"epmasuppress/pkg/ui"
	"epmasuppress/pkg/worklist"
)

const pausePoll = 200 * time.Millisecond

// ErrCheckpointExists is returned when a previous run left a checkpoint and
// neither resume nor force restart was requested
var ErrCheckpointExists = errors.New("checkpoint exists - use --resume to continue or --force-restart to start fresh")

// Summary is the outcome of a run
type Summary struct {
	RunID           string
	Total           int
	Resumed         int // patients already done in a previous run
	Processed       int
	Skipped         int // no results in EPMA
	Failed          int
	NotesSuppressed int
	NotesNotInList  int
	Elapsed         time.Duration
	Stopped         bool
	DryRun          bool
}

// Completed returns how many patients are finished, including resumed ones
func (s *Summary) Completed() int {
	return s.Resumed + s.Processed + s.Skipped + s.Failed
}

// Suppressor orchestrates a suppression run
type Suppressor struct {
	session       Session
	config        *config.Config
	logger        logger.Logger
	limiter       ratelimit.Limiter
	recorder      report.Recorder
	checkpointMgr *checkpoint.Manager
	resume        bool
	forceRestart  bool
	tui           ui.TUI
	progress      *ui.ProgressDisplay
	showProgress  bool
	runID         string
	sleep         func(ctx context.Context, d time.Duration) error
	retrier       *retry.UIRetrier

	windowStart time.Time
	windowUsed  int
}

// Option configures a Suppressor
type Option func(*Suppressor)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Suppressor) { s.logger = l }
}

// WithTUI routes progress to a terminal UI
func WithTUI(t ui.TUI) Option {
	return func(s *Suppressor) { s.tui = t }
}

// WithProgress shows the single-line progress display when no TUI is set
func WithProgress(show bool) Option {
	return func(s *Suppressor) { s.showProgress = show }
}

// WithRecorder sets where audit entries go
func WithRecorder(r report.Recorder) Option {
	return func(s *Suppressor) { s.recorder = r }
}

// WithCheckpoint enables resume support
func WithCheckpoint(m *checkpoint.Manager, resume, forceRestart bool) Option {
	return func(s *Suppressor) {
		s.checkpointMgr = m
		s.resume = resume
		s.forceRestart = forceRestart
	}
}

// WithLimiter replaces the patients-per-minute limiter
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Suppressor) { s.limiter = l }
}

// WithRunID sets the run identifier written to the checkpoint and report
func WithRunID(id string) Option {
	return func(s *Suppressor) { s.runID = id }
}

// WithSleep replaces the back-off sleep, mainly for tests
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Suppressor) { s.sleep = fn }
}

// New creates a Suppressor over a logged-in session
func New(cfg *config.Config, session Session, opts ...Option) *Suppressor {
	s := &Suppressor{
		session:  session,
		config:   cfg,
		logger:   logger.GetLogger().WithField("component", "suppressor"),
		limiter:  ratelimit.ForPatientsPerMinute(cfg.Timing.PatientsPerMinute),
		recorder: report.Discard{},
		sleep:    retry.Wait,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runID == "" {
		s.runID = report.NewRunID()
	}
	s.retrier = retry.NewUIRetrier(cfg.Retry.MaxAttempts,
		retry.NewErrorTypeBackoff(cfg.Retry, cfg.Timing.InterceptedBackoff), s.logger).
		RetryIf(retrySuppression)
	return s
}

// RunID returns the run identifier
func (s *Suppressor) RunID() string {
	return s.runID
}

// patientResult collects what happened to one patient
type patientResult struct {
	outcome    epma.SearchOutcome
	suppressed int
	notInList  int
	err        error
}

// Run processes every patient in wl. Cancelling ctx stops the run after
// the current step; the summary so far is returned with ctx.Err().
func (s *Suppressor) Run(ctx context.Context, wl *worklist.Worklist) (*Summary, error) {
	start := time.Now()
	dryRun := s.config.Output.DryRun
	summary := &Summary{RunID: s.runID, Total: wl.Len(), DryRun: dryRun}

	cp, err := s.prepareCheckpoint(wl, dryRun)
	if err != nil {
		return summary, err
	}

	s.logger.InfoWithFields("Starting suppression run", map[string]interface{}{
		"worklist": wl.Source,
		"patients": wl.Len(),
		"drugs":    wl.DrugCount(),
		"run_id":   s.runID,
		"dry_run":  dryRun,
		"resume":   cp != nil && len(cp.Completed) > 0,
	})
	if s.tui != nil {
		s.tui.LogInfo("Starting run %s over %d patients", s.runID, wl.Len())
	}

	tracker := ui.NewStatusTracker(wl.Len())
	if s.tui == nil && s.showProgress {
		debugMode := s.config.Logging.Level == "debug"
		s.progress = ui.NewProgressDisplay(wl.Source, wl.Len(), debugMode)
	}

	patients := wl.Patients()
	for i, patient := range patients {
		if ctx.Err() != nil {
			break
		}

		if cp != nil && cp.IsCompleted(patient.HospitalNumber) {
			summary.Resumed++
			tracker.Increment()
			s.logger.WithField("hospital_number", patient.HospitalNumber).Debug("Already completed in a previous run")
			continue
		}

		if err := s.waitWhilePaused(ctx); err != nil {
			break
		}
		if err := s.pace(ctx); err != nil {
			break
		}

		if s.tui != nil {
			s.tui.StartPatient(patient.HospitalNumber, i+1, len(patients))
		} else if s.progress != nil {
			s.progress.StartPatient(patient.HospitalNumber)
		}

		res := s.processPatient(ctx, patient)
		if ctx.Err() != nil && res.err != nil {
			break
		}
		s.finishPatient(patient, res, summary)

		if cp != nil && res.outcome != epma.Failed {
			if err := s.checkpointMgr.RecordPatient(cp, patient.HospitalNumber, res.suppressed); err != nil {
				s.logger.WithError(err).Warn("Failed to update checkpoint")
			}
		}

		completed := tracker.Increment()
		logger.LogProgress(completed, wl.Len())
		if s.tui == nil && s.progress == nil {
			ui.PrintInfo("Progress", tracker.Line())
		}

		if err := s.session.OpenInpatientFinder(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.WithError(err).Error("Could not return to the inpatient finder")
		}
	}

	summary.Elapsed = time.Since(start)

	if ctx.Err() != nil {
		summary.Stopped = true
		s.logger.Warn("Stopping...")
		if s.tui != nil {
			s.tui.LogWarning("Stopping...")
		}
		return summary, ctx.Err()
	}

	s.logger.InfoWithFields("Suppression run completed", map[string]interface{}{
		"run_id":           s.runID,
		"processed":        summary.Processed,
		"skipped":          summary.Skipped,
		"failed":           summary.Failed,
		"notes_suppressed": summary.NotesSuppressed,
		"notes_not_listed": summary.NotesNotInList,
		"elapsed":          summary.Elapsed.String(),
	})

	if cp != nil && summary.Failed == 0 {
		if err := s.checkpointMgr.Delete(); err != nil {
			s.logger.WithError(err).Warn("Failed to delete checkpoint")
		} else {
			s.logger.Info("Checkpoint deleted after successful completion")
		}
	}

	if s.tui != nil {
		s.tui.LogSuccess("Run complete: %d notes suppressed", summary.NotesSuppressed)
	} else if s.progress != nil {
		s.progress.Complete()
	}
	return summary, nil
}

// prepareCheckpoint loads, resets or creates the checkpoint. Dry runs
// never touch it.
func (s *Suppressor) prepareCheckpoint(wl *worklist.Worklist, dryRun bool) (*checkpoint.Checkpoint, error) {
	if s.checkpointMgr == nil || dryRun {
		return nil, nil
	}
	mgr := s.checkpointMgr

	var cp *checkpoint.Checkpoint
	switch {
	case s.forceRestart && mgr.Exists():
		if err := mgr.Delete(); err != nil {
			s.logger.WithError(err).Warn("Failed to delete existing checkpoint")
		}
		ui.PrintInfo("Force restart", "Ignoring existing checkpoint")
	case s.resume && mgr.Exists():
		loaded, err := mgr.Load()
		if err != nil {
			s.logger.WithError(err).Error("Failed to load checkpoint")
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		cp = loaded
		if cp != nil {
			ui.PrintInfo("Resuming from checkpoint", fmt.Sprintf("%d of %d patients done", len(cp.Completed), cp.TotalPatients))
			s.logger.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
				"worklist":  wl.Source,
				"completed": len(cp.Completed),
				"run_id":    cp.RunID,
			})
		}
	case mgr.Exists():
		info, _ := mgr.GetCheckpointInfo()
		if info != nil {
			if !ui.IsQuietMode() {
				fmt.Fprintf(ui.Output(), "\n%s Previous run found (%d of %d patients)\n", ui.Yellow("►"), info["completed"], info["total_patients"])
				fmt.Fprintf(ui.Output(), "  Use: %s to continue where you left off\n", ui.Green("--resume"))
				fmt.Fprintf(ui.Output(), "  Use: %s to start fresh\n\n", ui.Yellow("--force-restart"))
			}
			return nil, ErrCheckpointExists
		}
	}

	if cp == nil {
		created, err := mgr.Create(wl.Source, s.runID, wl.Len())
		if err != nil {
			s.logger.WithError(err).Warn("Failed to create checkpoint")
			created = &checkpoint.Checkpoint{
				Worklist:      wl.Source,
				RunID:         s.runID,
				TotalPatients: wl.Len(),
				Completed:     make(map[string]time.Time),
			}
		}
		cp = created
	}
	return cp, nil
}

func (s *Suppressor) waitWhilePaused(ctx context.Context) error {
	if s.tui == nil {
		return nil
	}
	for s.tui.IsPaused() {
		if err := retry.Wait(ctx, pausePoll); err != nil {
			return err
		}
	}
	return nil
}

// pace holds the run to timing.patients_per_minute
func (s *Suppressor) pace(ctx context.Context) error {
	limit := s.config.Timing.PatientsPerMinute

	if !s.limiter.Allow() {
		s.logger.WithField("patients_per_minute", limit).Info("Patient limit reached for this minute, waiting")
		if s.tui != nil {
			s.tui.UpdatePacing(limit, limit, s.windowStart.Add(time.Minute))
		} else if s.progress != nil {
			s.progress.PacingWarning()
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	now := time.Now()
	if now.Sub(s.windowStart) >= time.Minute {
		s.windowStart, s.windowUsed = now, 0
	}
	s.windowUsed++
	if s.tui != nil && limit > 0 {
		s.tui.UpdatePacing(s.windowUsed, limit, s.windowStart.Add(time.Minute))
	}
	return nil
}

func (s *Suppressor) processPatient(ctx context.Context, patient worklist.Patient) patientResult {
	outcome, err := s.session.OpenPatient(ctx, patient.HospitalNumber)
	if err != nil || outcome != epma.Opened {
		return patientResult{outcome: outcome, err: err}
	}

	res := patientResult{outcome: epma.Opened}
	if err := s.evaluateNotes(ctx, patient, &res); err != nil {
		res.outcome = epma.Failed
		res.err = err
	}
	return res
}

func (s *Suppressor) finishPatient(patient worklist.Patient, res patientResult, summary *Summary) {
	hn := patient.HospitalNumber
	summary.NotesSuppressed += res.suppressed
	summary.NotesNotInList += res.notInList

	switch res.outcome {
	case epma.Opened:
		summary.Processed++
		logger.LogPatient(hn, res.outcome.String(), nil)
		if s.tui != nil {
			s.tui.CompletePatient(hn, res.suppressed)
		} else if s.progress != nil {
			s.progress.CompletePatient(hn)
		}

	case epma.NoResults:
		summary.Skipped++
		logger.LogPatient(hn, res.outcome.String(), nil)
		s.record(report.Entry{HospitalNumber: hn, Action: report.ActionPatientNotFound})
		if s.tui != nil {
			s.tui.SkipPatient(hn, "no results")
		} else if s.progress != nil {
			s.progress.SkipPatient(hn)
		}

	default:
		summary.Failed++
		err := res.err
		if err == nil {
			err = errors.New("patient could not be opened")
		}
		logger.LogPatient(hn, res.outcome.String(), err)
		s.record(report.Entry{HospitalNumber: hn, Action: report.ActionPatientFailed, Error: err.Error()})
		if s.tui != nil {
			s.tui.FailPatient(hn, err)
		} else if s.progress != nil {
			s.progress.FailPatient(hn, err)
		}
	}
}

type noteOutcome int

const (
	noteKept noteOutcome = iota
	noteSuppressed
	noteAbandon
)

// evaluateNotes walks the open patient's order drug notes. After a note is
// suppressed the list is fetched again and the walk restarts from the top.
func (s *Suppressor) evaluateNotes(ctx context.Context, patient worklist.Patient, res *patientResult) error {
	log := s.logger.WithField("hospital_number", patient.HospitalNumber)
	maxFaults := s.config.Retry.MaxAttempts

	notes, err := s.session.FindOrderDrugNotes(ctx)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		log.Info("No order drug notes to be suppressed")
		return nil
	}

	i := 0
	// notes before reported were kept and have already been reported
	reported := 0
	faults := 0
	unchanged := 0

	for i < len(notes) {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := s.evaluateNote(ctx, patient, notes[i], i >= reported, res)
		if outcome == noteAbandon {
			log.WithError(err).Warn("Trying next patient")
			return err
		}

		switch {
		case err == nil:
			faults = 0
			if outcome == noteKept {
				if i >= reported {
					reported = i + 1
				}
				i++
				continue
			}
			if s.config.Output.DryRun {
				reported = i + 1
				i++
				continue
			}

			before := len(notes)
			notes, err = s.refetch(ctx)
			if err != nil {
				log.WithError(err).Warn("Trying next patient")
				return err
			}
			if len(notes) >= before {
				unchanged++
				if unchanged > maxFaults {
					return errs.New(errs.ErrorTypeUnknown, "suppress", "suppressed note is still listed")
				}
			} else {
				unchanged = 0
			}
			i = 0

		case ctx.Err() != nil:
			return ctx.Err()

		case errs.IsStale(err):
			faults++
			if faults > maxFaults {
				return fmt.Errorf("note %d kept going stale: %w", i+1, err)
			}
			log.Debug("Note list went stale, fetching it again")
			if notes, err = s.refetch(ctx); err != nil {
				log.WithError(err).Warn("Trying next patient")
				return err
			}

		case errs.IsClickIntercepted(err):
			faults++
			if faults > maxFaults {
				return fmt.Errorf("note %d click kept being intercepted: %w", i+1, err)
			}
			log.Debug("Click intercepted, backing off")
			if err := s.sleep(ctx, s.config.Timing.InterceptedBackoff); err != nil {
				return err
			}

		case errs.IsTimeout(err):
			log.WithError(err).Warn("Trying next patient")
			return err

		default:
			return err
		}
	}
	return nil
}

func (s *Suppressor) refetch(ctx context.Context) ([]epma.Element, error) {
	return s.session.FindOrderDrugNotes(ctx)
}

// evaluateNote opens one note and suppresses it when it has no order link
// or its drug is in the patient's list
func (s *Suppressor) evaluateNote(ctx context.Context, patient worklist.Patient, note epma.Element, firstSeen bool, res *patientResult) (noteOutcome, error) {
	hn := patient.HospitalNumber

	if err := s.session.OpenNote(ctx, note); err != nil {
		return noteKept, err
	}
	drug, linked, err := s.session.OrderLink(ctx)
	if err != nil {
		return noteKept, err
	}

	if linked && !patient.Matches(drug) {
		if firstSeen {
			s.logger.WithField("hospital_number", hn).Info(fmt.Sprintf("Drug name %s not in drug list", drug))
			res.notInList++
			s.recordNotInList(hn, drug)
		}
		return noteKept, nil
	}

	title, err := s.suppress(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return noteKept, ctx.Err()
		}
		return noteAbandon, fmt.Errorf("suppress note: %w", err)
	}

	res.suppressed++
	s.recordSuppressed(hn, title, drug)
	return noteSuppressed, nil
}

// suppress retitles the open note, or only reads its title in a dry run.
// An intercepted click settles for timing.intercepted_backoff before the
// next attempt; a timed out editor step backs off per the retry settings.
func (s *Suppressor) suppress(ctx context.Context) (string, error) {
	if s.config.Output.DryRun {
		return s.session.ActiveNoteTitle(ctx)
	}
	return retry.DoTyped(ctx, s.retrier, func() (string, error) {
		return s.session.SuppressActiveNote(ctx)
	})
}

// retrySuppression also retries timeouts, which elsewhere abandon the patient
func retrySuppression(err error) bool {
	return errs.IsTimeout(err) || errs.IsClickIntercepted(err)
}

func (s *Suppressor) recordSuppressed(hn, title, drug string) {
	dryRun := s.config.Output.DryRun
	logger.LogSuppression(hn, title, drug, dryRun)

	action := report.ActionSuppressed
	if dryRun {
		action = report.ActionWouldSuppress
	}
	s.record(report.Entry{HospitalNumber: hn, NoteTitle: title, DrugLink: drug, Action: action})

	if s.tui != nil {
		s.tui.NoteSuppressed(hn, title)
	} else if s.progress != nil {
		s.progress.NoteSuppressed(hn, title)
	}
}

func (s *Suppressor) recordNotInList(hn, drug string) {
	s.record(report.Entry{HospitalNumber: hn, DrugLink: drug, Action: report.ActionSkippedNotInList})
	if s.tui != nil {
		s.tui.NoteSkipped(hn, drug)
	} else if s.progress != nil {
		s.progress.NoteSkipped(hn, drug)
	}
}

func (s *Suppressor) record(e report.Entry) {
	if e.RunID == "" {
		e.RunID = s.runID
	}
	if err := s.recorder.Record(e); err != nil {
		s.logger.WithError(err).Warn("Failed to write report entry")
	}
}
