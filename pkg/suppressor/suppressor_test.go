package suppressor_test

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epmasuppress/pkg/checkpoint"
	"epmasuppress/pkg/config"
	"epmasuppress/pkg/epma"
	"epmasuppress/pkg/epma/epmatest"
	errs "epmasuppress/pkg/errors"
	"epmasuppress/pkg/logger"
	"epmasuppress/pkg/report"
	"epmasuppress/pkg/suppressor"
	"epmasuppress/pkg/ui"
	"epmasuppress/pkg/worklist"
)

const baseURL = "https://epma.test:50000"

func noSleep(context.Context, time.Duration) error { return nil }

type harness struct {
	cfg     *config.Config
	site    *epmatest.Site
	session *epma.Session
	log     *logger.TestLogger
}

func newHarness(t *testing.T, patients ...*epmatest.Patient) *harness {
	t.Helper()

	log := logger.NewTestLogger()
	prevLog := logger.GetLogger()
	logger.SetLogger(log)
	prevOut := ui.SetOutput(io.Discard)
	t.Cleanup(func() {
		logger.SetLogger(prevLog)
		ui.SetOutput(prevOut)
	})

	cfg := config.DefaultConfig()
	cfg.EPMA.BaseURL = baseURL
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = time.Millisecond
	cfg.Retry.JitterFactor = 0
	cfg.Timing.InterceptedBackoff = time.Millisecond

	site := epmatest.NewSite(baseURL, "NURSE1", "secret", patients...)
	session := epma.NewSession(site, cfg.EPMA, cfg.Timing, epma.WithLogger(log), epma.WithSleep(noSleep))
	require.NoError(t, session.Login(context.Background(), "nurse1", "secret"))

	return &harness{cfg: cfg, site: site, session: session, log: log}
}

func (h *harness) suppressor(opts ...suppressor.Option) *suppressor.Suppressor {
	opts = append([]suppressor.Option{suppressor.WithSleep(noSleep)}, opts...)
	return suppressor.New(h.cfg, h.session, opts...)
}

func buildWorklist(t *testing.T, rows ...worklist.Row) *worklist.Worklist {
	t.Helper()
	wl, err := worklist.Build("ward.xls", rows, false)
	require.NoError(t, err)
	return wl
}

func wardPatient() *epmatest.Patient {
	return &epmatest.Patient{HospitalNumber: "1000001", Notes: []*epmatest.Note{
		epmatest.OrderDrugNote("**Order Drug** Aspirin 75mg", "Aspirin"),
		epmatest.OrderDrugNote("**Order Drug** Warfarin 5mg", "Warfarin"),
		epmatest.OrderDrugNote("**Order Drug** unlinked", ""),
		{Title: "Ward round", Tag: "Medical"},
	}}
}

func openReport(t *testing.T) *report.Writer {
	t.Helper()
	w, err := report.NewWriter(t.TempDir(), "run-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestRunSuppressesMatchingAndUnlinkedNotes(t *testing.T) {
	patient := wardPatient()
	h := newHarness(t, patient)
	rec := openReport(t)

	wl := buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "warfarin"})
	summary, err := h.suppressor(suppressor.WithRecorder(rec), suppressor.WithRunID("run-1")).Run(context.Background(), wl)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.NotesSuppressed)
	assert.Equal(t, 1, summary.NotesNotInList)
	assert.False(t, summary.Stopped)

	assert.False(t, patient.Notes[0].Suppressed())
	assert.True(t, patient.Notes[1].Suppressed())
	assert.True(t, patient.Notes[2].Suppressed())
	assert.Equal(t, "Ward round", patient.Notes[3].Title)

	counts := rec.Summary()
	assert.Equal(t, 2, counts.Count(report.ActionSuppressed))
	assert.Equal(t, 1, counts.Count(report.ActionSkippedNotInList))

	entries, err := report.ReadEntries(rec.Path())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "ASPIRIN", entries[0].DrugLink)
	assert.Equal(t, "**Order Drug** Warfarin 5mg", entries[1].NoteTitle)
	assert.Equal(t, "WARFARIN", entries[1].DrugLink)
	assert.Equal(t, "run-1", entries[1].RunID)

	assert.True(t, h.log.HasMessage("Drug name ASPIRIN not in drug list"))
	assert.True(t, h.log.HasMessage("1 out of 1 completed."))
}

func TestRunPatientNotFound(t *testing.T) {
	h := newHarness(t, wardPatient())
	rec := openReport(t)

	wl := buildWorklist(t,
		worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"},
		worklist.Row{HospitalNumber: "7654321", Drug: "Warfarin"},
	)
	summary, err := h.suppressor(suppressor.WithRecorder(rec)).Run(context.Background(), wl)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Completed())
	assert.Equal(t, 1, rec.Summary().Count(report.ActionPatientNotFound))
	assert.True(t, h.log.HasMessage("2 out of 2 completed."))
}

func TestRunNoOrderDrugNotes(t *testing.T) {
	h := newHarness(t, &epmatest.Patient{HospitalNumber: "1000001"})

	summary, err := h.suppressor().Run(context.Background(), buildWorklist(t, worklist.Row{HospitalNumber: "1000001"}))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.NotesSuppressed)
	assert.True(t, h.log.HasMessage("No order drug notes to be suppressed"))
}

func TestRunDryRun(t *testing.T) {
	patient := wardPatient()
	h := newHarness(t, patient)
	h.cfg.Output.DryRun = true
	rec := openReport(t)

	summary, err := h.suppressor(suppressor.WithRecorder(rec)).Run(context.Background(),
		buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"}))
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.NotesSuppressed)
	assert.Equal(t, 1, summary.NotesNotInList)
	for _, n := range patient.Notes {
		assert.False(t, n.Suppressed(), n.Title)
	}
	assert.Equal(t, 2, rec.Summary().Count(report.ActionWouldSuppress))
	assert.NotContains(t, h.site.Calls(), "click edit_button")
}

func TestRunRecoversFromStaleNotes(t *testing.T) {
	patient := wardPatient()
	h := newHarness(t, patient)
	h.site.StaleNoteClicks(2)

	summary, err := h.suppressor().Run(context.Background(),
		buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"}))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.NotesSuppressed)
	assert.True(t, patient.Notes[1].Suppressed())
}

func TestRunGivesUpOnEndlessStaleNotes(t *testing.T) {
	h := newHarness(t, wardPatient())
	h.site.StaleNoteClicks(100)

	summary, err := h.suppressor().Run(context.Background(),
		buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"}))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Processed)
}

func TestRunRetriesInterceptedSave(t *testing.T) {
	patient := wardPatient()
	h := newHarness(t, patient)
	h.site.InterceptClicks(epma.SaveButton.Name, 1)

	summary, err := h.suppressor().Run(context.Background(),
		buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"}))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NotesSuppressed)
	assert.Contains(t, h.site.Calls(), "click cancel_button")
	assert.True(t, patient.Notes[1].Suppressed())
}

func TestRunBacksOffInterceptedNoteClick(t *testing.T) {
	h := newHarness(t, wardPatient())
	h.site.InterceptClicks(epma.OrderDrugNotes.Name, 1)

	var slept []time.Duration
	s := suppressor.New(h.cfg, h.session, suppressor.WithSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))

	summary, err := s.Run(context.Background(), buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"}))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NotesSuppressed)
	assert.Equal(t, []time.Duration{h.cfg.Timing.InterceptedBackoff}, slept)
}

// flakySave fails the first saves with the queued errors
type flakySave struct {
	suppressor.Session
	failures []error
}

func (f *flakySave) SuppressActiveNote(ctx context.Context) (string, error) {
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return "", err
	}
	return f.Session.SuppressActiveNote(ctx)
}

func TestRunSizesSaveRetriesByFailure(t *testing.T) {
	h := newHarness(t, wardPatient())
	h.cfg.Timing.InterceptedBackoff = 2 * time.Millisecond
	h.cfg.Retry.BaseDelay = 6 * time.Millisecond
	h.cfg.Retry.MaxDelay = 6 * time.Millisecond
	h.cfg.Retry.MaxAttempts = 3

	session := &flakySave{Session: h.session, failures: []error{
		errs.New(errs.ErrorTypeClickIntercepted, "click", "save covered by spinner"),
		errs.New(errs.ErrorTypeTimeout, "wait", "date picker did not open"),
	}}
	s := suppressor.New(h.cfg, session, suppressor.WithSleep(noSleep))

	summary, err := s.Run(context.Background(), buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"}))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.NotesSuppressed)
	assert.Zero(t, summary.Failed)

	var delays []interface{}
	for _, m := range h.log.GetMessagesByLevel("WARN") {
		if m.Message == "retrying operation" {
			delays = append(delays, m.Fields["delay_ms"])
		}
	}
	assert.Equal(t, []interface{}{int64(2), int64(6)}, delays)
}

func TestRunTimeoutAbandonsPatient(t *testing.T) {
	h := newHarness(t, wardPatient())
	h.site.FailWait(epma.ActiveNoteTitle.Name, errs.New(errs.ErrorTypeTimeout, "wait", "note view did not render"))
	rec := openReport(t)

	summary, err := h.suppressor(suppressor.WithRecorder(rec)).Run(context.Background(),
		buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"}))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.NotesSuppressed)
	assert.True(t, h.log.HasMessage("Trying next patient"))
	assert.Equal(t, 1, rec.Summary().Count(report.ActionPatientFailed))
}

// noopSuppress reports success without editing the note
type noopSuppress struct {
	suppressor.Session
}

func (n noopSuppress) SuppressActiveNote(ctx context.Context) (string, error) {
	return n.ActiveNoteTitle(ctx)
}

func TestRunGivesUpWhenSuppressedNoteStaysListed(t *testing.T) {
	h := newHarness(t, wardPatient())

	s := suppressor.New(h.cfg, noopSuppress{h.session}, suppressor.WithSleep(noSleep))
	summary, err := s.Run(context.Background(), buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"}))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
}

// crashingSession fails the search for one hospital number
type crashingSession struct {
	suppressor.Session
	hospitalNumber string
}

func (c crashingSession) OpenPatient(ctx context.Context, hn string) (epma.SearchOutcome, error) {
	if hn == c.hospitalNumber {
		return epma.Failed, errs.New(errs.ErrorTypeBrowser, "search", "tab crashed")
	}
	return c.Session.OpenPatient(ctx, hn)
}

func TestRunCheckpointResume(t *testing.T) {
	second := &epmatest.Patient{HospitalNumber: "1000002", Notes: []*epmatest.Note{
		epmatest.OrderDrugNote("**Order Drug** Warfarin", "Warfarin"),
	}}
	h := newHarness(t, wardPatient(), second)
	wl := buildWorklist(t,
		worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"},
		worklist.Row{HospitalNumber: "1000002", Drug: "Warfarin"},
	)
	mgr, err := checkpoint.NewManagerInDir(t.TempDir(), filepath.Join(t.TempDir(), "ward.xls"))
	require.NoError(t, err)

	// first run: the second patient fails and stays unfinished
	s := suppressor.New(h.cfg, crashingSession{h.session, "1000002"},
		suppressor.WithSleep(noSleep), suppressor.WithCheckpoint(mgr, false, false))
	summary, err := s.Run(context.Background(), wl)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	require.True(t, mgr.Exists())

	cp, err := mgr.Load()
	require.NoError(t, err)
	assert.True(t, cp.IsCompleted("1000001"))
	assert.False(t, cp.IsCompleted("1000002"))
	assert.Equal(t, 2, cp.NotesSuppressed)

	// a plain rerun refuses to overwrite the checkpoint
	_, err = h.suppressor(suppressor.WithCheckpoint(mgr, false, false)).Run(context.Background(), wl)
	assert.ErrorIs(t, err, suppressor.ErrCheckpointExists)

	// resume only visits the unfinished patient
	summary, err = h.suppressor(suppressor.WithCheckpoint(mgr, true, false)).Run(context.Background(), wl)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Resumed)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.NotesSuppressed)
	assert.True(t, second.Notes[0].Suppressed())
	assert.False(t, mgr.Exists())
}

func TestRunForceRestart(t *testing.T) {
	h := newHarness(t, wardPatient())
	wl := buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"})
	mgr, err := checkpoint.NewManagerInDir(t.TempDir(), "ward.xls")
	require.NoError(t, err)

	cp, err := mgr.Create("ward.xls", "old-run", 1)
	require.NoError(t, err)
	require.NoError(t, mgr.RecordPatient(cp, "1000001", 0))

	summary, err := h.suppressor(suppressor.WithCheckpoint(mgr, false, true)).Run(context.Background(), wl)
	require.NoError(t, err)
	assert.Zero(t, summary.Resumed)
	assert.Equal(t, 1, summary.Processed)
}

func TestRunDryRunLeavesCheckpointAlone(t *testing.T) {
	h := newHarness(t, wardPatient())
	h.cfg.Output.DryRun = true
	mgr, err := checkpoint.NewManagerInDir(t.TempDir(), "ward.xls")
	require.NoError(t, err)

	_, err = h.suppressor(suppressor.WithCheckpoint(mgr, false, false)).Run(context.Background(),
		buildWorklist(t, worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"}))
	require.NoError(t, err)
	assert.False(t, mgr.Exists())
}

// cancellingSession cancels the run when a given patient is searched
type cancellingSession struct {
	suppressor.Session
	hospitalNumber string
	cancel         context.CancelFunc
}

func (c cancellingSession) OpenPatient(ctx context.Context, hn string) (epma.SearchOutcome, error) {
	if hn == c.hospitalNumber {
		c.cancel()
		return epma.Failed, ctx.Err()
	}
	return c.Session.OpenPatient(ctx, hn)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, wardPatient(), &epmatest.Patient{HospitalNumber: "1000002"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := suppressor.New(h.cfg, cancellingSession{h.session, "1000002", cancel}, suppressor.WithSleep(noSleep))
	summary, err := s.Run(ctx, buildWorklist(t,
		worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"},
		worklist.Row{HospitalNumber: "1000002", Drug: "Warfarin"},
	))

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Failed)
	assert.True(t, h.log.HasMessage("Stopping..."))
}

type countingLimiter struct {
	allow bool
	waits int
}

func (c *countingLimiter) Allow() bool { return c.allow }

func (c *countingLimiter) Wait(ctx context.Context) error {
	c.waits++
	return ctx.Err()
}

func (c *countingLimiter) Reset() {}

func TestRunPacesPatients(t *testing.T) {
	h := newHarness(t, wardPatient(), &epmatest.Patient{HospitalNumber: "1000002"})
	limiter := &countingLimiter{}

	summary, err := h.suppressor(suppressor.WithLimiter(limiter)).Run(context.Background(), buildWorklist(t,
		worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"},
		worklist.Row{HospitalNumber: "1000002", Drug: "Warfarin"},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, limiter.waits)
}

// fakeTUI records the calls made by a run
type fakeTUI struct {
	mu     sync.Mutex
	events []string
	pauses int
}

func (f *fakeTUI) add(e string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeTUI) StartPatient(hn string, position, total int) { f.add("start " + hn) }
func (f *fakeTUI) CompletePatient(hn string, suppressed int) { f.add("done " + hn) }
func (f *fakeTUI) SkipPatient(hn, reason string) { f.add("skip " + hn) }
func (f *fakeTUI) FailPatient(hn string, err error) { f.add("fail " + hn) }
func (f *fakeTUI) NoteSuppressed(hn, title string) { f.add("suppressed " + title) }
func (f *fakeTUI) NoteSkipped(hn, drug string) { f.add("kept " + drug) }
func (f *fakeTUI) UpdatePacing(used, max int, resetAt time.Time) {}
func (f *fakeTUI) LogInfo(format string, args ...interface{}) {}
func (f *fakeTUI) LogSuccess(format string, args ...interface{}) {}
func (f *fakeTUI) LogWarning(format string, args ...interface{}) {}
func (f *fakeTUI) LogError(format string, args ...interface{}) {}

func (f *fakeTUI) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pauses > 0 {
		f.pauses--
		return true
	}
	return false
}

func TestRunReportsToTUI(t *testing.T) {
	h := newHarness(t, wardPatient())
	tui := &fakeTUI{pauses: 1}

	_, err := h.suppressor(suppressor.WithTUI(tui)).Run(context.Background(), buildWorklist(t,
		worklist.Row{HospitalNumber: "1000001", Drug: "Warfarin"},
		worklist.Row{HospitalNumber: "7654321", Drug: "Warfarin"},
	))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start 1000001",
		"kept ASPIRIN",
		"suppressed **Order Drug** Warfarin 5mg",
		"suppressed **Order Drug** unlinked",
		"done 1000001",
		"start 7654321",
		"skip 7654321",
	}, tui.events)
}
