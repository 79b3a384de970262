package epma

import (
	"context"
	"fmt"
	"strings"
	"time"

	"epmasuppress/pkg/config"
	errs "epmasuppress/pkg/errors"
	"epmasuppress/pkg/logger"
	"epmasuppress/pkg/worklist"
)

// SearchOutcome is the result of looking a patient up in the inpatient finder
type SearchOutcome int

const (
	// Failed means the patient record or its notes could not be reached
	Failed SearchOutcome = iota
	// Opened means the patient's notes page is showing
	Opened
	// NoResults means EPMA reported no inpatient with that number
	NoResults
)

func (o SearchOutcome) String() string {
	switch o {
	case Opened:
		return "opened"
	case NoResults:
		return "no_results"
	default:
		return "failed"
	}
}

// populateWait bounds each step of PopulateNotes
const populateWait = 10 * time.Second

// Session runs the EPMA workflow over a Driver
type Session struct {
	driver Driver
	site   config.EPMAConfig
	timing config.TimingConfig
	log    logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithLogger sets the session logger
func WithLogger(l logger.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithSleep replaces the settle delay, mainly for tests
func WithSleep(fn func(ctx context.Context, d time.Duration) error) SessionOption {
	return func(s *Session) { s.sleep = fn }
}

// NewSession creates a workflow over driver
func NewSession(driver Driver, site config.EPMAConfig, timing config.TimingConfig, opts ...SessionOption) *Session {
	s := &Session{
		driver: driver,
		site:   site,
		timing: timing,
		log:    logger.GetLogger().WithField("component", "epma"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Driver returns the underlying driver
func (s *Session) Driver() Driver {
	return s.driver
}

// Close closes the browser
func (s *Session) Close() error {
	return s.driver.Close()
}

// Login signs in and opens the inpatient finder. The username is
// upper-cased, matching EPMA's account names.
func (s *Session) Login(ctx context.Context, username, password string) error {
	const op = "login"

	if err := s.driver.Navigate(ctx, s.site.LoginURL()); err != nil {
		return err
	}

	usr, err := s.driver.WaitVisible(ctx, LoginUsername, s.timing.LoginField)
	if err != nil {
		return asAuth(op, "login page did not load", err)
	}
	if err := usr.Input(ctx, strings.ToUpper(strings.TrimSpace(username))); err != nil {
		return asAuth(op, "could not enter username", err)
	}

	pwd, err := s.driver.WaitVisible(ctx, LoginPassword, s.timing.LoginField)
	if err != nil {
		return asAuth(op, "password field did not load", err)
	}
	if err := pwd.Click(ctx); err != nil {
		return asAuth(op, "could not focus password", err)
	}
	if err := pwd.Input(ctx, password); err != nil {
		return asAuth(op, "could not enter password", err)
	}
	if err := pwd.PressEnter(ctx); err != nil {
		return asAuth(op, "could not submit login", err)
	}

	if err := s.OpenInpatientFinder(ctx); err != nil {
		return err
	}

	// EPMA bounces unauthenticated requests back to the login page
	if _, err := s.driver.WaitVisible(ctx, SearchField, s.timing.SearchField); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if u, uerr := s.driver.URL(ctx); uerr == nil && strings.Contains(u, s.site.LoginPath) {
			return errs.New(errs.ErrorTypeAuth, op, "EPMA rejected the username or password")
		}
		return asAuth(op, "inpatient finder did not load", err)
	}

	s.log.WithField("username", strings.ToUpper(strings.TrimSpace(username))).Info("Logged in to EPMA")
	return nil
}

func asAuth(op, message string, err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return err
	}
	return &errs.Error{Type: errs.ErrorTypeAuth, Op: op, Message: message + ": " + err.Error(), Err: err}
}

// OpenInpatientFinder navigates to the patient search page
func (s *Session) OpenInpatientFinder(ctx context.Context) error {
	return s.driver.Navigate(ctx, s.site.InpatientURL())
}

// OpenPatient searches for hospitalNumber and opens the patient's notes.
// Failed is returned with the error that stopped the search.
func (s *Session) OpenPatient(ctx context.Context, hospitalNumber string) (SearchOutcome, error) {
	log := s.log.WithField("hospital_number", hospitalNumber)
	log.Info(fmt.Sprintf("Searching hospital number: %s", hospitalNumber))

	field, err := s.driver.WaitVisible(ctx, SearchField, s.timing.SearchField)
	if err != nil {
		return Failed, err
	}
	if err := field.Click(ctx); err != nil {
		return Failed, err
	}
	if err := field.Input(ctx, hospitalNumber); err != nil {
		return Failed, err
	}
	if err := field.PressEnter(ctx); err != nil {
		return Failed, err
	}

	if s.noResults(ctx) {
		log.Info(fmt.Sprintf("No results for %s found. Trying next patient.", hospitalNumber))
		return NoResults, nil
	}
	if ctx.Err() != nil {
		return Failed, ctx.Err()
	}

	row, err := s.driver.WaitVisible(ctx, FirstResultRow, s.timing.ResultRow)
	if err != nil {
		return Failed, err
	}
	if err := row.Click(ctx); err != nil {
		if errs.IsClickIntercepted(err) {
			return s.retryNotesLink(ctx)
		}
		return Failed, err
	}

	if err := s.driver.WaitURLContains(ctx, PatientURLMarker, s.timing.PatientURL); err != nil {
		if !errs.IsTimeout(err) {
			return Failed, err
		}
		s.selectSimilarPatient(ctx, log)
	} else {
		log.Info("Patient page loaded, opening patient notes.")
	}

	link, err := s.driver.WaitVisible(ctx, PatientNotesLink, s.timing.PatientNotesLink)
	if err != nil {
		return Failed, err
	}
	if err := link.Click(ctx); err != nil {
		if errs.IsClickIntercepted(err) {
			return s.retryNotesLink(ctx)
		}
		return Failed, err
	}
	return Opened, nil
}

// retryNotesLink handles a click landing on an overlay: once the patient
// page is up, the notes link is clicked a second time.
func (s *Session) retryNotesLink(ctx context.Context) (SearchOutcome, error) {
	if err := s.driver.WaitURLContains(ctx, PatientURLMarker, s.timing.PatientNotesLink); err != nil {
		return Failed, err
	}
	link, err := s.driver.WaitVisible(ctx, PatientNotesLink, s.timing.PatientNotesLink)
	if err != nil {
		return Failed, err
	}
	if err := link.Click(ctx); err != nil {
		return Failed, err
	}
	return Opened, nil
}

// noResults reports whether EPMA showed its "No search results found." message
func (s *Session) noResults(ctx context.Context) bool {
	msg, err := s.driver.WaitPresent(ctx, NoResultsMessage, s.timing.NoResults)
	if err != nil {
		return false
	}
	text, err := msg.Text(ctx)
	if err != nil {
		return false
	}
	return strings.Contains(text, NoResultsText)
}

// selectSimilarPatient picks the highlighted row when EPMA lists patients
// with similar names. It reports whether a row was chosen.
func (s *Session) selectSimilarPatient(ctx context.Context, log logger.Logger) bool {
	if _, err := s.driver.WaitVisible(ctx, SimilarPatientsWarning, s.timing.SimilarPatients); err != nil {
		return false
	}
	log.Info("Similar patients warning detected.")

	active, err := s.driver.WaitClickable(ctx, ActivePatientLine, s.timing.SimilarPatients)
	if err != nil {
		return false
	}
	number, err := s.driver.WaitVisible(ctx, ActivePatientHospitalNumber, s.timing.SimilarPatients)
	if err != nil {
		return false
	}
	title, _ := number.Attribute(ctx, "title")
	log.Info(fmt.Sprintf("Selecting hospital number %s from available options.", title))

	return active.Click(ctx) == nil
}

// FindOrderDrugNotes returns the visible, unsuppressed "**Order Drug**"
// notes. No match within the note list wait gives an empty list.
func (s *Session) FindOrderDrugNotes(ctx context.Context) ([]Element, error) {
	notes, err := s.driver.FindAll(ctx, OrderDrugNotes, s.timing.NoteList)
	if err != nil {
		if errs.IsTimeout(err) || errs.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return notes, nil
}

// OpenNote selects a note in the list, giving the click timing.note_click
// to land while the notes pane re-renders.
func (s *Session) OpenNote(ctx context.Context, note Element) error {
	return note.Click(WithActionTimeout(ctx, s.timing.NoteClick))
}

// OrderLink returns the normalised drug the active note is linked to.
// linked is false when the note has no order link.
func (s *Session) OrderLink(ctx context.Context) (drug string, linked bool, err error) {
	if _, err := s.driver.WaitVisible(ctx, OrderLinkContainer, s.timing.OrderLink); err != nil {
		if errs.IsTimeout(err) || errs.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}

	input, err := s.driver.Find(ctx, OrderLinkInput)
	if err != nil {
		return "", true, err
	}
	value, err := input.Value(ctx)
	if err != nil {
		return "", true, err
	}
	return worklist.NormalizeDrug(value), true, nil
}

// ActiveNoteTitle returns the title of the note open in the note view
func (s *Session) ActiveNoteTitle(ctx context.Context) (string, error) {
	titleEl, err := s.driver.WaitClickable(ctx, ActiveNoteTitle, s.timing.NoteClick)
	if err != nil {
		return "", err
	}
	return titleEl.Text(ctx)
}

// SuppressActiveNote retitles the active note SUPPRESSED and sets its
// suppression date. If a click is intercepted or an editor step times out
// the editor is cancelled so a retry starts from the note view.
func (s *Session) SuppressActiveNote(ctx context.Context) (string, error) {
	title, err := s.ActiveNoteTitle(ctx)
	if err != nil {
		return "", err
	}

	err = s.editTitle(ctx)
	if errs.IsClickIntercepted(err) || errs.IsTimeout(err) {
		s.cancelEdit(ctx)
	}
	return title, err
}

func (s *Session) editTitle(ctx context.Context) error {
	wait := s.timing.EditorStep

	if err := s.click(ctx, EditButton, wait); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.timing.EditSettle); err != nil {
		return err
	}

	if err := s.click(ctx, TitleField, wait); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.timing.EditSettle); err != nil {
		return err
	}

	field, err := s.driver.WaitVisible(ctx, TitleField, wait)
	if err != nil {
		return err
	}
	if err := field.Clear(ctx); err != nil {
		return err
	}
	if err := s.click(ctx, TitleField, wait); err != nil {
		return err
	}
	field, err = s.driver.WaitVisible(ctx, TitleField, wait)
	if err != nil {
		return err
	}
	if err := field.Input(ctx, SuppressedTitle); err != nil {
		return err
	}

	if err := s.click(ctx, SuppressionDatePicker, wait); err != nil {
		return err
	}
	if err := s.click(ctx, SuppressionDateCell, wait); err != nil {
		return err
	}
	if err := s.click(ctx, SaveButton, wait); err != nil {
		return err
	}

	return s.sleep(ctx, s.timing.SaveSettle)
}

func (s *Session) click(ctx context.Context, loc Locator, timeout time.Duration) error {
	el, err := s.driver.WaitVisible(ctx, loc, timeout)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (s *Session) cancelEdit(ctx context.Context) {
	cancel, err := s.driver.WaitClickable(ctx, CancelButton, s.timing.EditorStep)
	if err != nil {
		s.log.WithError(err).Debug("Editor cancel button not available")
		return
	}
	if err := cancel.Click(ctx); err != nil {
		s.log.WithError(err).Debug("Could not cancel note editor")
	}
}

// PopulateNotes adds n "Suppress this!" order drug notes to the open
// patient, for exercising a test environment. Notes that fail on a timeout
// or an intercepted click are skipped. It returns how many were saved.
func (s *Session) PopulateNotes(ctx context.Context, n int) (int, error) {
	created := 0
	for i := 0; i < n; i++ {
		err := s.addNote(ctx)
		switch {
		case err == nil:
			created++
		case ctx.Err() != nil:
			return created, ctx.Err()
		case errs.IsTimeout(err), errs.IsClickIntercepted(err):
			s.log.WithError(err).Warn(fmt.Sprintf("Note %d of %d not created", i+1, n))
		default:
			return created, err
		}
	}
	return created, nil
}

func (s *Session) addNote(ctx context.Context) error {
	if err := s.click(ctx, AddNoteLink, populateWait); err != nil {
		return err
	}

	title, err := s.driver.WaitClickable(ctx, TitleField, populateWait)
	if err != nil {
		return err
	}
	for _, step := range []func(context.Context) error{
		title.Click,
		title.Clear,
		title.Click,
		func(ctx context.Context) error { return title.Input(ctx, "Suppress this!") },
		title.Click,
	} {
		if err := step(ctx); err != nil {
			return err
		}
	}

	noteType, err := s.driver.WaitClickable(ctx, NoteTypeField, populateWait)
	if err != nil {
		return err
	}
	if err := noteType.Click(ctx); err != nil {
		return err
	}
	if err := noteType.Input(ctx, "*"); err != nil {
		return err
	}
	if err := noteType.PressEnter(ctx); err != nil {
		return err
	}

	body, err := s.driver.WaitClickable(ctx, NoteBodyButton, populateWait)
	if err != nil {
		return err
	}
	if err := body.Click(ctx); err != nil {
		return err
	}
	if err := body.Input(ctx, "Suppress This!"); err != nil {
		return err
	}

	save, err := s.driver.WaitClickable(ctx, SaveButton, populateWait)
	if err != nil {
		return err
	}
	return save.Click(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
