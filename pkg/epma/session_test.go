package epma_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epmasuppress/pkg/config"
	"epmasuppress/pkg/epma"
	"epmasuppress/pkg/epma/epmatest"
	errs "epmasuppress/pkg/errors"
	"epmasuppress/pkg/logger"
)

const baseURL = "https://epma.test:50000"

func noSleep(context.Context, time.Duration) error { return nil }

func newSession(t *testing.T, patients ...*epmatest.Patient) (*epma.Session, *epmatest.Site, *logger.TestLogger) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.EPMA.BaseURL = baseURL

	site := epmatest.NewSite(baseURL, "NURSE1", "secret", patients...)
	log := logger.NewTestLogger()
	s := epma.NewSession(site, cfg.EPMA, cfg.Timing, epma.WithLogger(log), epma.WithSleep(noSleep))
	return s, site, log
}

func loggedIn(t *testing.T, patients ...*epmatest.Patient) (*epma.Session, *epmatest.Site, *logger.TestLogger) {
	t.Helper()
	s, site, log := newSession(t, patients...)
	require.NoError(t, s.Login(context.Background(), "nurse1", "secret"))
	return s, site, log
}

func TestLoginUpperCasesUsername(t *testing.T) {
	s, site, log := newSession(t)

	require.NoError(t, s.Login(context.Background(), " nurse1 ", "secret"))

	calls := site.Calls()
	assert.Contains(t, calls, "navigate "+baseURL+"/Account/Login")
	assert.Contains(t, calls, `input login_username "NURSE1"`)
	assert.Contains(t, calls, "click login_password")
	assert.Contains(t, calls, "enter login_password")
	assert.Contains(t, calls, "navigate "+baseURL+"/PatientSearch/Inpatient")
	assert.True(t, log.HasMessage("Logged in to EPMA"))
}

func TestLoginRejected(t *testing.T) {
	s, _, _ := newSession(t)

	err := s.Login(context.Background(), "nurse1", "wrong")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "rejected")
}

func TestLoginPageMissing(t *testing.T) {
	s, site, _ := newSession(t)
	site.FailWait(epma.LoginUsername.Name, errs.New(errs.ErrorTypeTimeout, "wait", "no field"))

	err := s.Login(context.Background(), "nurse1", "secret")
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
}

func TestOpenPatient(t *testing.T) {
	s, site, log := loggedIn(t, &epmatest.Patient{HospitalNumber: "1234567"})

	outcome, err := s.OpenPatient(context.Background(), "1234567")
	require.NoError(t, err)
	assert.Equal(t, epma.Opened, outcome)

	calls := site.Calls()
	assert.Contains(t, calls, `input search_field "1234567"`)
	assert.Contains(t, calls, "enter search_field")
	assert.Contains(t, calls, "click first_result_row")
	assert.Contains(t, calls, "click patient_notes_link")
	assert.True(t, log.HasMessage("Patient page loaded, opening patient notes."))
}

func TestOpenPatientNoResults(t *testing.T) {
	s, site, log := loggedIn(t)

	outcome, err := s.OpenPatient(context.Background(), "7654321")
	require.NoError(t, err)
	assert.Equal(t, epma.NoResults, outcome)
	assert.NotContains(t, site.Calls(), "click first_result_row")
	assert.True(t, log.HasMessage("No results for 7654321 found. Trying next patient."))
}

func TestOpenPatientSimilarNames(t *testing.T) {
	s, site, log := loggedIn(t, &epmatest.Patient{HospitalNumber: "1234567", SimilarNames: true})

	outcome, err := s.OpenPatient(context.Background(), "1234567")
	require.NoError(t, err)
	assert.Equal(t, epma.Opened, outcome)
	assert.Contains(t, site.Calls(), "click active_patient_line")
	assert.True(t, log.HasMessage("Similar patients warning detected."))
	assert.True(t, log.HasMessage("Selecting hospital number 1234567 from available options."))
}

func TestOpenPatientNotesLinkIntercepted(t *testing.T) {
	s, site, _ := loggedIn(t, &epmatest.Patient{HospitalNumber: "1234567"})
	site.InterceptClicks(epma.PatientNotesLink.Name, 1)

	outcome, err := s.OpenPatient(context.Background(), "1234567")
	require.NoError(t, err)
	assert.Equal(t, epma.Opened, outcome)

	clicks := 0
	for _, c := range site.Calls() {
		if c == "click patient_notes_link" {
			clicks++
		}
	}
	assert.Equal(t, 2, clicks)
}

func TestOpenPatientSearchFieldTimeout(t *testing.T) {
	s, site, _ := loggedIn(t)
	site.FailWait(epma.SearchField.Name, errs.New(errs.ErrorTypeTimeout, "wait", "slow"))

	outcome, err := s.OpenPatient(context.Background(), "1234567")
	assert.Equal(t, epma.Failed, outcome)
	assert.True(t, errs.IsTimeout(err))
}

func TestFindOrderDrugNotes(t *testing.T) {
	patient := &epmatest.Patient{HospitalNumber: "1234567", Notes: []*epmatest.Note{
		epmatest.OrderDrugNote("Warfarin", "Warfarin"),
		{Title: "Ward round", Tag: "Medical"},
		{Title: epma.SuppressedTitle, Tag: epma.OrderDrugTag},
		{Title: "hidden", Tag: epma.OrderDrugTag, Hidden: true},
		epmatest.OrderDrugNote("Unlinked", ""),
	}}
	s, _, _ := loggedIn(t, patient)
	ctx := context.Background()

	_, err := s.OpenPatient(ctx, "1234567")
	require.NoError(t, err)

	notes, err := s.FindOrderDrugNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestFindOrderDrugNotesNoneIsEmpty(t *testing.T) {
	s, _, _ := loggedIn(t, &epmatest.Patient{HospitalNumber: "1234567"})
	ctx := context.Background()
	_, err := s.OpenPatient(ctx, "1234567")
	require.NoError(t, err)

	notes, err := s.FindOrderDrugNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestOrderLink(t *testing.T) {
	patient := &epmatest.Patient{HospitalNumber: "1234567", Notes: []*epmatest.Note{
		epmatest.OrderDrugNote("Linked", " Co-codamol 30/500 "),
		epmatest.OrderDrugNote("Unlinked", ""),
	}}
	s, _, _ := loggedIn(t, patient)
	ctx := context.Background()
	_, err := s.OpenPatient(ctx, "1234567")
	require.NoError(t, err)

	notes, err := s.FindOrderDrugNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	require.NoError(t, s.OpenNote(ctx, notes[0]))
	drug, linked, err := s.OrderLink(ctx)
	require.NoError(t, err)
	assert.True(t, linked)
	assert.Equal(t, "CO-CODAMOL30/500", drug)

	require.NoError(t, s.OpenNote(ctx, notes[1]))
	drug, linked, err = s.OrderLink(ctx)
	require.NoError(t, err)
	assert.False(t, linked)
	assert.Empty(t, drug)
}

func TestOpenNoteWaitsForNoteClick(t *testing.T) {
	patient := &epmatest.Patient{HospitalNumber: "1234567", Notes: []*epmatest.Note{
		epmatest.OrderDrugNote("**Order Drug** Aspirin 75mg", "ASPIRIN"),
	}}
	s, site, _ := loggedIn(t, patient)
	ctx := context.Background()
	_, err := s.OpenPatient(ctx, "1234567")
	require.NoError(t, err)

	notes, err := s.FindOrderDrugNotes(ctx)
	require.NoError(t, err)
	require.NoError(t, s.OpenNote(ctx, notes[0]))

	timing := config.DefaultConfig().Timing
	assert.Equal(t, []time.Duration{timing.NoteClick}, site.NoteClickTimeouts())
	assert.NotEqual(t, timing.EditorStep, timing.NoteClick)
}

func TestActionTimeout(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, 5*time.Second, epma.ActionTimeout(ctx, 5*time.Second))
	assert.Equal(t, 10*time.Second, epma.ActionTimeout(epma.WithActionTimeout(ctx, 10*time.Second), 5*time.Second))
	assert.Equal(t, 5*time.Second, epma.ActionTimeout(epma.WithActionTimeout(ctx, 0), 5*time.Second))
}

func TestSuppressActiveNote(t *testing.T) {
	note := epmatest.OrderDrugNote("**Order Drug** Warfarin 5mg", "WARFARIN")
	s, site, _ := loggedIn(t, &epmatest.Patient{HospitalNumber: "1234567", Notes: []*epmatest.Note{note}})
	ctx := context.Background()
	_, err := s.OpenPatient(ctx, "1234567")
	require.NoError(t, err)

	notes, err := s.FindOrderDrugNotes(ctx)
	require.NoError(t, err)
	require.NoError(t, s.OpenNote(ctx, notes[0]))

	title, err := s.SuppressActiveNote(ctx)
	require.NoError(t, err)
	assert.Equal(t, "**Order Drug** Warfarin 5mg", title)
	assert.True(t, note.Suppressed())

	calls := site.Calls()
	assert.Contains(t, calls, "clear title_field")
	assert.Contains(t, calls, `input title_field "SUPPRESSED"`)
	assert.Contains(t, calls, "click suppression_date_cell")
	assert.Contains(t, calls, "click save_button")

	remaining, err := s.FindOrderDrugNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestSuppressActiveNoteInterceptedCancelsEditor(t *testing.T) {
	note := epmatest.OrderDrugNote("Warfarin", "WARFARIN")
	s, site, _ := loggedIn(t, &epmatest.Patient{HospitalNumber: "1234567", Notes: []*epmatest.Note{note}})
	ctx := context.Background()
	_, err := s.OpenPatient(ctx, "1234567")
	require.NoError(t, err)
	notes, err := s.FindOrderDrugNotes(ctx)
	require.NoError(t, err)
	require.NoError(t, s.OpenNote(ctx, notes[0]))

	site.InterceptClicks(epma.SaveButton.Name, 1)
	_, err = s.SuppressActiveNote(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsClickIntercepted(err))
	assert.Contains(t, site.Calls(), "click cancel_button")
	assert.False(t, note.Suppressed())

	// the note view is usable again
	_, err = s.SuppressActiveNote(ctx)
	require.NoError(t, err)
	assert.True(t, note.Suppressed())
}

func TestPopulateNotes(t *testing.T) {
	patient := &epmatest.Patient{HospitalNumber: "1234567"}
	s, site, _ := loggedIn(t, patient)
	ctx := context.Background()
	_, err := s.OpenPatient(ctx, "1234567")
	require.NoError(t, err)

	site.InterceptClicks(epma.AddNoteLink.Name, 1)
	created, err := s.PopulateNotes(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	require.Len(t, patient.Notes, 2)
	for _, n := range patient.Notes {
		assert.Equal(t, "Suppress this!", n.Title)
		assert.Equal(t, epma.OrderDrugTag, n.Tag)
		assert.Equal(t, "Suppress This!", n.Body)
	}

	notes, err := s.FindOrderDrugNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestCancelledContext(t *testing.T) {
	s, _, _ := newSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Login(ctx, "nurse1", "secret")
	assert.ErrorIs(t, err, context.Canceled)
}
