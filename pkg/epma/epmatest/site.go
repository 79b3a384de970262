// Package epmatest provides an in-memory EPMA site that implements
// epma.Driver, for testing the workflow without a browser.
package epmatest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"epmasuppress/pkg/epma"
	errs "epmasuppress/pkg/errors"
)

// Note is a clinical note on a fake patient
type Note struct {
	Title    string
	Tag      string
	DrugLink string // raw order link value; empty means no link
	Body     string
	Hidden   bool
}

// Suppressed reports whether the note was retitled SUPPRESSED
func (n *Note) Suppressed() bool {
	return n.Title == epma.SuppressedTitle
}

func (n *Note) listed() bool {
	return strings.Contains(n.Tag, epma.OrderDrugTag) && !n.Suppressed() && !n.Hidden
}

// Patient is a fake inpatient
type Patient struct {
	HospitalNumber string
	Notes          []*Note
	// SimilarNames makes the search land on the similarly named patients list
	SimilarNames bool
}

// OrderDrugNote builds an order drug note linked to drug
func OrderDrugNote(title, drug string) *Note {
	return &Note{Title: title, Tag: epma.OrderDrugTag, DrugLink: drug}
}

type page string

const (
	pageBlank   page = ""
	pageLogin   page = "login"
	pageFinder  page = "finder"
	pageSimilar page = "similar"
	pagePatient page = "patient"
	pageNotes   page = "notes"
)

// Site is a scripted EPMA. Its zero value is not usable; call NewSite.
type Site struct {
	mu sync.Mutex

	BaseURL  string
	Username string
	Password string

	patients map[string]*Patient

	page       page
	url        string
	loggedIn   bool
	typedUser  string
	typedPass  string
	search     string
	searched   string
	current    *Patient
	active     *Note
	editing    bool
	draft      *Note
	typeInput  string
	pickerOpen bool
	dateChosen bool
	generation int
	closed     bool

	intercept map[string]int
	stale     int
	fail      map[string]error

	calls        []string
	noteTimeouts []time.Duration
}

// NewSite creates a site whose login accepts username and password
func NewSite(baseURL, username, password string, patients ...*Patient) *Site {
	s := &Site{
		BaseURL:   baseURL,
		Username:  username,
		Password:  password,
		patients:  make(map[string]*Patient),
		intercept: make(map[string]int),
		fail:      make(map[string]error),
	}
	for _, p := range patients {
		s.patients[p.HospitalNumber] = p
	}
	return s
}

// Patient returns the patient with hospitalNumber, or nil
func (s *Site) Patient(hospitalNumber string) *Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patients[hospitalNumber]
}

// InterceptClicks makes the next n clicks on the named locator fail as
// intercepted.
func (s *Site) InterceptClicks(locatorName string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept[locatorName] = n
}

// StaleNoteClicks makes the next n note clicks fail as stale
func (s *Site) StaleNoteClicks(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = n
}

// FailWait makes every wait on the named locator return err
func (s *Site) FailWait(locatorName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[locatorName] = err
}

// Calls returns the log of driver and element actions
func (s *Site) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// NoteClickTimeouts returns the action timeout each note click ran under,
// or zero where the caller left the driver default.
func (s *Site) NoteClickTimeouts() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.noteTimeouts))
	copy(out, s.noteTimeouts)
	return out
}

// Closed reports whether Close was called
func (s *Site) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Site) record(format string, args ...interface{}) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *Site) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("navigate %s", url)

	s.url = url
	s.current, s.active, s.editing, s.draft = nil, nil, false, nil
	s.search, s.searched = "", ""

	switch {
	case strings.Contains(url, "/Account/Login"):
		s.page = pageLogin
		s.typedUser, s.typedPass = "", ""
	case strings.Contains(url, "/PatientSearch/Inpatient"):
		if !s.loggedIn {
			s.page = pageLogin
			s.url = strings.TrimRight(s.BaseURL, "/") + "/Account/Login"
			return nil
		}
		s.page = pageFinder
	default:
		s.page = pageBlank
	}
	return nil
}

func (s *Site) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *Site) WaitURLContains(ctx context.Context, substr string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.Contains(s.url, substr) {
		return nil
	}
	return errs.New(errs.ErrorTypeTimeout, "wait for url", fmt.Sprintf("url %q does not contain %q", s.url, substr))
}

func (s *Site) WaitVisible(ctx context.Context, loc epma.Locator, timeout time.Duration) (epma.Element, error) {
	return s.lookup(ctx, "wait visible", loc)
}

func (s *Site) WaitClickable(ctx context.Context, loc epma.Locator, timeout time.Duration) (epma.Element, error) {
	return s.lookup(ctx, "wait clickable", loc)
}

func (s *Site) WaitPresent(ctx context.Context, loc epma.Locator, timeout time.Duration) (epma.Element, error) {
	return s.lookup(ctx, "wait present", loc)
}

func (s *Site) Find(ctx context.Context, loc epma.Locator) (epma.Element, error) {
	el, err := s.lookup(ctx, "find", loc)
	if errs.IsTimeout(err) {
		return nil, errs.Wrap(errs.ErrorTypeNotFound, "find", loc.Name, err)
	}
	return el, err
}

func (s *Site) FindAll(ctx context.Context, loc epma.Locator, timeout time.Duration) ([]epma.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("find all %s", loc.Name)

	if err, ok := s.fail[loc.Name]; ok {
		return nil, err
	}
	if loc.Name != epma.OrderDrugNotes.Name || s.page != pageNotes || s.current == nil {
		return nil, timedOut(loc)
	}

	var out []epma.Element
	for _, n := range s.current.Notes {
		if n.listed() {
			out = append(out, &element{site: s, loc: loc, note: n, generation: s.generation})
		}
	}
	if len(out) == 0 {
		return nil, timedOut(loc)
	}
	return out, nil
}

func (s *Site) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func timedOut(loc epma.Locator) error {
	return errs.New(errs.ErrorTypeTimeout, "wait", loc.Name+" did not appear")
}

// lookup resolves a locator against the current page state
func (s *Site) lookup(ctx context.Context, op string, loc epma.Locator) (epma.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("%s %s", op, loc.Name)

	if err, ok := s.fail[loc.Name]; ok {
		return nil, err
	}
	if !s.present(loc) {
		return nil, timedOut(loc)
	}
	return &element{site: s, loc: loc, generation: s.generation}, nil
}

func (s *Site) present(loc epma.Locator) bool {
	switch loc.Name {
	case epma.LoginUsername.Name, epma.LoginPassword.Name:
		return s.page == pageLogin
	case epma.SearchField.Name:
		return s.page == pageFinder
	case epma.NoResultsMessage.Name:
		return s.page == pageFinder && s.searched != "" && s.patients[s.searched] == nil
	case epma.FirstResultRow.Name:
		return s.page == pageFinder && s.patients[s.searched] != nil
	case epma.SimilarPatientsWarning.Name, epma.ActivePatientLine.Name, epma.ActivePatientHospitalNumber.Name:
		return s.page == pageSimilar
	case epma.PatientNotesLink.Name:
		return s.page == pagePatient
	case epma.OrderLinkContainer.Name, epma.OrderLinkInput.Name:
		return s.page == pageNotes && s.active != nil && s.active.DrugLink != "" && !s.editing
	case epma.ActiveNoteTitle.Name, epma.EditButton.Name:
		return s.page == pageNotes && s.active != nil && !s.editing
	case epma.TitleField.Name, epma.SuppressionDatePicker.Name, epma.SaveButton.Name,
		epma.CancelButton.Name, epma.NoteTypeField.Name, epma.NoteBodyButton.Name:
		return s.page == pageNotes && s.editing
	case epma.SuppressionDateCell.Name:
		return s.page == pageNotes && s.editing && s.pickerOpen
	case epma.AddNoteLink.Name:
		return s.page == pageNotes && !s.editing
	}
	return false
}

type element struct {
	site       *Site
	loc        epma.Locator
	note       *Note
	generation int
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := e.site
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("click %s", e.loc.Name)
	if e.note != nil {
		s.noteTimeouts = append(s.noteTimeouts, epma.ActionTimeout(ctx, 0))
	}

	if n := s.intercept[e.loc.Name]; n > 0 {
		s.intercept[e.loc.Name] = n - 1
		return errs.New(errs.ErrorTypeClickIntercepted, "click", "element is covered by "+e.loc.Name+" overlay")
	}

	if e.note != nil {
		if s.stale > 0 {
			s.stale--
			s.generation++
			return errs.New(errs.ErrorTypeStale, "click", "node does not belong to the document")
		}
		if e.generation != s.generation || !e.note.listed() {
			return errs.New(errs.ErrorTypeStale, "click", "node does not belong to the document")
		}
		s.active = e.note
		return nil
	}

	switch e.loc.Name {
	case epma.FirstResultRow.Name:
		s.current = s.patients[s.searched]
		if s.current.SimilarNames {
			s.page = pageSimilar
			return nil
		}
		s.openPatient()
	case epma.ActivePatientLine.Name:
		s.openPatient()
	case epma.PatientNotesLink.Name:
		s.page = pageNotes
	case epma.EditButton.Name:
		s.editing = true
		s.draft = &Note{Title: s.active.Title}
		s.pickerOpen, s.dateChosen = false, false
	case epma.AddNoteLink.Name:
		s.editing = true
		s.active = nil
		s.draft = &Note{}
		s.pickerOpen, s.dateChosen = false, false
	case epma.SuppressionDatePicker.Name:
		s.pickerOpen = true
	case epma.SuppressionDateCell.Name:
		s.dateChosen = true
		s.pickerOpen = false
	case epma.SaveButton.Name:
		s.save()
	case epma.CancelButton.Name:
		s.editing, s.draft = false, nil
	}
	return nil
}

func (s *Site) openPatient() {
	s.page = pagePatient
	s.url = fmt.Sprintf("%s/PatientSearch/Inpatient?patientId=%s", strings.TrimRight(s.BaseURL, "/"), s.current.HospitalNumber)
}

func (s *Site) save() {
	if !s.editing || s.draft == nil {
		return
	}
	if s.active != nil {
		s.active.Title = s.draft.Title
		if s.active.Title == epma.SuppressedTitle && !s.dateChosen {
			// EPMA refuses a suppression without a date
			s.active.Title = "SUPPRESSED (no date)"
		}
	} else {
		s.current.Notes = append(s.current.Notes, s.draft)
	}
	s.editing, s.draft, s.active = false, nil, nil
	s.generation++
}

func (e *element) Input(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := e.site
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("input %s %q", e.loc.Name, text)

	switch e.loc.Name {
	case epma.LoginUsername.Name:
		s.typedUser += text
	case epma.LoginPassword.Name:
		s.typedPass += text
	case epma.SearchField.Name:
		s.search += text
	case epma.TitleField.Name:
		if s.draft != nil {
			s.draft.Title += text
		}
	case epma.NoteTypeField.Name:
		s.typeInput += text
	case epma.NoteBodyButton.Name:
		if s.draft != nil {
			s.draft.Body += text
		}
	}
	return nil
}

func (e *element) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := e.site
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("clear %s", e.loc.Name)

	if e.loc.Name == epma.TitleField.Name && s.draft != nil {
		s.draft.Title = ""
	}
	return nil
}

func (e *element) PressEnter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := e.site
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("enter %s", e.loc.Name)

	switch e.loc.Name {
	case epma.LoginPassword.Name:
		s.loggedIn = s.typedUser == s.Username && s.typedPass == s.Password
	case epma.SearchField.Name:
		s.searched, s.search = s.search, ""
	case epma.NoteTypeField.Name:
		if s.draft != nil && strings.HasPrefix(s.typeInput, "*") {
			s.draft.Tag = epma.OrderDrugTag
		}
		s.typeInput = ""
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s := e.site
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.loc.Name {
	case epma.NoResultsMessage.Name:
		return epma.NoResultsText, nil
	case epma.ActiveNoteTitle.Name:
		if s.active != nil {
			return s.active.Title, nil
		}
	}
	if e.note != nil {
		return e.note.Title, nil
	}
	return "", nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s := e.site
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.loc.Name == epma.ActivePatientHospitalNumber.Name && name == "title" && s.current != nil {
		return s.current.HospitalNumber, nil
	}
	return "", nil
}

func (e *element) Value(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s := e.site
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.loc.Name == epma.OrderLinkInput.Name && s.active != nil {
		return s.active.DrugLink, nil
	}
	return "", nil
}
