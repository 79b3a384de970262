package epma

import (
	"fmt"
	"strings"
)

// By is the strategy a Locator uses to find an element
type By string

const (
	ByID       By = "id"
	ByCSS      By = "css"
	ByXPath    By = "xpath"
	ByLinkText By = "link_text"
)

// Locator names an element on an EPMA page
type Locator struct {
	Name  string
	By    By
	Value string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s(%s=%s)", l.Name, l.By, l.Value)
}

// CSS returns the selector for ID and CSS locators
func (l Locator) CSS() string {
	if l.By == ByID {
		return fmt.Sprintf(`[id=%q]`, l.Value)
	}
	return l.Value
}

// XPath returns the expression for XPath and link text locators.
// Link text matches an anchor whose normalised text equals Value.
func (l Locator) XPath() string {
	if l.By == ByLinkText {
		return fmt.Sprintf(`//a[normalize-space(.)=%s]`, xpathLiteral(l.Value))
	}
	return l.Value
}

// IsXPath reports whether the locator is resolved with XPath
func (l Locator) IsXPath() bool {
	return l.By == ByXPath || l.By == ByLinkText
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	return `concat('` + strings.Join(parts, `', "'", '`) + `')`
}

// EPMA locators. These are tied to the current EPMA release; a site update
// that moves any of them breaks the run.
var (
	LoginUsername = Locator{"login_username", ByID, "usr"}
	LoginPassword = Locator{"login_password", ByID, "pwd"}

	SearchField      = Locator{"search_field", ByXPath, `//*[@id="hospitalNumber"]`}
	NoResultsMessage = Locator{"no_results_message", ByXPath, `//*[@id="x-msg-zone-default"]/div/p/span`}
	FirstResultRow   = Locator{"first_result_row", ByXPath, `//*[@id="view-search-patient"]/div[3]/div[2]/div/div[1]/div/div[1]/div`}

	SimilarPatientsWarning      = Locator{"similar_patients_warning", ByXPath, `//span[contains(text(), 'similarly named patients')]`}
	ActivePatientLine           = Locator{"active_patient_line", ByCSS, `.x-patient-line.active`}
	ActivePatientHospitalNumber = Locator{"active_patient_hospital_number", ByCSS, `#view-search-patient > div.main > div.x-content-results > div > div:nth-child(1) > div.x-patient-line.active > div.x-patient-details > div:nth-child(2) > div.col-xs-2 > span`}

	PatientNotesLink = Locator{"patient_notes_link", ByLinkText, "PATIENT NOTES"}

	// OrderDrugNotes matches visible "**Order Drug**" notes not yet titled SUPPRESSED
	OrderDrugNotes = Locator{"order_drug_notes", ByXPath, `//li[contains(@class, "note") or contains(@class, "note active")]` +
		`[.//span[@class="tag" and contains(text(), "**Order Drug**")]]` +
		`[not(.//span[@class="title" and text()="SUPPRESSED"])]` +
		`[not(contains(@style, "display: none"))]`}
	OrderLinkContainer = Locator{"order_link_container", ByXPath, `//*[@id="x-content-noteView-01"]/div[1]/div/div[1]/div[1]/div/div[3]`}
	OrderLinkInput     = Locator{"order_link_input", ByXPath, `//*[@id="noteOrderLink"]`}

	ActiveNoteTitle       = Locator{"active_note_title", ByCSS, `li.note.active span.title`}
	EditButton            = Locator{"edit_button", ByXPath, `//*[@id="x-content-noteView-01"]/div[2]/div/button`}
	TitleField            = Locator{"title_field", ByXPath, `//*[@id="notePEtitle"]`}
	SuppressionDatePicker = Locator{"suppression_date_picker", ByXPath, `//*[@id="notePEsuppressionDate-img"]`}
	SuppressionDateCell   = Locator{"suppression_date_cell", ByXPath, `//*[@id="e-notePEsuppressionDate"]/div[2]`}
	SaveButton            = Locator{"save_button", ByXPath, `//*[@id="x-form-PatientNotesEditor"]/div[5]/div[1]/button[2]`}
	CancelButton          = Locator{"cancel_button", ByXPath, `//*[@id="x-form-PatientNotesEditor"]/div[5]/div[1]/button[1]`}

	AddNoteLink    = Locator{"add_note_link", ByXPath, `//*[@id="overlay-PatientNotes"]/div[3]/ul/li[1]/a`}
	NoteTypeField  = Locator{"note_type_field", ByXPath, `//*[@id="notePEtype"]`}
	NoteBodyButton = Locator{"note_body_button", ByXPath, `//*[@id="x-form-PatientNotesEditor"]/div[3]/div[1]/div[1]/a/div/button[3]`}
)

const (
	// PatientURLMarker appears in the URL once a patient record is open
	PatientURLMarker = "Inpatient?patientId"
	// NoResultsText is EPMA's message for a search with no inpatient match
	NoResultsText = "No search results found."
	// SuppressedTitle is the note title that marks a note suppressed
	SuppressedTitle = "SUPPRESSED"
	// OrderDrugTag is the tag carried by order drug notes
	OrderDrugTag = "**Order Drug**"
)
