package worklist

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var hospitalNumberPattern = regexp.MustCompile(`^\d{7}$`)

// Patient is one hospital number and the drugs whose notes should be suppressed
type Patient struct {
	HospitalNumber string
	Drugs          []string
}

// Matches reports whether drug, once normalised, is in the patient's list
func (p Patient) Matches(drug string) bool {
	drug = NormalizeDrug(drug)
	if drug == "" {
		return false
	}
	for _, d := range p.Drugs {
		if d == drug {
			return true
		}
	}
	return false
}

// Worklist is the grouped spreadsheet, ordered by hospital number
type Worklist struct {
	Source   string
	patients []Patient
}

// Len is the number of distinct hospital numbers
func (w *Worklist) Len() int {
	return len(w.patients)
}

// Patients returns the patients in ascending hospital number order
func (w *Worklist) Patients() []Patient {
	out := make([]Patient, len(w.patients))
	copy(out, w.patients)
	return out
}

// DrugCount is the total number of drug entries across patients
func (w *Worklist) DrugCount() int {
	n := 0
	for _, p := range w.patients {
		n += len(p.Drugs)
	}
	return n
}

// Row is one raw spreadsheet row, before normalisation
type Row struct {
	HospitalNumber string
	Drug           string
}

// Build normalises rows and groups them by hospital number.
// Rows with both cells blank are dropped, as are rows with no hospital
// number. A blank drug registers the patient without adding a drug.
func Build(source string, rows []Row, strict bool) (*Worklist, error) {
	byNumber := make(map[string]*Patient)
	var order []string

	for _, r := range rows {
		if strings.TrimSpace(r.HospitalNumber) == "" && strings.TrimSpace(r.Drug) == "" {
			continue
		}

		number := NormalizeHospitalNumber(r.HospitalNumber)
		if number == "" {
			continue
		}
		if strict && !hospitalNumberPattern.MatchString(number) {
			continue
		}

		p, ok := byNumber[number]
		if !ok {
			p = &Patient{HospitalNumber: number}
			byNumber[number] = p
			order = append(order, number)
		}
		if drug := NormalizeDrug(r.Drug); drug != "" {
			p.Drugs = append(p.Drugs, drug)
		}
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("no patients found in %s", source)
	}

	sort.Strings(order)
	patients := make([]Patient, 0, len(order))
	for _, number := range order {
		patients = append(patients, *byNumber[number])
	}

	return &Worklist{Source: source, patients: patients}, nil
}

// NormalizeDrug upper-cases a drug name and removes all whitespace, the
// same form EPMA's order link is compared in.
func NormalizeDrug(s string) string {
	return strings.ToUpper(stripSpace(s))
}

// NormalizeHospitalNumber removes whitespace. Numeric cells that a
// spreadsheet stored as floats lose their trailing ".0".
func NormalizeHospitalNumber(s string) string {
	s = stripSpace(s)
	if trimmed := strings.TrimSuffix(s, ".0"); trimmed != s && isDigits(trimmed) {
		return trimmed
	}
	return s
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
