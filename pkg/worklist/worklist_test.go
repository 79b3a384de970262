package worklist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	errs "epmasuppress/pkg/errors"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worklist.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBuildGroupsAndNormalises(t *testing.T) {
	rows := []Row{
		{"7654321", "paracetamol"},
		{"1234567", " Warfarin "},
		{"7654321", "Co-codamol 30/500"},
		{"", ""},
		{"1234567", "warfarin sodium"},
	}

	wl, err := Build("test", rows, false)
	require.NoError(t, err)
	require.Equal(t, 2, wl.Len())

	patients := wl.Patients()
	assert.Equal(t, "1234567", patients[0].HospitalNumber)
	assert.Equal(t, []string{"WARFARIN", "WARFARINSODIUM"}, patients[0].Drugs)
	assert.Equal(t, "7654321", patients[1].HospitalNumber)
	assert.Equal(t, []string{"PARACETAMOL", "CO-CODAMOL30/500"}, patients[1].Drugs)
	assert.Equal(t, 4, wl.DrugCount())
}

func TestBuildBlankDrugStillRegistersPatient(t *testing.T) {
	wl, err := Build("test", []Row{{"1234567", ""}}, false)
	require.NoError(t, err)
	require.Equal(t, 1, wl.Len())
	assert.Empty(t, wl.Patients()[0].Drugs)
}

func TestBuildDropsMissingHospitalNumber(t *testing.T) {
	wl, err := Build("test", []Row{{"", "ASPIRIN"}, {"1234567", "ASPIRIN"}}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, wl.Len())
}

func TestBuildStrict(t *testing.T) {
	rows := []Row{{"1234567", "A"}, {"123", "B"}, {"ABC1234", "C"}}

	loose, err := Build("test", rows, false)
	require.NoError(t, err)
	assert.Equal(t, 3, loose.Len())

	strict, err := Build("test", rows, true)
	require.NoError(t, err)
	assert.Equal(t, 1, strict.Len())
}

func TestBuildEmpty(t *testing.T) {
	_, err := Build("test", []Row{{"", ""}, {" ", "\t"}}, false)
	assert.Error(t, err)
}

func TestPatientsReturnsCopy(t *testing.T) {
	wl, err := Build("test", []Row{{"1", "A"}}, false)
	require.NoError(t, err)

	p := wl.Patients()
	p[0].HospitalNumber = "changed"
	assert.Equal(t, "1", wl.Patients()[0].HospitalNumber)
}

func TestPatientMatches(t *testing.T) {
	p := Patient{HospitalNumber: "1234567", Drugs: []string{"WARFARIN", "CO-CODAMOL30/500"}}

	assert.True(t, p.Matches("warfarin"))
	assert.True(t, p.Matches(" Co-codamol 30/500 "))
	assert.False(t, p.Matches("aspirin"))
	assert.False(t, p.Matches(""))
	assert.False(t, Patient{}.Matches(""))
}

func TestNormalizeHospitalNumber(t *testing.T) {
	tests := map[string]string{
		"1234567":     "1234567",
		" 12 34 567 ": "1234567",
		"1234567.0":   "1234567",
		"A1234.0":     "A1234.0",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHospitalNumber(in), in)
	}
}

func TestReadCSV(t *testing.T) {
	path := writeCSV(t, "1234567,warfarin\n7654321,Aspirin\n1234567,\n,\n")

	wl, err := Read(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, wl.Len())
	assert.Equal(t, path, wl.Source)
	assert.Equal(t, []string{"WARFARIN"}, wl.Patients()[0].Drugs)
}

func TestReadCSVShortRowsAndCustomColumns(t *testing.T) {
	path := writeCSV(t, "warfarin,ward 3,1234567\nnothing\n")

	wl, err := Read(path, Options{HospitalNumberColumn: 2, DrugNameColumn: 0})
	require.NoError(t, err)
	require.Equal(t, 1, wl.Len())
	assert.Equal(t, "1234567", wl.Patients()[0].HospitalNumber)
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worklist.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "2222222"))
	require.NoError(t, f.SetCellValue(sheet, "B1", "Enoxaparin"))
	require.NoError(t, f.SetCellValue(sheet, "A2", "1111111"))
	require.NoError(t, f.SetCellValue(sheet, "B2", "morphine sulfate"))
	require.NoError(t, f.SetCellValue(sheet, "A3", "2222222"))
	require.NoError(t, f.SetCellValue(sheet, "B3", "heparin"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	wl, err := Read(path, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 2, wl.Len())

	patients := wl.Patients()
	assert.Equal(t, "1111111", patients[0].HospitalNumber)
	assert.Equal(t, []string{"MORPHINESULFATE"}, patients[0].Drugs)
	assert.Equal(t, []string{"ENOXAPARIN", "HEPARIN"}, patients[1].Drugs)
}

func TestReadXLSXMissingSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worklist.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue(f.GetSheetName(0), "A1", "1234567"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := Read(path, Options{Sheet: "Ward 9", DrugNameColumn: 1})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeInput, errs.TypeOf(err))
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "Order_Drug_Suppression.xls"), DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeInput, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "Order_Drug_Suppression.xls")
}

func TestReadEmptyFile(t *testing.T) {
	path := writeCSV(t, "")

	_, err := Read(path, DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeInput, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "empty or corrupted")
}

func TestReadXLS(t *testing.T) {
	// ward.xls rows: "1234567" " warfarin ", 1234567.0 "Aspirin 75mg",
	// "7654321.0" "Co-codamol 30/500", 2345678 "paracetamol", a missing
	// row, "7654321" "Warfarin", a drug with no number, "1234567" alone.
	wl, err := Read(filepath.Join("testdata", "ward.xls"), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []Patient{
		{HospitalNumber: "1234567", Drugs: []string{"WARFARIN", "ASPIRIN75MG"}},
		{HospitalNumber: "2345678", Drugs: []string{"PARACETAMOL"}},
		{HospitalNumber: "7654321", Drugs: []string{"CO-CODAMOL30/500", "WARFARIN"}},
	}, wl.Patients())
	assert.Equal(t, 5, wl.DrugCount())
}

func TestReadXLSSheet(t *testing.T) {
	path := filepath.Join("testdata", "ward.xls")

	opts := DefaultOptions()
	opts.Sheet = "Ward 12"
	wl, err := Read(path, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, wl.Len())

	opts.Sheet = "Ward 9"
	_, err = Read(path, opts)
	assert.ErrorContains(t, err, `sheet "Ward 9" not found`)
}

func TestReadCorruptXLS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worklist.xls")
	require.NoError(t, os.WriteFile(path, []byte("this is not a workbook"), 0644))

	_, err := Read(path, DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeInput, errs.TypeOf(err))
}

func TestReadUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("1234567,A"), 0644))

	_, err := Read(path, DefaultOptions())
	assert.ErrorContains(t, err, "unsupported file type")
}
