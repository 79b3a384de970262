package worklist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	errs "epmasuppress/pkg/errors"
)

// Options selects the sheet and columns to read
type Options struct {
	Sheet                string
	HospitalNumberColumn int
	DrugNameColumn       int
	Strict               bool
}

// DefaultOptions reads column 0 as the hospital number and column 1 as the
// drug from the first sheet.
func DefaultOptions() Options {
	return Options{HospitalNumberColumn: 0, DrugNameColumn: 1}
}

// Read loads a worklist from an .xls, .xlsx or .csv file with no header row
func Read(path string, opts Options) (*Worklist, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrorTypeInput, "read worklist", "",
				fmt.Errorf("spreadsheet could not be found, it should be named %q", filepath.Base(path)))
		}
		return nil, errs.Wrap(errs.ErrorTypeInput, "read worklist", "", err)
	}

	var (
		rows []Row
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls":
		rows, err = readXLS(path, opts)
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path, opts)
	case ".csv":
		rows, err = readCSV(path, opts)
	default:
		err = fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeInput, "read worklist", "",
			fmt.Errorf("the spreadsheet is empty or corrupted: %w", err))
	}

	wl, err := Build(path, rows, opts.Strict)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeInput, "read worklist", "",
			fmt.Errorf("the spreadsheet is empty or corrupted: %w", err))
	}
	return wl, nil
}

// cells picks the configured columns out of a record; short rows yield blanks
func (o Options) cells(record []string) Row {
	var r Row
	if o.HospitalNumberColumn < len(record) {
		r.HospitalNumber = record[o.HospitalNumberColumn]
	}
	if o.DrugNameColumn < len(record) {
		r.Drug = record[o.DrugNameColumn]
	}
	return r
}

func readXLS(path string, opts Options) (rows []Row, err error) {
	// the BIFF parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("unreadable xls: %v", r)
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, err
	}

	var sheet *xls.WorkSheet
	for i := 0; i < wb.NumSheets(); i++ {
		s := wb.GetSheet(i)
		if s == nil {
			continue
		}
		if opts.Sheet == "" || s.Name == opts.Sheet {
			sheet = s
			break
		}
	}
	if sheet == nil {
		if opts.Sheet != "" {
			return nil, fmt.Errorf("sheet %q not found", opts.Sheet)
		}
		return nil, errors.New("workbook has no sheets")
	}

	maxCol := opts.HospitalNumberColumn
	if opts.DrugNameColumn > maxCol {
		maxCol = opts.DrugNameColumn
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			continue
		}
		record := make([]string, maxCol+1)
		for c := range record {
			record[c] = row.Col(c)
		}
		rows = append(rows, opts.cells(record))
	}
	return rows, nil
}

// xlsRow returns row i, or nil for a row the sheet never wrote.
// WorkSheet.Row dereferences missing rows.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

func readXLSX(path string, opts Options) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records))
	for _, record := range records {
		rows = append(rows, opts.cells(record))
	}
	return rows, nil
}

func readCSV(path string, opts Options) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, opts.cells(record))
	}
	return rows, nil
}
