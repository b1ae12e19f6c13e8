// Package patientcsv reads patient import files and writes patient exports.
package patientcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
)

// RequiredColumns must all appear in an import header, in any order and any letter case.
var RequiredColumns = []string{"child_code", "first_name", "last_name", "community", "birthdate", "gender"}

// ExportHeader is the first line of every export.
var ExportHeader = []string{"childId", "firstName", "lastName", "community", "dob", "sex", "screenCount"}

// aliases maps export header names onto import columns so an export re-imports as is.
var aliases = map[string]string{
	"childid":   "child_code",
	"firstname": "first_name",
	"lastname":  "last_name",
	"dob":       "birthdate",
	"sex":       "gender",
}

var ErrNoDataRows = errors.New("csv file must contain a header row and at least one data row")

// MissingColumnsError names the required columns absent from the header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// MalformedFileError reports a file the CSV reader could not split into
// records. Line is the file line where reading stopped.
type MalformedFileError struct {
	Line int
	Err  error
}

func (e *MalformedFileError) Error() string {
	return fmt.Sprintf("malformed csv on line %d: %v", e.Line, e.Err)
}

func (e *MalformedFileError) Unwrap() error {
	return e.Err
}

// RowError lists every problem found on one data line.
type RowError struct {
	Line      int      `json:"line"`
	ChildCode string   `json:"child_code,omitempty"`
	Messages  []string `json:"errors"`
}

// RowErrors is returned when any data row fails validation. It carries every
// failing row, not just the first.
type RowErrors []RowError

func (e RowErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, r := range e {
		parts = append(parts, fmt.Sprintf("line %d: %s", r.Line, strings.Join(r.Messages, "; ")))
	}
	return fmt.Sprintf("%d invalid rows: %s", len(e), strings.Join(parts, " | "))
}

// Row is one normalized data row and the file line it came from.
type Row struct {
	Line int `json:"line"`
	patient.Fields
}

// Parse reads an import file and returns the normalized rows. Nothing is
// returned unless every row is valid.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	// A stray quote inside an unquoted field is kept as text.
	cr.LazyQuotes = true

	type line struct {
		num    int
		fields []string
	}
	var lines []line
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &MalformedFileError{Line: pe.Line, Err: pe.Err}
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if blank(rec) {
			continue
		}
		num, _ := cr.FieldPos(0)
		lines = append(lines, line{num: num, fields: rec})
	}

	if len(lines) < 2 {
		return nil, ErrNoDataRows
	}

	index, err := headerIndex(lines[0].fields)
	if err != nil {
		return nil, err
	}

	var (
		rows    = make([]Row, 0, len(lines)-1)
		rowErrs RowErrors
		seen    = make(map[string]int, len(lines)-1)
	)
	for _, l := range lines[1:] {
		get := func(col string) string {
			i := index[col]
			if i >= len(l.fields) {
				return ""
			}
			return strings.TrimSpace(l.fields[i])
		}
		f := patient.Fields{
			ChildCode:   get("child_code"),
			FirstName:   get("first_name"),
			LastName:    get("last_name"),
			Community:   get("community"),
			DateOfBirth: get("birthdate"),
			Sex:         get("gender"),
		}

		msgs := f.Validate()
		code := patient.NormalizeChildCode(f.ChildCode)
		if code != "" {
			if first, dup := seen[code]; dup {
				msgs = append(msgs, "child_code "+code+" already appears on line "+strconv.Itoa(first))
			} else {
				seen[code] = l.num
			}
		}
		if len(msgs) > 0 {
			rowErrs = append(rowErrs, RowError{Line: l.num, ChildCode: code, Messages: msgs})
			continue
		}
		rows = append(rows, Row{Line: l.num, Fields: f.Normalize()})
	}

	if len(rowErrs) > 0 {
		return nil, rowErrs
	}
	return rows, nil
}

// headerIndex maps each required column to its position in the header.
func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if alias, ok := aliases[name]; ok {
			name = alias
		}
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	return index, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Write emits the export header followed by one line per patient.
func Write(w io.Writer, patients []*patient.Summary) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("patient export csv: write header: %w", err)
	}
	for _, p := range patients {
		record := []string{
			p.ChildCode,
			p.FirstName,
			p.LastName,
			p.Community,
			p.DateOfBirth.Format(patient.DateLayout),
			string(p.Sex),
			strconv.FormatInt(p.ScreenCount, 10),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("patient export csv: write record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
