package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

// Header is the first row of every exported report.
var Header = []string{"Filename", "Violations", "Fine_Amount", "Timestamp"}

// ErrMalformedReport is returned by ReadCSV for rows it cannot parse.
var ErrMalformedReport = errors.New("malformed report")

// Row is one exported record.
type Row struct {
	Filename   string
	Violations violation.TagSet
	Fine       int
	Timestamp  time.Time
}

// Summary holds the totals of a report.
type Summary struct {
	Count      int `json:"count"`
	TotalFines int `json:"total_fines"`
}

// RowFromRecord projects a record onto the report columns.
func RowFromRecord(rec violation.Record) Row {
	return Row{
		Filename:   rec.Filename,
		Violations: rec.Tags,
		Fine:       rec.Fine,
		Timestamp:  rec.Timestamp,
	}
}

// WriteCSV writes the header and one row per record.
func WriteCSV(w io.Writer, records []violation.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range records {
		row := RowFromRecord(rec)
		if err := cw.Write([]string{
			row.Filename,
			row.Violations.Join("; "),
			strconv.Itoa(row.Fine),
			row.Timestamp.Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a report written by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedReport)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	for i, col := range Header {
		if head[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrMalformedReport, i, head[i], col)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
		}

		tags, err := violation.ParseTagList(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedReport, line, err)
		}
		fine, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: fine %q", ErrMalformedReport, line, fields[2])
		}
		ts, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: timestamp %q", ErrMalformedReport, line, fields[3])
		}

		rows = append(rows, Row{Filename: fields[0], Violations: tags, Fine: fine, Timestamp: ts})
	}
	return rows, nil
}

// Summarize totals rows.
func Summarize(rows []Row) Summary {
	s := Summary{Count: len(rows)}
	for _, r := range rows {
		s.TotalFines += r.Fine
	}
	return s
}
