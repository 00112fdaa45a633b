package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/phenodash/internal/logging"
)

// Loader fetches a CSV or XLSX source and parses it into a Table.
type Loader struct {
	// Sheet selects the worksheet of .xlsx sources; empty means the first.
	Sheet string

	fetchers []Fetcher
	timeout  time.Duration
}

// NewLoader returns a loader for http(s) and local sources plus any extra
// fetchers, which take precedence. timeout bounds the whole fetch; zero
// leaves it to the caller's context.
func NewLoader(timeout time.Duration, extra ...Fetcher) *Loader {
	fs := make([]Fetcher, 0, len(extra)+2)
	fs = append(fs, extra...)
	fs = append(fs, &HTTPFetcher{Client: &http.Client{Timeout: timeout}}, FileFetcher{})
	return &Loader{fetchers: fs, timeout: timeout}
}

// Load fetches locator and parses it. Fetch failures surface as
// *SourceUnavailableError; schema and cell failures as *DataFormatError or
// *MissingColumnError. Nothing is retried.
func (l *Loader) Load(ctx context.Context, locator string) (*Table, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	var f Fetcher
	for _, cand := range l.fetchers {
		if cand.CanFetch(locator) {
			f = cand
			break
		}
	}
	if f == nil {
		return nil, &SourceUnavailableError{Source: locator, Err: ErrUnsupportedSource}
	}
	rc, err := f.Fetch(ctx, locator)
	if err != nil {
		return nil, &SourceUnavailableError{Source: locator, Err: err}
	}
	defer rc.Close()
	var t *Table
	if isXLSX(locator) {
		t, err = ParseXLSX(rc, l.Sheet)
	} else {
		t, err = Parse(rc)
	}
	if err != nil {
		var dfe *DataFormatError
		var mce *MissingColumnError
		if errors.As(err, &dfe) || errors.As(err, &mce) {
			return nil, err
		}
		// Anything else is a broken stream.
		return nil, &SourceUnavailableError{Source: locator, Err: err}
	}
	logging.Debugw("loaded source", "source", locator, "rows", t.Len(), "columns", len(t.Columns()))
	return t, nil
}

// Parse reads CSV text with a header row. Key columns are required; the
// phenotype columns are parsed strictly; any other column is kept when every
// cell is numeric or missing and dropped otherwise.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &DataFormatError{Err: errors.New("empty source")}
		}
		return nil, readErr(err, 0)
	}
	var records [][]string
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, readErr(err, len(records)+1)
		}
		records = append(records, rec)
	}
	return build(header, records)
}

// build types raw records against header. Records must be as wide as header.
func build(header []string, records [][]string) (*Table, error) {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	names := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if j, dup := seen[h]; dup && h != "" {
			return nil, &DataFormatError{Err: fmt.Errorf("duplicate column %q (positions %d and %d)", h, j+1, i+1)}
		}
		seen[h] = i
		names[i] = h
	}
	gi, okG := seen[ColGenotype]
	ti, okT := seen[ColTreatment]
	di, okD := seen[ColDate]
	for _, req := range []struct {
		name string
		ok   bool
	}{{ColGenotype, okG}, {ColTreatment, okT}, {ColDate, okD}} {
		if !req.ok {
			return nil, &MissingColumnError{Column: req.name, Stage: "load"}
		}
	}

	strict := map[string]bool{}
	for _, c := range PhenotypeColumns() {
		strict[c] = true
	}
	var cols []string
	var colPos []int
	for i, name := range names {
		if i == gi || i == ti || i == di {
			continue
		}
		if name == "" {
			logging.Debugw("dropping unnamed column", "position", i+1)
			continue
		}
		if strict[name] || numericColumn(records, i) {
			cols = append(cols, name)
			colPos = append(colPos, i)
			continue
		}
		logging.Debugw("dropping non-numeric column", "column", name)
	}

	rows := make([]Row, 0, len(records))
	for n, rec := range records {
		row := Row{
			Genotype:  strings.TrimSpace(rec[gi]),
			Treatment: strings.TrimSpace(rec[ti]),
			Values:    make([]float64, len(cols)),
		}
		if v := strings.TrimSpace(rec[di]); !isMissingToken(v) {
			d, ok := parseDate(v)
			if !ok {
				return nil, &DataFormatError{Row: n + 1, Column: ColDate, Value: v, Err: errors.New("unrecognized date")}
			}
			row.Date = d
		}
		for j, pos := range colPos {
			v := strings.TrimSpace(rec[pos])
			if isMissingToken(v) {
				row.Values[j] = Missing()
				continue
			}
			x, ok := parseNumeric(v)
			if !ok {
				return nil, &DataFormatError{Row: n + 1, Column: cols[j], Value: v, Err: errors.New("not a number")}
			}
			row.Values[j] = x
		}
		rows = append(rows, row)
	}
	return New(cols, rows)
}

func readErr(err error, row int) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &DataFormatError{Row: row, Err: err}
	}
	return fmt.Errorf("read row %d: %w", row, err)
}

func numericColumn(records [][]string, i int) bool {
	for _, rec := range records {
		v := strings.TrimSpace(rec[i])
		if isMissingToken(v) {
			continue
		}
		if _, ok := parseNumeric(v); !ok {
			return false
		}
	}
	return true
}

var missingTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-nan": {}, "-NaN": {},
	"null": {}, "NULL": {}, "None": {}, "#N/A": {}, "<NA>": {},
}

func isMissingToken(s string) bool {
	_, ok := missingTokens[s]
	return ok
}

var dateLayouts = []string{
	DateLayout, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05",
	"2006/01/02", "01/02/2006", "1/2/2006", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

// parseDate accepts the layouts seen in phenotyping exports and truncates to
// the calendar date in UTC.
func parseDate(s string) (time.Time, bool) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseNumeric(s string) (float64, bool) {
	raw := strings.ReplaceAll(s, " ", "")
	raw = strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
