// Package export writes a cleaned table to CSV, JSON, XLSX or SQLite.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/utils"
)

// Format is an export file format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatXLSX   Format = "xlsx"
	FormatSQLite Format = "sqlite"
)

// Formats lists the supported formats.
func Formats() []Format { return []Format{FormatCSV, FormatJSON, FormatXLSX, FormatSQLite} }

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "sqlite", "sqlite3", "db":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("unsupported export format %q (use csv, json, xlsx or sqlite)", s)
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer export format from %q; pass --format", path)
	}
	return ParseFormat(ext)
}

// WriteFile writes t to path in format f. An empty f is inferred from path.
func WriteFile(ctx context.Context, path string, f Format, t *dataset.Table) error {
	if f == "" {
		var err error
		if f, err = FormatFromPath(path); err != nil {
			return err
		}
	}
	switch f {
	case FormatSQLite:
		return WriteSQLite(ctx, path, t)
	case FormatXLSX:
		return WriteXLSX(path, t)
	}
	var buf bytes.Buffer
	var err error
	switch f {
	case FormatCSV:
		err = WriteCSV(&buf, t)
	case FormatJSON:
		err = WriteJSON(&buf, t)
	default:
		err = fmt.Errorf("unsupported export format %q", f)
	}
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

// Header is the exported column order: key columns then the table's columns.
func Header(t *dataset.Table) []string {
	return append(dataset.KeyColumns(), t.Columns()...)
}

// WriteCSV writes t with missing values as empty cells.
func WriteCSV(w io.Writer, t *dataset.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(t)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, 0, len(Header(t)))
	for _, r := range t.Rows() {
		rec = rec[:0]
		rec = append(rec, r.Genotype, r.Treatment, FormatDate(r))
		for _, v := range r.Values {
			rec = append(rec, FormatFloat(v))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record is one exported row keyed by column name. Missing values are nil.
type Record map[string]any

// Records converts t for JSON encoding.
func Records(t *dataset.Table) []Record {
	cols := t.Columns()
	out := make([]Record, 0, t.Len())
	for _, r := range t.Rows() {
		rec := Record{
			dataset.ColGenotype:  r.Genotype,
			dataset.ColTreatment: nullString(r.Treatment),
			dataset.ColDate:      nullString(FormatDate(r)),
		}
		for i, c := range cols {
			if dataset.IsMissing(r.Values[i]) {
				rec[c] = nil
			} else {
				rec[c] = r.Values[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// WriteJSON writes t as an indented JSON array of records.
func WriteJSON(w io.Writer, t *dataset.Table) error {
	b, err := utils.PrettyJSON(Records(t))
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// FormatDate renders the row date or "" when it is unset.
func FormatDate(r dataset.Row) string {
	if r.Date.IsZero() {
		return ""
	}
	return r.Date.Format(dataset.DateLayout)
}

// FormatFloat renders v in shortest form, or "" when missing.
func FormatFloat(v float64) string {
	if dataset.IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
