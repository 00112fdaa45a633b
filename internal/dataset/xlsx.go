package dataset

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads one worksheet of an .xlsx workbook with the same column
// rules as Parse. An empty sheet name selects the first worksheet.
func ParseXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &DataFormatError{Err: fmt.Errorf("open xlsx: %w", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &DataFormatError{Err: errors.New("workbook has no sheets")}
	}
	if sheet == "" {
		sheet = sheets[0]
	} else {
		found := false
		for _, s := range sheets {
			if strings.EqualFold(s, sheet) {
				sheet, found = s, true
				break
			}
		}
		if !found {
			return nil, &DataFormatError{Err: fmt.Errorf("sheet %q not found; available sheets: %s", sheet, strings.Join(sheets, ", "))}
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &DataFormatError{Err: fmt.Errorf("read sheet %q: %w", sheet, err)}
	}
	if len(rows) == 0 {
		return nil, &DataFormatError{Err: errors.New("empty source")}
	}
	header := rows[0]
	records := make([][]string, 0, len(rows)-1)
	for n, rec := range rows[1:] {
		// Trailing empty cells are trimmed by excelize.
		if len(rec) > len(header) {
			return nil, &DataFormatError{Row: n + 1, Err: fmt.Errorf("row has %d cells, header has %d", len(rec), len(header))}
		}
		padded := make([]string, len(header))
		copy(padded, rec)
		records = append(records, padded)
	}
	return build(header, records)
}

// isXLSX reports whether locator names a workbook, ignoring any query string.
func isXLSX(locator string) bool {
	p := locator
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	return strings.EqualFold(path.Ext(p), ".xlsx")
}
