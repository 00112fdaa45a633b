package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/KaramelBytes/phenodash/internal/dataset"
)

// TableName is the SQLite table WriteSQLite replaces.
const TableName = "phenotypes"

// WriteSQLite replaces the phenotypes table in the database at path with t.
// Key columns are TEXT (date as YYYY-MM-DD); measurements are REAL, NULL when missing.
func WriteSQLite(ctx context.Context, path string, t *dataset.Table) (retErr error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("close sqlite: %w", cerr)
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	header := Header(t)
	defs := make([]string, len(header))
	marks := make([]string, len(header))
	for i, h := range header {
		typ := "REAL"
		if i < len(dataset.KeyColumns()) {
			typ = "TEXT"
		}
		defs[i] = quoteIdent(h) + " " + typ
		marks[i] = "?"
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(TableName)); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, quoteIdent(TableName), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = quoteIdent(h)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(TableName), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(header))
	for i, r := range t.Rows() {
		args[0], args[1], args[2] = r.Genotype, nullString(r.Treatment), nullString(FormatDate(r))
		for j, v := range r.Values {
			if dataset.IsMissing(v) {
				args[3+j] = nil
			} else {
				args[3+j] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
