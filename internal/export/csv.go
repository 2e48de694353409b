// Package export writes lead sets to files and to the row tuples used by sheet exports.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/model"
)

// FileName returns the default export file name for ext at t: leads-<unix ms>.<ext>.
func FileName(t time.Time, ext string) string {
	return fmt.Sprintf("leads-%d.%s", t.UnixMilli(), ext)
}

// CSV renders leads as CSV: an unquoted header row, then one row per lead
// with every field quoted and inner quotes doubled. Rows are joined by "\n"
// with no trailing newline.
func CSV(leads []model.Lead) string {
	var b strings.Builder
	b.WriteString(strings.Join(model.ExportHeader, ","))
	for _, l := range leads {
		b.WriteByte('\n')
		for i, f := range l.Record() {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(f, `"`, `""`))
			b.WriteByte('"')
		}
	}
	return b.String()
}

// WriteCSV writes CSV(leads) to w. Zero leads write nothing.
func WriteCSV(w io.Writer, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, CSV(leads)); err != nil {
		return eris.Wrap(err, "export: write csv")
	}
	return nil
}

// SaveCSV writes leads to path, or to FileName(now, "csv") in dir when path
// is a directory or empty. It returns the written path, or "" with no file
// created when there are no leads.
func SaveCSV(path string, leads []model.Lead, now time.Time) (string, error) {
	if len(leads) == 0 {
		return "", nil
	}
	path = resolvePath(path, now, "csv")

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "export: create csv file")
	}
	if err := WriteCSV(f, leads); err != nil {
		f.Close() //nolint:errcheck
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "export: close csv file")
	}
	return path, nil
}

func resolvePath(path string, now time.Time, ext string) string {
	if path == "" {
		return FileName(now, ext)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, FileName(now, ext))
	}
	return path
}
