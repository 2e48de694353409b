package export

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-finder/internal/model"
)

const sheetName = "Leads"

// XLSX builds a workbook with one "Leads" sheet: the export header, then one
// row per lead. Ranks are numeric cells; absent values are empty cells.
func XLSX(leads []model.Lead) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range model.ExportHeader {
		header.AddCell().SetString(h)
	}

	for _, l := range leads {
		row := sheet.AddRow()
		rank := row.AddCell()
		if l.Rank != nil {
			rank.SetFloat(*l.Rank)
		}
		for _, v := range l.Record()[1:] {
			row.AddCell().SetString(v)
		}
	}
	return f, nil
}

// SaveXLSX writes leads to path, resolved like SaveCSV. Zero leads create no file.
func SaveXLSX(path string, leads []model.Lead, now time.Time) (string, error) {
	if len(leads) == 0 {
		return "", nil
	}
	path = resolvePath(path, now, "xlsx")

	f, err := XLSX(leads)
	if err != nil {
		return "", err
	}
	if err := f.Save(path); err != nil {
		return "", eris.Wrap(err, "export: save xlsx")
	}
	return path, nil
}

// Rows returns the sheet export tuples [rank, title, url, email, phone,
// linkedin_url, location_hq], with absent values as nil.
func Rows(leads []model.Lead) [][]any {
	rows := make([][]any, len(leads))
	for i, l := range leads {
		rows[i] = l.Row()
	}
	return rows
}
