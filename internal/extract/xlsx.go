package extract

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Spreadsheet flattens an .xlsx workbook into text: one line per row with
// tab-separated cells, sheets separated by a blank line and labeled with
// their name so search can attribute hits.
func Spreadsheet(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "extract: open xlsx %s", path)
	}

	var sections []string
	for _, sheet := range f.Sheets {
		var lines []string
		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = cell.String()
			}
			line := strings.TrimRight(strings.Join(cells, "\t"), "\t ")
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		sections = append(sections, sheet.Name+"\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n"), nil
}
