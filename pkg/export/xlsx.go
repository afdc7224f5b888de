package export

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/stock"
)

// Cell fills per classification, matching the table colours of the UI.
var classificationFills = map[stock.Classification]string{
	stock.Red:         "#F8D7DA",
	stock.Green:       "#D4EDDA",
	stock.BoldGreen:   "#A3D9A5",
	stock.Unavailable: "#E2E3E5",
}

// XLSXExporter writes one sheet per profile: goods down, areas across, in
// the view's order. The workbook is saved on every export.
type XLSXExporter struct {
	path string

	mu   sync.Mutex
	file *excelize.File
}

// NewXLSXExporter creates a workbook that will be saved at path.
func NewXLSXExporter(path string) *XLSXExporter {
	return &XLSXExporter{path: path, file: excelize.NewFile()}
}

// Export implements Exporter.
func (e *XLSXExporter) Export(ctx context.Context, profile string, view *stock.View) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, rlerrors.ContextCanceled("xlsx export")
	}

	sheet := sheetName(profile)
	rows, err := e.writeSheet(sheet, view)
	if err != nil {
		return nil, rlerrors.Wrap(err, rlerrors.CodeWriteFailed, "failed to write sheet").WithContext("sheet", sheet)
	}

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return nil, rlerrors.Wrap(err, rlerrors.CodeWriteFailed, "failed to create output directory")
	}
	if err := e.file.SaveAs(e.path); err != nil {
		return nil, rlerrors.Wrap(err, rlerrors.CodeWriteFailed, "failed to save workbook").WithContext("path", e.path)
	}

	return &Result{RunID: newRunID(), Target: TargetXLSX, Profile: profile, Location: e.path, Rows: rows}, nil
}

func (e *XLSXExporter) writeSheet(sheet string, view *stock.View) (int, error) {
	f := e.file
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return 0, err
	}
	if idx >= 0 {
		if err := f.DeleteSheet(sheet); err != nil {
			return 0, err
		}
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return 0, err
	}
	// Drop the default sheet once a real one exists.
	if sheet != "Sheet1" {
		if i, _ := f.GetSheetIndex("Sheet1"); i >= 0 {
			if err := f.DeleteSheet("Sheet1"); err != nil {
				return 0, err
			}
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, err
	}
	styles := make(map[stock.Classification]int, len(classificationFills))
	for c, color := range classificationFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
			Font: &excelize.Font{Bold: c == stock.BoldGreen},
		})
		if err != nil {
			return 0, err
		}
		styles[c] = id
	}

	header := []any{"Good", "Reasons"}
	for _, col := range view.Columns {
		header = append(header, col.Area)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return 0, err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return 0, err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return 0, err
	}

	for r, row := range view.Rows {
		rowNum := r + 2
		values := []any{row.Good, row.ReasonCodes}
		for _, cell := range row.Cells {
			if cell.Present && cell.Data != nil {
				values = append(values, cell.Data.Stock)
			} else {
				values = append(values, nil)
			}
		}
		start, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return 0, err
		}

		for c, cell := range row.Cells {
			if !cell.Present {
				continue
			}
			name, _ := excelize.CoordinatesToCellName(c+3, rowNum)
			if err := f.SetCellStyle(sheet, name, name, styles[cell.Classification]); err != nil {
				return 0, err
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      2,
		YSplit:      1,
		TopLeftCell: "C2",
		ActivePane:  "bottomRight",
	}); err != nil {
		return 0, err
	}
	return len(view.Rows), nil
}

// sheetName trims profile to Excel's 31-character sheet name limit and
// replaces characters Excel rejects.
func sheetName(profile string) string {
	out := make([]rune, 0, len(profile))
	for _, r := range profile {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			r = '_'
		}
		out = append(out, r)
	}
	if len(out) > 31 {
		out = out[:31]
	}
	if len(out) == 0 {
		return "Sheet1"
	}
	return string(out)
}

// Close releases the workbook.
func (e *XLSXExporter) Close() error {
	return e.file.Close()
}
