package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/mtlprog/livefolio/internal/domain"
)

const (
	xlsxHoldings = "Holdings"
	xlsxHistory  = "History"
)

// XLSXWriter exports valuations to a local workbook. Each export rewrites the Holdings sheet
// and appends one row to History, so the file accumulates a value history over time.
type XLSXWriter struct {
	path string
}

// NewXLSXWriter creates a writer for the workbook at path. The file is created on first export.
func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{path: path}
}

// Path returns the workbook location.
func (w *XLSXWriter) Path() string {
	return w.path
}

func (w *XLSXWriter) Export(ctx context.Context, result domain.ValuationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeHoldingsSheet(f, buildHoldingsRows(result)); err != nil {
		return err
	}
	if err := appendHistorySheet(f, buildHistoryRow(result)); err != nil {
		return err
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving %s: %w", w.path, err)
	}
	return nil
}

// open loads the existing workbook or creates one with both sheets.
func (w *XLSXWriter) open() (*excelize.File, error) {
	if _, err := os.Stat(w.path); err == nil {
		f, err := excelize.OpenFile(w.path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", w.path, err)
		}
		for _, name := range []string{xlsxHoldings, xlsxHistory} {
			if idx, _ := f.GetSheetIndex(name); idx == -1 {
				if _, err := f.NewSheet(name); err != nil {
					f.Close()
					return nil, fmt.Errorf("creating sheet %s: %w", name, err)
				}
			}
		}
		return f, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking %s: %w", w.path, err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", xlsxHoldings); err != nil {
		f.Close()
		return nil, fmt.Errorf("renaming default sheet: %w", err)
	}
	if _, err := f.NewSheet(xlsxHistory); err != nil {
		f.Close()
		return nil, fmt.Errorf("creating sheet %s: %w", xlsxHistory, err)
	}
	return f, nil
}

func writeHoldingsSheet(f *excelize.File, rows [][]any) error {
	existing, err := f.GetRows(xlsxHoldings)
	if err != nil {
		return fmt.Errorf("reading %s: %w", xlsxHoldings, err)
	}
	for r := len(existing); r > len(rows); r-- {
		if err := f.RemoveRow(xlsxHoldings, r); err != nil {
			return fmt.Errorf("trimming %s row %d: %w", xlsxHoldings, r, err)
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(xlsxHoldings, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", xlsxHoldings, i+1, err)
		}
	}

	if err := boldHeader(f, xlsxHoldings); err != nil {
		return err
	}
	return f.SetColWidth(xlsxHoldings, "A", "H", 16)
}

func appendHistorySheet(f *excelize.File, row []any) error {
	existing, err := f.GetRows(xlsxHistory)
	if err != nil {
		return fmt.Errorf("reading %s: %w", xlsxHistory, err)
	}

	next := len(existing) + 1
	if len(existing) == 0 {
		header := historyHeader
		if err := f.SetSheetRow(xlsxHistory, "A1", &header); err != nil {
			return fmt.Errorf("writing %s header: %w", xlsxHistory, err)
		}
		if err := boldHeader(f, xlsxHistory); err != nil {
			return err
		}
		if err := f.SetColWidth(xlsxHistory, "A", "I", 18); err != nil {
			return err
		}
		next = 2
	}

	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(xlsxHistory, cell, &row); err != nil {
		return fmt.Errorf("appending %s row: %w", xlsxHistory, err)
	}
	return nil
}

func boldHeader(f *excelize.File, sheet string) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
