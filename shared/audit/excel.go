package audit

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// ExcelizeWriter streams rows into an excelize workbook, one stream per sheet.
type ExcelizeWriter struct {
	file   *excelize.File
	stream *excelize.StreamWriter
	sheet  string
	row    int
	bold   int
	sheets int
}

// NewExcelizeWriter creates a new Excel writer.
func NewExcelizeWriter() ExcelWriter {
	f := excelize.NewFile()
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	return &ExcelizeWriter{file: f, bold: bold}
}

// AddSheet flushes the current sheet and opens a stream on a new one.
func (w *ExcelizeWriter) AddSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if err := w.flush(); err != nil {
		return err
	}

	if w.sheets == 0 {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	stream, err := w.file.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("stream sheet %s: %w", name, err)
	}
	w.stream = stream
	w.sheet = name
	w.row = 1
	w.sheets++
	return nil
}

// WriteHeader writes bold column headers and sizes the columns.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.stream == nil {
		return fmt.Errorf("no active sheet")
	}
	if len(columns) > 0 {
		if err := w.stream.SetColWidth(1, len(columns), 18); err != nil {
			return err
		}
	}

	cells := make([]interface{}, len(columns))
	for i, col := range columns {
		cells[i] = excelize.Cell{StyleID: w.bold, Value: col}
	}
	return w.setRow(cells)
}

// WriteRow writes a data row to the current sheet.
func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if w.stream == nil {
		return fmt.Errorf("no active sheet")
	}
	return w.setRow(row)
}

func (w *ExcelizeWriter) setRow(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.stream.SetRow(cell, values); err != nil {
		return fmt.Errorf("write %s!%s: %w", w.sheet, cell, err)
	}
	w.row++
	return nil
}

func (w *ExcelizeWriter) flush() error {
	if w.stream == nil {
		return nil
	}
	if err := w.stream.Flush(); err != nil {
		return fmt.Errorf("flush sheet %s: %w", w.sheet, err)
	}
	w.stream = nil
	return nil
}

// Save flushes the open sheet and writes the workbook.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	if err := w.flush(); err != nil {
		return err
	}
	return w.file.Write(wr)
}

// Close releases resources.
func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
