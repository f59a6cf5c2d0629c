package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TableExporter provides a period's rows for each exported table.
type TableExporter interface {
	// GetTableNames returns the tables to export, in sheet order.
	GetTableNames(ctx context.Context) ([]string, error)

	// GetTableData returns columns and rows of a table within [from, to).
	GetTableData(ctx context.Context, tableName string, from, to time.Time) ([]string, [][]interface{}, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	// AddSheet starts a new sheet with the given name.
	AddSheet(name string) error

	// WriteHeader writes column headers to the current sheet.
	WriteHeader(columns []string) error

	// WriteRow writes a data row to the current sheet.
	WriteRow(row []interface{}) error

	// Save writes the workbook to w.
	Save(w io.Writer) error
}

// Notifier delivers finished reports.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// MonthNames in Spanish for report names.
var MonthNames = map[time.Month]string{
	time.January:   "Enero",
	time.February:  "Febrero",
	time.March:     "Marzo",
	time.April:     "Abril",
	time.May:       "Mayo",
	time.June:      "Junio",
	time.July:      "Julio",
	time.August:    "Agosto",
	time.September: "Septiembre",
	time.October:   "Octubre",
	time.November:  "Noviembre",
	time.December:  "Diciembre",
}

// GenerateFilename creates a filename like "Reservas_Mayo_2030.xlsx".
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("Reservas_%s_%d.xlsx", MonthNames[t.Month()], t.Year())
}

// MonthRange returns the UTC bounds [from, to) of the month containing t.
func MonthRange(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// PreviousMonth returns the first instant of the month before now's.
func PreviousMonth(now time.Time) time.Time {
	from, _ := MonthRange(now)
	return from.AddDate(0, -1, 0)
}
