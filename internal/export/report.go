// Package export renders property booking reports as XLSX workbooks.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"staybook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet     = "Bookings"
	availabilitySheet = "Availability"
)

// Exporter renders reports and, when dir is set, keeps a copy on disk.
type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{dir: dir, logger: logger}
}

// PropertyBookings renders every booking of p plus its current free windows.
func (e *Exporter) PropertyBookings(p *models.Property, bookings []*models.Booking, generatedAt time.Time) (*models.Report, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(bookingsSheet, "A1", fmt.Sprintf("%s (#%d), units: %d, generated %s",
		p.Name, p.ID, p.Units(), generatedAt.UTC().Format("2006-01-02 15:04")))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	_ = f.SetCellStyle(bookingsSheet, "A1", "A1", titleStyle)
	_ = f.MergeCell(bookingsSheet, "A1", "I1")

	if err := writeBookings(f, bookings); err != nil {
		return nil, err
	}
	if err := writeAvailability(f, p.Availability); err != nil {
		return nil, err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error rendering workbook: %w", err)
	}

	report := &models.Report{
		FileName: fmt.Sprintf("property_%d_bookings_%s.xlsx", p.ID, generatedAt.UTC().Format("2006-01-02_15-04-05")),
		Data:     buf.Bytes(),
	}

	if e.dir != "" {
		if err := e.save(report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (e *Exporter) save(r *models.Report) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("error creating export directory: %w", err)
	}
	path := filepath.Join(e.dir, r.FileName)
	if err := os.WriteFile(path, r.Data, 0o644); err != nil {
		return fmt.Errorf("error saving file: %w", err)
	}
	e.logger.Info().Str("file_path", path).Msg("Excel file created")
	return nil
}

func writeBookings(f *excelize.File, bookings []*models.Booking) error {
	headers := []string{"ID", "Guest", "Check-in", "Check-out", "Nights", "Guests", "Total", "Status", "Updated"}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(bookingsSheet, cell, h)
		_ = f.SetCellStyle(bookingsSheet, cell, cell, headerStyle)
	}

	styles := make(map[models.BookingStatus]int)
	for status, color := range statusColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("error creating style: %w", err)
		}
		styles[status] = id
	}

	for i, b := range bookings {
		row := i + 3
		values := []interface{}{
			b.ID, b.UserID,
			b.CheckIn.Format(models.DateLayout), b.CheckOut.Format(models.DateLayout),
			b.Nights, b.Guests, b.TotalPrice, string(b.Status),
			b.UpdatedAt.UTC().Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(bookingsSheet, cell, v)
		}
		if style, ok := styles[b.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(8, row)
			_ = f.SetCellStyle(bookingsSheet, cell, cell, style)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "B", 10)
	_ = f.SetColWidth(bookingsSheet, "C", "D", 14)
	_ = f.SetColWidth(bookingsSheet, "E", "G", 10)
	_ = f.SetColWidth(bookingsSheet, "H", "I", 18)
	return nil
}

func writeAvailability(f *excelize.File, windows []models.DateRange) error {
	if _, err := f.NewSheet(availabilitySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.SetSheetRow(availabilitySheet, "A1", &[]interface{}{"From", "To (exclusive)", "Nights"})
	for i, w := range windows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(availabilitySheet, cell, &[]interface{}{
			w.Start.Format(models.DateLayout), w.End.Format(models.DateLayout), w.Nights(),
		})
	}
	_ = f.SetColWidth(availabilitySheet, "A", "C", 16)
	return nil
}

var statusColors = map[models.BookingStatus]string{
	models.StatusConfirmed: "#C6EFCE",
	models.StatusPending:   "#FFEB9C",
	models.StatusCancelled: "#FFC7CE",
	models.StatusCompleted: "#D9D9D9",
}
