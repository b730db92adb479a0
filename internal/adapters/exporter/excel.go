package exporter

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/ports"
)

const (
	adminsSheet = "Admins"
	chatsSheet  = "Chats"
)

// ExcelExporter выгружает реестр в xlsx: лист админов и лист чатов.
type ExcelExporter struct {
	out io.Writer
	now func() time.Time
}

// NewExcelExporter создает новый экземпляр ExcelExporter.
func NewExcelExporter(out io.Writer) ports.Exporter {
	return &ExcelExporter{out: out, now: time.Now}
}

// Export записывает книгу в out.
func (e *ExcelExporter) Export(reg domain.Registry) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", adminsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(chatsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	exportDate := e.now().Format(time.RFC3339)

	rows := [][]any{{"ID", "Name", "Exported at"}}
	for _, a := range reg.Admins {
		rows = append(rows, []any{a.ID, a.Name, exportDate})
	}
	if err := writeRows(f, adminsSheet, rows); err != nil {
		return err
	}

	rows = [][]any{{"ID", "Name", "Authorized", "Exported at"}}
	for _, c := range reg.Chats {
		rows = append(rows, []any{c.ID, c.Name, yesNo(c.Authorized), exportDate})
	}
	if err := writeRows(f, chatsSheet, rows); err != nil {
		return err
	}

	if err := f.Write(e.out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to fill %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
