package exporter

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"

	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/ports"
)

// maxNameWidth — ширина колонки имени в терминальных ячейках.
const maxNameWidth = 40

// ConsoleExporter реализует интерфейс Exporter для вывода реестра в консоль.
type ConsoleExporter struct {
	out io.Writer
}

// NewConsoleExporter создает новый экземпляр ConsoleExporter.
func NewConsoleExporter(out io.Writer) ports.Exporter {
	return &ConsoleExporter{out: out}
}

// Export выводит админов и чаты реестра двумя таблицами.
func (e *ConsoleExporter) Export(reg domain.Registry) error {
	fmt.Fprintf(e.out, "--- Admins (%d) ---\n", len(reg.Admins))
	if len(reg.Admins) == 0 {
		fmt.Fprintln(e.out, "No admins.")
	} else {
		table := newTable(e.out, "ID", "Name")
		for _, a := range reg.Admins {
			table.Append([]string{a.ID, truncate(a.Name)})
		}
		table.Render()
	}

	authorized := 0
	for _, c := range reg.Chats {
		if c.Authorized {
			authorized++
		}
	}

	fmt.Fprintf(e.out, "\n--- Chats (%d, authorized %d) ---\n", len(reg.Chats), authorized)
	if len(reg.Chats) == 0 {
		fmt.Fprintln(e.out, "No chats.")
		return nil
	}
	table := newTable(e.out, "#", "ID", "Name", "Authorized")
	for i, c := range reg.Chats {
		table.Append([]string{strconv.Itoa(i + 1), c.ID, truncate(c.Name), yesNo(c.Authorized)})
	}
	table.Render()
	return nil
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// truncate обрезает имя по ширине отображения, а не по числу байт.
func truncate(s string) string {
	return runewidth.Truncate(s, maxNameWidth, "…")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
