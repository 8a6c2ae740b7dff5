package output

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jmylchreest/bidharvest/pkg/bid"
)

const titleWidth = 60

// TableWriter renders bids as a text table on Close.
type TableWriter struct {
	out   io.Writer
	style table.Style
	bids  []bid.ExtractedBid
}

// NewTableWriter creates a table writer using the named style.
func NewTableWriter(w io.Writer, style string) *TableWriter {
	return &TableWriter{out: w, style: tableStyle(style)}
}

func tableStyle(name string) table.Style {
	switch name {
	case "rounded":
		return table.StyleRounded
	case "bold":
		return table.StyleBold
	case "double":
		return table.StyleDouble
	case "ascii":
		return table.StyleDefault
	}
	return table.StyleLight
}

func (w *TableWriter) Write(b bid.ExtractedBid) error {
	w.bids = append(w.bids, b)
	return nil
}

func (w *TableWriter) WriteAll(bids []bid.ExtractedBid) error {
	w.bids = append(w.bids, bids...)
	return nil
}

func (w *TableWriter) Close() error {
	t := table.NewWriter()
	t.SetOutputMirror(w.out)
	t.SetStyle(w.style)
	t.AppendHeader(table.Row{"#", "Title", "ID", "Posted", "Due", "Amount", "Docs"})
	for i, b := range w.bids {
		t.AppendRow(table.Row{
			i + 1,
			b.Title,
			b.ExternalID,
			day(b.PostedDate),
			day(b.DueDate),
			b.Amount,
			len(b.Documents),
		})
	}
	t.AppendFooter(table.Row{"", "Total", len(w.bids)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: titleWidth, WidthMaxEnforcer: text.WrapSoft},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()
	return nil
}

func day(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}
