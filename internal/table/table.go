// Package table renders the plain column tables printed by the CLI.
package table

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Style is the look of a table
type Style struct {
	Header    lipgloss.Style
	Cell      lipgloss.Style
	Separator string
}

// PlainStyle is a table with no colors
func PlainStyle() Style {
	return Style{
		Header:    lipgloss.NewStyle().Bold(true).PaddingLeft(1).PaddingRight(1),
		Cell:      lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1),
		Separator: "|",
	}
}

// ColorStyle is a table with a highlighted header
func ColorStyle() Style {
	s := PlainStyle()
	s.Header = s.Header.
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4"))
	return s
}

// Table is a header row and data rows
type Table struct {
	headers []string
	rows    [][]string
	style   Style
	widths  []int
}

// New returns an empty table with the plain style
func New(headers ...string) *Table {
	return &Table{headers: headers, style: PlainStyle()}
}

// SetStyle changes the table style
func (t *Table) SetStyle(s Style) {
	t.style = s
}

// Append adds a row
func (t *Table) Append(row ...string) {
	t.rows = append(t.rows, row)
}

// Len is the number of data rows
func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) columnWidths() {
	t.widths = make([]int, len(t.headers))
	for i, h := range t.headers {
		t.widths[i] = ansi.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(t.widths) && ansi.StringWidth(cell) > t.widths[i] {
				t.widths[i] = ansi.StringWidth(cell)
			}
		}
	}
	// padding
	for i := range t.widths {
		t.widths[i] += 2
	}
}

func (t *Table) renderRow(row []string, style lipgloss.Style) string {
	cells := make([]string, 0, len(t.widths))
	for i := range t.widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		cells = append(cells, style.Width(t.widths[i]).Render(cell))
	}
	return strings.Join(cells, t.style.Separator)
}

// Render returns the table as text
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}
	t.columnWidths()

	var sb strings.Builder
	sb.WriteString(t.renderRow(t.headers, t.style.Header))
	sb.WriteString("\n")
	seps := make([]string, len(t.widths))
	for i, w := range t.widths {
		seps[i] = strings.Repeat("-", w)
	}
	sb.WriteString(strings.Join(seps, "+"))
	sb.WriteString("\n")
	for _, row := range t.rows {
		sb.WriteString(t.renderRow(row, t.style.Cell))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
