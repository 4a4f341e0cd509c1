// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column.
//
// Width is the minimum width. Weight shares out any spare width in
// RenderResponsive, and columns with the lowest Priority are dropped first
// when the terminal is too narrow.
type Column struct {
	Title    string
	Width    int
	Align    lipgloss.Position
	Weight   float64
	Priority int
}

// Table is a simple table component.
type Table struct {
	columns     []Column
	rows        [][]string
	selected    int
	offset      int
	visibleRows int
	focused     bool

	// Styles
	headerStyle   lipgloss.Style
	rowStyle      lipgloss.Style
	rowAltStyle   lipgloss.Style
	selectedStyle lipgloss.Style
	borderStyle   lipgloss.Style

	// Pagination
	currentPage int
	totalPages  int
	totalRows   int
	pageSize    int
}

// NewTable creates a new table with the given columns.
func NewTable(columns []Column) *Table {
	return &Table{
		columns:       columns,
		rows:          [][]string{},
		selected:      0,
		offset:        0,
		visibleRows:   10,
		headerStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E0303A")),
		rowStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2")),
		rowAltStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0")),
		selectedStyle: lipgloss.NewStyle().Background(lipgloss.Color("#E0303A")).Foreground(lipgloss.Color("#000000")),
		borderStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#5A5A5A")),
		pageSize:      25,
	}
}

// SetRows sets the table data.
func (t *Table) SetRows(rows [][]string) {
	t.rows = rows
}

// SetPagination sets pagination info.
func (t *Table) SetPagination(page, totalPages, totalRows int) {
	t.currentPage = page
	t.totalPages = totalPages
	t.totalRows = totalRows
}

// SetVisibleRows sets the number of visible rows.
func (t *Table) SetVisibleRows(n int) {
	t.visibleRows = n
}

// SetStyles sets the table styles.
func (t *Table) SetStyles(header, row, rowAlt, selected, border lipgloss.Style) {
	t.headerStyle = header
	t.rowStyle = row
	t.rowAltStyle = rowAlt
	t.selectedStyle = selected
	t.borderStyle = border
}

// Focus sets the table focus state.
func (t *Table) Focus(focused bool) {
	t.focused = focused
}

// Selected returns the currently selected row index.
func (t *Table) Selected() int {
	return t.selected
}

// SelectedRow returns the currently selected row data.
func (t *Table) SelectedRow() []string {
	if t.selected >= 0 && t.selected < len(t.rows) {
		return t.rows[t.selected]
	}
	return nil
}

// MoveUp moves the selection up.
func (t *Table) MoveUp() {
	if t.selected > 0 {
		t.selected--
		if t.selected < t.offset {
			t.offset = t.selected
		}
	}
}

// MoveDown moves the selection down.
func (t *Table) MoveDown() {
	if t.selected < len(t.rows)-1 {
		t.selected++
		if t.selected >= t.offset+t.visibleRows {
			t.offset = t.selected - t.visibleRows + 1
		}
	}
}

// PageUp moves up one page.
func (t *Table) PageUp() {
	t.selected -= t.visibleRows
	if t.selected < 0 {
		t.selected = 0
	}
	t.offset = t.selected
}

// PageDown moves down one page.
func (t *Table) PageDown() {
	t.selected += t.visibleRows
	if t.selected >= len(t.rows) {
		t.selected = len(t.rows) - 1
	}
	if t.selected < 0 {
		t.selected = 0
	}
	t.offset = t.selected - t.visibleRows + 1
	if t.offset < 0 {
		t.offset = 0
	}
}

// GoToTop goes to the first row.
func (t *Table) GoToTop() {
	t.selected = 0
	t.offset = 0
}

// GoToBottom goes to the last row.
func (t *Table) GoToBottom() {
	if len(t.rows) > 0 {
		t.selected = len(t.rows) - 1
		t.offset = t.selected - t.visibleRows + 1
		if t.offset < 0 {
			t.offset = 0
		}
	}
}

// Render renders the table at the columns' declared widths.
func (t *Table) Render() string {
	widths := make([]int, len(t.columns))
	for i, col := range t.columns {
		widths[i] = col.Width
	}
	return t.render(widths)
}

// RenderResponsive renders the table to fit width. A width of zero or less
// renders at declared widths.
func (t *Table) RenderResponsive(width int) string {
	if width <= 0 {
		return t.Render()
	}
	return t.render(t.computeWidths(width))
}

// computeWidths drops the lowest priority columns until the rest fit, then
// gives the leftover width to weighted columns. Dropped columns get 0.
func (t *Table) computeWidths(available int) []int {
	widths := make([]int, len(t.columns))
	visible := make([]bool, len(t.columns))
	used := 1 // leading space
	for i, col := range t.columns {
		widths[i] = col.Width
		visible[i] = true
		used += col.Width + 3
	}

	for used > available {
		drop := -1
		for i, col := range t.columns {
			if !visible[i] {
				continue
			}
			if drop < 0 || col.Priority < t.columns[drop].Priority {
				drop = i
			}
		}
		if drop < 0 || countTrue(visible) == 1 {
			break
		}
		visible[drop] = false
		used -= widths[drop] + 3
		widths[drop] = 0
	}

	spare := available - used
	totalWeight := 0.0
	for i, col := range t.columns {
		if visible[i] {
			totalWeight += col.Weight
		}
	}
	if spare > 0 && totalWeight > 0 {
		for i, col := range t.columns {
			if visible[i] && col.Weight > 0 {
				widths[i] += int(float64(spare) * col.Weight / totalWeight)
			}
		}
	}
	return widths
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

func (t *Table) render(widths []int) string {
	var b strings.Builder

	totalWidth := 0
	for _, w := range widths {
		if w > 0 {
			totalWidth += w + 3 // padding and separator
		}
	}

	b.WriteString(t.renderRow(t.getHeaders(), widths, t.headerStyle))
	b.WriteString("\n")

	b.WriteString(t.borderStyle.Render(strings.Repeat("-", totalWidth)))
	b.WriteString("\n")

	endIdx := t.offset + t.visibleRows
	if endIdx > len(t.rows) {
		endIdx = len(t.rows)
	}

	for i := t.offset; i < endIdx; i++ {
		isSelected := i == t.selected && t.focused
		isAlt := (i-t.offset)%2 == 1

		var style lipgloss.Style
		if isSelected {
			style = t.selectedStyle
		} else if isAlt {
			style = t.rowAltStyle
		} else {
			style = t.rowStyle
		}

		b.WriteString(t.renderRow(t.rows[i], widths, style))
		b.WriteString("\n")
	}

	if t.totalPages > 0 {
		b.WriteString(t.borderStyle.Render(strings.Repeat("-", totalWidth)))
		b.WriteString("\n")
		b.WriteString(t.borderStyle.Render(fmt.Sprintf("Page %d/%d | %d total", t.currentPage, t.totalPages, t.totalRows)))
	}

	return b.String()
}

func (t *Table) getHeaders() []string {
	headers := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = col.Title
	}
	return headers
}

func (t *Table) renderRow(cells []string, widths []int, style lipgloss.Style) string {
	var parts []string

	for i, col := range t.columns {
		width := widths[i]
		if width <= 0 {
			continue
		}
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}

		if len(cell) > width {
			cell = cell[:width-1] + "…"
		}

		switch col.Align {
		case lipgloss.Right:
			cell = fmt.Sprintf("%*s", width, cell)
		case lipgloss.Center:
			padding := width - len(cell)
			leftPad := padding / 2
			rightPad := padding - leftPad
			cell = strings.Repeat(" ", leftPad) + cell + strings.Repeat(" ", rightPad)
		default: // Left
			cell = fmt.Sprintf("%-*s", width, cell)
		}

		parts = append(parts, style.Render(cell))
	}

	return " " + strings.Join(parts, " | ") + " "
}

// Empty returns true if the table has no rows.
func (t *Table) Empty() bool {
	return len(t.rows) == 0
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	return len(t.rows)
}
