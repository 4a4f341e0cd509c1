package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// LayoutBreakpoint is a terminal width class.
type LayoutBreakpoint int

const (
	// BreakpointNarrow is under 60 columns, such as a bedside cart display.
	BreakpointNarrow LayoutBreakpoint = 60
	// BreakpointMedium is 60 to 99 columns.
	BreakpointMedium LayoutBreakpoint = 100
	// BreakpointWide is 100 columns and over.
	BreakpointWide LayoutBreakpoint = 140
)

// GetBreakpoint classifies a terminal width.
func GetBreakpoint(width int) LayoutBreakpoint {
	switch {
	case width < int(BreakpointNarrow):
		return BreakpointNarrow
	case width < int(BreakpointMedium):
		return BreakpointMedium
	default:
		return BreakpointWide
	}
}

// Panel renders a bordered dashboard panel with its title set into the top
// border.
func (t *Theme) Panel(title, content string, width int) string {
	rendered := t.Box.Width(max(width-2, 1)).Render(content)
	if title == "" {
		return rendered
	}

	lines := strings.Split(rendered, "\n")
	label := t.Accent.Bold(true).Render(" " + title + " ")
	labelWidth := lipgloss.Width(label)
	top := []rune(lines[0])
	if labelWidth+4 < len(top) {
		lines[0] = string(top[:2]) + label + string(top[2+labelWidth:])
	}
	return strings.Join(lines, "\n")
}

// SideBySide joins two blocks into columns, or stacks them when the pair
// does not fit in totalWidth.
func SideBySide(left, right string, totalWidth, gap int) string {
	if lipgloss.Width(left)+lipgloss.Width(right)+gap > totalWidth {
		return left + "\n\n" + right
	}

	leftLines := strings.Split(left, "\n")
	rightLines := strings.Split(right, "\n")
	column := totalWidth / 2

	rows := make([]string, max(len(leftLines), len(rightLines)))
	for i := range rows {
		var l, r string
		if i < len(leftLines) {
			l = leftLines[i]
		}
		if i < len(rightLines) {
			r = rightLines[i]
		}
		rows[i] = l + strings.Repeat(" ", max(column-lipgloss.Width(l), 1)) + r
	}
	return strings.Join(rows, "\n")
}

// PadRight pads s with spaces to width.
func PadRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// PadLeft right-aligns s in width.
func PadLeft(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return strings.Repeat(" ", width-w) + s
	}
	return s
}

// ContentWidth clamps the terminal width to [minWidth, maxWidth]. A zero
// maxWidth means no cap.
func ContentWidth(termWidth, minWidth, maxWidth int) int {
	w := max(termWidth, minWidth)
	if maxWidth > 0 {
		w = min(w, maxWidth)
	}
	return w
}

// ContentHeight is the height left after the header, alert bar and footer,
// never less than five lines.
func ContentHeight(termHeight, chromeLines int) int {
	return max(termHeight-chromeLines, 5)
}
