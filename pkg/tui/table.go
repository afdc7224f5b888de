package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/routelens/routelens/pkg/stock"
)

var classificationStyles = map[stock.Classification]lipgloss.Style{
	stock.BoldGreen:   lipgloss.NewStyle().Foreground(success).Bold(true),
	stock.Green:       lipgloss.NewStyle().Foreground(success),
	stock.Red:         lipgloss.NewStyle().Foreground(accent),
	stock.Unavailable: lipgloss.NewStyle().Foreground(muted).Strikethrough(true),
}

var outdatedStyle = lipgloss.NewStyle().Foreground(muted).Italic(true)

// CellText is the plain text of a cell: stock, in-flight deltas and, for
// stale cells, the distance to the region's latest iteration.
func CellText(c stock.Cell) string {
	if !c.Present || c.Data == nil {
		return ""
	}
	text := fmt.Sprintf("%d", c.Data.Stock)
	if c.FlightText != "" {
		text += " " + c.FlightText
	}
	if c.Outdated && c.Delta != "" {
		text += " (" + c.Delta + ")"
	}
	return text
}

// RenderStock renders view as a table, one row per good and one column per
// area. Cells are coloured by classification.
func RenderStock(view *stock.View) string {
	header := []string{"Good", "Reasons"}
	for _, col := range view.Columns {
		header = append(header, col.Area+" ("+col.Region+")")
	}

	cells := make([][]string, len(view.Rows))
	for i, row := range view.Rows {
		line := []string{row.Good, row.ReasonCodes}
		for _, c := range row.Cells {
			line = append(line, CellText(c))
		}
		cells[i] = line
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, line := range cells {
		for i, s := range line {
			widths[i] = max(widths[i], lipgloss.Width(s))
		}
	}

	var b strings.Builder
	for i, h := range header {
		b.WriteString(titleStyle.Render(pad(h, widths[i])))
		b.WriteString("  ")
	}
	b.WriteString("\n")
	for i := range header {
		b.WriteString(mutedStyle.Render(strings.Repeat("─", widths[i])))
		b.WriteString("  ")
	}
	b.WriteString("\n")

	for r, row := range view.Rows {
		good := pad(row.Good, widths[0])
		if row.Unavailable {
			good = classificationStyles[stock.Unavailable].Render(good)
		}
		b.WriteString(good + "  ")
		b.WriteString(mutedStyle.Render(pad(row.ReasonCodes, widths[1])) + "  ")
		for i, c := range row.Cells {
			text := pad(cells[r][i+2], widths[i+2])
			if c.Present {
				style := classificationStyles[c.Classification]
				if c.Outdated {
					style = outdatedStyle
				}
				text = style.Render(text)
			}
			b.WriteString(text + "  ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderLegend lists the classifications with their styles and the latest
// iteration of each region shown in view.
func RenderLegend(view *stock.View, latest map[string]int64, now time.Time) string {
	var parts []string
	for _, c := range stock.Classifications() {
		parts = append(parts, classificationStyles[c].Render(c.String()))
	}
	out := mutedStyle.Render("legend: ") + strings.Join(parts, " ")

	seen := make(map[string]bool)
	var regions []string
	for _, col := range view.Columns {
		if seen[col.Region] {
			continue
		}
		seen[col.Region] = true
		if it, ok := latest[col.Region]; ok {
			regions = append(regions, fmt.Sprintf("%s %s", col.RegionName, stock.FormatIteration(it, true, now)))
		}
	}
	if len(regions) > 0 {
		out += "\n" + mutedStyle.Render("latest: "+strings.Join(regions, ", "))
	}
	return out
}
