package report

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

// Table renders a Markdown table with columns padded to the display width
// of their widest cell, so it also lines up in a terminal.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = max(3, runewidth.StringWidth(h))
	}

	escaped := make([][]string, len(rows))
	for r, row := range rows {
		escaped[r] = make([]string, len(headers))
		for i := range headers {
			if i < len(row) {
				escaped[r][i] = cellEscaper.Replace(row[i])
			}
			widths[i] = max(widths[i], runewidth.StringWidth(escaped[r][i]))
		}
	}

	var b strings.Builder
	writeRow(&b, headers, widths)

	b.WriteString("|")
	for _, w := range widths {
		b.WriteString(" " + strings.Repeat("-", w) + " |")
	}
	b.WriteString("\n")

	for _, row := range escaped {
		writeRow(&b, row, widths)
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	b.WriteString("|")
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		b.WriteString(" " + runewidth.FillRight(cell, w) + " |")
	}
	b.WriteString("\n")
}
