// Package plain renders command results as aligned, human-readable text:
// used by run when --plain is passed, and by the other commands whenever
// --json-output is not. Grounded on
// printAlignedRows' column-alignment idiom (paas_doctor_cmd.go), generalized
// from a fixed two-space gutter to rune-width-aware padding via
// go-runewidth, since that version assumed single-width runes.
package plain

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Table writes headers and rows as a column-aligned table, padding each
// column to its widest cell (by display width, not byte length).
func Table(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				continue
			}
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	writeRow(w, headers, widths)
	for _, row := range rows {
		writeRow(w, row, widths)
	}
}

func writeRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i < len(widths) {
			parts[i] = runewidth.FillRight(cell, widths[i])
		} else {
			parts[i] = cell
		}
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

// KV writes an ordered list of label/value pairs, one per line, labels
// right-padded to the widest label.
func KV(w io.Writer, pairs [][2]string) {
	widest := 0
	for _, p := range pairs {
		if w := runewidth.StringWidth(p[0]); w > widest {
			widest = w
		}
	}
	for _, p := range pairs {
		fmt.Fprintf(w, "%s  %s\n", runewidth.FillRight(p[0]+":", widest+1), p[1])
	}
}
