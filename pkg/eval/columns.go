package eval

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const defaultColumns = 80

// Lays out items in columns, filling each column before the next, within
// width terminal cells.
func columns(items []string, width int) []string {
	if len(items) == 0 {
		return nil
	}
	widest := 0
	for _, item := range items {
		widest = max(widest, runewidth.StringWidth(stripAnsi(item)))
	}
	colWidth := widest + 2
	ncols := max(1, width/colWidth)
	nrows := (len(items) + ncols - 1) / ncols

	lines := make([]string, nrows)
	for r := range nrows {
		var sb strings.Builder
		for c := range ncols {
			i := c*nrows + r
			if i >= len(items) {
				break
			}
			sb.WriteString(items[i])
			if pad := colWidth - runewidth.StringWidth(stripAnsi(items[i])); c < ncols-1 && i+nrows < len(items) {
				sb.WriteString(strings.Repeat(" ", pad))
			}
		}
		lines[r] = sb.String()
	}
	return lines
}

// Width of the terminal, from the COLUMNS variable.
func (api *API) termWidth() int {
	if n, ok := ToNumber(api.sess.GetVar(api.meta, "COLUMNS")); ok && n > 0 {
		return int(n)
	}
	return defaultColumns
}
