package ui

import (
	"fmt"

	"github.com/mattn/go-runewidth"
)

// truncate trims s to a display width, cell-aware so wide runes in process
// names don't break column alignment.
func truncate(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth < 4 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// pad right-pads s to a display width.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func formatMemory(mb float64) string {
	if mb >= 1024 {
		return fmt.Sprintf("%.1f GB", mb/1024)
	}
	return fmt.Sprintf("%.1f MB", mb)
}
