package tui

import (
	"fmt"
	"strings"
)

// clockPlaceholder is shown instead of the session clock while not connected.
const clockPlaceholder = "--:--:--"

// FormatClock renders whole seconds as HH:MM:SS. Hours grow past 99.
func FormatClock(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// FormatRate renders a throughput figure with one decimal.
func FormatRate(mbps float64) string {
	return fmt.Sprintf("%.1f Mb/s", mbps)
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// sparkline draws the last width values scaled to ceiling. Missing history
// on the left is padded with spaces.
func sparkline(values []float64, ceiling float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width-len(values)))
	for _, v := range values {
		idx := 0
		if ceiling > 0 {
			idx = int(v / ceiling * float64(len(sparkBlocks)-1))
		}
		idx = clamp(idx, 0, len(sparkBlocks)-1)
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-1]) + "~"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
