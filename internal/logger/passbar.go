package logger

import "strings"

// renderPassBar draws rate (0..1) as a fixed-width ASCII bar, e.g. "[======    ]".
func renderPassBar(rate float64, width int) string {
	if width < 1 {
		width = 10
	}
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	filled := int(rate*float64(width) + 1e-9)

	var sb strings.Builder
	sb.Grow(width + 2)
	sb.WriteByte('[')
	sb.WriteString(strings.Repeat("=", filled))
	sb.WriteString(strings.Repeat(" ", width-filled))
	sb.WriteByte(']')
	return sb.String()
}
