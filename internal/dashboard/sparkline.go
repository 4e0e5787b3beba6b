package dashboard

import (
	"strings"

	"github.com/srg/altimon/internal/history"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the newest width points as block characters scaled
// between the window's minimum and maximum. A flat series renders at the
// lowest level.
func Sparkline(points []history.Point, width int) string {
	if width <= 0 || len(points) == 0 {
		return ""
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}
	lo, hi, _ := history.Range(points)
	span := hi - lo

	var b strings.Builder
	top := len(sparkBlocks) - 1
	for _, p := range points {
		idx := 0
		if span > 0 {
			idx = int((p.Altitude - lo) / span * float64(top))
		}
		if idx < 0 {
			idx = 0
		}
		if idx > top {
			idx = top
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
