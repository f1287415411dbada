package humanize

import (
	"fmt"
	"strconv"
)

// Count renders a count compactly: 950 -> "950", 1200 -> "1.2K",
// 1500000 -> "1.5M", 2300000000 -> "2.3B".
func Count(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}
