// Package display renders human-facing output: the banner, size and rate
// formatting for summaries, and the optional live progress bar.
package display

import (
	"fmt"
	"time"
)

// FormatBytes returns a human-readable size (B, KiB, MiB, GiB, TiB, PiB).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	if exp >= len(suffixes) {
		exp = len(suffixes) - 1
		div = 1
		for i := 0; i <= exp; i++ {
			div *= unit
		}
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}

// FormatRate returns a throughput label such as "12.5 files/s".
func FormatRate(n int, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f files/s", float64(n)/elapsed.Seconds())
}

// FormatPercent returns part/total as a whole percentage ("0%" when total is 0).
func FormatPercent(part, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", part*100/total)
}
