package service

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// resourceSample asks ps for the resident set size and CPU share of a pid.
// Works on both Linux and macOS; anything unparsable degrades to "n/a".
func resourceSample(pid int) (memory, cpu string) {
	memory, cpu = "n/a", "n/a"
	if pid <= 0 {
		return
	}

	out, err := exec.Command("ps", "-o", "rss=,%cpu=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return
	}

	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return
	}

	if rssKB, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
		memory = formatBytes(rssKB * 1024)
	}
	if pct, err := strconv.ParseFloat(fields[1], 64); err == nil {
		cpu = fmt.Sprintf("%.1f%%", pct)
	}
	return
}

func formatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
