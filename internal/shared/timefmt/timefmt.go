// Package timefmt converts between durations and the clock strings shown on
// leaderboards, result tables and certificates.
package timefmt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// NoPace is reported when no distance has been covered.
	NoPace = "–"
	// ZeroDuration stands in for empty or degenerate durations.
	ZeroDuration = "00:00:00"
	// NotAvailable is the alternative sentinel some views use for missing times.
	NotAvailable = "N/A"
)

// maxHours keeps HMSToMs results inside int64 milliseconds.
const maxHours = math.MaxInt64/3_600_000 - 1

// MsToHMS formats milliseconds as HH:MM:SS, flooring to whole seconds.
// Hours are not wrapped at 24.
func MsToHMS(ms int64) string {
	if ms < 0 {
		return ZeroDuration
	}
	return FormatSeconds(ms / 1000)
}

// FormatSeconds formats whole seconds as HH:MM:SS.
func FormatSeconds(sec int64) string {
	if sec < 0 {
		return ZeroDuration
	}
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// HMSToMs parses "H:M:S", "M:S" or "S". Minutes and seconds must be below 60,
// so "1:70:00" and "75" are both rejected.
func HMSToMs(value string) (int64, bool) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, false
	}

	fields := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		fields[i] = n
	}

	var h, m, s int64
	switch len(fields) {
	case 3:
		h, m, s = fields[0], fields[1], fields[2]
	case 2:
		m, s = fields[0], fields[1]
	case 1:
		s = fields[0]
	}
	if m >= 60 || s >= 60 || h > maxHours {
		return 0, false
	}
	return (h*3600 + m*60 + s) * 1000, true
}

// FormatPace renders seconds per kilometre as M:SS. Values outside int64
// seconds have no pace.
func FormatPace(secPerKm float64) string {
	if math.IsNaN(secPerKm) || math.IsInf(secPerKm, 0) || secPerKm < 0 {
		return NoPace
	}
	rounded := math.Round(secPerKm)
	if rounded >= math.MaxInt64 {
		return NoPace
	}
	total := int64(rounded)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// ParsePace reads an M:SS pace back into seconds per kilometre.
func ParsePace(pace string) (float64, bool) {
	parts := strings.Split(pace, ":")
	if len(parts) != 2 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[0])
	if err != nil || m < 0 {
		return 0, false
	}
	s, err := strconv.Atoi(parts[1])
	if err != nil || s < 0 || s >= 60 {
		return 0, false
	}
	return float64(m*60 + s), true
}
