package tracking

import (
	"sort"

	"backend-racehub/internal/race"
	"backend-racehub/internal/shared/geo"
	"backend-racehub/internal/shared/timefmt"
)

// thresholdEpsilonKm absorbs float noise when a track lands exactly on a
// kilometre boundary.
const thresholdEpsilonKm = 1e-9

type PaceSplits struct {
	Pace            string   `json:"pace"`
	Splits          []string `json:"splits"`
	TotalDistanceKm float64  `json:"total_distance_km"`
	ElapsedMs       int64    `json:"elapsed_ms"`
}

// ComputePaceAndSplits replays one participant's track in time order. A split
// is emitted each time the running distance crosses the next whole kilometre;
// a trailing partial kilometre produces none.
func ComputePaceAndSplits(points []race.TrackPoint) PaceSplits {
	result := PaceSplits{Pace: timefmt.NoPace, Splits: []string{}}
	if len(points) < 2 {
		return result
	}

	sorted := make([]race.TrackPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})

	total := 0.0
	threshold := 1.0
	windowStart := sorted[0].RecordedAt
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		total += geo.DistanceKm(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
		if total+thresholdEpsilonKm >= threshold {
			result.Splits = append(result.Splits, timefmt.MsToHMS(cur.RecordedAt.Sub(windowStart).Milliseconds()))
			threshold++
			windowStart = cur.RecordedAt
		}
	}

	elapsed := sorted[len(sorted)-1].RecordedAt.Sub(sorted[0].RecordedAt)
	result.TotalDistanceKm = total
	result.ElapsedMs = elapsed.Milliseconds()
	if total > 0 {
		result.Pace = timefmt.FormatPace(elapsed.Seconds() / total)
	}
	return result
}
