package tracking

import (
	"math"

	"backend-racehub/internal/race"
	"backend-racehub/internal/shared/timefmt"
)

type Statistics struct {
	AverageTime       string  `json:"average_time"`
	FastestTime       string  `json:"fastest_time"`
	AveragePace       string  `json:"average_pace"`
	FinishRatePercent float64 `json:"finish_rate_percent"`
	Total             int     `json:"total"`
	Finished          int     `json:"finished"`
}

// ComputeStatistics summarises a race's result set. tracks is keyed by user id
// and feeds the average pace; finishers without a usable track are skipped.
func ComputeStatistics(results []race.Result, tracks map[string][]race.TrackPoint) Statistics {
	stats := Statistics{
		AverageTime: timefmt.ZeroDuration,
		FastestTime: timefmt.ZeroDuration,
		AveragePace: timefmt.NoPace,
		Total:       len(results),
	}

	var (
		sumMs     int64
		fastestMs int64 = -1
		timed     int
		paceSum   float64
		paced     int
	)
	for _, r := range results {
		if r.Status != race.StatusFinished {
			continue
		}
		stats.Finished++

		if r.FinishTimeMs != nil {
			ms := *r.FinishTimeMs
			sumMs += ms
			timed++
			if fastestMs < 0 || ms < fastestMs {
				fastestMs = ms
			}
		}

		// averaged from the formatted M:SS pace, not raw seconds
		pace := ComputePaceAndSplits(tracks[r.UserID]).Pace
		if sec, ok := timefmt.ParsePace(pace); ok {
			paceSum += sec
			paced++
		}
	}

	if timed > 0 {
		stats.AverageTime = timefmt.FormatSeconds(sumMs / int64(timed) / 1000)
		stats.FastestTime = timefmt.MsToHMS(fastestMs)
	}
	if paced > 0 {
		stats.AveragePace = timefmt.FormatPace(paceSum / float64(paced))
	}
	if stats.Total > 0 {
		stats.FinishRatePercent = math.Round(1000*float64(stats.Finished)/float64(stats.Total)) / 10
	}
	return stats
}
