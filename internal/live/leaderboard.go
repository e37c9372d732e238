package live

import (
	"sort"
	"time"

	"backend-racehub/internal/race"
	"backend-racehub/internal/shared/timefmt"
)

const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusOffline  = "offline"
)

type Standing struct {
	Position   int          `json:"position"`
	UserID     string       `json:"user_id"`
	Name       string       `json:"name"`
	BibNumber  string       `json:"bib_number"`
	DistanceKm float64      `json:"distance_km"`
	Pace       string       `json:"pace"`
	SpeedKmh   float64      `json:"speed_kmh"`
	Status     string       `json:"status"`
	Coords     *race.Coords `json:"coords,omitempty"`
	LastUpdate *time.Time   `json:"last_update,omitempty"`
}

// BuildLeaderboard ranks every roster participant by live distance. Ties keep
// roster order, so the same inputs always produce the same ranking.
func BuildLeaderboard(roster []race.Participant, positions map[string]race.LivePosition) []Standing {
	standings := make([]Standing, 0, len(roster))
	for _, p := range roster {
		s := Standing{
			UserID:    p.UserID,
			Name:      p.Name,
			BibNumber: p.BibNumber,
			Pace:      timefmt.NoPace,
			Status:    StatusOffline,
		}
		if pos, ok := positions[p.UserID]; ok {
			s.DistanceKm = pos.DistanceKm
			s.SpeedKmh = pos.SpeedKmh
			s.Pace = livePace(pos)
			s.Status = StatusRunning
			if pos.Finished {
				s.Status = StatusFinished
			}
			if pos.HasFix {
				coords := pos.Coords
				s.Coords = &coords
			}
			if !pos.LastUpdate.IsZero() {
				last := pos.LastUpdate
				s.LastUpdate = &last
			}
		}
		standings = append(standings, s)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].DistanceKm > standings[j].DistanceKm
	})
	for i := range standings {
		standings[i].Position = i + 1
	}
	return standings
}

func livePace(pos race.LivePosition) string {
	if pos.DistanceKm <= 0 {
		return timefmt.NoPace
	}
	elapsed := pos.LastUpdate.Sub(pos.FirstUpdate)
	if elapsed <= 0 {
		return timefmt.NoPace
	}
	return timefmt.FormatPace(elapsed.Seconds() / pos.DistanceKm)
}
