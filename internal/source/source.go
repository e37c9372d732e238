// Package source reads race snapshots owned by the platform backend. Nothing
// here writes to the backend's store except PublishResults, which goes through
// the backend's own API.
package source

import (
	"context"

	"backend-racehub/internal/race"
)

type Source interface {
	Race(ctx context.Context, raceID string) (race.Race, error)
	Roster(ctx context.Context, raceID string) ([]race.Participant, error)
	Results(ctx context.Context, raceID string) ([]race.Result, error)
	Tracking(ctx context.Context, raceID string) ([]race.TrackPoint, error)
}

type Publisher interface {
	PublishResults(ctx context.Context, raceID string, results []race.Result) error
}

// GroupByUser splits a race's tracking points per participant, keeping the
// input order within each group.
func GroupByUser(points []race.TrackPoint) map[string][]race.TrackPoint {
	grouped := make(map[string][]race.TrackPoint)
	for _, p := range points {
		grouped[p.UserID] = append(grouped[p.UserID], p)
	}
	return grouped
}
