package source

import (
	"context"
	"errors"
	"time"

	"backend-racehub/internal/db"
	"backend-racehub/internal/errs"
	"backend-racehub/internal/race"

	"github.com/jackc/pgx/v5"
)

// PostgresSource reads snapshots straight from a replica of the backend's
// database. It never writes.
type PostgresSource struct {
	db db.Querier
}

func NewPostgresSource(q db.Querier) *PostgresSource {
	return &PostgresSource{db: q}
}

func (s *PostgresSource) Race(ctx context.Context, raceID string) (race.Race, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, status, COALESCE(distance_km,0), start_time, end_time
		FROM races WHERE id=$1
	`, raceID)

	var r race.Race
	var endTime *time.Time
	if err := row.Scan(&r.ID, &r.Name, &r.Status, &r.DistanceKm, &r.StartTime, &endTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return race.Race{}, errs.NotFound(domain, "race %s not found", raceID)
		}
		recordOutcome("race", err)
		return race.Race{}, err
	}
	if endTime != nil {
		r.EndTime = *endTime
	}
	recordOutcome("race", nil)
	return r, nil
}

func (s *PostgresSource) Roster(ctx context.Context, raceID string) ([]race.Participant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.user_id, COALESCE(u.name,''), COALESCE(p.bib_number,'')
		FROM race_participants p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.race_id=$1
		ORDER BY p.joined_at
	`, raceID)
	if err != nil {
		recordOutcome("roster", err)
		return nil, err
	}
	defer rows.Close()

	var roster []race.Participant
	for rows.Next() {
		var p race.Participant
		if err := rows.Scan(&p.UserID, &p.Name, &p.BibNumber); err != nil {
			return nil, err
		}
		roster = append(roster, p)
	}
	recordOutcome("roster", rows.Err())
	return roster, rows.Err()
}

func (s *PostgresSource) Results(ctx context.Context, raceID string) ([]race.Result, error) {
	rows, err := s.db.Query(ctx, `
		SELECT race_id, user_id, COALESCE(bib_number,''), finish_time_ms, status, position
		FROM results WHERE race_id=$1
		ORDER BY position NULLS LAST, user_id
	`, raceID)
	if err != nil {
		recordOutcome("results", err)
		return nil, err
	}
	defer rows.Close()

	var results []race.Result
	for rows.Next() {
		var r race.Result
		var status string
		if err := rows.Scan(&r.RaceID, &r.UserID, &r.BibNumber, &r.FinishTimeMs, &status, &r.Position); err != nil {
			return nil, err
		}
		r.Status = race.Status(status)
		results = append(results, r)
	}
	recordOutcome("results", rows.Err())
	return results, rows.Err()
}

func (s *PostgresSource) Tracking(ctx context.Context, raceID string) ([]race.TrackPoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, ST_Y(location::geometry), ST_X(location::geometry), recorded_at
		FROM tracking_points WHERE race_id=$1
		ORDER BY recorded_at
	`, raceID)
	if err != nil {
		recordOutcome("tracking", err)
		return nil, err
	}
	defer rows.Close()

	var points []race.TrackPoint
	for rows.Next() {
		var p race.TrackPoint
		if err := rows.Scan(&p.UserID, &p.Latitude, &p.Longitude, &p.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	recordOutcome("tracking", rows.Err())
	return points, rows.Err()
}
