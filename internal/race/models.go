package race

import "time"

type Race struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	DistanceKm float64   `json:"distance_km"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time,omitempty"`
}

// Participant is a roster entry for a race.
type Participant struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	BibNumber string `json:"bib_number"`
}

type TrackPoint struct {
	UserID     string    `json:"user_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Coords is ordered longitude first, matching the live feed.
type Coords [2]float64

func (c Coords) Lon() float64 { return c[0] }
func (c Coords) Lat() float64 { return c[1] }

type LivePosition struct {
	UserID      string    `json:"user_id"`
	Coords      Coords    `json:"coords"`
	HasFix      bool      `json:"has_fix"`
	SpeedKmh    float64   `json:"speed_kmh"`
	DistanceKm  float64   `json:"distance_km"`
	FirstUpdate time.Time `json:"first_update"`
	LastUpdate  time.Time `json:"last_update"`
	Finished    bool      `json:"finished"`
}

type Status string

const (
	StatusFinished     Status = "Finished"
	StatusDidNotJoin   Status = "Did Not Join"
	StatusDisqualified Status = "Disqualified"
	StatusDNS          Status = "DNS"
	StatusDNF          Status = "DNF"
	StatusPending      Status = "Pending"
)

var statuses = map[Status]struct{}{
	StatusFinished:     {},
	StatusDidNotJoin:   {},
	StatusDisqualified: {},
	StatusDNS:          {},
	StatusDNF:          {},
	StatusPending:      {},
}

// Valid reports whether s is one of the known result statuses. Any valid
// status may be set from any other.
func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

type Result struct {
	RaceID       string `json:"race_id"`
	UserID       string `json:"user_id"`
	BibNumber    string `json:"bib_number"`
	FinishTimeMs *int64 `json:"finish_time_ms"`
	Status       Status `json:"status"`
	Position     *int   `json:"position"`
}
