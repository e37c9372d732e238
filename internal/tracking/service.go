package tracking

import (
	"context"
	"strconv"

	"backend-racehub/internal/errs"
	"backend-racehub/internal/race"
	"backend-racehub/internal/shared/timefmt"
	"backend-racehub/internal/source"
)

const domain = "tracking"

type Service struct {
	src source.Source
}

func NewService(src source.Source) *Service {
	return &Service{src: src}
}

// Certificate is the content printed on a finisher's certificate.
type Certificate struct {
	RaceName        string `json:"race_name"`
	ParticipantName string `json:"participant_name"`
	BibNumber       string `json:"bib_number"`
	Position        string `json:"position"`
	Time            string `json:"time"`
	Pace            string `json:"pace"`
	Date            string `json:"date"`
	Status          string `json:"status"`
}

func (s *Service) Splits(ctx context.Context, raceID, userID string) (PaceSplits, error) {
	points, err := s.src.Tracking(ctx, raceID)
	if err != nil {
		return PaceSplits{}, err
	}
	return ComputePaceAndSplits(source.GroupByUser(points)[userID]), nil
}

func (s *Service) SplitChart(ctx context.Context, raceID, userID string) ([]byte, error) {
	ps, err := s.Splits(ctx, raceID, userID)
	if err != nil {
		return nil, err
	}
	return RenderSplitChart(ps.Splits)
}

func (s *Service) Statistics(ctx context.Context, raceID string) (Statistics, error) {
	results, err := s.src.Results(ctx, raceID)
	if err != nil {
		return Statistics{}, err
	}
	points, err := s.src.Tracking(ctx, raceID)
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(results, source.GroupByUser(points)), nil
}

func (s *Service) Certificate(ctx context.Context, raceID, userID string) (Certificate, error) {
	r, err := s.src.Race(ctx, raceID)
	if err != nil {
		return Certificate{}, err
	}
	results, err := s.src.Results(ctx, raceID)
	if err != nil {
		return Certificate{}, err
	}

	var (
		result race.Result
		found  bool
	)
	for _, res := range results {
		if res.UserID == userID {
			result, found = res, true
			break
		}
	}
	if !found {
		return Certificate{}, errs.NotFound(domain, "no result for user %s in race %s", userID, raceID)
	}

	roster, err := s.src.Roster(ctx, raceID)
	if err != nil {
		return Certificate{}, err
	}
	ps, err := s.Splits(ctx, raceID, userID)
	if err != nil {
		return Certificate{}, err
	}

	cert := Certificate{
		RaceName:  r.Name,
		BibNumber: result.BibNumber,
		Position:  "-",
		Time:      timefmt.NotAvailable,
		Pace:      ps.Pace,
		Status:    string(result.Status),
	}
	for _, p := range roster {
		if p.UserID == userID {
			cert.ParticipantName = p.Name
			if cert.BibNumber == "" {
				cert.BibNumber = p.BibNumber
			}
			break
		}
	}
	if result.Position != nil {
		cert.Position = strconv.Itoa(*result.Position)
	}
	if result.FinishTimeMs != nil {
		cert.Time = timefmt.MsToHMS(*result.FinishTimeMs)
	}
	if !r.StartTime.IsZero() {
		cert.Date = r.StartTime.Format("2 January 2006")
	}
	return cert, nil
}
