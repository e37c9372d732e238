package results

import (
	"context"
	"sync"
	"time"

	"backend-racehub/internal/errs"
	"backend-racehub/internal/logger"
	"backend-racehub/internal/race"
	"backend-racehub/internal/shared/timefmt"
	"backend-racehub/internal/source"
	"backend-racehub/internal/tracking"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	src    source.Source
	pub    source.Publisher
	drafts DraftStore
	log    *logger.Logger
	now    func() time.Time

	// serialises load-edit-save cycles on this instance
	mu sync.Mutex
}

func NewService(src source.Source, pub source.Publisher, drafts DraftStore, log *logger.Logger) *Service {
	return &Service{
		src:    src,
		pub:    pub,
		drafts: drafts,
		log:    log.WithComponent("results"),
		now:    time.Now,
	}
}

// CreateDraft snapshots the race's current results into a new draft.
func (s *Service) CreateDraft(ctx context.Context, raceID string) (Draft, error) {
	rows, err := s.src.Results(ctx, raceID)
	if err != nil {
		return Draft{}, err
	}
	now := s.now()
	d := Draft{
		ID:        uuid.NewString(),
		RaceID:    raceID,
		Rows:      NewTable(rows).Rows(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.drafts.Save(ctx, d); err != nil {
		return Draft{}, err
	}
	s.log.Info("results draft created", zap.String("race_id", raceID), zap.String("draft_id", d.ID), zap.Int("rows", len(rows)))
	return d, nil
}

func (s *Service) Draft(ctx context.Context, id string) (Draft, error) {
	return s.drafts.Load(ctx, id)
}

func (s *Service) Move(ctx context.Context, id string, from, to int) (Draft, error) {
	return s.edit(ctx, id, func(t *Table) (bool, error) {
		return t.MoveRow(from, to), nil
	})
}

func (s *Service) SetStatus(ctx context.Context, id, userID string, status race.Status) (Draft, error) {
	return s.edit(ctx, id, func(t *Table) (bool, error) {
		return true, t.SetStatus(userID, status)
	})
}

// SetTime parses an "HH:MM:SS" finish time. A value that does not parse is
// rejected before the draft is touched.
func (s *Service) SetTime(ctx context.Context, id, userID, hms string) (Draft, error) {
	ms, ok := timefmt.HMSToMs(hms)
	if !ok {
		return Draft{}, errs.InvalidInput(domain, "invalid finish time %q", hms)
	}
	return s.edit(ctx, id, func(t *Table) (bool, error) {
		return true, t.SetFinishTime(userID, ms)
	})
}

func (s *Service) SetBib(ctx context.Context, id, userID, bib string) (Draft, error) {
	return s.edit(ctx, id, func(t *Table) (bool, error) {
		return true, t.SetBib(userID, bib)
	})
}

// edit applies fn to the draft's table and saves it when fn reports a change.
func (s *Service) edit(ctx context.Context, id string, fn func(*Table) (bool, error)) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.drafts.Load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	t := NewTable(d.Rows)
	changed, err := fn(t)
	if err != nil {
		return Draft{}, err
	}
	if !changed {
		return d, nil
	}
	d.Rows = t.Rows()
	d.UpdatedAt = s.now()
	if err := s.drafts.Save(ctx, d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Publish sends the draft's rows to the backend and discards the draft.
func (s *Service) Publish(ctx context.Context, id string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.drafts.Load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if err := s.pub.PublishResults(ctx, d.RaceID, d.Rows); err != nil {
		return Draft{}, err
	}
	if err := s.drafts.Delete(ctx, id); err != nil {
		s.log.Warn("published draft not deleted", zap.String("draft_id", id), zap.Error(err))
	}
	s.log.WithRace(d.RaceID).Info("results published", zap.String("draft_id", id))
	return d, nil
}

// ExportRows builds export rows for a race, from a draft when draftID is set
// and from the backend's results otherwise.
func (s *Service) ExportRows(ctx context.Context, raceID, draftID string) (race.Race, []ExportRow, error) {
	r, err := s.src.Race(ctx, raceID)
	if err != nil {
		return race.Race{}, nil, err
	}

	var rows []race.Result
	if draftID != "" {
		d, err := s.drafts.Load(ctx, draftID)
		if err != nil {
			return race.Race{}, nil, err
		}
		if d.RaceID != raceID {
			return race.Race{}, nil, errs.InvalidInput(domain, "draft %s belongs to race %s", draftID, d.RaceID)
		}
		rows = d.Rows
	} else if rows, err = s.src.Results(ctx, raceID); err != nil {
		return race.Race{}, nil, err
	}

	roster, err := s.src.Roster(ctx, raceID)
	if err != nil {
		return race.Race{}, nil, err
	}
	points, err := s.src.Tracking(ctx, raceID)
	if err != nil {
		return race.Race{}, nil, err
	}

	names := make(map[string]string, len(roster))
	for _, p := range roster {
		names[p.UserID] = p.Name
	}
	paces := make(map[string]string)
	for userID, track := range source.GroupByUser(points) {
		paces[userID] = tracking.ComputePaceAndSplits(track).Pace
	}
	return r, NewTable(rows).ExportRows(names, paces), nil
}

func (s *Service) Workbook(ctx context.Context, raceID, draftID string) ([]byte, error) {
	r, rows, err := s.ExportRows(ctx, raceID, draftID)
	if err != nil {
		return nil, err
	}
	return WriteWorkbook(r, rows)
}
