package results

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"backend-racehub/internal/errs"
	"backend-racehub/internal/logger"
	"backend-racehub/internal/race"
	"backend-racehub/internal/source"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// kmLat is one kilometre of latitude in degrees on the haversine sphere.
var kmLat = 180 / (6371 * math.Pi)

type fakeSource struct {
	results []race.Result
	roster  []race.Participant
	points  []race.TrackPoint
	err     error
}

func (f *fakeSource) Race(_ context.Context, raceID string) (race.Race, error) {
	if f.err != nil {
		return race.Race{}, f.err
	}
	return race.Race{ID: raceID, Name: "Jakarta 10K"}, nil
}

func (f *fakeSource) Roster(context.Context, string) ([]race.Participant, error) {
	return f.roster, f.err
}

func (f *fakeSource) Results(context.Context, string) ([]race.Result, error) {
	return f.results, f.err
}

func (f *fakeSource) Tracking(context.Context, string) ([]race.TrackPoint, error) {
	return f.points, f.err
}

type fakePublisher struct {
	raceID string
	token  string
	rows   []race.Result
	err    error
}

func (p *fakePublisher) PublishResults(ctx context.Context, raceID string, rows []race.Result) error {
	if p.err != nil {
		return p.err
	}
	p.raceID = raceID
	p.token, _ = source.BearerToken(ctx)
	p.rows = rows
	return nil
}

func newTestService(src *fakeSource, pub *fakePublisher) *Service {
	return NewService(src, pub, NewMemoryDraftStore(time.Hour, time.Now), logger.Nop())
}

func TestServiceDraftLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(&fakeSource{results: fiveRows()}, pub)
	ctx := context.Background()

	d, err := svc.CreateDraft(ctx, "race-1")
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.Len(t, d.Rows, 5)

	d, err = svc.Move(ctx, d.ID, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []string{"u2", "u3", "u4", "u5", "u1"}, userIDs(d.Rows))

	d, err = svc.SetStatus(ctx, d.ID, "u1", race.StatusDNF)
	require.NoError(t, err)
	d, err = svc.SetTime(ctx, d.ID, "u2", "0:41:07")
	require.NoError(t, err)
	d, err = svc.SetBib(ctx, d.ID, "u3", "300")
	require.NoError(t, err)

	loaded, err := svc.Draft(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, race.StatusDNF, loaded.Rows[4].Status)
	require.Equal(t, int64(2467000), *loaded.Rows[0].FinishTimeMs)
	require.Equal(t, "300", loaded.Rows[1].BibNumber)

	published, err := svc.Publish(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "race-1", pub.raceID)
	require.Equal(t, userIDs(published.Rows), userIDs(pub.rows))

	_, err = svc.Draft(ctx, d.ID)
	require.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestServiceSetTimeRejectsBeforeLoading(t *testing.T) {
	svc := newTestService(&fakeSource{results: fiveRows()}, &fakePublisher{})
	ctx := context.Background()
	d, err := svc.CreateDraft(ctx, "race-1")
	require.NoError(t, err)

	for _, input := range []string{"1:70:00", "abc", "", "75"} {
		_, err = svc.SetTime(ctx, d.ID, "u1", input)
		require.True(t, errs.HasCode(err, errs.CodeInvalidInput), input)
	}

	loaded, err := svc.Draft(ctx, d.ID)
	require.NoError(t, err)
	require.Nil(t, loaded.Rows[0].FinishTimeMs)
}

func TestServiceMoveOutOfRangeKeepsDraft(t *testing.T) {
	svc := newTestService(&fakeSource{results: fiveRows()}, &fakePublisher{})
	ctx := context.Background()
	d, err := svc.CreateDraft(ctx, "race-1")
	require.NoError(t, err)

	moved, err := svc.Move(ctx, d.ID, 0, 9)
	require.NoError(t, err)
	require.Equal(t, d.UpdatedAt, moved.UpdatedAt)
	require.Equal(t, userIDs(d.Rows), userIDs(moved.Rows))
}

func TestServicePublishErrorKeepsDraft(t *testing.T) {
	svc := newTestService(&fakeSource{results: fiveRows()}, &fakePublisher{err: errs.New(errs.CodeUpstream, "source", "backend down")})
	ctx := context.Background()
	d, err := svc.CreateDraft(ctx, "race-1")
	require.NoError(t, err)

	_, err = svc.Publish(ctx, d.ID)
	require.True(t, errs.HasCode(err, errs.CodeUpstream))

	_, err = svc.Draft(ctx, d.ID)
	require.NoError(t, err)
}

func TestServiceCreateDraftSourceError(t *testing.T) {
	svc := newTestService(&fakeSource{err: errors.New("boom")}, &fakePublisher{})
	_, err := svc.CreateDraft(context.Background(), "race-1")
	require.Error(t, err)
}

func TestServiceWorkbook(t *testing.T) {
	start := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	rows := fiveRows()[:2]
	rows[0].FinishTimeMs = msPtr(300000)
	src := &fakeSource{
		results: rows,
		roster:  []race.Participant{{UserID: "u1", Name: "Ayu"}, {UserID: "u2", Name: "Budi"}},
		points: []race.TrackPoint{
			{UserID: "u1", Latitude: 0, Longitude: 0, RecordedAt: start},
			{UserID: "u1", Latitude: kmLat, Longitude: 0, RecordedAt: start.Add(5 * time.Minute)},
		},
	}
	svc := newTestService(src, &fakePublisher{})

	doc, err := svc.Workbook(context.Background(), "race-1", "")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(doc))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(resultsSheet)
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"Position", "Bib", "Name", "Time", "Pace"},
		{"1", "101", "Ayu", "00:05:00", "5:00"},
		{"2", "102", "Budi", "N/A", "–"},
	}, got)

	props, err := f.GetDocProps()
	require.NoError(t, err)
	require.Equal(t, "Jakarta 10K", props.Title)
}

func TestServiceExportFromDraft(t *testing.T) {
	svc := newTestService(&fakeSource{results: fiveRows()}, &fakePublisher{})
	ctx := context.Background()
	d, err := svc.CreateDraft(ctx, "race-1")
	require.NoError(t, err)
	_, err = svc.Move(ctx, d.ID, 4, 0)
	require.NoError(t, err)

	_, rows, err := svc.ExportRows(ctx, "race-1", d.ID)
	require.NoError(t, err)
	require.Equal(t, "105", rows[0].Bib)
	require.Equal(t, "1", rows[0].Position)

	_, _, err = svc.ExportRows(ctx, "race-2", d.ID)
	require.True(t, errs.HasCode(err, errs.CodeInvalidInput))
}
