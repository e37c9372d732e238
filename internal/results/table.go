// Package results holds the host-side results editing model: a draft table of
// a race's results that can be reordered and corrected before it is published
// back to the backend.
package results

import (
	"errors"
	"strconv"

	"backend-racehub/internal/errs"
	"backend-racehub/internal/race"
	"backend-racehub/internal/shared/timefmt"
)

const domain = "results"

var ErrDuplicateBib = errors.New("bib number already assigned")

// Table is an ordered list of result rows. Row order is the finishing order.
type Table struct {
	rows []race.Result
}

func NewTable(rows []race.Result) *Table {
	t := &Table{rows: make([]race.Result, len(rows))}
	for i, r := range rows {
		t.rows[i] = cloneResult(r)
	}
	return t
}

func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of the table's rows.
func (t *Table) Rows() []race.Result {
	out := make([]race.Result, len(t.rows))
	for i, r := range t.rows {
		out[i] = cloneResult(r)
	}
	return out
}

// MoveRow moves the row at from to index to and renumbers every row. It
// reports false and leaves the table alone when either index is out of range.
func (t *Table) MoveRow(from, to int) bool {
	if from < 0 || from >= len(t.rows) || to < 0 || to >= len(t.rows) {
		return false
	}
	row := t.rows[from]
	t.rows = append(t.rows[:from], t.rows[from+1:]...)
	t.rows = append(t.rows[:to], append([]race.Result{row}, t.rows[to:]...)...)
	t.renumber()
	return true
}

func (t *Table) SetStatus(userID string, status race.Status) error {
	if !status.Valid() {
		return errs.InvalidInput(domain, "unknown status %q", status)
	}
	i, err := t.index(userID)
	if err != nil {
		return err
	}
	t.rows[i].Status = status
	return nil
}

// SetFinishTime replaces the row's finish time. Callers parse user input
// before getting here.
func (t *Table) SetFinishTime(userID string, ms int64) error {
	if ms < 0 {
		return errs.InvalidInput(domain, "finish time must not be negative")
	}
	i, err := t.index(userID)
	if err != nil {
		return err
	}
	t.rows[i].FinishTimeMs = &ms
	return nil
}

func (t *Table) SetBib(userID, bib string) error {
	i, err := t.index(userID)
	if err != nil {
		return err
	}
	for j, r := range t.rows {
		if j != i && bib != "" && r.BibNumber == bib {
			return errs.Wrap(ErrDuplicateBib, errs.CodeConflict, domain, "bib %s is held by %s", bib, r.UserID)
		}
	}
	t.rows[i].BibNumber = bib
	return nil
}

func (t *Table) index(userID string) (int, error) {
	for i, r := range t.rows {
		if r.UserID == userID {
			return i, nil
		}
	}
	return -1, errs.NotFound(domain, "no result row for user %s", userID)
}

func (t *Table) renumber() {
	for i := range t.rows {
		pos := i + 1
		t.rows[i].Position = &pos
	}
}

// ExportRow is the flat row handed to document exports.
type ExportRow struct {
	Position string `json:"position"`
	Bib      string `json:"bib"`
	Name     string `json:"name"`
	Time     string `json:"time"`
	Pace     string `json:"pace"`
}

// ExportRows flattens the table. names and paces are keyed by user id; a
// missing pace exports as "–" and a missing time as "N/A".
func (t *Table) ExportRows(names, paces map[string]string) []ExportRow {
	out := make([]ExportRow, 0, len(t.rows))
	for i, r := range t.rows {
		row := ExportRow{
			Position: "-",
			Bib:      r.BibNumber,
			Name:     names[r.UserID],
			Time:     timefmt.NotAvailable,
			Pace:     timefmt.NoPace,
		}
		if r.Position != nil {
			row.Position = strconv.Itoa(*r.Position)
		} else if r.Status == race.StatusFinished {
			row.Position = strconv.Itoa(i + 1)
		}
		if r.FinishTimeMs != nil {
			row.Time = timefmt.MsToHMS(*r.FinishTimeMs)
		}
		if pace, ok := paces[r.UserID]; ok && pace != "" {
			row.Pace = pace
		}
		if row.Name == "" {
			row.Name = r.UserID
		}
		out = append(out, row)
	}
	return out
}

func cloneResult(r race.Result) race.Result {
	if r.FinishTimeMs != nil {
		ms := *r.FinishTimeMs
		r.FinishTimeMs = &ms
	}
	if r.Position != nil {
		pos := *r.Position
		r.Position = &pos
	}
	return r
}
