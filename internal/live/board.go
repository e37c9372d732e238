package live

import (
	"context"
	"errors"
	"time"

	"backend-racehub/internal/race"
	"backend-racehub/internal/shared/geo"
)

var ErrBoardClosed = errors.New("live: board closed")

// Snapshot is a point-in-time copy of a board.
type Snapshot struct {
	RaceID    string                       `json:"race_id"`
	Status    string                       `json:"status,omitempty"`
	Roster    []race.Participant           `json:"roster"`
	Positions map[string]race.LivePosition `json:"positions"`
	TakenAt   time.Time                    `json:"taken_at"`
}

type BoardOptions struct {
	// StaleAfter evicts positions not refreshed within the window. Zero
	// disables eviction.
	StaleAfter time.Duration
	// OnChange runs on the board goroutine after every mutation. It must not
	// call back into the board.
	OnChange func(raceID string)
	Now      func() time.Time
}

type applyMsg struct {
	ev Event
}

type snapshotMsg struct {
	reply chan Snapshot
}

type sweepMsg struct {
	now   time.Time
	reply chan int
}

// Board owns the live position table of one race. All state lives on a single
// goroutine; callers talk to it through the mailbox.
type Board struct {
	raceID string
	opts   BoardOptions
	inbox  chan any
	done   chan struct{}

	// owned by run
	roster    []race.Participant
	onRoster  map[string]struct{}
	positions map[string]race.LivePosition
	seen      map[string]time.Time
	status    string
}

func NewBoard(ctx context.Context, raceID string, roster []race.Participant, opts BoardOptions) *Board {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := &Board{
		raceID:    raceID,
		opts:      opts,
		inbox:     make(chan any, 64),
		done:      make(chan struct{}),
		roster:    make([]race.Participant, 0, len(roster)),
		onRoster:  make(map[string]struct{}, len(roster)),
		positions: make(map[string]race.LivePosition),
		seen:      make(map[string]time.Time),
	}
	for _, p := range roster {
		b.addToRoster(p)
	}
	go b.run(ctx)
	return b
}

func (b *Board) RaceID() string { return b.raceID }

// Done is closed once the board goroutine has exited.
func (b *Board) Done() <-chan struct{} { return b.done }

// Apply enqueues an event. Events are applied in the order they are enqueued.
func (b *Board) Apply(ctx context.Context, ev Event) error {
	return b.send(ctx, applyMsg{ev: ev})
}

func (b *Board) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := b.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-b.done:
		return Snapshot{}, ErrBoardClosed
	}
}

func (b *Board) Leaderboard(ctx context.Context) ([]Standing, error) {
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return BuildLeaderboard(snap.Roster, snap.Positions), nil
}

// Sweep evicts positions older than StaleAfter relative to now and reports
// how many were removed.
func (b *Board) Sweep(ctx context.Context, now time.Time) (int, error) {
	reply := make(chan int, 1)
	if err := b.send(ctx, sweepMsg{now: now, reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-b.done:
		return 0, ErrBoardClosed
	}
}

func (b *Board) send(ctx context.Context, msg any) error {
	select {
	case <-b.done:
		return ErrBoardClosed
	default:
	}
	select {
	case b.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBoardClosed
	}
}

func (b *Board) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.inbox:
			b.handle(msg)
		}
	}
}

func (b *Board) handle(msg any) {
	switch m := msg.(type) {
	case applyMsg:
		if b.apply(m.ev) {
			b.changed()
		}
	case snapshotMsg:
		m.reply <- b.snapshot()
	case sweepMsg:
		n := b.sweep(m.now)
		if n > 0 {
			b.changed()
		}
		m.reply <- n
	}
}

func (b *Board) changed() {
	if b.opts.OnChange != nil {
		b.opts.OnChange(b.raceID)
	}
}

// apply reports whether the event changed the board.
func (b *Board) apply(ev Event) bool {
	now := b.opts.Now()
	switch ev.Type {
	case EventParticipantUpdate:
		if ev.Update == nil {
			return false
		}
		b.update(*ev.Update, now)
		return true
	case EventOnlineParticipants:
		return b.online(ev.Online, now)
	case EventParticipantJoined:
		if ev.Joined == nil {
			return false
		}
		return b.addToRoster(*ev.Joined)
	case EventParticipantLeft:
		if _, ok := b.positions[ev.Left]; !ok {
			return false
		}
		delete(b.positions, ev.Left)
		delete(b.seen, ev.Left)
		return true
	case EventRaceStatusUpdate:
		if b.status == ev.Status {
			return false
		}
		b.status = ev.Status
		return true
	}
	return false
}

func (b *Board) update(u ParticipantUpdate, now time.Time) {
	ts := u.Timestamp.Time
	if ts.IsZero() {
		ts = now
	}

	pos, ok := b.positions[u.UserID]
	if !ok {
		pos = race.LivePosition{UserID: u.UserID}
	}
	if pos.FirstUpdate.IsZero() {
		pos.FirstUpdate = ts
	}
	if pos.HasFix {
		pos.DistanceKm += geo.DistanceKm(pos.Coords.Lat(), pos.Coords.Lon(), u.Coords.Lat(), u.Coords.Lon())
	}
	pos.Coords = u.Coords
	pos.HasFix = true
	pos.SpeedKmh = u.Speed
	pos.LastUpdate = ts
	if u.Finished {
		pos.Finished = true
	}

	b.positions[u.UserID] = pos
	b.seen[u.UserID] = now
}

func (b *Board) online(users []string, now time.Time) bool {
	listed := make(map[string]struct{}, len(users))
	changed := false
	for _, id := range users {
		listed[id] = struct{}{}
		b.seen[id] = now
		if _, ok := b.positions[id]; !ok {
			b.positions[id] = race.LivePosition{UserID: id}
			changed = true
		}
	}
	for id := range b.positions {
		if _, ok := listed[id]; !ok {
			delete(b.positions, id)
			delete(b.seen, id)
			changed = true
		}
	}
	return changed
}

func (b *Board) addToRoster(p race.Participant) bool {
	if p.UserID == "" {
		return false
	}
	if _, ok := b.onRoster[p.UserID]; ok {
		return false
	}
	b.onRoster[p.UserID] = struct{}{}
	b.roster = append(b.roster, p)
	return true
}

func (b *Board) sweep(now time.Time) int {
	if b.opts.StaleAfter <= 0 {
		return 0
	}
	cutoff := now.Add(-b.opts.StaleAfter)
	evicted := 0
	for id, seen := range b.seen {
		if seen.Before(cutoff) {
			delete(b.positions, id)
			delete(b.seen, id)
			evicted++
		}
	}
	return evicted
}

func (b *Board) snapshot() Snapshot {
	roster := make([]race.Participant, len(b.roster))
	copy(roster, b.roster)
	positions := make(map[string]race.LivePosition, len(b.positions))
	for id, pos := range b.positions {
		positions[id] = pos
	}
	return Snapshot{
		RaceID:    b.raceID,
		Status:    b.status,
		Roster:    roster,
		Positions: positions,
		TakenAt:   b.opts.Now(),
	}
}
