package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"backend-racehub/internal/errs"
	"backend-racehub/internal/logger"
	"backend-racehub/internal/metrics"
	"backend-racehub/internal/race"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const snapshotTimeout = 3 * time.Second

type RosterSource interface {
	Roster(ctx context.Context, raceID string) ([]race.Participant, error)
}

type Broadcaster interface {
	Broadcast(raceID string, payload []byte)
}

type Options struct {
	StaleAfter         time.Duration
	SweepInterval      time.Duration
	BroadcastPerSecond float64

	// IdleAfter closes boards that have not applied an event within the
	// window. Zero keeps boards until the registry stops.
	IdleAfter time.Duration

	// Lease, when set, limits broadcasting to the instance holding the
	// race's lease.
	Lease Lease
	Now   func() time.Time
}

// LeaderboardMessage is what stream subscribers and the leaderboard endpoint
// receive.
type LeaderboardMessage struct {
	Type        string     `json:"type"`
	RaceID      string     `json:"race_id"`
	RaceStatus  string     `json:"race_status,omitempty"`
	Standings   []Standing `json:"standings"`
	GeneratedAt time.Time  `json:"generated_at"`
}

type entry struct {
	board   *Board
	cancel  context.CancelFunc
	limiter *rate.Limiter
	dirty   atomic.Bool
	active  atomic.Int64 // unix nanos of the last applied event
}

// Registry keeps one Board per race, fed from the event bus.
type Registry struct {
	ctx    context.Context
	roster RosterSource
	hub    Broadcaster
	log    *logger.Logger
	opts   Options

	mu     sync.RWMutex
	boards map[string]*entry

	flush chan string
}

// NewRegistry creates a registry whose boards live until ctx is cancelled.
func NewRegistry(ctx context.Context, roster RosterSource, hub Broadcaster, log *logger.Logger, opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BroadcastPerSecond <= 0 {
		opts.BroadcastPerSecond = 4
	}
	return &Registry{
		ctx:    ctx,
		roster: roster,
		hub:    hub,
		log:    log.WithComponent("live"),
		opts:   opts,
		boards: make(map[string]*entry),
		flush:  make(chan string, 64),
	}
}

// Board returns the race's board, loading its roster on first use.
func (r *Registry) Board(ctx context.Context, raceID string) (*Board, error) {
	e, err := r.open(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return e.board, nil
}

func (r *Registry) open(ctx context.Context, raceID string) (*entry, error) {
	if e := r.lookup(raceID); e != nil {
		return e, nil
	}

	roster, err := r.roster.Roster(ctx, raceID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.boards[raceID]; ok {
		return e, nil
	}
	boardCtx, cancel := context.WithCancel(r.ctx)
	e := &entry{
		cancel:  cancel,
		limiter: rate.NewLimiter(rate.Limit(r.opts.BroadcastPerSecond), 1),
	}
	e.active.Store(r.opts.Now().UnixNano())
	e.board = NewBoard(boardCtx, raceID, roster, BoardOptions{
		StaleAfter: r.opts.StaleAfter,
		OnChange:   r.changed,
		Now:        r.opts.Now,
	})
	r.boards[raceID] = e
	metrics.LiveBoards.Set(float64(len(r.boards)))
	r.log.WithRace(raceID).Info("live board opened", zap.Int("roster", len(roster)))
	return e, nil
}

// closeBoard stops an idle board. A later event or read opens a fresh one.
func (r *Registry) closeBoard(raceID string, e *entry) {
	r.mu.Lock()
	if r.boards[raceID] == e {
		delete(r.boards, raceID)
	}
	metrics.LiveBoards.Set(float64(len(r.boards)))
	r.mu.Unlock()

	e.cancel()
	r.log.WithRace(raceID).Info("live board closed")
}

func (r *Registry) lookup(raceID string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.boards[raceID]
}

// Dispatch applies one decoded event to its race's board.
func (r *Registry) Dispatch(ctx context.Context, ev Event) error {
	e, err := r.open(ctx, ev.RaceID)
	if err != nil {
		return err
	}
	err = e.board.Apply(ctx, ev)
	if errors.Is(err, ErrBoardClosed) && r.ctx.Err() == nil {
		// closed as idle between lookup and apply
		if e, err = r.open(ctx, ev.RaceID); err != nil {
			return err
		}
		err = e.board.Apply(ctx, ev)
	}
	if err != nil {
		return err
	}
	e.active.Store(r.opts.Now().UnixNano())
	metrics.LiveEvents.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

// Consume applies bus messages until ctx is done or msgs is closed. Messages
// that cannot be applied are acked and dropped; redelivering them would not
// help.
func (r *Registry) Consume(ctx context.Context, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.handleMessage(ctx, msg)
		}
	}
}

func (r *Registry) handleMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	ev, err := Decode(msg.Payload)
	if err != nil {
		metrics.LiveEventsRejected.WithLabelValues("invalid").Inc()
		r.log.Warn("dropping live event", zap.String("message_id", msg.UUID), zap.Error(err))
		return
	}
	if err := r.Dispatch(ctx, ev); err != nil {
		reason := errs.CodeOf(err)
		if reason == "" {
			reason = "dispatch"
		}
		metrics.LiveEventsRejected.WithLabelValues(reason).Inc()
		r.log.Warn("live event not applied",
			zap.String("race_id", ev.RaceID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// Run drives throttled broadcasts and the stale-position sweep.
func (r *Registry) Run(ctx context.Context) {
	var tick <-chan time.Time
	if r.opts.SweepInterval > 0 {
		ticker := time.NewTicker(r.opts.SweepInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raceID := <-r.flush:
			if e := r.lookup(raceID); e != nil {
				r.broadcast(ctx, raceID, e)
			}
		case <-tick:
			r.Sweep(ctx, r.opts.Now())
		}
	}
}

// Sweep evicts stale positions on every board, pushes any leaderboard whose
// broadcast was held back by the limiter, then closes idle boards.
func (r *Registry) Sweep(ctx context.Context, now time.Time) {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.boards))
	for id, e := range r.boards {
		entries[id] = e
	}
	r.mu.RUnlock()

	for raceID, e := range entries {
		n, err := e.board.Sweep(ctx, now)
		if err != nil {
			r.log.WithRace(raceID).Warn("sweep failed", zap.Error(err))
			continue
		}
		if n > 0 {
			metrics.LivePositionsEvicted.Add(float64(n))
			r.log.Debug("evicted stale positions", zap.String("race_id", raceID), zap.Int("count", n))
		}
		if e.dirty.Load() {
			r.broadcast(ctx, raceID, e)
		}
		if r.opts.IdleAfter > 0 && now.Sub(time.Unix(0, e.active.Load())) > r.opts.IdleAfter {
			r.closeBoard(raceID, e)
		}
	}
}

// changed runs on a board goroutine, so it only marks and signals.
func (r *Registry) changed(raceID string) {
	e := r.lookup(raceID)
	if e == nil {
		return
	}
	e.dirty.Store(true)
	if !e.limiter.Allow() {
		return
	}
	select {
	case r.flush <- raceID:
	default:
	}
}

func (r *Registry) broadcast(ctx context.Context, raceID string, e *entry) {
	e.dirty.Store(false)
	if r.opts.Lease != nil {
		held, err := r.opts.Lease.Hold(ctx, raceID)
		if err != nil {
			// without the lease store every instance broadcasts
			r.log.Warn("broadcast lease unavailable", zap.String("race_id", raceID), zap.Error(err))
		} else if !held {
			return
		}
	}
	msg, err := r.leaderboardOf(ctx, e.board)
	if err != nil {
		e.dirty.Store(true)
		r.log.Warn("leaderboard snapshot failed", zap.String("race_id", raceID), zap.Error(err))
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("encode leaderboard", zap.String("race_id", raceID), zap.Error(err))
		return
	}
	r.hub.Broadcast(raceID, payload)
	metrics.LeaderboardBroadcasts.Inc()
}

// Leaderboard returns the race's current standings.
func (r *Registry) Leaderboard(ctx context.Context, raceID string) (LeaderboardMessage, error) {
	board, err := r.Board(ctx, raceID)
	if err != nil {
		return LeaderboardMessage{}, err
	}
	return r.leaderboardOf(ctx, board)
}

func (r *Registry) leaderboardOf(ctx context.Context, board *Board) (LeaderboardMessage, error) {
	snap, err := board.Snapshot(ctx)
	if err != nil {
		return LeaderboardMessage{}, err
	}
	return LeaderboardMessage{
		Type:        "leaderboard",
		RaceID:      snap.RaceID,
		RaceStatus:  snap.Status,
		Standings:   BuildLeaderboard(snap.Roster, snap.Positions),
		GeneratedAt: snap.TakenAt,
	}, nil
}

// Positions returns the raw live position table.
func (r *Registry) Positions(ctx context.Context, raceID string) (Snapshot, error) {
	board, err := r.Board(ctx, raceID)
	if err != nil {
		return Snapshot{}, err
	}
	return board.Snapshot(ctx)
}

// SnapshotPayload encodes the current leaderboard for a newly connected
// stream client.
func (r *Registry) SnapshotPayload(raceID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(r.ctx, snapshotTimeout)
	defer cancel()

	msg, err := r.Leaderboard(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}
