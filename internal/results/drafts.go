package results

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-racehub/internal/errs"
	"backend-racehub/internal/race"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Draft is a host's working copy of a race's results.
type Draft struct {
	ID        string        `json:"id"`
	RaceID    string        `json:"race_id"`
	Rows      []race.Result `json:"rows"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type DraftStore interface {
	Save(ctx context.Context, d Draft) error
	Load(ctx context.Context, id string) (Draft, error)
	Delete(ctx context.Context, id string) error
}

// NewDraftStore keeps drafts in Redis when a client is given, in memory
// otherwise.
func NewDraftStore(redisClient *redis.Client, ttl time.Duration) DraftStore {
	if redisClient == nil {
		return NewMemoryDraftStore(ttl, time.Now)
	}
	return &RedisDraftStore{redis: redisClient, ttl: ttl}
}

type RedisDraftStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func draftKey(id string) string {
	return "results:draft:" + id
}

func (s *RedisDraftStore) Save(ctx context.Context, d Draft) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, draftKey(d.ID), payload, s.ttl).Err()
}

func (s *RedisDraftStore) Load(ctx context.Context, id string) (Draft, error) {
	payload, err := s.redis.Get(ctx, draftKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Draft{}, errs.NotFound(domain, "draft %s not found", id)
	}
	if err != nil {
		return Draft{}, err
	}
	var d Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func (s *RedisDraftStore) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, draftKey(id)).Err()
}

type memoryDraft struct {
	draft     Draft
	expiresAt time.Time
}

func (e memoryDraft) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type MemoryDraftStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	drafts map[string]memoryDraft
}

func NewMemoryDraftStore(ttl time.Duration, now func() time.Time) *MemoryDraftStore {
	return &MemoryDraftStore{ttl: ttl, now: now, drafts: make(map[string]memoryDraft)}
}

// Save stores d and drops every draft that has expired.
func (s *MemoryDraftStore) Save(_ context.Context, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.drafts {
		if e.expired(now) {
			delete(s.drafts, id)
		}
	}
	entry := memoryDraft{draft: d}
	if s.ttl > 0 {
		entry.expiresAt = now.Add(s.ttl)
	}
	entry.draft.Rows = NewTable(d.Rows).Rows()
	s.drafts[d.ID] = entry
	return nil
}

func (s *MemoryDraftStore) Load(_ context.Context, id string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.drafts[id]
	if ok && entry.expired(s.now()) {
		delete(s.drafts, id)
		ok = false
	}
	if !ok {
		return Draft{}, errs.NotFound(domain, "draft %s not found", id)
	}
	d := entry.draft
	d.Rows = NewTable(d.Rows).Rows()
	return d, nil
}

func (s *MemoryDraftStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
	return nil
}
