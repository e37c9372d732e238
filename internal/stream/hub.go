package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"backend-racehub/internal/logger"
	"backend-racehub/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "race:"
	channelSuffix = ":leaderboard"
)

// Hub fans leaderboard payloads out to websocket clients grouped by race.
// With Redis configured every broadcast goes through Redis pub/sub so clients
// connected to other instances receive it too.
type Hub struct {
	redis   *redis.Client
	log     *logger.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	pubsub  *redis.PubSub
	done    chan struct{}
}

type Client struct {
	RaceID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client, log *logger.Logger) *Hub {
	h := &Hub{
		redis:   redisClient,
		log:     log.WithComponent("stream"),
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}

	if redisClient == nil {
		close(h.done)
		return h
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pubsub := redisClient.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.Warn("redis subscribe failed, falling back to local fan-out", zap.Error(err))
		_ = pubsub.Close()
		h.redis = nil
		close(h.done)
		return h
	}

	h.pubsub = pubsub
	go h.forwardRedis(pubsub)
	return h
}

func (h *Hub) Register(raceID string) *Client {
	client := &Client{
		RaceID: raceID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[raceID] == nil {
		h.clients[raceID] = map[*Client]struct{}{}
	}
	h.clients[raceID][client] = struct{}{}
	metrics.StreamClients.Inc()
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	raceClients, ok := h.clients[client.RaceID]
	if !ok {
		return
	}
	if _, ok := raceClients[client]; !ok {
		return
	}
	delete(raceClients, client)
	if len(raceClients) == 0 {
		delete(h.clients, client.RaceID)
	}
	close(client.Send)
	metrics.StreamClients.Dec()
}

func (h *Hub) ClientCount(raceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[raceID])
}

func (h *Hub) Broadcast(raceID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(raceID), payload).Err()
		if err == nil {
			return
		}
		h.log.Warn("redis publish failed, delivering locally", zap.String("race_id", raceID), zap.Error(err))
	}
	h.deliver(raceID, payload)
}

// Close stops the Redis forwarder. Registered clients are left to their
// handlers.
func (h *Hub) Close() {
	if h.pubsub != nil {
		_ = h.pubsub.Close()
	}
	<-h.done
}

func (h *Hub) deliver(raceID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[raceID] {
		select {
		case client.Send <- payload:
		default:
			// slow client; it will catch up on the next snapshot
		}
	}
}

func (h *Hub) forwardRedis(pubsub *redis.PubSub) {
	defer close(h.done)

	for msg := range pubsub.Channel() {
		raceID := raceIDFromChannel(msg.Channel)
		if raceID == "" {
			continue
		}
		h.deliver(raceID, []byte(msg.Payload))
	}
}

func redisChannel(raceID string) string {
	return channelPrefix + raceID + channelSuffix
}

func raceIDFromChannel(ch string) string {
	// race:{id}:leaderboard
	if len(ch) <= len(channelPrefix)+len(channelSuffix) ||
		!strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
