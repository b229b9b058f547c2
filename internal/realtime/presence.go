package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vedran77/ontomatch/internal/domain"
)

// PresenceStore mirrors who is attached to a topic. Entries are ephemeral
// and counted per user: a user attached from several places stays present
// until the last of them leaves.
type PresenceStore interface {
	// Enter reports whether the user was not present before.
	Enter(ctx context.Context, entry domain.PresenceEntry) (first bool, err error)
	// Leave reports whether the user's last attachment went away.
	Leave(ctx context.Context, topic string, userID uuid.UUID) (gone bool, err error)
	List(ctx context.Context, topic string) ([]domain.PresenceEntry, error)
}

type localEntry struct {
	entry domain.PresenceEntry
	refs  int
}

type LocalPresence struct {
	mu     sync.Mutex
	topics map[string]map[uuid.UUID]*localEntry
}

func NewLocalPresence() *LocalPresence {
	return &LocalPresence{topics: make(map[string]map[uuid.UUID]*localEntry)}
}

func (p *LocalPresence) Enter(_ context.Context, entry domain.PresenceEntry) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topics[entry.Topic] == nil {
		p.topics[entry.Topic] = make(map[uuid.UUID]*localEntry)
	}
	if e, ok := p.topics[entry.Topic][entry.UserID]; ok {
		e.refs++
		return false, nil
	}
	p.topics[entry.Topic][entry.UserID] = &localEntry{entry: entry, refs: 1}
	return true, nil
}

func (p *LocalPresence) Leave(_ context.Context, topic string, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.topics[topic][userID]
	if !ok {
		return false, nil
	}
	if e.refs--; e.refs > 0 {
		return false, nil
	}
	delete(p.topics[topic], userID)
	if len(p.topics[topic]) == 0 {
		delete(p.topics, topic)
	}
	return true, nil
}

func (p *LocalPresence) List(_ context.Context, topic string) ([]domain.PresenceEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := make([]domain.PresenceEntry, 0, len(p.topics[topic]))
	for _, e := range p.topics[topic] {
		entries = append(entries, e.entry)
	}
	sortEntries(entries)
	return entries, nil
}

// RedisPresence keeps two hashes per topic, both with a field per user: the
// entry itself and its attachment count. Both expire after ttl without
// activity so a crashed node cannot leave entries behind forever.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl}
}

// The hash tag keeps both keys of a topic in one cluster slot.
func presenceKey(topic string) string {
	return fmt.Sprintf("presence:{%s}", topic)
}

func presenceRefsKey(topic string) string {
	return fmt.Sprintf("presence:{%s}:refs", topic)
}

var leaveScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[2], ARGV[1], -1)
if n > 0 then
	return 0
end
redis.call('HDEL', KEYS[2], ARGV[1])
return redis.call('HDEL', KEYS[1], ARGV[1])
`)

func (p *RedisPresence) Enter(ctx context.Context, entry domain.PresenceEntry) (bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshal presence: %w", err)
	}

	key, refsKey, field := presenceKey(entry.Topic), presenceRefsKey(entry.Topic), entry.UserID.String()
	pipe := p.client.TxPipeline()
	pipe.HSetNX(ctx, key, field, data)
	refs := pipe.HIncrBy(ctx, refsKey, field, 1)
	pipe.Expire(ctx, key, p.ttl)
	pipe.Expire(ctx, refsKey, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("presence enter: %w: %v", domain.ErrTransportUnavailable, err)
	}
	return refs.Val() == 1, nil
}

func (p *RedisPresence) Leave(ctx context.Context, topic string, userID uuid.UUID) (bool, error) {
	removed, err := leaveScript.Run(ctx, p.client, []string{presenceKey(topic), presenceRefsKey(topic)}, userID.String()).Int()
	if err != nil {
		return false, fmt.Errorf("presence leave: %w: %v", domain.ErrTransportUnavailable, err)
	}
	return removed > 0, nil
}

func (p *RedisPresence) List(ctx context.Context, topic string) ([]domain.PresenceEntry, error) {
	fields, err := p.client.HGetAll(ctx, presenceKey(topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence list: %w: %v", domain.ErrTransportUnavailable, err)
	}

	entries := make([]domain.PresenceEntry, 0, len(fields))
	for _, raw := range fields {
		var e domain.PresenceEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []domain.PresenceEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Since.Equal(entries[j].Since) {
			return entries[i].UserID.String() < entries[j].UserID.String()
		}
		return entries[i].Since.Before(entries[j].Since)
	})
}
