package registry

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/user"
)

const DefaultShards = 32

type Key struct {
	UserID user.ID
	Role   model.Role
}

func (k Key) String() string {
	return string(k.UserID) + "|" + string(k.Role)
}

// Channel is an open push connection to one client.
type Channel interface {
	ID() string
	Send(ctx context.Context, msg *model.Message) error
	Close() error
}

type shard struct {
	mu       sync.RWMutex
	channels map[Key]Channel
}

// Registry maps (user, role) to the client's current push channel. Keys are
// spread over independently locked shards; operations on one key are
// serialized by its shard lock.
type Registry struct {
	shards []*shard
}

func New(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{shards: make([]*shard, shards)}
	for i := range r.shards {
		r.shards[i] = &shard{channels: make(map[Key]Channel)}
	}
	return r
}

func (r *Registry) shardFor(key Key) *shard {
	return r.shards[xxhash.Sum64String(key.String())%uint64(len(r.shards))]
}

// Register makes ch the channel for key. The last writer wins; the channel
// it replaced, if any, is returned so the caller can close it.
func (r *Registry) Register(key Key, ch Channel) Channel {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.channels[key]
	s.channels[key] = ch
	if previous == ch {
		return nil
	}
	return previous
}

// Remove deletes the entry for key only while it still points at ch, so a
// late disconnect cannot evict a newer connection.
func (r *Registry) Remove(key Key, ch Channel) bool {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.channels[key]
	if !ok || current != ch {
		return false
	}
	delete(s.channels, key)
	return true
}

func (r *Registry) Lookup(key Key) (Channel, bool) {
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[key]
	return ch, ok
}

func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.channels)
		s.mu.RUnlock()
	}
	return n
}

// Drain empties the registry and returns every channel it held.
func (r *Registry) Drain() []Channel {
	var out []Channel
	for _, s := range r.shards {
		s.mu.Lock()
		for key, ch := range s.channels {
			out = append(out, ch)
			delete(s.channels, key)
		}
		s.mu.Unlock()
	}
	return out
}
