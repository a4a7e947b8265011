package presence

import (
	"context"
	"fmt"
	"time"

	"devlink-realtime/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Mirror receives every presence snapshot the hub broadcasts. Publish must
// not block.
type Mirror interface {
	Publish(entries []Entry)
}

type NopMirror struct{}

func (NopMirror) Publish([]Entry) {}

// RedisMirror projects the latest snapshot into a Redis hash
// (field userId, value socketId) for readers outside this process. Nothing is
// ever read back. Snapshots arriving faster than Redis accepts them are
// coalesced; only the newest is written.
type RedisMirror struct {
	client  *redis.Client
	key     string
	pending chan []Entry
}

func NewRedisMirror(client *redis.Client, key string) *RedisMirror {
	return &RedisMirror{
		client:  client,
		key:     key,
		pending: make(chan []Entry, 1),
	}
}

func (m *RedisMirror) Publish(entries []Entry) {
	for {
		select {
		case m.pending <- entries:
			return
		default:
		}
		// replace the stale snapshot
		select {
		case <-m.pending:
		default:
		}
	}
}

// Serve writes snapshots until ctx is cancelled, then deletes the key.
func (m *RedisMirror) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			clearCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := m.client.Del(clearCtx, m.key).Err(); err != nil {
				logger.Error("Error clearing presence mirror: %v", err)
			}
			cancel()
			return ctx.Err()

		case entries := <-m.pending:
			if err := m.write(ctx, entries); err != nil {
				logger.Error("Error writing presence mirror: %v", err)
			}
		}
	}
}

func (m *RedisMirror) String() string {
	return "presence-mirror"
}

func (m *RedisMirror) write(ctx context.Context, entries []Entry) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.key)
	if len(entries) > 0 {
		fields := make([]interface{}, 0, len(entries)*2)
		for _, e := range entries {
			fields = append(fields, e.UserID, e.SessionID)
		}
		pipe.HSet(ctx, m.key, fields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace %s: %w", m.key, err)
	}
	return nil
}
