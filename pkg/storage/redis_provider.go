package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/tcmartin/promptflow/pkg/flow"
)

// RedisProvider implements the StorageProvider interface using Redis
type RedisProvider struct {
	client    *redis.Client
	flowStore *RedisFlowStore
}

// RedisProviderConfig contains configuration for the Redis provider
type RedisProviderConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisProvider creates a new Redis storage provider
func NewRedisProvider(config RedisProviderConfig) *RedisProvider {
	addr := config.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisProvider{
		client:    client,
		flowStore: NewRedisFlowStore(client, config.KeyPrefix),
	}
}

// Initialize checks that the server is reachable
func (p *RedisProvider) Initialize(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

// GetFlowStore returns a store for flow definitions
func (p *RedisProvider) GetFlowStore() FlowStore {
	return p.flowStore
}

// RedisFlowStore keeps each flow as a JSON value under <prefix>flow:<id> and
// tracks the IDs in the set <prefix>flows
type RedisFlowStore struct {
	client *redis.Client
	prefix string
}

// NewRedisFlowStore creates a new Redis flow store
func NewRedisFlowStore(client *redis.Client, prefix string) *RedisFlowStore {
	return &RedisFlowStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisFlowStore) flowKey(id string) string {
	return s.prefix + "flow:" + id
}

func (s *RedisFlowStore) indexKey() string {
	return s.prefix + "flows"
}

// GetFlow retrieves a flow by ID
func (s *RedisFlowStore) GetFlow(ctx context.Context, id string) (flow.Flow, error) {
	data, err := s.client.Get(ctx, s.flowKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return flow.Flow{}, ErrFlowNotFound
		}
		return flow.Flow{}, fmt.Errorf("failed to get flow: %w", err)
	}

	var f flow.Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return flow.Flow{}, fmt.Errorf("failed to decode flow %s: %w", id, err)
	}

	return f, nil
}

// insertFlowScript writes the flow and its index entry in one step. SADD runs
// before SET so a failing index write leaves nothing behind.
var insertFlowScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("SADD", KEYS[2], ARGV[2])
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

// InsertFlow stores a new flow
func (s *RedisFlowStore) InsertFlow(ctx context.Context, f flow.Flow) error {
	ts := now()
	f.CreatedAt = ts
	f.UpdatedAt = ts

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}

	inserted, err := insertFlowScript.Run(ctx, s.client, []string{s.flowKey(f.ID), s.indexKey()}, data, f.ID).Int()
	if err != nil {
		return fmt.Errorf("failed to insert flow: %w", err)
	}
	if inserted == 0 {
		return ErrFlowExists
	}

	return nil
}

// ReplaceFlow overwrites an existing flow, keeping its creation time
func (s *RedisFlowStore) ReplaceFlow(ctx context.Context, f flow.Flow) error {
	existing, err := s.GetFlow(ctx, f.ID)
	if err != nil {
		return err
	}

	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = now()

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}

	ok, err := s.client.SetXX(ctx, s.flowKey(f.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update flow: %w", err)
	}
	if !ok {
		return ErrFlowNotFound
	}

	return nil
}

// DeleteFlow removes a flow
func (s *RedisFlowStore) DeleteFlow(ctx context.Context, id string) (int64, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.flowKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete flow: %w", err)
	}

	return del.Val(), nil
}

// ListFlows returns summaries of all flows ordered by ID
func (s *RedisFlowStore) ListFlows(ctx context.Context) ([]FlowSummary, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	sort.Strings(ids)

	summaries := []FlowSummary{}
	if len(ids) == 0 {
		return summaries, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.flowKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load flows: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// indexed but deleted concurrently
			continue
		}
		var f flow.Flow
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("failed to decode flow %s: %w", ids[i], err)
		}
		summaries = append(summaries, Summarize(f))
	}

	return summaries, nil
}
