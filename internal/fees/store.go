package fees

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// Store persists the fee mapping between runs.
type Store interface {
	Load(ctx context.Context) (map[string]Fees, error)
	Save(ctx context.Context, entries map[string]Fees) error
}

// FileStore keeps the mapping in a JSON file. A missing file loads as empty.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(_ context.Context) (map[string]Fees, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Fees{}, nil
		}
		return nil, err
	}
	entries := map[string]Fees{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode fee cache %s: %w", s.Path, err)
	}
	return entries, nil
}

func (s *FileStore) Save(_ context.Context, entries map[string]Fees) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

// DefaultRedisKey is the hash holding one field per fund code.
const DefaultRedisKey = "etfquant:fees"

// RedisStore keeps the mapping in a redis hash, each field a JSON-encoded Fees.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to addr lazily; the first command reports connection errors.
func NewRedisStore(addr string) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), DefaultRedisKey)
}

func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (map[string]Fees, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", s.key, err)
	}
	entries := make(map[string]Fees, len(raw))
	for code, v := range raw {
		var f Fees
		if err := json.Unmarshal([]byte(v), &f); err != nil {
			continue
		}
		entries[code] = f
	}
	return entries, nil
}

func (s *RedisStore) Save(ctx context.Context, entries map[string]Fees) error {
	if len(entries) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(entries))
	for code, f := range entries {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		values[code] = string(data)
	}
	if err := s.client.HSet(ctx, s.key, values).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
