package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"tg_shop/internal/bot_commands"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const DefaultTTL = 30 * time.Minute

// ProductDraft - состояние мастера создания товара для одного админа
type ProductDraft struct {
	Step        bot_commands.AdminState `json:"step"`
	Name        string                  `json:"name,omitempty"`
	Price       decimal.Decimal         `json:"price"`
	Stock       int                     `json:"stock"`
	Description string                  `json:"description,omitempty"`
	ImageFileID string                  `json:"image_file_id,omitempty"`
}

// Store хранит состояние диалога по chat ID. Get без записи возвращает пустой черновик (шаг None).
type Store interface {
	Get(ctx context.Context, chatID int64) (ProductDraft, error)
	Set(ctx context.Context, chatID int64, d ProductDraft) error
	Clear(ctx context.Context, chatID int64) error
}

// MemoryStore - состояние в памяти процесса
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]ProductDraft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]ProductDraft)}
}

func (s *MemoryStore) Get(_ context.Context, chatID int64) (ProductDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[chatID], nil
}

func (s *MemoryStore) Set(_ context.Context, chatID int64, d ProductDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[chatID] = d
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
	return nil
}

// RedisStore хранит черновик в JSON под ключом session:<chat_id>; брошенный мастер истекает по TTL
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func Key(chatID int64) string {
	return "session:" + strconv.FormatInt(chatID, 10)
}

func (s *RedisStore) Get(ctx context.Context, chatID int64) (ProductDraft, error) {
	var d ProductDraft
	data, err := s.rdb.Get(ctx, Key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return d, nil
	}
	if err != nil {
		return d, err
	}
	err = json.Unmarshal(data, &d)
	return d, err
}

func (s *RedisStore) Set(ctx context.Context, chatID int64, d ProductDraft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, Key(chatID), string(data), s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, chatID int64) error {
	return s.rdb.Del(ctx, Key(chatID)).Err()
}
