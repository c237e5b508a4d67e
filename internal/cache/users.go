package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	db "tg_shop/internal/database"
	"tg_shop/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const DefaultTTL = time.Hour

// UserCache - cache-aside для пользователей по Telegram ID (ключ user:<id>).
// Без Redis все чтения идут в БД.
type UserCache struct {
	rdb   redis.Cmdable
	db    *gorm.DB
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

func NewUserCache(rdb redis.Cmdable, DB *gorm.DB, ttl time.Duration, log *zap.Logger) *UserCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &UserCache{rdb: rdb, db: DB, ttl: ttl, log: log.Named("cache")}
}

func Key(telegramID int64) string {
	return "user:" + strconv.FormatInt(telegramID, 10)
}

func (c *UserCache) Get(ctx context.Context, telegramID int64) (*models.User, error) {
	if c.rdb == nil {
		return db.GetUserByTelegramID(ctx, c.db, telegramID)
	}

	key := Key(telegramID)
	if u, ok := c.lookup(ctx, key); ok {
		return u, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if u, ok := c.lookup(ctx, key); ok {
			return u, nil
		}
		u, err := db.GetUserByTelegramID(ctx, c.db, telegramID)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(u)
		if err == nil {
			err = c.rdb.Set(ctx, key, string(data), c.ttl).Err()
		}
		if err != nil {
			c.log.Warn("cache store failed", zap.String("key", key), zap.Error(err))
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.User), nil
}

func (c *UserCache) lookup(ctx context.Context, key string) (*models.User, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		c.log.Warn("cache entry corrupted", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &u, true
}

// Invalidate вызывается после изменения пользователя (бан, роль, контакты)
func (c *UserCache) Invalidate(ctx context.Context, telegramID int64) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, Key(telegramID)).Err(); err != nil {
		c.log.Warn("cache invalidate failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
	}
}
