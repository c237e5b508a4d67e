package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Refresher периодически подтягивает настройки из ключа Redis config:<env>
type Refresher struct {
	rdb      redis.Cmdable
	key      string
	tunables *Tunables
	log      *zap.Logger

	// OnChange вызывается с именами настроек, изменённых обновлением
	OnChange func(changed []string)
}

func NewRefresher(rdb redis.Cmdable, env string, t *Tunables, log *zap.Logger) *Refresher {
	return &Refresher{rdb: rdb, key: "config:" + env, tunables: t, log: log}
}

func (r *Refresher) Key() string { return r.key }

// Refresh применяет один снимок. Отсутствие ключа не ошибка.
func (r *Refresher) Refresh(ctx context.Context) error {
	raw, err := r.rdb.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		r.log.Debug("runtime config not found in redis", zap.String("key", r.key))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", r.key, err)
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return fmt.Errorf("decode %s: %w", r.key, err)
	}

	changed, err := r.tunables.Apply(values)
	if len(changed) > 0 {
		r.log.Info("runtime config updated", zap.Strings("changed", changed))
		if r.OnChange != nil {
			r.OnChange(changed)
		}
	}
	return err
}

// Run обновляет настройки каждые interval до отмены ctx
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn("runtime config refresh failed", zap.Error(err))
			}
		}
	}
}
