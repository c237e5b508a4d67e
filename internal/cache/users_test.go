package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tg_shop/internal/dbtest"
	"tg_shop/models"

	"github.com/go-redis/redismock/v9"
	"go.uber.org/zap"
)

func TestGetHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewUserCache(rdb, nil, time.Hour, zap.NewNop())

	cached, _ := json.Marshal(models.User{TelegramID: 42, Username: "alice", Role: models.RoleAdmin})
	mock.ExpectGet("user:42").SetVal(string(cached))

	u, err := c.Get(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" || u.Role != models.RoleAdmin {
		t.Errorf("unexpected user %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetMissLoadsFromDB(t *testing.T) {
	DB := dbtest.New(t)
	dbtest.User(t, DB, 42)

	rdb, mock := redismock.NewClientMock()
	c := NewUserCache(rdb, DB, time.Hour, zap.NewNop())

	mock.ExpectGet("user:42").RedisNil()
	mock.ExpectGet("user:42").RedisNil()
	mock.Regexp().ExpectSet("user:42", `"telegram_id":42`, time.Hour).SetVal("OK")

	u, err := c.Get(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if u.TelegramID != 42 {
		t.Errorf("telegram id = %d", u.TelegramID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetWithoutRedis(t *testing.T) {
	DB := dbtest.New(t)
	c := NewUserCache(nil, DB, 0, zap.NewNop())

	if _, err := c.Get(context.Background(), 1); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("got %v, want user not found", err)
	}
	dbtest.User(t, DB, 1)
	if _, err := c.Get(context.Background(), 1); err != nil {
		t.Error(err)
	}
	c.Invalidate(context.Background(), 1)
}

func TestInvalidate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewUserCache(rdb, nil, time.Hour, zap.NewNop())

	mock.ExpectDel("user:7").SetVal(1)
	c.Invalidate(context.Background(), 7)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
