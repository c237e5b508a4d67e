package session

import (
	"context"
	"testing"
	"time"

	"tg_shop/internal/bot_commands"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	d, _ := s.Get(ctx, 1)
	if d.Step != bot_commands.None {
		t.Fatalf("empty store step = %d", d.Step)
	}

	s.Set(ctx, 1, ProductDraft{Step: bot_commands.Wait_for_product_price, Name: "Tea"})
	s.Set(ctx, 2, ProductDraft{Step: bot_commands.Wait_for_product_name})

	d, _ = s.Get(ctx, 1)
	if d.Step != bot_commands.Wait_for_product_price || d.Name != "Tea" {
		t.Errorf("chat 1 draft = %+v", d)
	}
	s.Clear(ctx, 1)
	if d, _ = s.Get(ctx, 1); d.Step != bot_commands.None {
		t.Errorf("cleared draft step = %d", d.Step)
	}
	if d, _ = s.Get(ctx, 2); d.Step != bot_commands.Wait_for_product_name {
		t.Errorf("other chat affected: %+v", d)
	}
}

func TestRedisStoreGetMissing(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewRedisStore(rdb, 0)

	mock.ExpectGet("session:5").RedisNil()
	d, err := s.Get(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if d.Step != bot_commands.None {
		t.Errorf("step = %d", d.Step)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()

	mock.ExpectSet("session:5", `{"step":2,"name":"Tea","price":"3.5","stock":0}`, time.Minute).SetVal("OK")
	err := s.Set(ctx, 5, ProductDraft{Step: bot_commands.Wait_for_product_price, Name: "Tea", Price: decimal.RequireFromString("3.5")})
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectGet("session:5").SetVal(`{"step":3,"name":"Tea","price":"3.5","stock":4}`)
	d, err := s.Get(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if d.Step != bot_commands.Wait_for_product_stock || d.Stock != 4 || !d.Price.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("draft = %+v", d)
	}

	mock.ExpectDel("session:5").SetVal(1)
	if err := s.Clear(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
