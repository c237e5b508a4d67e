package messages

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tg_shop/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func product(name, price string, stock int) models.Product {
	p := models.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock, IsActive: true}
	p.ID = uuid.New()
	return p
}

func TestPriceListRoundTrip(t *testing.T) {
	a, b := product("Чай", "10", 3), product("Кофе | зерно", "7.5", 0)
	msg := MakeMessage_PriceListForEdit([]models.Product{a, b})
	if !strings.Contains(msg, priceListHeader) {
		t.Fatalf("header missing:\n%s", msg)
	}

	edited := strings.Replace(msg, "| 10.00 | 3", "| 12,40 | 5", 1)
	updates, err := ParsePriceList(edited)
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates", len(updates))
	}
	if updates[0].ID != a.ID || updates[0].Price.String() != "12.4" || updates[0].Stock != 5 {
		t.Errorf("first update = %+v", updates[0])
	}
	if updates[1].ID != b.ID || updates[1].Stock != 0 {
		t.Errorf("second update = %+v", updates[1])
	}
}

func TestParsePriceListErrors(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		msg  string
	}{
		{"no rows", "ID | Название | Цена | Кол-во\n----"},
		{"bad price", fmt.Sprintf("%s | A | abc | 1", id)},
		{"zero price", fmt.Sprintf("%s | A | 0 | 1", id)},
		{"negative stock", fmt.Sprintf("%s | A | 1 | -1", id)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePriceList(tt.msg); !errors.Is(err, models.ErrValidation) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestParseCreateProductArgs(t *testing.T) {
	p, err := ParseCreateProductArgs("Зелёный чай 12.5 10")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Зелёный чай" || p.Price.StringFixed(2) != "12.50" || p.Stock != 10 {
		t.Errorf("product = %+v", p)
	}

	for _, args := range []string{"", "Чай 10", "Чай x 1", "Чай 1 -2"} {
		if _, err := ParseCreateProductArgs(args); !errors.Is(err, models.ErrValidation) {
			t.Errorf("%q: got %v", args, err)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"", 1, true},
		{"3", 3, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"x", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseQuantity(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseQuantity(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{models.ErrInsufficientStock, "Недостаточно товара на складе."},
		{fmt.Errorf("checkout: %w", models.ErrEmptyCart), "Корзина пуста."},
		{models.ErrOrderNotFound, "Заказ не найден."},
		{fmt.Errorf("%w: name is required", models.ErrValidation), "Ошибка ввода: name is required"},
		{errors.New("pq: connection refused"), "Произошла ошибка. Попробуйте позже."},
	}
	for _, tt := range tests {
		if got := ErrorText(tt.err); got != tt.want {
			t.Errorf("ErrorText(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCartText(t *testing.T) {
	if Cart(nil, "") != "Корзина пуста." {
		t.Error("empty cart text")
	}
	items := []models.CartItem{{ProductName: "<b>A</b>", Quantity: 2, UnitPrice: decimal.RequireFromString("12.5")}}
	text := Cart(items, "¥25.00")
	if !strings.Contains(text, "&lt;b&gt;A&lt;/b&gt; × 2 = ¥25.00") || !strings.Contains(text, "Итого: ¥25.00") {
		t.Errorf("cart text:\n%s", text)
	}
}

func TestUsersPagination(t *testing.T) {
	users := []models.User{{TelegramID: 7, Username: "bob", Role: models.RoleUser, IsBlocked: true}}
	text := Users(users, 11, 1, 5)
	if !strings.Contains(text, "страница 1/3") || !strings.Contains(text, "/users 2") || !strings.Contains(text, "[заблокирован]") {
		t.Errorf("users text:\n%s", text)
	}
	if strings.Contains(Users(users, 11, 3, 5), "/users 4") {
		t.Error("last page links further")
	}
}

func TestSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if got := Since(now.Add(-5*time.Minute), now); got != "5 мин назад" {
		t.Errorf("got %q", got)
	}
	if got := Since(now.Add(-48*time.Hour), now); got != "29.04.2024" {
		t.Errorf("got %q", got)
	}
}

func TestUserTextsEscaped(t *testing.T) {
	u := &models.User{
		TelegramID: 7,
		Username:   "a<b",
		FirstName:  "<Bob",
		LastName:   "&Co",
		Email:      "x@y.z",
		Phone:      "<1>",
		Role:       models.RoleUser,
	}
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"userinfo", UserInfo(u), []string{"Username: a&lt;b", "Имя: &lt;Bob &amp;Co", "телефон: &lt;1&gt;"}},
		{"profile", Profile(u), []string{"@a&lt;b", "Телефон: &lt;1&gt;"}},
		{"payment", PaymentCaption("N1", "https://pay/?a=1&b=2", true), []string{"a=1&amp;b=2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, w := range tt.want {
				if !strings.Contains(tt.text, w) {
					t.Errorf("missing %q in:\n%s", w, tt.text)
				}
			}
			for _, raw := range []string{"<Bob", "a<b", "&Co", "<1>"} {
				if strings.Contains(tt.text, raw) {
					t.Errorf("raw %q in:\n%s", raw, tt.text)
				}
			}
		})
	}
}
