package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tg_shop/internal/cache"
	"tg_shop/internal/cart"
	"tg_shop/internal/config"
	"tg_shop/internal/dbtest"
	"tg_shop/internal/events"
	"tg_shop/internal/metrics"
	"tg_shop/internal/orders"
	"tg_shop/internal/payment"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const apiKey = "test-key"

type env struct {
	router *gin.Engine
	db     *gorm.DB
	orders *orders.Service
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	DB := dbtest.New(t)
	log := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	osvc := orders.New(DB, events.Noop{}, m, log)
	r := NewRouter(Deps{
		DB:       DB,
		Users:    cache.NewUserCache(nil, DB, cache.DefaultTTL, log),
		Cart:     cart.New(DB, log),
		Orders:   osvc,
		Payments: payment.New(osvc, config.NewTunables(true, "", 5, "INFO"), apiKey, log),
		Metrics:  m,
		Log:      log,
	})
	return &env{router: r, db: DB, orders: osvc}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := setup(t)
	if w := e.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
	w := e.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `shop_http_requests_total{handler="/health",status="200"} 1`) {
		t.Errorf("metrics:\n%s", w.Body.String())
	}
}

func TestProducts(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"ok", `{"name":"Green tea","price":"12.5","stock":3}`, http.StatusCreated},
		{"numeric price", `{"name":"Black tea","price":7,"stock":1}`, http.StatusCreated},
		{"zero price", `{"name":"Free","price":"0","stock":1}`, http.StatusBadRequest},
		{"with image", `{"name":"Puer","price":"30","stock":1,"image_url":"https://img.example.com/puer.jpg"}`, http.StatusCreated},
		{"bad image url", `{"name":"Puer 2","price":"30","stock":1,"image_url":"not a url"}`, http.StatusBadRequest},
		{"missing name", `{"price":"1"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := e.do(t, http.MethodPost, "/products", tt.body); w.Code != tt.code {
				t.Errorf("code = %d, want %d: %s", w.Code, tt.code, w.Body.String())
			}
		})
	}

	var list []map[string]interface{}
	decode(t, e.do(t, http.MethodGet, "/products?search=green", ""), &list)
	if len(list) != 1 || list[0]["name"] != "Green tea" || list[0]["price"] != "12.5" {
		t.Errorf("search result = %v", list)
	}
	decode(t, e.do(t, http.MethodGet, "/products?search=puer", ""), &list)
	if len(list) != 1 || list[0]["image_url"] != "https://img.example.com/puer.jpg" {
		t.Errorf("image product = %v", list)
	}
}

func TestGetUser(t *testing.T) {
	e := setup(t)
	dbtest.User(t, e.db, 42)

	var u map[string]interface{}
	w := e.do(t, http.MethodGet, "/users/42", "")
	decode(t, w, &u)
	if w.Code != http.StatusOK || u["telegram_id"] != float64(42) || u["role"] != "user" {
		t.Errorf("user = %d %v", w.Code, u)
	}
	if w := e.do(t, http.MethodGet, "/users/43", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing user code = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/users/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id code = %d", w.Code)
	}
}

func TestCartOrderPaymentFlow(t *testing.T) {
	e := setup(t)
	u := dbtest.User(t, e.db, 1)
	a := dbtest.Product(t, e.db, "A", "10", 5)
	b := dbtest.Product(t, e.db, "B", "5", 1)

	add := func(productID string, qty int) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]interface{}{"user_id": u.ID, "product_id": productID, "quantity": qty})
		return e.do(t, http.MethodPost, "/cart/add", string(body))
	}
	if w := add(a.ID.String(), 2); w.Code != http.StatusOK {
		t.Fatalf("add A = %d %s", w.Code, w.Body.String())
	}
	if w := add(b.ID.String(), 2); w.Code != http.StatusConflict {
		t.Errorf("add B over stock = %d", w.Code)
	}
	if w := add(b.ID.String(), 1); w.Code != http.StatusOK {
		t.Fatalf("add B = %d", w.Code)
	}

	var cartOut struct {
		Items []cartItemOut `json:"items"`
		Total string        `json:"total"`
	}
	decode(t, e.do(t, http.MethodGet, "/cart/"+u.ID.String(), ""), &cartOut)
	if len(cartOut.Items) != 2 || cartOut.Total != "25" {
		t.Fatalf("cart = %+v", cartOut)
	}

	order, err := e.orders.Checkout(context.Background(), u.ID)
	if err != nil {
		t.Fatal(err)
	}

	var list []orderOut
	decode(t, e.do(t, http.MethodGet, "/orders/"+u.ID.String(), ""), &list)
	if len(list) != 1 || len(list[0].Items) != 2 || !list[0].TotalAmount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("orders = %+v", list)
	}

	var pay map[string]interface{}
	w := e.do(t, http.MethodPost, "/pay", `{"order_id":"`+order.ID.String()+`"}`)
	decode(t, w, &pay)
	if w.Code != http.StatusOK || !strings.Contains(pay["payment_url"].(string), "amount=25.00") || pay["amount"] != "25" {
		t.Fatalf("pay = %d %v", w.Code, pay)
	}

	amount := decimal.NewFromInt(25)
	bad, _ := json.Marshal(payment.Callback{OutNo: order.OutNo, Amount: amount, Sign: "nope"})
	if w := e.do(t, http.MethodPost, "/payment/callback", string(bad)); w.Code != http.StatusForbidden {
		t.Errorf("bad signature code = %d", w.Code)
	}
	good, _ := json.Marshal(payment.Callback{OutNo: order.OutNo, Amount: amount, PaymentID: "p1", Sign: payment.Sign(apiKey, order.OutNo, amount)})
	var paid orderOut
	w = e.do(t, http.MethodPost, "/payment/callback", string(good))
	decode(t, w, &paid)
	if w.Code != http.StatusOK || !paid.IsPaid || paid.Status != "paid" {
		t.Errorf("callback = %d %+v", w.Code, paid)
	}

	if w := e.do(t, http.MethodPost, "/pay", `{"order_id":"`+order.ID.String()+`"}`); w.Code != http.StatusConflict {
		t.Errorf("pay twice code = %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(context.DeadlineExceeded); got != http.StatusInternalServerError {
		t.Errorf("got %d", got)
	}
}
