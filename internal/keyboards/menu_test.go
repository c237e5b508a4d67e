package menu

import (
	"testing"

	"tg_shop/internal/bot_commands"
	"tg_shop/internal/utils"
	"tg_shop/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func commands(kb tgbotapi.InlineKeyboardMarkup) []string {
	var res []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			res = append(res, utils.Decode_request(*b.CallbackData).Command)
		}
	}
	return res
}

func order(status models.OrderStatus, paid bool) *models.Order {
	o := &models.Order{Status: status, IsPaid: paid, TotalAmount: decimal.NewFromInt(10)}
	o.ID = uuid.New()
	return o
}

func TestAdminOrderActions(t *testing.T) {
	tests := []struct {
		status models.OrderStatus
		paid   bool
		want   []string
	}{
		{models.StatusPending, false, []string{bot_commands.MarkOrderPaid, bot_commands.CancelOrder, bot_commands.AdminOrders}},
		{models.StatusPaid, true, []string{bot_commands.ShipOrder, bot_commands.RefundOrder, bot_commands.CancelOrder, bot_commands.AdminOrders}},
		{models.StatusShipped, true, []string{bot_commands.RefundOrder, bot_commands.AdminOrders}},
		{models.StatusCancelled, false, []string{bot_commands.AdminOrders}},
	}
	for _, tt := range tests {
		got := commands(AdminOrderActions(order(tt.status, tt.paid)))
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.status, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.status, got, tt.want)
				break
			}
		}
	}
}

func TestOrderActionsHidePayWhenPaid(t *testing.T) {
	for _, c := range commands(OrderActions(order(models.StatusPaid, true))) {
		if c == bot_commands.PayOrder {
			t.Error("pay button on paid order")
		}
	}
	if commands(OrderActions(order(models.StatusUnpaid, false)))[0] != bot_commands.PayOrder {
		t.Error("no pay button on unpaid order")
	}
}

func TestProductDetailOutOfStock(t *testing.T) {
	p := &models.Product{Name: "A", Stock: 0, IsActive: true}
	p.ID = uuid.New()
	for _, c := range commands(ProductDetail(p)) {
		if c == bot_commands.AddToCart || c == bot_commands.BuyNow {
			t.Error("buy buttons on out of stock product")
		}
	}
}

func TestCallbackDataWithinLimit(t *testing.T) {
	p := models.Product{Name: "A", Price: decimal.NewFromInt(1), Stock: 1, IsActive: true}
	p.ID = uuid.New()
	for _, kb := range []tgbotapi.InlineKeyboardMarkup{ProductList([]models.Product{p}), ProductDetail(&p), AdminProducts([]models.Product{p})} {
		for _, row := range kb.InlineKeyboard {
			for _, b := range row {
				if len(*b.CallbackData) > 64 {
					t.Errorf("callback data %q exceeds 64 bytes", *b.CallbackData)
				}
			}
		}
	}
}
