package menu

import (
	"fmt"

	"tg_shop/internal/bot_commands"
	db "tg_shop/internal/database"
	"tg_shop/internal/utils"
	"tg_shop/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type CallBackData = models.CallBackData

var code_request = utils.Code_request

func button(text string, data CallBackData) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, code_request(data))
}

func row(buttons ...tgbotapi.InlineKeyboardButton) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(buttons...)
}

func backRow() []tgbotapi.InlineKeyboardButton {
	return row(button("Главное меню", CallBackData{Command: bot_commands.Start}))
}

// StartMenu_user - главное меню покупателя
func StartMenu_user() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(userRows()...)
}

func userRows() [][]tgbotapi.InlineKeyboardButton {
	return [][]tgbotapi.InlineKeyboardButton{
		row(button("Каталог", CallBackData{Command: bot_commands.Catalog_start})),
		row(
			button("Корзина", CallBackData{Command: bot_commands.ShowCart}),
			button("Мои заказы", CallBackData{Command: bot_commands.MyOrders}),
		),
		row(button("Профиль", CallBackData{Command: bot_commands.Profile})),
	}
}

// (АДМИН) StartMenu_admin - меню покупателя плюс управление магазином
func StartMenu_admin() tgbotapi.InlineKeyboardMarkup {
	rows := userRows()
	rows = append(rows,
		row(
			button("Товары", CallBackData{Command: bot_commands.AdminProducts}),
			button("Заказы", CallBackData{Command: bot_commands.AdminOrders}),
		),
		row(
			button("Новый товар", CallBackData{Command: bot_commands.StartCreateProduct}),
			button("Редактировать цены", CallBackData{Command: bot_commands.EditPrices}),
		),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ProductList - по кнопке на товар
func ProductList(products []models.Product) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range products {
		text := fmt.Sprintf("%s --- %s", p.Name, utils.Money(p.Price))
		rows = append(rows, row(button(text, CallBackData{Command: bot_commands.ProductDetail, ID: p.ID.String()})))
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func ProductDetail(p *models.Product) tgbotapi.InlineKeyboardMarkup {
	id := p.ID.String()
	var rows [][]tgbotapi.InlineKeyboardButton
	if p.IsActive && p.Stock > 0 {
		rows = append(rows, row(
			button("В корзину", CallBackData{Command: bot_commands.AddToCart, ID: id, Arg: "1"}),
			button("Купить сейчас", CallBackData{Command: bot_commands.BuyNow, ID: id, Arg: "1"}),
		))
	}
	rows = append(rows,
		row(button("Назад к каталогу", CallBackData{Command: bot_commands.Catalog_start})),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func Cart(items []models.CartItem) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if len(items) > 0 {
		rows = append(rows, row(
			button("Оформить заказ", CallBackData{Command: bot_commands.Checkout}),
			button("Очистить", CallBackData{Command: bot_commands.ClearCart}),
		))
	}
	rows = append(rows, row(button("Каталог", CallBackData{Command: bot_commands.Catalog_start})), backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func OrderList(orders []models.Order) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, o := range orders {
		text := fmt.Sprintf("%s · %s · %s", o.OutNo, utils.Money(o.TotalAmount), o.Status)
		rows = append(rows, row(button(text, CallBackData{Command: bot_commands.OrderDetail, ID: o.ID.String()})))
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// OrderActions - кнопка оплаты, пока заказ можно оплатить
func OrderActions(o *models.Order) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if !o.IsPaid && models.CanTransition(o.Status, models.StatusPaid) {
		rows = append(rows, row(button("Оплатить "+utils.Money(o.TotalAmount), CallBackData{Command: bot_commands.PayOrder, ID: o.ID.String()})))
	}
	rows = append(rows, row(button("Мои заказы", CallBackData{Command: bot_commands.MyOrders})), backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// (АДМИН) AdminOrderActions - только допустимые из текущего статуса переходы
func AdminOrderActions(o *models.Order) tgbotapi.InlineKeyboardMarkup {
	id := o.ID.String()
	var actions []tgbotapi.InlineKeyboardButton
	if !o.IsPaid && models.CanTransition(o.Status, models.StatusPaid) {
		actions = append(actions, button("Оплачен", CallBackData{Command: bot_commands.MarkOrderPaid, ID: id}))
	}
	if models.CanTransition(o.Status, models.StatusShipped) {
		actions = append(actions, button("Отправлен", CallBackData{Command: bot_commands.ShipOrder, ID: id}))
	}
	if models.CanTransition(o.Status, models.StatusRefunded) {
		actions = append(actions, button("Возврат", CallBackData{Command: bot_commands.RefundOrder, ID: id}))
	}
	if models.CanTransition(o.Status, models.StatusCancelled) {
		actions = append(actions, button("Отменить", CallBackData{Command: bot_commands.CancelOrder, ID: id}))
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	if len(actions) > 0 {
		rows = append(rows, row(actions...))
	}
	rows = append(rows, row(button("Все заказы", CallBackData{Command: bot_commands.AdminOrders})))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// (АДМИН) AdminOrderList - последние заказы магазина
func AdminOrderList(orders []models.Order) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, o := range orders {
		text := fmt.Sprintf("%s · %s · %s", o.OutNo, utils.Money(o.TotalAmount), o.Status)
		rows = append(rows, row(button(text, CallBackData{Command: bot_commands.AdminOrders, ID: o.ID.String()})))
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// (АДМИН) AdminProducts - активные товары с кнопкой снятия с продажи
func AdminProducts(products []models.Product) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		text := fmt.Sprintf("Снять: %s (%s)", p.Name, db.ShortID(p.ID))
		rows = append(rows, row(button(text, CallBackData{Command: bot_commands.DeactivateProduct, ID: p.ID.String()})))
	}
	rows = append(rows,
		row(button("Новый товар", CallBackData{Command: bot_commands.StartCreateProduct})),
		backRow(),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func BackToMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(backRow())
}
