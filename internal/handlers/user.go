package handlers

import (
	"context"
	"fmt"
	"strconv"

	"tg_shop/auth"
	"tg_shop/internal/cart"
	db "tg_shop/internal/database"
	menu "tg_shop/internal/keyboards"
	messages "tg_shop/internal/msg_gen"
	"tg_shop/internal/payment"
	"tg_shop/internal/utils"
	"tg_shop/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxAddQuantity = 100

func (d *Dispatcher) start(ctx context.Context, c *call) error {
	text := messages.Welcome(c.user)
	if !auth.Can(c.user, auth.ManageProducts) {
		d.replyWithKeyboard(c.chatID, text, menu.StartMenu_user())
		return nil
	}
	if st, err := d.orders.Stats(ctx); err == nil {
		text += "\n\n" + messages.Stats(st)
	}
	d.replyWithKeyboard(c.chatID, text, menu.StartMenu_admin())
	return nil
}

func (d *Dispatcher) help(_ context.Context, c *call) error {
	d.reply(c.chatID, messages.Help(auth.IsStaff(c.user)))
	return nil
}

// products: "/products 2" - страница, "/products чай" - поиск
func (d *Dispatcher) products(ctx context.Context, c *call) error {
	page, search := 1, c.args
	if n, err := strconv.Atoi(c.args); err == nil {
		page, search = n, ""
	}
	list, err := db.ListActiveProducts(ctx, d.db, search)
	if err != nil {
		return err
	}

	perPage := d.tunables.ItemsPerPage()
	pages := (len(list) + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	page = min(max(page, 1), pages)
	from := (page - 1) * perPage
	to := min(from+perPage, len(list))
	list = list[from:to]

	d.replyWithKeyboard(c.chatID, messages.ProductList(list, page, pages), menu.ProductList(list))
	return nil
}

func (d *Dispatcher) product(ctx context.Context, c *call) error {
	if c.args == "" {
		return usage("/product <ID>")
	}
	p, err := db.FindProduct(ctx, d.db, c.args)
	if err != nil {
		return err
	}
	text, kb := messages.ProductDetail(p), menu.ProductDetail(p)
	var file tgbotapi.RequestFileData
	switch {
	case p.ImageFileID != "":
		file = tgbotapi.FileID(p.ImageFileID)
	case p.ImageURL != "":
		file = tgbotapi.FileURL(p.ImageURL)
	default:
		d.replyWithKeyboard(c.chatID, text, kb)
		return nil
	}
	if err := utils.SendPhotoFile(d.bot, c.chatID, file, text, kb); err != nil {
		d.log.Warn("send product photo failed", zap.String("product_id", p.ID.String()), zap.Error(err))
		d.replyWithKeyboard(c.chatID, text, kb)
	}
	return nil
}

// productAndQty разбирает "<ID> [кол-во]"
func (d *Dispatcher) productAndQty(ctx context.Context, c *call, cmd string) (*models.Product, int, error) {
	f := c.fields()
	if len(f) == 0 || len(f) > 2 {
		return nil, 0, usage(cmd + " <ID> [кол-во]")
	}
	qtyArg := ""
	if len(f) == 2 {
		qtyArg = f[1]
	}
	qty, err := messages.ParseQuantity(qtyArg)
	if err != nil {
		return nil, 0, err
	}
	if qty > maxAddQuantity {
		return nil, 0, fmt.Errorf("%w: не больше %d за раз", models.ErrInvalidQuantity, maxAddQuantity)
	}
	p, err := db.FindProduct(ctx, d.db, f[0])
	if err != nil {
		return nil, 0, err
	}
	return p, qty, nil
}

func (d *Dispatcher) add(ctx context.Context, c *call) error {
	p, qty, err := d.productAndQty(ctx, c, "/add")
	if err != nil {
		return err
	}
	item, err := d.cart.Add(ctx, c.user.ID, p.ID, qty)
	if err != nil {
		return err
	}
	d.reply(c.chatID, messages.AddedToCart(p.Name, qty, item.Quantity))
	return nil
}

func (d *Dispatcher) remove(ctx context.Context, c *call) error {
	if c.args == "" {
		return usage("/remove <ID>")
	}
	p, err := db.FindProduct(ctx, d.db, c.args)
	if err != nil {
		return err
	}
	if err := d.cart.Remove(ctx, c.user.ID, p.ID); err != nil {
		return err
	}
	d.reply(c.chatID, "Товар убран из корзины.")
	return nil
}

func (d *Dispatcher) setQty(ctx context.Context, c *call) error {
	f := c.fields()
	if len(f) != 2 {
		return usage("/setqty <ID> <кол-во>")
	}
	qty, err := strconv.Atoi(f[1])
	if err != nil {
		return models.ErrInvalidQuantity
	}
	p, err := db.FindProduct(ctx, d.db, f[0])
	if err != nil {
		return err
	}
	item, err := d.cart.UpdateQuantity(ctx, c.user.ID, p.ID, qty)
	if err != nil {
		return err
	}
	if item == nil {
		d.reply(c.chatID, "Товар убран из корзины.")
		return nil
	}
	d.reply(c.chatID, messages.QuantityUpdated(item.ProductName, item.Quantity))
	return nil
}

func (d *Dispatcher) showCart(ctx context.Context, c *call) error {
	items, err := d.cart.Items(ctx, c.user.ID)
	if err != nil {
		return err
	}
	d.replyWithKeyboard(c.chatID, messages.Cart(items, utils.Money(cart.Total(items))), menu.Cart(items))
	return nil
}

func (d *Dispatcher) clearCart(ctx context.Context, c *call) error {
	if _, err := d.cart.Clear(ctx, c.user.ID); err != nil {
		return err
	}
	d.reply(c.chatID, "Корзина очищена.")
	return nil
}

func (d *Dispatcher) checkout(ctx context.Context, c *call) error {
	order, err := d.orders.Checkout(ctx, c.user.ID)
	if err != nil {
		return err
	}
	d.orderCreated(c, order)
	return nil
}

func (d *Dispatcher) buy(ctx context.Context, c *call) error {
	p, qty, err := d.productAndQty(ctx, c, "/buy")
	if err != nil {
		return err
	}
	order, err := d.orders.BuyNow(ctx, c.user.ID, p.ID, qty)
	if err != nil {
		return err
	}
	d.orderCreated(c, order)
	return nil
}

func (d *Dispatcher) orderCreated(c *call, order *models.Order) {
	d.replyWithKeyboard(c.chatID, messages.OrderCreated(order), menu.OrderActions(order))

	// Рассылка админам нового заказа
	notice := messages.NewOrderNotice(order, c.user)
	for _, admin := range d.auth.AdminIDs() {
		if admin == c.chatID {
			continue
		}
		d.reply(admin, notice)
	}
}

// ownOrder находит заказ; чужие заказы видит только персонал с правом на заказы
func (d *Dispatcher) ownOrder(ctx context.Context, c *call, ref string) (*models.Order, error) {
	order, err := d.orders.Find(ctx, ref)
	if err != nil {
		return nil, err
	}
	if order.UserID != c.user.ID && !auth.Can(c.user, auth.ManageOrders) {
		return nil, models.ErrOrderNotFound
	}
	return order, nil
}

// pay без аргументов оплачивает последний неоплаченный заказ
func (d *Dispatcher) pay(ctx context.Context, c *call) error {
	var (
		order *models.Order
		err   error
	)
	if c.args == "" {
		order, err = d.orders.LatestUnpaid(ctx, c.user.ID)
	} else {
		order, err = d.ownOrder(ctx, c, c.args)
	}
	if err != nil {
		return err
	}

	p, err := d.payments.CreatePayment(ctx, order.ID)
	if err != nil {
		return err
	}
	caption := messages.PaymentCaption(p.OutNo, p.URL, p.Sandbox)
	png, err := payment.GenerateQR(p.URL)
	if err != nil {
		d.log.Warn("qr generation failed", zap.String("out_no", p.OutNo), zap.Error(err))
		d.reply(c.chatID, caption)
		return nil
	}
	if err := utils.SendPhoto(d.bot, c.chatID, png, caption); err != nil {
		d.log.Warn("send qr failed", zap.Int64("chat_id", c.chatID), zap.Error(err))
		d.reply(c.chatID, caption)
	}
	return nil
}

func (d *Dispatcher) order(ctx context.Context, c *call) error {
	if c.args == "" {
		return usage("/order <ID>")
	}
	order, err := d.ownOrder(ctx, c, c.args)
	if err != nil {
		return err
	}
	d.replyWithKeyboard(c.chatID, messages.Order(order), menu.OrderActions(order))
	return nil
}

func (d *Dispatcher) myOrders(ctx context.Context, c *call) error {
	list, err := d.orders.GetByUser(ctx, c.user.ID)
	if err != nil {
		return err
	}
	d.replyWithKeyboard(c.chatID, messages.OrderList(list), menu.OrderList(list))
	return nil
}

func (d *Dispatcher) profile(_ context.Context, c *call) error {
	d.replyWithKeyboard(c.chatID, messages.Profile(c.user), menu.BackToMenu())
	return nil
}

func (d *Dispatcher) register(ctx context.Context, c *call) error {
	f := c.fields()
	if len(f) != 2 {
		return usage("/register <email> <телефон>")
	}
	user, err := db.UpdateContacts(ctx, d.db, c.user.TelegramID, f[0], f[1])
	if err != nil {
		return err
	}
	d.users.Invalidate(ctx, user.TelegramID)
	d.reply(c.chatID, "Контакты сохранены.\n\n"+messages.Profile(user))
	return nil
}
