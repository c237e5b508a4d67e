package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"tg_shop/auth"
	"tg_shop/internal/bot_commands"
	"tg_shop/internal/cache"
	"tg_shop/internal/cart"
	"tg_shop/internal/config"
	db "tg_shop/internal/database"
	"tg_shop/internal/metrics"
	messages "tg_shop/internal/msg_gen"
	"tg_shop/internal/orders"
	"tg_shop/internal/payment"
	"tg_shop/internal/session"
	"tg_shop/internal/utils"
	"tg_shop/models"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var decode_request = utils.Decode_request

// Dispatcher разбирает апдейты Telegram и вызывает сервисы магазина
type Dispatcher struct {
	db       *gorm.DB
	bot      utils.Sender
	auth     *auth.BotAuth
	cart     *cart.Service
	orders   *orders.Service
	payments *payment.Service
	users    *cache.UserCache
	sessions session.Store
	metrics  *metrics.Metrics
	tunables *config.Tunables
	log      *zap.Logger
}

type Deps struct {
	DB       *gorm.DB
	Bot      utils.Sender
	Auth     *auth.BotAuth
	Cart     *cart.Service
	Orders   *orders.Service
	Payments *payment.Service
	Users    *cache.UserCache
	Sessions session.Store
	Metrics  *metrics.Metrics
	Tunables *config.Tunables
	Log      *zap.Logger
}

func New(d Deps) *Dispatcher {
	if d.Sessions == nil {
		d.Sessions = session.NewMemoryStore()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop()
	}
	return &Dispatcher{
		db:       d.DB,
		bot:      d.Bot,
		auth:     d.Auth,
		cart:     d.Cart,
		orders:   d.Orders,
		payments: d.Payments,
		users:    d.Users,
		sessions: d.Sessions,
		metrics:  d.Metrics,
		tunables: d.Tunables,
		log:      d.Log.Named("bot"),
	}
}

// call - контекст одного вызова команды: кто, в каком чате и с какими аргументами
type call struct {
	chatID int64
	user   *models.User
	args   string
}

func (c *call) fields() []string { return strings.Fields(c.args) }

type route struct {
	action auth.Action // пусто - команда доступна всем
	run    func(d *Dispatcher, ctx context.Context, c *call) error
}

var commands = map[string]route{
	"start":    {run: (*Dispatcher).start},
	"menu":     {run: (*Dispatcher).start},
	"help":     {run: (*Dispatcher).help},
	"products": {run: (*Dispatcher).products},
	"product":  {run: (*Dispatcher).product},
	"add":      {run: (*Dispatcher).add},
	"remove":   {run: (*Dispatcher).remove},
	"setqty":   {run: (*Dispatcher).setQty},
	"cart":     {run: (*Dispatcher).showCart},
	"clear":    {run: (*Dispatcher).clearCart},
	"checkout": {run: (*Dispatcher).checkout},
	"buy":      {run: (*Dispatcher).buy},
	"pay":      {run: (*Dispatcher).pay},
	"order":    {run: (*Dispatcher).order},
	"myorders": {run: (*Dispatcher).myOrders},
	"profile":  {run: (*Dispatcher).profile},
	"register": {run: (*Dispatcher).register},

	"admin":          {action: auth.ManageProducts, run: (*Dispatcher).adminMenu},
	"ban":            {action: auth.Ban, run: (*Dispatcher).ban},
	"unban":          {action: auth.Unban, run: (*Dispatcher).unban},
	"setadmin":       {action: auth.SetRole, run: (*Dispatcher).setRole},
	"resetpw":        {action: auth.ResetPassword, run: (*Dispatcher).resetPassword},
	"userinfo":       {action: auth.UserInfo, run: (*Dispatcher).userInfo},
	"users":          {action: auth.ListUsers, run: (*Dispatcher).listUsers},
	"setconfig":      {action: auth.SetConfig, run: (*Dispatcher).setConfig},
	"getconfig":      {action: auth.GetConfig, run: (*Dispatcher).getConfig},
	"listconfig":     {action: auth.GetConfig, run: (*Dispatcher).listConfig},
	"create_product": {action: auth.ManageProducts, run: (*Dispatcher).createProduct},
	"admin_products": {action: auth.ManageProducts, run: (*Dispatcher).adminProducts},
	"deactivate":     {action: auth.ManageProducts, run: (*Dispatcher).deactivate},
	"editprices":     {action: auth.ManageProducts, run: (*Dispatcher).editPrices},
	"orders":         {action: auth.ManageOrders, run: (*Dispatcher).adminOrders},
	"ship":           {action: auth.ManageOrders, run: (*Dispatcher).ship},
	"refund":         {action: auth.ManageOrders, run: (*Dispatcher).refund},
	"markpaid":       {action: auth.ManageOrders, run: (*Dispatcher).markPaid},
	"cancel":         {action: auth.ManageOrders, run: (*Dispatcher).cancel},
	"stats":          {action: auth.ViewStats, run: (*Dispatcher).stats},
}

// Кнопки вызывают те же команды: ID и Arg из callback_data становятся аргументами
var callbacks = map[string]string{
	bot_commands.Start:              "start",
	bot_commands.Catalog_start:      "products",
	bot_commands.ProductDetail:      "product",
	bot_commands.AddToCart:          "add",
	bot_commands.BuyNow:             "buy",
	bot_commands.ShowCart:           "cart",
	bot_commands.Checkout:           "checkout",
	bot_commands.ClearCart:          "clear",
	bot_commands.MyOrders:           "myorders",
	bot_commands.OrderDetail:        "order",
	bot_commands.PayOrder:           "pay",
	bot_commands.Profile:            "profile",
	bot_commands.AdminMenu:          "admin",
	bot_commands.AdminProducts:      "admin_products",
	bot_commands.DeactivateProduct:  "deactivate",
	bot_commands.AdminOrders:        "orders",
	bot_commands.ShipOrder:          "ship",
	bot_commands.RefundOrder:        "refund",
	bot_commands.MarkOrderPaid:      "markpaid",
	bot_commands.CancelOrder:        "cancel",
	bot_commands.StartCreateProduct: "create_product",
	bot_commands.EditPrices:         "editprices",
}

// Кнопки навигации по меню заменяют сообщение, на котором нажаты
var replacesMessage = map[string]bool{
	bot_commands.Start:         true,
	bot_commands.AdminMenu:     true,
	bot_commands.Catalog_start: true,
}

// HandleUpdate обрабатывает один апдейт. Ошибки не возвращаются: пользователь получает
// текст ошибки, а всё, что не относится к бизнес-правилам, пишется в лог.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in update handler", zap.Int("update_id", update.UpdateID), zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		d.metrics.BotUpdate("callback")
		d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		d.metrics.BotUpdate("message")
		d.handleMessage(ctx, update.Message)
	case update.EditedMessage != nil:
		d.metrics.BotUpdate("edited_message")
		d.handleMessage(ctx, update.EditedMessage)
	default:
		d.metrics.BotUpdate("unsupported")
		d.log.Debug("unsupported update", zap.Int("update_id", update.UpdateID))
	}
}

// Webhook - POST-обработчик для режима webhook
func (d *Dispatcher) Webhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		d.log.Warn("invalid webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	d.HandleUpdate(c.Request.Context(), update)
	c.Status(http.StatusOK)
}

// Poll читает апдейты long polling до отмены ctx
func (d *Dispatcher) Poll(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			d.HandleUpdate(ctx, update)
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	user, err := d.actor(ctx, msg.From)
	if err != nil {
		d.replyErr(chatID, err)
		return
	}

	if len(msg.Photo) > 0 {
		d.handlePhoto(ctx, chatID, user, msg)
		return
	}
	if !msg.IsCommand() {
		d.handleText(ctx, chatID, user, msg.Text)
		return
	}

	name := strings.ToLower(msg.Command())
	args := strings.TrimSpace(msg.CommandArguments())
	if d.handleWizardCommand(ctx, chatID, user, name, args) {
		return
	}
	d.metrics.BotUpdate("command")
	d.dispatch(ctx, name, &call{chatID: chatID, user: user, args: args})
}

func (d *Dispatcher) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if err := utils.AnswerCallback(d.bot, query.ID, ""); err != nil {
		d.log.Debug("answer callback failed", zap.Error(err))
	}
	if query.Message == nil || query.Message.Chat == nil || query.From == nil {
		return
	}
	chatID := query.Message.Chat.ID
	user, err := d.actor(ctx, query.From)
	if err != nil {
		d.replyErr(chatID, err)
		return
	}

	data := decode_request(query.Data)
	name, ok := callbacks[data.Command]
	if !ok {
		d.log.Warn("unknown callback", zap.String("data", query.Data))
		d.reply(chatID, "Неизвестная команда")
		return
	}
	args := strings.TrimSpace(data.ID + " " + data.Arg)
	d.dispatch(ctx, name, &call{chatID: chatID, user: user, args: args})
	if replacesMessage[data.Command] {
		if err := utils.DeleteMessage(d.bot, chatID, query.Message.MessageID); err != nil {
			d.log.Debug("delete message failed", zap.Error(err))
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, c *call) {
	r, ok := commands[name]
	if !ok {
		d.reply(c.chatID, "Неизвестная команда. Список команд: /help")
		return
	}
	if r.action != "" && !auth.Can(c.user, r.action) {
		d.log.Info("forbidden command",
			zap.String("command", name),
			zap.Int64("telegram_id", c.user.TelegramID),
			zap.String("role", string(c.user.Role)))
		d.replyErr(c.chatID, models.ErrForbidden)
		return
	}
	if err := r.run(d, ctx, c); err != nil {
		d.replyErr(c.chatID, err)
	}
}

// actor находит или регистрирует отправителя; заблокированным отказываем
func (d *Dispatcher) actor(ctx context.Context, from *tgbotapi.User) (*models.User, error) {
	user, created, err := db.GetOrCreateUser(ctx, d.db, models.TelegramProfile{
		ID:           from.ID,
		Username:     from.UserName,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
	}, d.auth.AdminIDs())
	if err != nil {
		return nil, err
	}
	if created {
		d.log.Info("new user", zap.Int64("telegram_id", user.TelegramID), zap.String("role", string(user.Role)))
	}
	if user.IsBlocked {
		return nil, models.ErrUserBlocked
	}
	return user, nil
}

func (d *Dispatcher) reply(chatID int64, text string) {
	if err := utils.SendMessage(d.bot, chatID, text); err != nil {
		d.log.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Dispatcher) replyWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	if err := utils.SendWithKeyboard(d.bot, chatID, text, kb); err != nil {
		d.log.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Dispatcher) replyErr(chatID int64, err error) {
	if !models.IsDomain(err) {
		d.log.Error("request failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	d.reply(chatID, messages.ErrorText(err))
}

func usage(text string) error {
	return fmt.Errorf("%w: usage: %s", models.ErrValidation, text)
}
