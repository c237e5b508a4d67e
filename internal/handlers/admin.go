package handlers

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"tg_shop/auth"
	"tg_shop/internal/bot_commands"
	db "tg_shop/internal/database"
	menu "tg_shop/internal/keyboards"
	messages "tg_shop/internal/msg_gen"
	"tg_shop/internal/session"
	"tg_shop/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const recentOrdersLimit = 20

func (d *Dispatcher) adminMenu(ctx context.Context, c *call) error {
	text := "Панель администратора"
	if st, err := d.orders.Stats(ctx); err == nil {
		text = messages.Stats(st)
	}
	d.replyWithKeyboard(c.chatID, text, menu.StartMenu_admin())
	return nil
}

func parseTelegramID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid telegram id %q", models.ErrValidation, s)
	}
	return id, nil
}

// target находит пользователя, над которым выполняется действие, и проверяет старшинство
func (d *Dispatcher) target(ctx context.Context, c *call, arg string) (*models.User, error) {
	tgID, err := parseTelegramID(arg)
	if err != nil {
		return nil, err
	}
	user, err := db.GetUserByTelegramID(ctx, d.db, tgID)
	if err != nil {
		return nil, err
	}
	if !auth.CanModerate(c.user, user) {
		return nil, models.ErrForbidden
	}
	return user, nil
}

func (d *Dispatcher) ban(ctx context.Context, c *call) error {
	return d.setBlocked(ctx, c, true)
}

func (d *Dispatcher) unban(ctx context.Context, c *call) error {
	return d.setBlocked(ctx, c, false)
}

// setBlocked идемпотентен: повторный бан сообщает, что пользователь уже заблокирован
func (d *Dispatcher) setBlocked(ctx context.Context, c *call, blocked bool) error {
	f := c.fields()
	if len(f) != 1 {
		if blocked {
			return usage("/ban <telegram_id>")
		}
		return usage("/unban <telegram_id>")
	}
	target, err := d.target(ctx, c, f[0])
	if err != nil {
		return err
	}
	user, changed, err := db.SetBlocked(ctx, d.db, target.TelegramID, blocked)
	if err != nil {
		return err
	}
	d.users.Invalidate(ctx, user.TelegramID)

	var text string
	switch {
	case blocked && changed:
		text = "Пользователь %d заблокирован."
	case blocked:
		text = "Пользователь %d уже заблокирован."
	case changed:
		text = "Пользователь %d разблокирован."
	default:
		text = "Пользователь %d не был заблокирован."
	}
	if changed {
		d.log.Info("user block changed",
			zap.Int64("telegram_id", user.TelegramID),
			zap.Bool("blocked", blocked),
			zap.Int64("by", c.user.TelegramID))
	}
	d.reply(c.chatID, fmt.Sprintf(text, user.TelegramID))
	return nil
}

func (d *Dispatcher) setRole(ctx context.Context, c *call) error {
	f := c.fields()
	if len(f) != 2 {
		return usage("/setadmin <telegram_id> <user|moderator|admin|superadmin>")
	}
	role, err := models.ParseRole(f[1])
	if err != nil {
		return err
	}
	if !auth.CanAssign(c.user, role) {
		return models.ErrForbidden
	}
	target, err := d.target(ctx, c, f[0])
	if err != nil {
		return err
	}
	user, err := db.SetRole(ctx, d.db, target.TelegramID, role)
	if err != nil {
		return err
	}
	d.users.Invalidate(ctx, user.TelegramID)
	d.log.Info("role changed", zap.Int64("telegram_id", user.TelegramID), zap.String("role", string(role)), zap.Int64("by", c.user.TelegramID))
	d.reply(c.chatID, fmt.Sprintf("Пользователь %d теперь %s.", user.TelegramID, role))
	return nil
}

// resetPassword: свой пароль можно менять всегда, чужой - только младшим по роли
func (d *Dispatcher) resetPassword(ctx context.Context, c *call) error {
	f := c.fields()
	if len(f) != 2 {
		return usage("/resetpw <telegram_id> <пароль>")
	}
	tgID, err := parseTelegramID(f[0])
	if err != nil {
		return err
	}
	if tgID != c.user.TelegramID {
		if _, err := d.target(ctx, c, f[0]); err != nil {
			return err
		}
	}
	if err := db.ResetPassword(ctx, d.db, tgID, f[1]); err != nil {
		return err
	}
	d.reply(c.chatID, fmt.Sprintf("Пароль пользователя %d изменён.", tgID))
	return nil
}

func (d *Dispatcher) userInfo(ctx context.Context, c *call) error {
	tgID, err := parseTelegramID(c.args)
	if err != nil {
		return err
	}
	user, err := d.users.Get(ctx, tgID)
	if err != nil {
		return err
	}
	d.reply(c.chatID, messages.UserInfo(user))
	return nil
}

func (d *Dispatcher) listUsers(ctx context.Context, c *call) error {
	page := 1
	if c.args != "" {
		n, err := strconv.Atoi(c.args)
		if err != nil {
			return usage("/users [страница]")
		}
		page = n
	}
	perPage := d.tunables.ItemsPerPage()
	users, total, page, err := db.ListUsers(ctx, d.db, page, perPage)
	if err != nil {
		return err
	}
	d.reply(c.chatID, messages.Users(users, total, page, perPage))
	return nil
}

// setConfig: значение - всё после ключа, может содержать пробелы
func (d *Dispatcher) setConfig(ctx context.Context, c *call) error {
	key, value, ok := strings.Cut(c.args, " ")
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return usage("/setconfig <ключ> <значение>")
	}
	s, err := db.SetConfig(ctx, d.db, key, value)
	if err != nil {
		return err
	}
	d.log.Info("config set", zap.String("key", s.Key), zap.Int64("by", c.user.TelegramID))
	d.reply(c.chatID, fmt.Sprintf("Сохранено: %s", s.Key))
	return nil
}

func (d *Dispatcher) getConfig(ctx context.Context, c *call) error {
	if c.args == "" {
		return usage("/getconfig <ключ>")
	}
	s, err := db.GetConfig(ctx, d.db, c.args)
	if err != nil {
		return err
	}
	d.reply(c.chatID, html.EscapeString(s.Value))
	return nil
}

func (d *Dispatcher) listConfig(ctx context.Context, c *call) error {
	list, err := db.ListConfigs(ctx, d.db)
	if err != nil {
		return err
	}
	d.reply(c.chatID, messages.Configs(list))
	return nil
}

// createProduct с аргументами создаёт товар сразу, без аргументов запускает мастер
func (d *Dispatcher) createProduct(ctx context.Context, c *call) error {
	if c.args == "" {
		if err := d.sessions.Set(ctx, c.chatID, session.ProductDraft{Step: bot_commands.Wait_for_product_name}); err != nil {
			return err
		}
		d.reply(c.chatID, messages.AskProductName+"\n(/cancel - отменить)")
		return nil
	}
	p, err := messages.ParseCreateProductArgs(c.args)
	if err != nil {
		return err
	}
	if err := db.CreateProduct(ctx, d.db, p); err != nil {
		return err
	}
	d.log.Info("product created", zap.String("id", p.ID.String()), zap.Int64("by", c.user.TelegramID))
	d.reply(c.chatID, messages.ProductCreated(p))
	return nil
}

func (d *Dispatcher) adminProducts(ctx context.Context, c *call) error {
	list, err := db.ListAllProducts(ctx, d.db)
	if err != nil {
		return err
	}
	d.replyWithKeyboard(c.chatID, messages.MakeMessage_PriceListForEdit(list), menu.AdminProducts(list))
	return nil
}

func (d *Dispatcher) deactivate(ctx context.Context, c *call) error {
	if c.args == "" {
		return usage("/deactivate <ID>")
	}
	p, err := db.FindProduct(ctx, d.db, c.args)
	if err != nil {
		return err
	}
	if p, err = db.DeactivateProduct(ctx, d.db, p.ID); err != nil {
		return err
	}
	d.reply(c.chatID, fmt.Sprintf("Товар %s снят с продажи.", db.ShortID(p.ID)))
	return nil
}

func (d *Dispatcher) editPrices(ctx context.Context, c *call) error {
	list, err := db.ListAllProducts(ctx, d.db)
	if err != nil {
		return err
	}
	d.reply(c.chatID, messages.MakeMessage_PriceListForEdit(list))
	if len(list) == 0 {
		return nil
	}
	return d.sessions.Set(ctx, c.chatID, session.ProductDraft{Step: bot_commands.Wait_for_PriceList})
}

// adminOrders: без аргумента - последние заказы, с ID - карточка заказа с действиями
func (d *Dispatcher) adminOrders(ctx context.Context, c *call) error {
	if c.args != "" {
		order, err := d.orders.Find(ctx, c.args)
		if err != nil {
			return err
		}
		d.replyWithKeyboard(c.chatID, messages.Order(order), menu.AdminOrderActions(order))
		return nil
	}
	list, err := d.orders.ListRecent(ctx, recentOrdersLimit)
	if err != nil {
		return err
	}
	d.replyWithKeyboard(c.chatID, messages.AdminOrders(list), menu.AdminOrderList(list))
	return nil
}

type orderAction func(ctx context.Context, id uuid.UUID) (*models.Order, error)

func (d *Dispatcher) changeStatus(ctx context.Context, c *call, cmd string, action orderAction) error {
	if c.args == "" {
		return usage(cmd + " <ID заказа>")
	}
	order, err := d.orders.Find(ctx, c.args)
	if err != nil {
		return err
	}
	if order, err = action(ctx, order.ID); err != nil {
		return err
	}
	d.replyWithKeyboard(c.chatID, messages.Order(order), menu.AdminOrderActions(order))
	d.notifyBuyer(ctx, order)
	return nil
}

// notifyBuyer сообщает покупателю новый статус заказа
func (d *Dispatcher) notifyBuyer(ctx context.Context, order *models.Order) {
	buyer, err := db.GetUserByID(ctx, d.db, order.UserID)
	if err != nil {
		d.log.Warn("buyer lookup failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}
	d.reply(buyer.TelegramID, fmt.Sprintf("Статус заказа %s: %s", order.OutNo, messages.Status(order.Status)))
}

func (d *Dispatcher) ship(ctx context.Context, c *call) error {
	return d.changeStatus(ctx, c, "/ship", d.orders.MarkShipped)
}

func (d *Dispatcher) refund(ctx context.Context, c *call) error {
	return d.changeStatus(ctx, c, "/refund", d.orders.MarkRefunded)
}

func (d *Dispatcher) markPaid(ctx context.Context, c *call) error {
	return d.changeStatus(ctx, c, "/markpaid", func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
		return d.orders.MarkPaid(ctx, id, "manual:"+strconv.FormatInt(c.user.TelegramID, 10))
	})
}

func (d *Dispatcher) cancel(ctx context.Context, c *call) error {
	return d.changeStatus(ctx, c, "/cancel", d.orders.Cancel)
}

func (d *Dispatcher) stats(ctx context.Context, c *call) error {
	st, err := d.orders.Stats(ctx)
	if err != nil {
		return err
	}
	d.reply(c.chatID, messages.Stats(st))
	return nil
}

// handleWizardCommand перехватывает /skip и /cancel без аргументов, пока идёт мастер
func (d *Dispatcher) handleWizardCommand(ctx context.Context, chatID int64, user *models.User, name, args string) bool {
	if (name != "skip" && name != "cancel") || args != "" {
		return false
	}
	draft, err := d.sessions.Get(ctx, chatID)
	if err != nil || draft.Step == bot_commands.None {
		return false
	}
	if name == "cancel" {
		d.clearSession(ctx, chatID)
		d.reply(chatID, "Отменено.")
		return true
	}
	switch draft.Step {
	case bot_commands.Wait_for_product_description:
		draft.Step = bot_commands.Wait_for_product_image
		d.saveDraft(ctx, chatID, draft, messages.AskProductImage)
	case bot_commands.Wait_for_product_image:
		d.finishProduct(ctx, chatID, user, draft)
	default:
		return false
	}
	return true
}

// handlePhoto - фото на шаге изображения завершает мастер; в остальных случаях подпись идёт как текст
func (d *Dispatcher) handlePhoto(ctx context.Context, chatID int64, user *models.User, msg *tgbotapi.Message) {
	draft, err := d.sessions.Get(ctx, chatID)
	if err != nil {
		d.replyErr(chatID, err)
		return
	}
	if draft.Step != bot_commands.Wait_for_product_image {
		d.handleText(ctx, chatID, user, msg.Caption)
		return
	}
	if !auth.Can(user, auth.ManageProducts) {
		d.clearSession(ctx, chatID)
		d.replyErr(chatID, models.ErrForbidden)
		return
	}
	draft.ImageFileID = largestPhoto(msg.Photo)
	d.finishProduct(ctx, chatID, user, draft)
}

// largestPhoto - file_id самого крупного размера из присланных вариантов
func largestPhoto(sizes []tgbotapi.PhotoSize) string {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best.FileID
}

// handleText - обычный текст: шаг мастера или подсказка
func (d *Dispatcher) handleText(ctx context.Context, chatID int64, user *models.User, text string) {
	draft, err := d.sessions.Get(ctx, chatID)
	if err != nil {
		d.replyErr(chatID, err)
		return
	}
	if draft.Step == bot_commands.None {
		d.reply(chatID, "Неизвестная команда. Список команд: /help")
		return
	}
	if !auth.Can(user, auth.ManageProducts) {
		d.clearSession(ctx, chatID)
		d.replyErr(chatID, models.ErrForbidden)
		return
	}

	text = strings.TrimSpace(text)
	switch draft.Step {
	case bot_commands.Wait_for_product_name:
		if text == "" || utf8.RuneCountInString(text) > 100 {
			d.reply(chatID, "Название должно быть от 1 до 100 символов.\n"+messages.AskProductName)
			return
		}
		draft.Name = text
		draft.Step = bot_commands.Wait_for_product_price
		d.saveDraft(ctx, chatID, draft, messages.AskProductPrice)

	case bot_commands.Wait_for_product_price:
		price, err := messages.ParsePrice(text)
		if err != nil {
			d.reply(chatID, messages.ErrorText(err)+"\n"+messages.AskProductPrice)
			return
		}
		draft.Price = price
		draft.Step = bot_commands.Wait_for_product_stock
		d.saveDraft(ctx, chatID, draft, messages.AskProductStock)

	case bot_commands.Wait_for_product_stock:
		stock, err := messages.ParseStock(text)
		if err != nil {
			d.reply(chatID, messages.ErrorText(err)+"\n"+messages.AskProductStock)
			return
		}
		draft.Stock = stock
		draft.Step = bot_commands.Wait_for_product_description
		d.saveDraft(ctx, chatID, draft, messages.AskProductDescription)

	case bot_commands.Wait_for_product_description:
		if text != "-" {
			draft.Description = text
		}
		draft.Step = bot_commands.Wait_for_product_image
		d.saveDraft(ctx, chatID, draft, messages.AskProductImage)

	case bot_commands.Wait_for_product_image:
		d.reply(chatID, messages.AskProductImage)

	case bot_commands.Wait_for_PriceList:
		d.applyPriceList(ctx, chatID, text)

	default:
		d.clearSession(ctx, chatID)
		d.reply(chatID, "Неизвестная команда. Список команд: /help")
	}
}

func (d *Dispatcher) finishProduct(ctx context.Context, chatID int64, user *models.User, draft session.ProductDraft) {
	d.clearSession(ctx, chatID)
	p := &models.Product{
		Name:        draft.Name,
		Description: draft.Description,
		Price:       draft.Price,
		Stock:       draft.Stock,
		ImageFileID: draft.ImageFileID,
	}
	if err := db.CreateProduct(ctx, d.db, p); err != nil {
		d.replyErr(chatID, err)
		return
	}
	d.log.Info("product created", zap.String("id", p.ID.String()), zap.Int64("by", user.TelegramID))
	d.replyWithKeyboard(chatID, messages.ProductCreated(p), menu.StartMenu_admin())
}

func (d *Dispatcher) applyPriceList(ctx context.Context, chatID int64, text string) {
	d.clearSession(ctx, chatID)
	updates, err := messages.ParsePriceList(text)
	if err != nil {
		d.replyErr(chatID, err)
		return
	}
	updated, err := db.RedactProducts(ctx, d.db, updates)
	if err != nil {
		d.replyErr(chatID, err)
		return
	}
	d.replyWithKeyboard(chatID, fmt.Sprintf("Успешно обновлено %d записей", updated), menu.StartMenu_admin())
}

func (d *Dispatcher) saveDraft(ctx context.Context, chatID int64, draft session.ProductDraft, prompt string) {
	if err := d.sessions.Set(ctx, chatID, draft); err != nil {
		d.replyErr(chatID, err)
		return
	}
	d.reply(chatID, prompt)
}

func (d *Dispatcher) clearSession(ctx context.Context, chatID int64) {
	if err := d.sessions.Clear(ctx, chatID); err != nil {
		d.log.Warn("session clear failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
