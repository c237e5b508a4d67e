package messages

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	db "tg_shop/internal/database"
	"tg_shop/internal/orders"
	"tg_shop/internal/utils"
	"tg_shop/models"
)

var money = utils.Money

func esc(s string) string { return html.EscapeString(s) }

func Welcome(u *models.User) string {
	name := u.FirstName
	if name == "" {
		name = u.Username
	}
	if name == "" {
		return "Добро пожаловать в магазин!"
	}
	return fmt.Sprintf("Добро пожаловать, %s!", esc(name))
}

// (АДМИН) Stats - сводка магазина
func Stats(st *orders.Stats) string {
	var b strings.Builder
	b.WriteString("<b>Статистика магазина</b>\n")
	fmt.Fprintf(&b, "Пользователей: %d\n", st.Users)
	fmt.Fprintf(&b, "Заказов: %d (ожидают оплаты: %d)\n", st.Orders, st.Pending)
	fmt.Fprintf(&b, "Отправлено: %d, возвратов: %d\n", st.Shipped, st.Refunded)
	fmt.Fprintf(&b, "Выручка: %s", money(st.Revenue))
	return b.String()
}

// ProductList - страница каталога; номера страниц с 1
func ProductList(products []models.Product, page, pages int) string {
	if len(products) == 0 {
		return "Каталог пуст."
	}
	var b strings.Builder
	b.WriteString("<b>Каталог</b>\n\n")
	for _, p := range products {
		fmt.Fprintf(&b, "<code>%s</code> %s --- %s (в наличии: %d)\n", db.ShortID(p.ID), esc(p.Name), money(p.Price), p.Stock)
	}
	if pages > 1 {
		fmt.Fprintf(&b, "\nСтраница %d/%d, следующая: /products %d", page, pages, page%pages+1)
	}
	b.WriteString("\nДобавить в корзину: /add &lt;ID&gt; &lt;кол-во&gt;")
	return b.String()
}

func ProductDetail(p *models.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", esc(p.Name))
	if p.Description != "" {
		fmt.Fprintf(&b, "%s\n", esc(p.Description))
	}
	fmt.Fprintf(&b, "\nЦена: %s\n", money(p.Price))
	switch {
	case !p.IsActive:
		b.WriteString("Снят с продажи\n")
	case p.Stock == 0:
		b.WriteString("Нет в наличии\n")
	default:
		fmt.Fprintf(&b, "В наличии: %d\n", p.Stock)
	}
	fmt.Fprintf(&b, "ID: <code>%s</code>", db.ShortID(p.ID))
	return b.String()
}

func Cart(items []models.CartItem, total string) string {
	if len(items) == 0 {
		return "Корзина пуста."
	}
	var b strings.Builder
	b.WriteString("<b>Корзина</b>\n\n")
	for _, it := range items {
		fmt.Fprintf(&b, "<code>%s</code> %s × %d = %s\n", db.ShortID(it.ProductID), esc(it.ProductName), it.Quantity, money(it.Subtotal()))
	}
	fmt.Fprintf(&b, "\nИтого: %s", total)
	return b.String()
}

var statusNames = map[models.OrderStatus]string{
	models.StatusPending:   "создан",
	models.StatusUnpaid:    "ожидает оплаты",
	models.StatusPaid:      "оплачен",
	models.StatusShipped:   "отправлен",
	models.StatusRefunded:  "возврат",
	models.StatusCancelled: "отменён",
}

func Status(s models.OrderStatus) string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return string(s)
}

func Order(o *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Заказ %s</b>\n", esc(o.OutNo))
	fmt.Fprintf(&b, "Статус: %s\n", Status(o.Status))
	fmt.Fprintf(&b, "Создан: %s\n", o.CreatedAt.Format("02.01.2006 15:04"))
	if o.PaidAt != nil {
		fmt.Fprintf(&b, "Оплачен: %s\n", o.PaidAt.Format("02.01.2006 15:04"))
	}
	b.WriteString("\n")
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%s × %d = %s\n", esc(it.ProductName), it.Quantity, money(it.Subtotal()))
	}
	fmt.Fprintf(&b, "\nИтого: %s\nID: <code>%s</code>", money(o.TotalAmount), db.ShortID(o.ID))
	return b.String()
}

func OrderList(list []models.Order) string {
	if len(list) == 0 {
		return "У вас пока нет заказов."
	}
	var b strings.Builder
	b.WriteString("<b>Ваши заказы</b>\n\n")
	for _, o := range list {
		fmt.Fprintf(&b, "<code>%s</code> %s · %s · %s\n", db.ShortID(o.ID), o.CreatedAt.Format("02.01.2006"), money(o.TotalAmount), Status(o.Status))
	}
	b.WriteString("\nПодробнее: /order &lt;ID&gt;")
	return b.String()
}

func OrderCreated(o *models.Order) string {
	return fmt.Sprintf("Заказ <b>%s</b> оформлен на сумму %s.\nОплатить: /pay", esc(o.OutNo), money(o.TotalAmount))
}

// (АДМИН) NewOrderNotice - уведомление админам о новом заказе
func NewOrderNotice(o *models.Order, buyer *models.User) string {
	who := fmt.Sprintf("%d", buyer.TelegramID)
	if buyer.Username != "" {
		who = "@" + buyer.Username
	}
	return fmt.Sprintf("Новый заказ %s от %s на сумму %s", esc(o.OutNo), esc(who), money(o.TotalAmount))
}

func PaymentCaption(outNo, url string, sandbox bool) string {
	text := fmt.Sprintf("Заказ %s\nОплатите по ссылке или QR-коду:\n%s", esc(outNo), esc(url))
	if sandbox {
		text += "\n(тестовый режим)"
	}
	return text
}

func Profile(u *models.User) string {
	var b strings.Builder
	b.WriteString("<b>Профиль</b>\n")
	fmt.Fprintf(&b, "Telegram ID: <code>%d</code>\n", u.TelegramID)
	if u.Username != "" {
		fmt.Fprintf(&b, "Username: @%s\n", esc(u.Username))
	}
	fmt.Fprintf(&b, "Email: %s\n", orDash(esc(u.Email)))
	fmt.Fprintf(&b, "Телефон: %s\n", orDash(esc(u.Phone)))
	fmt.Fprintf(&b, "Роль: %s\n", u.Role)
	if !u.IsVerified {
		b.WriteString("\nУкажите контакты: /register &lt;email&gt; &lt;телефон&gt;")
	}
	return b.String()
}

// (АДМИН) UserInfo - карточка пользователя для /userinfo
func UserInfo(u *models.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Пользователь %d</b>\n", u.TelegramID)
	fmt.Fprintf(&b, "Username: %s\n", orDash(esc(u.Username)))
	fmt.Fprintf(&b, "Имя: %s\n", orDash(esc(strings.TrimSpace(u.FirstName+" "+u.LastName))))
	fmt.Fprintf(&b, "Email: %s, телефон: %s\n", orDash(esc(u.Email)), orDash(esc(u.Phone)))
	fmt.Fprintf(&b, "Роль: %s\n", u.Role)
	fmt.Fprintf(&b, "Заблокирован: %s\n", yesNo(u.IsBlocked))
	fmt.Fprintf(&b, "Зарегистрирован: %s\n", u.CreatedAt.Format("02.01.2006"))
	fmt.Fprintf(&b, "Последняя активность: %s", Since(u.LastActive, time.Now()))
	return b.String()
}

// (АДМИН) Users - страница списка пользователей
func Users(users []models.User, total int64, page, perPage int) string {
	if total == 0 {
		return "Пользователей нет."
	}
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Пользователи</b> (%d), страница %d/%d\n\n", total, page, pages)
	for _, u := range users {
		mark := ""
		if u.IsBlocked {
			mark = " [заблокирован]"
		}
		fmt.Fprintf(&b, "<code>%d</code> %s · %s%s\n", u.TelegramID, esc(orDash(u.Username)), u.Role, mark)
	}
	if page < pages {
		fmt.Fprintf(&b, "\nДальше: /users %d", page+1)
	}
	return b.String()
}

// (АДМИН) Configs - вывод /listconfig
func Configs(settings []models.Setting) string {
	if len(settings) == 0 {
		return "Настроек нет."
	}
	var b strings.Builder
	b.WriteString("<b>Настройки</b>\n")
	for _, s := range settings {
		fmt.Fprintf(&b, "%s = %s\n", esc(s.Key), esc(s.Value))
	}
	return strings.TrimRight(b.String(), "\n")
}

// (АДМИН) AdminOrders - последние заказы
func AdminOrders(list []models.Order) string {
	if len(list) == 0 {
		return "Заказов нет."
	}
	var b strings.Builder
	b.WriteString("<b>Последние заказы</b>\n\n")
	for _, o := range list {
		fmt.Fprintf(&b, "<code>%s</code> %s · %s · %s\n", db.ShortID(o.ID), o.CreatedAt.Format("02.01 15:04"), money(o.TotalAmount), Status(o.Status))
	}
	b.WriteString("\n/ship, /refund, /markpaid, /cancel &lt;ID&gt;")
	return b.String()
}

func Help(staff bool) string {
	var b strings.Builder
	b.WriteString("<b>Команды</b>\n")
	b.WriteString("/products [стр.] - каталог\n")
	b.WriteString("/add &lt;ID&gt; &lt;кол-во&gt; - в корзину\n")
	b.WriteString("/remove &lt;ID&gt; - убрать из корзины\n")
	b.WriteString("/setqty &lt;ID&gt; &lt;кол-во&gt; - изменить количество\n")
	b.WriteString("/cart, /clear, /checkout\n")
	b.WriteString("/buy &lt;ID&gt; [кол-во] - купить сразу\n")
	b.WriteString("/pay - оплатить последний заказ\n")
	b.WriteString("/myorders, /order &lt;ID&gt;\n")
	b.WriteString("/profile, /register &lt;email&gt; &lt;телефон&gt;\n")
	if staff {
		b.WriteString("\n<b>Администрирование</b>\n")
		b.WriteString("/ban, /unban, /userinfo &lt;tg_id&gt;, /users [стр.]\n")
		b.WriteString("/setadmin &lt;tg_id&gt; &lt;роль&gt;, /resetpw &lt;tg_id&gt; &lt;пароль&gt;\n")
		b.WriteString("/setconfig &lt;ключ&gt; &lt;значение&gt;, /getconfig &lt;ключ&gt;, /listconfig\n")
		b.WriteString("/create_product [название цена остаток], /admin_products, /editprices\n")
		b.WriteString("/orders, /ship, /refund, /markpaid, /cancel &lt;ID&gt;, /stats")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ErrorText переводит ошибку в текст для пользователя. Всё, что не относится к бизнес-правилам,
// показывается общей фразой; исходная ошибка к этому моменту уже залогирована.
func ErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrUserBlocked):
		return "Ваш аккаунт заблокирован."
	case errors.Is(err, models.ErrForbidden):
		return "Недостаточно прав."
	case errors.Is(err, models.ErrUserNotFound):
		return "Пользователь не найден."
	case errors.Is(err, models.ErrProductNotFound):
		return "Товар не найден."
	case errors.Is(err, models.ErrOrderNotFound):
		return "Заказ не найден."
	case errors.Is(err, models.ErrConfigNotFound):
		return "Настройка не найдена."
	case errors.Is(err, models.ErrNotFound):
		return "Не найдено."
	case errors.Is(err, models.ErrProductUnavailable):
		return "Товар снят с продажи."
	case errors.Is(err, models.ErrInsufficientStock):
		return "Недостаточно товара на складе."
	case errors.Is(err, models.ErrInvalidQuantity):
		return "Некорректное количество."
	case errors.Is(err, models.ErrEmptyCart):
		return "Корзина пуста."
	case errors.Is(err, models.ErrAlreadyPaid):
		return "Заказ уже оплачен."
	case errors.Is(err, models.ErrInvalidTransition):
		return "Действие недоступно для текущего статуса заказа."
	case errors.Is(err, models.ErrInvalidSignature), errors.Is(err, models.ErrAmountMismatch):
		return "Платёж не подтверждён."
	case errors.Is(err, models.ErrValidation):
		return "Ошибка ввода: " + esc(validationDetail(err))
	}
	return "Произошла ошибка. Попробуйте позже."
}

// validationDetail оставляет пояснение после "validation failed: "
func validationDetail(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, models.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(models.ErrValidation.Error())+2:]
	}
	return msg
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "да"
	}
	return "нет"
}

// Since - "5 мин назад" для последней активности
func Since(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "только что"
	case d < time.Hour:
		return fmt.Sprintf("%d мин назад", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d ч назад", int(d.Hours()))
	}
	return t.Format("02.01.2006")
}

func AddedToCart(name string, qty, total int) string {
	return fmt.Sprintf("Добавлено в корзину: %s × %d (всего %d). /cart", esc(name), qty, total)
}

func QuantityUpdated(name string, qty int) string {
	return fmt.Sprintf("Количество обновлено: %s × %d", esc(name), qty)
}
