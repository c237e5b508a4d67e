package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"tg_shop/auth"
	"tg_shop/internal/bot_commands"
	"tg_shop/internal/cache"
	"tg_shop/internal/cart"
	"tg_shop/internal/config"
	db "tg_shop/internal/database"
	"tg_shop/internal/dbtest"
	"tg_shop/internal/events"
	"tg_shop/internal/metrics"
	messages "tg_shop/internal/msg_gen"
	"tg_shop/internal/orders"
	"tg_shop/internal/payment"
	"tg_shop/internal/utils"
	"tg_shop/models"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const adminID = 100

type sent struct {
	chatID int64
	text   string
	photo  bool
	fileID string
}

// fakeBot записывает исходящие сообщения вместо отправки в Telegram
type fakeBot struct {
	mu      sync.Mutex
	sent    []sent
	deleted []int
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		b.sent = append(b.sent, sent{chatID: m.ChatID, text: m.Text})
	case tgbotapi.PhotoConfig:
		out := sent{chatID: m.ChatID, text: m.Caption, photo: true}
		if id, ok := m.File.(tgbotapi.FileID); ok {
			out.fileID = string(id)
		}
		b.sent = append(b.sent, out)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.DeleteMessageConfig); ok {
		b.deleted = append(b.deleted, m.MessageID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// last - последнее сообщение в чат
func (b *fakeBot) last(t *testing.T, chatID int64) sent {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.sent) - 1; i >= 0; i-- {
		if b.sent[i].chatID == chatID {
			return b.sent[i]
		}
	}
	t.Fatalf("no messages to chat %d", chatID)
	return sent{}
}

type fixture struct {
	d   *Dispatcher
	bot *fakeBot
	db  *gorm.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()
	DB := dbtest.New(t)
	log := zap.NewNop()
	tunables := config.NewTunables(true, "", 5, "INFO")
	osvc := orders.New(DB, events.Noop{}, metrics.Nop(), log)
	bot := &fakeBot{}
	d := New(Deps{
		DB:       DB,
		Bot:      bot,
		Auth:     auth.New([]int64{adminID}),
		Cart:     cart.New(DB, log),
		Orders:   osvc,
		Payments: payment.New(osvc, tunables, "test-key", log),
		Users:    cache.NewUserCache(nil, DB, cache.DefaultTTL, log),
		Tunables: tunables,
		Log:      log,
	})
	return &fixture{d: d, bot: bot, db: DB}
}

func message(from int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: from, UserName: "tester", FirstName: "Test"},
		Chat: &tgbotapi.Chat{ID: from, Type: "private"},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callback(from int64, data models.CallBackData) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from, UserName: "tester"},
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: from}},
		Data:    utils.Code_request(data),
	}}
}

// say отправляет сообщение и возвращает последний ответ в тот же чат
func (f *fixture) say(t *testing.T, from int64, text string) string {
	t.Helper()
	f.d.HandleUpdate(context.Background(), message(from, text))
	return f.bot.last(t, from).text
}

func TestSetConfigThenGetConfig(t *testing.T) {
	f := setup(t)

	if got := f.say(t, adminID, "/setconfig shipping_fee 5"); !strings.Contains(got, "shipping_fee") {
		t.Fatalf("setconfig reply = %q", got)
	}
	if got := f.say(t, adminID, "/getconfig shipping_fee"); got != "5" {
		t.Errorf("getconfig reply = %q, want 5", got)
	}
	if got := f.say(t, adminID, "/getconfig missing"); got != "Настройка не найдена." {
		t.Errorf("missing key reply = %q", got)
	}
}

func TestUserCannotSetConfig(t *testing.T) {
	f := setup(t)

	if got := f.say(t, 2, "/setconfig shipping_fee 5"); got != "Недостаточно прав." {
		t.Errorf("reply = %q", got)
	}
	if _, err := db.GetConfig(context.Background(), f.db, "shipping_fee"); err == nil {
		t.Error("config written by plain user")
	}
}

func TestBanUnbanIdempotent(t *testing.T) {
	f := setup(t)
	dbtest.User(t, f.db, 2)

	steps := []struct {
		from int64
		text string
		want string
	}{
		{adminID, "/ban 2", "Пользователь 2 заблокирован."},
		{adminID, "/ban 2", "Пользователь 2 уже заблокирован."},
		{2, "/cart", "Ваш аккаунт заблокирован."},
		{adminID, "/unban 2", "Пользователь 2 разблокирован."},
		{adminID, "/unban 2", "Пользователь 2 не был заблокирован."},
		{2, "/cart", "Корзина пуста."},
	}
	for _, s := range steps {
		if got := f.say(t, s.from, s.text); got != s.want {
			t.Fatalf("%d %s: got %q, want %q", s.from, s.text, got, s.want)
		}
	}
}

func TestModeratorPermissions(t *testing.T) {
	f := setup(t)
	dbtest.User(t, f.db, 2)
	dbtest.User(t, f.db, 3)
	f.say(t, adminID, "/setadmin 3 moderator")
	if got := f.say(t, adminID, "/setadmin 4 admin"); got != "Пользователь не найден." {
		t.Errorf("setadmin unknown user: %q", got)
	}

	if got := f.say(t, 3, "/ban 2"); got != "Пользователь 2 заблокирован." {
		t.Errorf("moderator ban: %q", got)
	}
	if got := f.say(t, 3, "/ban 100"); got != "Недостаточно прав." {
		t.Errorf("moderator banned superadmin: %q", got)
	}
	if got := f.say(t, 3, "/setconfig a b"); got != "Недостаточно прав." {
		t.Errorf("moderator setconfig: %q", got)
	}
	if got := f.say(t, 3, "/setadmin 2 admin"); got != "Недостаточно прав." {
		t.Errorf("moderator setadmin: %q", got)
	}
}

func TestCheckoutAndPay(t *testing.T) {
	f := setup(t)
	a := dbtest.Product(t, f.db, "A", "10", 5)
	b := dbtest.Product(t, f.db, "B", "5", 1)

	f.say(t, 2, "/add "+db.ShortID(a.ID)+" 2")
	f.d.HandleUpdate(context.Background(), callback(2, models.CallBackData{Command: bot_commands.AddToCart, ID: b.ID.String(), Arg: "1"}))
	if got := f.say(t, 2, "/cart"); !strings.Contains(got, "Итого: ¥25.00") {
		t.Fatalf("cart = %q", got)
	}

	if got := f.say(t, 2, "/checkout"); !strings.Contains(got, "¥25.00") {
		t.Fatalf("checkout reply = %q", got)
	}
	if got := f.bot.last(t, adminID).text; !strings.Contains(got, "Новый заказ") {
		t.Errorf("admin notice = %q", got)
	}
	if got := f.say(t, 2, "/cart"); got != "Корзина пуста." {
		t.Errorf("cart after checkout = %q", got)
	}

	f.say(t, 2, "/pay")
	paid := f.bot.last(t, 2)
	if !paid.photo || !strings.Contains(paid.text, "amount=25.00") {
		t.Errorf("payment message = %+v", paid)
	}
}

func TestAddRejectsLargeQuantity(t *testing.T) {
	f := setup(t)
	p := dbtest.Product(t, f.db, "A", "10", 500)

	if got := f.say(t, 2, "/add "+p.ID.String()+" 101"); got != "Некорректное количество." {
		t.Errorf("reply = %q", got)
	}
	if got := f.say(t, 2, "/add "+p.ID.String()+" 6"); !strings.Contains(got, "A × 6") {
		t.Errorf("reply = %q", got)
	}
}

func TestShipRequiresPaid(t *testing.T) {
	f := setup(t)
	p := dbtest.Product(t, f.db, "A", "10", 5)
	f.say(t, 2, "/buy "+p.ID.String())

	list, err := f.d.orders.ListRecent(context.Background(), 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("orders = %v, %v", list, err)
	}
	ref := db.ShortID(list[0].ID)

	if got := f.say(t, adminID, "/ship "+ref); !strings.Contains(got, "недоступно") {
		t.Errorf("ship unpaid: %q", got)
	}
	f.say(t, adminID, "/markpaid "+ref)
	if got := f.say(t, adminID, "/ship "+ref); !strings.Contains(got, "Статус: отправлен") {
		t.Errorf("ship paid: %q", got)
	}
	if got := f.bot.last(t, 2).text; !strings.Contains(got, "отправлен") {
		t.Errorf("buyer notice = %q", got)
	}
}

func TestCreateProductWizard(t *testing.T) {
	f := setup(t)

	f.say(t, adminID, "/create_product")
	f.say(t, adminID, "Зелёный чай")
	if got := f.say(t, adminID, "дорого"); !strings.Contains(got, "Ошибка ввода") {
		t.Errorf("bad price reply = %q", got)
	}
	f.say(t, adminID, "12,5")
	f.say(t, adminID, "3")
	if got := f.say(t, adminID, "/skip"); got != messages.AskProductImage {
		t.Fatalf("description skip reply = %q", got)
	}
	if got := f.say(t, adminID, "/skip"); !strings.Contains(got, "Товар добавлен") {
		t.Fatalf("finish reply = %q", got)
	}

	list, err := db.ListActiveProducts(context.Background(), f.db, "чай")
	if err != nil || len(list) != 1 {
		t.Fatalf("products = %v, %v", list, err)
	}
	if list[0].Price.StringFixed(2) != "12.50" || list[0].Stock != 3 || list[0].Description != "" || list[0].ImageFileID != "" {
		t.Errorf("product = %+v", list[0])
	}
	if got := f.say(t, adminID, "привет"); !strings.Contains(got, "/help") {
		t.Errorf("wizard not cleared: %q", got)
	}
}

func TestCreateProductWizardWithPhoto(t *testing.T) {
	f := setup(t)

	f.say(t, adminID, "/create_product")
	f.say(t, adminID, "Улун")
	f.say(t, adminID, "20")
	f.say(t, adminID, "5")
	if got := f.say(t, adminID, "Полуферментированный"); got != messages.AskProductImage {
		t.Fatalf("description reply = %q", got)
	}
	if got := f.say(t, adminID, "не фото"); got != messages.AskProductImage {
		t.Errorf("text on image step = %q", got)
	}

	photo := message(adminID, "")
	photo.Message.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", Width: 90, Height: 90},
		{FileID: "large", Width: 800, Height: 800},
		{FileID: "medium", Width: 320, Height: 320},
	}
	f.d.HandleUpdate(context.Background(), photo)
	if got := f.bot.last(t, adminID).text; !strings.Contains(got, "Товар добавлен") {
		t.Fatalf("finish reply = %q", got)
	}

	list, _ := db.ListActiveProducts(context.Background(), f.db, "лун")
	if len(list) != 1 || list[0].ImageFileID != "large" || list[0].Description != "Полуферментированный" {
		t.Fatalf("products = %+v", list)
	}

	f.say(t, 2, "/product "+list[0].ID.String())
	got := f.bot.last(t, 2)
	if !got.photo || got.fileID != "large" || !strings.Contains(got.text, "Улун") {
		t.Errorf("product view = %+v", got)
	}
}

func TestPhotoOutsideWizard(t *testing.T) {
	f := setup(t)
	photo := message(2, "")
	photo.Message.Photo = []tgbotapi.PhotoSize{{FileID: "x", Width: 10, Height: 10}}
	f.d.HandleUpdate(context.Background(), photo)
	if got := f.bot.last(t, 2).text; !strings.Contains(got, "/help") {
		t.Errorf("reply = %q", got)
	}
}

func TestMenuCallbackReplacesMessage(t *testing.T) {
	f := setup(t)
	p := dbtest.Product(t, f.db, "A", "10", 5)

	f.d.HandleUpdate(context.Background(), callback(2, models.CallBackData{Command: bot_commands.AddToCart, ID: p.ID.String(), Arg: "1"}))
	if len(f.bot.deleted) != 0 {
		t.Errorf("add to cart deleted %v", f.bot.deleted)
	}
	f.d.HandleUpdate(context.Background(), callback(2, models.CallBackData{Command: bot_commands.Start}))
	if len(f.bot.deleted) != 1 || f.bot.deleted[0] != 1 {
		t.Errorf("deleted = %v, want [1]", f.bot.deleted)
	}
}

func TestCreateProductInline(t *testing.T) {
	f := setup(t)
	if got := f.say(t, adminID, "/create_product Кофе 7.5 2"); !strings.Contains(got, "¥7.50") {
		t.Errorf("reply = %q", got)
	}
	if got := f.say(t, 2, "/create_product Кофе 7.5 2"); got != "Недостаточно прав." {
		t.Errorf("user reply = %q", got)
	}
}

func TestEditPrices(t *testing.T) {
	f := setup(t)
	p := dbtest.Product(t, f.db, "A", "10", 5)

	form := f.say(t, adminID, "/editprices")
	edited := strings.Replace(form, "| 10.00 | 5", "| 11.00 | 9", 1)
	if got := f.say(t, adminID, edited); got != "Успешно обновлено 1 записей" {
		t.Fatalf("reply = %q", got)
	}
	got, _ := db.GetProduct(context.Background(), f.db, p.ID)
	if got.Price.StringFixed(2) != "11.00" || got.Stock != 9 {
		t.Errorf("product = %+v", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	f := setup(t)
	if got := f.say(t, 2, "/nope"); !strings.Contains(got, "/help") {
		t.Errorf("reply = %q", got)
	}
}

func TestWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := setup(t)
	r := gin.New()
	r.POST("/webhook", f.d.Webhook)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json code = %d", w.Code)
	}

	body := `{"update_id":1,"message":{"message_id":1,"from":{"id":2,"is_bot":false,"first_name":"T"},` +
		`"chat":{"id":2,"type":"private"},"date":0,"text":"/help","entities":[{"type":"bot_command","offset":0,"length":5}]}}`
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if got := f.bot.last(t, 2).text; !strings.Contains(got, "/products") {
		t.Errorf("help reply = %q", got)
	}
}
