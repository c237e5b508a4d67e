package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tg_shop/internal/events"
	"tg_shop/internal/metrics"
	"tg_shop/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Line - позиция будущего заказа с уже зафиксированной ценой
type Line struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type Service struct {
	db      *gorm.DB
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func New(db *gorm.DB, pub events.Publisher, m *metrics.Metrics, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{db: db, pub: pub, metrics: m, log: log.Named("orders"), now: func() time.Time { return time.Now().UTC() }}
}

// Create сохраняет заказ и его позиции в одной транзакции, статус pending.
// Сумма заказа - Σ цена × количество, округлённая до копеек.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, lines []Line) (*models.Order, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := userExists(tx, userID); err != nil {
			return err
		}
		var err error
		order, err = s.insert(tx, userID, lines)
		return err
	})
	if err != nil {
		return nil, s.fail("create", err, zap.String("user_id", userID.String()))
	}
	s.published(ctx, order)
	return order, nil
}

// Checkout превращает корзину в заказ. Чтение корзины, списание остатков, создание заказа
// и удаление позиций корзины выполняются в одной транзакции.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.CartItem
		if err := tx.Where("user_id = ?", userID).Order("created_at").Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return models.ErrEmptyCart
		}

		lines := make([]Line, 0, len(items))
		ids := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			if err := reserve(tx, it.ProductID, it.Quantity); err != nil {
				return fmt.Errorf("%s: %w", it.ProductName, err)
			}
			lines = append(lines, Line{
				ProductID:   it.ProductID,
				ProductName: it.ProductName,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
			})
			ids = append(ids, it.ID)
		}

		var err error
		if order, err = s.insert(tx, userID, lines); err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.CartItem{}).Error
	})
	if err != nil {
		return nil, s.fail("checkout", err, zap.String("user_id", userID.String()))
	}
	s.log.Info("checkout", zap.String("order_id", order.ID.String()), zap.String("total", order.TotalAmount.StringFixed(2)))
	s.published(ctx, order)
	return order, nil
}

// BuyNow оформляет заказ на один товар по текущей цене, минуя корзину
func (s *Service) BuyNow(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.Order, error) {
	if qty <= 0 {
		return nil, models.ErrInvalidQuantity
	}
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := userExists(tx, userID); err != nil {
			return err
		}
		var p models.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrProductNotFound
			}
			return err
		}
		if err := reserve(tx, productID, qty); err != nil {
			return err
		}
		var err error
		order, err = s.insert(tx, userID, []Line{{ProductID: p.ID, ProductName: p.Name, Quantity: qty, UnitPrice: p.Price}})
		return err
	})
	if err != nil {
		return nil, s.fail("buy now", err, zap.String("product_id", productID.String()))
	}
	s.published(ctx, order)
	return order, nil
}

// MarkPaid переводит заказ в paid, если он ещё не оплачен.
// Повторный вызов возвращает заказ без изменений (paid_at не трогается).
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string) (*models.Order, error) {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND is_paid = ? AND status IN ?", id, false, models.SourcesFor(models.StatusPaid)).
		Updates(map[string]interface{}{
			"status":     models.StatusPaid,
			"is_paid":    true,
			"paid_at":    s.now(),
			"payment_id": paymentID,
		})
	if res.Error != nil {
		return nil, s.fail("mark paid", res.Error, zap.String("order_id", id.String()))
	}

	order, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		if order.IsPaid {
			return order, nil
		}
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, order.Status, models.StatusPaid)
	}
	s.published(ctx, order)
	return order, nil
}

// MarkAwaitingPayment помечает, что по заказу выдана ссылка на оплату
func (s *Service) MarkAwaitingPayment(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.StatusUnpaid {
		return order, nil
	}
	order, _, err = s.transition(ctx, id, models.StatusUnpaid, nil)
	return order, err
}

// MarkShipped - только из paid
func (s *Service) MarkShipped(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, changed, err := s.transition(ctx, id, models.StatusShipped, nil)
	if err != nil {
		return nil, err
	}
	if changed {
		s.published(ctx, order)
	}
	return order, nil
}

// MarkRefunded - только из paid или shipped
func (s *Service) MarkRefunded(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, changed, err := s.transition(ctx, id, models.StatusRefunded, nil)
	if err != nil {
		return nil, err
	}
	if changed {
		s.published(ctx, order)
	}
	return order, nil
}

// Cancel отменяет неотгруженный заказ и возвращает товары на склад.
// Отменённый заказ не считается оплаченным: is_paid сбрасывается, paid_at и payment_id остаются для сверки.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, changed, err := s.transition(ctx, id, models.StatusCancelled, func(tx *gorm.DB) error {
		if err := tx.Model(&models.Order{}).Where("id = ?", id).Update("is_paid", false).Error; err != nil {
			return err
		}
		var items []models.OrderItem
		if err := tx.Where("order_id = ?", id).Find(&items).Error; err != nil {
			return err
		}
		for _, it := range items {
			err := tx.Model(&models.Product{}).Where("id = ?", it.ProductID).Updates(map[string]interface{}{
				"stock": gorm.Expr("stock + ?", it.Quantity),
				"sales": gorm.Expr("CASE WHEN sales >= ? THEN sales - ? ELSE 0 END", it.Quantity, it.Quantity),
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.published(ctx, order)
	}
	return order, nil
}

// transition - условный UPDATE ... WHERE status IN (допустимые источники).
// after выполняется в той же транзакции, если статус действительно сменился.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to models.OrderStatus, after func(tx *gorm.DB) error) (*models.Order, bool, error) {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status IN ?", id, models.SourcesFor(to)).
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current models.Order
			if err := tx.Select("status").First(&current, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return models.ErrOrderNotFound
				}
				return err
			}
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, to)
		}
		changed = true
		if after != nil {
			return after(tx)
		}
		return nil
	})
	if err != nil {
		return nil, false, s.fail("transition to "+string(to), err, zap.String("order_id", id.String()))
	}
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return order, changed, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := withItems(s.db.WithContext(ctx)).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrOrderNotFound
		}
		return nil, s.fail("get", err, zap.String("order_id", id.String()))
	}
	return &order, nil
}

func (s *Service) GetByOutNo(ctx context.Context, outNo string) (*models.Order, error) {
	var order models.Order
	if err := withItems(s.db.WithContext(ctx)).First(&order, "out_no = ?", strings.TrimSpace(outNo)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrOrderNotFound
		}
		return nil, s.fail("get by out_no", err)
	}
	return &order, nil
}

// Find принимает UUID, короткий ID (первые символы UUID) или номер заказа
func (s *Service) Find(ctx context.Context, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return s.GetByID(ctx, id)
	}
	if order, err := s.GetByOutNo(ctx, ref); err == nil || !errors.Is(err, models.ErrOrderNotFound) {
		return order, err
	}
	ref = strings.ToLower(ref)
	if len(ref) < 6 || strings.Trim(ref, "0123456789abcdef-") != "" {
		return nil, models.ErrOrderNotFound
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("CAST(id AS TEXT) LIKE ?", ref+"%").
		Limit(2).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, s.fail("find", err)
	}
	switch len(ids) {
	case 0:
		return nil, models.ErrOrderNotFound
	case 1:
		id, err := uuid.Parse(ids[0])
		if err != nil {
			return nil, err
		}
		return s.GetByID(ctx, id)
	}
	return nil, fmt.Errorf("%w: номер %q неоднозначен", models.ErrValidation, ref)
}

// GetByUser - все заказы пользователя, новые первыми
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var list []models.Order
	err := withItems(s.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, s.fail("get by user", err, zap.String("user_id", userID.String()))
	}
	return list, nil
}

// LatestUnpaid - последний заказ, который ещё можно оплатить
func (s *Service) LatestUnpaid(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := withItems(s.db.WithContext(ctx)).
		Where("user_id = ? AND is_paid = ? AND status IN ?", userID, false, models.SourcesFor(models.StatusPaid)).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrOrderNotFound
		}
		return nil, s.fail("latest unpaid", err)
	}
	return &order, nil
}

// ListRecent - последние заказы магазина для админки
func (s *Service) ListRecent(ctx context.Context, limit int) ([]models.Order, error) {
	var list []models.Order
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, s.fail("list recent", err)
	}
	return list, nil
}

type Stats struct {
	Users    int64
	Orders   int64
	Pending  int64
	Shipped  int64
	Refunded int64
	Revenue  decimal.Decimal
}

// Stats - сводка для /start админа и /stats. Выручка - оплаченные и отгруженные заказы.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	st := &Stats{}
	if err := db.Model(&models.User{}).Count(&st.Users).Error; err != nil {
		return nil, s.fail("stats", err)
	}

	var rows []struct {
		Status models.OrderStatus
		N      int64
	}
	if err := db.Model(&models.Order{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, s.fail("stats", err)
	}
	for _, r := range rows {
		st.Orders += r.N
		switch r.Status {
		case models.StatusPending, models.StatusUnpaid:
			st.Pending += r.N
		case models.StatusShipped:
			st.Shipped += r.N
		case models.StatusRefunded:
			st.Refunded += r.N
		}
	}

	var totals []decimal.Decimal
	err := db.Model(&models.Order{}).
		Where("status IN ?", []models.OrderStatus{models.StatusPaid, models.StatusShipped}).
		Pluck("total_amount", &totals).Error
	if err != nil {
		return nil, s.fail("stats", err)
	}
	st.Revenue = decimal.Sum(decimal.Zero, totals...).Round(2)
	return st, nil
}

func (s *Service) insert(tx *gorm.DB, userID uuid.UUID, lines []Line) (*models.Order, error) {
	order := &models.Order{
		OutNo:  newOutNo(s.now()),
		UserID: userID,
		Status: models.StatusPending,
	}
	total := decimal.Zero
	for _, l := range lines {
		item := models.OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
		total = total.Add(item.Subtotal())
		order.Items = append(order.Items, item)
	}
	order.TotalAmount = total.Round(2)

	if err := tx.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// reserve списывает остаток и увеличивает продажи, только если товара хватает
func reserve(tx *gorm.DB, productID uuid.UUID, qty int) error {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND is_active = ? AND stock >= ?", productID, true, qty).
		Updates(map[string]interface{}{
			"stock": gorm.Expr("stock - ?", qty),
			"sales": gorm.Expr("sales + ?", qty),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var p models.Product
	if err := tx.Select("is_active", "stock").First(&p, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrProductNotFound
		}
		return err
	}
	if !p.IsActive {
		return models.ErrProductUnavailable
	}
	return models.ErrInsufficientStock
}

func userExists(tx *gorm.DB, userID uuid.UUID) error {
	var n int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return models.ErrEmptyOrder
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return models.ErrInvalidQuantity
		}
		if l.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: отрицательная цена %s", models.ErrValidation, l.UnitPrice)
		}
	}
	return nil
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") })
}

// newOutNo - номер заказа для платёжки: время + короткий случайный суффикс
func newOutNo(t time.Time) string {
	return t.Format("20060102150405") + "-" + strings.ToUpper(uuid.NewString()[:8])
}

// published - тип события определяется новым статусом заказа
func (s *Service) published(ctx context.Context, o *models.Order) {
	t := events.TypeFor(o.Status)
	s.metrics.Order(string(o.Status))
	if err := s.pub.Publish(ctx, events.NewOrderEvent(t, o)); err != nil {
		s.log.Warn("event publish failed", zap.String("type", string(t)), zap.String("order_id", o.ID.String()), zap.Error(err))
	}
}

func (s *Service) fail(op string, err error, fields ...zap.Field) error {
	if models.IsDomain(err) {
		return err
	}
	s.log.Error("order "+op+" failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("order %s: %w", op, err)
}
