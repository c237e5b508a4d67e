package cart

import (
	"context"
	"errors"
	"fmt"

	"tg_shop/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrItemNotFound = fmt.Errorf("cart item %w", models.ErrNotFound)

// Service - корзина пользователя. Каждая операция коммитится сразу.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log.Named("cart")}
}

// Add кладёт товар в корзину. Если товар уже там, количество увеличивается,
// а цена и название остаются теми, что были зафиксированы при первом добавлении.
func (s *Service) Add(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.CartItem, error) {
	if qty <= 0 {
		return nil, models.ErrInvalidQuantity
	}

	var item models.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := lockProduct(tx, productID)
		if err != nil {
			return err
		}

		err = tx.Where("user_id = ? AND product_id = ?", userID, productID).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if qty > product.Stock {
				return models.ErrInsufficientStock
			}
			item = models.CartItem{
				UserID:      userID,
				ProductID:   productID,
				Quantity:    qty,
				UnitPrice:   product.Price,
				ProductName: product.Name,
			}
			return tx.Create(&item).Error
		case err != nil:
			return err
		}

		newQty := item.Quantity + qty
		if newQty > product.Stock {
			return models.ErrInsufficientStock
		}
		if err := tx.Model(&item).Update("quantity", newQty).Error; err != nil {
			return err
		}
		item.Quantity = newQty
		return nil
	})
	if err != nil {
		return nil, s.fail("add", err, zap.String("user_id", userID.String()), zap.String("product_id", productID.String()))
	}
	return &item, nil
}

// Remove удаляет позицию. Отсутствующая позиция не считается ошибкой.
func (s *Service) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartItem{}).Error
	if err != nil {
		return s.fail("remove", err, zap.String("user_id", userID.String()))
	}
	return nil
}

// Clear очищает корзину и возвращает число удалённых позиций
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{})
	if res.Error != nil {
		return 0, s.fail("clear", res.Error, zap.String("user_id", userID.String()))
	}
	return res.RowsAffected, nil
}

// UpdateQuantity задаёт точное количество. qty <= 0 удаляет позицию, тогда возвращается nil.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.CartItem, error) {
	if qty <= 0 {
		return nil, s.Remove(ctx, userID, productID)
	}

	var item models.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND product_id = ?", userID, productID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		product, err := lockProduct(tx, productID)
		if err != nil {
			return err
		}
		if qty > product.Stock {
			return models.ErrInsufficientStock
		}
		if err := tx.Model(&item).Update("quantity", qty).Error; err != nil {
			return err
		}
		item.Quantity = qty
		return nil
	})
	if err != nil {
		return nil, s.fail("update quantity", err, zap.String("user_id", userID.String()))
	}
	return &item, nil
}

func (s *Service) Items(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&items).Error; err != nil {
		return nil, s.fail("items", err, zap.String("user_id", userID.String()))
	}
	return items, nil
}

// Total - сумма по зафиксированным ценам
func Total(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total.Round(2)
}

func lockProduct(tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, models.ErrProductUnavailable
	}
	return &p, nil
}

// fail логирует ошибки БД с исходным текстом; доменные ошибки возвращаются как есть
func (s *Service) fail(op string, err error, fields ...zap.Field) error {
	if models.IsDomain(err) {
		return err
	}
	s.log.Error("cart "+op+" failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("cart %s: %w", op, err)
}
