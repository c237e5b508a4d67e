package db

import (
	"context"
	"fmt"
	"strings"

	"tg_shop/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// (АДМИН) CreateProduct проверяет поля и сохраняет новый товар
func CreateProduct(ctx context.Context, DB *gorm.DB, p *models.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: название товара не может быть пустым", models.ErrValidation)
	}
	if len([]rune(p.Name)) > 100 {
		return fmt.Errorf("%w: название длиннее 100 символов", models.ErrValidation)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: цена должна быть больше нуля", models.ErrValidation)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: остаток не может быть отрицательным", models.ErrValidation)
	}
	p.Price = p.Price.Round(2)
	p.IsActive = true
	return DB.WithContext(ctx).Create(p).Error
}

func GetProduct(ctx context.Context, DB *gorm.DB, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	if err := DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, models.ErrProductNotFound)
	}
	return &p, nil
}

// FindProduct принимает полный UUID или короткий ID из списка товаров
func FindProduct(ctx context.Context, DB *gorm.DB, ref string) (*models.Product, error) {
	var p models.Product
	if err := findByRef(ctx, DB, &p, ref, models.ErrProductNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActiveProducts - активные товары, новые первыми; search ищет по подстроке в названии без учёта регистра
func ListActiveProducts(ctx context.Context, DB *gorm.DB, search string) ([]models.Product, error) {
	q := DB.WithContext(ctx).Where("is_active = ?", true)
	if search = strings.TrimSpace(search); search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	var products []models.Product
	if err := q.Order("created_at DESC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ListAllProducts - для админки, включая снятые с продажи
func ListAllProducts(ctx context.Context, DB *gorm.DB) ([]models.Product, error) {
	var products []models.Product
	if err := DB.WithContext(ctx).Order("name").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// (АДМИН) DeactivateProduct снимает товар с продажи; строки заказов не трогаются
func DeactivateProduct(ctx context.Context, DB *gorm.DB, id uuid.UUID) (*models.Product, error) {
	p, err := GetProduct(ctx, DB, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return p, nil
	}
	if err := DB.WithContext(ctx).Model(p).Update("is_active", false).Error; err != nil {
		return nil, err
	}
	p.IsActive = false
	return p, nil
}

// (АДМИН) RedactProducts применяет отредактированный прайс-лист: цена и остаток по каждому ID.
// Все строки применяются в одной транзакции; неизвестный ID откатывает всё.
func RedactProducts(ctx context.Context, DB *gorm.DB, updates []models.ProductUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, fmt.Errorf("%w: в прайс-листе нет строк", models.ErrValidation)
	}
	changed := 0
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if !u.Price.IsPositive() || u.Stock < 0 {
				return fmt.Errorf("%w: неверные цена или остаток для %s", models.ErrValidation, ShortID(u.ID))
			}
			var p models.Product
			if err := tx.First(&p, "id = ?", u.ID).Error; err != nil {
				return fmt.Errorf("товар %s: %w", ShortID(u.ID), notFound(err, models.ErrProductNotFound))
			}
			price := u.Price.Round(2)
			if p.Price.Equal(price) && p.Stock == u.Stock {
				continue
			}
			err := tx.Model(&p).Updates(map[string]interface{}{
				"price": price,
				"stock": u.Stock,
			}).Error
			if err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
