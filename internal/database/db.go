package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tg_shop/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func Migrate(DB *gorm.DB) error {
	return DB.AutoMigrate(models.All()...)
}

func Ping(ctx context.Context, DB *gorm.DB) error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// notFound переводит gorm.ErrRecordNotFound в доменную ошибку
func notFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

// findByRef ищет запись по полному UUID или по его префиксу (короткий ID из списков, от 6 символов)
func findByRef(ctx context.Context, DB *gorm.DB, dest interface{}, ref string, notFoundErr error) error {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if id, err := uuid.Parse(ref); err == nil {
		return notFound(DB.WithContext(ctx).First(dest, "id = ?", id).Error, notFoundErr)
	}
	if len(ref) < 6 || strings.Trim(ref, "0123456789abcdef-") != "" {
		return fmt.Errorf("%w: некорректный ID %q", models.ErrValidation, ref)
	}

	var ids []string
	err := DB.WithContext(ctx).Model(dest).
		Where("CAST(id AS TEXT) LIKE ?", ref+"%").
		Limit(2).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	switch len(ids) {
	case 0:
		return notFoundErr
	case 1:
		return DB.WithContext(ctx).First(dest, "id = ?", ids[0]).Error
	default:
		return fmt.Errorf("%w: ID %q неоднозначен, укажите больше символов", models.ErrValidation, ref)
	}
}

// ShortID - первые 8 символов UUID для отображения в чате
func ShortID(id uuid.UUID) string {
	return id.String()[:8]
}

// SeedTestData заполняет пустой каталог демонстрационными товарами
func SeedTestData(DB *gorm.DB) error {
	var count int64
	if err := DB.Model(&models.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	testProducts := []models.Product{
		{Name: "MacBook Air M1", Description: "Ноутбук Apple, 8/256", Price: decimal.RequireFromString("6999.00"), Stock: 5},
		{Name: "iPhone 15 Pro", Description: "Смартфон Apple, 128 ГБ", Price: decimal.RequireFromString("7999.00"), Stock: 3},
		{Name: "Galaxy Tab S9", Description: "Планшет Samsung", Price: decimal.RequireFromString("4599.00"), Stock: 2},
		{Name: "Redmi Note 12", Description: "Смартфон Xiaomi", Price: decimal.RequireFromString("1299.00"), Stock: 10},
		{Name: "USB-C кабель", Description: "1 м, 60 Вт", Price: decimal.RequireFromString("29.90"), Stock: 100},
	}

	for i := range testProducts {
		testProducts[i].IsActive = true
		if err := DB.Create(&testProducts[i]).Error; err != nil {
			return fmt.Errorf("failed to create product: %v", err)
		}
	}
	return nil
}
