package db

import (
	"context"
	"fmt"
	"strings"

	"tg_shop/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// (АДМИН) SetConfig создаёт или перезаписывает настройку
func SetConfig(ctx context.Context, DB *gorm.DB, key, value string) (*models.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > 50 {
		return nil, fmt.Errorf("%w: ключ должен быть от 1 до 50 символов", models.ErrValidation)
	}
	s := models.Setting{Key: key, Value: value}
	err := DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func GetConfig(ctx context.Context, DB *gorm.DB, key string) (*models.Setting, error) {
	var s models.Setting
	if err := DB.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).First(&s).Error; err != nil {
		return nil, notFound(err, models.ErrConfigNotFound)
	}
	return &s, nil
}

func ListConfigs(ctx context.Context, DB *gorm.DB) ([]models.Setting, error) {
	var settings []models.Setting
	if err := DB.WithContext(ctx).Order("key").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}
