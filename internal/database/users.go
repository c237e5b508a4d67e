package db

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"tg_shop/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const MinPasswordLen = 6

// GetOrCreateUser находит пользователя по Telegram ID или создаёт нового.
// Строка блокируется на время транзакции; пользователи из ADMIN_IDS получают роль superadmin.
func GetOrCreateUser(ctx context.Context, DB *gorm.DB, p models.TelegramProfile, adminIDs []int64) (*models.User, bool, error) {
	user, created, err := getOrCreateUser(ctx, DB, p, adminIDs)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// параллельный апдейт успел создать запись раньше нас
		user, created, err = getOrCreateUser(ctx, DB, p, adminIDs)
	}
	if err != nil {
		return nil, false, fmt.Errorf("get or create user %d: %w", p.ID, err)
	}
	return user, created, nil
}

func getOrCreateUser(ctx context.Context, DB *gorm.DB, p models.TelegramProfile, adminIDs []int64) (*models.User, bool, error) {
	var user models.User
	created := false
	bootstrap := slices.Contains(adminIDs, p.ID)

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("telegram_id = ?", p.ID).
			First(&user).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{
				TelegramID: p.ID,
				Username:   p.Username,
				FirstName:  p.FirstName,
				LastName:   p.LastName,
				Language:   p.LanguageCode,
				Role:       models.RoleUser,
				LastActive: now,
			}
			if bootstrap {
				user.Role = models.RoleSuperadmin
			}
			created = true
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{"last_active": now}
		if p.Username != "" && p.Username != user.Username {
			updates["username"] = p.Username
		}
		if bootstrap && user.Role != models.RoleSuperadmin {
			updates["role"] = models.RoleSuperadmin
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		user.LastActive = now
		if bootstrap {
			user.Role = models.RoleSuperadmin
		}
		if p.Username != "" {
			user.Username = p.Username
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &user, created, nil
}

// TouchActivity обновляет last_active под блокировкой строки
func TouchActivity(ctx context.Context, DB *gorm.DB, telegramID int64) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("telegram_id = ?", telegramID).
			First(&user).Error
		if err != nil {
			return notFound(err, models.ErrUserNotFound)
		}
		return tx.Model(&user).Update("last_active", time.Now().UTC()).Error
	})
}

func GetUserByTelegramID(ctx context.Context, DB *gorm.DB, telegramID int64) (*models.User, error) {
	var user models.User
	if err := DB.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, notFound(err, models.ErrUserNotFound)
	}
	return &user, nil
}

func GetUserByID(ctx context.Context, DB *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, models.ErrUserNotFound)
	}
	return &user, nil
}

// SetBlocked ставит флаг блокировки. Повторный вызов ничего не меняет и не считается ошибкой.
func SetBlocked(ctx context.Context, DB *gorm.DB, telegramID int64, blocked bool) (*models.User, bool, error) {
	user, err := GetUserByTelegramID(ctx, DB, telegramID)
	if err != nil {
		return nil, false, err
	}
	if user.IsBlocked == blocked {
		return user, false, nil
	}
	if err := DB.WithContext(ctx).Model(user).Update("is_blocked", blocked).Error; err != nil {
		return nil, false, err
	}
	user.IsBlocked = blocked
	return user, true, nil
}

func SetRole(ctx context.Context, DB *gorm.DB, telegramID int64, role models.Role) (*models.User, error) {
	user, err := GetUserByTelegramID(ctx, DB, telegramID)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}
	if err := DB.WithContext(ctx).Model(user).Update("role", role).Error; err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

// ResetPassword сохраняет bcrypt-хэш нового пароля
func ResetPassword(ctx context.Context, DB *gorm.DB, telegramID int64, password string) error {
	if len(password) < MinPasswordLen {
		return fmt.Errorf("%w: пароль короче %d символов", models.ErrValidation, MinPasswordLen)
	}
	user, err := GetUserByTelegramID(ctx, DB, telegramID)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return DB.WithContext(ctx).Model(user).Update("password", string(hash)).Error
}

func CheckPassword(user *models.User, password string) bool {
	if user == nil || user.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

// UpdateContacts сохраняет email и телефон из /register и помечает пользователя подтверждённым
func UpdateContacts(ctx context.Context, DB *gorm.DB, telegramID int64, email, phone string) (*models.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("%w: некорректный email", models.ErrValidation)
	}
	phone = normalizePhone(phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: некорректный телефон", models.ErrValidation)
	}

	user, err := GetUserByTelegramID(ctx, DB, telegramID)
	if err != nil {
		return nil, err
	}
	err = DB.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"email":       addr.Address,
		"phone":       phone,
		"is_verified": true,
	}).Error
	if err != nil {
		return nil, err
	}
	user.Email, user.Phone, user.IsVerified = addr.Address, phone, true
	return user, nil
}

// normalizePhone оставляет цифры и ведущий "+"; пустая строка - телефон невалиден
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	return b.String()
}

// ListUsers возвращает страницу пользователей (новые первыми) и общее количество.
// Номер страницы приводится к диапазону [1, последняя].
func ListUsers(ctx context.Context, DB *gorm.DB, page, perPage int) ([]models.User, int64, int, error) {
	if perPage <= 0 {
		perPage = 10
	}
	var total int64
	if err := DB.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, 0, err
	}

	pages := int((total + int64(perPage) - 1) / int64(perPage))
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	var users []models.User
	err := DB.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error
	if err != nil {
		return nil, 0, 0, err
	}
	return users, total, page, nil
}
