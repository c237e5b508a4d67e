package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base - общие поля всех сущностей магазина (UUID вместо автоинкремента)
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User - покупатель или администратор, идентифицируется по Telegram ID
type User struct {
	Base
	TelegramID int64     `gorm:"not null;uniqueIndex" json:"telegram_id"`
	Username   string    `gorm:"size:100" json:"username"`
	FirstName  string    `gorm:"size:50" json:"first_name,omitempty"`
	LastName   string    `gorm:"size:50" json:"last_name,omitempty"`
	Email      string    `gorm:"size:200" json:"email,omitempty"`
	Phone      string    `gorm:"size:20" json:"phone,omitempty"`
	Language   string    `gorm:"size:10" json:"language,omitempty"`
	Role       Role      `gorm:"type:varchar(20);not null;default:user" json:"role"`
	IsBlocked  bool      `gorm:"not null;default:false" json:"is_blocked"`
	IsVerified bool      `gorm:"not null;default:false" json:"is_verified"`
	Password   string    `gorm:"column:password;size:255" json:"-"`
	LastActive time.Time `json:"last_active"`

	CartItems []CartItem `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Orders    []Order    `gorm:"foreignKey:UserID" json:"-"`
}

func (u *User) IsAdmin() bool {
	return u != nil && (u.Role == RoleAdmin || u.Role == RoleSuperadmin)
}

// Product - товар каталога
type Product struct {
	Base
	Name        string          `gorm:"not null;size:100;index" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock       int             `gorm:"not null;default:0" json:"stock"`
	IsActive    bool            `gorm:"not null;default:true;index" json:"is_active"`
	Sales       int             `gorm:"not null;default:0" json:"sales"`
	ImageFileID string          `gorm:"size:255" json:"image_file_id,omitempty"`
	ImageURL    string          `gorm:"size:255" json:"image_url,omitempty"`
}

// CartItem - строка корзины. На пару (user, product) не больше одной записи
type CartItem struct {
	Base
	UserID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"user_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"product_id"`
	Quantity    int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	ProductName string          `gorm:"size:255;not null" json:"product_name"`
}

func (c CartItem) Subtotal() decimal.Decimal {
	return c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// Order - заказ; сумма фиксируется при создании
type Order struct {
	Base
	OutNo       string          `gorm:"not null;size:64;uniqueIndex" json:"out_no"`
	UserID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Status      OrderStatus     `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	IsPaid      bool            `gorm:"not null;default:false" json:"is_paid"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	PaymentID   string          `gorm:"size:100" json:"payment_id,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

// OrderItem - позиция заказа, цена не меняется после оформления
type OrderItem struct {
	Base
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	ProductName string          `gorm:"size:255" json:"product_name"`
	Quantity    int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ProductUpdate - строка отредактированного прайс-листа
type ProductUpdate struct {
	ID    uuid.UUID
	Price decimal.Decimal
	Stock int
}

// Setting - настройка key/value, меняется админом через /setconfig
type Setting struct {
	Base
	Key   string `gorm:"not null;size:50;uniqueIndex" json:"key"`
	Value string `gorm:"type:text;not null" json:"value"`
}

func (Setting) TableName() string { return "configs" }

// All - список моделей для AutoMigrate
func All() []interface{} {
	return []interface{}{&User{}, &Product{}, &CartItem{}, &Order{}, &OrderItem{}, &Setting{}}
}
