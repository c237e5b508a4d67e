package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")

	ErrNotFound        = errors.New("not found")
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrConfigNotFound  = fmt.Errorf("config %w", ErrNotFound)

	ErrProductUnavailable = errors.New("product is not available")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = fmt.Errorf("%w: invalid quantity", ErrValidation)
	ErrEmptyCart          = errors.New("cart is empty")
	ErrEmptyOrder         = fmt.Errorf("%w: order has no items", ErrValidation)

	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrAlreadyPaid       = errors.New("order already paid")

	ErrForbidden        = errors.New("forbidden")
	ErrUserBlocked      = errors.New("user is blocked")
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrAmountMismatch   = errors.New("payment amount does not match order total")
)

// IsDomain сообщает, что ошибка относится к бизнес-правилам и её текст можно показать пользователю
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrNotFound, ErrProductUnavailable, ErrInsufficientStock, ErrEmptyCart,
		ErrInvalidTransition, ErrAlreadyPaid, ErrForbidden, ErrUserBlocked, ErrInvalidSignature, ErrAmountMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
