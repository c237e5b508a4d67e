package models

import (
	"fmt"
	"strings"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusUnpaid    OrderStatus = "unpaid"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusRefunded  OrderStatus = "refunded"
	StatusCancelled OrderStatus = "cancelled"
)

// Допустимые переходы статусов заказа. Назад в pending вернуться нельзя.
// unpaid - по заказу выдана ссылка на оплату.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusUnpaid, StatusPaid, StatusCancelled},
	StatusUnpaid:  {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusShipped, StatusRefunded, StatusCancelled},
	StatusShipped: {StatusRefunded},
}

// CanTransition сообщает, разрешен ли переход from -> to
func CanTransition(from, to OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesFor возвращает статусы, из которых можно попасть в to
func SourcesFor(to OrderStatus) []OrderStatus {
	var res []OrderStatus
	for _, from := range []OrderStatus{StatusPending, StatusUnpaid, StatusPaid, StatusShipped} {
		if CanTransition(from, to) {
			res = append(res, from)
		}
	}
	return res
}

func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

type Role string

const (
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleModerator, RoleAdmin, RoleSuperadmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}
