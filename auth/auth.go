package auth

import (
	"slices"

	"tg_shop/models"
)

type Action string

const (
	Ban            Action = "ban"
	Unban          Action = "unban"
	UserInfo       Action = "userinfo"
	ListUsers      Action = "users"
	SetRole        Action = "setadmin"
	ResetPassword  Action = "resetpw"
	SetConfig      Action = "setconfig"
	GetConfig      Action = "getconfig"
	ManageProducts Action = "products"
	ManageOrders   Action = "orders"
	ViewStats      Action = "stats"
)

var moderatorActions = []Action{Ban, Unban, UserInfo, ListUsers}

// BotAuth - администраторы из ADMIN_IDS и проверка прав по ролям
type BotAuth struct {
	admins map[int64]bool
	ids    []int64
}

func New(adminIDs []int64) *BotAuth {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &BotAuth{admins: admins, ids: slices.Clone(adminIDs)}
}

// Проверяет, указан ли пользователь в ADMIN_IDS
func (a *BotAuth) IsAdmin(telegramID int64) bool {
	if a == nil || a.admins == nil {
		return false
	}
	return a.admins[telegramID]
}

func (a *BotAuth) AdminIDs() []int64 {
	if a == nil {
		return nil
	}
	return a.ids
}

func rank(r models.Role) int {
	switch r {
	case models.RoleModerator:
		return 1
	case models.RoleAdmin:
		return 2
	case models.RoleSuperadmin:
		return 3
	}
	return 0
}

// Can: moderator - бан/разбан и просмотр пользователей, admin - всё, superadmin - всё.
// Заблокированный пользователь не может ничего.
func Can(u *models.User, a Action) bool {
	if u == nil || u.IsBlocked {
		return false
	}
	switch u.Role {
	case models.RoleSuperadmin, models.RoleAdmin:
		return true
	case models.RoleModerator:
		return slices.Contains(moderatorActions, a)
	}
	return false
}

// CanAssign - назначать superadmin может только superadmin
func CanAssign(actor *models.User, role models.Role) bool {
	if !Can(actor, SetRole) {
		return false
	}
	if role == models.RoleSuperadmin {
		return actor.Role == models.RoleSuperadmin
	}
	return true
}

// CanModerate - действовать над пользователем можно только с ролью выше его
func CanModerate(actor, target *models.User) bool {
	if actor == nil || target == nil {
		return false
	}
	if actor.ID == target.ID {
		return false
	}
	return rank(actor.Role) > rank(target.Role)
}

// IsStaff - видит админское меню
func IsStaff(u *models.User) bool {
	return u != nil && !u.IsBlocked && rank(u.Role) > 0
}
