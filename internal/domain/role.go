package domain

import (
	"fmt"
	"strings"
)

// Role — закрытый набор ролей пользователя.
type Role int

const (
	RoleUnknown Role = iota
	RoleCustomer
	RoleShop
	RoleAdmin
)

// ParseRole разбирает роль из токена/конфига.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer":
		return RoleCustomer, nil
	case "shop":
		return RoleShop, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleShop:
		return "shop"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Identity — кто выполняет операцию. Передаётся явно, глобальной сессии нет.
type Identity struct {
	Role      Role
	SubjectID string
	Name      string
}

// CanActOn — клиент и магазин работают только со своими данными, админ со всеми.
func (i Identity) CanActOn(role Role, subjectID string) bool {
	if i.Role == RoleAdmin {
		return true
	}
	return i.Role == role && i.SubjectID != "" && i.SubjectID == subjectID
}
