package domain

// Role: роль аутентифицированного пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal: аутентифицированный участник операции. Слой идентификации заполняет его целиком,
// менеджер заказов только проверяет права.
type Principal struct {
	ID    string
	Email string
	Role  Role
}

// IsAdmin сообщает, есть ли у участника административные права.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// RequireRole: единая проверка роли для всех защищённых операций.
// Администратор проходит любую проверку.
func RequireRole(p Principal, role Role) error {
	if p.ID == "" {
		return ErrUnauthenticated
	}
	if p.Role == role || p.IsAdmin() {
		return nil
	}
	return ErrForbidden
}

// CanAccessOrder: владелец или администратор.
func CanAccessOrder(p Principal, order Order) error {
	if p.ID == "" {
		return ErrUnauthenticated
	}
	if p.IsAdmin() || order.OwnerID == p.ID {
		return nil
	}
	return ErrForbidden
}
