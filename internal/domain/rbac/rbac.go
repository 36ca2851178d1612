// Пакет rbac — роли гостевой книги и проверка доступа.
// Роль вычисляется из claims токена Keycloak при каждом запросе;
// локально роль повысить нельзя.
package rbac

import (
	"errors"
	"slices"
)

// Роли в порядке возрастания привилегий.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
	RoleOwner = "OWNER"
)

// Имена ролей в Keycloak (realm или client roles).
const (
	keycloakRoleOwner = "owner"
	keycloakRoleAdmin = "admin"
)

// ErrForbidden — роль не входит в набор разрешённых.
var ErrForbidden = errors.New("недостаточно прав")

// RoleFromClaims вычисляет роль по объединению client roles
// (resource_access[clientID].roles) и realm roles.
// owner важнее admin; при отсутствии обеих — USER.
func RoleFromClaims(realmRoles, clientRoles []string) string {
	has := func(role string) bool {
		return slices.Contains(clientRoles, role) || slices.Contains(realmRoles, role)
	}
	switch {
	case has(keycloakRoleOwner):
		return RoleOwner
	case has(keycloakRoleAdmin):
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Authorize разрешает доступ, только если role входит в allowed.
// Иерархия не подразумевается: каждая допустимая роль перечисляется явно.
func Authorize(role string, allowed ...string) error {
	if slices.Contains(allowed, role) {
		return nil
	}
	return ErrForbidden
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// Moderators — роли, которым доступны владельческие и административные операции.
var Moderators = []string{RoleOwner, RoleAdmin}
