// Пакет model — доменные модели гостевой книги.
package model

import "time"

// User — локальная запись пользователя, привязанная к учётной записи Keycloak.
// Создаётся при первой успешной проверке токена и обновляется при каждой
// последующей. Хранится в таблице users.
type User struct {
	// ID — локальный UUID, не меняется после создания
	ID string
	// KeycloakSub — subject из токена, уникален и неизменен
	KeycloakSub string
	// Name — отображаемое имя (name или preferred_username из токена)
	Name *string
	// Email — адрес электронной почты из токена
	Email *string
	// Role — роль, вычисленная из claims последнего токена (USER, ADMIN, OWNER)
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName возвращает имя пользователя или fallback, если имя не задано.
func (u *User) DisplayName(fallback string) string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return fallback
}

// UserProfile — данные из проверенного токена, применяемые при upsert.
// Пустые строки означают «claim отсутствует».
type UserProfile struct {
	Subject string
	Name    string
	Email   string
	Role    string
}
