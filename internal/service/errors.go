// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — ключ объекта уже привязан к другой записи.
	ErrConflict = errors.New("ключ объекта уже использован")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnsupportedType — тип содержимого вне списка разрешённых.
	ErrUnsupportedType = errors.New("неподдерживаемый тип файла")
	// ErrPayloadTooLarge — заявленный размер превышает лимит.
	ErrPayloadTooLarge = errors.New("файл слишком большой")
	// ErrConsentRequired — автор не дал согласия на публикацию.
	ErrConsentRequired = errors.New("требуется согласие на публикацию")
	// ErrKeyNotOwned — ключ объекта выдан другому пользователю.
	ErrKeyNotOwned = errors.New("ключ объекта не принадлежит пользователю")
	// ErrStickyLimit — достигнут лимит закреплённых записей.
	ErrStickyLimit = errors.New("достигнут лимит закреплённых записей")
	// ErrNotAccessible — запись не прошла модерацию или скрыта.
	ErrNotAccessible = errors.New("запись недоступна")
	// ErrInvalidCursor — курсор пагинации не найден.
	ErrInvalidCursor = errors.New("некорректный курсор")
)
