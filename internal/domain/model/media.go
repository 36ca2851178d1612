package model

import "time"

// Типы записей гостевой книги.
const (
	MediaTypeImage = "IMAGE"
	MediaTypeVideo = "VIDEO"
	MediaTypeText  = "TEXT"
)

// MediaItem — запись гостевой книги (фото, видео или текст).
// Хранится в таблице media_items.
type MediaItem struct {
	ID     string
	UserID string
	// Type — IMAGE, VIDEO или TEXT
	Type string
	// S3Key — ключ объекта в бакете (nil для TEXT)
	S3Key *string
	// CustomURL — внешний адрес, заменяющий ссылку на объект
	CustomURL *string
	MimeType  *string
	SizeBytes int64
	// Message — сообщение гостя (до 500 символов)
	Message *string
	// DisplayName — подпись (до 100 символов)
	DisplayName *string
	// Consent — согласие автора на публикацию
	Consent bool
	// Approved — одобрено модератором
	Approved bool
	// Visible — не скрыто модератором
	Visible bool
	// IsOwnerPost — создано владельцем или администратором
	IsOwnerPost bool
	// IsSticky — закреплено вверху ленты
	IsSticky bool
	// StickyOrder — позиция среди закреплённых (меньше — выше)
	StickyOrder *int
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Uploader — автор записи; заполняется только в административном списке
	Uploader *Uploader
}

// PubliclyAccessible сообщает, может ли запись быть показана анонимному посетителю.
func (m *MediaItem) PubliclyAccessible() bool {
	return m.Approved && m.Visible && m.Consent
}

// Uploader — краткие сведения об авторе записи.
type Uploader struct {
	ID    string
	Name  *string
	Email *string
}

// MediaStats — счётчики для панели модерации.
type MediaStats struct {
	Total    int
	Pending  int
	Approved int
	Hidden   int
	Sticky   int
}
