package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Виды объектов в ключе (uploads/{kind}s/…).
const (
	KindImage = "image"
	KindVideo = "video"
)

const (
	keyPrefix          = "uploads"
	ownerSegmentPrefix = "owner-"
)

// ErrMalformedKey — ключ не соответствует формату uploads/{kind}s/{segment}/{ts}-{name}.
var ErrMalformedKey = errors.New("некорректный ключ объекта")

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// KeyParts — разобранный ключ объекта.
type KeyParts struct {
	// Kind — image или video
	Kind string
	// Segment — ID пользователя или owner-{ID}
	Segment string
	// UploadedAt — метка времени из имени
	UploadedAt time.Time
	// Filename — санированное имя файла
	Filename string
}

// SanitizeFilename заменяет всё, кроме [A-Za-z0-9.-], на '_'.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// UserSegment — сегмент ключа для загрузок обычного пользователя.
func UserSegment(userID string) string {
	return userID
}

// OwnerSegment — сегмент ключа для загрузок владельца.
func OwnerSegment(userID string) string {
	return ownerSegmentPrefix + userID
}

// BuildKey формирует ключ uploads/{kind}s/{segment}/{unixMillis}-{sanitized}.
func BuildKey(kind, segment, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%ss/%s/%d-%s",
		keyPrefix, kind, segment, now.UnixMilli(), SanitizeFilename(filename))
}

// ParseKey разбирает ключ, построенный BuildKey.
func ParseKey(key string) (KeyParts, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != keyPrefix {
		return KeyParts{}, ErrMalformedKey
	}

	var kp KeyParts
	switch parts[1] {
	case KindImage + "s":
		kp.Kind = KindImage
	case KindVideo + "s":
		kp.Kind = KindVideo
	default:
		return KeyParts{}, ErrMalformedKey
	}

	kp.Segment = parts[2]
	if kp.Segment == "" {
		return KeyParts{}, ErrMalformedKey
	}

	ts, name, ok := strings.Cut(parts[3], "-")
	if !ok || name == "" {
		return KeyParts{}, ErrMalformedKey
	}
	millis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || millis < 0 {
		return KeyParts{}, ErrMalformedKey
	}
	kp.UploadedAt = time.UnixMilli(millis)
	kp.Filename = name

	return kp, nil
}

// KeyOwnedBy сообщает, что ключ корректен и его сегмент владельца равен segment.
// Сравнивается сегмент целиком, а не вхождение подстроки.
func KeyOwnedBy(key, segment string) bool {
	kp, err := ParseKey(key)
	if err != nil {
		return false
	}
	return kp.Segment == segment
}
