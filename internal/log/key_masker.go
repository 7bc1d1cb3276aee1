package log

import (
	"context"
	"log/slog"
	"regexp"
)

// KeyMaskerHandler - обертка для slog.Handler, которая маскирует ключи
// расшифровки в логах
type KeyMaskerHandler struct {
	handler slog.Handler
}

// NewKeyMaskerHandler создает новый обработчик с маскировкой ключей
func NewKeyMaskerHandler(handler slog.Handler) *KeyMaskerHandler {
	return &KeyMaskerHandler{
		handler: handler,
	}
}

// маскируем 64-символьные шестнадцатеричные ключи SQLCipher
var dbKeyRegex = regexp.MustCompile(`\b[0-9a-fA-F]{64}\b`)

// maskKeys заменяет найденные ключи на маску
func maskKeys(text string) string {
	return dbKeyRegex.ReplaceAllString(text, "***masked-key***")
}

// Enabled реализует интерфейс slog.Handler
func (h *KeyMaskerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle реализует интерфейс slog.Handler
func (h *KeyMaskerHandler) Handle(ctx context.Context, record slog.Record) error {
	// Собираем новую запись с нуля: копия через Clone сохранила бы
	// немаскированные атрибуты оригинала.
	r := slog.NewRecord(record.Time, record.Level, maskKeys(record.Message), record.PC)

	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(slog.Attr{
			Key:   a.Key,
			Value: maskAttributeValue(a.Value),
		})
		return true
	})

	return h.handler.Handle(ctx, r)
}

// WithAttrs реализует интерфейс slog.Handler
func (h *KeyMaskerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		maskedAttrs[i] = slog.Attr{
			Key:   attr.Key,
			Value: maskAttributeValue(attr.Value),
		}
	}
	return &KeyMaskerHandler{
		handler: h.handler.WithAttrs(maskedAttrs),
	}
}

// WithGroup реализует интерфейс slog.Handler
func (h *KeyMaskerHandler) WithGroup(name string) slog.Handler {
	return &KeyMaskerHandler{
		handler: h.handler.WithGroup(name),
	}
}

// maskAttributeValue рекурсивно маскирует значения атрибутов
func maskAttributeValue(value slog.Value) slog.Value {
	switch value.Kind() {
	case slog.KindString:
		return slog.StringValue(maskKeys(value.String()))
	case slog.KindAny:
		// Ошибки преобразуются в строку и маскируются: ключ нередко
		// попадает в текст ошибки открытия базы.
		if err, ok := value.Any().(error); ok {
			return slog.StringValue(maskKeys(err.Error()))
		}
		return value
	case slog.KindGroup:
		group := value.Group()
		maskedGroup := make([]slog.Attr, len(group))
		for i, attr := range group {
			maskedGroup[i] = slog.Attr{
				Key:   attr.Key,
				Value: maskAttributeValue(attr.Value),
			}
		}
		return slog.GroupValue(maskedGroup...)
	default:
		// Для других типов возвращаем оригинальное значение
		return value
	}
}

// NewMaskedLogger создает новый экземпляр slog.Logger с маскировкой ключей
func NewMaskedLogger(handler slog.Handler) *slog.Logger {
	return slog.New(NewKeyMaskerHandler(handler))
}
