package ports

import (
	"context"

	"wechat-chat-exporter/internal/domain"
)

// CursorHandle — серверный курсор постраничной выборки сообщений одной беседы.
// Ресурс ограниченной области: после цикла выборки должен быть закрыт,
// в том числе при досрочном выходе по ошибке.
type CursorHandle interface {
	// FetchBatch возвращает следующую страницу строк и признак наличия
	// дальнейших данных.
	FetchBatch(ctx context.Context) (rows []domain.RawRow, hasMore bool, err error)
	// Close освобождает курсор.
	Close() error
}

// CursorQuery описывает параметры открытия курсора.
type CursorQuery struct {
	ConversationID string
	PageSize       int
	Ascending      bool
	// RangeStart и RangeEnd — границы фильтра по времени в секундах
	// с начала эпохи; ноль означает отсутствие границы.
	RangeStart int64
	RangeEnd   int64
}

// CursorSource определяет интерфейс доступа к хранилищу сообщений.
// Слой шифрованной базы остаётся за пределами ядра: ядро потребляет
// только эту абстракцию.
type CursorSource interface {
	OpenCursor(ctx context.Context, q CursorQuery) (CursorHandle, error)
}

// RosterSource возвращает полный список участников групповой беседы,
// независимо от того, кто из них писал сообщения.
type RosterSource interface {
	GetGroupMembers(ctx context.Context, conversationID string) ([]domain.MemberRecord, error)
}

// ContactSource разрешает отображаемые имена и аватары по идентификаторам.
// Частичный результат допустим: отсутствующие идентификаторы просто
// не попадают в карту.
type ContactSource interface {
	GetDisplayNames(ctx context.Context, ids []string) (map[string]string, error)
	GetAvatarURLs(ctx context.Context, ids []string) (map[string]string, error)
}

// ImageProvider — внешний коллаборатор расшифровки изображений.
type ImageProvider interface {
	// DecryptImage возвращает локальный путь расшифрованного изображения
	// по контрольной сумме или имени файла.
	DecryptImage(ctx context.Context, checksum string) (string, error)
	// Thumbnail возвращает путь к кешированной миниатюре; используется
	// как запасной вариант при неудачной расшифровке.
	Thumbnail(ctx context.Context, checksum string) (string, error)
}

// VoiceProvider — внешний коллаборатор извлечения голосовых сообщений.
type VoiceProvider interface {
	// VoiceData возвращает сырые байты аудио по идентификатору сообщения.
	VoiceData(ctx context.Context, localID int64) ([]byte, error)
	// Transcribe возвращает текстовую расшифровку голосового сообщения.
	Transcribe(ctx context.Context, localID int64) (string, error)
}

// ContentDecoder определяет интерфейс декодирования сырого содержимого.
type ContentDecoder interface {
	// Decode превращает сырые поля строки в декодированный текст.
	// Никогда не возвращает ошибку: любой сбой даёт пустую строку.
	Decode(content string, compressContent []byte) string
}

// ContentParser определяет интерфейс построения человекочитаемой сводки.
type ContentParser interface {
	// Parse возвращает сводку для декодированного содержимого и кода типа
	// и ссылки на бинарное содержимое, если они есть.
	Parse(decoded string, localType int) (summary string, refs *domain.MediaRefs)
}

// IdentityResolver определяет интерфейс разрешения участников.
type IdentityResolver interface {
	// ResolveDisplay возвращает отображаемое имя и аватар для идентификатора.
	// Результаты мемоизируются в пределах одной задачи экспорта.
	ResolveDisplay(ctx context.Context, identifier string) (name string, avatar string)
	// MergeRoster дополняет карту участников полным списком группы.
	MergeRoster(ctx context.Context, conversationID string, existing map[string]*domain.MemberRecord, includeAvatars bool) error
}

// MediaExtractor определяет интерфейс материализации бинарных вложений.
type MediaExtractor interface {
	// Extract сохраняет вложение сообщения под детерминированным путём.
	// Возвращает nil без ошибки, если у сообщения нет вложения или его
	// не удалось получить: неудача медиа не прерывает экспорт.
	Extract(ctx context.Context, msg *domain.DecodedMessage, conversationID string) (*domain.MediaExportItem, error)
}

// Exporter определяет интерфейс писателя выходного формата.
type Exporter interface {
	// Export сериализует документ в файл по указанному пути.
	Export(doc *domain.ExportDocument, path string, progress domain.ProgressFunc) error
}
