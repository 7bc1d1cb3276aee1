package domain

// Коды типов сообщений WeChat (localType в таблице MSG).
const (
	TypeText     = 1
	TypeImage    = 3
	TypeVoice    = 34
	TypeCard     = 42
	TypeVideo    = 43
	TypeEmoji    = 47
	TypeLocation = 48
	// TypeApp объединяет ссылки, файлы, мини-программы и цитаты;
	// конкретный вид определяется вложенным тегом <type>.
	TypeApp    = 49
	TypeCall   = 50
	TypeSystem = 10000
	// TypePat — устаревший код "похлопывания", содержимое как у системных.
	TypePat = 10002
)

// Подтипы сообщений с кодом 49 (значение вложенного тега <type>).
const (
	AppSubTypeFile     = 6
	AppSubTypeMiniApp  = 33
	AppSubTypeMiniApp2 = 36
	AppSubTypeQuote    = 57
)

// RawRow представляет одну запись таблицы сообщений в том виде,
// в котором её возвращает курсор: содержимое ещё не декодировано.
type RawRow struct {
	// LocalID — локальный последовательный идентификатор строки.
	LocalID int64
	// CreateTime — время создания в секундах с начала эпохи.
	CreateTime int64
	// LocalType — код типа сообщения.
	LocalType int
	// Content — основное поле содержимого (возможно hex или base64).
	Content string
	// CompressContent — сжатое поле содержимого; обычно несёт более
	// полную версию, поэтому декодер пробует его первым.
	CompressContent []byte
	// Sender — идентификатор отправителя; пустой означает "я сам".
	Sender string
	// IsSend — true для исходящих сообщений.
	IsSend bool
}

// MediaRefs хранит идентификаторы бинарного содержимого,
// извлечённые при разборе и используемые экстрактором медиа.
type MediaRefs struct {
	// ChecksumMD5 — контрольная сумма содержимого (адрес файла в кеше).
	ChecksumMD5 string
	// FileName — имя исходного файла, если известно.
	FileName string
	// EmojiURL — CDN-адрес стикера.
	EmojiURL string
}

// DecodedMessage — строка после декодирования содержимого и разбора типа.
// После создания не изменяется.
type DecodedMessage struct {
	LocalID    int64
	CreateTime int64
	LocalType  int
	// Content — человекочитаемая сводка содержимого.
	Content string
	// Sender — идентификатор отправителя (пустой для исходящих).
	Sender string
	IsSend bool
	// MediaRefs заполняется только для сообщений с бинарным содержимым.
	MediaRefs *MediaRefs
	// MediaPath — относительный путь к извлечённому медиафайлу,
	// заполняется экстрактором после материализации.
	MediaPath string
}

// MemberRecord — один участник беседы.
// Инвариант: AccountName никогда не пуст (в худшем случае равен PlatformID).
type MemberRecord struct {
	// PlatformID — ключ участника, исходный идентификатор аккаунта.
	PlatformID string `json:"platformId"`
	// AccountName — отображаемое имя аккаунта.
	AccountName string `json:"accountName"`
	// GroupNickname — ник внутри группы, если задан.
	GroupNickname string `json:"groupNickname,omitempty"`
	// Avatar — URL или локальный путь аватара.
	Avatar string `json:"avatar,omitempty"`
}

// Conversation описывает одну беседу (личную или групповую).
type Conversation struct {
	ID      string
	Name    string
	IsGroup bool
	Avatar  string
}

// DocumentHeader — метаданные экспорта, общие для всех форматов.
type DocumentHeader struct {
	Generator  string `json:"generator"`
	Version    string `json:"version"`
	ExportedAt string `json:"exportedAt"`
}

// DocumentMeta — метаданные беседы в выходном документе.
type DocumentMeta struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // group | private
	GroupID     string `json:"groupId,omitempty"`
	GroupAvatar string `json:"groupAvatar,omitempty"`
}

// ExportMessage — одно сообщение в выходном документе.
type ExportMessage struct {
	Sender        string `json:"sender"`
	AccountName   string `json:"accountName"`
	GroupNickname string `json:"groupNickname,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	Type          int    `json:"type"`
	Content       string `json:"content"`
	Media         string `json:"media,omitempty"`
	IsSelf        bool   `json:"isSelf,omitempty"`
}

// ExportDocument — агрегат, который сериализуют писатели форматов.
// Сообщения упорядочены по Timestamp; при равенстве сохраняется
// исходный порядок выборки.
type ExportDocument struct {
	Header   DocumentHeader  `json:"chatlab"`
	Meta     DocumentMeta    `json:"meta"`
	Members  []MemberRecord  `json:"members"`
	Messages []ExportMessage `json:"messages"`
}

// MediaKind — вид извлечённого медиафайла.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVoice MediaKind = "voice"
	MediaEmoji MediaKind = "emoji"
)

// MediaExportItem — результат материализации одного бинарного вложения.
type MediaExportItem struct {
	// RelativePath — путь относительно каталога экспорта.
	RelativePath string
	Kind         MediaKind
	// Transcript — текстовая расшифровка голосового сообщения;
	// заполняется вместо RelativePath в режиме "голос как текст".
	Transcript string
}

// Phase — фаза жизненного цикла экспорта для отчётов о прогрессе.
type Phase string

const (
	PhasePreparing Phase = "preparing"
	PhaseExporting Phase = "exporting"
	PhaseWriting   Phase = "writing"
	PhaseComplete  Phase = "complete"
)

// Progress — одно событие прогресса. Current и Total не убывают
// в пределах одной задачи.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Label   string `json:"label,omitempty"`
	Phase   Phase  `json:"phase"`
}

// ProgressFunc вызывается на определённых точках жизненного цикла экспорта.
type ProgressFunc func(p Progress)

// ExportSummary — итог пакетного экспорта: счётчики вместо единого
// булева результата, одна неудачная беседа не отменяет остальные.
type ExportSummary struct {
	SuccessCount int      `json:"success_count"`
	FailCount    int      `json:"fail_count"`
	Errors       []string `json:"errors,omitempty"`
}
