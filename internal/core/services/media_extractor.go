package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"wechat-chat-exporter/internal/cache"
	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

// Подкаталоги медиафайлов внутри каталога экспорта.
const (
	mediaDirImages = "images"
	mediaDirVoices = "voices"
	mediaDirEmojis = "emojis"
)

// MediaConfig хранит конфигурацию для MediaExtractorImpl.
type MediaConfig struct {
	// Kinds — виды вложений, разрешённые к извлечению.
	Kinds map[domain.MediaKind]bool
	// VoiceAsText включает режим расшифровки голосовых сообщений:
	// вместо файла в содержимое попадает текст.
	VoiceAsText bool
	// HTTPTimeout — таймаут соединения и чтения для сетевых загрузок.
	HTTPTimeout time.Duration
	// MaxRedirects — предел переходов по перенаправлениям CDN.
	MaxRedirects int
}

// MediaOption — функциональная опция для настройки MediaExtractorImpl.
type MediaOption func(*MediaExtractorImpl)

// WithKinds ограничивает извлечение перечисленными видами вложений.
func WithKinds(kinds ...domain.MediaKind) MediaOption {
	return func(m *MediaExtractorImpl) {
		m.config.Kinds = make(map[domain.MediaKind]bool, len(kinds))
		for _, k := range kinds {
			m.config.Kinds[k] = true
		}
	}
}

// WithVoiceAsText включает режим "голос как текст".
func WithVoiceAsText(v bool) MediaOption {
	return func(m *MediaExtractorImpl) {
		m.config.VoiceAsText = v
	}
}

// WithHTTPTimeout устанавливает таймаут сетевых загрузок.
func WithHTTPTimeout(d time.Duration) MediaOption {
	return func(m *MediaExtractorImpl) {
		if d > 0 {
			m.config.HTTPTimeout = d
		}
	}
}

// WithMaxRedirects устанавливает предел переходов по перенаправлениям.
func WithMaxRedirects(n int) MediaOption {
	return func(m *MediaExtractorImpl) {
		if n > 0 {
			m.config.MaxRedirects = n
		}
	}
}

// WithHTTPClient подменяет HTTP-клиент; используется в тестах.
func WithHTTPClient(c *http.Client) MediaOption {
	return func(m *MediaExtractorImpl) {
		if c != nil {
			m.client = c
		}
	}
}

// WithMediaLogger устанавливает логгер для экстрактора.
func WithMediaLogger(l *slog.Logger) MediaOption {
	return func(m *MediaExtractorImpl) {
		if l != nil {
			m.log = l
		}
	}
}

// MediaExtractorImpl реализует интерфейс MediaExtractor.
// Экземпляр создаётся на одну задачу экспорта: кеш материализованных
// вложений не разделяется между задачами.
type MediaExtractorImpl struct {
	images    ports.ImageProvider
	voices    ports.VoiceProvider
	outputDir string
	config    MediaConfig
	cache     *cache.MediaCache
	client    *http.Client
	log       *slog.Logger
}

// NewMediaExtractor создает новый MediaExtractorImpl с использованием
// функциональных опций поверх конфигурации по умолчанию.
func NewMediaExtractor(images ports.ImageProvider, voices ports.VoiceProvider, outputDir string, opts ...MediaOption) *MediaExtractorImpl {
	m := &MediaExtractorImpl{
		images:    images,
		voices:    voices,
		outputDir: outputDir,
		config: MediaConfig{
			Kinds: map[domain.MediaKind]bool{
				domain.MediaImage: true,
				domain.MediaVoice: true,
				domain.MediaEmoji: true,
			},
			HTTPTimeout:  15 * time.Second,
			MaxRedirects: 5,
		},
		cache: cache.NewMediaCache(),
		log:   slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.client == nil {
		m.client = &http.Client{
			Timeout: m.config.HTTPTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= m.config.MaxRedirects {
					return fmt.Errorf("превышен предел перенаправлений (%d)", m.config.MaxRedirects)
				}
				return nil
			},
		}
	}

	return m
}

// Extract сохраняет бинарное вложение сообщения под детерминированным
// относительным путём. Неудача извлечения не является ошибкой задачи:
// сообщение экспортируется без медиа, возвращается nil.
func (m *MediaExtractorImpl) Extract(ctx context.Context, msg *domain.DecodedMessage, conversationID string) (*domain.MediaExportItem, error) {
	key := cache.Key(msg.LocalType, msg.LocalID)
	if item, ok := m.cache.Get(key); ok {
		return item, nil
	}

	var item *domain.MediaExportItem
	switch msg.LocalType {
	case domain.TypeImage:
		if !m.config.Kinds[domain.MediaImage] {
			return nil, nil
		}
		item = m.extractImage(ctx, msg)
	case domain.TypeVoice:
		if !m.config.Kinds[domain.MediaVoice] {
			return nil, nil
		}
		item = m.extractVoice(ctx, msg)
	case domain.TypeEmoji:
		if !m.config.Kinds[domain.MediaEmoji] {
			return nil, nil
		}
		item = m.extractEmoji(ctx, msg)
	default:
		return nil, nil
	}

	if item != nil {
		m.cache.Put(key, item)
	}
	return item, nil
}

// extractImage получает расшифрованное изображение у внешнего
// коллаборатора; при неудаче пробует кешированную миниатюру.
func (m *MediaExtractorImpl) extractImage(ctx context.Context, msg *domain.DecodedMessage) *domain.MediaExportItem {
	if msg.MediaRefs == nil || msg.MediaRefs.ChecksumMD5 == "" {
		return nil
	}
	checksum := msg.MediaRefs.ChecksumMD5

	src, err := m.images.DecryptImage(ctx, checksum)
	if err != nil {
		src, err = m.images.Thumbnail(ctx, checksum)
		if err != nil {
			m.log.DebugContext(ctx, "Изображение недоступно", "checksum", checksum, "error", err)
			return nil
		}
	}

	ext := filepath.Ext(src)
	if ext == "" {
		ext = ".jpg"
	}
	dest, rel, exists := m.destination(mediaDirImages, checksum, ext)
	if exists {
		return &domain.MediaExportItem{RelativePath: rel, Kind: domain.MediaImage}
	}

	if err := copyFile(src, dest); err != nil {
		m.log.WarnContext(ctx, "Не удалось скопировать изображение", "src", src, "error", err)
		return nil
	}
	return &domain.MediaExportItem{RelativePath: rel, Kind: domain.MediaImage}
}

// extractVoice либо расшифровывает голос в текст, либо сохраняет
// сырые байты аудио как .wav.
func (m *MediaExtractorImpl) extractVoice(ctx context.Context, msg *domain.DecodedMessage) *domain.MediaExportItem {
	if m.config.VoiceAsText {
		text, err := m.voices.Transcribe(ctx, msg.LocalID)
		if err != nil || text == "" {
			m.log.DebugContext(ctx, "Расшифровка голоса недоступна", "local_id", msg.LocalID, "error", err)
			return nil
		}
		// Режим "голос как текст" обходит экспорт файла.
		return &domain.MediaExportItem{Kind: domain.MediaVoice, Transcript: text}
	}

	data, err := m.voices.VoiceData(ctx, msg.LocalID)
	if err != nil || len(data) == 0 {
		m.log.DebugContext(ctx, "Аудио недоступно", "local_id", msg.LocalID, "error", err)
		return nil
	}

	name := cache.MD5Bytes(data)
	dest, rel, exists := m.destination(mediaDirVoices, name, ".wav")
	if exists {
		return &domain.MediaExportItem{RelativePath: rel, Kind: domain.MediaVoice}
	}

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		m.log.WarnContext(ctx, "Не удалось сохранить аудио", "path", dest, "error", err)
		return nil
	}
	return &domain.MediaExportItem{RelativePath: rel, Kind: domain.MediaVoice}
}

// extractEmoji скачивает стикер с CDN. Расширение берётся из адреса,
// по умолчанию .gif. Любая сетевая ошибка деградирует до "без медиа".
func (m *MediaExtractorImpl) extractEmoji(ctx context.Context, msg *domain.DecodedMessage) *domain.MediaExportItem {
	if msg.MediaRefs == nil || msg.MediaRefs.EmojiURL == "" {
		return nil
	}
	url := msg.MediaRefs.EmojiURL

	name := msg.MediaRefs.ChecksumMD5
	if name == "" {
		name = strconv.FormatInt(msg.LocalID, 10)
	}

	dest, rel, exists := m.destination(mediaDirEmojis, name, emojiExt(url))
	if exists {
		return &domain.MediaExportItem{RelativePath: rel, Kind: domain.MediaEmoji}
	}

	data, err := m.download(ctx, url)
	if err != nil {
		m.log.WarnContext(ctx, "Не удалось скачать стикер", "url", url, "error", err)
		return nil
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		m.log.WarnContext(ctx, "Не удалось сохранить стикер", "path", dest, "error", err)
		return nil
	}
	return &domain.MediaExportItem{RelativePath: rel, Kind: domain.MediaEmoji}
}

// destination строит абсолютный и относительный пути назначения,
// создаёт подкаталог и сообщает, материализован ли файл ранее.
// Существующий файл не перезаписывается: экспорт идемпотентен и между
// запусками, и внутри одного запуска.
func (m *MediaExtractorImpl) destination(subdir, name, ext string) (dest, rel string, exists bool) {
	dir := filepath.Join(m.outputDir, "media", subdir)
	_ = os.MkdirAll(dir, 0o755)

	dest = filepath.Join(dir, name+ext)
	rel = "media/" + subdir + "/" + name + ext
	if _, err := os.Stat(dest); err == nil {
		return dest, rel, true
	}
	return dest, rel, false
}

// download выполняет GET-запрос с таймаутом и пределом перенаправлений.
func (m *MediaExtractorImpl) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать запрос: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос не выполнен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("сервер вернул статус %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать тело ответа: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("пустое тело ответа")
	}
	return data, nil
}

// emojiExt выводит расширение файла стикера из его адреса.
func emojiExt(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, ".png"):
		return ".png"
	case strings.Contains(lower, ".jpeg"):
		return ".jpeg"
	case strings.Contains(lower, ".jpg"):
		return ".jpg"
	case strings.Contains(lower, ".webp"):
		return ".webp"
	default:
		return ".gif"
	}
}

// copyFile копирует файл без перезаписи существующего назначения.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("не удалось открыть источник: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("не удалось создать файл назначения: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("не удалось скопировать данные: %w", err)
	}
	return nil
}
