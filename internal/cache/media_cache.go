package cache

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"sync"

	"wechat-chat-exporter/internal/domain"
)

// MediaCache хранит результаты материализации вложений в пределах одной
// задачи экспорта: повторная встреча той же пары (тип, localId) не ведёт
// к повторной работе. Между задачами кеш не разделяется.
type MediaCache struct {
	items map[string]*domain.MediaExportItem
	mutex sync.RWMutex
}

// NewMediaCache создает новый экземпляр MediaCache.
func NewMediaCache() *MediaCache {
	return &MediaCache{
		items: make(map[string]*domain.MediaExportItem),
	}
}

// Key строит ключ кеша по коду типа и локальному идентификатору сообщения.
func Key(localType int, localID int64) string {
	return fmt.Sprintf("%d:%d", localType, localID)
}

// Get извлекает кешированный элемент по его ключу.
func (mc *MediaCache) Get(key string) (*domain.MediaExportItem, bool) {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	item, exists := mc.items[key]
	return item, exists
}

// Put сохраняет элемент в кеш.
func (mc *MediaCache) Put(key string, item *domain.MediaExportItem) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.items[key] = item
}

// Len возвращает число элементов в кеше.
func (mc *MediaCache) Len() int {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	return len(mc.items)
}

// MD5File вычисляет MD5-хеш содержимого файла. Контрольная сумма
// служит адресом медиафайла в каталоге экспорта.
func MD5File(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("не удалось открыть файл: %w", err)
	}
	defer file.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("не удалось прочитать файл: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// MD5Bytes вычисляет MD5-хеш байтового среза.
func MD5Bytes(b []byte) string {
	return fmt.Sprintf("%x", md5.Sum(b))
}
