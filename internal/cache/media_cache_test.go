package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"wechat-chat-exporter/internal/domain"
)

func TestMediaCache(t *testing.T) {
	t.Run("элемент извлекается после сохранения", func(t *testing.T) {
		c := NewMediaCache()
		item := &domain.MediaExportItem{RelativePath: "media/images/abc.jpg", Kind: domain.MediaImage}

		c.Put(Key(domain.TypeImage, 42), item)

		got, ok := c.Get(Key(domain.TypeImage, 42))
		if !ok || got != item {
			t.Errorf("Ожидался сохраненный элемент, получено %+v, %v", got, ok)
		}
		if c.Len() != 1 {
			t.Errorf("Ожидался один элемент, получено %d", c.Len())
		}
	})

	t.Run("отсутствующий ключ дает false", func(t *testing.T) {
		c := NewMediaCache()
		if _, ok := c.Get(Key(domain.TypeVoice, 1)); ok {
			t.Error("Ожидалось отсутствие элемента")
		}
	})

	t.Run("ключи различают тип и идентификатор", func(t *testing.T) {
		if Key(domain.TypeImage, 12) == Key(domain.TypeVoice, 12) {
			t.Error("Ключи разных типов не должны совпадать")
		}
		if Key(domain.TypeImage, 1) == Key(domain.TypeImage, 2) {
			t.Error("Ключи разных сообщений не должны совпадать")
		}
	})

	t.Run("одновременный доступ безопасен", func(t *testing.T) {
		c := NewMediaCache()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(n int64) {
				defer wg.Done()
				c.Put(Key(domain.TypeImage, n), &domain.MediaExportItem{Kind: domain.MediaImage})
				c.Get(Key(domain.TypeImage, n))
			}(int64(i))
		}
		wg.Wait()
		if c.Len() != 50 {
			t.Errorf("Ожидалось 50 элементов, получено %d", c.Len())
		}
	})
}

func TestMD5(t *testing.T) {
	t.Run("хеш файла совпадает с хешем байтов", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data.bin")
		content := []byte("содержимое вложения")
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatal(err)
		}

		fromFile, err := MD5File(path)
		if err != nil {
			t.Fatalf("Неожиданная ошибка: %v", err)
		}
		if fromFile != MD5Bytes(content) {
			t.Errorf("Хеши не совпадают: %s и %s", fromFile, MD5Bytes(content))
		}
	})

	t.Run("отсутствующий файл дает ошибку", func(t *testing.T) {
		if _, err := MD5File(filepath.Join(t.TempDir(), "nope.bin")); err == nil {
			t.Error("Ожидалась ошибка, получен nil")
		}
	})
}
