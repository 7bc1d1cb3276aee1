package log

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const testKey = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"

func TestKeyMasker(t *testing.T) {
	newLogger := func() (*slog.Logger, *bytes.Buffer) {
		var buf bytes.Buffer
		return NewMaskedLogger(slog.NewTextHandler(&buf, nil)), &buf
	}

	t.Run("ключ в сообщении маскируется", func(t *testing.T) {
		logger, buf := newLogger()
		logger.Info("открываю базу с ключом " + testKey)

		out := buf.String()
		if strings.Contains(out, testKey) {
			t.Errorf("Ключ попал в вывод: %s", out)
		}
		if !strings.Contains(out, "***masked-key***") {
			t.Errorf("Маска не найдена в выводе: %s", out)
		}
	})

	t.Run("ключ в атрибуте маскируется", func(t *testing.T) {
		logger, buf := newLogger()
		logger.Info("подключение", "db_key", testKey)

		if strings.Contains(buf.String(), testKey) {
			t.Errorf("Ключ попал в вывод: %s", buf.String())
		}
	})

	t.Run("атрибут выводится ровно один раз", func(t *testing.T) {
		logger, buf := newLogger()
		logger.Info("подключение", "db_key", testKey)

		if got := strings.Count(buf.String(), "db_key="); got != 1 {
			t.Errorf("Атрибут должен выводиться один раз, получено %d: %s", got, buf.String())
		}
	})

	t.Run("ключ в тексте ошибки маскируется", func(t *testing.T) {
		logger, buf := newLogger()
		logger.Error("не удалось открыть базу", "error", errors.New("bad key: "+testKey))

		if strings.Contains(buf.String(), testKey) {
			t.Errorf("Ключ попал в вывод: %s", buf.String())
		}
	})

	t.Run("ключ в группе маскируется", func(t *testing.T) {
		logger, buf := newLogger()
		logger.With(slog.Group("wechat", slog.String("key", testKey))).Info("старт")

		if strings.Contains(buf.String(), testKey) {
			t.Errorf("Ключ попал в вывод: %s", buf.String())
		}
	})

	t.Run("короткие шестнадцатеричные строки не трогаются", func(t *testing.T) {
		logger, buf := newLogger()
		logger.Info("контрольная сумма", "md5", "a1b2c3d4e5f60718")

		if !strings.Contains(buf.String(), "a1b2c3d4e5f60718") {
			t.Errorf("Контрольная сумма не должна маскироваться: %s", buf.String())
		}
	})

	t.Run("обычный текст не меняется", func(t *testing.T) {
		logger, buf := newLogger()
		logger.Info("экспорт завершен", "messages", 120)

		out := buf.String()
		if !strings.Contains(out, "экспорт завершен") || !strings.Contains(out, "120") {
			t.Errorf("Вывод поврежден: %s", out)
		}
	})
}
