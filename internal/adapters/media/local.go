// Package media содержит локальные реализации коллабораторов медиа:
// изображения ищутся среди уже расшифрованных файлов аккаунта,
// голосовые сообщения читаются из базы медиа.
package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrTranscriptionUnsupported возвращается, когда расшифровка голоса
// в текст не настроена.
var ErrTranscriptionUnsupported = errors.New("расшифровка голоса не поддерживается")

var imageExts = []string{".jpg", ".png", ".gif", ".jpeg"}

// LocalProvider реализует интерфейсы ImageProvider и VoiceProvider
// поверх каталога данных аккаунта и расшифрованной базы медиа.
type LocalProvider struct {
	dataDir string
	voiceDB *sql.DB
	log     *slog.Logger
}

// NewLocalProvider создает новый экземпляр LocalProvider.
// voiceDBPath может быть пустым: тогда голосовые сообщения недоступны.
func NewLocalProvider(dataDir, voiceDBPath string, logger *slog.Logger) (*LocalProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &LocalProvider{dataDir: dataDir, log: logger}

	if voiceDBPath != "" {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", voiceDBPath))
		if err != nil {
			return nil, fmt.Errorf("не удалось открыть базу медиа %s: %w", voiceDBPath, err)
		}
		p.voiceDB = db
	}
	return p, nil
}

// Close закрывает соединение с базой медиа.
func (p *LocalProvider) Close() error {
	if p.voiceDB != nil {
		return p.voiceDB.Close()
	}
	return nil
}

// DecryptImage возвращает путь расшифрованного изображения по
// контрольной сумме. Сами файлы материализует внешний инструмент
// расшифровки; здесь выполняется только поиск.
func (p *LocalProvider) DecryptImage(_ context.Context, checksum string) (string, error) {
	return p.find("images", checksum)
}

// Thumbnail возвращает путь кешированной миниатюры.
func (p *LocalProvider) Thumbnail(_ context.Context, checksum string) (string, error) {
	return p.find("thumbnails", checksum)
}

func (p *LocalProvider) find(subdir, checksum string) (string, error) {
	if checksum == "" {
		return "", errors.New("пустая контрольная сумма")
	}
	for _, ext := range imageExts {
		candidate := filepath.Join(p.dataDir, subdir, checksum+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("изображение %s не найдено в %s", checksum, subdir)
}

// VoiceData возвращает сырые байты аудио по идентификатору сообщения.
func (p *LocalProvider) VoiceData(ctx context.Context, localID int64) ([]byte, error) {
	if p.voiceDB == nil {
		return nil, errors.New("база медиа не подключена")
	}

	var buf []byte
	err := p.voiceDB.QueryRowContext(ctx,
		`SELECT Buf FROM Media WHERE Reserved0 = ?`, localID,
	).Scan(&buf)
	if err != nil {
		return nil, fmt.Errorf("аудио для сообщения %d не найдено: %w", localID, err)
	}
	return buf, nil
}

// Transcribe возвращает текстовую расшифровку голосового сообщения.
func (p *LocalProvider) Transcribe(_ context.Context, _ int64) (string, error) {
	return "", ErrTranscriptionUnsupported
}
