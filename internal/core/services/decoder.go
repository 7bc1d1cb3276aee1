package services

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"

	"wechat-chat-exporter/internal/ports"
)

// zstdMagic — первые четыре байта сжатого кадра
// (константа 0xFD2FB528 в порядке little-endian).
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	hexRe    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	base64Re = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
)

// ContentDecoderImpl реализует интерфейс ContentDecoder.
// Экземпляр не хранит состояние между вызовами и безопасен
// для одновременного использования.
type ContentDecoderImpl struct {
	zr *zstd.Decoder
}

// NewContentDecoder создает новый экземпляр ContentDecoderImpl.
func NewContentDecoder() ports.ContentDecoder {
	// Декодер без привязанного io.Reader используется только через DecodeAll.
	zr, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		zr = nil
	}
	return &ContentDecoderImpl{zr: zr}
}

// Decode превращает сырые поля строки сообщения в декодированный текст.
// Сжатое поле пробуется первым: оно обычно несёт более полную версию
// содержимого. Любой сбой на любом шаге цепочки даёт пустую строку,
// чтобы конвейер продолжал работу.
func (d *ContentDecoderImpl) Decode(content string, compressContent []byte) string {
	if len(compressContent) > 0 {
		return d.decodeBytes(compressContent)
	}
	if content == "" {
		return ""
	}

	// Классификация строкового содержимого: hex, затем base64, затем
	// обычный текст. Всё, что не подошло ни под один шаблон, считается
	// уже декодированным текстом.
	if len(content)%2 == 0 && hexRe.MatchString(content) {
		if b, err := hex.DecodeString(content); err == nil {
			return d.decodeBytes(b)
		}
		return ""
	}
	if len(content)%4 == 0 && base64Re.MatchString(content) {
		if b, err := base64.StdEncoding.DecodeString(content); err == nil {
			return d.decodeBytes(b)
		}
		return ""
	}
	return content
}

// decodeBytes интерпретирует байты как текст, предварительно
// распаковав их, если первые четыре байта совпадают с магической
// константой сжатого кадра.
func (d *ContentDecoderImpl) decodeBytes(b []byte) string {
	if bytes.HasPrefix(b, zstdMagic) {
		if d.zr == nil {
			return ""
		}
		out, err := d.zr.DecodeAll(b, nil)
		if err != nil {
			return ""
		}
		b = out
	}
	return decodeText(b)
}

// decodeText декодирует байты как UTF-8. Если более 20% символов
// оказались заменяющим маркером, байты трактуются как однобайтовая
// устаревшая кодировка (latin1). Это эвристика, а не гарантированно
// верная классификация.
func decodeText(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	total := 0
	bad := 0
	for _, r := range string(b) {
		total++
		if r == utf8.RuneError {
			bad++
		}
	}
	if total > 0 && bad*5 > total {
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return string(runes)
	}
	return string(b)
}
