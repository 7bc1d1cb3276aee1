// Package exporter содержит писатели выходных форматов: структурированный
// JSON, построчный JSON (NDJSON) и книгу электронной таблицы.
package exporter

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	"wechat-chat-exporter/internal/domain"
)

// progressBatchSize — шаг отчётов о прогрессе, чтобы не заливать
// потребителя событием на каждое сообщение.
const progressBatchSize = 100

// emit вызывает обратный вызов прогресса, если он задан.
func emit(progress domain.ProgressFunc, phase domain.Phase, current, total int, label string) {
	if progress == nil {
		return
	}
	progress(domain.Progress{Current: current, Total: total, Label: label, Phase: phase})
}

// wrapWriteError превращает ошибку записи в сообщение, пригодное для
// пользователя. Занятый другим процессом файл распознаётся по известной
// сигнатуре ошибки ОС.
func wrapWriteError(path string, err error) error {
	if errors.Is(err, syscall.EBUSY) ||
		strings.Contains(err.Error(), "used by another process") ||
		strings.Contains(err.Error(), "resource busy") {
		return fmt.Errorf("файл %s занят другим процессом, закройте его и повторите экспорт: %w", path, err)
	}
	return fmt.Errorf("не удалось записать файл %s: %w", path, err)
}

// typeName возвращает название типа сообщения для табличного вывода.
func typeName(localType int) string {
	switch localType {
	case domain.TypeText:
		return "文本"
	case domain.TypeImage:
		return "图片"
	case domain.TypeVoice:
		return "语音"
	case domain.TypeCard:
		return "名片"
	case domain.TypeVideo:
		return "视频"
	case domain.TypeEmoji:
		return "表情"
	case domain.TypeLocation:
		return "位置"
	case domain.TypeApp:
		return "链接"
	case domain.TypeCall:
		return "通话"
	case domain.TypeSystem, domain.TypePat:
		return "系统"
	default:
		return "其他"
	}
}
