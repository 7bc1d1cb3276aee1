package exporter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

// Значения поля "_type" строк NDJSON.
const (
	LineTypeHeader  = "header"
	LineTypeMember  = "member"
	LineTypeMessage = "message"
)

// HeaderLine — первая строка NDJSON-документа.
type HeaderLine struct {
	Type   string                `json:"_type"`
	Header domain.DocumentHeader `json:"chatlab"`
	Meta   domain.DocumentMeta   `json:"meta"`
}

// MemberLine — строка с одним участником.
type MemberLine struct {
	Type string `json:"_type"`
	domain.MemberRecord
}

// MessageLine — строка с одним сообщением.
type MessageLine struct {
	Type string `json:"_type"`
	domain.ExportMessage
}

// NDJSONExporter реализует интерфейс Exporter для построчного JSON:
// одна строка заголовка, по строке на участника и на сообщение.
// Потребитель может читать документ потоково, не загружая его целиком.
type NDJSONExporter struct{}

// NewNDJSONExporter создает новый экземпляр NDJSONExporter.
func NewNDJSONExporter() ports.Exporter {
	return &NDJSONExporter{}
}

// Export сериализует документ в NDJSON-файл.
func (e *NDJSONExporter) Export(doc *domain.ExportDocument, path string, progress domain.ProgressFunc) error {
	total := len(doc.Messages)
	emit(progress, domain.PhasePreparing, 0, total, doc.Meta.Name)

	f, err := os.Create(path)
	if err != nil {
		return wrapWriteError(path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	if err := enc.Encode(HeaderLine{Type: LineTypeHeader, Header: doc.Header, Meta: doc.Meta}); err != nil {
		return fmt.Errorf("не удалось сериализовать заголовок: %w", err)
	}
	for _, m := range doc.Members {
		if err := enc.Encode(MemberLine{Type: LineTypeMember, MemberRecord: m}); err != nil {
			return fmt.Errorf("не удалось сериализовать участника %s: %w", m.PlatformID, err)
		}
	}

	for i, msg := range doc.Messages {
		if err := enc.Encode(MessageLine{Type: LineTypeMessage, ExportMessage: msg}); err != nil {
			return fmt.Errorf("не удалось сериализовать сообщение: %w", err)
		}
		if (i+1)%progressBatchSize == 0 {
			emit(progress, domain.PhaseExporting, i+1, total, doc.Meta.Name)
		}
	}
	emit(progress, domain.PhaseExporting, total, total, doc.Meta.Name)

	emit(progress, domain.PhaseWriting, total, total, doc.Meta.Name)
	if err := w.Flush(); err != nil {
		return wrapWriteError(path, err)
	}
	if err := f.Sync(); err != nil {
		return wrapWriteError(path, err)
	}

	emit(progress, domain.PhaseComplete, total, total, doc.Meta.Name)
	return nil
}
