package exporter

import (
	"encoding/json"
	"fmt"
	"os"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

// JSONExporter реализует интерфейс Exporter для структурированного JSON:
// единый объект с заголовком, метаданными, участниками и сообщениями.
type JSONExporter struct{}

// NewJSONExporter создает новый экземпляр JSONExporter.
func NewJSONExporter() ports.Exporter {
	return &JSONExporter{}
}

// Export сериализует документ в отформатированный JSON-файл.
func (e *JSONExporter) Export(doc *domain.ExportDocument, path string, progress domain.ProgressFunc) error {
	total := len(doc.Messages)
	emit(progress, domain.PhasePreparing, 0, total, doc.Meta.Name)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("не удалось сериализовать документ: %w", err)
	}
	emit(progress, domain.PhaseExporting, total, total, doc.Meta.Name)

	emit(progress, domain.PhaseWriting, total, total, doc.Meta.Name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return wrapWriteError(path, err)
	}

	emit(progress, domain.PhaseComplete, total, total, doc.Meta.Name)
	return nil
}
