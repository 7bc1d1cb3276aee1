package exporter

import (
	"fmt"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

// ConsoleExporter реализует интерфейс Exporter для предварительного
// просмотра беседы в консоли. Путь назначения игнорируется, файл
// не создаётся.
type ConsoleExporter struct{}

// NewConsoleExporter создает новый экземпляр ConsoleExporter.
func NewConsoleExporter() ports.Exporter {
	return &ConsoleExporter{}
}

// Export выводит участников и сообщения беседы в консоль.
func (e *ConsoleExporter) Export(doc *domain.ExportDocument, _ string, progress domain.ProgressFunc) error {
	total := len(doc.Messages)
	emit(progress, domain.PhasePreparing, 0, total, doc.Meta.Name)

	fmt.Printf("--- %s ---\n", doc.Meta.Name)
	fmt.Println("Участники:")
	if len(doc.Members) == 0 {
		fmt.Println("  (нет участников)")
	} else {
		for i, m := range doc.Members {
			name := m.AccountName
			if m.GroupNickname != "" {
				name = fmt.Sprintf("%s (%s)", m.GroupNickname, m.AccountName)
			}
			fmt.Printf("  %d. %s [%s]\n", i+1, name, m.PlatformID)
		}
	}

	emit(progress, domain.PhaseExporting, 0, total, doc.Meta.Name)
	fmt.Println("Сообщения:")
	for i, msg := range doc.Messages {
		fmt.Printf("  [%s] %s: %s\n", typeName(msg.Type), msg.AccountName, msg.Content)
		if (i+1)%progressBatchSize == 0 {
			emit(progress, domain.PhaseExporting, i+1, total, doc.Meta.Name)
		}
	}

	// Фаза записи сообщается и здесь, хотя вывод уже отдан потоку:
	// жизненный цикл одинаков для всех писателей.
	emit(progress, domain.PhaseWriting, total, total, doc.Meta.Name)
	emit(progress, domain.PhaseComplete, total, total, doc.Meta.Name)
	return nil
}
