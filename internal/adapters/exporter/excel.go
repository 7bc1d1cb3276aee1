package exporter

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

// Наборы колонок табличного экспорта.
const (
	ColumnsCompact = "compact"
	ColumnsFull    = "full"
)

// Презентационные константы листа: ширины колонок и имя листа
// фиксированы, а не вычисляются.
const (
	sheetName        = "Sheet1"
	metaColumnWidth  = 16.0
	nameColumnWidth  = 24.0
	contentColWidth  = 60.0
	metadataRowCount = 4
)

// ExcelExporter реализует интерфейс Exporter для книги электронной
// таблицы: блок метаданных, строка заголовков и по строке на сообщение.
type ExcelExporter struct {
	columns string
}

// NewExcelExporter создает новый экземпляр ExcelExporter.
// Недопустимое имя набора колонок сводится к компактному набору.
func NewExcelExporter(columns string) ports.Exporter {
	if columns != ColumnsFull {
		columns = ColumnsCompact
	}
	return &ExcelExporter{columns: columns}
}

// Export сериализует документ в файл .xlsx.
func (e *ExcelExporter) Export(doc *domain.ExportDocument, path string, progress domain.ProgressFunc) error {
	total := len(doc.Messages)
	emit(progress, domain.PhasePreparing, 0, total, doc.Meta.Name)

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeMetadata(f, doc); err != nil {
		return err
	}

	headers := []string{"角色", "类型", "内容"}
	if e.columns == ColumnsFull {
		headers = []string{"昵称", "账号ID", "备注/群昵称", "角色", "类型", "内容"}
	}
	headerRow := metadataRowCount + 2
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("не удалось записать заголовок таблицы: %w", err)
		}
	}
	if style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	}); err == nil {
		first, _ := excelize.CoordinatesToCellName(1, headerRow)
		last, _ := excelize.CoordinatesToCellName(len(headers), headerRow)
		_ = f.SetCellStyle(sheetName, first, last, style)
	}

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(sheetName, "A", lastCol, nameColumnWidth)
	contentCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(sheetName, contentCol, contentCol, contentColWidth)

	for i, msg := range doc.Messages {
		values := e.rowValues(msg)
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, headerRow+1+i)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("не удалось записать строку сообщения: %w", err)
			}
		}
		if (i+1)%progressBatchSize == 0 {
			emit(progress, domain.PhaseExporting, i+1, total, doc.Meta.Name)
		}
	}
	emit(progress, domain.PhaseExporting, total, total, doc.Meta.Name)

	emit(progress, domain.PhaseWriting, total, total, doc.Meta.Name)
	if err := f.SaveAs(path); err != nil {
		return wrapWriteError(path, err)
	}

	emit(progress, domain.PhaseComplete, total, total, doc.Meta.Name)
	return nil
}

// writeMetadata заполняет блок метаданных в первых строках листа.
func (e *ExcelExporter) writeMetadata(f *excelize.File, doc *domain.ExportDocument) error {
	kind := "私聊"
	if doc.Meta.Type == "group" {
		kind = "群聊"
	}
	rows := [][2]string{
		{"会话", doc.Meta.Name},
		{"类型", kind},
		{"导出工具", doc.Header.Generator + " " + doc.Header.Version},
		{"导出时间", doc.Header.ExportedAt},
	}
	for i, r := range rows {
		keyCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valCell, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := f.SetCellValue(sheetName, keyCell, r[0]); err != nil {
			return fmt.Errorf("не удалось записать метаданные: %w", err)
		}
		if err := f.SetCellValue(sheetName, valCell, r[1]); err != nil {
			return fmt.Errorf("не удалось записать метаданные: %w", err)
		}
	}
	_ = f.SetColWidth(sheetName, "A", "A", metaColumnWidth)
	return nil
}

// rowValues строит значения одной строки сообщения для выбранного
// набора колонок.
func (e *ExcelExporter) rowValues(msg domain.ExportMessage) []interface{} {
	role := "对方"
	if msg.IsSelf {
		role = "我"
	}
	content := msg.Content
	if msg.Media != "" {
		content = content + " (" + msg.Media + ")"
	}

	if e.columns == ColumnsFull {
		// Тот же порядок предпочтений, что и у разрешения участников:
		// ник в группе, иначе отображаемое имя.
		display := msg.GroupNickname
		if display == "" {
			display = msg.AccountName
		}
		return []interface{}{msg.AccountName, msg.Sender, display, role, typeName(msg.Type), content}
	}
	return []interface{}{role, typeName(msg.Type), content}
}
