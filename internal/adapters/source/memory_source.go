package source

import (
	"context"
	"fmt"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

// MemorySource реализует интерфейсы CursorSource, RosterSource и
// ContactSource поверх данных в памяти. Используется в тестах и
// интеграционных прогонах без настоящего хранилища.
type MemorySource struct {
	// Rows — строки сообщений по идентификатору беседы.
	Rows map[string][]domain.RawRow
	// Members — составы групп по идентификатору беседы.
	Members map[string][]domain.MemberRecord
	// Names и Avatars — справочники контактов.
	Names   map[string]string
	Avatars map[string]string
	// FailFor позволяет сымитировать недоступную беседу.
	FailFor map[string]error
}

// NewMemorySource создает новый экземпляр MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		Rows:    make(map[string][]domain.RawRow),
		Members: make(map[string][]domain.MemberRecord),
		Names:   make(map[string]string),
		Avatars: make(map[string]string),
		FailFor: make(map[string]error),
	}
}

// OpenCursor открывает постраничный курсор по строкам беседы в памяти.
func (s *MemorySource) OpenCursor(_ context.Context, q ports.CursorQuery) (ports.CursorHandle, error) {
	if err, ok := s.FailFor[q.ConversationID]; ok {
		return nil, err
	}
	rows, ok := s.Rows[q.ConversationID]
	if !ok {
		return nil, fmt.Errorf("беседа %s не найдена", q.ConversationID)
	}

	filtered := make([]domain.RawRow, 0, len(rows))
	for _, r := range rows {
		if q.RangeStart > 0 && r.CreateTime < q.RangeStart {
			continue
		}
		if q.RangeEnd > 0 && r.CreateTime > q.RangeEnd {
			continue
		}
		filtered = append(filtered, r)
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = len(filtered)
	}
	return &memoryCursor{rows: filtered, pageSize: pageSize}, nil
}

// GetGroupMembers возвращает состав группы из памяти.
func (s *MemorySource) GetGroupMembers(_ context.Context, conversationID string) ([]domain.MemberRecord, error) {
	if err, ok := s.FailFor[conversationID]; ok {
		return nil, err
	}
	return s.Members[conversationID], nil
}

// GetDisplayNames возвращает имена для известных идентификаторов.
func (s *MemorySource) GetDisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if v, ok := s.Names[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

// GetAvatarURLs возвращает адреса аватаров для известных идентификаторов.
func (s *MemorySource) GetAvatarURLs(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if v, ok := s.Avatars[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

// memoryCursor — курсор по срезу строк в памяти.
type memoryCursor struct {
	rows     []domain.RawRow
	pageSize int
	offset   int
	closed   bool
}

// FetchBatch возвращает следующую страницу строк.
func (c *memoryCursor) FetchBatch(_ context.Context) ([]domain.RawRow, bool, error) {
	if c.closed {
		return nil, false, fmt.Errorf("курсор уже закрыт")
	}
	if c.offset >= len(c.rows) {
		return nil, false, nil
	}

	end := c.offset + c.pageSize
	if end > len(c.rows) {
		end = len(c.rows)
	}
	batch := c.rows[c.offset:end]
	c.offset = end
	return batch, c.offset < len(c.rows), nil
}

// Close освобождает курсор.
func (c *memoryCursor) Close() error {
	c.closed = true
	return nil
}
