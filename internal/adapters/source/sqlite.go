package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pierrec/lz4/v4"
	"google.golang.org/protobuf/encoding/protowire"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

// Разделитель списков участников в таблице ChatRoom.
const rosterListSeparator = "^G"

// SQLiteSource реализует интерфейсы CursorSource, RosterSource и
// ContactSource поверх уже расшифрованного хранилища: единая база
// с таблицами MSG, Contact, ChatRoom и ContactHeadImgUrl.
// Расшифровка SQLCipher остаётся за пределами этого модуля.
type SQLiteSource struct {
	db  *sql.DB
	log *slog.Logger
}

// SQLiteOption — функциональная опция для настройки SQLiteSource.
type SQLiteOption func(*SQLiteSource)

// WithSQLiteLogger устанавливает логгер для источника.
func WithSQLiteLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLiteSource) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSQLiteSource открывает расшифрованную базу в режиме только чтения.
func NewSQLiteSource(path string, opts ...SQLiteOption) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("база %s недоступна: %w", path, err)
	}

	s := &SQLiteSource{db: db, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close закрывает соединение с базой.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// OpenCursor открывает постраничный курсор по таблице сообщений.
func (s *SQLiteSource) OpenCursor(_ context.Context, q ports.CursorQuery) (ports.CursorHandle, error) {
	if q.ConversationID == "" {
		return nil, fmt.Errorf("не указан идентификатор беседы")
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	return &sqliteCursor{src: s, query: q, pageSize: pageSize}, nil
}

// sqliteCursor — курсор постраничной выборки LIMIT/OFFSET.
type sqliteCursor struct {
	src      *SQLiteSource
	query    ports.CursorQuery
	pageSize int
	offset   int
	closed   bool
}

// FetchBatch выбирает следующую страницу строк беседы.
func (c *sqliteCursor) FetchBatch(ctx context.Context) ([]domain.RawRow, bool, error) {
	if c.closed {
		return nil, false, fmt.Errorf("курсор уже закрыт")
	}

	query := `
	SELECT localId, Type, IsSender, CreateTime,
	       IFNULL(StrContent, ''), IFNULL(CompressContent, x''), IFNULL(BytesExtra, x'')
	FROM MSG
	WHERE StrTalker = ?`
	args := []interface{}{c.query.ConversationID}

	if c.query.RangeStart > 0 {
		query += " AND CreateTime >= ?"
		args = append(args, c.query.RangeStart)
	}
	if c.query.RangeEnd > 0 {
		query += " AND CreateTime <= ?"
		args = append(args, c.query.RangeEnd)
	}

	order := "ASC"
	if !c.query.Ascending {
		order = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY CreateTime %s, localId %s LIMIT ? OFFSET ?", order, order)
	args = append(args, c.pageSize, c.offset)

	rows, err := c.src.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("не удалось выполнить выборку сообщений: %w", err)
	}
	defer rows.Close()

	isGroup := strings.HasSuffix(c.query.ConversationID, "@chatroom")
	batch := make([]domain.RawRow, 0, c.pageSize)
	for rows.Next() {
		var (
			localID    int64
			localType  int
			isSender   int
			createTime int64
			content    string
			compress   []byte
			extra      []byte
		)
		if err := rows.Scan(&localID, &localType, &isSender, &createTime, &content, &compress, &extra); err != nil {
			return nil, false, fmt.Errorf("не удалось прочитать строку сообщения: %w", err)
		}

		decompressed, derr := decompressV3(compress)
		if derr != nil {
			c.src.log.Debug("CompressContent не является lz4-блоком",
				"conversation", c.query.ConversationID, "local_id", localID, "error", derr)
		}
		row := domain.RawRow{
			LocalID:         localID,
			CreateTime:      createTime,
			LocalType:       localType,
			Content:         content,
			CompressContent: decompressed,
			IsSend:          isSender == 1,
		}
		if !row.IsSend {
			if isGroup {
				row.Sender = senderFromBytesExtra(extra)
			} else {
				row.Sender = c.query.ConversationID
			}
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("не удалось дочитать выборку: %w", err)
	}

	c.offset += len(batch)
	return batch, len(batch) == c.pageSize, nil
}

// Close освобождает курсор.
func (c *sqliteCursor) Close() error {
	c.closed = true
	return nil
}

// Предел размера распакованного CompressContent.
const maxCompressContentSize = 16 << 20

// decompressV3 распаковывает lz4-блок поля CompressContent хранилищ
// третьей версии. Буфер назначения растёт удвоением: сжатый XML
// нередко разворачивается более чем в десять раз. Байты, не являющиеся
// lz4-блоком, возвращаются как есть вместе с ошибкой: хранилища
// четвёртой версии кладут в ту же колонку zstd-кадры, их разберёт
// декодер содержимого.
func decompressV3(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	size := len(b)*10 + 64
	for {
		if size > maxCompressContentSize {
			size = maxCompressContentSize
		}
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(b, dst)
		if err != nil {
			if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) && size < maxCompressContentSize {
				size *= 2
				continue
			}
			return b, err
		}
		if n == 0 {
			return nil, nil
		}
		// Хвостовые нулевые байты не являются частью текста.
		return []byte(strings.TrimRight(string(dst[:n]), "\x00")), nil
	}
}

// senderFromBytesExtra достаёт идентификатор отправителя группового
// сообщения из protobuf-поля BytesExtra: повторяющееся поле 3 несёт
// пары (код свойства, значение), код 1 — отправитель.
func senderFromBytesExtra(b []byte) string {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ""
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ""
			}
			b = b[n:]
			if num == 3 {
				if code, val := consumeProperty(v); code == 1 && val != "" {
					return val
				}
			}
		case protowire.VarintType:
			_, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ""
			}
			b = b[n:]
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return ""
			}
			b = b[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return ""
			}
			b = b[n:]
		default:
			return ""
		}
	}
	return ""
}

// consumeProperty разбирает вложенную пару (поле 1 — код, поле 2 — значение).
func consumeProperty(b []byte) (int64, string) {
	var code int64
	var value string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, ""
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, ""
			}
			b = b[n:]
			code = int64(v)
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, ""
			}
			b = b[n:]
			value = string(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, ""
			}
			b = b[n:]
		}
	}
	return code, value
}

// GetGroupMembers возвращает полный состав группы из таблицы ChatRoom.
// Имена аккаунтов дополняются из справочника контактов; участники без
// записи в справочнике остаются с идентификатором вместо имени.
func (s *SQLiteSource) GetGroupMembers(ctx context.Context, conversationID string) ([]domain.MemberRecord, error) {
	var userList, displayList string
	err := s.db.QueryRowContext(ctx,
		`SELECT IFNULL(UserNameList, ''), IFNULL(DisplayNameList, '') FROM ChatRoom WHERE ChatRoomName = ?`,
		conversationID,
	).Scan(&userList, &displayList)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать состав группы %s: %w", conversationID, err)
	}

	ids := strings.Split(userList, rosterListSeparator)
	nicknames := strings.Split(displayList, rosterListSeparator)
	names, err := s.GetDisplayNames(ctx, ids)
	if err != nil {
		s.log.WarnContext(ctx, "Справочник контактов недоступен", "conversation", conversationID, "error", err)
		names = map[string]string{}
	}
	avatars, err := s.GetAvatarURLs(ctx, ids)
	if err != nil {
		avatars = map[string]string{}
	}

	members := make([]domain.MemberRecord, 0, len(ids))
	for i, id := range ids {
		if id == "" {
			continue
		}
		m := domain.MemberRecord{
			PlatformID:  id,
			AccountName: id,
			Avatar:      avatars[id],
		}
		if v := names[id]; v != "" {
			m.AccountName = v
		}
		if i < len(nicknames) {
			m.GroupNickname = nicknames[i]
		}
		members = append(members, m)
	}
	return members, nil
}

// GetDisplayNames возвращает имена контактов; ремарка имеет приоритет
// над ником. Отсутствующие идентификаторы не попадают в карту.
func (s *SQLiteSource) GetDisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(
		`SELECT UserName, IFNULL(NickName, ''), IFNULL(Remark, '') FROM Contact WHERE UserName IN (%s)`,
		placeholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать контакты: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userName, nickName, remark string
		if err := rows.Scan(&userName, &nickName, &remark); err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку контакта: %w", err)
		}
		switch {
		case remark != "":
			out[userName] = remark
		case nickName != "":
			out[userName] = nickName
		}
	}
	return out, rows.Err()
}

// GetAvatarURLs возвращает адреса аватаров; большой вариант имеет
// приоритет над маленьким.
func (s *SQLiteSource) GetAvatarURLs(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(
		`SELECT usrName, IFNULL(bigHeadImgUrl, ''), IFNULL(smallHeadImgUrl, '') FROM ContactHeadImgUrl WHERE usrName IN (%s)`,
		placeholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать аватары: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userName, big, small string
		if err := rows.Scan(&userName, &big, &small); err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку аватара: %w", err)
		}
		switch {
		case big != "":
			out[userName] = big
		case small != "":
			out[userName] = small
		}
	}
	return out, rows.Err()
}

// placeholders строит список "?, ?, ..." для запроса IN.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
