package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"wechat-chat-exporter/internal/ports"
)

// newTestDB создает временную базу со схемой хранилища и тестовыми данными.
func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "message.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	schema := []string{
		`CREATE TABLE MSG (
			localId INTEGER PRIMARY KEY,
			Type INTEGER,
			IsSender INTEGER,
			CreateTime INTEGER,
			StrTalker TEXT,
			StrContent TEXT,
			CompressContent BLOB,
			BytesExtra BLOB
		)`,
		`CREATE TABLE Contact (UserName TEXT PRIMARY KEY, NickName TEXT, Remark TEXT)`,
		`CREATE TABLE ChatRoom (ChatRoomName TEXT PRIMARY KEY, UserNameList TEXT, DisplayNameList TEXT)`,
		`CREATE TABLE ContactHeadImgUrl (usrName TEXT PRIMARY KEY, bigHeadImgUrl TEXT, smallHeadImgUrl TEXT)`,
	}
	for _, stmt := range schema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	extra := encodeBytesExtra(1, "wxid_member")
	rows := []struct {
		id      int64
		typ     int
		sender  int
		created int64
		talker  string
		content string
		extra   []byte
	}{
		{1, 1, 0, 1000, "room@chatroom", "wxid_member:\nпервое", extra},
		{2, 1, 1, 1001, "room@chatroom", "мой ответ", nil},
		{3, 1, 0, 1002, "room@chatroom", "второе", extra},
		{4, 1, 0, 2000, "wxid_friend", "личное", nil},
	}
	for _, r := range rows {
		_, err := db.Exec(
			`INSERT INTO MSG (localId, Type, IsSender, CreateTime, StrTalker, StrContent, BytesExtra) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.id, r.typ, r.sender, r.created, r.talker, r.content, r.extra,
		)
		require.NoError(t, err)
	}

	_, err = db.Exec(`INSERT INTO Contact VALUES ('wxid_member', 'Участник', ''), ('wxid_friend', 'Друг', 'Лучший друг')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO ChatRoom VALUES ('room@chatroom', 'wxid_member^Gwxid_silent', 'Ник^G')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO ContactHeadImgUrl VALUES ('wxid_member', 'http://example.com/big.jpg', 'http://example.com/small.jpg')`)
	require.NoError(t, err)

	return path
}

// encodeBytesExtra собирает protobuf-поле BytesExtra с одной парой
// (код свойства, значение).
func encodeBytesExtra(code uint64, value string) []byte {
	var prop []byte
	prop = protowire.AppendTag(prop, 1, protowire.VarintType)
	prop = protowire.AppendVarint(prop, code)
	prop = protowire.AppendTag(prop, 2, protowire.BytesType)
	prop = protowire.AppendBytes(prop, []byte(value))

	var out []byte
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendBytes(out, prop)
	return out
}

func TestSQLiteCursor(t *testing.T) {
	src, err := NewSQLiteSource(newTestDB(t))
	require.NoError(t, err)
	defer src.Close()

	t.Run("групповые сообщения несут отправителя из BytesExtra", func(t *testing.T) {
		cur, err := src.OpenCursor(context.Background(), ports.CursorQuery{
			ConversationID: "room@chatroom",
			PageSize:       10,
			Ascending:      true,
		})
		require.NoError(t, err)
		defer cur.Close()

		batch, more, err := cur.FetchBatch(context.Background())
		require.NoError(t, err)
		assert.False(t, more)
		require.Len(t, batch, 3)

		assert.Equal(t, "wxid_member", batch[0].Sender)
		assert.False(t, batch[0].IsSend)
		// Собственные сообщения не несут отправителя.
		assert.True(t, batch[1].IsSend)
		assert.Empty(t, batch[1].Sender)
	})

	t.Run("личная беседа использует идентификатор собеседника", func(t *testing.T) {
		cur, err := src.OpenCursor(context.Background(), ports.CursorQuery{
			ConversationID: "wxid_friend",
			PageSize:       10,
			Ascending:      true,
		})
		require.NoError(t, err)
		defer cur.Close()

		batch, _, err := cur.FetchBatch(context.Background())
		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, "wxid_friend", batch[0].Sender)
	})

	t.Run("границы диапазона учитываются в выборке", func(t *testing.T) {
		cur, err := src.OpenCursor(context.Background(), ports.CursorQuery{
			ConversationID: "room@chatroom",
			PageSize:       10,
			Ascending:      true,
			RangeStart:     1001,
			RangeEnd:       1001,
		})
		require.NoError(t, err)
		defer cur.Close()

		batch, _, err := cur.FetchBatch(context.Background())
		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, int64(1001), batch[0].CreateTime)
	})

	t.Run("пустой идентификатор беседы отвергается", func(t *testing.T) {
		_, err := src.OpenCursor(context.Background(), ports.CursorQuery{})
		assert.Error(t, err)
	})
}

func TestSQLiteRosterAndContacts(t *testing.T) {
	src, err := NewSQLiteSource(newTestDB(t))
	require.NoError(t, err)
	defer src.Close()

	t.Run("состав группы дополняется справочником", func(t *testing.T) {
		members, err := src.GetGroupMembers(context.Background(), "room@chatroom")
		require.NoError(t, err)
		require.Len(t, members, 2)

		assert.Equal(t, "wxid_member", members[0].PlatformID)
		assert.Equal(t, "Участник", members[0].AccountName)
		assert.Equal(t, "Ник", members[0].GroupNickname)
		assert.Equal(t, "http://example.com/big.jpg", members[0].Avatar)

		// Участник без записи в справочнике остается с идентификатором.
		assert.Equal(t, "wxid_silent", members[1].AccountName)
	})

	t.Run("ремарка имеет приоритет над ником", func(t *testing.T) {
		names, err := src.GetDisplayNames(context.Background(), []string{"wxid_friend", "wxid_member"})
		require.NoError(t, err)
		assert.Equal(t, "Лучший друг", names["wxid_friend"])
		assert.Equal(t, "Участник", names["wxid_member"])
	})

	t.Run("неизвестная группа дает ошибку", func(t *testing.T) {
		_, err := src.GetGroupMembers(context.Background(), "nope@chatroom")
		assert.Error(t, err)
	})
}

func TestNewSQLiteSourceMissingFile(t *testing.T) {
	_, err := NewSQLiteSource(filepath.Join(t.TempDir(), "nope.db"))
	assert.Error(t, err)
}

func TestDecompressV3(t *testing.T) {
	compress := func(t *testing.T, plain []byte) []byte {
		t.Helper()
		dst := make([]byte, lz4.CompressBlockBound(len(plain)))
		var c lz4.Compressor
		n, err := c.CompressBlock(plain, dst)
		require.NoError(t, err)
		require.Greater(t, n, 0)
		return dst[:n]
	}

	t.Run("блок lz4 распаковывается", func(t *testing.T) {
		plain := []byte(strings.Repeat("сжимаемое содержимое ", 20))

		got, err := decompressV3(compress(t, plain))
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("сильно сжимаемый блок распаковывается целиком", func(t *testing.T) {
		// Однородный XML разворачивается в сотни раз относительно
		// размера сжатого блока.
		plain := []byte(strings.Repeat("<msg><title>a</title></msg>", 2000))

		got, err := decompressV3(compress(t, plain))
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("несжатые байты возвращаются как есть с ошибкой", func(t *testing.T) {
		raw := []byte("обычный текст")
		got, err := decompressV3(raw)
		assert.Error(t, err)
		assert.Equal(t, raw, got)
	})

	t.Run("пустой ввод дает nil", func(t *testing.T) {
		got, err := decompressV3(nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSenderFromBytesExtra(t *testing.T) {
	t.Run("отправитель извлекается из поля свойства", func(t *testing.T) {
		assert.Equal(t, "wxid_abc", senderFromBytesExtra(encodeBytesExtra(1, "wxid_abc")))
	})

	t.Run("чужой код свойства пропускается", func(t *testing.T) {
		assert.Empty(t, senderFromBytesExtra(encodeBytesExtra(7, "wxid_abc")))
	})

	t.Run("мусорные байты не вызывают панику", func(t *testing.T) {
		assert.Empty(t, senderFromBytesExtra([]byte{0xff, 0x01, 0x02}))
	})
}
