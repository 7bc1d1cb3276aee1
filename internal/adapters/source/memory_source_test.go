package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

func TestMemorySourceCursor(t *testing.T) {
	s := NewMemorySource()
	for i := int64(1); i <= 5; i++ {
		s.Rows["conv"] = append(s.Rows["conv"], domain.RawRow{
			LocalID:    i,
			CreateTime: 1000 + i,
			LocalType:  domain.TypeText,
			Content:    "msg",
		})
	}

	t.Run("страницы выдаются по размеру", func(t *testing.T) {
		cur, err := s.OpenCursor(context.Background(), ports.CursorQuery{ConversationID: "conv", PageSize: 2})
		require.NoError(t, err)
		defer cur.Close()

		batch, more, err := cur.FetchBatch(context.Background())
		require.NoError(t, err)
		assert.Len(t, batch, 2)
		assert.True(t, more)

		batch, more, err = cur.FetchBatch(context.Background())
		require.NoError(t, err)
		assert.Len(t, batch, 2)
		assert.True(t, more)

		batch, more, err = cur.FetchBatch(context.Background())
		require.NoError(t, err)
		assert.Len(t, batch, 1)
		assert.False(t, more)
	})

	t.Run("диапазон времени фильтрует строки", func(t *testing.T) {
		cur, err := s.OpenCursor(context.Background(), ports.CursorQuery{
			ConversationID: "conv",
			PageSize:       10,
			RangeStart:     1002,
			RangeEnd:       1004,
		})
		require.NoError(t, err)
		defer cur.Close()

		batch, more, err := cur.FetchBatch(context.Background())
		require.NoError(t, err)
		assert.False(t, more)
		require.Len(t, batch, 3)
		assert.Equal(t, int64(1002), batch[0].CreateTime)
		assert.Equal(t, int64(1004), batch[2].CreateTime)
	})

	t.Run("закрытый курсор не выдает страниц", func(t *testing.T) {
		cur, err := s.OpenCursor(context.Background(), ports.CursorQuery{ConversationID: "conv", PageSize: 2})
		require.NoError(t, err)
		require.NoError(t, cur.Close())

		_, _, err = cur.FetchBatch(context.Background())
		assert.Error(t, err)
	})

	t.Run("неизвестная беседа дает ошибку", func(t *testing.T) {
		_, err := s.OpenCursor(context.Background(), ports.CursorQuery{ConversationID: "nope"})
		assert.Error(t, err)
	})

	t.Run("сымитированная недоступность возвращается как есть", func(t *testing.T) {
		wantErr := errors.New("база занята")
		s.FailFor["broken"] = wantErr
		_, err := s.OpenCursor(context.Background(), ports.CursorQuery{ConversationID: "broken"})
		assert.ErrorIs(t, err, wantErr)
	})
}

func TestMemorySourceContacts(t *testing.T) {
	s := NewMemorySource()
	s.Names["wxid_a"] = "Анна"
	s.Avatars["wxid_a"] = "http://example.com/a.jpg"

	names, err := s.GetDisplayNames(context.Background(), []string{"wxid_a", "wxid_b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"wxid_a": "Анна"}, names)

	avatars, err := s.GetAvatarURLs(context.Background(), []string{"wxid_a"})
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a.jpg", avatars["wxid_a"])
}
