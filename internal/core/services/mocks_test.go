package services

import (
	"context"

	"wechat-chat-exporter/internal/domain"
)

// MockContactSource - мок-реализация ContactSource для тестирования
type MockContactSource struct {
	GetDisplayNamesFunc func(ctx context.Context, ids []string) (map[string]string, error)
	GetAvatarURLsFunc   func(ctx context.Context, ids []string) (map[string]string, error)
}

// GetDisplayNames реализует интерфейс ContactSource
func (m *MockContactSource) GetDisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	if m.GetDisplayNamesFunc != nil {
		return m.GetDisplayNamesFunc(ctx, ids)
	}
	return nil, nil
}

// GetAvatarURLs реализует интерфейс ContactSource
func (m *MockContactSource) GetAvatarURLs(ctx context.Context, ids []string) (map[string]string, error) {
	if m.GetAvatarURLsFunc != nil {
		return m.GetAvatarURLsFunc(ctx, ids)
	}
	return nil, nil
}

// MockRosterSource - мок-реализация RosterSource для тестирования
type MockRosterSource struct {
	GetGroupMembersFunc func(ctx context.Context, conversationID string) ([]domain.MemberRecord, error)
}

// GetGroupMembers реализует интерфейс RosterSource
func (m *MockRosterSource) GetGroupMembers(ctx context.Context, conversationID string) ([]domain.MemberRecord, error) {
	if m.GetGroupMembersFunc != nil {
		return m.GetGroupMembersFunc(ctx, conversationID)
	}
	return nil, nil
}

// MockImageProvider - мок-реализация ImageProvider для тестирования
type MockImageProvider struct {
	DecryptImageFunc func(ctx context.Context, checksum string) (string, error)
	ThumbnailFunc    func(ctx context.Context, checksum string) (string, error)
}

// DecryptImage реализует интерфейс ImageProvider
func (m *MockImageProvider) DecryptImage(ctx context.Context, checksum string) (string, error) {
	if m.DecryptImageFunc != nil {
		return m.DecryptImageFunc(ctx, checksum)
	}
	return "", nil
}

// Thumbnail реализует интерфейс ImageProvider
func (m *MockImageProvider) Thumbnail(ctx context.Context, checksum string) (string, error) {
	if m.ThumbnailFunc != nil {
		return m.ThumbnailFunc(ctx, checksum)
	}
	return "", nil
}

// MockVoiceProvider - мок-реализация VoiceProvider для тестирования
type MockVoiceProvider struct {
	VoiceDataFunc  func(ctx context.Context, localID int64) ([]byte, error)
	TranscribeFunc func(ctx context.Context, localID int64) (string, error)
}

// VoiceData реализует интерфейс VoiceProvider
func (m *MockVoiceProvider) VoiceData(ctx context.Context, localID int64) ([]byte, error) {
	if m.VoiceDataFunc != nil {
		return m.VoiceDataFunc(ctx, localID)
	}
	return nil, nil
}

// Transcribe реализует интерфейс VoiceProvider
func (m *MockVoiceProvider) Transcribe(ctx context.Context, localID int64) (string, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, localID)
	}
	return "", nil
}
