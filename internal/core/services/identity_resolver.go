package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

// botAccountPrefix — префикс служебных аккаунтов (публичные аккаунты).
const botAccountPrefix = "gh_"

// sessionSuffixRe находит сессионный суффикс "_XXXX" из четырёх
// буквенно-цифровых символов в конце идентификатора.
var sessionSuffixRe = regexp.MustCompile(`_[0-9A-Za-z]{4}$`)

// resolvedIdentity — мемоизированный результат разрешения одного идентификатора.
type resolvedIdentity struct {
	name   string
	avatar string
}

// IdentityResolverImpl реализует интерфейс IdentityResolver.
// Экземпляр создаётся на одну задачу экспорта: мемоизация не
// разделяется между задачами.
type IdentityResolverImpl struct {
	contacts ports.ContactSource
	roster   ports.RosterSource
	log      *slog.Logger

	memo map[string]resolvedIdentity
}

// ResolverOption — функциональная опция для настройки IdentityResolverImpl.
type ResolverOption func(*IdentityResolverImpl)

// WithResolverLogger устанавливает логгер для резолвера.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *IdentityResolverImpl) {
		if l != nil {
			r.log = l
		}
	}
}

// NewIdentityResolver создает новый экземпляр IdentityResolverImpl.
func NewIdentityResolver(contacts ports.ContactSource, roster ports.RosterSource, opts ...ResolverOption) *IdentityResolverImpl {
	r := &IdentityResolverImpl{
		contacts: contacts,
		roster:   roster,
		log:      slog.Default(),
		memo:     make(map[string]resolvedIdentity),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CleanIdentifier нормализует идентификатор аккаунта: у служебных
// аккаунтов остаётся префикс с первым сегментом, у остальных срезается
// сессионный суффикс "_XXXX". Так восстанавливается "чистый"
// идентификатор для поиска, когда сырой несёт суффикс устройства.
func CleanIdentifier(id string) string {
	if strings.HasPrefix(id, botAccountPrefix) {
		rest := id[len(botAccountPrefix):]
		if i := strings.Index(rest, "_"); i > 0 {
			return botAccountPrefix + rest[:i]
		}
		return id
	}
	return sessionSuffixRe.ReplaceAllString(id, "")
}

// ResolveDisplay возвращает отображаемое имя и аватар для идентификатора.
// Повторный запрос того же идентификатора в пределах задачи не обращается
// к внешнему источнику. Неудача поиска не является ошибкой: участник
// остаётся с идентификатором вместо имени.
func (r *IdentityResolverImpl) ResolveDisplay(ctx context.Context, identifier string) (string, string) {
	if identifier == "" {
		return "", ""
	}
	if cached, ok := r.memo[identifier]; ok {
		return cached.name, cached.avatar
	}

	clean := CleanIdentifier(identifier)
	ids := []string{identifier}
	if clean != identifier {
		ids = append(ids, clean)
	}

	name := identifier
	names, err := r.contacts.GetDisplayNames(ctx, ids)
	if err != nil {
		r.log.DebugContext(ctx, "Не удалось разрешить имя", "id", identifier, "error", err)
	} else {
		// Сырой идентификатор имеет приоритет над очищенным.
		if v, ok := names[identifier]; ok && v != "" {
			name = v
		} else if v, ok := names[clean]; ok && v != "" {
			name = v
		}
	}

	avatar := ""
	avatars, err := r.contacts.GetAvatarURLs(ctx, ids)
	if err != nil {
		r.log.DebugContext(ctx, "Не удалось разрешить аватар", "id", identifier, "error", err)
	} else {
		if v, ok := avatars[identifier]; ok && v != "" {
			avatar = v
		} else if v, ok := avatars[clean]; ok && v != "" {
			avatar = v
		}
	}

	r.memo[identifier] = resolvedIdentity{name: name, avatar: avatar}
	return name, avatar
}

// MergeRoster дополняет карту участников полным списком группы.
// Участники, не написавшие ни одного сообщения, добавляются целиком;
// у уже известных имя аккаунта обновляется только если оно так и
// осталось равным сырому идентификатору — разрешённое имя никогда
// не перезаписывается. Ник и аватар заполняются лишь при отсутствии.
func (r *IdentityResolverImpl) MergeRoster(ctx context.Context, conversationID string, existing map[string]*domain.MemberRecord, includeAvatars bool) error {
	members, err := r.roster.GetGroupMembers(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("не удалось получить список участников группы %s: %w", conversationID, err)
	}

	for _, m := range members {
		if m.PlatformID == "" {
			continue
		}
		if !includeAvatars {
			m.Avatar = ""
		}

		// Сначала сырой идентификатор, затем очищенный.
		rec, ok := existing[m.PlatformID]
		if !ok {
			rec, ok = existing[CleanIdentifier(m.PlatformID)]
		}
		if !ok {
			added := m
			if added.AccountName == "" {
				added.AccountName = added.PlatformID
			}
			existing[added.PlatformID] = &added
			continue
		}

		if rec.AccountName == rec.PlatformID && m.AccountName != "" {
			rec.AccountName = m.AccountName
		}
		if rec.GroupNickname == "" {
			rec.GroupNickname = m.GroupNickname
		}
		if rec.Avatar == "" {
			rec.Avatar = m.Avatar
		}
	}

	r.log.InfoContext(ctx, "Список участников группы объединён",
		"conversation", conversationID, "roster_size", len(members), "members_total", len(existing))
	return nil
}
