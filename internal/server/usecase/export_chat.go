package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"wechat-chat-exporter/internal/core/services"
	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/pkg/config"
	"wechat-chat-exporter/internal/ports"
)

// State — состояние конечного автомата задачи экспорта.
type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StatePaginating  State = "paginating"
	StateDecoding    State = "decoding"
	StateRosterMerge State = "roster_merge"
	StateWriting     State = "writing"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
)

// Поддерживаемые выходные форматы.
const (
	FormatJSON   = "json"
	FormatNDJSON = "jsonl"
	FormatExcel  = "xlsx"
)

// Метаданные инструмента в заголовке выходного документа.
const (
	GeneratorName    = "wechat-chat-exporter"
	GeneratorVersion = "1.0.0"
)

// ExportRequest описывает одну задачу экспорта беседы.
type ExportRequest struct {
	Conversation domain.Conversation
	// Format — один из FormatJSON, FormatNDJSON, FormatExcel.
	Format string
	// OutputPath — путь выходного файла; пустой означает путь по
	// умолчанию внутри каталога экспорта.
	OutputPath string
	// RangeStart и RangeEnd — фильтр по времени в секундах с начала
	// эпохи; ноль означает отсутствие границы.
	RangeStart int64
	RangeEnd   int64
	// IncludeAvatars включает аватары участников в документ.
	IncludeAvatars bool
	// Progress — необязательный приёмник событий прогресса.
	Progress domain.ProgressFunc
}

// ExportUseCase инкапсулирует сквозной конвейер экспорта: курсор,
// декодирование, разрешение участников, извлечение медиа и запись.
// Беседы пакета обрабатываются строго последовательно: соединение
// с хранилищем и каталог экспорта общие.
type ExportUseCase struct {
	cfg       *config.Config
	cursors   ports.CursorSource
	roster    ports.RosterSource
	contacts  ports.ContactSource
	images    ports.ImageProvider
	voices    ports.VoiceProvider
	exporters map[string]ports.Exporter
	log       *slog.Logger
}

// NewExportUseCase создает новый экземпляр ExportUseCase.
func NewExportUseCase(
	cfg *config.Config,
	cursors ports.CursorSource,
	roster ports.RosterSource,
	contacts ports.ContactSource,
	images ports.ImageProvider,
	voices ports.VoiceProvider,
	exporters map[string]ports.Exporter,
) *ExportUseCase {
	return &ExportUseCase{
		cfg:       cfg,
		cursors:   cursors,
		roster:    roster,
		contacts:  contacts,
		images:    images,
		voices:    voices,
		exporters: exporters,
		log:       slog.Default(),
	}
}

// ExportSessions последовательно экспортирует пакет бесед. Неудача
// одной беседы увеличивает счётчик ошибок, остальные продолжают
// обрабатываться; повторных попыток нет. Итог — счётчики, не единый
// булев результат.
func (uc *ExportUseCase) ExportSessions(ctx context.Context, reqs []ExportRequest) (domain.ExportSummary, []string) {
	var summary domain.ExportSummary
	paths := make([]string, 0, len(reqs))

	for _, req := range reqs {
		path, err := uc.ExportSession(ctx, req)
		if err != nil {
			summary.FailCount++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", req.Conversation.ID, err))
			uc.log.Error("Экспорт беседы не удался", "conversation", req.Conversation.ID, "error", err)
			continue
		}
		summary.SuccessCount++
		paths = append(paths, path)
	}

	uc.log.Info("Пакетный экспорт завершён",
		"success", summary.SuccessCount, "failed", summary.FailCount)
	return summary, paths
}

// ExportSession выполняет полный цикл экспорта одной беседы и
// возвращает путь записанного файла.
func (uc *ExportUseCase) ExportSession(ctx context.Context, req ExportRequest) (out string, err error) {
	state := StateIdle
	defer func() {
		if err != nil {
			state = StateFailed
		}
		uc.log.Debug("Задача экспорта завершена", "conversation", req.Conversation.ID, "state", string(state))
	}()

	progress := monotonic(req.Progress)

	// Connecting: проверка предусловий до каких-либо побочных эффектов.
	state = StateConnecting
	if err := uc.checkPreconditions(); err != nil {
		return "", err
	}
	exp, ok := uc.exporters[req.Format]
	if !ok {
		return "", fmt.Errorf("неизвестный формат экспорта: %q", req.Format)
	}

	cursor, err := uc.cursors.OpenCursor(ctx, ports.CursorQuery{
		ConversationID: req.Conversation.ID,
		PageSize:       uc.cfg.Export.PageSize,
		Ascending:      true,
		RangeStart:     req.RangeStart,
		RangeEnd:       req.RangeEnd,
	})
	if err != nil {
		return "", fmt.Errorf("не удалось открыть курсор беседы %s: %w", req.Conversation.ID, err)
	}
	defer func() {
		if cerr := cursor.Close(); cerr != nil {
			uc.log.Warn("Не удалось закрыть курсор", "conversation", req.Conversation.ID, "error", cerr)
		}
	}()

	progress(domain.Progress{Phase: domain.PhasePreparing, Label: req.Conversation.Name})

	// Сервисы с мемоизацией создаются на задачу: кеши не разделяются
	// между задачами пакета.
	decoder := services.NewContentDecoder()
	parser := services.NewContentParser()
	resolver := services.NewIdentityResolver(uc.contacts, uc.roster, services.WithResolverLogger(uc.log))
	extractor := uc.newExtractor(req)

	// Paginating / Decoding: страницы декодируются по мере поступления.
	state = StatePaginating
	var messages []domain.DecodedMessage
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		batch, hasMore, ferr := cursor.FetchBatch(ctx)
		if ferr != nil {
			return "", fmt.Errorf("не удалось получить страницу сообщений: %w", ferr)
		}

		state = StateDecoding
		for _, row := range batch {
			// Фильтр диапазона применяется к каждой строке, даже если
			// источник уже учёл границы в выборке.
			if req.RangeStart > 0 && row.CreateTime < req.RangeStart {
				continue
			}
			if req.RangeEnd > 0 && row.CreateTime > req.RangeEnd {
				continue
			}

			decoded := decoder.Decode(row.Content, row.CompressContent)
			summary, refs := parser.Parse(decoded, row.LocalType)

			sender := row.Sender
			if row.IsSend || sender == "" {
				sender = uc.cfg.WeChat.AccountID
			}
			messages = append(messages, domain.DecodedMessage{
				LocalID:    row.LocalID,
				CreateTime: row.CreateTime,
				LocalType:  row.LocalType,
				Content:    summary,
				Sender:     sender,
				IsSend:     row.IsSend,
				MediaRefs:  refs,
			})
		}
		progress(domain.Progress{Phase: domain.PhasePreparing, Current: len(messages), Total: len(messages), Label: req.Conversation.Name})

		if !hasMore {
			break
		}
		state = StatePaginating
	}

	// Resolving: участники по отправителям плюс извлечение медиа.
	members := make(map[string]*domain.MemberRecord)
	var order []string
	for i := range messages {
		msg := &messages[i]
		if _, ok := members[msg.Sender]; !ok && msg.Sender != "" {
			name, avatar := resolver.ResolveDisplay(ctx, msg.Sender)
			if name == "" {
				name = msg.Sender
			}
			if !req.IncludeAvatars {
				avatar = ""
			}
			members[msg.Sender] = &domain.MemberRecord{
				PlatformID:  msg.Sender,
				AccountName: name,
				Avatar:      avatar,
			}
			order = append(order, msg.Sender)
		}

		item, _ := extractor.Extract(ctx, msg, req.Conversation.ID)
		if item != nil {
			if item.Transcript != "" {
				msg.Content = item.Transcript
			} else {
				msg.MediaPath = item.RelativePath
			}
		}
	}

	// RosterMerge выполняется только для групповых бесед; неудача
	// не прерывает экспорт, участники остаются как есть.
	if req.Conversation.IsGroup {
		state = StateRosterMerge
		before := memberKeys(members)
		if merr := resolver.MergeRoster(ctx, req.Conversation.ID, members, req.IncludeAvatars); merr != nil {
			uc.log.Warn("Не удалось объединить состав группы", "conversation", req.Conversation.ID, "error", merr)
		}
		order = append(order, addedKeys(members, before)...)
	}

	// Финальный порядок: по времени создания, устойчиво к исходному
	// порядку выборки при равных метках.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreateTime < messages[j].CreateTime
	})

	doc := uc.buildDocument(req.Conversation, members, order, messages)

	state = StateWriting
	path := req.OutputPath
	if path == "" {
		path = uc.defaultPath(req)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("не удалось создать каталог экспорта: %w", err)
	}
	if err := exp.Export(doc, path, progress); err != nil {
		return "", err
	}

	state = StateComplete
	uc.log.Info("Беседа экспортирована",
		"conversation", req.Conversation.ID, "messages", len(doc.Messages), "path", path)
	return path, nil
}

// ConversationByID строит описание беседы по идентификатору:
// групповые беседы распознаются по суффиксу, имя берётся из контактов.
func (uc *ExportUseCase) ConversationByID(ctx context.Context, id string) domain.Conversation {
	conv := domain.Conversation{
		ID:      id,
		Name:    id,
		IsGroup: strings.HasSuffix(id, "@chatroom"),
	}
	names, err := uc.contacts.GetDisplayNames(ctx, []string{id})
	if err == nil {
		if v, ok := names[id]; ok && v != "" {
			conv.Name = v
		}
	}
	avatars, err := uc.contacts.GetAvatarURLs(ctx, []string{id})
	if err == nil {
		conv.Avatar = avatars[id]
	}
	return conv
}

// checkPreconditions проверяет, что идентификатор аккаунта, корневой
// каталог и ключ расшифровки заданы. Отсутствие любого из них —
// немедленная неудача без побочных эффектов.
func (uc *ExportUseCase) checkPreconditions() error {
	if uc.cfg.WeChat.AccountID == "" {
		return fmt.Errorf("не задан идентификатор аккаунта (wechat.account_id)")
	}
	if uc.cfg.WeChat.DataDir == "" {
		return fmt.Errorf("не задан корневой каталог данных (wechat.data_dir)")
	}
	if uc.cfg.WeChat.DBKey == "" {
		return fmt.Errorf("не задан ключ расшифровки базы (wechat.db_key)")
	}
	return nil
}

// newExtractor создает экстрактор медиа для одной задачи экспорта.
func (uc *ExportUseCase) newExtractor(req ExportRequest) ports.MediaExtractor {
	kinds := make([]domain.MediaKind, 0, 3)
	for _, k := range uc.cfg.Export.MediaKinds {
		kinds = append(kinds, domain.MediaKind(k))
	}
	return services.NewMediaExtractor(uc.images, uc.voices, uc.cfg.Export.OutputDir,
		services.WithKinds(kinds...),
		services.WithVoiceAsText(uc.cfg.Export.VoiceAsText),
		services.WithHTTPTimeout(uc.cfg.Media.HTTPTimeout()),
		services.WithMaxRedirects(uc.cfg.Media.MaxRedirects),
		services.WithMediaLogger(uc.log),
	)
}

// buildDocument собирает выходной документ из накопленных участников
// и отсортированных сообщений.
func (uc *ExportUseCase) buildDocument(conv domain.Conversation, members map[string]*domain.MemberRecord, order []string, messages []domain.DecodedMessage) *domain.ExportDocument {
	doc := &domain.ExportDocument{
		Header: domain.DocumentHeader{
			Generator:  GeneratorName,
			Version:    GeneratorVersion,
			ExportedAt: time.Now().Format(time.RFC3339),
		},
		Meta: domain.DocumentMeta{
			Name: conv.Name,
			Type: "private",
		},
		Members:  make([]domain.MemberRecord, 0, len(members)),
		Messages: make([]domain.ExportMessage, 0, len(messages)),
	}
	if conv.IsGroup {
		doc.Meta.Type = "group"
		doc.Meta.GroupID = conv.ID
		doc.Meta.GroupAvatar = conv.Avatar
	}

	for _, id := range order {
		if rec, ok := members[id]; ok {
			doc.Members = append(doc.Members, *rec)
		}
	}

	for _, msg := range messages {
		em := domain.ExportMessage{
			Sender:    msg.Sender,
			Timestamp: msg.CreateTime,
			Type:      msg.LocalType,
			Content:   msg.Content,
			Media:     msg.MediaPath,
			IsSelf:    msg.IsSend,
		}
		if rec, ok := members[msg.Sender]; ok {
			em.AccountName = rec.AccountName
			em.GroupNickname = rec.GroupNickname
		} else {
			em.AccountName = msg.Sender
		}
		doc.Messages = append(doc.Messages, em)
	}
	return doc
}

// defaultPath строит путь выходного файла по умолчанию.
func (uc *ExportUseCase) defaultPath(req ExportRequest) string {
	name := sanitizeFileName(req.Conversation.Name)
	if name == "" {
		name = sanitizeFileName(req.Conversation.ID)
	}
	ext := req.Format
	if ext == FormatNDJSON {
		ext = "jsonl"
	}
	file := fmt.Sprintf("%s_%s.%s", name, time.Now().Format("20060102_150405"), ext)
	return filepath.Join(uc.cfg.Export.OutputDir, file)
}

// sanitizeFileName заменяет символы, недопустимые в именах файлов.
func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		"\\", "_", "/", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return replacer.Replace(strings.TrimSpace(name))
}

// monotonic оборачивает приёмник прогресса так, чтобы счётчики
// в пределах задачи никогда не убывали.
func monotonic(f domain.ProgressFunc) domain.ProgressFunc {
	var cur, tot int
	return func(p domain.Progress) {
		if f == nil {
			return
		}
		if p.Current < cur {
			p.Current = cur
		} else {
			cur = p.Current
		}
		if p.Total < tot {
			p.Total = tot
		} else {
			tot = p.Total
		}
		f(p)
	}
}

// memberKeys возвращает текущий набор ключей карты участников.
func memberKeys(members map[string]*domain.MemberRecord) map[string]bool {
	keys := make(map[string]bool, len(members))
	for k := range members {
		keys[k] = true
	}
	return keys
}

// addedKeys возвращает отсортированные ключи, появившиеся после слияния.
func addedKeys(members map[string]*domain.MemberRecord, before map[string]bool) []string {
	var added []string
	for k := range members {
		if !before[k] {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	return added
}
