package services

import (
	"regexp"
	"strconv"
	"strings"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/ports"
)

var (
	// senderPrefixRe находит префикс вида "wxid_abc:" в начале текста.
	// Проверка на "//" после двоеточия выполняется отдельно, чтобы не
	// срезать схемы URL вроде "https://".
	senderPrefixRe = regexp.MustCompile(`^[0-9A-Za-z_\-]+:`)

	cdataRe  = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	xmlTagRe = regexp.MustCompile(`(?s)<[^>]*>`)
	patVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

	md5AttrRe    = regexp.MustCompile(`\bmd5\s*=\s*"([^"]+)"`)
	cdnURLAttrRe = regexp.MustCompile(`\bcdnurl\s*=\s*"([^"]+)"`)
	poiNameRe    = regexp.MustCompile(`\bpoiname\s*=\s*"([^"]+)"`)
	labelAttrRe  = regexp.MustCompile(`\blabel\s*=\s*"([^"]+)"`)
)

// ContentParserImpl реализует интерфейс ContentParser.
type ContentParserImpl struct{}

// NewContentParser создает новый экземпляр ContentParserImpl.
func NewContentParser() ports.ContentParser {
	return &ContentParserImpl{}
}

// Parse строит человекочитаемую сводку по декодированному содержимому
// и коду типа сообщения. Никогда не паникует: при любом внутреннем сбое
// возвращается обобщённая метка типа, для пустого содержимого — пустая строка.
func (p *ContentParserImpl) Parse(decoded string, localType int) (summary string, refs *domain.MediaRefs) {
	if decoded == "" {
		return "", nil
	}

	defer func() {
		if r := recover(); r != nil {
			summary = typeLabel(localType)
			refs = nil
		}
	}()

	switch localType {
	case domain.TypeText:
		return stripSenderPrefix(decoded), nil
	case domain.TypeImage:
		return "[图片]", imageRefs(decoded)
	case domain.TypeVoice:
		return "[语音]", nil
	case domain.TypeCard:
		return "[名片]", nil
	case domain.TypeVideo:
		return "[视频]", nil
	case domain.TypeEmoji:
		return "[动画表情]", emojiRefs(decoded)
	case domain.TypeLocation:
		return parseLocation(decoded), nil
	case domain.TypeApp:
		return parseApp(decoded)
	case domain.TypeCall:
		return parseCall(decoded), nil
	case domain.TypeSystem, domain.TypePat:
		return parseSystem(decoded), nil
	default:
		// Неизвестный код: если внутри есть цитата, берём её заголовок,
		// иначе обрабатываем как обычный текст.
		if strings.Contains(decoded, "refermsg") {
			if title := titleOf(decoded); title != "" {
				return title, nil
			}
		}
		return stripSenderPrefix(decoded), nil
	}
}

// typeLabel возвращает обобщённую метку для кода типа сообщения.
func typeLabel(localType int) string {
	switch localType {
	case domain.TypeText:
		return ""
	case domain.TypeImage:
		return "[图片]"
	case domain.TypeVoice:
		return "[语音]"
	case domain.TypeCard:
		return "[名片]"
	case domain.TypeVideo:
		return "[视频]"
	case domain.TypeEmoji:
		return "[动画表情]"
	case domain.TypeLocation:
		return "[位置]"
	case domain.TypeApp:
		return "[链接]"
	case domain.TypeCall:
		return "[通话]"
	case domain.TypeSystem, domain.TypePat:
		return "[系统消息]"
	default:
		return "[未知消息]"
	}
}

// stripSenderPrefix срезает ведущий префикс отправителя вида "wxid_abc:".
// Префикс, за которым идёт "//", не трогается: это схема URL, а не
// идентификатор отправителя.
func stripSenderPrefix(s string) string {
	loc := senderPrefixRe.FindStringIndex(s)
	if loc == nil {
		return s
	}
	rest := s[loc[1]:]
	if strings.HasPrefix(rest, "//") {
		return s
	}
	return strings.TrimLeft(rest, " \n\r")
}

// tagValue извлекает содержимое первого вхождения тега. Полный XML-парсер
// здесь не нужен: схема ограничена, а содержимое нередко повреждено,
// поэтому используется точечное извлечение подстрок.
func tagValue(s, tag string) (string, bool) {
	open := strings.Index(s, "<"+tag)
	if open < 0 {
		return "", false
	}
	// Конец открывающего тега; "<type>" и "<type attr=...>" равнозначны.
	gt := strings.Index(s[open:], ">")
	if gt < 0 {
		return "", false
	}
	if open+gt > 0 && s[open+gt-1] == '/' {
		// Самозакрывающийся тег без содержимого.
		return "", false
	}
	body := s[open+gt+1:]
	end := strings.Index(body, "</"+tag+">")
	if end < 0 {
		return "", false
	}
	return body[:end], true
}

// unwrapCDATA убирает все обёртки CDATA, сохраняя их содержимое.
func unwrapCDATA(s string) string {
	return cdataRe.ReplaceAllString(s, "$1")
}

// titleOf извлекает заголовок вложенного содержимого: значение первого
// тега <title>, без CDATA и крайних пробелов.
func titleOf(s string) string {
	v, ok := tagValue(s, "title")
	if !ok {
		return ""
	}
	return strings.TrimSpace(unwrapCDATA(v))
}

// imageRefs извлекает контрольную сумму изображения из тега <img>.
func imageRefs(s string) *domain.MediaRefs {
	m := md5AttrRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return &domain.MediaRefs{ChecksumMD5: strings.ToLower(m[1])}
}

// emojiRefs извлекает контрольную сумму и CDN-адрес стикера.
func emojiRefs(s string) *domain.MediaRefs {
	refs := &domain.MediaRefs{}
	if m := md5AttrRe.FindStringSubmatch(s); m != nil {
		refs.ChecksumMD5 = strings.ToLower(m[1])
	}
	if m := cdnURLAttrRe.FindStringSubmatch(s); m != nil {
		// Адрес внутри XML-атрибута несёт экранированные амперсанды.
		refs.EmojiURL = strings.ReplaceAll(m[1], "&amp;", "&")
	}
	if refs.ChecksumMD5 == "" && refs.EmojiURL == "" {
		return nil
	}
	return refs
}

// parseLocation строит сводку сообщения-геометки.
func parseLocation(s string) string {
	if m := poiNameRe.FindStringSubmatch(s); m != nil && m[1] != "" {
		return "[位置] " + m[1]
	}
	if m := labelAttrRe.FindStringSubmatch(s); m != nil && m[1] != "" {
		return "[位置] " + m[1]
	}
	return "[位置]"
}

// parseApp разбирает семейство сообщений с кодом 49: ссылки, файлы,
// мини-программы и цитаты различаются значением вложенного тега <type>.
func parseApp(s string) (string, *domain.MediaRefs) {
	sub := 0
	if v, ok := tagValue(s, "type"); ok {
		sub, _ = strconv.Atoi(strings.TrimSpace(unwrapCDATA(v)))
	}
	title := titleOf(s)

	switch sub {
	case domain.AppSubTypeFile:
		if title == "" {
			return "[文件]", nil
		}
		refs := &domain.MediaRefs{FileName: title}
		if m := md5AttrRe.FindStringSubmatch(s); m != nil {
			refs.ChecksumMD5 = strings.ToLower(m[1])
		}
		return title, refs
	case domain.AppSubTypeMiniApp, domain.AppSubTypeMiniApp2:
		if title == "" {
			return "[小程序]", nil
		}
		return title, nil
	case domain.AppSubTypeQuote:
		if title == "" {
			return "[引用]", nil
		}
		return title, nil
	default:
		if title == "" {
			return "[链接]", nil
		}
		return title, nil
	}
}

// Известные фразы статуса звонка. Порядок проверок важен: фразы не
// являются взаимоисключающими префиксами.
func callStatus(msg string) string {
	switch {
	case strings.Contains(msg, "通话时长"):
		// "通话时长 01:23" — оставляем только длительность.
		i := strings.Index(msg, "通话时长")
		return strings.TrimSpace(msg[i+len("通话时长"):])
	case strings.Contains(msg, "忙线"):
		return "对方忙线未接听"
	case strings.Contains(msg, "其他设备") || strings.Contains(msg, "其它设备"):
		return "已在其他设备接听"
	case strings.Contains(msg, "拒绝"):
		return "已拒绝"
	case strings.Contains(msg, "取消"):
		return "已取消"
	case strings.Contains(msg, "无应答") || strings.Contains(msg, "未接听"):
		return "未接听"
	default:
		return ""
	}
}

// parseCall строит сводку сообщения-звонка: вид звонка из room_type
// (0 — видео, 1 — голос) плюс человекочитаемый статус из <msg>.
func parseCall(s string) string {
	label := "[视频通话]"
	if v, ok := tagValue(s, "room_type"); ok && strings.TrimSpace(unwrapCDATA(v)) == "1" {
		label = "[语音通话]"
	}

	body, ok := tagValue(s, "msg")
	if !ok {
		return label
	}
	status := callStatus(strings.TrimSpace(unwrapCDATA(body)))
	if status == "" {
		return label
	}
	return label + " " + status
}

// parseSystem очищает содержимое системного сообщения.
// Отдельно обрабатываются отзыв сообщения и "похлопывание";
// остальное сводится к тексту без тегов со схлопнутыми пробелами.
func parseSystem(s string) string {
	if strings.Contains(s, "revokemsg") {
		v, ok := tagValue(s, "replacemsg")
		if !ok {
			v, ok = tagValue(s, "revokemsg")
		}
		if ok {
			if t := strings.TrimSpace(unwrapCDATA(v)); t != "" {
				return t
			}
		}
		return "撤回了一条消息"
	}

	if strings.Contains(s, "<pat>") {
		if v, ok := tagValue(s, "template"); ok {
			tpl := strings.TrimSpace(unwrapCDATA(v))
			// Подстановка "${имя}" значением одноимённого соседнего тега.
			out := patVarRe.ReplaceAllStringFunc(tpl, func(m string) string {
				name := m[2 : len(m)-1]
				if val, ok := tagValue(s, name); ok {
					return strings.TrimSpace(unwrapCDATA(val))
				}
				return m
			})
			if out != "" {
				return out
			}
		}
	}

	t := xmlTagRe.ReplaceAllString(unwrapCDATA(s), " ")
	t = strings.Join(strings.Fields(t), " ")
	if t == "" {
		return "[系统消息]"
	}
	return t
}
