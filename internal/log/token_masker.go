package log

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const (
	maskedToken  = "bot***:***masked-token***"
	maskedSecret = "***masked***"
)

// TokenMaskerHandler - обертка для slog.Handler, которая маскирует токены бота
// и заранее известные секреты (путь вебхука, токен из конфига) в логах.
type TokenMaskerHandler struct {
	handler slog.Handler
	secrets []string
}

// NewTokenMaskerHandler создает новый обработчик с маскировкой токенов.
// Пустые секреты игнорируются.
func NewTokenMaskerHandler(handler slog.Handler, secrets ...string) *TokenMaskerHandler {
	filtered := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if strings.TrimSpace(s) != "" {
			filtered = append(filtered, s)
		}
	}
	return &TokenMaskerHandler{
		handler: handler,
		secrets: filtered,
	}
}

// токены в формате botID:token в URL API и голые ID:token из конфигурации
var (
	telegramTokenRegex = regexp.MustCompile(`(\bbot\d+:[A-Za-z0-9_-]{35,})`)
	bareTokenRegex     = regexp.MustCompile(`\b\d{6,}:[A-Za-z0-9_-]{35,}`)
)

// maskTokens заменяет найденные токены на маску
func maskTokens(text string) string {
	text = telegramTokenRegex.ReplaceAllString(text, maskedToken)
	return bareTokenRegex.ReplaceAllString(text, maskedToken)
}

func (h *TokenMaskerHandler) mask(text string) string {
	for _, s := range h.secrets {
		text = strings.ReplaceAll(text, s, maskedSecret)
	}
	return maskTokens(text)
}

// Enabled реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) Handle(ctx context.Context, record slog.Record) error {
	// Clone() сохраняет атрибуты, поэтому собираем новую запись с нуля,
	// чтобы не отправить дальше немаскированные значения.
	r := slog.NewRecord(record.Time, record.Level, h.mask(record.Message), record.PC)

	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(slog.Attr{
			Key:   a.Key,
			Value: h.maskValue(a.Value),
		})
		return true
	})

	return h.handler.Handle(ctx, r)
}

// WithAttrs реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		maskedAttrs[i] = slog.Attr{
			Key:   attr.Key,
			Value: h.maskValue(attr.Value),
		}
	}
	return &TokenMaskerHandler{
		handler: h.handler.WithAttrs(maskedAttrs),
		secrets: h.secrets,
	}
}

// WithGroup реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) WithGroup(name string) slog.Handler {
	return &TokenMaskerHandler{
		handler: h.handler.WithGroup(name),
		secrets: h.secrets,
	}
}

// maskValue рекурсивно маскирует значения атрибутов
func (h *TokenMaskerHandler) maskValue(value slog.Value) slog.Value {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		return slog.StringValue(h.mask(value.String()))
	case slog.KindAny:
		// ошибки Telegram API часто содержат полный URL запроса
		if err, ok := value.Any().(error); ok {
			return slog.StringValue(h.mask(err.Error()))
		}
		return value
	case slog.KindGroup:
		group := value.Group()
		maskedGroup := make([]slog.Attr, len(group))
		for i, attr := range group {
			maskedGroup[i] = slog.Attr{
				Key:   attr.Key,
				Value: h.maskValue(attr.Value),
			}
		}
		return slog.GroupValue(maskedGroup...)
	default:
		return value
	}
}

// NewMaskedLogger создает новый экземпляр slog.Logger с маскировкой токенов
func NewMaskedLogger(handler slog.Handler, secrets ...string) *slog.Logger {
	return slog.New(NewTokenMaskerHandler(handler, secrets...))
}

// ParseLevel переводит строковый уровень из конфигурации в slog.Level.
// Неизвестные значения дают info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
