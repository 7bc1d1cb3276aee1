package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"wechat-chat-exporter/internal/adapters/exporter"
	"wechat-chat-exporter/internal/adapters/media"
	"wechat-chat-exporter/internal/adapters/source"
	"wechat-chat-exporter/internal/domain"
	applog "wechat-chat-exporter/internal/log"
	"wechat-chat-exporter/internal/pkg/config"
	"wechat-chat-exporter/internal/pkg/term"
	"wechat-chat-exporter/internal/ports"
	"wechat-chat-exporter/internal/server/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("export failed", "error", err)
		os.Exit(1)
	}
}

// run выполняет экспорт бесед напрямую, без HTTP-сервера.
func run() error {
	var format string
	var output string
	var rangeStart, rangeEnd int64
	var includeAvatars bool
	var verbose bool
	flag.StringVar(&format, "format", "json", "Формат экспорта: json, jsonl, xlsx или console")
	flag.StringVar(&output, "output", "", "Каталог экспорта (переопределяет конфигурацию)")
	flag.Int64Var(&rangeStart, "from", 0, "Unix-время самого раннего сообщения")
	flag.Int64Var(&rangeEnd, "to", 0, "Unix-время самого позднего сообщения")
	flag.BoolVar(&includeAvatars, "avatars", false, "Включить аватары участников")
	flag.BoolVar(&verbose, "v", false, "Подробный вывод")
	flag.Parse()

	conversations := flag.Args()
	if len(conversations) == 0 {
		return fmt.Errorf("требуется хотя бы один идентификатор беседы")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if output != "" {
		cfg.Export.OutputDir = output
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := applog.NewMaskedLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Недостающие параметры доступа запрашиваются интерактивно.
	t := term.NewTerminal()
	if cfg.WeChat.AccountID == "" {
		id, err := t.AccountID()
		if err != nil {
			return fmt.Errorf("failed to read account id: %w", err)
		}
		cfg.WeChat.AccountID = id
	}
	if cfg.WeChat.DBKey == "" {
		key, err := t.Key()
		if err != nil {
			return fmt.Errorf("failed to read database key: %w", err)
		}
		cfg.WeChat.DBKey = key
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	src, err := source.NewSQLiteSource(cfg.WeChat.DBPath, source.WithSQLiteLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open message database: %w", err)
	}
	defer src.Close()

	provider, err := media.NewLocalProvider(cfg.WeChat.DataDir, cfg.WeChat.VoiceDBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to create media provider: %w", err)
	}
	defer provider.Close()

	exporters := map[string]ports.Exporter{
		usecase.FormatJSON:   exporter.NewJSONExporter(),
		usecase.FormatNDJSON: exporter.NewNDJSONExporter(),
		usecase.FormatExcel:  exporter.NewExcelExporter(cfg.Export.Columns),
		"console":            exporter.NewConsoleExporter(),
	}
	uc := usecase.NewExportUseCase(cfg, src, src, src, provider, provider, exporters)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reqs := make([]usecase.ExportRequest, 0, len(conversations))
	for _, id := range conversations {
		conv := uc.ConversationByID(ctx, id)
		reqs = append(reqs, usecase.ExportRequest{
			Conversation:   conv,
			Format:         format,
			RangeStart:     rangeStart,
			RangeEnd:       rangeEnd,
			IncludeAvatars: includeAvatars,
			Progress: func(p domain.Progress) {
				fmt.Fprintf(os.Stderr, "\r%s: %s %d/%d", conv.Name, p.Phase, p.Current, p.Total)
				if p.Phase == domain.PhaseComplete {
					fmt.Fprintln(os.Stderr)
				}
			},
		})
	}

	summary, paths := uc.ExportSessions(ctx, reqs)

	fmt.Printf("Экспортировано бесед: %d, с ошибками: %d\n", summary.SuccessCount, summary.FailCount)
	for _, p := range paths {
		fmt.Println(p)
	}
	if summary.FailCount > 0 {
		fmt.Fprintln(os.Stderr, "Ошибки:")
		fmt.Fprintln(os.Stderr, strings.Join(summary.Errors, "\n"))
		os.Exit(1)
	}
	return nil
}
