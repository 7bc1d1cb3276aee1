package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sevlyar/go-daemon"

	"wechat-chat-exporter/internal/adapters/exporter"
	"wechat-chat-exporter/internal/adapters/media"
	"wechat-chat-exporter/internal/adapters/source"
	applog "wechat-chat-exporter/internal/log"
	"wechat-chat-exporter/internal/pkg/config"
	"wechat-chat-exporter/internal/ports"
	"wechat-chat-exporter/internal/server"
	"wechat-chat-exporter/internal/server/usecase"
)

func main() {
	detach := flag.Bool("detach", false, "запустить сервер в фоновом режиме")
	flag.Parse()

	if *detach {
		dctx := &daemon.Context{
			PidFileName: "wechat-exporter.pid",
			PidFilePerm: 0644,
			LogFileName: "wechat-exporter.log",
			LogFilePerm: 0640,
		}
		child, err := dctx.Reborn()
		if err != nil {
			slog.Error("failed to detach", "error", err)
			os.Exit(1)
		}
		if child != nil {
			// Родительский процесс завершает работу сразу.
			return
		}
		defer dctx.Release()
	}

	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run() error {
	// 1. Загрузка и валидация конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера с маскировкой ключа расшифровки
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := applog.NewMaskedLogger(handler)
	slog.SetDefault(logger)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// 4. Инициализация зависимостей
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
	}

	taskStore := server.NewTaskStore()
	uc := usecase.NewExportUseCase(cfg, src, src, src, provider, provider, exporters)

	// 5. Создание HTTP-сервера
	srv, err := server.New(cfg, uc, taskStore)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// 6. Запуск сервера и graceful shutdown
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		slog.Info("Starting server", "addr", cfg.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Signal received, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	<-serverDone
	slog.Info("HTTP server stopped")

	slog.Info("Application exited gracefully")
	return nil
}
