package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/pkg/config"
	"wechat-chat-exporter/internal/server/usecase"
)

// ChatExporter определяет интерфейс для варианта использования, который экспортирует беседы.
type ChatExporter interface {
	ExportSessions(ctx context.Context, reqs []usecase.ExportRequest) (domain.ExportSummary, []string)
	ConversationByID(ctx context.Context, id string) domain.Conversation
}

// exportRequestBody описывает тело запроса на экспорт
type exportRequestBody struct {
	Conversations  []string `json:"conversations"`
	Format         string   `json:"format"`
	RangeStart     int64    `json:"range_start,omitempty"`
	RangeEnd       int64    `json:"range_end,omitempty"`
	IncludeAvatars bool     `json:"include_avatars,omitempty"`
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	taskStore  *TaskStore
	exporter   ChatExporter
}

// New создает новый экземпляр Server
func New(cfg *config.Config, exporter ChatExporter, taskStore *TaskStore) (*Server, error) {
	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.Logger)
	chiRouter.Use(middleware.Recoverer)

	// Конечная точка для проверки работоспособности
	chiRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		// Доступность хранилища проверяется при запуске через Ping.
		// Если сервер запущен, предполагается, что база доступна.
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	})

	// Маршруты API
	chiRouter.Route("/api/v1", func(r chi.Router) {
		// Конечная точка для запуска новой задачи экспорта
		r.Post("/export", func(w http.ResponseWriter, r *http.Request) {
			var body exportRequestBody
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
				return
			}

			if len(body.Conversations) == 0 {
				http.Error(w, "Требуется хотя бы одна беседа", http.StatusBadRequest)
				return
			}
			if body.Format == "" {
				body.Format = usecase.FormatJSON
			}
			switch body.Format {
			case usecase.FormatJSON, usecase.FormatNDJSON, usecase.FormatExcel:
			default:
				http.Error(w, "Неподдерживаемый формат экспорта", http.StatusBadRequest)
				return
			}

			// Генерация уникального идентификатора задачи
			taskID := uuid.NewString()

			// Создание задачи в хранилище
			taskStore.CreateTask(taskID, cfg.TaskTTL()) // TTL для записи о задаче

			// Запуск экспорта в горутине
			go func() {
				// Обновление статуса до "в обработке"
				taskStore.UpdateTaskStatus(taskID, TaskStatusProcessing)

				// Создание контекста для задачи с таймаутом из конфигурации.
				taskCtx := context.Background()
				if cfg.Processing.TaskTimeoutSeconds > 0 {
					var cancel context.CancelFunc
					taskCtx, cancel = context.WithTimeout(context.Background(), cfg.TaskTimeout())
					defer cancel()
				}

				reqs := make([]usecase.ExportRequest, 0, len(body.Conversations))
				for _, id := range body.Conversations {
					reqs = append(reqs, usecase.ExportRequest{
						Conversation:   exporter.ConversationByID(taskCtx, id),
						Format:         body.Format,
						RangeStart:     body.RangeStart,
						RangeEnd:       body.RangeEnd,
						IncludeAvatars: body.IncludeAvatars,
						Progress: func(p domain.Progress) {
							taskStore.UpdateTaskProgress(taskID, p)
						},
					})
				}

				summary, paths := exporter.ExportSessions(taskCtx, reqs)
				if summary.SuccessCount == 0 && summary.FailCount > 0 {
					taskStore.UpdateTaskError(taskID, summary.Errors[0])
					return
				}

				// Обновление задачи с результатом
				taskStore.UpdateTaskResult(taskID, summary, paths)
			}()

			// Возврат идентификатора задачи
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"task_id": taskID})
		})

		// Конечная точка для проверки статуса задачи
		r.Get("/tasks/{taskID}", func(w http.ResponseWriter, r *http.Request) {
			taskID := chi.URLParam(r, "taskID")

			task, err := taskStore.GetTask(taskID)
			if err != nil {
				http.Error(w, "Задача не найдена", http.StatusNotFound)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"task_id":       task.ID,
				"status":        task.Status,
				"progress":      task.Progress,
				"error_message": task.ErrorMessage,
			})
		})

		// Конечная точка для получения результата задачи
		r.Get("/tasks/{taskID}/result", func(w http.ResponseWriter, r *http.Request) {
			taskID := chi.URLParam(r, "taskID")

			task, err := taskStore.GetTask(taskID)
			if err != nil {
				http.Error(w, "Задача не найдена", http.StatusNotFound)
				return
			}

			if task.Status != TaskStatusCompleted {
				http.Error(w, "Задача не завершена", http.StatusBadRequest)
				return
			}

			response := struct {
				Summary     domain.ExportSummary `json:"summary"`
				OutputPaths []string             `json:"output_paths"`
			}{
				Summary:     task.Summary,
				OutputPaths: task.OutputPaths,
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(response)
		})
	})

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      chiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s := &Server{
		HTTPServer: httpServer,
		cfg:        cfg,
		taskStore:  taskStore,
		exporter:   exporter,
	}

	// Запуск тикера для очистки просроченных задач
	ctx := context.Background()
	s.taskStore.StartCleanupTicker(ctx, 1*time.Hour) // Очистка каждый час

	return s, nil
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Завершение работы HTTP-сервера")
	return s.HTTPServer.Shutdown(ctx)
}
