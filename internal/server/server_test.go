package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wechat-chat-exporter/internal/domain"
	"wechat-chat-exporter/internal/pkg/config"
	"wechat-chat-exporter/internal/server/usecase"
)

// mockExporter - мок-реализация ChatExporter для тестирования
type mockExporter struct {
	ExportSessionsFunc func(ctx context.Context, reqs []usecase.ExportRequest) (domain.ExportSummary, []string)
}

func (m *mockExporter) ExportSessions(ctx context.Context, reqs []usecase.ExportRequest) (domain.ExportSummary, []string) {
	if m.ExportSessionsFunc != nil {
		return m.ExportSessionsFunc(ctx, reqs)
	}
	return domain.ExportSummary{}, nil
}

func (m *mockExporter) ConversationByID(_ context.Context, id string) domain.Conversation {
	return domain.Conversation{ID: id, Name: id}
}

func newTestServer(t *testing.T, exporter ChatExporter) (*Server, *TaskStore) {
	t.Helper()
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}
	ts := NewTaskStore()
	srv, err := New(cfg, exporter, ts)
	if err != nil {
		t.Fatalf("Не удалось создать сервер: %v", err)
	}
	return srv, ts
}

// waitForStatus опрашивает хранилище задач до нужного статуса.
func waitForStatus(t *testing.T, ts *TaskStore, taskID string, want TaskStatus) *Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := ts.GetTask(taskID)
		if err == nil && task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Задача %s не достигла статуса %s", taskID, want)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &mockExporter{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HTTPServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Ожидался статус 200, получено %d", rec.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	t.Run("успешный экспорт завершает задачу", func(t *testing.T) {
		exporter := &mockExporter{
			ExportSessionsFunc: func(_ context.Context, reqs []usecase.ExportRequest) (domain.ExportSummary, []string) {
				return domain.ExportSummary{SuccessCount: len(reqs)}, []string{"export/a.json"}
			},
		}
		srv, ts := newTestServer(t, exporter)

		body, _ := json.Marshal(map[string]interface{}{
			"conversations": []string{"wxid_friend"},
			"format":        "json",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/export", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.HTTPServer.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("Ожидался статус 202, получено %d: %s", rec.Code, rec.Body.String())
		}

		var resp map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Не удалось декодировать ответ: %v", err)
		}
		taskID := resp["task_id"]
		if taskID == "" {
			t.Fatal("Идентификатор задачи не найден в ответе")
		}

		task := waitForStatus(t, ts, taskID, TaskStatusCompleted)
		if task.Summary.SuccessCount != 1 {
			t.Errorf("Итог искажен: %+v", task.Summary)
		}
		if len(task.OutputPaths) != 1 {
			t.Errorf("Ожидался один путь, получено %v", task.OutputPaths)
		}
	})

	t.Run("полная неудача помечает задачу failed", func(t *testing.T) {
		exporter := &mockExporter{
			ExportSessionsFunc: func(_ context.Context, reqs []usecase.ExportRequest) (domain.ExportSummary, []string) {
				return domain.ExportSummary{FailCount: 1, Errors: []string{"conv: база недоступна"}}, nil
			},
		}
		srv, ts := newTestServer(t, exporter)

		body, _ := json.Marshal(map[string]interface{}{"conversations": []string{"broken"}})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/export", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.HTTPServer.Handler.ServeHTTP(rec, req)

		var resp map[string]string
		json.NewDecoder(rec.Body).Decode(&resp)

		task := waitForStatus(t, ts, resp["task_id"], TaskStatusFailed)
		if task.ErrorMessage == "" {
			t.Error("Ожидалось сообщение об ошибке")
		}
	})

	t.Run("пустой список бесед отвергается", func(t *testing.T) {
		srv, _ := newTestServer(t, &mockExporter{})

		body, _ := json.Marshal(map[string]interface{}{"conversations": []string{}})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/export", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.HTTPServer.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Ожидался статус 400, получено %d", rec.Code)
		}
	})

	t.Run("неизвестный формат отвергается", func(t *testing.T) {
		srv, _ := newTestServer(t, &mockExporter{})

		body, _ := json.Marshal(map[string]interface{}{
			"conversations": []string{"wxid_friend"},
			"format":        "pdf",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/export", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.HTTPServer.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Ожидался статус 400, получено %d", rec.Code)
		}
	})
}

func TestTaskEndpoints(t *testing.T) {
	t.Run("статус неизвестной задачи дает 404", func(t *testing.T) {
		srv, _ := newTestServer(t, &mockExporter{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/nope", nil)
		rec := httptest.NewRecorder()
		srv.HTTPServer.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("Ожидался статус 404, получено %d", rec.Code)
		}
	})

	t.Run("результат незавершенной задачи дает 400", func(t *testing.T) {
		srv, ts := newTestServer(t, &mockExporter{})
		ts.CreateTask("pending-task", time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/pending-task/result", nil)
		rec := httptest.NewRecorder()
		srv.HTTPServer.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Ожидался статус 400, получено %d", rec.Code)
		}
	})

	t.Run("результат завершенной задачи возвращается", func(t *testing.T) {
		srv, ts := newTestServer(t, &mockExporter{})
		ts.CreateTask("done-task", time.Hour)
		ts.UpdateTaskResult("done-task",
			domain.ExportSummary{SuccessCount: 1}, []string{"export/a.json"})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/done-task/result", nil)
		rec := httptest.NewRecorder()
		srv.HTTPServer.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Ожидался статус 200, получено %d", rec.Code)
		}

		var resp struct {
			Summary     domain.ExportSummary `json:"summary"`
			OutputPaths []string             `json:"output_paths"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Не удалось декодировать ответ: %v", err)
		}
		if resp.Summary.SuccessCount != 1 || len(resp.OutputPaths) != 1 {
			t.Errorf("Результат искажен: %+v", resp)
		}
	})
}
