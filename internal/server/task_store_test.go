package server

import (
	"testing"
	"time"

	"wechat-chat-exporter/internal/domain"
)

func TestTaskStore(t *testing.T) {
	t.Run("создание и извлечение задачи", func(t *testing.T) {
		ts := NewTaskStore()
		ts.CreateTask("task-1", time.Hour)

		task, err := ts.GetTask("task-1")
		if err != nil {
			t.Fatalf("Неожиданная ошибка: %v", err)
		}
		if task.Status != TaskStatusPending {
			t.Errorf("Ожидался статус pending, получено %s", task.Status)
		}
	})

	t.Run("неизвестная задача дает ошибку", func(t *testing.T) {
		ts := NewTaskStore()
		if _, err := ts.GetTask("nope"); err == nil {
			t.Error("Ожидалась ошибка, получен nil")
		}
	})

	t.Run("обновление статуса", func(t *testing.T) {
		ts := NewTaskStore()
		ts.CreateTask("task-1", time.Hour)

		if err := ts.UpdateTaskStatus("task-1", TaskStatusProcessing); err != nil {
			t.Fatalf("Неожиданная ошибка: %v", err)
		}
		task, _ := ts.GetTask("task-1")
		if task.Status != TaskStatusProcessing {
			t.Errorf("Ожидался статус processing, получено %s", task.Status)
		}
	})

	t.Run("результат переводит задачу в completed", func(t *testing.T) {
		ts := NewTaskStore()
		ts.CreateTask("task-1", time.Hour)

		summary := domain.ExportSummary{SuccessCount: 2, FailCount: 1, Errors: []string{"conv3: база занята"}}
		paths := []string{"export/a.json", "export/b.json"}
		if err := ts.UpdateTaskResult("task-1", summary, paths); err != nil {
			t.Fatalf("Неожиданная ошибка: %v", err)
		}

		task, _ := ts.GetTask("task-1")
		if task.Status != TaskStatusCompleted {
			t.Errorf("Ожидался статус completed, получено %s", task.Status)
		}
		if task.Summary.SuccessCount != 2 || task.Summary.FailCount != 1 {
			t.Errorf("Итог искажен: %+v", task.Summary)
		}
		if len(task.OutputPaths) != 2 {
			t.Errorf("Ожидалось 2 пути, получено %d", len(task.OutputPaths))
		}
	})

	t.Run("ошибка переводит задачу в failed", func(t *testing.T) {
		ts := NewTaskStore()
		ts.CreateTask("task-1", time.Hour)

		if err := ts.UpdateTaskError("task-1", "не задан ключ"); err != nil {
			t.Fatalf("Неожиданная ошибка: %v", err)
		}
		task, _ := ts.GetTask("task-1")
		if task.Status != TaskStatusFailed || task.ErrorMessage != "не задан ключ" {
			t.Errorf("Задача не помечена неудачной: %+v", task)
		}
	})

	t.Run("прогресс сохраняется", func(t *testing.T) {
		ts := NewTaskStore()
		ts.CreateTask("task-1", time.Hour)

		p := domain.Progress{Current: 50, Total: 100, Phase: domain.PhaseExporting}
		if err := ts.UpdateTaskProgress("task-1", p); err != nil {
			t.Fatalf("Неожиданная ошибка: %v", err)
		}
		task, _ := ts.GetTask("task-1")
		if task.Progress != p {
			t.Errorf("Прогресс искажен: %+v", task.Progress)
		}
	})

	t.Run("просроченные задачи удаляются", func(t *testing.T) {
		ts := NewTaskStore()
		ts.CreateTask("old", -time.Minute)
		ts.CreateTask("fresh", time.Hour)

		ts.CleanupExpired()

		if _, err := ts.GetTask("old"); err == nil {
			t.Error("Просроченная задача должна быть удалена")
		}
		if _, err := ts.GetTask("fresh"); err != nil {
			t.Errorf("Свежая задача удалена: %v", err)
		}
	})
}
