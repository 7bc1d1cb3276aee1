package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type exportRequest struct {
	Conversations  []string `json:"conversations"`
	Format         string   `json:"format"`
	RangeStart     int64    `json:"range_start,omitempty"`
	RangeEnd       int64    `json:"range_end,omitempty"`
	IncludeAvatars bool     `json:"include_avatars,omitempty"`
}

type taskStatusResponse struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Progress     struct {
		Phase   string `json:"phase"`
		Current int    `json:"current"`
		Total   int    `json:"total"`
	} `json:"progress"`
}

func main() {
	var serverAddr string
	var format string
	var rangeStart, rangeEnd int64
	var includeAvatars bool
	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "Server address")
	flag.StringVar(&format, "format", "json", "Export format: json, jsonl or xlsx")
	flag.Int64Var(&rangeStart, "from", 0, "Unix timestamp of the earliest message")
	flag.Int64Var(&rangeEnd, "to", 0, "Unix timestamp of the latest message")
	flag.BoolVar(&includeAvatars, "avatars", false, "Include member avatar URLs")
	flag.Parse()

	conversations := flag.Args()
	if len(conversations) == 0 {
		log.Fatal("At least one conversation id is required. Usage: client [flags] <id1> <id2> ...")
	}

	// Формирование тела запроса на экспорт
	req := exportRequest{
		Conversations:  conversations,
		Format:         format,
		RangeStart:     rangeStart,
		RangeEnd:       rangeEnd,
		IncludeAvatars: includeAvatars,
	}
	body, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("Не удалось сериализовать запрос: %v", err)
	}

	// Отправка запроса на сервер
	resp, err := http.Post(serverAddr+"/api/v1/export", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Не удалось отправить запрос: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("Сервер вернул статус: %d", resp.StatusCode)
	}

	// Разбор идентификатора задачи из ответа
	var taskResp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&taskResp); err != nil {
		log.Fatalf("Не удалось декодировать ответ: %v", err)
	}
	taskID := taskResp["task_id"]
	if taskID == "" {
		log.Fatal("Идентификатор задачи не найден в ответе")
	}

	fmt.Printf("Задача создана с идентификатором: %s\n", taskID)

	// Опрос о статусе задачи
	lastPhase := ""
	for {
		time.Sleep(2 * time.Second) // Ожидание перед следующим опросом

		resp, err := http.Get(fmt.Sprintf("%s/api/v1/tasks/%s", serverAddr, taskID))
		if err != nil {
			log.Fatalf("Не удалось опросить статус задачи: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			log.Fatalf("Сервер вернул статус: %d", resp.StatusCode)
		}

		var statusResp taskStatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
			log.Fatalf("Не удалось декодировать ответ статуса: %v", err)
		}

		if statusResp.Progress.Phase != "" && statusResp.Progress.Phase != lastPhase {
			lastPhase = statusResp.Progress.Phase
			fmt.Printf("Фаза: %s (%d/%d)\n", statusResp.Progress.Phase,
				statusResp.Progress.Current, statusResp.Progress.Total)
		}

		switch statusResp.Status {
		case "completed":
			fmt.Println("Экспорт выполнен успешно.")
			// Получение и вывод результата.
			resultResp, err := http.Get(fmt.Sprintf("%s/api/v1/tasks/%s/result", serverAddr, taskID))
			if err != nil {
				log.Fatalf("Не удалось получить результат: %v", err)
			}
			defer resultResp.Body.Close()

			if resultResp.StatusCode != http.StatusOK {
				log.Fatalf("Сервер вернул статус для результата: %d", resultResp.StatusCode)
			}

			resultData, err := io.ReadAll(resultResp.Body)
			if err != nil {
				log.Fatalf("Не удалось прочитать тело результата: %v", err)
			}

			fmt.Println("Результат экспорта:")
			fmt.Println(strings.TrimSpace(string(resultData)))
			return
		case "failed":
			fmt.Printf("Экспорт не выполнен: %s\n", statusResp.ErrorMessage)
			os.Exit(1)
		case "pending", "processing":
			// Продолжение опроса
			continue
		default:
			log.Fatalf("Неизвестный статус задачи: %s", statusResp.Status)
		}
	}
}
