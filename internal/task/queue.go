package task

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"Dexter-Chain/internal/observability/metrics"
)

// Handler 处理来自消息队列的任务 ID。
type Handler func(ctx context.Context, taskID string) error

// Producer 负责向队列投递任务。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 负责从队列中消费任务。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// message 是写入外部队列的消息体。请求内容保存在 Store 中，队列只携带 ID。
type message struct {
	TaskID     string `json:"task_id"`
	EnqueuedAt int64  `json:"enqueued_at"`
}

func newMessage(taskID string) message {
	return message{TaskID: taskID, EnqueuedAt: time.Now().UnixMilli()}
}

func (m message) encode() []byte {
	data, _ := json.Marshal(m)
	return data
}

// decodeMessage 解析消息体；非 JSON 内容按裸任务 ID 处理。
func decodeMessage(body []byte) message {
	var m message
	if err := json.Unmarshal(body, &m); err == nil && m.TaskID != "" {
		return m
	}
	return message{TaskID: strings.TrimSpace(string(body))}
}

// deliver 记录排队时长后交给 handler。
func deliver(ctx context.Context, driver string, m message, handler Handler) error {
	if m.EnqueuedAt > 0 {
		metrics.ObserveQueueWait(driver, time.Since(time.UnixMilli(m.EnqueuedAt)))
	}
	return handler(ctx, m.TaskID)
}
