package monitor

import (
	"time"

	"channel-breakout/internal/engine"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventCycle EventType = "cycle"
	EventError EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CyclePayload 记录一个决策周期的完整结果。
type CyclePayload struct {
	Symbol string             `json:"symbol"`
	Result engine.CycleResult `json:"result"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
