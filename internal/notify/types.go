package notify

import (
	"context"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// DedupWindow suppresses identical texts sent within the window.
	DedupWindow time.Duration
}

// Notification is one outbound operator message.
type Notification struct {
	Priority int // 0 low .. 10 high
	Text     string
}

// Sender delivers text to the operator chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// Event types published by the pipeline.
const (
	TypeSent    = "notify.sent"
	TypeFailed  = "notify.failed"
	TypeDropped = "notify.dropped"
)

// NotificationEvent is emitted on the event bus for pipeline outcomes.
type NotificationEvent struct {
	ChatID int64     `json:"chat_id"`
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
