package domain

import (
	"errors"
	"time"
)

// ErrUnknownEvent возвращается диспетчером для неизвестного типа события.
var ErrUnknownEvent = errors.New("unknown event")

// Message — сообщение, которое нужно переслать.
type Message struct {
	FromChatID string
	MessageID  int
	Text       string
}

// Event — входящее событие от транспорта.
type Event interface {
	eventName() string
}

// IncomingMessage — сообщение от отправителя.
type IncomingMessage struct {
	SenderID string
	Message  Message
}

// MembershipChanged — изменился статус бота в чате.
type MembershipChanged struct {
	ChatID string
	Kind   ChatKind
	Status MemberStatus
	Title  string
}

// Startup — запуск процесса, инициирует полную сверку.
type Startup struct{}

func (IncomingMessage) eventName() string   { return "incoming_message" }
func (MembershipChanged) eventName() string { return "membership_changed" }
func (Startup) eventName() string           { return "startup" }

// EventName возвращает имя события для логов и метрик.
func EventName(e Event) string {
	if e == nil {
		return "nil"
	}
	return e.eventName()
}

// EventResult — результат обработки события диспетчером.
type EventResult struct {
	// FanOut заполнен для IncomingMessage.
	FanOut *FanOutResult
	// Chats — число известных чатов после изменения реестра.
	Chats int
}

// FanOutStatus — итог попытки рассылки.
type FanOutStatus string

const (
	FanOutUnauthorized   FanOutStatus = "unauthorized"
	FanOutNoDestinations FanOutStatus = "no_destinations"
	FanOutCompleted      FanOutStatus = "completed"
)

// DeliveryOutcome — результат отправки в один чат.
type DeliveryOutcome struct {
	ChatID   string
	ChatName string
	Err      error
	Duration time.Duration
}

// Delivered сообщает, доставлено ли сообщение.
func (o DeliveryOutcome) Delivered() bool {
	return o.Err == nil
}

// FanOutResult — агрегированный результат рассылки.
type FanOutResult struct {
	ID       string
	Status   FanOutStatus
	Outcomes []DeliveryOutcome
}

// DeliveredCount возвращает число успешных доставок.
func (r FanOutResult) DeliveredCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Delivered() {
			n++
		}
	}
	return n
}

// Failed возвращает неудачные доставки.
func (r FanOutResult) Failed() []DeliveryOutcome {
	var failed []DeliveryOutcome
	for _, o := range r.Outcomes {
		if !o.Delivered() {
			failed = append(failed, o)
		}
	}
	return failed
}
