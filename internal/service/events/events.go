package events

import (
	"MacroRecorder/internal/service/macro"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Type: вид уведомления для UI.
type Type string

const (
	StateChanged   Type = "state_changed"
	EventRecorded  Type = "event_recorded"
	RebindStarted  Type = "rebind_started"
	RebindFinished Type = "rebind_finished"
	MacroChanged   Type = "macro_changed"
	Warning        Type = "warning"
	Error          Type = "error"
)

// Notification: одно уведомление ядра. Заполнены только поля, относящиеся к Type.
type Notification struct {
	Type    Type              `json:"type"`
	State   string            `json:"state,omitempty"`
	Event   *macro.InputEvent `json:"event,omitempty"`
	Action  string            `json:"action,omitempty"`
	Combo   []string          `json:"combo,omitempty"`
	Macro   string            `json:"macro,omitempty"`
	Events  int               `json:"events,omitempty"`
	Message string            `json:"message,omitempty"`
	At      time.Time         `json:"at"`
}

func (n Notification) String() string {
	switch n.Type {
	case StateChanged:
		return "state: " + n.State
	case EventRecorded:
		if n.Event != nil {
			return n.Event.Describe()
		}
	case RebindStarted:
		return fmt.Sprintf("press new combo for %s", n.Action)
	case RebindFinished:
		if n.Message != "" {
			return fmt.Sprintf("rebind %s failed: %s", n.Action, n.Message)
		}
		return fmt.Sprintf("%s bound to %s", n.Action, strings.Join(n.Combo, "+"))
	case MacroChanged:
		return fmt.Sprintf("macro %q: %d events", n.Macro, n.Events)
	case Warning, Error:
		return string(n.Type) + ": " + n.Message
	}
	return string(n.Type)
}

// Notifier получает уведомления. Реализация не должна блокировать вызывающего.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc адаптирует функцию к Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Fanout раздаёт уведомление всем подписчикам.
type Fanout struct {
	mu   sync.RWMutex
	subs map[int]Notifier
	next int
}

func NewFanout(subs ...Notifier) *Fanout {
	f := &Fanout{subs: map[int]Notifier{}}
	for _, s := range subs {
		f.Subscribe(s)
	}
	return f
}

// Subscribe добавляет подписчика и возвращает функцию отписки.
func (f *Fanout) Subscribe(n Notifier) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = n
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *Fanout) Notify(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	f.mu.RLock()
	subs := make([]Notifier, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.RUnlock()
	for _, s := range subs {
		s.Notify(n)
	}
}
