package input

import (
	"MacroRecorder/internal/service/macro"
	"context"
	"errors"
	"sync/atomic"
)

// ErrBackendUnavailable: глобальный перехват или синтез ввода недоступен
// (нет прав, нет дисплея, не удалось поставить хук).
var ErrBackendUnavailable = errors.New("input backend unavailable")

// Listener поставляет сырые события клавиатуры и мыши до отмены контекста.
// Запуск блокирующий; ошибка установки перехвата оборачивает ErrBackendUnavailable.
type Listener interface {
	Run(ctx context.Context, out chan<- macro.RawEvent) error
}

// Injector синтезирует событие на уровне ОС.
type Injector interface {
	Inject(ctx context.Context, ev macro.InputEvent) error
}

// Sink делает неблокирующую отправку из потока хука; при переполнении событие
// отбрасывается и учитывается в Dropped.
type Sink struct {
	out     chan<- macro.RawEvent
	dropped atomic.Int64
}

func NewSink(out chan<- macro.RawEvent) *Sink { return &Sink{out: out} }

func (s *Sink) Send(ev macro.RawEvent) bool {
	select {
	case s.out <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Sink) Dropped() int64 { return s.dropped.Load() }
