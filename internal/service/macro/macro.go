package macro

import (
	"errors"
	"strings"
	"time"
)

// DefaultName: имя макроса сразу после записи.
const DefaultName = "macro"

// Macro: именованная упорядоченная последовательность событий.
type Macro struct {
	Name   string
	Events []InputEvent
}

// New создаёт пустой макрос; пустое имя заменяется на DefaultName.
func New(name string) Macro {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	return Macro{Name: name, Events: []InputEvent{}}
}

// IsEmpty сообщает, что в макросе нет событий.
func (m Macro) IsEmpty() bool { return len(m.Events) == 0 }

// Len: количество событий.
func (m Macro) Len() int { return len(m.Events) }

// Duration: длительность одного прохода.
func (m Macro) Duration() time.Duration {
	if len(m.Events) == 0 {
		return 0
	}
	return time.Duration(m.Events[len(m.Events)-1].OffsetMS) * time.Millisecond
}

// Clone возвращает независимую копию.
func (m Macro) Clone() Macro {
	events := make([]InputEvent, len(m.Events))
	copy(events, m.Events)
	return Macro{Name: m.Name, Events: events}
}

// Validate проверяет имя, порядок смещений и каждое событие.
func (m Macro) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("macro name must not be empty")
	}
	var prev int64
	for i, ev := range m.Events {
		if err := ev.Validate(); err != nil {
			var me *MalformedEventError
			if errors.As(err, &me) {
				me.Index = i
			}
			return err
		}
		if i == 0 && ev.OffsetMS != 0 {
			return &MalformedEventError{Index: i, Kind: ev.Kind, Reason: "first event offset must be 0"}
		}
		if ev.OffsetMS < prev {
			return &MalformedEventError{Index: i, Kind: ev.Kind, Reason: "offsets must be non-decreasing"}
		}
		prev = ev.OffsetMS
	}
	return nil
}

// DeleteEvents удаляет события по индексам (неверные индексы игнорируются)
// и сдвигает смещения так, чтобы первое оставшееся событие было на нуле.
// Возвращает количество удалённых событий.
func (m *Macro) DeleteEvents(indexes ...int) int {
	if len(indexes) == 0 || len(m.Events) == 0 {
		return 0
	}
	drop := make(map[int]struct{}, len(indexes))
	for _, idx := range indexes {
		if idx >= 0 && idx < len(m.Events) {
			drop[idx] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	kept := make([]InputEvent, 0, len(m.Events)-len(drop))
	for i, ev := range m.Events {
		if _, ok := drop[i]; !ok {
			kept = append(kept, ev)
		}
	}
	m.Events = Rebase(kept)
	return len(drop)
}

// Rebase сдвигает смещения к нулю и выравнивает их в неубывающем порядке.
func Rebase(events []InputEvent) []InputEvent {
	if len(events) == 0 {
		return events
	}
	base := events[0].OffsetMS
	var prev int64
	for i := range events {
		off := events[i].OffsetMS - base
		if off < prev {
			off = prev
		}
		events[i].OffsetMS = off
		prev = off
	}
	return events
}
