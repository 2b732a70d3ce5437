package macro

import (
	"encoding/json"
	"fmt"
	"strings"
)

// wireEvent это JSON-представление события. Координаты хранятся указателями, чтобы ноль
// отличался от отсутствующего поля.
type wireEvent struct {
	Kind     string `json:"kind"`
	OffsetMS int64  `json:"offset_ms"`
	Key      string `json:"key,omitempty"`
	Button   string `json:"button,omitempty"`
	X        *int   `json:"x,omitempty"`
	Y        *int   `json:"y,omitempty"`
	DX       *int   `json:"dx,omitempty"`
	DY       *int   `json:"dy,omitempty"`
}

func intp(v int) *int { return &v }

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// MarshalJSON реализует json.Marshaler.
func (e InputEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{Kind: e.Kind.String(), OffsetMS: e.OffsetMS}
	switch t := e.Target.(type) {
	case KeyTarget:
		w.Key = t.Key
	case ButtonTarget:
		w.Button = string(t.Button)
		w.X, w.Y = intp(t.X), intp(t.Y)
	case PointTarget:
		w.X, w.Y = intp(t.X), intp(t.Y)
	case ScrollTarget:
		w.X, w.Y = intp(t.X), intp(t.Y)
		w.DX, w.DY = intp(t.DX), intp(t.DY)
	}
	return json.Marshal(w)
}

// UnmarshalJSON реализует json.Unmarshaler. Неизвестный вид не считается ошибкой
// декодирования: событие остаётся с KindUnknown и отбрасывается при воспроизведении.
func (e *InputEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := ParseKind(w.Kind)
	if err != nil {
		*e = InputEvent{Kind: KindUnknown, OffsetMS: w.OffsetMS}
		return nil
	}
	ev := InputEvent{Kind: kind, OffsetMS: w.OffsetMS}
	switch kind {
	case KeyDown, KeyUp:
		ev.Target = KeyTarget{Key: w.Key}
	case MouseMove:
		ev.Target = PointTarget{X: deref(w.X), Y: deref(w.Y)}
	case MouseDown, MouseUp:
		ev.Target = ButtonTarget{Button: Button(w.Button), X: deref(w.X), Y: deref(w.Y)}
	case MouseScroll:
		ev.Target = ScrollTarget{X: deref(w.X), Y: deref(w.Y), DX: deref(w.DX), DY: deref(w.DY)}
	}
	*e = ev
	return nil
}

// MarshalEvents сериализует последовательность в текстовый JSON-блок с сохранением порядка.
func MarshalEvents(events []InputEvent) (string, error) {
	if events == nil {
		events = []InputEvent{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	return string(b), nil
}

// UnmarshalEvents восстанавливает последовательность из блока MarshalEvents.
// Пустая строка: пустой макрос.
func UnmarshalEvents(blob string) ([]InputEvent, error) {
	if strings.TrimSpace(blob) == "" {
		return []InputEvent{}, nil
	}
	var events []InputEvent
	if err := json.Unmarshal([]byte(blob), &events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	if events == nil {
		events = []InputEvent{}
	}
	return events, nil
}
