package macro

import (
	"fmt"
	"strings"
)

// Kind: дискриминант записанного события.
type Kind int

const (
	KindUnknown Kind = iota
	KeyDown
	KeyUp
	MouseMove
	MouseDown
	MouseUp
	MouseScroll
)

var kindNames = map[Kind]string{
	KeyDown:     "key_down",
	KeyUp:       "key_up",
	MouseMove:   "mouse_move",
	MouseDown:   "mouse_down",
	MouseUp:     "mouse_up",
	MouseScroll: "mouse_scroll",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind разбирает строковое имя вида (key_down, mouse_move, ...).
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown event kind %q", s)
}

// IsKey сообщает, относится ли вид к клавиатуре.
func (k Kind) IsKey() bool { return k == KeyDown || k == KeyUp }

// Target: полезная нагрузка события, её тип зависит от Kind.
type Target interface {
	isTarget()
}

// KeyTarget: клавиша (KeyDown/KeyUp).
type KeyTarget struct {
	Key string
}

// ButtonTarget: кнопка мыши и позиция курсора в момент нажатия/отпускания.
type ButtonTarget struct {
	Button Button
	X, Y   int
}

// PointTarget: позиция курсора (MouseMove).
type PointTarget struct {
	X, Y int
}

// ScrollTarget описывает прокрутку колеса: позиция курсора и смещение.
// DY > 0: прокрутка вверх, DX > 0: вправо.
type ScrollTarget struct {
	X, Y   int
	DX, DY int
}

func (KeyTarget) isTarget()    {}
func (ButtonTarget) isTarget() {}
func (PointTarget) isTarget()  {}
func (ScrollTarget) isTarget() {}

// InputEvent: одно записанное действие пользователя.
type InputEvent struct {
	Kind     Kind
	Target   Target
	OffsetMS int64 // мс от первого события макроса
}

// NewKeyDown / NewKeyUp / ...: конструкторы с уже нормализованным payload.
func NewKeyDown(key string, offset int64) InputEvent {
	return InputEvent{Kind: KeyDown, Target: KeyTarget{Key: NormalizeKey(key)}, OffsetMS: offset}
}

func NewKeyUp(key string, offset int64) InputEvent {
	return InputEvent{Kind: KeyUp, Target: KeyTarget{Key: NormalizeKey(key)}, OffsetMS: offset}
}

func NewMouseMove(x, y int, offset int64) InputEvent {
	return InputEvent{Kind: MouseMove, Target: PointTarget{X: x, Y: y}, OffsetMS: offset}
}

func NewMouseDown(b Button, x, y int, offset int64) InputEvent {
	return InputEvent{Kind: MouseDown, Target: ButtonTarget{Button: b, X: x, Y: y}, OffsetMS: offset}
}

func NewMouseUp(b Button, x, y int, offset int64) InputEvent {
	return InputEvent{Kind: MouseUp, Target: ButtonTarget{Button: b, X: x, Y: y}, OffsetMS: offset}
}

func NewMouseScroll(x, y, dx, dy int, offset int64) InputEvent {
	return InputEvent{Kind: MouseScroll, Target: ScrollTarget{X: x, Y: y, DX: dx, DY: dy}, OffsetMS: offset}
}

// Key возвращает идентификатор клавиши для клавиатурных событий.
func (e InputEvent) Key() (string, bool) {
	if !e.Kind.IsKey() {
		return "", false
	}
	t, ok := e.Target.(KeyTarget)
	if !ok {
		return "", false
	}
	return t.Key, true
}

// Position возвращает координаты курсора, если событие их содержит.
func (e InputEvent) Position() (x, y int, ok bool) {
	switch t := e.Target.(type) {
	case PointTarget:
		return t.X, t.Y, true
	case ButtonTarget:
		return t.X, t.Y, true
	case ScrollTarget:
		return t.X, t.Y, true
	}
	return 0, 0, false
}

// WithOffset возвращает копию события с новым смещением.
func (e InputEvent) WithOffset(offset int64) InputEvent {
	e.OffsetMS = offset
	return e
}

// Validate проверяет согласованность Kind и Target. Ошибка: *MalformedEventError.
func (e InputEvent) Validate() error {
	if e.OffsetMS < 0 {
		return malformed(e.Kind, "negative offset")
	}
	switch e.Kind {
	case KeyDown, KeyUp:
		t, ok := e.Target.(KeyTarget)
		if !ok {
			return malformed(e.Kind, "key event without key target")
		}
		if !IsValidKey(t.Key) {
			return malformed(e.Kind, fmt.Sprintf("invalid key %q", t.Key))
		}
	case MouseMove:
		if _, ok := e.Target.(PointTarget); !ok {
			return malformed(e.Kind, "move event without point target")
		}
	case MouseDown, MouseUp:
		t, ok := e.Target.(ButtonTarget)
		if !ok {
			return malformed(e.Kind, "button event without button target")
		}
		if !t.Button.Valid() {
			return malformed(e.Kind, fmt.Sprintf("invalid button %q", t.Button))
		}
	case MouseScroll:
		t, ok := e.Target.(ScrollTarget)
		if !ok {
			return malformed(e.Kind, "scroll event without scroll target")
		}
		if t.DX == 0 && t.DY == 0 {
			return malformed(e.Kind, "zero scroll delta")
		}
	default:
		return malformed(e.Kind, "unknown kind")
	}
	return nil
}

// Describe: короткое описание для журнала событий UI.
func (e InputEvent) Describe() string {
	switch t := e.Target.(type) {
	case KeyTarget:
		return fmt.Sprintf("%s %s", e.Kind, t.Key)
	case ButtonTarget:
		return fmt.Sprintf("%s %s at %d,%d", e.Kind, t.Button, t.X, t.Y)
	case PointTarget:
		return fmt.Sprintf("%s %d,%d", e.Kind, t.X, t.Y)
	case ScrollTarget:
		return fmt.Sprintf("%s %d,%d by %d,%d", e.Kind, t.X, t.Y, t.DX, t.DY)
	}
	return e.Kind.String()
}
