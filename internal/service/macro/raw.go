package macro

import "time"

// RawType: тип сырого события от платформенного слушателя.
type RawType int

const (
	RawKeyPress RawType = iota + 1
	RawKeyRelease
	RawMouseMove
	RawMousePress
	RawMouseRelease
	RawMouseWheel
)

// RawEvent: событие в том виде, в каком его отдаёт платформенный бэкенд.
// Symbol: символическое имя клавиши (может быть пустым), Code: виртуальный код.
type RawEvent struct {
	Type   RawType
	Symbol string
	Code   int
	Button Button
	X, Y   int
	DX, DY int
	When   time.Time
}

// FromRaw детерминированно переводит сырое событие в InputEvent со смещением
// относительно t0. Отрицательные смещения обрезаются до нуля.
// ok=false: событие не может быть представлено (например, клавиша без имени и кода).
func FromRaw(raw RawEvent, t0 time.Time) (InputEvent, bool) {
	offset := raw.When.Sub(t0).Milliseconds()
	if offset < 0 || t0.IsZero() {
		offset = 0
	}
	switch raw.Type {
	case RawKeyPress, RawKeyRelease:
		key := rawKey(raw)
		if key == "" {
			return InputEvent{}, false
		}
		if raw.Type == RawKeyPress {
			return InputEvent{Kind: KeyDown, Target: KeyTarget{Key: key}, OffsetMS: offset}, true
		}
		return InputEvent{Kind: KeyUp, Target: KeyTarget{Key: key}, OffsetMS: offset}, true
	case RawMouseMove:
		return NewMouseMove(raw.X, raw.Y, offset), true
	case RawMousePress, RawMouseRelease:
		if !raw.Button.Valid() {
			return InputEvent{}, false
		}
		if raw.Type == RawMousePress {
			return NewMouseDown(raw.Button, raw.X, raw.Y, offset), true
		}
		return NewMouseUp(raw.Button, raw.X, raw.Y, offset), true
	case RawMouseWheel:
		if raw.DX == 0 && raw.DY == 0 {
			return InputEvent{}, false
		}
		return NewMouseScroll(raw.X, raw.Y, raw.DX, raw.DY, offset), true
	}
	return InputEvent{}, false
}

func rawKey(raw RawEvent) string {
	if key := NormalizeKey(raw.Symbol); key != "" {
		return key
	}
	if raw.Code > 0 {
		return KeyFromVK(raw.Code)
	}
	return ""
}
