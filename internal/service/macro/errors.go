package macro

import (
	"errors"
	"fmt"
)

// ErrMalformedEvent: событие с некорректной полезной нагрузкой.
var ErrMalformedEvent = errors.New("malformed event")

// MalformedEventError описывает конкретное некорректное событие.
// Index = -1, если позиция в макросе неизвестна.
type MalformedEventError struct {
	Index  int
	Kind   Kind
	Reason string
}

func (e *MalformedEventError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("malformed event #%d (%s): %s", e.Index, e.Kind, e.Reason)
	}
	return fmt.Sprintf("malformed event (%s): %s", e.Kind, e.Reason)
}

func (e *MalformedEventError) Is(target error) bool { return target == ErrMalformedEvent }

func malformed(kind Kind, reason string) error {
	return &MalformedEventError{Index: -1, Kind: kind, Reason: reason}
}
