package hotkey

import (
	"fmt"
	"strings"
)

// Action: команда приложения, привязываемая к комбинации клавиш.
type Action int

const (
	ActionUnknown Action = iota
	StartRecord
	StopRecord
	StartMacro
	StopMacro
	SaveMacro
	LoadMacro
)

// Actions: все привязываемые действия в порядке проверки.
var Actions = []Action{StartRecord, StopRecord, StartMacro, StopMacro, SaveMacro, LoadMacro}

var actionNames = map[Action]string{
	StartRecord: "start_record",
	StopRecord:  "stop_record",
	StartMacro:  "start_macro",
	StopMacro:   "stop_macro",
	SaveMacro:   "save_macro",
	LoadMacro:   "load_macro",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// Valid сообщает, что действие входит в Actions.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction принимает "start_record", "start-record" и "StartRecord".
func ParseAction(s string) (Action, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	for a, name := range actionNames {
		if norm == name || norm == strings.ReplaceAll(name, "_", "") {
			return a, nil
		}
	}
	return ActionUnknown, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// MarshalText позволяет использовать Action как ключ JSON-объекта.
func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAction, int(a))
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
