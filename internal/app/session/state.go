package session

import (
	"errors"
	"fmt"
)

// State: режим сессии. Запись и воспроизведение взаимоисключающие.
type State int

const (
	Idle State = iota
	Recording
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrIllegalState: команда недопустима в текущем режиме.
var ErrIllegalState = errors.New("illegal state")

// StateError уточняет, какая команда и в каком режиме была отклонена.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed while %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrIllegalState }
