package hotkey

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCombo     = errors.New("invalid combo")
	ErrDuplicateCombo   = errors.New("duplicate combo")
	ErrInsufficientKeys = errors.New("insufficient keys for combo")
	ErrUnknownAction    = errors.New("unknown action")
	ErrRebindActive     = errors.New("rebind already in progress")
	ErrRebindCancelled  = errors.New("rebind cancelled")
)

// DuplicateComboError: комбинация уже занята другим действием.
type DuplicateComboError struct {
	Action Action
	Owner  Action
	Combo  Combo
}

func (e *DuplicateComboError) Error() string {
	return fmt.Sprintf("combo %s for %s is already bound to %s", e.Combo, e.Action, e.Owner)
}

func (e *DuplicateComboError) Is(target error) bool { return target == ErrDuplicateCombo }
