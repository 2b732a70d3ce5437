package hotkey

import (
	"MacroRecorder/internal/service/macro"
	"fmt"
	"sort"
	"strings"
)

// MinComboKeys: минимальный размер комбинации.
const MinComboKeys = 2

// Combo: множество идентификаторов клавиш. Хранится в каноническом порядке:
// модификаторы впереди, остальные клавиши по алфавиту, без повторов.
type Combo []string

// NewCombo нормализует и упорядочивает ключи. Нераспознанные ключи
// сохраняются как есть, чтобы Validate мог их отвергнуть.
func NewCombo(keys ...string) Combo {
	seen := make(map[string]struct{}, len(keys))
	out := make(Combo, 0, len(keys))
	for _, k := range keys {
		if n := macro.NormalizeKey(k); n != "" {
			k = n
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i], out[j]) })
	return out
}

// ParseCombo разбирает "ctrl+alt+r" или "<ctrl>+<alt>+r".
func ParseCombo(s string) (Combo, error) {
	parts := strings.Split(s, "+")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		k := macro.NormalizeKey(p)
		if k == "" {
			return nil, fmt.Errorf("%w: bad key %q in %q", ErrInvalidCombo, p, s)
		}
		keys = append(keys, k)
	}
	c := NewCombo(keys...)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// MustParseCombo: для статических значений по умолчанию.
func MustParseCombo(s string) Combo {
	c, err := ParseCombo(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate проверяет размер и корректность ключей.
func (c Combo) Validate() error {
	if len(c) < MinComboKeys {
		return fmt.Errorf("%w: need at least %d keys, got %d", ErrInvalidCombo, MinComboKeys, len(c))
	}
	seen := make(map[string]struct{}, len(c))
	for _, k := range c {
		if !macro.IsValidKey(k) {
			return fmt.Errorf("%w: bad key %q", ErrInvalidCombo, k)
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: repeated key %q", ErrInvalidCombo, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Contains сообщает, входит ли клавиша в комбинацию.
func (c Combo) Contains(key string) bool {
	for _, k := range c {
		if k == key {
			return true
		}
	}
	return false
}

// SubsetOf: все клавиши комбинации есть в held.
func (c Combo) SubsetOf(held map[string]struct{}) bool {
	if len(c) == 0 {
		return false
	}
	for _, k := range c {
		if _, ok := held[k]; !ok {
			return false
		}
	}
	return true
}

// Equal сравнивает комбинации как множества.
func (c Combo) Equal(other Combo) bool {
	a, b := NewCombo(c...), NewCombo(other...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c Combo) String() string { return strings.Join(c, "+") }

func keyLess(a, b string) bool {
	ra, rb := modifierRank(a), modifierRank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

func modifierRank(k string) int {
	for i, m := range macro.Modifiers {
		if k == m {
			return i
		}
	}
	return len(macro.Modifiers)
}

// Bindings: отображение действие → комбинация.
type Bindings map[Action]Combo

// DefaultBindings возвращает встроенный набор ctrl+alt+{r,s,p,o,e,l}.
func DefaultBindings() Bindings {
	return Bindings{
		StartRecord: MustParseCombo("ctrl+alt+r"),
		StopRecord:  MustParseCombo("ctrl+alt+s"),
		StartMacro:  MustParseCombo("ctrl+alt+p"),
		StopMacro:   MustParseCombo("ctrl+alt+o"),
		SaveMacro:   MustParseCombo("ctrl+alt+e"),
		LoadMacro:   MustParseCombo("ctrl+alt+l"),
	}
}

// Clone возвращает независимую копию.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for a, c := range b {
		out[a] = append(Combo(nil), c...)
	}
	return out
}

// Owner ищет действие, за которым закреплена комбинация.
func (b Bindings) Owner(c Combo) (Action, bool) {
	for _, a := range Actions {
		if bound, ok := b[a]; ok && bound.Equal(c) {
			return a, true
		}
	}
	return ActionUnknown, false
}

// Assign закрепляет комбинацию за действием. При ошибке прежняя привязка не меняется.
func (b Bindings) Assign(a Action, c Combo) error {
	if !a.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownAction, int(a))
	}
	c = NewCombo(c...)
	if err := c.Validate(); err != nil {
		return err
	}
	if owner, ok := b.Owner(c); ok && owner != a {
		return &DuplicateComboError{Action: a, Owner: owner, Combo: c}
	}
	b[a] = c
	return nil
}

// Validate проверяет весь набор: размер комбинаций и уникальность.
func (b Bindings) Validate() error {
	check := Bindings{}
	for _, a := range Actions {
		c, ok := b[a]
		if !ok {
			continue
		}
		if err := check.Assign(a, c); err != nil {
			return fmt.Errorf("%s: %w", a, err)
		}
	}
	return nil
}

// Combos: все привязанные комбинации в порядке Actions.
func (b Bindings) Combos() []Combo {
	out := make([]Combo, 0, len(b))
	for _, a := range Actions {
		if c, ok := b[a]; ok && len(c) > 0 {
			out = append(out, c)
		}
	}
	return out
}
