package hotkey

import "MacroRecorder/internal/service/macro"

// RebindResult: итог режима перепривязки. Err != nil, если комбинация не получена.
type RebindResult struct {
	Action Action
	Combo  Combo
	Err    error
}

// Outcome: реакция матчера на одно событие.
type Outcome struct {
	Fired  []Action
	Rebind *RebindResult
}

type rebindState struct {
	action  Action
	pressed map[string]struct{}
	order   []string
}

// Matcher отслеживает зажатые клавиши и срабатывания комбинаций.
// Не потокобезопасен: вызывающая сторона сериализует доступ.
type Matcher struct {
	bindings Bindings
	held     map[string]struct{}
	latched  map[Action]bool
	rebind   *rebindState
}

func NewMatcher(b Bindings) *Matcher {
	if b == nil {
		b = DefaultBindings()
	}
	return &Matcher{
		bindings: b.Clone(),
		held:     map[string]struct{}{},
		latched:  map[Action]bool{},
	}
}

// Bindings возвращает копию текущих привязок.
func (m *Matcher) Bindings() Bindings { return m.bindings.Clone() }

// SetBindings заменяет привязки; защёлки сбрасываются.
func (m *Matcher) SetBindings(b Bindings) {
	m.bindings = b.Clone()
	m.latched = map[Action]bool{}
}

// Combos: комбинации для подавления при записи.
func (m *Matcher) Combos() []Combo { return m.bindings.Combos() }

// Held: зажатые клавиши в каноническом порядке.
func (m *Matcher) Held() Combo {
	keys := make([]string, 0, len(m.held))
	for k := range m.held {
		keys = append(keys, k)
	}
	return NewCombo(keys...)
}

// Rebinding сообщает, для какого действия идёт перепривязка.
func (m *Matcher) Rebinding() (Action, bool) {
	if m.rebind == nil {
		return ActionUnknown, false
	}
	return m.rebind.action, true
}

// Reset очищает зажатые клавиши и защёлки (выход из записи).
func (m *Matcher) Reset() {
	m.held = map[string]struct{}{}
	m.latched = map[Action]bool{}
}

// BeginRebind переводит матчер в режим захвата новой комбинации.
// Пока режим активен, действия не срабатывают.
func (m *Matcher) BeginRebind(a Action) error {
	if !a.Valid() {
		return ErrUnknownAction
	}
	if m.rebind != nil {
		return ErrRebindActive
	}
	m.rebind = &rebindState{action: a, pressed: map[string]struct{}{}}
	return nil
}

// CancelRebind прерывает перепривязку. ok=false, если режим не был активен.
func (m *Matcher) CancelRebind() (Action, bool) {
	if m.rebind == nil {
		return ActionUnknown, false
	}
	a := m.rebind.action
	m.rebind = nil
	m.latchSatisfied()
	return a, true
}

// Handle обрабатывает одно событие. Некнопочные события игнорируются.
func (m *Matcher) Handle(ev macro.InputEvent) Outcome {
	key, ok := ev.Key()
	if !ok || key == "" {
		return Outcome{}
	}
	switch ev.Kind {
	case macro.KeyDown:
		return m.press(key)
	case macro.KeyUp:
		return m.release(key)
	}
	return Outcome{}
}

func (m *Matcher) press(key string) Outcome {
	if _, held := m.held[key]; held {
		// автоповтор
		return Outcome{}
	}
	m.held[key] = struct{}{}

	if r := m.rebind; r != nil {
		if _, ok := r.pressed[key]; !ok {
			r.pressed[key] = struct{}{}
			r.order = append(r.order, key)
		}
		return Outcome{}
	}

	var out Outcome
	for _, a := range Actions {
		c := m.bindings[a]
		if m.latched[a] || !c.Contains(key) || !c.SubsetOf(m.held) {
			continue
		}
		m.latched[a] = true
		out.Fired = append(out.Fired, a)
	}
	return out
}

func (m *Matcher) release(key string) Outcome {
	delete(m.held, key)
	for a, c := range m.bindings {
		if c.Contains(key) {
			delete(m.latched, a)
		}
	}

	r := m.rebind
	if r == nil {
		return Outcome{}
	}
	if _, ok := r.pressed[key]; !ok {
		// клавиша была зажата до начала перепривязки
		return Outcome{}
	}
	m.rebind = nil
	res := &RebindResult{Action: r.action}
	if len(r.pressed) < MinComboKeys {
		res.Err = ErrInsufficientKeys
	} else {
		res.Combo = NewCombo(r.order...)
	}
	m.latchSatisfied()
	return Outcome{Rebind: res}
}

// latchSatisfied защёлкивает комбинации, уже зажатые в момент выхода
// из перепривязки, чтобы они не сработали на оставшихся клавишах.
func (m *Matcher) latchSatisfied() {
	for _, a := range Actions {
		if m.bindings[a].SubsetOf(m.held) {
			m.latched[a] = true
		}
	}
}
