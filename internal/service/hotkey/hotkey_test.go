package hotkey

import (
	"MacroRecorder/internal/service/macro"
	"errors"
	"reflect"
	"testing"
)

func down(k string) macro.InputEvent { return macro.NewKeyDown(k, 0) }
func up(k string) macro.InputEvent   { return macro.NewKeyUp(k, 0) }

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ctrl+alt+r", "<ctrl>+<alt>+r", false},
		{"<alt>+<ctrl>+R", "<ctrl>+<alt>+r", false},
		{"shift + F5", "<shift>+<f5>", false},
		{"r+ctrl_l", "<ctrl>+r", false},
		{"a+b", "a+b", false},
		{"ctrl", "", true},
		{"ctrl+ctrl_r", "", true},
		{"ctrl++r", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		c, err := ParseCombo(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidCombo) {
				t.Errorf("ParseCombo(%q) err = %v, want ErrInvalidCombo", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCombo(%q): %v", tt.in, err)
			continue
		}
		if c.String() != tt.want {
			t.Errorf("ParseCombo(%q) = %s, want %s", tt.in, c, tt.want)
		}
	}
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{
		"start_record": StartRecord,
		"StopMacro":    StopMacro,
		"load-macro":   LoadMacro,
	} {
		got, err := ParseAction(in)
		if err != nil || got != want {
			t.Errorf("ParseAction(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseAction("explode"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}

func TestDefaultBindingsAreValid(t *testing.T) {
	b := DefaultBindings()
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(b) != len(Actions) {
		t.Fatalf("len = %d, want %d", len(b), len(Actions))
	}
	if got := b[SaveMacro].String(); got != "<ctrl>+<alt>+e" {
		t.Fatalf("save_macro = %s", got)
	}
}

func TestAssignRejectsDuplicateAndKeepsPrevious(t *testing.T) {
	b := DefaultBindings()
	prev := b[StartMacro]

	err := b.Assign(StartMacro, MustParseCombo("alt+ctrl+r"))
	var dup *DuplicateComboError
	if !errors.As(err, &dup) || !errors.Is(err, ErrDuplicateCombo) {
		t.Fatalf("err = %v, want *DuplicateComboError", err)
	}
	if dup.Owner != StartRecord {
		t.Fatalf("owner = %v", dup.Owner)
	}
	if !b[StartMacro].Equal(prev) {
		t.Fatalf("binding changed to %s", b[StartMacro])
	}

	if err := b.Assign(StartMacro, Combo{"x"}); !errors.Is(err, ErrInvalidCombo) {
		t.Fatalf("err = %v, want ErrInvalidCombo", err)
	}
	if !b[StartMacro].Equal(prev) {
		t.Fatalf("binding changed to %s", b[StartMacro])
	}

	// повторная привязка той же комбинации к тому же действию допустима
	if err := b.Assign(StartMacro, prev); err != nil {
		t.Fatalf("reassign same: %v", err)
	}
	if err := b.Assign(StartMacro, Combo{"<shift>", "p"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got := b[StartMacro].String(); got != "<shift>+p" {
		t.Fatalf("start_macro = %s", got)
	}
}

func TestMatcherLatch(t *testing.T) {
	m := NewMatcher(Bindings{StartMacro: Combo{"a", "b"}})

	steps := []struct {
		ev   macro.InputEvent
		fire bool
	}{
		{down("a"), false},
		{down("b"), true},
		{down("b"), false}, // автоповтор
		{down("a"), false},
		{up("a"), false},
		{down("a"), true},
		{up("b"), false},
		{down("b"), true},
		{down("c"), false},
		{up("c"), false},
		{up("a"), false},
		{up("b"), false},
		{down("b"), false},
		{down("a"), true},
	}
	for i, s := range steps {
		out := m.Handle(s.ev)
		fired := len(out.Fired) == 1 && out.Fired[0] == StartMacro
		if fired != s.fire || (!s.fire && len(out.Fired) != 0) {
			t.Fatalf("step %d (%s): fired = %v, want %v", i, s.ev.Describe(), out.Fired, s.fire)
		}
	}
}

func TestMatcherSupersetFires(t *testing.T) {
	m := NewMatcher(DefaultBindings())
	m.Handle(down("<shift>"))
	m.Handle(down("<ctrl>"))
	m.Handle(down("<alt>"))
	out := m.Handle(down("r"))
	if !reflect.DeepEqual(out.Fired, []Action{StartRecord}) {
		t.Fatalf("fired = %v", out.Fired)
	}
	// нажатие клавиши вне комбинации не срабатывает даже при выполненном наборе
	m.Handle(up("r"))
	m.Reset()
	m.Handle(down("<ctrl>"))
	m.Handle(down("<alt>"))
	m.Handle(down("r"))
	if out := m.Handle(down("z")); len(out.Fired) != 0 {
		t.Fatalf("fired on non-member key: %v", out.Fired)
	}
}

func TestMatcherResetClearsHeld(t *testing.T) {
	m := NewMatcher(DefaultBindings())
	m.Handle(down("<ctrl>"))
	m.Handle(down("<alt>"))
	if out := m.Handle(down("s")); len(out.Fired) != 1 || out.Fired[0] != StopRecord {
		t.Fatalf("fired = %v", out.Fired)
	}
	m.Reset()
	if len(m.Held()) != 0 {
		t.Fatalf("held = %v", m.Held())
	}
	// ctrl и alt физически ещё зажаты, но матчер о них не знает
	if out := m.Handle(down("p")); len(out.Fired) != 0 {
		t.Fatalf("fired = %v", out.Fired)
	}
}

func TestRebindInsufficientKeys(t *testing.T) {
	m := NewMatcher(DefaultBindings())
	if err := m.BeginRebind(StartMacro); err != nil {
		t.Fatal(err)
	}
	if out := m.Handle(down("a")); out.Rebind != nil || len(out.Fired) != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	out := m.Handle(up("a"))
	if out.Rebind == nil || !errors.Is(out.Rebind.Err, ErrInsufficientKeys) {
		t.Fatalf("outcome = %+v, want ErrInsufficientKeys", out.Rebind)
	}
	if _, ok := m.Rebinding(); ok {
		t.Fatal("rebind mode must end")
	}
}

func TestRebindCapturesCombo(t *testing.T) {
	m := NewMatcher(DefaultBindings())
	if err := m.BeginRebind(StopMacro); err != nil {
		t.Fatal(err)
	}
	if err := m.BeginRebind(StopMacro); !errors.Is(err, ErrRebindActive) {
		t.Fatalf("err = %v", err)
	}
	m.Handle(down("b"))
	m.Handle(down("a"))
	out := m.Handle(up("b"))
	if out.Rebind == nil || out.Rebind.Err != nil {
		t.Fatalf("outcome = %+v", out.Rebind)
	}
	if out.Rebind.Action != StopMacro || out.Rebind.Combo.String() != "a+b" {
		t.Fatalf("result = %s %s", out.Rebind.Action, out.Rebind.Combo)
	}
	// дальнейшие отпускания к перепривязке не относятся
	if out := m.Handle(up("a")); out.Rebind != nil {
		t.Fatalf("unexpected second result %+v", out.Rebind)
	}
}

func TestRebindSuspendsFiring(t *testing.T) {
	m := NewMatcher(DefaultBindings())
	m.Handle(down("<ctrl>"))
	if err := m.BeginRebind(LoadMacro); err != nil {
		t.Fatal(err)
	}
	// ctrl был зажат до перепривязки: его отпускание игнорируется
	if out := m.Handle(up("<ctrl>")); out.Rebind != nil {
		t.Fatalf("unexpected result %+v", out.Rebind)
	}
	m.Handle(down("<ctrl>"))
	m.Handle(down("<alt>"))
	if out := m.Handle(down("r")); len(out.Fired) != 0 {
		t.Fatalf("fired during rebind: %v", out.Fired)
	}
	out := m.Handle(up("r"))
	if out.Rebind == nil || out.Rebind.Combo.String() != "<ctrl>+<alt>+r" {
		t.Fatalf("result = %+v", out.Rebind)
	}
	// ctrl и alt остаются зажатыми, повторное r срабатывает как обычно
	if out := m.Handle(down("r")); len(out.Fired) != 1 {
		t.Fatalf("fired = %v, want re-press to fire", out.Fired)
	}
}

func TestCancelRebind(t *testing.T) {
	m := NewMatcher(nil)
	if _, ok := m.CancelRebind(); ok {
		t.Fatal("cancel without rebind must report false")
	}
	_ = m.BeginRebind(SaveMacro)
	m.Handle(down("q"))
	if a, ok := m.CancelRebind(); !ok || a != SaveMacro {
		t.Fatalf("CancelRebind = %v, %v", a, ok)
	}
	if out := m.Handle(up("q")); out.Rebind != nil {
		t.Fatalf("unexpected result %+v", out.Rebind)
	}
}
