package session

import (
	"MacroRecorder/internal/adapter/storage"
	"MacroRecorder/internal/service/capture"
	"MacroRecorder/internal/service/events"
	"MacroRecorder/internal/service/hotkey"
	"MacroRecorder/internal/service/input"
	"MacroRecorder/internal/service/macro"
	"MacroRecorder/internal/service/playback"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeListener struct {
	err error
}

func (l *fakeListener) Run(ctx context.Context, out chan<- macro.RawEvent) error {
	if l.err != nil {
		return l.err
	}
	<-ctx.Done()
	return nil
}

type fakeInjector struct {
	mu     sync.Mutex
	events []macro.InputEvent
}

func (f *fakeInjector) Inject(ctx context.Context, ev macro.InputEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeInjector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type memStore struct {
	mu     sync.Mutex
	macros map[string]macro.Macro
}

func newMemStore() *memStore { return &memStore{macros: map[string]macro.Macro{}} }

func (s *memStore) Save(ctx context.Context, m macro.Macro) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macros[m.Name] = m.Clone()
	return nil
}

func (s *memStore) Load(ctx context.Context, name string) (macro.Macro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.macros[name]
	if !ok {
		return macro.Macro{}, storage.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *memStore) List(ctx context.Context) ([]storage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Entry, 0, len(s.macros))
	for name, m := range s.macros {
		out = append(out, storage.Entry{Name: name, Events: m.Len()})
	}
	return out, nil
}

func (s *memStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.macros, name)
	return nil
}

type memBindings struct {
	saved chan hotkey.Bindings
}

func (m *memBindings) LoadBindings() (hotkey.Bindings, error) { return hotkey.DefaultBindings(), nil }

func (m *memBindings) SaveBindings(b hotkey.Bindings) error {
	m.saved <- b
	return nil
}

type collector struct {
	mu    sync.Mutex
	notes []events.Notification
}

func (c *collector) Notify(n events.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
}

func (c *collector) find(typ events.Type) (events.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.notes {
		if n.Type == typ {
			return n, true
		}
	}
	return events.Notification{}, false
}

type fixture struct {
	c        *Controller
	inj      *fakeInjector
	store    *memStore
	bindings *memBindings
	notes    *collector
	now      time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		inj:      &fakeInjector{},
		store:    newMemStore(),
		bindings: &memBindings{saved: make(chan hotkey.Bindings, 4)},
		notes:    &collector{},
		now:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.c = New(&fakeListener{}, f.inj, f.store, f.bindings, f.notes, zap.NewNop().Sugar(), opts)
	t.Cleanup(func() {
		f.c.StopPlayback()
		f.c.WaitPlayback()
	})
	return f
}

func (f *fixture) key(typ macro.RawType, sym string, afterMS int) {
	f.c.handle(macro.RawEvent{Type: typ, Symbol: sym, When: f.now.Add(time.Duration(afterMS) * time.Millisecond)})
}

func (f *fixture) tap(afterMS int, syms ...string) {
	for _, s := range syms {
		f.key(macro.RawKeyPress, s, afterMS)
	}
	for i := len(syms) - 1; i >= 0; i-- {
		f.key(macro.RawKeyRelease, syms[i], afterMS)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRecordWithHotkeys(t *testing.T) {
	f := newFixture(t, Options{})

	f.tap(0, "ctrl", "alt", "r")
	if s := f.c.State(); s != Recording {
		t.Fatalf("state = %s, want recording", s)
	}

	f.key(macro.RawKeyPress, "a", 100)
	f.key(macro.RawKeyRelease, "a", 150)

	f.key(macro.RawKeyPress, "ctrl", 300)
	f.key(macro.RawKeyPress, "alt", 310)
	f.key(macro.RawKeyPress, "s", 320)
	if s := f.c.State(); s != Idle {
		t.Fatalf("state = %s, want idle", s)
	}
	f.key(macro.RawKeyRelease, "s", 330)
	f.key(macro.RawKeyRelease, "alt", 340)
	f.key(macro.RawKeyRelease, "ctrl", 350)

	m := f.c.CurrentMacro()
	want := []macro.InputEvent{macro.NewKeyDown("a", 0), macro.NewKeyUp("a", 50)}
	if len(m.Events) != len(want) {
		t.Fatalf("events = %v", m.Events)
	}
	for i := range want {
		if m.Events[i].Kind != want[i].Kind || m.Events[i].OffsetMS != want[i].OffsetMS {
			t.Fatalf("event %d = %s @%d", i, m.Events[i].Describe(), m.Events[i].OffsetMS)
		}
	}
	if _, ok := f.notes.find(events.EventRecorded); !ok {
		t.Fatal("no event_recorded notification")
	}
}

func TestPlayWhileRecordingRejected(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.c.StartRecording(); err != nil {
		t.Fatal(err)
	}
	err := f.c.Play(1)
	var se *StateError
	if !errors.As(err, &se) || !errors.Is(err, ErrIllegalState) {
		t.Fatalf("Play = %v, want StateError", err)
	}
	if se.State != Recording {
		t.Fatalf("StateError.State = %s", se.State)
	}
	if s := f.c.State(); s != Recording {
		t.Fatalf("state changed to %s", s)
	}
	if err := f.c.StartRecording(); !errors.Is(err, capture.ErrAlreadyRecording) {
		t.Fatalf("second StartRecording = %v", err)
	}
	if _, err := f.c.StopRecording(); err != nil {
		t.Fatal(err)
	}
}

func TestStopRecordingWhileIdleIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.c.SetMacro(macro.Macro{Name: "keep", Events: []macro.InputEvent{macro.NewKeyDown("k", 0)}}); err != nil {
		t.Fatal(err)
	}
	m, err := f.c.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording while idle = %v", err)
	}
	if m.Name != "keep" || m.Len() != 1 || f.c.State() != Idle {
		t.Fatalf("macro = %+v, state = %s", m, f.c.State())
	}

	// хоткей остановки записи в Idle не даёт предупреждения
	f.tap(0, "ctrl", "alt", "s")
	if n, ok := f.notes.find(events.Warning); ok {
		t.Fatalf("unexpected warning %+v", n)
	}
}

func TestPlayInjectsAndReturnsToIdle(t *testing.T) {
	f := newFixture(t, Options{})
	m := macro.Macro{Name: "demo", Events: []macro.InputEvent{
		macro.NewKeyDown("a", 0),
		macro.NewKeyUp("a", 5),
		macro.NewMouseMove(10, 10, 10),
	}}
	if err := f.c.SetMacro(m); err != nil {
		t.Fatal(err)
	}
	if err := f.c.Play(2); err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitFor(t, "idle", func() bool { return f.c.State() == Idle })
	if n := f.inj.count(); n != 6 {
		t.Fatalf("injected = %d, want 6", n)
	}
	if _, ok := f.notes.find(events.StateChanged); !ok {
		t.Fatal("no state notifications")
	}
}

func TestStopPlayback(t *testing.T) {
	f := newFixture(t, Options{})
	m := macro.Macro{Name: "loop", Events: []macro.InputEvent{
		macro.NewMouseMove(1, 1, 0),
		macro.NewMouseMove(2, 2, 20),
	}}
	if err := f.c.SetMacro(m); err != nil {
		t.Fatal(err)
	}
	if err := f.c.Play(0); err != nil {
		t.Fatal(err)
	}
	if err := f.c.SetMacro(m); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("SetMacro while playing = %v", err)
	}
	waitFor(t, "first event", func() bool { return f.inj.count() > 0 })
	if err := f.c.Play(1); !errors.Is(err, playback.ErrAlreadyPlaying) {
		t.Fatalf("Play while playing = %v", err)
	}
	if !f.c.StopPlayback() {
		t.Fatal("StopPlayback returned false")
	}
	waitFor(t, "idle", func() bool { return f.c.State() == Idle })
	if f.c.StopPlayback() {
		t.Fatal("StopPlayback while idle must be a no-op")
	}
}

func TestSaveAndLoad(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := macro.Macro{Name: "draft", Events: []macro.InputEvent{macro.NewKeyDown("b", 0), macro.NewKeyUp("b", 30)}}
	if err := f.c.SetMacro(m); err != nil {
		t.Fatal(err)
	}
	if err := f.c.SaveMacro(ctx, "farm"); err != nil {
		t.Fatalf("SaveMacro: %v", err)
	}
	if got := f.c.CurrentMacro().Name; got != "farm" {
		t.Fatalf("name after save = %q", got)
	}
	if err := f.c.SetMacro(macro.New("")); err != nil {
		t.Fatal(err)
	}
	if err := f.c.LoadMacro(ctx, "farm"); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	if got := f.c.CurrentMacro(); got.Name != "farm" || got.Len() != 2 {
		t.Fatalf("loaded %+v", got)
	}
	if err := f.c.LoadMacro(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("LoadMacro(missing) = %v", err)
	}
	list, err := f.c.Macros(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("Macros = %v, %v", list, err)
	}
}

type gatedStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Save(ctx context.Context, m macro.Macro) error {
	s.entered <- struct{}{}
	<-s.release
	return s.memStore.Save(ctx, m)
}

func TestSaveDoesNotRenameNewRecording(t *testing.T) {
	store := &gatedStore{memStore: newMemStore(), entered: make(chan struct{}), release: make(chan struct{})}
	c := New(&fakeListener{}, &fakeInjector{}, store, nil, &collector{}, zap.NewNop().Sugar(), Options{})
	old := macro.Macro{Name: "old", Events: []macro.InputEvent{macro.NewKeyDown("a", 0), macro.NewKeyUp("a", 30)}}
	if err := c.SetMacro(old); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.SaveMacro(context.Background(), "") }()
	<-store.entered

	if err := c.StartRecording(); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c.handle(macro.RawEvent{Type: macro.RawKeyPress, Symbol: "x", When: now})
	c.handle(macro.RawEvent{Type: macro.RawKeyRelease, Symbol: "x", When: now.Add(20 * time.Millisecond)})
	if _, err := c.StopRecording(); err != nil {
		t.Fatal(err)
	}

	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("SaveMacro: %v", err)
	}

	cur := c.CurrentMacro()
	if cur.Name == "old" || cur.Len() != 2 || cur.Events[0].Describe() != macro.NewKeyDown("x", 0).Describe() {
		t.Fatalf("current macro = %q %v", cur.Name, cur.Events)
	}
	saved, err := store.Load(context.Background(), "old")
	if err != nil || saved.Events[0].Describe() != old.Events[0].Describe() {
		t.Fatalf("stored old = %+v, %v", saved, err)
	}
}

func TestHotkeysIgnoredWhilePlaying(t *testing.T) {
	f := newFixture(t, Options{})
	m := macro.Macro{Name: "loop", Events: []macro.InputEvent{
		macro.NewMouseMove(1, 1, 0),
		macro.NewMouseMove(2, 2, 20),
	}}
	if err := f.c.SetMacro(m); err != nil {
		t.Fatal(err)
	}
	if err := f.c.Play(0); err != nil {
		t.Fatal(err)
	}

	// сохранение и запись из воспроизводимого ввода не запускаются
	f.tap(0, "ctrl", "alt", "e")
	f.tap(10, "ctrl", "alt", "r")
	f.c.tasks.Wait()
	if s := f.c.State(); s != Playing {
		t.Fatalf("state = %s, want playing", s)
	}
	if list, _ := f.store.List(context.Background()); len(list) != 0 {
		t.Fatalf("saved during playback: %v", list)
	}
	if n, ok := f.notes.find(events.Warning); ok {
		t.Fatalf("unexpected warning %+v", n)
	}

	f.tap(20, "ctrl", "alt", "o")
	waitFor(t, "idle", func() bool { return f.c.State() == Idle })
}

func TestSaveHotkeyRunsInBackground(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.c.SetMacro(macro.Macro{Name: "quick", Events: []macro.InputEvent{macro.NewKeyDown("q", 0)}}); err != nil {
		t.Fatal(err)
	}
	f.tap(0, "ctrl", "alt", "e")
	waitFor(t, "saved macro", func() bool {
		_, err := f.store.Load(context.Background(), "quick")
		return err == nil
	})
	f.c.tasks.Wait()
}

func TestDeleteEvents(t *testing.T) {
	f := newFixture(t, Options{})
	m := macro.Macro{Name: "m", Events: []macro.InputEvent{
		macro.NewKeyDown("a", 0),
		macro.NewKeyUp("a", 40),
		macro.NewKeyDown("b", 100),
	}}
	if err := f.c.SetMacro(m); err != nil {
		t.Fatal(err)
	}
	n, err := f.c.DeleteEvents(0, 1)
	if err != nil || n != 2 {
		t.Fatalf("DeleteEvents = %d, %v", n, err)
	}
	got := f.c.CurrentMacro()
	if got.Len() != 1 || got.Events[0].OffsetMS != 0 {
		t.Fatalf("macro after delete: %+v", got.Events)
	}
}

func TestRebind(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.c.RequestRebind(hotkey.StartMacro); err != nil {
		t.Fatal(err)
	}
	if err := f.c.RequestRebind(hotkey.StopMacro); !errors.Is(err, hotkey.ErrRebindActive) {
		t.Fatalf("second RequestRebind = %v", err)
	}
	if err := f.c.StartRecording(); !errors.Is(err, hotkey.ErrRebindActive) {
		t.Fatalf("StartRecording during rebind = %v", err)
	}

	f.key(macro.RawKeyPress, "shift", 0)
	f.key(macro.RawKeyPress, "f9", 10)
	f.key(macro.RawKeyRelease, "f9", 20)
	f.key(macro.RawKeyRelease, "shift", 30)

	want := hotkey.MustParseCombo("shift+f9")
	if got := f.c.Bindings()[hotkey.StartMacro]; !got.Equal(want) {
		t.Fatalf("start_macro = %v, want %v", got, want)
	}
	select {
	case b := <-f.bindings.saved:
		if !b[hotkey.StartMacro].Equal(want) {
			t.Fatalf("saved %v", b[hotkey.StartMacro])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bindings were not saved")
	}
	n, ok := f.notes.find(events.RebindFinished)
	if !ok || n.Message != "" || strings.Join(n.Combo, "+") != "<shift>+<f9>" {
		t.Fatalf("rebind notification = %+v", n)
	}
}

func TestRebindDuplicateKeepsBinding(t *testing.T) {
	f := newFixture(t, Options{})
	before := f.c.Bindings()[hotkey.StopMacro]
	if err := f.c.RequestRebind(hotkey.StopMacro); err != nil {
		t.Fatal(err)
	}
	f.tap(0, "ctrl", "alt", "r")
	if got := f.c.Bindings()[hotkey.StopMacro]; !got.Equal(before) {
		t.Fatalf("stop_macro changed to %v", got)
	}
	n, ok := f.notes.find(events.RebindFinished)
	if !ok || n.Message == "" {
		t.Fatalf("rebind notification = %+v", n)
	}
	// захват комбинации не должен запускать запись
	if s := f.c.State(); s != Idle {
		t.Fatalf("state = %s", s)
	}
}

func TestRebindTimeout(t *testing.T) {
	f := newFixture(t, Options{RebindTimeout: 20 * time.Millisecond})
	if err := f.c.RequestRebind(hotkey.SaveMacro); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "rebind timeout", func() bool {
		_, ok := f.notes.find(events.RebindFinished)
		return ok
	})
	n, _ := f.notes.find(events.RebindFinished)
	if !strings.Contains(n.Message, hotkey.ErrInsufficientKeys.Error()) {
		t.Fatalf("message = %q", n.Message)
	}
	if err := f.c.RequestRebind(hotkey.SaveMacro); err != nil {
		t.Fatalf("rebind after timeout: %v", err)
	}
	if !f.c.CancelRebind() {
		t.Fatal("CancelRebind returned false")
	}
	if f.c.CancelRebind() {
		t.Fatal("second CancelRebind must return false")
	}
}

func TestBackendUnavailable(t *testing.T) {
	notes := &collector{}
	listener := &fakeListener{err: fmt.Errorf("hook: %w", input.ErrBackendUnavailable)}
	c := New(listener, &fakeInjector{}, newMemStore(), nil, notes, zap.NewNop().Sugar(), Options{})

	err := c.Run(context.Background())
	if !errors.Is(err, input.ErrBackendUnavailable) {
		t.Fatalf("Run = %v", err)
	}
	if s := c.State(); s != Idle {
		t.Fatalf("state = %s", s)
	}
	if err := c.StartRecording(); !errors.Is(err, input.ErrBackendUnavailable) {
		t.Fatalf("StartRecording = %v", err)
	}
	if _, ok := notes.find(events.Error); !ok {
		t.Fatal("no error notification")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.c.Run(ctx) }()
	if err := f.c.StartRecording(); err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if s := f.c.State(); s != Idle {
		t.Fatalf("state = %s", s)
	}
}
