package storage

import (
	"MacroRecorder/internal/service/macro"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newStore(t *testing.T) *CSVStore {
	t.Helper()
	s := NewCSVStore(filepath.Join(t.TempDir(), "data", "macros.csv"), zap.NewNop().Sugar())
	s.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	return s
}

func demoMacro(name string) macro.Macro {
	return macro.Macro{Name: name, Events: []macro.InputEvent{
		macro.NewKeyDown("<shift>", 0),
		macro.NewKeyDown("a", 12),
		macro.NewKeyUp("a", 60),
		macro.NewKeyUp("<shift>", 75),
		macro.NewMouseDown(macro.ButtonRight, -20, 300, 400),
		macro.NewMouseUp(macro.ButtonRight, -20, 300, 450),
		macro.NewMouseScroll(5, 5, 0, -2, 900),
	}}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	want := demoMacro("greeting, \"quoted\"")
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, want.Name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("loaded %#v\nwant %#v", got, want)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "name,events,saved_at\n") {
		t.Fatalf("unexpected header in %q", data)
	}
}

func TestSaveUpsertsByName(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Save(ctx, demoMacro("one")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, demoMacro("two")); err != nil {
		t.Fatal(err)
	}
	short := macro.Macro{Name: "one", Events: []macro.InputEvent{macro.NewKeyDown("z", 0)}}
	if err := s.Save(ctx, short); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "one" || list[0].Events != 1 || list[1].Events != 7 {
		t.Fatalf("list = %+v", list)
	}
	if !list[0].SavedAt.Equal(s.now()) {
		t.Fatalf("saved_at = %v", list[0].SavedAt)
	}
}

func TestEmptyMacroRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Save(ctx, macro.New("empty")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, "empty")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsEmpty() || got.Events == nil {
		t.Fatalf("got %#v", got)
	}
}

func TestLoadMissing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if _, err := s.Load(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("list = %v, err = %v", list, err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_ = s.Save(ctx, demoMacro("a"))
	_ = s.Save(ctx, demoMacro("b"))
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if _, err := s.Load(ctx, "b"); err != nil {
		t.Fatalf("Load b: %v", err)
	}
}

func TestSaveRejectsEmptyName(t *testing.T) {
	s := newStore(t)
	if err := s.Save(context.Background(), macro.Macro{Name: "  "}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCancelledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, demoMacro("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestUnexpectedHeader(t *testing.T) {
	s := newStore(t)
	if err := WriteFileAtomic(s.Path(), []byte("id,event_type,payload,delay_ms\n1,key_down,{},0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.List(context.Background()); err == nil {
		t.Fatal("expected header error")
	}
}
