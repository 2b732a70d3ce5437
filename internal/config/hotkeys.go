package config

import (
	"MacroRecorder/internal/adapter/storage"
	"MacroRecorder/internal/service/hotkey"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"
)

// BindingStore хранит привязки хоткеев между запусками.
type BindingStore interface {
	LoadBindings() (hotkey.Bindings, error)
	SaveBindings(b hotkey.Bindings) error
}

// hotkeysDoc описывает формат файла: {"hotkeys":{"start_record":["<ctrl>","<alt>","r"]}}
type hotkeysDoc struct {
	Hotkeys map[string][]string `json:"hotkeys"`
}

// HotkeyFile: BindingStore поверх JSON-файла.
type HotkeyFile struct {
	path   string
	logger *zap.SugaredLogger
	mu     sync.Mutex
}

var _ BindingStore = (*HotkeyFile)(nil)

func NewHotkeyFile(path string, logger *zap.SugaredLogger) *HotkeyFile {
	return &HotkeyFile{path: path, logger: logger}
}

func (f *HotkeyFile) Path() string { return f.path }

// LoadBindings читает файл. Отсутствующий файл: набор по умолчанию без ошибки.
// Битые или конфликтующие записи заменяются значением по умолчанию для своего действия.
// Если файл не разбирается целиком, возвращаются значения по умолчанию и ошибка.
func (f *HotkeyFile) LoadBindings() (hotkey.Bindings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return hotkey.DefaultBindings(), nil
	}
	if err != nil {
		return hotkey.DefaultBindings(), fmt.Errorf("read hotkeys %s: %w", f.path, err)
	}
	var doc hotkeysDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return hotkey.DefaultBindings(), fmt.Errorf("parse hotkeys %s: %w", f.path, err)
	}

	stored := make(map[hotkey.Action][]string, len(doc.Hotkeys))
	for name, keys := range doc.Hotkeys {
		a, err := hotkey.ParseAction(name)
		if err != nil {
			f.logger.Warnw("Unknown hotkey action ignored", "action", name)
			continue
		}
		stored[a] = keys
	}

	out := hotkey.Bindings{}
	var fallback []hotkey.Action
	for _, a := range hotkey.Actions {
		keys, ok := stored[a]
		if !ok {
			fallback = append(fallback, a)
			continue
		}
		if err := out.Assign(a, hotkey.NewCombo(keys...)); err != nil {
			f.logger.Warnw("Bad hotkey entry, using default", "action", a.String(), "keys", keys, "error", err)
			fallback = append(fallback, a)
		}
	}
	defaults := hotkey.DefaultBindings()
	for _, a := range fallback {
		if err := out.Assign(a, defaults[a]); err != nil {
			// комбинацию по умолчанию уже занял пользователь
			f.logger.Warnw("Hotkey left unbound", "action", a.String(), "error", err)
		}
	}
	return out, nil
}

// SaveBindings атомарно перезаписывает файл.
func (f *HotkeyFile) SaveBindings(b hotkey.Bindings) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("save hotkeys: %w", err)
	}
	doc := hotkeysDoc{Hotkeys: make(map[string][]string, len(b))}
	for _, a := range hotkey.Actions {
		if c, ok := b[a]; ok {
			doc.Hotkeys[a.String()] = append([]string(nil), c...)
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hotkeys: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := storage.WriteFileAtomic(f.path, data, 0o644); err != nil {
		return fmt.Errorf("save hotkeys %s: %w", f.path, err)
	}
	f.logger.Infow("Hotkeys saved", "path", f.path, "count", len(doc.Hotkeys))
	return nil
}
