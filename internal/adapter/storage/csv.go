package storage

import (
	"MacroRecorder/internal/service/macro"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("macro not found")

// Store: хранилище именованных макросов.
type Store interface {
	Save(ctx context.Context, m macro.Macro) error
	Load(ctx context.Context, name string) (macro.Macro, error)
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, name string) error
}

// Entry: краткие сведения о сохранённом макросе.
type Entry struct {
	Name    string    `json:"name"`
	Events  int       `json:"events"`
	SavedAt time.Time `json:"saved_at"`
}

var csvHeader = []string{"name", "events", "saved_at"}

type row struct {
	name    string
	blob    string
	savedAt time.Time
}

// CSVStore хранит макросы в одном CSV-файле: строка на макрос,
// события: JSON-блок из macro.MarshalEvents.
type CSVStore struct {
	path   string
	logger *zap.SugaredLogger
	mu     sync.Mutex
	now    func() time.Time
}

var _ Store = (*CSVStore)(nil)

func NewCSVStore(path string, logger *zap.SugaredLogger) *CSVStore {
	return &CSVStore{path: path, logger: logger, now: time.Now}
}

func (s *CSVStore) Path() string { return s.path }

// Save добавляет макрос или заменяет макрос с тем же именем.
func (s *CSVStore) Save(ctx context.Context, m macro.Macro) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return errors.New("macro name must not be empty")
	}
	blob, err := macro.MarshalEvents(m.Events)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.read()
	if err != nil {
		return err
	}
	r := row{name: name, blob: blob, savedAt: s.now().UTC()}
	replaced := false
	for i := range rows {
		if rows[i].name == name {
			rows[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, r)
	}
	if err := s.write(rows); err != nil {
		return err
	}
	s.logger.Infow("Macro saved", "name", name, "events", len(m.Events), "path", s.path, "replaced", replaced)
	return nil
}

// Load читает макрос по имени.
func (s *CSVStore) Load(ctx context.Context, name string) (macro.Macro, error) {
	if err := ctx.Err(); err != nil {
		return macro.Macro{}, err
	}
	name = strings.TrimSpace(name)
	s.mu.Lock()
	rows, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return macro.Macro{}, err
	}
	for _, r := range rows {
		if r.name != name {
			continue
		}
		events, err := macro.UnmarshalEvents(r.blob)
		if err != nil {
			return macro.Macro{}, fmt.Errorf("macro %q: %w", name, err)
		}
		return macro.Macro{Name: name, Events: events}, nil
	}
	return macro.Macro{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// List возвращает сохранённые макросы по имени.
func (s *CSVStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rows, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e := Entry{Name: r.name, SavedAt: r.savedAt}
		if events, err := macro.UnmarshalEvents(r.blob); err == nil {
			e.Events = len(events)
		} else {
			s.logger.Warnw("Stored macro is unreadable", "name", r.name, "error", err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete удаляет макрос по имени.
func (s *CSVStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.read()
	if err != nil {
		return err
	}
	kept := rows[:0]
	found := false
	for _, r := range rows {
		if r.name == name {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err := s.write(kept); err != nil {
		return err
	}
	s.logger.Infow("Macro deleted", "name", name)
	return nil
}

func (s *CSVStore) read() ([]row, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open macro file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read macro file header: %w", err)
	}
	idx := columnIndex(header)
	if idx["name"] < 0 || idx["events"] < 0 {
		return nil, fmt.Errorf("macro file %s: unexpected header %v", s.path, header)
	}

	var rows []row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read macro file: %w", err)
		}
		r := row{name: field(rec, idx["name"]), blob: field(rec, idx["events"])}
		if ts := field(rec, idx["saved_at"]); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				r.savedAt = t
			}
		}
		if r.name == "" {
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (s *CSVStore) write(rows []row) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		ts := ""
		if !r.savedAt.IsZero() {
			ts = r.savedAt.Format(time.RFC3339)
		}
		if err := cw.Write([]string{r.name, r.blob, ts}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	return WriteFileAtomic(s.path, buf.Bytes(), 0o600)
}

func columnIndex(header []string) map[string]int {
	idx := map[string]int{"name": -1, "events": -1, "saved_at": -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := idx[h]; ok {
			idx[h] = i
		}
	}
	return idx
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
