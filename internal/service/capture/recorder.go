package capture

import (
	"MacroRecorder/internal/service/hotkey"
	"MacroRecorder/internal/service/macro"
	"errors"
	"time"

	"go.uber.org/zap"
)

var ErrAlreadyRecording = errors.New("already recording")

// Options: параметры записи.
type Options struct {
	// MoveInterval: движения мыши чаще этого интервала схлопываются в одно.
	// 0: записывать каждое движение.
	MoveInterval time.Duration
}

type pendingKey struct {
	raw macro.RawEvent
	key string
}

// Recorder превращает поток сырых событий в макрос.
// Не потокобезопасен: доступ сериализует контроллер сессии.
type Recorder struct {
	logger *zap.SugaredLogger
	opts   Options

	recording bool
	current   macro.Macro
	combos    []hotkey.Combo

	t0         time.Time
	lastOffset int64

	down     map[string]struct{} // физически зажатые с начала записи
	recorded map[string]struct{} // клавиши, чей KeyDown попал в макрос
	pending  []pendingKey        // возможное начало управляющей комбинации

	pendingMove *macro.RawEvent
	lastMoveAt  time.Time

	repeats    int
	suppressed int
	coalesced  int
}

func NewRecorder(logger *zap.SugaredLogger, opts Options) *Recorder {
	if opts.MoveInterval < 0 {
		opts.MoveInterval = 0
	}
	return &Recorder{logger: logger, opts: opts}
}

// Recording сообщает, идёт ли запись.
func (r *Recorder) Recording() bool { return r.recording }

// Len: число уже записанных событий.
func (r *Recorder) Len() int { return len(r.current.Events) }

// Start начинает запись нового макроса. combos: управляющие комбинации,
// нажатия которых не должны попасть в макрос.
func (r *Recorder) Start(combos []hotkey.Combo) error {
	if r.recording {
		return ErrAlreadyRecording
	}
	r.recording = true
	r.current = macro.New(macro.DefaultName)
	r.combos = make([]hotkey.Combo, 0, len(combos))
	for _, c := range combos {
		if len(c) > 0 {
			r.combos = append(r.combos, c)
		}
	}
	r.t0 = time.Time{}
	r.lastOffset = 0
	r.down = map[string]struct{}{}
	r.recorded = map[string]struct{}{}
	r.pending = nil
	r.pendingMove = nil
	r.lastMoveAt = time.Time{}
	r.repeats, r.suppressed, r.coalesced = 0, 0, 0

	r.logger.Infow("Recording started", "combos", len(r.combos), "move_interval", r.opts.MoveInterval)
	return nil
}

// Stop завершает запись и возвращает копию макроса. ok=false, если запись не шла.
// Недособранная управляющая комбинация отбрасывается.
func (r *Recorder) Stop() (macro.Macro, bool) {
	if !r.recording {
		return macro.Macro{}, false
	}
	r.flushMove()
	r.suppressed += len(r.pending)
	r.pending = nil
	r.recording = false

	out := r.current.Clone()
	r.logger.Infow("Recording stopped",
		"events", out.Len(),
		"duration", out.Duration(),
		"repeats_dropped", r.repeats,
		"suppressed", r.suppressed,
		"moves_coalesced", r.coalesced,
	)
	return out, true
}

// Handle обрабатывает сырое событие и возвращает события, добавленные в макрос.
func (r *Recorder) Handle(raw macro.RawEvent) []macro.InputEvent {
	if !r.recording {
		return nil
	}
	var out []macro.InputEvent
	switch raw.Type {
	case macro.RawKeyPress:
		out = r.keyDown(raw, out)
	case macro.RawKeyRelease:
		out = r.keyUp(raw, out)
	case macro.RawMouseMove:
		out = r.flushKeys(out)
		out = r.move(raw, out)
	default:
		out = r.flushMoveInto(out)
		out = r.flushKeys(out)
		out = r.commit(raw, out)
	}
	return out
}

func (r *Recorder) keyDown(raw macro.RawEvent, out []macro.InputEvent) []macro.InputEvent {
	key := keyOf(raw)
	if key == "" {
		return out
	}
	if _, held := r.down[key]; held {
		r.repeats++
		return out
	}
	r.down[key] = struct{}{}
	out = r.flushMoveInto(out)

	if c, ok := r.candidate(key, true); ok {
		r.pending = append(r.pending, pendingKey{raw: raw, key: key})
		if c.SubsetOf(r.down) {
			r.swallow()
		}
		return out
	}

	// набор разошёлся со всеми комбинациями
	out = r.flushKeys(out)
	if c, ok := r.candidate(key, false); ok {
		r.pending = append(r.pending, pendingKey{raw: raw, key: key})
		if c.SubsetOf(r.down) {
			r.swallow()
		}
		return out
	}
	r.recorded[key] = struct{}{}
	return r.commit(raw, out)
}

func (r *Recorder) keyUp(raw macro.RawEvent, out []macro.InputEvent) []macro.InputEvent {
	key := keyOf(raw)
	if key == "" {
		return out
	}
	if _, held := r.down[key]; !held {
		return out
	}
	delete(r.down, key)
	out = r.flushMoveInto(out)

	if r.isPending(key) {
		out = r.flushKeys(out)
	} else if _, ok := r.recorded[key]; ok {
		out = r.flushKeys(out)
	} else {
		// KeyDown был поглощён комбинацией
		r.suppressed++
		return out
	}
	delete(r.recorded, key)
	return r.commit(raw, out)
}

func (r *Recorder) move(raw macro.RawEvent, out []macro.InputEvent) []macro.InputEvent {
	if r.opts.MoveInterval > 0 && !r.lastMoveAt.IsZero() && raw.When.Sub(r.lastMoveAt) < r.opts.MoveInterval {
		if r.pendingMove != nil {
			r.coalesced++
		}
		ev := raw
		r.pendingMove = &ev
		return out
	}
	if r.pendingMove != nil {
		r.coalesced++
		r.pendingMove = nil
	}
	r.lastMoveAt = raw.When
	return r.commit(raw, out)
}

// candidate ищет комбинацию, в которую помещаются отложенные клавиши вместе с key.
// withPending=false проверяет только key.
func (r *Recorder) candidate(key string, withPending bool) (hotkey.Combo, bool) {
	for _, c := range r.combos {
		if !c.Contains(key) {
			continue
		}
		fits := true
		if withPending {
			for _, p := range r.pending {
				if !c.Contains(p.key) {
					fits = false
					break
				}
			}
		}
		if fits {
			return c, true
		}
	}
	return nil, false
}

func (r *Recorder) isPending(key string) bool {
	for _, p := range r.pending {
		if p.key == key {
			return true
		}
	}
	return false
}

// swallow отбрасывает отложенные клавиши собранной комбинации.
func (r *Recorder) swallow() {
	r.suppressed += len(r.pending)
	r.pending = nil
}

func (r *Recorder) flushKeys(out []macro.InputEvent) []macro.InputEvent {
	if len(r.pending) == 0 {
		return out
	}
	pending := r.pending
	r.pending = nil
	for _, p := range pending {
		r.recorded[p.key] = struct{}{}
		out = r.commit(p.raw, out)
	}
	return out
}

func (r *Recorder) flushMove() {
	_ = r.flushMoveInto(nil)
}

func (r *Recorder) flushMoveInto(out []macro.InputEvent) []macro.InputEvent {
	if r.pendingMove == nil {
		return out
	}
	raw := *r.pendingMove
	r.pendingMove = nil
	r.lastMoveAt = raw.When
	return r.commit(raw, out)
}

func (r *Recorder) commit(raw macro.RawEvent, out []macro.InputEvent) []macro.InputEvent {
	if r.t0.IsZero() {
		r.t0 = raw.When
		if r.t0.IsZero() {
			r.t0 = time.Now()
		}
	}
	ev, ok := macro.FromRaw(raw, r.t0)
	if !ok {
		r.logger.Debugw("Raw event skipped", "type", raw.Type, "code", raw.Code)
		return out
	}
	if len(r.current.Events) == 0 {
		ev.OffsetMS = 0
	} else if ev.OffsetMS < r.lastOffset {
		ev.OffsetMS = r.lastOffset
	}
	r.lastOffset = ev.OffsetMS
	r.current.Events = append(r.current.Events, ev)
	return append(out, ev)
}

func keyOf(raw macro.RawEvent) string {
	ev, ok := macro.FromRaw(raw, time.Time{})
	if !ok {
		return ""
	}
	k, _ := ev.Key()
	return k
}
