package playback

import (
	"MacroRecorder/internal/service/macro"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrAlreadyPlaying = errors.New("already playing")
	errStopped        = errors.New("playback stopped")
)

// Injector синтезирует одно событие на уровне ОС.
type Injector interface {
	Inject(ctx context.Context, ev macro.InputEvent) error
}

// Bounds проверяет, что координата указателя лежит на экране.
type Bounds interface {
	Contains(x, y int) bool
}

// BoundsFunc адаптирует функцию к Bounds.
type BoundsFunc func(x, y int) bool

func (f BoundsFunc) Contains(x, y int) bool { return f(x, y) }

// Stats: итог воспроизведения.
type Stats struct {
	Passes   int  // полностью завершённые проходы
	Injected int  // успешно синтезированные события
	Skipped  int  // пропущенные некорректные события
	Stopped  bool // остановлено до завершения
}

type Options struct {
	// Bounds: необязательная проверка координат. nil: без проверки.
	Bounds Bounds
	// OnSkip вызывается для каждого пропущенного события.
	OnSkip func(index int, err error)
}

// Player воспроизводит макрос. Одновременно идёт не больше одного воспроизведения.
type Player struct {
	injector Injector
	logger   *zap.SugaredLogger
	opts     Options

	playing atomic.Bool
	stop    atomic.Bool

	mu     sync.Mutex
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func New(injector Injector, logger *zap.SugaredLogger, opts Options) *Player {
	return &Player{injector: injector, logger: logger, opts: opts}
}

// Playing сообщает, идёт ли воспроизведение.
func (p *Player) Playing() bool { return p.playing.Load() }

// Start запускает воспроизведение в отдельной горутине.
// repeat = 0: до остановки, N > 0: N проходов. onDone может быть nil.
func (p *Player) Start(ctx context.Context, m macro.Macro, repeat int, onDone func(Stats, error)) error {
	runCtx, done, err := p.begin(ctx)
	if err != nil {
		return err
	}
	m = m.Clone()
	go func() {
		stats, err := p.run(runCtx, m, repeat)
		p.finish(done)
		if onDone != nil {
			onDone(stats, err)
		}
	}()
	return nil
}

// Play: синхронный вариант Start.
func (p *Player) Play(ctx context.Context, m macro.Macro, repeat int) (Stats, error) {
	runCtx, done, err := p.begin(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer p.finish(done)
	return p.run(runCtx, m, repeat)
}

// Stop прерывает воспроизведение. Возвращает false, если ничего не играло.
func (p *Player) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing.Load() {
		return false
	}
	p.stop.Store(true)
	if p.cancel != nil {
		p.cancel(errStopped)
	}
	return true
}

// Wait блокируется до завершения текущего воспроизведения.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Player) begin(ctx context.Context) (context.Context, chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyPlaying
	}
	p.stop.Store(false)
	runCtx, cancel := context.WithCancelCause(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	return runCtx, p.done, nil
}

func (p *Player) finish(done chan struct{}) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel(nil)
		p.cancel = nil
	}
	p.playing.Store(false)
	p.mu.Unlock()
	close(done)
}

func (p *Player) run(ctx context.Context, m macro.Macro, repeat int) (Stats, error) {
	var stats Stats
	if repeat < 0 {
		repeat = 0
	}
	if m.IsEmpty() {
		p.logger.Infow("Playback skipped: empty macro", "name", m.Name)
		return stats, nil
	}

	start := time.Now()
	p.logger.Infow("Playback started", "name", m.Name, "events", m.Len(), "repeat", repeat)

	held := newHeldInputs()
	defer func() {
		if n := held.release(context.WithoutCancel(ctx), p.injector); n > 0 {
			p.logger.Infow("Released inputs held at playback end", "count", n)
		}
	}()

	for pass := 0; repeat == 0 || pass < repeat; pass++ {
		for i, ev := range m.Events {
			if p.cancelled(ctx) {
				return p.stopped(ctx, stats, start)
			}
			if i > 0 {
				if err := sleep(ctx, delay(m.Events[i-1], ev)); err != nil {
					return p.stopped(ctx, stats, start)
				}
				if p.cancelled(ctx) {
					return p.stopped(ctx, stats, start)
				}
			}
			if err := p.check(i, ev); err != nil {
				stats.Skipped++
				p.skip(i, err)
				continue
			}
			if err := p.injector.Inject(ctx, ev); err != nil {
				if p.cancelled(ctx) {
					return p.stopped(ctx, stats, start)
				}
				stats.Skipped++
				p.skip(i, fmt.Errorf("inject %s: %w", ev.Describe(), err))
				continue
			}
			held.track(ev)
			stats.Injected++
		}
		stats.Passes++
	}

	p.logger.Infow("Playback finished",
		"passes", stats.Passes,
		"injected", stats.Injected,
		"skipped", stats.Skipped,
		"duration", time.Since(start).String(),
	)
	return stats, nil
}

func (p *Player) cancelled(ctx context.Context) bool {
	return p.stop.Load() || ctx.Err() != nil
}

func (p *Player) stopped(ctx context.Context, stats Stats, start time.Time) (Stats, error) {
	stats.Stopped = true
	p.logger.Infow("Playback stopped",
		"passes", stats.Passes,
		"injected", stats.Injected,
		"duration", time.Since(start).String(),
	)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, errStopped) {
		return stats, cause
	}
	return stats, nil
}

func (p *Player) check(i int, ev macro.InputEvent) error {
	if err := ev.Validate(); err != nil {
		var me *macro.MalformedEventError
		if errors.As(err, &me) {
			me.Index = i
		}
		return err
	}
	if p.opts.Bounds == nil {
		return nil
	}
	if x, y, ok := ev.Position(); ok && !p.opts.Bounds.Contains(x, y) {
		return &macro.MalformedEventError{Index: i, Kind: ev.Kind, Reason: fmt.Sprintf("pointer %d,%d is off screen", x, y)}
	}
	return nil
}

func (p *Player) skip(i int, err error) {
	p.logger.Warnw("Event skipped", "index", i, "error", err)
	if p.opts.OnSkip != nil {
		p.opts.OnSkip(i, err)
	}
}

// delay: пауза перед событием; отрицательная разница считается нулём.
func delay(prev, cur macro.InputEvent) time.Duration {
	d := cur.OffsetMS - prev.OffsetMS
	if d <= 0 {
		return 0
	}
	return time.Duration(d) * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
