package session

import (
	"MacroRecorder/internal/adapter/storage"
	"MacroRecorder/internal/config"
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
	"time"

	"go.uber.org/zap"
)

// Options: параметры сессии.
type Options struct {
	DefaultRepeat int           // проходы для хоткея запуска; 0: до остановки
	InputBuffer   int           // ёмкость очереди сырых событий
	MoveInterval  time.Duration // прореживание движений мыши при записи
	RebindTimeout time.Duration
	Bounds        playback.Bounds // nil: координаты не проверяются
}

func (o *Options) normalize() {
	if o.DefaultRepeat < 0 {
		o.DefaultRepeat = 0
	}
	if o.InputBuffer <= 0 {
		o.InputBuffer = 1024
	}
	if o.RebindTimeout <= 0 {
		o.RebindTimeout = 10 * time.Second
	}
}

// Controller владеет сессией захвата: текущим макросом, режимом,
// записью, матчером хоткеев и плеером.
type Controller struct {
	listener input.Listener
	player   *playback.Player
	store    storage.Store
	bindings config.BindingStore
	notifier events.Notifier
	logger   *zap.SugaredLogger
	opts     Options

	mu         sync.Mutex
	state      State
	current    macro.Macro
	currentGen uint64 // растёт при каждой замене current
	recorder   *capture.Recorder
	matcher    *hotkey.Matcher
	backendErr error

	rebindTimer *time.Timer
	rebindGen   int

	ctx   context.Context
	tasks sync.WaitGroup
}

// New собирает контроллер. Привязки читаются из bindings; при ошибке
// используются значения, которые вернуло хранилище (по умолчанию).
func New(
	listener input.Listener,
	injector playback.Injector,
	store storage.Store,
	bindings config.BindingStore,
	notifier events.Notifier,
	logger *zap.SugaredLogger,
	opts Options,
) *Controller {
	opts.normalize()
	if notifier == nil {
		notifier = events.NotifierFunc(func(events.Notification) {})
	}
	c := &Controller{
		listener: listener,
		store:    store,
		bindings: bindings,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		current:  macro.New(macro.DefaultName),
		recorder: capture.NewRecorder(logger, capture.Options{MoveInterval: opts.MoveInterval}),
		ctx:      context.Background(),
	}
	c.player = playback.New(injector, logger, playback.Options{
		Bounds: opts.Bounds,
		OnSkip: func(i int, err error) {
			c.notifier.Notify(events.Notification{Type: events.Warning, Message: err.Error(), At: time.Now()})
		},
	})

	var b hotkey.Bindings
	if bindings != nil {
		loaded, err := bindings.LoadBindings()
		if err != nil {
			logger.Warnw("Failed to load hotkeys, using defaults", "error", err)
		}
		b = loaded
	}
	c.matcher = hotkey.NewMatcher(b)
	return c
}

// Run слушает ввод до отмены контекста. Ошибка бэкенда ввода возвращается
// обёрнутой; сессия при этом остаётся в Idle.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.backendErr = nil
	c.mu.Unlock()

	raw := make(chan macro.RawEvent, c.opts.InputBuffer)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.listener.Run(ctx, raw)
	}()

	c.logger.Infow("Session started", "buffer", c.opts.InputBuffer, "bindings", len(c.Bindings()))
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return context.Cause(ctx)
		case err := <-errCh:
			if ctx.Err() != nil {
				c.shutdown()
				return context.Cause(ctx)
			}
			if err == nil {
				err = errors.New("listener exited")
			}
			err = fmt.Errorf("input listener: %w", err)
			c.mu.Lock()
			c.backendErr = err
			c.emit(events.Notification{Type: events.Error, Message: err.Error()})
			c.mu.Unlock()
			c.logger.Errorw("Input listener failed", "error", err)
			c.shutdown()
			return err
		case ev := <-raw:
			c.handle(ev)
		}
	}
}

// handle прогоняет сырое событие через запись и матчер. Сработавшие
// действия выполняются после снятия блокировки.
func (c *Controller) handle(raw macro.RawEvent) {
	c.mu.Lock()
	if c.state == Recording {
		for _, ev := range c.recorder.Handle(raw) {
			ev := ev
			c.emit(events.Notification{Type: events.EventRecorded, Event: &ev, Events: c.recorder.Len()})
		}
	}
	var fired []hotkey.Action
	if ev, ok := macro.FromRaw(raw, time.Time{}); ok {
		out := c.matcher.Handle(ev)
		fired = out.Fired
		if c.state == Playing {
			// бэкенд может не отличать внедрённый ввод от пользовательского
			fired = onlyStop(fired)
		}
		if out.Rebind != nil {
			c.finishRebind(*out.Rebind)
		}
	}
	c.mu.Unlock()

	for _, a := range fired {
		c.dispatch(a)
	}
}

func onlyStop(fired []hotkey.Action) []hotkey.Action {
	var out []hotkey.Action
	for _, a := range fired {
		if a == hotkey.StopMacro {
			out = append(out, a)
		}
	}
	return out
}

func (c *Controller) dispatch(a hotkey.Action) {
	c.logger.Infow("Hotkey fired", "action", a.String())
	var err error
	switch a {
	case hotkey.StartRecord:
		err = c.StartRecording()
	case hotkey.StopRecord:
		_, err = c.StopRecording()
	case hotkey.StartMacro:
		err = c.Play(c.opts.DefaultRepeat)
	case hotkey.StopMacro:
		c.StopPlayback()
	case hotkey.SaveMacro:
		c.async(c.runCtx(), func(ctx context.Context) error { return c.SaveMacro(ctx, "") })
	case hotkey.LoadMacro:
		name := c.CurrentMacro().Name
		c.async(c.runCtx(), func(ctx context.Context) error { return c.LoadMacro(ctx, name) })
	}
	if err != nil {
		c.warn(a.String(), err)
	}
}

// async выполняет операцию хранения вне цикла обработки ввода.
func (c *Controller) async(ctx context.Context, fn func(ctx context.Context) error) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		if err := fn(ctx); err != nil {
			c.warn("storage", err)
		}
	}()
}

func (c *Controller) warn(op string, err error) {
	c.logger.Warnw("Command failed", "op", op, "error", err)
	c.notifier.Notify(events.Notification{Type: events.Warning, Message: fmt.Sprintf("%s: %v", op, err), At: time.Now()})
}

// emit вызывается под c.mu, чтобы порядок уведомлений совпадал с порядком переходов.
func (c *Controller) emit(n events.Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	c.notifier.Notify(n)
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.emit(events.Notification{Type: events.StateChanged, State: s.String()})
}

func (c *Controller) runCtx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *Controller) shutdown() {
	c.player.Stop()
	c.player.Wait()

	c.mu.Lock()
	if c.state == Recording {
		if m, ok := c.recorder.Stop(); ok {
			c.replaceCurrent(m)
		}
		c.matcher.Reset()
		c.setState(Idle)
	}
	if a, ok := c.matcher.CancelRebind(); ok {
		c.stopRebindTimer()
		c.emit(events.Notification{Type: events.RebindFinished, Action: a.String(), Message: hotkey.ErrRebindCancelled.Error()})
	}
	c.mu.Unlock()

	c.tasks.Wait()
	c.logger.Infow("Session stopped")
}

// replaceCurrent вызывается под c.mu.
func (c *Controller) replaceCurrent(m macro.Macro) {
	c.current = m
	c.currentGen++
}

// State: текущий режим.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bindings: копия текущих привязок.
func (c *Controller) Bindings() hotkey.Bindings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matcher.Bindings()
}

// CurrentMacro: копия текущего макроса.
func (c *Controller) CurrentMacro() macro.Macro {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// SetMacro заменяет текущий макрос (например, после редактирования в UI).
func (c *Controller) SetMacro(m macro.Macro) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return &StateError{Op: "set macro", State: c.state}
	}
	m = m.Clone()
	if strings.TrimSpace(m.Name) == "" {
		m.Name = macro.DefaultName
	}
	if m.Events == nil {
		m.Events = []macro.InputEvent{}
	}
	c.replaceCurrent(m)
	c.emit(events.Notification{Type: events.MacroChanged, Macro: m.Name, Events: m.Len()})
	return nil
}

// DeleteEvents удаляет события текущего макроса по индексам.
func (c *Controller) DeleteEvents(indexes ...int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return 0, &StateError{Op: "delete events", State: c.state}
	}
	n := c.current.DeleteEvents(indexes...)
	if n > 0 {
		c.currentGen++
		c.emit(events.Notification{Type: events.MacroChanged, Macro: c.current.Name, Events: c.current.Len()})
	}
	return n, nil
}

// StartRecording начинает запись нового макроса.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Idle:
	case Recording:
		return fmt.Errorf("start recording: %w", capture.ErrAlreadyRecording)
	default:
		return &StateError{Op: "start recording", State: c.state}
	}
	if c.backendErr != nil {
		return fmt.Errorf("start recording: %w", c.backendErr)
	}
	if _, ok := c.matcher.Rebinding(); ok {
		return fmt.Errorf("start recording: %w", hotkey.ErrRebindActive)
	}
	if err := c.recorder.Start(c.matcher.Combos()); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	c.setState(Recording)
	return nil
}

// StopRecording завершает запись; записанный макрос становится текущим.
// Без записи ничего не делает и возвращает текущий макрос.
func (c *Controller) StopRecording() (macro.Macro, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return c.current.Clone(), nil
	}
	m, _ := c.recorder.Stop()
	c.replaceCurrent(m)
	c.matcher.Reset()
	c.setState(Idle)
	c.emit(events.Notification{Type: events.MacroChanged, Macro: m.Name, Events: m.Len()})
	return m.Clone(), nil
}

// Play запускает воспроизведение текущего макроса. repeat = 0: до остановки.
func (c *Controller) Play(repeat int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Idle:
	case Playing:
		return fmt.Errorf("play: %w", playback.ErrAlreadyPlaying)
	default:
		return &StateError{Op: "play", State: c.state}
	}
	if _, ok := c.matcher.Rebinding(); ok {
		return fmt.Errorf("play: %w", hotkey.ErrRebindActive)
	}
	if err := c.player.Start(c.ctx, c.current, repeat, c.playbackDone); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	c.setState(Playing)
	return nil
}

func (c *Controller) playbackDone(stats playback.Stats, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warnw("Playback interrupted", "error", err, "injected", stats.Injected)
	}
	if stats.Skipped > 0 {
		c.emit(events.Notification{Type: events.Warning, Message: fmt.Sprintf("%d events skipped", stats.Skipped)})
	}
	if c.state == Playing {
		c.setState(Idle)
	}
}

// StopPlayback прерывает воспроизведение. Без воспроизведения ничего не делает.
func (c *Controller) StopPlayback() bool {
	return c.player.Stop()
}

// WaitPlayback блокируется до окончания текущего воспроизведения.
func (c *Controller) WaitPlayback() { c.player.Wait() }

// SaveMacro сохраняет текущий макрос. Пустое имя: имя текущего макроса.
// Если за время записи в хранилище текущий макрос сменился, новый не переименовывается.
func (c *Controller) SaveMacro(ctx context.Context, name string) error {
	if c.store == nil {
		return errors.New("save macro: no store configured")
	}
	c.mu.Lock()
	m := c.current.Clone()
	gen := c.currentGen
	c.mu.Unlock()
	if name = strings.TrimSpace(name); name != "" {
		m.Name = name
	}
	if err := c.store.Save(ctx, m); err != nil {
		return fmt.Errorf("save macro %q: %w", m.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.currentGen {
		c.logger.Infow("Macro saved, current macro replaced meanwhile", "name", m.Name)
		return nil
	}
	c.current.Name = m.Name
	c.emit(events.Notification{Type: events.MacroChanged, Macro: m.Name, Events: m.Len(), Message: "saved"})
	return nil
}

// LoadMacro загружает макрос по имени и делает его текущим.
func (c *Controller) LoadMacro(ctx context.Context, name string) error {
	if c.store == nil {
		return errors.New("load macro: no store configured")
	}
	if s := c.State(); s != Idle {
		return &StateError{Op: "load macro", State: s}
	}
	m, err := c.store.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("load macro %q: %w", name, err)
	}
	if err := m.Validate(); err != nil {
		// плеер пропустит такие события
		c.logger.Warnw("Loaded macro has malformed events", "name", m.Name, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return &StateError{Op: "load macro", State: c.state}
	}
	c.replaceCurrent(m)
	c.emit(events.Notification{Type: events.MacroChanged, Macro: m.Name, Events: m.Len(), Message: "loaded"})
	return nil
}

// Macros: список сохранённых макросов.
func (c *Controller) Macros(ctx context.Context) ([]storage.Entry, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.List(ctx)
}

// RequestRebind ждёт от пользователя новую комбинацию для действия.
// По истечении RebindTimeout режим отменяется с ErrInsufficientKeys.
func (c *Controller) RequestRebind(a hotkey.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return &StateError{Op: "rebind", State: c.state}
	}
	if err := c.matcher.BeginRebind(a); err != nil {
		return fmt.Errorf("rebind %s: %w", a, err)
	}
	c.rebindGen++
	gen := c.rebindGen
	c.rebindTimer = time.AfterFunc(c.opts.RebindTimeout, func() { c.rebindExpired(gen) })
	c.emit(events.Notification{Type: events.RebindStarted, Action: a.String()})
	c.logger.Infow("Rebind started", "action", a.String(), "timeout", c.opts.RebindTimeout)
	return nil
}

// CancelRebind прерывает ожидание комбинации. false: режим не был активен.
func (c *Controller) CancelRebind() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.matcher.CancelRebind()
	if !ok {
		return false
	}
	c.stopRebindTimer()
	c.emit(events.Notification{Type: events.RebindFinished, Action: a.String(), Message: hotkey.ErrRebindCancelled.Error()})
	return true
}

func (c *Controller) rebindExpired(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.rebindGen {
		return
	}
	a, ok := c.matcher.CancelRebind()
	if !ok {
		return
	}
	c.rebindTimer = nil
	err := fmt.Errorf("%w: timed out after %s", hotkey.ErrInsufficientKeys, c.opts.RebindTimeout)
	c.logger.Warnw("Rebind timed out", "action", a.String())
	c.emit(events.Notification{Type: events.RebindFinished, Action: a.String(), Message: err.Error()})
}

func (c *Controller) stopRebindTimer() {
	c.rebindGen++
	if c.rebindTimer != nil {
		c.rebindTimer.Stop()
		c.rebindTimer = nil
	}
}

// finishRebind применяет результат перепривязки. Вызывается под c.mu.
func (c *Controller) finishRebind(res hotkey.RebindResult) {
	c.stopRebindTimer()
	n := events.Notification{Type: events.RebindFinished, Action: res.Action.String()}
	if res.Err != nil {
		n.Message = res.Err.Error()
		c.logger.Warnw("Rebind failed", "action", res.Action.String(), "error", res.Err)
		c.emit(n)
		return
	}
	b := c.matcher.Bindings()
	if err := b.Assign(res.Action, res.Combo); err != nil {
		n.Message = err.Error()
		n.Combo = res.Combo
		c.logger.Warnw("Rebind rejected", "action", res.Action.String(), "combo", res.Combo.String(), "error", err)
		c.emit(n)
		return
	}
	c.matcher.SetBindings(b)
	n.Combo = b[res.Action]
	c.logger.Infow("Hotkey rebound", "action", res.Action.String(), "combo", n.Combo)
	c.emit(n)

	if c.bindings != nil {
		saved := b.Clone()
		c.async(c.ctx, func(context.Context) error { return c.bindings.SaveBindings(saved) })
	}
}
