package main

import (
	"MacroRecorder/internal/adapter/storage"
	"MacroRecorder/internal/app/bridge"
	"MacroRecorder/internal/app/session"
	"MacroRecorder/internal/config"
	"MacroRecorder/internal/service/events"
	"MacroRecorder/internal/service/input"
	"MacroRecorder/internal/service/input/native"
	"MacroRecorder/internal/service/macro"
	"MacroRecorder/internal/service/playback"
	"MacroRecorder/internal/service/sound"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// unavailable подставляется вместо бэкенда ввода, который не удалось открыть:
// сессия поднимается, но запись и воспроизведение сообщают причину.
type unavailable struct{ err error }

func (u unavailable) Run(ctx context.Context, out chan<- macro.RawEvent) error { return u.err }

func (u unavailable) Inject(ctx context.Context, ev macro.InputEvent) error { return u.err }

func main() {
	cfg := config.NewConfig()

	var logger *zap.Logger
	var err error
	if cfg.DebugMode {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	//сброс буфера логгера
	defer func() {
		if err := logger.Sync(); err != nil {
			sugar.Errorw("Failed to sync logger", "error", err)
		}
	}()

	sugar.Infow(
		"Starting app",
		"DebugMode", cfg.DebugMode,
		"MacroFile", cfg.MacroPath(),
		"HotkeysFile", cfg.HotkeysPath(),
		"Bridge", cfg.Bridge.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var listener input.Listener
	if listener, err = native.NewListener(sugar); err != nil {
		sugar.Errorw("Input listener unavailable", "error", err)
		listener = unavailable{err: err}
	}
	var injector input.Injector
	if injector, err = native.NewInjector(sugar); err != nil {
		sugar.Errorw("Input injector unavailable", "error", err)
		injector = unavailable{err: err}
	}

	var bounds playback.Bounds
	if cfg.CheckBounds {
		if b, err := input.DetectScreenBounds(); err != nil {
			sugar.Warnw("Screen bounds unavailable, pointer check disabled", "error", err)
		} else {
			bounds = b
			sugar.Infow("Screen bounds detected", "union", b.Union().String())
		}
	}

	journal := events.NewJournal(200)
	fanout := events.NewFanout(journal)
	if cfg.Sound.Enabled {
		cues := sound.NewCues(ctx, sugar, sound.NewSpeaker(cfg.Sound.VolumeDB), cfg.Sound.RecordPath, cfg.Sound.PlayPath)
		fanout.Subscribe(cues)
	}
	if cfg.DebugMode {
		fanout.Subscribe(events.NotifierFunc(func(n events.Notification) {
			sugar.Debugw("Notification", "type", n.Type, "text", n.String())
		}))
	}

	store := storage.NewCSVStore(cfg.MacroPath(), sugar)
	hotkeys := config.NewHotkeyFile(cfg.HotkeysPath(), sugar)

	ctrl := session.New(listener, injector, store, hotkeys, fanout, sugar, session.Options{
		DefaultRepeat: cfg.DefaultRepeat,
		InputBuffer:   cfg.InputBuffer,
		MoveInterval:  cfg.MouseMoveInterval,
		RebindTimeout: cfg.RebindTimeout,
		Bounds:        bounds,
	})

	if cfg.Bridge.Enabled {
		srv := bridge.NewServer(cfg.Bridge, ctrl, journal, cfg.DefaultRepeat, sugar)
		fanout.Subscribe(srv)
		if err := srv.Start(ctx); err != nil {
			sugar.Errorw("Failed to start bridge", "error", err)
		}
	}

	for action, combo := range ctrl.Bindings() {
		sugar.Infow("Hotkey", "action", action.String(), "combo", combo.String())
	}

	err = ctrl.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		sugar.Infow("Shutting down")
	case errors.Is(err, input.ErrBackendUnavailable) && cfg.Bridge.Enabled:
		// мост остаётся доступен: UI покажет причину
		sugar.Errorw("Input backend unavailable, bridge keeps running", "error", err)
		<-ctx.Done()
	default:
		sugar.Errorw("Session failed", "error", err)
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
}
