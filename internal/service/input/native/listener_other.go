//go:build !windows

package native

import (
	"MacroRecorder/internal/service/input"
	"MacroRecorder/internal/service/macro"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	hook "github.com/robotn/gohook"
	"go.uber.org/zap"
)

type hookListener struct {
	logger *zap.SugaredLogger
}

// NewListener: глобальный перехват через libuiohook (gohook).
func NewListener(logger *zap.SugaredLogger) (input.Listener, error) {
	if err := displayAvailable(); err != nil {
		return nil, err
	}
	return &hookListener{logger: logger}, nil
}

func displayAvailable() error {
	if runtime.GOOS != "linux" {
		return nil
	}
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return fmt.Errorf("%w: no DISPLAY", input.ErrBackendUnavailable)
	}
	return nil
}

func (l *hookListener) Run(ctx context.Context, out chan<- macro.RawEvent) error {
	evChan := hook.Start()
	defer hook.End()
	l.logger.Infow("Input hook started")

	sink := input.NewSink(out)
	for {
		select {
		case <-ctx.Done():
			if n := sink.Dropped(); n > 0 {
				l.logger.Warnw("Input events dropped on overflow", "count", n)
			}
			l.logger.Infow("Input hook stopped")
			return context.Cause(ctx)
		case ev, ok := <-evChan:
			if !ok {
				return fmt.Errorf("%w: hook channel closed", input.ErrBackendUnavailable)
			}
			if raw, ok := convert(ev); ok {
				sink.Send(raw)
			}
		}
	}
}

func convert(ev hook.Event) (macro.RawEvent, bool) {
	when := ev.When
	if when.IsZero() {
		when = time.Now()
	}
	raw := macro.RawEvent{X: int(ev.X), Y: int(ev.Y), When: when}
	switch ev.Kind {
	case hook.KeyHold:
		raw.Type = macro.RawKeyPress
	case hook.KeyUp:
		raw.Type = macro.RawKeyRelease
	case hook.MouseHold:
		raw.Type = macro.RawMousePress
	case hook.MouseDown:
		raw.Type = macro.RawMouseRelease
	case hook.MouseMove, hook.MouseDrag:
		raw.Type = macro.RawMouseMove
	case hook.MouseWheel:
		raw.Type = macro.RawMouseWheel
		// libuiohook: положительный rotation: вниз/вправо
		if ev.Direction == 4 {
			raw.DX = int(ev.Rotation)
		} else {
			raw.DY = -int(ev.Rotation)
		}
		return raw, true
	default:
		// KeyDown у gohook: «typed», дублирует KeyHold
		return raw, false
	}

	if raw.Type == macro.RawKeyPress || raw.Type == macro.RawKeyRelease {
		raw.Symbol = hook.RawcodetoKeychar(ev.Rawcode)
		if raw.Symbol == "" && ev.Keychar > 0 && ev.Keychar < 0xFFFF {
			raw.Symbol = string(ev.Keychar)
		}
		raw.Code = int(ev.Rawcode)
		raw.X, raw.Y = 0, 0
		return raw, true
	}
	if raw.Type == macro.RawMousePress || raw.Type == macro.RawMouseRelease {
		b, err := macro.ParseButton(strconv.Itoa(int(ev.Button)))
		if err != nil {
			return raw, false
		}
		raw.Button = b
	}
	return raw, true
}
