//go:build !windows

package native

import (
	"MacroRecorder/internal/service/input"
	"MacroRecorder/internal/service/macro"
	"context"
	"fmt"

	"github.com/go-vgo/robotgo"
	"go.uber.org/zap"
)

var robotgoButtons = map[macro.Button]string{
	macro.ButtonLeft:   "left",
	macro.ButtonRight:  "right",
	macro.ButtonMiddle: "center",
}

type robotInjector struct {
	logger *zap.SugaredLogger
}

// NewInjector: синтез ввода через robotgo.
func NewInjector(logger *zap.SugaredLogger) (input.Injector, error) {
	if err := displayAvailable(); err != nil {
		return nil, err
	}
	return &robotInjector{logger: logger}, nil
}

func (r *robotInjector) Inject(ctx context.Context, ev macro.InputEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch t := ev.Target.(type) {
	case macro.KeyTarget:
		name, ok := input.RobotgoKey(t.Key)
		if !ok {
			return fmt.Errorf("no robotgo key for %q", t.Key)
		}
		state := "down"
		if ev.Kind == macro.KeyUp {
			state = "up"
		}
		return robotgo.KeyToggle(name, state)
	case macro.PointTarget:
		robotgo.Move(t.X, t.Y)
		return nil
	case macro.ButtonTarget:
		button, ok := robotgoButtons[t.Button]
		if !ok {
			return fmt.Errorf("button %s is not supported by robotgo", t.Button)
		}
		robotgo.Move(t.X, t.Y)
		state := "down"
		if ev.Kind == macro.MouseUp {
			state = "up"
		}
		return robotgo.Toggle(button, state)
	case macro.ScrollTarget:
		robotgo.Move(t.X, t.Y)
		robotgo.Scroll(t.DX, t.DY)
		return nil
	}
	return fmt.Errorf("unsupported event %s", ev.Kind)
}
