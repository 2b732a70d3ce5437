package playback

import (
	"MacroRecorder/internal/service/macro"
	"context"
)

// heldInputs помнит клавиши и кнопки, нажатые при воспроизведении,
// чтобы отпустить их при остановке посреди макроса.
type heldInputs struct {
	keys    map[string]struct{}
	buttons map[macro.Button]macro.ButtonTarget
}

func newHeldInputs() *heldInputs {
	return &heldInputs{keys: map[string]struct{}{}, buttons: map[macro.Button]macro.ButtonTarget{}}
}

func (h *heldInputs) track(ev macro.InputEvent) {
	switch t := ev.Target.(type) {
	case macro.KeyTarget:
		if ev.Kind == macro.KeyDown {
			h.keys[t.Key] = struct{}{}
		} else {
			delete(h.keys, t.Key)
		}
	case macro.ButtonTarget:
		if ev.Kind == macro.MouseDown {
			h.buttons[t.Button] = t
		} else {
			delete(h.buttons, t.Button)
		}
	}
}

func (h *heldInputs) release(ctx context.Context, inj Injector) int {
	n := 0
	for key := range h.keys {
		if inj.Inject(ctx, macro.InputEvent{Kind: macro.KeyUp, Target: macro.KeyTarget{Key: key}}) == nil {
			n++
		}
	}
	for b, t := range h.buttons {
		if inj.Inject(ctx, macro.NewMouseUp(b, t.X, t.Y, 0)) == nil {
			n++
		}
	}
	h.keys = map[string]struct{}{}
	h.buttons = map[macro.Button]macro.ButtonTarget{}
	return n
}
