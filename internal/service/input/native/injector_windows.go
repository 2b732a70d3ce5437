//go:build windows

package native

import (
	"MacroRecorder/internal/service/input"
	"MacroRecorder/internal/service/macro"
	"context"
	"fmt"
	"unsafe"

	"go.uber.org/zap"
)

var (
	procSendInput    = user32.NewProc("SendInput")
	procSetCursorPos = user32.NewProc("SetCursorPos")
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002

	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040
	mouseeventfXDown      = 0x0080
	mouseeventfXUp        = 0x0100
	mouseeventfWheel      = 0x0800
	mouseeventfHWheel     = 0x1000

	xbutton1 = 0x0001
	xbutton2 = 0x0002
)

type keybdInput struct {
	Vk        uint16
	Scan      uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type mouseInput struct {
	Dx        int32
	Dy        int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// INPUT на amd64: 40 байт: тип, выравнивание и объединение.
type keyboardINPUT struct {
	Type uint32
	_    [4]byte
	Ki   keybdInput
	_    [8]byte
}

type mouseINPUT struct {
	Type uint32
	_    [4]byte
	Mi   mouseInput
}

// расширенные клавиши требуют KEYEVENTF_EXTENDEDKEY
var extendedVK = map[uint16]bool{
	0x21: true, 0x22: true, 0x23: true, 0x24: true,
	0x25: true, 0x26: true, 0x27: true, 0x28: true,
	0x2D: true, 0x2E: true, 0x5B: true, 0x5C: true, 0x6F: true, 0x90: true,
}

type winInjector struct {
	logger *zap.SugaredLogger
}

// NewInjector: синтез ввода через SendInput.
func NewInjector(logger *zap.SugaredLogger) (input.Injector, error) {
	if err := procSendInput.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", input.ErrBackendUnavailable, err)
	}
	return &winInjector{logger: logger}, nil
}

func (w *winInjector) Inject(ctx context.Context, ev macro.InputEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch t := ev.Target.(type) {
	case macro.KeyTarget:
		vk, ok := input.VirtualCode(t.Key)
		if !ok {
			return fmt.Errorf("no virtual key for %q", t.Key)
		}
		flags := uint32(0)
		if ev.Kind == macro.KeyUp {
			flags |= keyeventfKeyUp
		}
		if extendedVK[vk] {
			flags |= keyeventfExtendedKey
		}
		in := keyboardINPUT{Type: inputKeyboard, Ki: keybdInput{Vk: vk, Flags: flags}}
		return sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in))
	case macro.PointTarget:
		return setCursorPos(t.X, t.Y)
	case macro.ButtonTarget:
		if err := setCursorPos(t.X, t.Y); err != nil {
			return err
		}
		flags, data := buttonFlags(t.Button, ev.Kind == macro.MouseDown)
		in := mouseINPUT{Type: inputMouse, Mi: mouseInput{Flags: flags, MouseData: data}}
		return sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in))
	case macro.ScrollTarget:
		if err := setCursorPos(t.X, t.Y); err != nil {
			return err
		}
		if t.DY != 0 {
			in := mouseINPUT{Type: inputMouse, Mi: mouseInput{Flags: mouseeventfWheel, MouseData: uint32(int32(t.DY * wheelDelta))}}
			if err := sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in)); err != nil {
				return err
			}
		}
		if t.DX != 0 {
			in := mouseINPUT{Type: inputMouse, Mi: mouseInput{Flags: mouseeventfHWheel, MouseData: uint32(int32(t.DX * wheelDelta))}}
			return sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in))
		}
		return nil
	}
	return fmt.Errorf("unsupported event %s", ev.Kind)
}

func buttonFlags(b macro.Button, down bool) (uint32, uint32) {
	switch b {
	case macro.ButtonRight:
		if down {
			return mouseeventfRightDown, 0
		}
		return mouseeventfRightUp, 0
	case macro.ButtonMiddle:
		if down {
			return mouseeventfMiddleDown, 0
		}
		return mouseeventfMiddleUp, 0
	case macro.ButtonX1, macro.ButtonX2:
		data := uint32(xbutton1)
		if b == macro.ButtonX2 {
			data = xbutton2
		}
		if down {
			return mouseeventfXDown, data
		}
		return mouseeventfXUp, data
	}
	if down {
		return mouseeventfLeftDown, 0
	}
	return mouseeventfLeftUp, 0
}

func sendInput(p unsafe.Pointer, size uintptr) error {
	r, _, err := procSendInput.Call(1, uintptr(p), size)
	if r == 0 {
		return fmt.Errorf("SendInput: %v", err)
	}
	return nil
}

func setCursorPos(x, y int) error {
	r, _, err := procSetCursorPos.Call(uintptr(int32(x)), uintptr(int32(y)))
	if r == 0 {
		return fmt.Errorf("SetCursorPos(%d, %d): %v", x, y, err)
	}
	return nil
}
