//go:build windows

package native

import (
	"MacroRecorder/internal/service/input"
	"MacroRecorder/internal/service/macro"
	"context"
	"fmt"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"
	"go.uber.org/zap"
)

// Обёртки для функций, которых может не быть в lxn/win
var (
	user32                  = syscall.NewLazyDLL("user32.dll")
	kernel32                = syscall.NewLazyDLL("kernel32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetCurrentThreadId  = kernel32.NewProc("GetCurrentThreadId")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmMouseMove   = 0x0200
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmMouseWheel  = 0x020A
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C
	wmMouseHWheel = 0x020E

	llkhfInjected = 0x10
	llmhfInjected = 0x01
	wheelDelta    = 120
)

type kbdLLHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msLLHookStruct struct {
	Pt          win.POINT
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type winListener struct {
	logger *zap.SugaredLogger
}

// NewListener: перехват через low-level хуки WH_KEYBOARD_LL/WH_MOUSE_LL.
func NewListener(logger *zap.SugaredLogger) (input.Listener, error) {
	if err := procSetWindowsHookExW.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", input.ErrBackendUnavailable, err)
	}
	return &winListener{logger: logger}, nil
}

func (l *winListener) Run(ctx context.Context, out chan<- macro.RawEvent) error {
	// хуки и цикл сообщений должны жить в одном закреплённом потоке
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sink := input.NewSink(out)

	kbdProc := syscall.NewCallback(func(nCode int, wParam uintptr, lParam uintptr) uintptr {
		if nCode >= 0 {
			k := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
			if k.Flags&llkhfInjected == 0 {
				if ev, ok := keyboardEvent(uint32(wParam), k); ok {
					sink.Send(ev)
				}
			}
		}
		r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
		return r
	})
	mouseProc := syscall.NewCallback(func(nCode int, wParam uintptr, lParam uintptr) uintptr {
		if nCode >= 0 {
			m := (*msLLHookStruct)(unsafe.Pointer(lParam))
			if m.Flags&llmhfInjected == 0 {
				if ev, ok := mouseEvent(uint32(wParam), m); ok {
					sink.Send(ev)
				}
			}
		}
		r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
		return r
	})

	hInstance := uintptr(win.GetModuleHandle(nil))
	kbdHook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, kbdProc, hInstance, 0)
	if kbdHook == 0 {
		return fmt.Errorf("%w: SetWindowsHookExW(keyboard): %v", input.ErrBackendUnavailable, err)
	}
	defer procUnhookWindowsHookEx.Call(kbdHook)

	mouseHook, _, err := procSetWindowsHookExW.Call(whMouseLL, mouseProc, hInstance, 0)
	if mouseHook == 0 {
		return fmt.Errorf("%w: SetWindowsHookExW(mouse): %v", input.ErrBackendUnavailable, err)
	}
	defer procUnhookWindowsHookEx.Call(mouseHook)

	tid, _, _ := procGetCurrentThreadId.Call()
	l.logger.Infow("Input hooks installed", "thread", tid)

	// по отмене контекста будим GetMessage через WM_QUIT
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			procPostThreadMessageW.Call(tid, uintptr(win.WM_QUIT), 0, 0)
		case <-stop:
		}
	}()

	msg := new(win.MSG)
	for {
		r := win.GetMessage(msg, 0, 0, 0)
		if r == 0 || r == -1 { // WM_QUIT или ошибка
			break
		}
		win.TranslateMessage(msg)
		win.DispatchMessage(msg)
	}

	if n := sink.Dropped(); n > 0 {
		l.logger.Warnw("Input events dropped on overflow", "count", n)
	}
	l.logger.Infow("Input hooks removed")
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return nil
}

func keyboardEvent(msg uint32, k *kbdLLHookStruct) (macro.RawEvent, bool) {
	ev := macro.RawEvent{
		Symbol: input.KeyFromVirtualCode(k.VkCode),
		Code:   int(k.VkCode),
		When:   time.Now(),
	}
	switch msg {
	case wmKeyDown, wmSysKeyDown:
		ev.Type = macro.RawKeyPress
	case wmKeyUp, wmSysKeyUp:
		ev.Type = macro.RawKeyRelease
	default:
		return ev, false
	}
	return ev, true
}

func mouseEvent(msg uint32, m *msLLHookStruct) (macro.RawEvent, bool) {
	ev := macro.RawEvent{X: int(m.Pt.X), Y: int(m.Pt.Y), When: time.Now()}
	switch msg {
	case wmMouseMove:
		ev.Type = macro.RawMouseMove
	case wmLButtonDown, wmRButtonDown, wmMButtonDown, wmXButtonDown:
		ev.Type = macro.RawMousePress
		ev.Button = mouseButton(msg, m.MouseData)
	case wmLButtonUp, wmRButtonUp, wmMButtonUp, wmXButtonUp:
		ev.Type = macro.RawMouseRelease
		ev.Button = mouseButton(msg, m.MouseData)
	case wmMouseWheel:
		ev.Type = macro.RawMouseWheel
		ev.DY = wheelSteps(m.MouseData)
	case wmMouseHWheel:
		ev.Type = macro.RawMouseWheel
		ev.DX = wheelSteps(m.MouseData)
	default:
		return ev, false
	}
	return ev, true
}

func mouseButton(msg uint32, data uint32) macro.Button {
	switch msg {
	case wmLButtonDown, wmLButtonUp:
		return macro.ButtonLeft
	case wmRButtonDown, wmRButtonUp:
		return macro.ButtonRight
	case wmMButtonDown, wmMButtonUp:
		return macro.ButtonMiddle
	}
	if data>>16 == 2 {
		return macro.ButtonX2
	}
	return macro.ButtonX1
}

// wheelSteps: число «щелчков» колеса; частичные прокрутки округляются до 1.
func wheelSteps(data uint32) int {
	delta := int(int16(data >> 16))
	steps := delta / wheelDelta
	if steps == 0 && delta != 0 {
		if delta > 0 {
			return 1
		}
		return -1
	}
	return steps
}
