package macro

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Идентификаторы клавиш платформенно-независимы:
//   - печатные символы хранятся как есть в нижнем регистре: "a", "1", "/";
//   - именованные клавиши в угловых скобках: "<ctrl>", "<enter>", "<f5>";
//   - неизвестные коды: "<vk_N>".
// Левые/правые модификаторы сводятся к общему имени.

var keyAliases = map[string]string{
	"ctrl": "ctrl", "control": "ctrl", "ctrl_l": "ctrl", "ctrl_r": "ctrl", "lctrl": "ctrl", "rctrl": "ctrl",
	"control_l": "ctrl", "control_r": "ctrl", "lcontrol": "ctrl", "rcontrol": "ctrl",
	"alt": "alt", "alt_l": "alt", "alt_r": "alt", "alt_gr": "alt", "lalt": "alt", "ralt": "alt",
	"menu": "alt", "lmenu": "alt", "rmenu": "alt", "option": "alt",
	"shift": "shift", "shift_l": "shift", "shift_r": "shift", "lshift": "shift", "rshift": "shift",
	"cmd": "cmd", "cmd_l": "cmd", "cmd_r": "cmd", "win": "cmd", "lwin": "cmd", "rwin": "cmd",
	"super": "cmd", "super_l": "cmd", "super_r": "cmd", "meta": "cmd", "command": "cmd",
	"enter": "enter", "return": "enter", "kp_enter": "enter",
	"esc": "esc", "escape": "esc",
	"space": "space", "spacebar": "space",
	"tab":       "tab",
	"backspace": "backspace", "back": "backspace",
	"delete": "delete", "del": "delete",
	"insert": "insert", "ins": "insert",
	"home": "home", "end": "end",
	"page_up": "page_up", "pageup": "page_up", "prior": "page_up", "pgup": "page_up",
	"page_down": "page_down", "pagedown": "page_down", "next": "page_down", "pgdn": "page_down",
	"up": "up", "arrowup": "up", "down": "down", "arrowdown": "down",
	"left": "left", "arrowleft": "left", "right": "right", "arrowright": "right",
	"caps_lock": "caps_lock", "capslock": "caps_lock", "capital": "caps_lock",
	"num_lock": "num_lock", "numlock": "num_lock",
	"scroll_lock": "scroll_lock", "scrolllock": "scroll_lock",
	"print_screen": "print_screen", "printscreen": "print_screen", "print": "print_screen", "snapshot": "print_screen",
	"pause": "pause",
}

// Modifiers: нормализованные модификаторы (для форматирования комбинаций).
var Modifiers = []string{"<ctrl>", "<alt>", "<shift>", "<cmd>"}

// NormalizeKey приводит произвольную метку клавиши к каноническому идентификатору.
// Пустая или нераспознаваемая строка даёт "".
func NormalizeKey(label string) string {
	if label == "" {
		return ""
	}
	if utf8.RuneCountInString(label) == 1 {
		r, _ := utf8.DecodeRuneInString(label)
		switch r {
		case ' ':
			return "<space>"
		case '\t':
			return "<tab>"
		case '\r', '\n':
			return "<enter>"
		}
		if !unicode.IsPrint(r) {
			return ""
		}
		return string(unicode.ToLower(r))
	}

	label = strings.TrimSpace(label)
	inner := strings.ToLower(label)
	if strings.HasPrefix(inner, "<") && strings.HasSuffix(inner, ">") {
		inner = inner[1 : len(inner)-1]
	}
	if inner == "" {
		return ""
	}
	if utf8.RuneCountInString(inner) == 1 {
		return NormalizeKey(inner)
	}
	if strings.HasPrefix(inner, "vk_") {
		vk, err := strconv.Atoi(strings.TrimPrefix(inner, "vk_"))
		if err != nil || vk < 0 {
			return ""
		}
		return KeyFromVK(vk)
	}
	if canonical, ok := keyAliases[inner]; ok {
		return "<" + canonical + ">"
	}
	if isFunctionKey(inner) {
		return "<" + inner + ">"
	}
	if strings.ContainsAny(inner, "+<> \t") {
		return ""
	}
	return "<" + inner + ">"
}

// KeyFromVK переводит код клавиши в идентификатор: цифры и латинские буквы
// становятся символами, остальные: "<vk_N>".
func KeyFromVK(vk int) string {
	switch {
	case vk >= 0x30 && vk <= 0x39:
		return string(rune(vk))
	case vk >= 0x41 && vk <= 0x5A:
		return string(rune(vk + 32))
	}
	return fmt.Sprintf("<vk_%d>", vk)
}

// IsValidKey сообщает, является ли строка каноническим идентификатором клавиши.
func IsValidKey(key string) bool {
	return key != "" && NormalizeKey(key) == key
}

func isFunctionKey(s string) bool {
	if !strings.HasPrefix(s, "f") {
		return false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "f"))
	return err == nil && n >= 1 && n <= 24
}

// Button: кнопка мыши.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
	ButtonX1     Button = "x1"
	ButtonX2     Button = "x2"
)

// Valid сообщает, известна ли кнопка.
func (b Button) Valid() bool {
	switch b {
	case ButtonLeft, ButtonRight, ButtonMiddle, ButtonX1, ButtonX2:
		return true
	}
	return false
}

// ParseButton принимает имена и числовые номера (1: левая, 2: правая, 3: средняя).
func ParseButton(s string) (Button, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "1", "button1":
		return ButtonLeft, nil
	case "right", "2", "button2":
		return ButtonRight, nil
	case "middle", "3", "button3":
		return ButtonMiddle, nil
	case "x1", "4", "button4":
		return ButtonX1, nil
	case "x2", "5", "button5":
		return ButtonX2, nil
	}
	return "", fmt.Errorf("unknown mouse button %q", s)
}
