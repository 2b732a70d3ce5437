package input

import (
	"MacroRecorder/internal/service/macro"
	"fmt"
	"strings"
)

// Виртуальные коды Windows для именованных клавиш. Левые и правые варианты
// модификаторов сводятся к общему имени.
var vkNames = map[uint32]string{
	0x08: "<backspace>",
	0x09: "<tab>",
	0x0D: "<enter>",
	0x10: "<shift>", 0xA0: "<shift>", 0xA1: "<shift>",
	0x11: "<ctrl>", 0xA2: "<ctrl>", 0xA3: "<ctrl>",
	0x12: "<alt>", 0xA4: "<alt>", 0xA5: "<alt>",
	0x5B: "<cmd>", 0x5C: "<cmd>",
	0x13: "<pause>",
	0x14: "<caps_lock>",
	0x1B: "<esc>",
	0x20: "<space>",
	0x21: "<page_up>",
	0x22: "<page_down>",
	0x23: "<end>",
	0x24: "<home>",
	0x25: "<left>",
	0x26: "<up>",
	0x27: "<right>",
	0x28: "<down>",
	0x2C: "<print_screen>",
	0x2D: "<insert>",
	0x2E: "<delete>",
	0x5D: "<apps>",
	0x6A: "<multiply>",
	0x6B: "<add>",
	0x6D: "<subtract>",
	0x6E: "<decimal>",
	0x6F: "<divide>",
	0x90: "<num_lock>",
	0x91: "<scroll_lock>",
	0xBA: ";",
	0xBB: "=",
	0xBC: ",",
	0xBD: "-",
	0xBE: ".",
	0xBF: "/",
	0xC0: "`",
	0xDB: "[",
	0xDC: "\\",
	0xDD: "]",
	0xDE: "'",
}

// предпочтительный код при синтезе
var preferredVK = map[string]uint32{
	"<shift>": 0x10,
	"<ctrl>":  0x11,
	"<alt>":   0x12,
	"<cmd>":   0x5B,
}

var keyToVK = func() map[string]uint32 {
	m := make(map[string]uint32, len(vkNames)+64)
	for vk, name := range vkNames {
		if _, ok := m[name]; !ok || vk < m[name] {
			m[name] = vk
		}
	}
	for name, vk := range preferredVK {
		m[name] = vk
	}
	for vk := uint32(0x60); vk <= 0x69; vk++ {
		m[fmt.Sprintf("<numpad%d>", vk-0x60)] = vk
	}
	for vk := uint32(0x70); vk <= 0x87; vk++ {
		m[fmt.Sprintf("<f%d>", vk-0x6F)] = vk
	}
	return m
}()

// KeyFromVirtualCode переводит виртуальный код Windows в идентификатор клавиши.
func KeyFromVirtualCode(vk uint32) string {
	if name, ok := vkNames[vk]; ok {
		return name
	}
	switch {
	case vk >= 0x60 && vk <= 0x69:
		return fmt.Sprintf("<numpad%d>", vk-0x60)
	case vk >= 0x70 && vk <= 0x87:
		return fmt.Sprintf("<f%d>", vk-0x6F)
	}
	return macro.KeyFromVK(int(vk))
}

// VirtualCode: обратное преобразование для синтеза ввода.
func VirtualCode(key string) (uint16, bool) {
	if vk, ok := keyToVK[key]; ok {
		return uint16(vk), true
	}
	if len(key) == 1 {
		c := key[0]
		switch {
		case c >= '0' && c <= '9':
			return uint16(c), true
		case c >= 'a' && c <= 'z':
			return uint16(c - 32), true
		}
	}
	if strings.HasPrefix(key, "<vk_") && strings.HasSuffix(key, ">") {
		var vk int
		if _, err := fmt.Sscanf(key, "<vk_%d>", &vk); err == nil && vk > 0 && vk < 256 {
			return uint16(vk), true
		}
	}
	return 0, false
}

// Имена клавиш в нотации robotgo.
var robotgoNames = map[string]string{
	"<ctrl>":         "ctrl",
	"<alt>":          "alt",
	"<shift>":        "shift",
	"<cmd>":          "cmd",
	"<enter>":        "enter",
	"<esc>":          "esc",
	"<space>":        "space",
	"<tab>":          "tab",
	"<backspace>":    "backspace",
	"<delete>":       "delete",
	"<insert>":       "insert",
	"<home>":         "home",
	"<end>":          "end",
	"<page_up>":      "pageup",
	"<page_down>":    "pagedown",
	"<up>":           "up",
	"<down>":         "down",
	"<left>":         "left",
	"<right>":        "right",
	"<caps_lock>":    "capslock",
	"<num_lock>":     "num_lock",
	"<print_screen>": "printscreen",
	"<pause>":        "pause",
}

// RobotgoKey переводит идентификатор клавиши в имя robotgo.
func RobotgoKey(key string) (string, bool) {
	if name, ok := robotgoNames[key]; ok {
		return name, true
	}
	if len([]rune(key)) == 1 {
		return key, true
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(key, "<"), ">")
	if strings.HasPrefix(inner, "f") && len(inner) <= 3 {
		return inner, true
	}
	if strings.HasPrefix(inner, "numpad") {
		return "num" + strings.TrimPrefix(inner, "numpad"), true
	}
	return "", false
}
