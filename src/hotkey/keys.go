package hotkey

import (
	"fmt"
	"runtime"
	"strings"
)

// keysyms maps key names to X11 keysyms. It doubles as the list of keys
// ParseCombination accepts.
var keysyms = func() map[string]uint32 {
	m := map[string]uint32{
		"space":     0x0020,
		"enter":     0xff0d,
		"esc":       0xff1b,
		"tab":       0xff09,
		"backspace": 0xff08,
		"delete":    0xffff,
		"insert":    0xff63,
		"home":      0xff50,
		"end":       0xff57,
		"pageup":    0xff55,
		"pagedown":  0xff56,
		"left":      0xff51,
		"up":        0xff52,
		"right":     0xff53,
		"down":      0xff54,
	}
	for c := 'a'; c <= 'z'; c++ {
		m[string(c)] = uint32(c)
	}
	for c := '0'; c <= '9'; c++ {
		m[string(c)] = uint32(c)
	}
	for i := 1; i <= 24; i++ {
		m[fmt.Sprintf("f%d", i)] = 0xffbe + uint32(i-1)
	}
	return m
}()

// modifierKeysyms lists left and right keysyms per modifier name.
var modifierKeysyms = map[string][]uint32{
	"ctrl":  {0xffe3, 0xffe4},
	"shift": {0xffe1, 0xffe2},
	"alt":   {0xffe9, 0xffea},
	"cmd":   {0xffeb, 0xffec},
}

// keyNameToKeysyms returns the X11 keysyms for a key or modifier name.
func keyNameToKeysyms(keyName string) []uint32 {
	keyName = canonicalKey(strings.ToLower(strings.TrimSpace(keyName)))
	if syms, ok := modifierKeysyms[keyName]; ok {
		return syms
	}
	if sym, ok := keysyms[keyName]; ok {
		return []uint32{sym}
	}
	return nil
}

// keyNameToRawcodes maps a key name to Windows virtual key codes.
// Returns a slice of rawcodes (e.g., both left and right variants for modifiers)
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = canonicalKey(strings.ToLower(strings.TrimSpace(keyName)))

	switch keyName {
	// Modifier keys - return both left and right variants
	case "ctrl":
		return []uint16{162, 163} // VK_LCONTROL, VK_RCONTROL
	case "alt":
		return []uint16{164, 165} // VK_LMENU, VK_RMENU (MENU = Alt)
	case "shift":
		return []uint16{160, 161} // VK_LSHIFT, VK_RSHIFT
	case "win", "cmd", "super":
		return []uint16{91, 92} // VK_LWIN, VK_RWIN

	case "space":
		return []uint16{32} // VK_SPACE
	case "enter":
		return []uint16{13} // VK_RETURN
	case "esc":
		return []uint16{27} // VK_ESCAPE
	case "tab":
		return []uint16{9} // VK_TAB
	case "backspace":
		return []uint16{8} // VK_BACK
	case "delete":
		return []uint16{46} // VK_DELETE
	case "insert":
		return []uint16{45} // VK_INSERT
	case "home":
		return []uint16{36} // VK_HOME
	case "end":
		return []uint16{35} // VK_END
	case "pageup":
		return []uint16{33} // VK_PRIOR
	case "pagedown":
		return []uint16{34} // VK_NEXT

	case "left":
		return []uint16{37} // VK_LEFT
	case "up":
		return []uint16{38} // VK_UP
	case "right":
		return []uint16{39} // VK_RIGHT
	case "down":
		return []uint16{40} // VK_DOWN
	}

	if len(keyName) == 1 {
		c := keyName[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c - 'a' + 'A')} // VK 0x41-0x5A
		case c >= '0' && c <= '9':
			return []uint16{uint16(c)} // VK 0x30-0x39
		}
	}
	var n int
	if _, err := fmt.Sscanf(keyName, "f%d", &n); err == nil && n >= 1 && n <= 24 {
		return []uint16{uint16(111 + n)} // VK_F1 = 112
	}
	return nil
}

// rawcodesFor returns the codes gohook reports for keyName on this OS.
func rawcodesFor(keyName string) []uint16 {
	switch runtime.GOOS {
	case "windows":
		return keyNameToRawcodes(keyName)
	case "linux", "freebsd", "openbsd", "netbsd":
		syms := keyNameToKeysyms(keyName)
		codes := make([]uint16, 0, len(syms))
		for _, s := range syms {
			codes = append(codes, uint16(s))
		}
		// Letters arrive as either case depending on Shift.
		if len(syms) == 1 && syms[0] >= 'a' && syms[0] <= 'z' {
			codes = append(codes, uint16(syms[0]-'a'+'A'))
		}
		return codes
	}
	return nil
}
