package hotkey

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

const (
	KeyEnter     = "enter"
	KeyBackspace = "backspace"
	KeyEsc       = "esc"
	KeyUnknown   = "unknown"
	KeyEOF       = "ctrl+d"
)

// maxEscapeLen bounds how many bytes of a CSI sequence are consumed
const maxEscapeLen = 8

// Key is one decoded key press. Name is empty for printable runes.
type Key struct {
	Name string
	Rune rune
}

// Printable reports whether the key inserts text
func (k Key) Printable() bool {
	return k.Name == ""
}

// csiFunctionKeys maps xterm "ESC [ n ~" parameters to function keys
var csiFunctionKeys = map[int]string{
	11: "f1", 12: "f2", 13: "f3", 14: "f4", 15: "f5",
	17: "f6", 18: "f7", 19: "f8", 20: "f9", 21: "f10",
	23: "f11", 24: "f12",
}

// ss3FunctionKeys maps "ESC O x" to F1-F4
var ss3FunctionKeys = map[byte]string{
	'P': "f1", 'Q': "f2", 'R': "f3", 'S': "f4",
}

type decoder struct {
	r *bufio.Reader
}

func (d *decoder) next() (Key, error) {
	ch, _, err := d.r.ReadRune()
	if err != nil {
		return Key{}, err
	}

	switch {
	case ch == '\r' || ch == '\n':
		return Key{Name: KeyEnter, Rune: ch}, nil
	case ch == 0x7f || ch == 0x08:
		return Key{Name: KeyBackspace}, nil
	case ch == 0x1b:
		return d.escape()
	case ch == '\t':
		return Key{Rune: ch}, nil
	case ch >= 0x01 && ch <= 0x1a:
		return Key{Name: "ctrl+" + string(rune('a'+ch-1))}, nil
	case ch < 0x20:
		return Key{Name: KeyUnknown}, nil
	}
	return Key{Rune: ch}, nil
}

// escape decodes the remainder of an escape sequence. A lone ESC with nothing
// buffered behind it is the Escape key itself.
func (d *decoder) escape() (Key, error) {
	if d.r.Buffered() == 0 {
		return Key{Name: KeyEsc}, nil
	}
	b, err := d.r.ReadByte()
	if err != nil {
		return Key{}, err
	}

	switch b {
	case 'O':
		c, err := d.r.ReadByte()
		if err != nil {
			return Key{}, err
		}
		if name, ok := ss3FunctionKeys[c]; ok {
			return Key{Name: name}, nil
		}
		return Key{Name: KeyUnknown}, nil
	case '[':
		var params []byte
		for i := 0; i < maxEscapeLen; i++ {
			c, err := d.r.ReadByte()
			if err != nil {
				return Key{}, err
			}
			if c >= 0x40 && c <= 0x7e {
				if c == '~' {
					if n, err := strconv.Atoi(string(params)); err == nil {
						if name, ok := csiFunctionKeys[n]; ok {
							return Key{Name: name}, nil
						}
					}
				}
				return Key{Name: KeyUnknown}, nil
			}
			params = append(params, c)
		}
		return Key{Name: KeyUnknown}, nil
	}

	// ESC then a plain key, as Alt+key sends it. The key is read next.
	if err := d.r.UnreadByte(); err != nil {
		return Key{}, err
	}
	return Key{Name: KeyEsc}, nil
}

// Keymap names the chords that end the session and the ones that raise events
type Keymap struct {
	Exit   map[string]bool
	Action map[string]bool
}

// DefaultKeymap exits on Ctrl+E or Ctrl+C and raises an event on F8
func DefaultKeymap() Keymap {
	km, _ := ParseKeymap([]string{"ctrl+e", "ctrl+c"}, []string{"f8"})
	return km
}

// ParseKeymap validates key names such as "ctrl+e" or "f8"
func ParseKeymap(exit, action []string) (Keymap, error) {
	km := Keymap{Exit: map[string]bool{}, Action: map[string]bool{}}
	for _, raw := range exit {
		name, err := normalizeKey(raw)
		if err != nil {
			return Keymap{}, fmt.Errorf("exit key: %w", err)
		}
		km.Exit[name] = true
	}
	for _, raw := range action {
		name, err := normalizeKey(raw)
		if err != nil {
			return Keymap{}, fmt.Errorf("action key: %w", err)
		}
		if km.Exit[name] {
			return Keymap{}, fmt.Errorf("key %s bound to both exit and action", name)
		}
		km.Action[name] = true
	}
	if len(km.Exit) == 0 {
		return Keymap{}, fmt.Errorf("no exit key configured")
	}
	return km, nil
}

func normalizeKey(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if letter, ok := strings.CutPrefix(name, "ctrl+"); ok {
		if len(letter) != 1 || letter[0] < 'a' || letter[0] > 'z' {
			return "", fmt.Errorf("invalid key %q", raw)
		}
		// these arrive as enter, backspace and tab
		switch letter[0] {
		case 'h', 'i', 'j', 'm':
			return "", fmt.Errorf("key %q is reserved for line editing", raw)
		}
		return name, nil
	}
	if n, ok := strings.CutPrefix(name, "f"); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 1 && i <= 12 {
			return name, nil
		}
	}
	return "", fmt.Errorf("invalid key %q", raw)
}
