package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether fd refers to a terminal
func IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// EnableRaw switches fd into raw mode and returns a func restoring the
// previous state. Nothing changes when fd is not a terminal.
func EnableRaw(fd int) (restore func() error, raw bool, err error) {
	if !term.IsTerminal(fd) {
		return func() error { return nil }, false, nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, false, fmt.Errorf("failed to enable raw mode: %w", err)
	}
	return func() error { return term.Restore(fd, oldState) }, true, nil
}

// Console writes conversation output. In raw mode the terminal no longer
// translates newlines, so Console emits CRLF itself. Writes are serialized
// because the key listener echoes through the same Console.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	out *termenv.Output
	raw bool
	cr  bool
}

// NewConsole creates a Console. Colors are used only when color is true
// and the environment allows it (NO_COLOR is honoured).
func NewConsole(w io.Writer, raw, color bool) *Console {
	profile := termenv.Ascii
	if color {
		profile = termenv.EnvColorProfile()
	}
	return &Console{
		w:   w,
		out: termenv.NewOutput(w, termenv.WithProfile(profile)),
		raw: raw,
	}
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.raw {
		return c.w.Write(p)
	}

	buf := make([]byte, 0, len(p)+8)
	for _, b := range p {
		if b == '\n' && !c.cr {
			buf = append(buf, '\r')
		}
		buf = append(buf, b)
		c.cr = b == '\r'
	}
	if _, err := c.w.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Prompt prints the input prompt without a trailing newline
func (c *Console) Prompt(s string) {
	fmt.Fprint(c, c.out.String(s).Foreground(c.out.Color("6")).Bold().String())
}

// Reply prints an assistant reply
func (c *Console) Reply(s string) {
	fmt.Fprintln(c, s)
}

// Notice prints an informational line
func (c *Console) Notice(s string) {
	fmt.Fprintln(c, c.out.String(s).Faint().String())
}

// Diagnostic prints an error line
func (c *Console) Diagnostic(s string) {
	fmt.Fprintln(c, c.out.String(s).Foreground(c.out.Color("1")).String())
}
