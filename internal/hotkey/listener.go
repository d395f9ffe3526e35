package hotkey

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"unicode/utf8"

	"HotkeyChat/internal/session"
)

// Event is sent when an action hotkey fires. Key is the hotkey name, e.g. "f8".
type Event struct {
	Key string
}

// Listener owns the input stream. It watches for hotkeys and assembles the
// remaining keystrokes into lines for the controller, so stdin has a single
// reader.
type Listener struct {
	keys   decoder
	echo   io.Writer
	keymap Keymap
	flag   *session.CancelFlag
	events *Queue[Event]
	lines  *Queue[string]
	logger *slog.Logger
	buf    []byte
	lastCR bool
}

// Options configures a Listener
type Options struct {
	// Echo receives typed characters. Set it when the terminal is in raw mode.
	Echo   io.Writer
	Keymap Keymap
	Logger *slog.Logger
}

// NewListener creates a listener reading raw keys from in
func NewListener(in io.Reader, flag *session.CancelFlag, opts Options) *Listener {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Keymap.Exit == nil {
		opts.Keymap = DefaultKeymap()
	}
	return &Listener{
		keys:   decoder{r: bufio.NewReader(in)},
		echo:   opts.Echo,
		keymap: opts.Keymap,
		flag:   flag,
		events: NewQueue[Event](),
		lines:  NewQueue[string](),
		logger: opts.Logger,
	}
}

// Events returns the hotkey event queue
func (l *Listener) Events() *Queue[Event] {
	return l.events
}

// PollEvent returns the next pending hotkey event without blocking
func (l *Listener) PollEvent() (Event, bool) {
	return l.events.TryPop()
}

// ReadLine blocks until a full line is typed. It returns io.EOF after the
// listener has stopped and every queued line was read.
func (l *Listener) ReadLine(ctx context.Context) (string, error) {
	return l.lines.Pop(ctx)
}

// Run reads keys until the exit chord, end of input, or a read error.
// It is meant to run on its own goroutine for the life of the session.
func (l *Listener) Run() {
	defer l.lines.Close()
	l.logger.Debug("hotkey listener started")

	for {
		key, err := l.keys.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				l.logger.Info("hotkey listener reached end of input")
			} else {
				l.logger.Warn("hotkey listener read failed", "error", err)
			}
			l.flushPartial()
			return
		}

		if l.keymap.Exit[key.Name] {
			l.logger.Info("exit hotkey pressed", "key", key.Name)
			l.flag.Set()
			return
		}
		if l.keymap.Action[key.Name] {
			l.logger.Debug("action hotkey pressed", "key", key.Name)
			l.events.Push(Event{Key: key.Name})
			continue
		}
		if !l.edit(key) {
			l.logger.Info("end of input requested")
			return
		}
	}
}

// edit applies a key to the pending line. It returns false on end of input.
func (l *Listener) edit(key Key) bool {
	wasCR := l.lastCR
	l.lastCR = false

	switch {
	case key.Name == KeyEnter:
		if key.Rune == '\n' && wasCR {
			return true
		}
		l.lastCR = key.Rune == '\r'
		l.lines.Push(string(l.buf))
		l.buf = l.buf[:0]
		l.write("\r\n")
	case key.Name == KeyBackspace:
		if len(l.buf) == 0 {
			return true
		}
		_, size := utf8.DecodeLastRune(l.buf)
		l.buf = l.buf[:len(l.buf)-size]
		l.write("\b \b")
	case key.Name == KeyEOF:
		if len(l.buf) == 0 {
			return false
		}
	case key.Printable():
		l.buf = utf8.AppendRune(l.buf, key.Rune)
		l.write(string(key.Rune))
	}
	return true
}

// flushPartial delivers a final unterminated line, as a line reader would at EOF
func (l *Listener) flushPartial() {
	if len(l.buf) > 0 {
		l.lines.Push(string(l.buf))
		l.buf = l.buf[:0]
	}
}

func (l *Listener) write(s string) {
	if l.echo == nil {
		return
	}
	if _, err := io.WriteString(l.echo, s); err != nil {
		l.logger.Debug("echo failed", "error", err)
	}
}
