package terminal

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_PlainMode(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false, false)

	c.Prompt("Prompt -> ")
	c.Reply("4")
	c.Notice("Received: f8 pressed")
	c.Diagnostic("Error: boom")

	assert.Equal(t, "Prompt -> 4\nReceived: f8 pressed\nError: boom\n", buf.String())
}

func TestConsole_RawModeTranslatesNewlines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true, false)

	n, err := c.Write([]byte("a\nb\r\nc\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "a\r\nb\r\nc\r\n", buf.String())
}

func TestConsole_RawModeAcrossWrites(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true, false)

	_, _ = c.Write([]byte("x\r"))
	_, _ = c.Write([]byte("\n"))
	assert.Equal(t, "x\r\n", buf.String())
}

func TestEnableRaw_NotATerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()

	restore, raw, err := EnableRaw(int(f.Fd()))
	require.NoError(t, err)
	assert.False(t, raw)
	assert.NoError(t, restore())
	assert.False(t, IsTerminal(int(f.Fd())))
}
