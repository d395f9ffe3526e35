package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HotkeyChat/internal/session"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "exchanges.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestFingerprint(t *testing.T) {
	a := []session.Turn{{Role: session.RoleUser, Content: "hello"}}
	b := []session.Turn{{Role: session.RoleUser, Content: "hello"}}
	c := []session.Turn{{Role: session.RoleUser, Content: "hell"}, {Role: session.RoleUser, Content: "o"}}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c), "turn boundaries matter")
	assert.Len(t, Fingerprint(nil), 64)
}

func TestRecordAndSummarize(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, l.Record(ctx, Exchange{
		SessionID: "s1", Backend: "openai", Model: "gpt", Fingerprint: "abc",
		Turns: 2, StartedAt: start, Duration: 1500 * time.Millisecond, Outcome: OutcomeOK,
	}))
	require.NoError(t, l.Record(ctx, Exchange{
		SessionID: "s1", Backend: "openai", Model: "gpt", Fingerprint: "def",
		Turns: 3, StartedAt: start, Outcome: OutcomeError, Error: "timeout",
	}))
	require.NoError(t, l.Record(ctx, Exchange{SessionID: "s2", Outcome: OutcomeOK}))

	sum, err := l.Summarize(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Failed: 1}, sum)

	exchanges, err := l.Exchanges(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, exchanges, 2)
	assert.Equal(t, "abc", exchanges[0].Fingerprint)
	assert.Equal(t, 1500*time.Millisecond, exchanges[0].Duration)
	assert.Equal(t, "timeout", exchanges[1].Error)
}

func TestSummarize_UnknownSession(t *testing.T) {
	l := openTemp(t)
	sum, err := l.Summarize(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}
