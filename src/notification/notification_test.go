package notification

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	short := "bonjour"
	require.Equal(t, short, Truncate(short))

	long := strings.Repeat("é", MaxBodyRunes+10)
	got := Truncate(long)
	require.True(t, strings.HasSuffix(got, "..."))
	require.Equal(t, MaxBodyRunes+3, utf8.RuneCountInString(got))
}

func TestSandboxedByEnv(t *testing.T) {
	env := map[string]string{"FLATPAK_ID": "io.example.SwiftLingo"}
	require.True(t, Sandboxed(func(k string) string { return env[k] }))
}

func TestLogNotifier(t *testing.T) {
	var n Notifier = Log{}
	require.NoError(t, n.Notify(context.Background(), "Translated", "hola"))
	require.NoError(t, n.Close())
}
