package langdetect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectISO6391ShortInput(t *testing.T) {
	require.Equal(t, "", DetectISO6391(""))
	require.Equal(t, "", DetectISO6391("   "))
	require.Equal(t, "", DetectISO6391("ok 12"))
}

func TestDetectISO6391(t *testing.T) {
	if testing.Short() {
		t.Skip("loads language models")
	}
	require.Equal(t, "en", DetectISO6391("The quick brown fox jumps over the lazy dog near the river bank."))
	require.Equal(t, "de", DetectISO6391("Das ist ein ganz normaler deutscher Satz über das Wetter heute."))
}

func TestOff(t *testing.T) {
	require.Equal(t, "", Off.Detect("The quick brown fox jumps over the lazy dog."))
}
