package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swiftlingo/src/translate"
)

func openTemp(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	return s
}

func TestSQLiteStoreSaveAndRecent(t *testing.T) {
	s := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		span := translate.TextSpan{Content: text, CapturedAt: base.Add(time.Duration(i) * time.Minute)}
		e := NewEntry(span, "fr", &translate.Result{Text: text + "-fr", SourceLanguage: "en", Provider: "stub", Latency: 30 * time.Millisecond}, nil)
		require.NoError(t, s.Save(ctx, e))
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "three", got[0].SourceText)
	require.Equal(t, "three-fr", got[0].TargetText)
	require.Equal(t, "en", got[0].SourceLanguage)
	require.Equal(t, int64(30), got[0].LatencyMS)
	require.True(t, got[0].Succeeded())
	require.True(t, base.Add(2*time.Minute).Equal(got[0].At))
	require.Equal(t, "two", got[1].SourceText)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestNewEntryFailure(t *testing.T) {
	span := translate.TextSpan{Content: "hello", DetectedLanguage: "en"}
	f := &translate.Failure{Attempts: []translate.Attempt{{Provider: "a", Kind: translate.KindUnreachable}}}

	e := NewEntry(span, "de", nil, f)
	require.False(t, e.Succeeded())
	require.Equal(t, "a: Unreachable", e.Failure)
	require.Equal(t, "en", e.SourceLanguage)
	require.False(t, e.At.IsZero())
}

type memStore struct {
	mu      sync.Mutex
	entries []Entry
	block   chan struct{}
	closed  bool
}

func (m *memStore) Save(_ context.Context, e Entry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) Recent(context.Context, int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...), nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

func TestAsyncFlushesOnClose(t *testing.T) {
	store := &memStore{}
	a := NewAsync(store, 4)
	span := translate.TextSpan{Content: "hello"}
	a.Record(span, "fr", &translate.Result{Text: "bonjour"}, nil)
	a.Record(span, "fr", nil, &translate.Failure{})
	require.NoError(t, a.Close())

	require.True(t, store.closed)
	require.Len(t, store.entries, 2)
	require.False(t, a.Enqueue(Entry{}))
}

func TestAsyncNeverBlocks(t *testing.T) {
	store := &memStore{block: make(chan struct{})}
	a := NewAsync(store, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			a.Record(translate.TextSpan{Content: "x"}, "fr", &translate.Result{Text: "y"}, nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a stalled store")
	}
	close(store.block)
	require.NoError(t, a.Close())
	require.NotEmpty(t, store.entries)
}
