// Package history persists one record per completed translation run.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"swiftlingo/src/translate"
)

// Entry is one completed run. Failure is empty on success and holds the
// per-provider breakdown otherwise.
type Entry struct {
	ID             uuid.UUID `json:"id"`
	At             time.Time `json:"timestamp"`
	SourceText     string    `json:"source_text"`
	SourceLanguage string    `json:"source_lang"`
	TargetText     string    `json:"target_text"`
	TargetLanguage string    `json:"target_lang"`
	Provider       string    `json:"provider"`
	LatencyMS      int64     `json:"latency_ms"`
	Failure        string    `json:"failure,omitempty"`
}

// Succeeded reports whether the run produced a translation.
func (e Entry) Succeeded() bool { return e.Failure == "" }

// Store is a history backend.
type Store interface {
	Save(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// NewEntry builds the record for a run over span targeting target. Exactly one
// of result and failure is non-nil.
func NewEntry(span translate.TextSpan, target string, result *translate.Result, failure *translate.Failure) Entry {
	e := Entry{
		ID:             uuid.New(),
		At:             span.CapturedAt,
		SourceText:     span.Content,
		SourceLanguage: span.DetectedLanguage,
		TargetLanguage: target,
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	switch {
	case result != nil:
		e.TargetText = result.Text
		e.Provider = result.Provider
		e.LatencyMS = result.Latency.Milliseconds()
		if result.SourceLanguage != "" {
			e.SourceLanguage = result.SourceLanguage
		}
	case failure != nil:
		e.Failure = failure.Summary("\n")
	}
	return e
}
