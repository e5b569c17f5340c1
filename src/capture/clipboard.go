package capture

import (
	"context"
	"fmt"

	"swiftlingo/src/clipboard"
	"swiftlingo/src/translate"
)

// Clipboard reads the explicit clipboard. It serves platforms without a
// primary selection, where the user copies before triggering.
type Clipboard struct {
	spanner spanner
	read    func() (string, error)
}

func NewClipboard(sp spanner) *Clipboard {
	return &Clipboard{spanner: sp, read: clipboard.Read}
}

func (c *Clipboard) Capture(ctx context.Context) (translate.TextSpan, error) {
	if err := ctx.Err(); err != nil {
		return translate.TextSpan{}, err
	}
	text, err := c.read()
	if err != nil {
		return translate.TextSpan{}, fmt.Errorf("%w: %v", ErrPlatformUnsupported, err)
	}
	return c.spanner.span(text)
}

func (c *Clipboard) Close() error { return nil }
