// Package scanner turns physical scanner input into scan events and
// routes them to the registrar lookups.
package scanner

import (
	"strings"
	"time"
	"unicode/utf8"

	"fasttrack/pkg/types"
)

const DefaultKeyGap = 50 * time.Millisecond

// Classifier decides which keystrokes belong to a scanner burst.
type Classifier interface {
	Feed(ev types.KeyEvent) (code string, ok bool)
	Reset()
}

// KeystrokeBuffer treats keys arriving closer together than gap as one
// scan. A slower key starts a new buffer, so human typing never builds a
// code. Time comes from the events themselves; a key stamped before the
// previous one also starts over.
type KeystrokeBuffer struct {
	gap  time.Duration
	buf  strings.Builder
	last time.Time
}

func NewKeystrokeBuffer(gap time.Duration) *KeystrokeBuffer {
	if gap <= 0 {
		gap = DefaultKeyGap
	}
	return &KeystrokeBuffer{gap: gap}
}

func (b *KeystrokeBuffer) Feed(ev types.KeyEvent) (string, bool) {
	at := ev.Time()
	if !b.last.IsZero() && (at.Before(b.last) || at.Sub(b.last) > b.gap) {
		b.buf.Reset()
	}
	b.last = at

	if ev.Key == types.KeyEnter {
		code := b.buf.String()
		b.buf.Reset()
		if code == "" {
			return "", false
		}
		return code, true
	}

	// modifiers and named keys ("Shift", "Tab") are not part of a code
	if utf8.RuneCountInString(ev.Key) != 1 {
		return "", false
	}

	b.buf.WriteString(ev.Key)
	return "", false
}

func (b *KeystrokeBuffer) Reset() {
	b.buf.Reset()
	b.last = time.Time{}
}
