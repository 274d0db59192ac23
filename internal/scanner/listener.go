package scanner

import (
	"sync"

	"fasttrack/pkg/types"
)

type Handler func(types.ScanEvent)

// Listener feeds keystrokes to a classifier while attached and hands
// complete codes to its handler.
type Listener struct {
	handler Handler

	mu         sync.Mutex
	classifier Classifier
	attached   bool
	detach     func()
}

func NewListener(classifier Classifier, handler Handler) *Listener {
	return &Listener{classifier: classifier, handler: handler}
}

// Attach starts listening. Attaching an attached listener returns the
// existing detach func and does not buffer keys twice.
func (l *Listener) Attach() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.attached {
		return l.detach
	}

	l.attached = true
	l.detach = func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.attached = false
		l.classifier.Reset()
	}
	return l.detach
}

func (l *Listener) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attached
}

func (l *Listener) Keys(events ...types.KeyEvent) {
	for _, ev := range events {
		l.mu.Lock()
		if !l.attached {
			l.mu.Unlock()
			return
		}
		code, ok := l.classifier.Feed(ev)
		l.mu.Unlock()

		if ok && l.handler != nil {
			l.handler(types.ScanEvent{Code: code, Source: types.ScanSourceKeyboard, ScannedAt: ev.Time()})
		}
	}
}
