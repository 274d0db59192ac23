package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"fasttrack/pkg/types"
)

var (
	ErrScanCancelled = errors.New("scan cancelled")
	ErrScanTimeout   = errors.New("scan timed out")
)

const DefaultCameraTimeout = 30 * time.Second

// FrameDecoder returns the code found in the next camera frame, or "" when
// the frame held none. It blocks until a frame is available or ctx ends.
type FrameDecoder interface {
	Decode(ctx context.Context) (string, error)
}

type FrameDecoderFunc func(ctx context.Context) (string, error)

func (f FrameDecoderFunc) Decode(ctx context.Context) (string, error) {
	return f(ctx)
}

type CameraSession struct {
	Timeout time.Duration
}

// Run decodes frames until one yields a code. Cancelling ctx ends the
// session with ErrScanCancelled and no event.
func (s CameraSession) Run(ctx context.Context, decoder FrameDecoder) (types.ScanEvent, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultCameraTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if err := runCtx.Err(); err != nil {
			return types.ScanEvent{}, sessionError(ctx)
		}

		code, err := decoder.Decode(runCtx)
		if runCtx.Err() != nil {
			return types.ScanEvent{}, sessionError(ctx)
		}
		if err != nil {
			return types.ScanEvent{}, fmt.Errorf("failed to decode frame: %w", err)
		}

		if code = strings.TrimSpace(code); code != "" {
			return types.ScanEvent{Code: code, Source: types.ScanSourceCamera, ScannedAt: time.Now()}, nil
		}
	}
}

func sessionError(parent context.Context) error {
	if parent.Err() != nil {
		return ErrScanCancelled
	}
	return ErrScanTimeout
}

// LineDecoder reads decoder output one result per line, the way zbarcam
// prints it ("QR-Code:FAST-2026-42"). The symbology prefix is dropped.
// Close stops the reader goroutine once nothing calls Decode any more.
type LineDecoder struct {
	lines   chan lineResult
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

type lineResult struct {
	text string
	err  error
}

func NewLineDecoder(r io.Reader) *LineDecoder {
	d := &LineDecoder{
		lines:   make(chan lineResult),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go d.read(r)
	return d
}

func (d *LineDecoder) read(r io.Reader) {
	defer close(d.stopped)
	defer close(d.lines)

	send := func(res lineResult) bool {
		select {
		case d.lines <- res:
			return true
		case <-d.done:
			return false
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if !send(lineResult{text: scanner.Text()}) {
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	send(lineResult{err: err})
}

// Close releases the reader goroutine. A read already blocked on r stays
// blocked until r returns; close r as well to end it.
func (d *LineDecoder) Close() error {
	d.once.Do(func() { close(d.done) })
	return nil
}

func (d *LineDecoder) Decode(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-d.done:
		return "", io.EOF
	case res, ok := <-d.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		text := res.text
		if _, code, found := strings.Cut(text, ":"); found && isSymbology(text) {
			text = code
		}
		return text, nil
	}
}

func isSymbology(line string) bool {
	for _, prefix := range []string{"QR-Code:", "EAN-13:", "CODE-128:", "CODE-39:"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
