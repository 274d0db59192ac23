package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"fasttrack/pkg/types"
)

// DeviceReader reads a keyboard-emulating scanner exposed as a character
// stream (a tty, hidraw bridge or stdin). Each rune is timestamped on
// arrival and fed to the listener; a newline is Enter.
type DeviceReader struct {
	r        io.Reader
	listener *Listener
	now      func() time.Time
}

func NewDeviceReader(r io.Reader, listener *Listener) *DeviceReader {
	return &DeviceReader{r: r, listener: listener, now: time.Now}
}

// Run reads until EOF or ctx ends. A blocked read only returns once the
// underlying reader does, so callers close the device to stop it promptly.
func (d *DeviceReader) Run(ctx context.Context) error {
	detach := d.listener.Attach()
	defer detach()

	br := bufio.NewReader(d.r)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		r, _, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read scanner device: %w", err)
		}

		key := string(r)
		switch r {
		case '\r':
			continue
		case '\n':
			key = types.KeyEnter
		}

		d.listener.Keys(types.KeyEvent{Key: key, At: d.now()})
	}
}
