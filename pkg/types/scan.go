package types

import "time"

type ScanSource string

const (
	ScanSourceKeyboard ScanSource = "keyboard"
	ScanSourceCamera   ScanSource = "camera"
	ScanSourceManual   ScanSource = "manual"
)

// ScanTarget says what a scanned code should be looked up as.
type ScanTarget string

const (
	// ScanTargetIdentity is an RFID card; the result autofills the wizard.
	ScanTargetIdentity ScanTarget = "identity"
	// ScanTargetStatus is a receipt QR code or request number.
	ScanTargetStatus ScanTarget = "status"
)

type ScanEvent struct {
	Code      string
	Source    ScanSource
	ScannedAt time.Time
}

type KeyEvent struct {
	Key string    `json:"key"`
	At  time.Time `json:"-"`
	// AtMS is the page-side timestamp in milliseconds for forwarded keys.
	AtMS int64 `json:"at_ms"`
}

const KeyEnter = "Enter"

// Time prefers the server-side timestamp and falls back to the page's.
func (e KeyEvent) Time() time.Time {
	if !e.At.IsZero() {
		return e.At
	}
	return time.UnixMilli(e.AtMS)
}
