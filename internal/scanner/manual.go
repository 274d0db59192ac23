package scanner

import (
	"strings"
	"time"

	"fasttrack/pkg/types"
)

// NewEvent builds a scan event from text another channel already decoded,
// such as a camera frame decoded in the browser.
func NewEvent(code string, source types.ScanSource) (types.ScanEvent, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return types.ScanEvent{}, types.ErrEmptyCode
	}
	return types.ScanEvent{Code: code, Source: source, ScannedAt: time.Now()}, nil
}

// Manual is a code typed into the fallback field.
func Manual(code string) (types.ScanEvent, error) {
	return NewEvent(code, types.ScanSourceManual)
}
