package types

import (
	"testing"

	"fasttrack/internal/utils"

	"github.com/stretchr/testify/assert"
)

func TestParseRequestStatus(t *testing.T) {
	tests := map[string]RequestStatus{
		"requested":        StatusRequested,
		"Request Received": StatusReceived,
		" Processing ":     StatusProcessing,
		"RELEASED":         StatusReleased,
		"cancelled":        0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseRequestStatus(in), in)
	}
}

func TestRecordPercent(t *testing.T) {
	r := &RequestRecord{StatusLabel: "released"}
	assert.Equal(t, 75, r.Percent())

	r.CompletionPercent = utils.IntPtr(60)
	assert.Equal(t, 60, r.Percent())

	unknown := &RequestRecord{StatusLabel: "on hold"}
	assert.Equal(t, 0, unknown.Percent())
	assert.Equal(t, "Unknown", unknown.Status().String())
}

func TestRequesterName(t *testing.T) {
	r := &RequestRecord{FirstName: "Maria", LastName: ""}
	assert.Equal(t, "Maria", r.RequesterName())
}
