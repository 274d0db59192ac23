package scanner

import (
	"context"
	"net/http"
	"testing"

	"fasttrack/pkg/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	cards    map[string]*types.ScannedIdentity
	requests map[int]*types.RequestRecord
	calls    int
}

func (f *fakeLookup) LookupRFID(ctx context.Context, rfid string) (*types.ScannedIdentity, error) {
	f.calls++
	if id, ok := f.cards[rfid]; ok {
		return id, nil
	}
	return nil, &types.APIError{Status: http.StatusNotFound}
}

func (f *fakeLookup) CheckRequestQR(ctx context.Context, requestID int) (*types.RequestRecord, error) {
	f.calls++
	if rec, ok := f.requests[requestID]; ok {
		return rec, nil
	}
	return nil, &types.APIError{Status: http.StatusNotFound}
}

type recordingSink struct {
	applied []*types.ScannedIdentity
}

func (s *recordingSink) ApplyScannedIdentity(id *types.ScannedIdentity) error {
	s.applied = append(s.applied, id)
	return nil
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		cards: map[string]*types.ScannedIdentity{
			"0012345678": {StudentNumber: "20-1234-567", FirstName: "Maria", LastName: "Santos", Enrolled: true},
		},
		requests: map[int]*types.RequestRecord{
			42: {RequestID: 42, RequestNumber: "FAST-2026-42", StatusLabel: "processing"},
		},
	}
}

func TestRouteIdentity(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRouter(newFakeLookup(), 0, logger)
	sink := &recordingSink{}

	res, err := r.Route(context.Background(), types.ScanEvent{Code: "0012345678", Source: types.ScanSourceKeyboard}, types.ScanTargetIdentity, sink)
	require.NoError(t, err)
	assert.Equal(t, "Maria", res.Identity.FirstName)
	require.Len(t, sink.applied, 1)

	_, err = r.Route(context.Background(), types.ScanEvent{Code: "ffff"}, types.ScanTargetIdentity, sink)
	assert.ErrorIs(t, err, types.ErrLookupNotFound)
	assert.Len(t, sink.applied, 1)
}

func TestRouteStatus(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRouter(newFakeLookup(), 0, logger)

	for _, code := range []string{"42", "FAST-2026-42", "fast-2026-42"} {
		res, err := r.Route(context.Background(), types.ScanEvent{Code: code}, types.ScanTargetStatus, nil)
		require.NoError(t, err, code)
		assert.Equal(t, types.StatusProcessing, res.Record.Status())
		assert.Equal(t, 50, res.Record.Percent())
	}

	_, err := r.Route(context.Background(), types.ScanEvent{Code: "FAST-2026-7"}, types.ScanTargetStatus, nil)
	assert.ErrorIs(t, err, types.ErrLookupNotFound)

	_, err = r.Route(context.Background(), types.ScanEvent{Code: "not a number"}, types.ScanTargetStatus, nil)
	assert.ErrorIs(t, err, types.ErrLookupNotFound)

	_, err = r.Route(context.Background(), types.ScanEvent{}, types.ScanTargetStatus, nil)
	assert.ErrorIs(t, err, types.ErrEmptyCode)
}

func TestRouteRateLimit(t *testing.T) {
	lookup := newFakeLookup()
	r := NewRouter(lookup, 1, nil)

	ev := types.ScanEvent{Code: "42"}
	_, err := r.Route(context.Background(), ev, types.ScanTargetStatus, nil)
	require.NoError(t, err)

	_, err = r.Route(context.Background(), ev, types.ScanTargetStatus, nil)
	assert.ErrorIs(t, err, ErrTooManyScans)
	assert.Equal(t, 1, lookup.calls)
}
