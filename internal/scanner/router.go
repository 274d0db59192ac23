package scanner

import (
	"context"
	"errors"
	"fmt"

	"fasttrack/pkg/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var ErrTooManyScans = errors.New("too many scans, please wait a moment")

// Lookup is the part of the registrar client scans resolve against.
type Lookup interface {
	LookupRFID(ctx context.Context, rfid string) (*types.ScannedIdentity, error)
	CheckRequestQR(ctx context.Context, requestID int) (*types.RequestRecord, error)
}

// IdentitySink receives a resolved card, normally the kiosk's wizard.
type IdentitySink interface {
	ApplyScannedIdentity(identity *types.ScannedIdentity) error
}

type Result struct {
	Event    types.ScanEvent
	Target   types.ScanTarget
	Identity *types.ScannedIdentity
	Record   *types.RequestRecord
}

type Router struct {
	lookup  Lookup
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewRouter allows perSecond lookups with a burst of the same size.
// perSecond <= 0 disables the limit.
func NewRouter(lookup Lookup, perSecond float64, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), max(int(perSecond), 1))
	}

	return &Router{lookup: lookup, limiter: limiter, logger: logger}
}

// Route resolves a scan. Identity scans are applied to sink when one is
// given; status scans accept a bare request id or a FAST request number.
// Unknown cards and requests match types.ErrLookupNotFound.
func (r *Router) Route(ctx context.Context, ev types.ScanEvent, target types.ScanTarget, sink IdentitySink) (*Result, error) {
	if ev.Code == "" {
		return nil, types.ErrEmptyCode
	}
	if !r.limiter.Allow() {
		return nil, ErrTooManyScans
	}

	entry := r.logger.WithFields(logrus.Fields{
		"source": ev.Source,
		"target": target,
	})

	result := &Result{Event: ev, Target: target}

	switch target {
	case types.ScanTargetIdentity:
		identity, err := r.lookup.LookupRFID(ctx, ev.Code)
		if err != nil {
			entry.WithError(err).Info("card lookup failed")
			return nil, fmt.Errorf("failed to look up card: %w", err)
		}
		result.Identity = identity

		if sink != nil {
			if err := sink.ApplyScannedIdentity(identity); err != nil {
				return nil, fmt.Errorf("failed to apply scanned identity: %w", err)
			}
		}

	case types.ScanTargetStatus:
		id, err := types.ParseRequestCode(ev.Code)
		if err != nil {
			return nil, err
		}

		record, err := r.lookup.CheckRequestQR(ctx, id)
		if err != nil {
			entry.WithError(err).WithField("request_id", id).Info("request lookup failed")
			return nil, fmt.Errorf("failed to look up request %d: %w", id, err)
		}
		result.Record = record

	default:
		return nil, fmt.Errorf("unknown scan target %q", target)
	}

	entry.Debug("scan routed")
	return result, nil
}
