package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fasttrack/internal/scanner"
	"fasttrack/internal/wizard"
	"fasttrack/pkg/types"

	"github.com/go-playground/validator/v10"
)

const (
	msgCardNotFound    = "Student not found or card not registered."
	msgRequestNotFound = "No request matches that number."
	msgEmptyCode       = "Please enter or scan a code."
	msgStudentNotFound = "No requests match those details."
)

// maxHeldBatches bounds how many early key batches wait for a missing one.
const maxHeldBatches = 4

// kioskKeys is one kiosk's keystroke listener. Codes it completes are
// held until the request that fed the last key collects them.
type kioskKeys struct {
	listener *scanner.Listener
	feeding  sync.Mutex

	mu       sync.Mutex
	target   types.ScanTarget
	detach   func()
	pending  []types.ScanEvent
	lastSeen time.Time

	// the page numbers its batches from 1; next is the one due
	next int64
	held map[int64][]types.KeyEvent
}

func (k *kioskKeys) collect(ev types.ScanEvent) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pending = append(k.pending, ev)
}

func (k *kioskKeys) attach(target types.ScanTarget) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.target = target
	k.detach = k.listener.Attach()
	k.next = 1
	k.held = nil
}

func (k *kioskKeys) detachListener() {
	k.mu.Lock()
	detach := k.detach
	k.detach = nil
	k.mu.Unlock()

	if detach != nil {
		detach()
	}
}

func (k *kioskKeys) feed(seq int64, events []types.KeyEvent) ([]types.ScanEvent, types.ScanTarget) {
	k.feeding.Lock()
	defer k.feeding.Unlock()

	for _, batch := range k.order(seq, events) {
		k.listener.Keys(batch...)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	out := k.pending
	k.pending = nil
	return out, k.target
}

// order returns the batches that can be fed now, oldest first. A batch
// that overtook its predecessor is held until the predecessor arrives.
func (k *kioskKeys) order(seq int64, events []types.KeyEvent) [][]types.KeyEvent {
	k.mu.Lock()
	defer k.mu.Unlock()

	if seq <= 0 {
		return [][]types.KeyEvent{events}
	}
	if seq < k.next {
		// the page reloaded and started counting again
		k.next = seq
		k.held = nil
	}

	if k.held == nil {
		k.held = make(map[int64][]types.KeyEvent)
	}
	k.held[seq] = events

	if _, ok := k.held[k.next]; !ok {
		if len(k.held) <= maxHeldBatches {
			return nil
		}
		// the missing batch is not coming; resume from the oldest held
		oldest := seq
		for n := range k.held {
			oldest = min(oldest, n)
		}
		k.next = oldest
	}

	var ready [][]types.KeyEvent
	for {
		batch, ok := k.held[k.next]
		if !ok {
			break
		}
		delete(k.held, k.next)
		ready = append(ready, batch)
		k.next++
	}
	return ready
}

func (s *Service) kioskKeysFor(sessionID string) *kioskKeys {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()

	k, ok := s.keys[sessionID]
	if !ok {
		k = &kioskKeys{next: 1}
		gap := time.Duration(s.config.ScannerGapMS) * time.Millisecond
		k.listener = scanner.NewListener(scanner.NewKeystrokeBuffer(gap), k.collect)
		s.keys[sessionID] = k
	}
	k.lastSeen = time.Now()
	return k
}

// RunJanitor drops idle drafts and keystroke listeners until ctx ends.
func (s *Service) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	idle := time.Duration(s.config.DraftTTLMin) * time.Minute
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drafts.Sweep()

			s.keysMu.Lock()
			for id, k := range s.keys {
				if time.Since(k.lastSeen) > idle {
					delete(s.keys, id)
				}
			}
			s.keysMu.Unlock()
		}
	}
}

type scanKeysRequest struct {
	Seq  int64            `json:"seq,omitempty"`
	Keys []types.KeyEvent `json:"keys"`
}

type scanKeysResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// handlePostScanKeys receives keystrokes the kiosk page captured. The
// buffer decides whether they add up to a scanner burst. Batches carry a
// sequence number so a burst split across two requests is fed in order.
func (s *Service) handlePostScanKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := kioskSessionFromContext(ctx)

	var req scanKeysRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, scanKeysResponse{Status: "error", Message: "malformed key events"})
		return
	}

	events, target := s.kioskKeysFor(sessionID).feed(req.Seq, req.Keys)
	if len(events) == 0 {
		writeJSON(w, http.StatusOK, scanKeysResponse{Status: "pending"})
		return
	}

	// a burst only ever carries one code; the last one wins
	ev := events[len(events)-1]

	redirect, err := s.routeScan(ctx, sessionID, ev, target)
	if err != nil {
		status := "error"
		if errors.Is(err, types.ErrLookupNotFound) {
			status = "not_found"
		}
		writeJSON(w, http.StatusOK, scanKeysResponse{Status: status, Message: scanMessage(err, target)})
		return
	}

	writeJSON(w, http.StatusOK, scanKeysResponse{Status: "ok", Redirect: redirect})
}

// handlePostScan takes a code from the manual field or from a camera frame
// the browser decoded.
func (s *Service) handlePostScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		s.logger.WithError(err).Error("failed to parse form")
		s.redirectWithError(w, r, "/", "The scan could not be read. Please try again.")
		return
	}

	target := types.ScanTarget(r.PostForm.Get("target"))
	if target != types.ScanTargetStatus {
		target = types.ScanTargetIdentity
	}

	var (
		ev  types.ScanEvent
		err error
	)
	switch types.ScanSource(r.PostForm.Get("source")) {
	case types.ScanSourceCamera:
		ev, err = scanner.NewEvent(r.PostForm.Get("code"), types.ScanSourceCamera)
	default:
		ev, err = scanner.Manual(r.PostForm.Get("code"))
	}

	if err == nil {
		var redirect string
		redirect, err = s.routeScan(ctx, kioskSessionFromContext(ctx), ev, target)
		if err == nil {
			http.Redirect(w, r, redirect, http.StatusSeeOther)
			return
		}
	}

	back := stepPath(wizard.StepIdentity)
	if target == types.ScanTargetStatus {
		back = "/kiosk/status"
	}

	v := url.Values{}
	v.Set("scan_error", scanMessage(err, target))
	http.Redirect(w, r, back+"?"+v.Encode(), http.StatusSeeOther)
}

// routeScan resolves a card into the kiosk's wizard, or hands a request
// code to the status page, and returns where the browser goes next.
func (s *Service) routeScan(ctx context.Context, sessionID string, ev types.ScanEvent, target types.ScanTarget) (string, error) {
	if target == types.ScanTargetStatus {
		return "/kiosk/status?" + url.Values{"code": {ev.Code}}.Encode(), nil
	}

	c := s.drafts.GetOrStart(sessionID)
	if c.Step() == wizard.StepSubmitted {
		c = s.drafts.Start(sessionID)
	}
	if !c.Ready() {
		if err := c.Initialize(ctx); err != nil {
			s.logger.WithError(err).Warn("reference data not loaded before card scan")
		}
	}

	if _, err := s.scans.Route(ctx, ev, types.ScanTargetIdentity, c); err != nil {
		return "", err
	}

	c.GoTo(wizard.StepIdentity)
	return stepPath(wizard.StepIdentity), nil
}

func scanMessage(err error, target types.ScanTarget) string {
	switch {
	case errors.Is(err, types.ErrEmptyCode):
		return msgEmptyCode
	case errors.Is(err, scanner.ErrTooManyScans):
		return "Too many scans. Please wait a moment and try again."
	case errors.Is(err, types.ErrLookupNotFound) && target == types.ScanTargetStatus:
		return msgRequestNotFound
	case errors.Is(err, types.ErrLookupNotFound):
		return msgCardNotFound
	}
	return msgRegistrarUnreachable
}

func (s *Service) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.kioskKeysFor(kioskSessionFromContext(ctx)).attach(types.ScanTargetStatus)

	code := strings.TrimSpace(r.URL.Query().Get("code"))
	data := &types.StatusPageData{
		BasePageData: types.BasePageData{
			Title: "Check request status",
			Error: strings.TrimSpace(r.URL.Query().Get("scan_error")),
		},
		Code:     code,
		Statuses: types.RequestStatuses,
	}

	if code == "" {
		if err := s.renderTemplate(w, r, "page.kiosk.status", data); err != nil {
			s.logger.WithError(err).Error("failed to render status page")
			s.internalServerError(w)
		}
		return
	}

	ev, err := scanner.Manual(code)
	if err == nil {
		var res *scanner.Result
		res, err = s.scans.Route(ctx, ev, types.ScanTargetStatus, nil)
		if err == nil {
			data.Record = res.Record
			if data.Record.RequestNumber == "" {
				data.Record.RequestNumber = types.FormatRequestNumber(receiptYear(data.Record.DateRequested), data.Record.RequestID)
			}
		}
	}

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, types.ErrLookupNotFound):
		data.NotFound = true
		data.Error = msgRequestNotFound
		status = http.StatusNotFound
	case errors.Is(err, scanner.ErrTooManyScans):
		data.Error = scanMessage(err, types.ScanTargetStatus)
		status = http.StatusTooManyRequests
	default:
		s.logger.WithError(err).WithField("code", code).Error("failed to look up request status")
		data.Error = msgRegistrarUnreachable
		status = http.StatusBadGateway
	}

	s.renderStatus(w, r, status, "page.kiosk.status", data)
}

func (s *Service) handlePostStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.logger.WithError(err).Error("failed to parse form")
		s.redirectWithError(w, r, "/kiosk/status", "The form could not be read. Please try again.")
		return
	}

	code := strings.TrimSpace(r.PostForm.Get("code"))
	if code == "" {
		v := url.Values{}
		v.Set("scan_error", msgEmptyCode)
		http.Redirect(w, r, "/kiosk/status?"+v.Encode(), http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/kiosk/status?"+url.Values{"code": {code}}.Encode(), http.StatusSeeOther)
}

var studentLookupLabels = map[string]string{
	"first_name":     "First name",
	"last_name":      "Last name",
	"student_number": "Student number",
}

// handlePostStatusByStudent lists a student's requests for someone who
// no longer has their receipt.
func (s *Service) handlePostStatusByStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &types.StatusPageData{
		BasePageData: types.BasePageData{Title: "Check request status"},
		Statuses:     types.RequestStatuses,
		FieldErrors:  types.FieldErrors{},
	}

	if err := r.ParseForm(); err != nil {
		s.logger.WithError(err).Error("failed to parse form")
		data.Error = "The form could not be read. Please try again."
		s.renderStatus(w, r, http.StatusBadRequest, "page.kiosk.status", data)
		return
	}

	var lookup types.StudentLookup
	if err := decoder.Decode(&lookup, r.PostForm); err != nil {
		s.logger.WithError(err).Error("failed to decode student lookup form")
		s.internalServerError(w)
		return
	}
	lookup = lookup.Trimmed()
	data.Lookup = lookup

	if err := validate.Struct(lookup); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				label := studentLookupLabels[fe.Field()]
				if fe.Tag() == "max" {
					data.FieldErrors[fe.Field()] = label + " is too long."
					continue
				}
				data.FieldErrors[fe.Field()] = label + " is required."
			}
		}
		s.renderStatus(w, r, http.StatusUnprocessableEntity, "page.kiosk.status", data)
		return
	}

	student, err := s.api.CheckRequestByStudent(ctx, lookup)
	status := http.StatusOK
	switch {
	case err == nil:
		data.Student = student
	case errors.Is(err, types.ErrLookupNotFound):
		data.NotFound = true
		data.Error = msgStudentNotFound
		status = http.StatusNotFound
	default:
		s.logger.WithError(err).WithField("student_number", lookup.StudentNumber).Error("failed to look up requests by student")
		data.Error = msgRegistrarUnreachable
		status = http.StatusBadGateway
	}

	s.renderStatus(w, r, status, "page.kiosk.status", data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
