// Package wizard is the state machine behind the kiosk request wizard:
// identity, documents and review, then submission to the registrar.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"fasttrack/pkg/types"

	"github.com/sirupsen/logrus"
)

type Step int

const (
	StepIdentity Step = iota + 1
	StepDocuments
	StepReview
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepIdentity:
		return "identity"
	case StepDocuments:
		return "documents"
	case StepReview:
		return "review"
	case StepSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func (s Step) Valid() bool {
	return s >= StepIdentity && s <= StepSubmitted
}

const (
	MinCopies = 1
	MaxCopies = 10
)

// RegistrarAPI is the part of the registrar client the wizard calls.
type RegistrarAPI interface {
	ReferenceData(ctx context.Context) (*types.ReferenceData, error)
	CreateRequest(ctx context.Context, payload *types.CreateRequestPayload) (*types.Receipt, error)
}

type Controller struct {
	api    RegistrarAPI
	logger *logrus.Logger

	mu      sync.Mutex
	ref     *types.ReferenceData
	draft   types.RequestDraft
	step    Step
	errs    types.FieldErrors
	receipt *types.Receipt

	// set while CreateRequest is in flight; the lock is not held then
	submitting bool
}

func NewController(api RegistrarAPI, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controller{
		api:    api,
		logger: logger,
		step:   StepIdentity,
		errs:   types.FieldErrors{},
	}
}

// Initialize loads document types and purposes. A loaded set is kept for
// the controller's lifetime; after a failure the next call retries.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ref != nil {
		return nil
	}

	ref, err := c.api.ReferenceData(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrReferenceDataUnavailable, err)
	}
	if ref == nil || len(ref.DocumentTypes) == 0 || len(ref.Purposes) == 0 {
		return fmt.Errorf("%w: registrar returned an empty document or purpose list", types.ErrReferenceDataUnavailable)
	}

	c.ref = ref
	return nil
}

func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ref != nil
}

func (c *Controller) ReferenceData() *types.ReferenceData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ref
}

func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Draft returns a copy of the in-progress request.
func (c *Controller) Draft() types.RequestDraft {
	c.mu.Lock()
	defer c.mu.Unlock()

	draft := c.draft
	draft.Documents = append([]types.DocumentSelection(nil), c.draft.Documents...)
	return draft
}

// Errors returns the field errors from the most recent validation.
func (c *Controller) Errors() types.FieldErrors {
	c.mu.Lock()
	defer c.mu.Unlock()

	return copyErrors(c.errs)
}

func (c *Controller) Receipt() *types.Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipt
}

// ApplyScannedIdentity merges a card lookup into step 1. Non-empty fields
// overwrite whatever was typed.
func (c *Controller) ApplyScannedIdentity(scanned *types.ScannedIdentity) error {
	if scanned.IsEmpty() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepSubmitted {
		return types.ErrDraftSubmitted
	}

	id := &c.draft.Identity
	overwrite := func(dst *string, src string) {
		if src = strings.TrimSpace(src); src != "" {
			*dst = src
		}
	}
	overwrite(&id.FirstName, scanned.FirstName)
	overwrite(&id.MiddleName, scanned.MiddleName)
	overwrite(&id.LastName, scanned.LastName)
	overwrite(&id.StudentNumber, scanned.Number())
	overwrite(&id.Email, scanned.Email)

	if scanned.Enrolled {
		id.Relationship = types.RelationshipCurrent
		id.RelationshipResolved = true
	}

	for _, key := range []string{"first_name", "middle_name", "last_name", "student_number", "email", "relationship"} {
		delete(c.errs, key)
	}
	return nil
}

func (c *Controller) SetIdentity(identity types.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepSubmitted {
		return types.ErrDraftSubmitted
	}

	// a card-confirmed relationship sticks unless the form changes it
	if c.draft.Identity.RelationshipResolved && identity.Relationship == c.draft.Identity.Relationship {
		identity.RelationshipResolved = true
	}
	c.draft.Identity = identity
	return nil
}

func (c *Controller) SetNotes(notes string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepSubmitted {
		return types.ErrDraftSubmitted
	}
	c.draft.Notes = notes
	return nil
}

func (c *Controller) AcceptPrivacy(accepted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepSubmitted {
		return types.ErrDraftSubmitted
	}
	c.draft.PrivacyAccepted = accepted
	if accepted {
		delete(c.errs, "privacy")
	}
	return nil
}

// ToggleDocument selects a document with one copy and no purpose, or
// removes it when it is already selected.
func (c *Controller) ToggleDocument(docID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepSubmitted {
		return types.ErrDraftSubmitted
	}
	if c.ref == nil {
		return types.ErrReferenceDataUnavailable
	}

	if i, ok := c.draft.Selection(docID); ok {
		c.draft.Documents = append(c.draft.Documents[:i], c.draft.Documents[i+1:]...)
		delete(c.errs, PurposeKey(docID))
		return nil
	}

	doc, ok := c.ref.DocumentType(docID)
	if !ok {
		return fmt.Errorf("document %d: %w", docID, types.ErrUnknownDocumentType)
	}

	c.draft.Documents = append(c.draft.Documents, types.DocumentSelection{
		DocTypeID: doc.ID,
		Name:      doc.Name,
		UnitPrice: doc.Price,
		Copies:    MinCopies,
	})
	delete(c.errs, "documents")
	return nil
}

func (c *Controller) SetPurpose(docID, purposeID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepSubmitted {
		return types.ErrDraftSubmitted
	}
	if c.ref == nil {
		return types.ErrReferenceDataUnavailable
	}

	purpose, ok := c.ref.Purpose(purposeID)
	if !ok {
		return fmt.Errorf("purpose %d: %w", purposeID, types.ErrUnknownPurpose)
	}

	i, ok := c.draft.Selection(docID)
	if !ok {
		return fmt.Errorf("document %d: %w", docID, types.ErrDocumentNotSelected)
	}

	c.draft.Documents[i].PurposeID = purpose.ID
	c.draft.Documents[i].PurposeName = purpose.Description
	delete(c.errs, PurposeKey(docID))
	return nil
}

// SetCopies clamps n to the kiosk copy picker range.
func (c *Controller) SetCopies(docID, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepSubmitted {
		return types.ErrDraftSubmitted
	}

	i, ok := c.draft.Selection(docID)
	if !ok {
		return fmt.Errorf("document %d: %w", docID, types.ErrDocumentNotSelected)
	}

	c.draft.Documents[i].Copies = min(max(n, MinCopies), MaxCopies)
	return nil
}

func (c *Controller) ComputeTotal() types.Money {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.TotalOf(c.draft.Documents)
}

func (c *Controller) ValidateStep(step Step) types.FieldErrors {
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := c.validateLocked(step)
	c.errs = errs
	return copyErrors(errs)
}

func (c *Controller) validateLocked(step Step) types.FieldErrors {
	switch step {
	case StepIdentity:
		return validateIdentity(c.draft.Identity)
	case StepDocuments:
		return validateDocuments(c.draft.Documents)
	}
	return types.FieldErrors{}
}

// Advance validates the current step and moves forward when it passes.
// The review step is left only through Submit.
func (c *Controller) Advance() (Step, types.FieldErrors) {
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := c.advanceLocked()
	return c.step, errs
}

func (c *Controller) advanceLocked() types.FieldErrors {
	if c.step >= StepReview {
		return nil
	}

	errs := c.validateLocked(c.step)
	if c.step == StepIdentity && c.ref == nil {
		errs["documents"] = "The document list is unavailable. Please try again."
	}
	c.errs = errs
	if len(errs) > 0 {
		return copyErrors(errs)
	}

	c.step++
	return nil
}

func (c *Controller) Back() Step {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step > StepIdentity && c.step < StepSubmitted {
		c.step--
		c.errs = types.FieldErrors{}
	}
	return c.step
}

// GoTo moves to any earlier step freely. Moving forward goes through
// Advance one step at a time and stops at the first step that fails.
func (c *Controller) GoTo(target Step) (Step, types.FieldErrors) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !target.Valid() || target == StepSubmitted || c.step == StepSubmitted {
		return c.step, nil
	}

	if target < c.step {
		c.step = target
		c.errs = types.FieldErrors{}
		return c.step, nil
	}

	for c.step < target {
		if errs := c.advanceLocked(); len(errs) > 0 {
			return c.step, errs
		}
	}
	return c.step, nil
}

// Submit re-checks the whole draft and posts it. Validation failures
// never reach the network and move the wizard to the failing step. A
// rejected submission keeps the draft. The registrar call runs without
// the controller lock; a second Submit meanwhile gets
// types.ErrSubmitInProgress.
func (c *Controller) Submit(ctx context.Context) (*types.Receipt, error) {
	payload, total, err := c.beginSubmit()
	if err != nil {
		return nil, err
	}

	receipt, err := c.api.CreateRequest(ctx, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false

	if err != nil {
		var apiErr *types.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError && apiErr.Status != http.StatusUnauthorized {
			return nil, &types.SubmissionRejectedError{
				Status:        apiErr.Status,
				ServerMessage: string(apiErr.Body),
				Err:           err,
			}
		}
		return nil, fmt.Errorf("failed to submit request: %w", err)
	}

	if receipt.TotalAmount != 0 && receipt.TotalAmount != total {
		c.logger.WithFields(logrus.Fields{
			"request_id":     receipt.RequestID,
			"computed_total": total.String(),
			"receipt_total":  receipt.TotalAmount.String(),
		}).Warn("registrar total differs from computed total")
	}

	c.receipt = receipt
	c.draft = types.RequestDraft{}
	c.errs = types.FieldErrors{}
	c.step = StepSubmitted
	return receipt, nil
}

// beginSubmit validates the draft and snapshots the payload to post.
func (c *Controller) beginSubmit() (*types.CreateRequestPayload, types.Money, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.step == StepSubmitted:
		return nil, 0, types.ErrDraftSubmitted
	case c.submitting:
		return nil, 0, types.ErrSubmitInProgress
	}

	for _, step := range []Step{StepIdentity, StepDocuments} {
		if errs := c.validateLocked(step); len(errs) > 0 {
			c.errs = errs
			c.step = step
			return nil, 0, &types.ValidationError{Step: int(step), Fields: copyErrors(errs)}
		}
	}
	if !c.draft.PrivacyAccepted {
		c.errs = types.FieldErrors{"privacy": "Please accept the Data Privacy Act agreement to continue."}
		c.step = StepReview
		return nil, 0, &types.ValidationError{Step: int(StepReview), Fields: copyErrors(c.errs)}
	}

	c.submitting = true
	return BuildPayload(c.draft), types.TotalOf(c.draft.Documents), nil
}

func copyErrors(errs types.FieldErrors) types.FieldErrors {
	out := make(types.FieldErrors, len(errs))
	for k, v := range errs {
		out[k] = v
	}
	return out
}
