package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fasttrack/internal/wizard"
	"fasttrack/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	msgReferenceUnavailable = "We could not load the list of documents. Please try again."
	msgRegistrarUnreachable = "We could not reach the registrar. Please try again."
)

var wizardTemplates = map[wizard.Step]string{
	wizard.StepIdentity:  "page.kiosk.identity",
	wizard.StepDocuments: "page.kiosk.documents",
	wizard.StepReview:    "page.kiosk.review",
}

func stepPath(step wizard.Step) string {
	return fmt.Sprintf("/kiosk/request/step/%d", step)
}

func receiptPath(requestID int) string {
	return fmt.Sprintf("/kiosk/receipt/%d", requestID)
}

func (s *Service) handleStartRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c := s.drafts.Start(kioskSessionFromContext(ctx))
	if err := c.Initialize(ctx); err != nil {
		s.renderUnavailable(w, r, err)
		return
	}

	http.Redirect(w, r, stepPath(wizard.StepIdentity), http.StatusSeeOther)
}

func (s *Service) renderUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.WithError(err).Error("failed to load request reference data")

	data := &types.UnavailablePageData{
		BasePageData: types.BasePageData{
			Title: "Service unavailable",
			Error: msgReferenceUnavailable,
		},
		RetryURL: "/kiosk/request",
	}
	s.renderStatus(w, r, http.StatusServiceUnavailable, "page.kiosk.unavailable", data)
}

// wizardFor returns this kiosk's live wizard, or redirects to where the
// browser should be instead.
func (s *Service) wizardFor(w http.ResponseWriter, r *http.Request) (*wizard.Controller, bool) {
	c, ok := s.drafts.Get(kioskSessionFromContext(r.Context()))
	if !ok {
		http.Redirect(w, r, "/kiosk/request", http.StatusSeeOther)
		return nil, false
	}

	if c.Step() == wizard.StepSubmitted {
		if receipt := c.Receipt(); receipt != nil {
			http.Redirect(w, r, receiptPath(receipt.RequestID), http.StatusSeeOther)
		} else {
			http.Redirect(w, r, "/kiosk/request", http.StatusSeeOther)
		}
		return nil, false
	}

	return c, true
}

func parseStep(r *http.Request) (wizard.Step, bool) {
	n, err := strconv.Atoi(r.PathValue("step"))
	if err != nil {
		return 0, false
	}

	step := wizard.Step(n)
	return step, step.Valid() && step != wizard.StepSubmitted
}

func (s *Service) handleGetRequestStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	target, ok := parseStep(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	c, ok := s.wizardFor(w, r)
	if !ok {
		return
	}

	if !c.Ready() {
		if err := c.Initialize(ctx); err != nil {
			s.renderUnavailable(w, r, err)
			return
		}
	}

	if step, _ := c.GoTo(target); step != target {
		http.Redirect(w, r, stepPath(step), http.StatusSeeOther)
		return
	}

	s.renderWizard(w, r, c, http.StatusOK, "")
}

func (s *Service) handlePostRequestStep(w http.ResponseWriter, r *http.Request) {
	target, ok := parseStep(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	c, ok := s.wizardFor(w, r)
	if !ok {
		return
	}

	if step, _ := c.GoTo(target); step != target {
		http.Redirect(w, r, stepPath(step), http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		s.logger.WithError(err).Error("failed to parse form")
		s.renderWizard(w, r, c, http.StatusBadRequest, "The form could not be read. Please try again.")
		return
	}

	var err error
	switch target {
	case wizard.StepIdentity:
		var identity types.Identity
		if err = decoder.Decode(&identity, r.PostForm); err == nil {
			err = c.SetIdentity(identity)
		}
	case wizard.StepDocuments:
		err = s.applyDocumentsForm(c, r.PostForm)
	case wizard.StepReview:
		err = c.AcceptPrivacy(checked(r.PostForm, "privacy"))
	}
	if err != nil {
		s.logger.WithError(err).WithField("step", target.String()).Error("failed to apply wizard form")
		s.renderWizard(w, r, c, http.StatusBadRequest, "The form could not be read. Please try again.")
		return
	}

	if target == wizard.StepReview {
		http.Redirect(w, r, stepPath(wizard.StepReview), http.StatusSeeOther)
		return
	}

	step, errs := c.Advance()
	if len(errs) > 0 {
		s.renderWizard(w, r, c, http.StatusUnprocessableEntity, "")
		return
	}

	http.Redirect(w, r, stepPath(step), http.StatusSeeOther)
}

type documentsForm struct {
	Copies   map[int]int `form:"copies"`
	Purposes map[int]int `form:"purpose"`
	Notes    string      `form:"notes"`
}

// applyDocumentsForm saves copies, purposes and notes from the step 2 form.
// Lines that were deselected in the meantime are skipped.
func (s *Service) applyDocumentsForm(c *wizard.Controller, values url.Values) error {
	var f documentsForm
	if err := decoder.Decode(&f, values); err != nil {
		return fmt.Errorf("failed to decode documents form: %w", err)
	}

	for docID, copies := range f.Copies {
		if err := c.SetCopies(docID, copies); err != nil && !errors.Is(err, types.ErrDocumentNotSelected) {
			return err
		}
	}

	for docID, purposeID := range f.Purposes {
		if purposeID == 0 {
			continue
		}

		err := c.SetPurpose(docID, purposeID)
		switch {
		case err == nil, errors.Is(err, types.ErrDocumentNotSelected):
		case errors.Is(err, types.ErrUnknownPurpose):
			s.logger.WithFields(logrus.Fields{"doc_id": docID, "purpose_id": purposeID}).Warn("ignoring unknown purpose")
		default:
			return err
		}
	}

	if _, ok := values["notes"]; ok {
		return c.SetNotes(f.Notes)
	}
	return nil
}

func (s *Service) handlePostToggleDocument(w http.ResponseWriter, r *http.Request) {
	c, ok := s.wizardFor(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		s.logger.WithError(err).Error("failed to parse form")
		s.renderWizard(w, r, c, http.StatusBadRequest, "The form could not be read. Please try again.")
		return
	}

	if err := s.applyDocumentsForm(c, r.PostForm); err != nil {
		s.logger.WithError(err).Error("failed to apply documents form")
	}

	docID, err := strconv.Atoi(r.PostForm.Get("doc_id"))
	if err == nil {
		err = c.ToggleDocument(docID)
	}
	if err != nil {
		s.logger.WithError(err).WithField("doc_id", r.PostForm.Get("doc_id")).Warn("failed to toggle document")
		s.redirectWithError(w, r, stepPath(wizard.StepDocuments), "That document is not available.")
		return
	}

	http.Redirect(w, r, stepPath(wizard.StepDocuments), http.StatusSeeOther)
}

func (s *Service) handlePostRequestBack(w http.ResponseWriter, r *http.Request) {
	c, ok := s.wizardFor(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err == nil && c.Step() == wizard.StepDocuments {
		if err := s.applyDocumentsForm(c, r.PostForm); err != nil {
			s.logger.WithError(err).Warn("failed to keep documents form before going back")
		}
	}

	http.Redirect(w, r, stepPath(c.Back()), http.StatusSeeOther)
}

func (s *Service) handlePostSubmitRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, ok := s.wizardFor(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		s.logger.WithError(err).Error("failed to parse form")
		s.renderWizard(w, r, c, http.StatusBadRequest, "The form could not be read. Please try again.")
		return
	}

	if err := c.AcceptPrivacy(checked(r.PostForm, "privacy")); err != nil {
		s.logger.WithError(err).Error("failed to record privacy acceptance")
	}

	receipt, err := c.Submit(ctx)

	var (
		verr     *types.ValidationError
		rejected *types.SubmissionRejectedError
	)
	switch {
	case err == nil:
		s.logger.WithFields(logrus.Fields{
			"request_id":     receipt.RequestID,
			"request_number": receipt.RequestNumber,
		}).Info("document request submitted")
		http.Redirect(w, r, receiptPath(receipt.RequestID), http.StatusSeeOther)

	case errors.As(err, &verr):
		if wizard.Step(verr.Step) == wizard.StepReview {
			s.renderWizard(w, r, c, http.StatusUnprocessableEntity, "")
			return
		}
		http.Redirect(w, r, stepPath(wizard.Step(verr.Step)), http.StatusSeeOther)

	case errors.As(err, &rejected):
		s.logger.WithError(err).WithField("status", rejected.Status).Warn("registrar rejected document request")
		s.renderWizard(w, r, c, http.StatusUnprocessableEntity, rejected.ServerMessage)

	case errors.Is(err, types.ErrDraftSubmitted):
		http.Redirect(w, r, "/kiosk/request", http.StatusSeeOther)

	case errors.Is(err, types.ErrSubmitInProgress):
		s.renderWizard(w, r, c, http.StatusConflict, "Your request is already being submitted. Please wait.")

	default:
		s.logger.WithError(err).Error("failed to submit document request")
		s.renderWizard(w, r, c, http.StatusBadGateway, msgRegistrarUnreachable)
	}
}

func (s *Service) renderWizard(w http.ResponseWriter, r *http.Request, c *wizard.Controller, status int, errMsg string) {
	step := c.Step()
	sessionID := kioskSessionFromContext(r.Context())

	keys := s.kioskKeysFor(sessionID)
	if step == wizard.StepIdentity {
		keys.attach(types.ScanTargetIdentity)
	} else {
		keys.detachListener()
	}

	if errMsg == "" {
		errMsg = strings.TrimSpace(r.URL.Query().Get("error"))
	}

	draft := c.Draft()
	selected := make(map[int]bool, len(draft.Documents))
	for _, d := range draft.Documents {
		selected[d.DocTypeID] = true
	}

	data := &types.WizardPageData{
		BasePageData: types.BasePageData{
			Title:  "Request documents",
			Notice: strings.TrimSpace(r.URL.Query().Get("notice")),
			Error:  errMsg,
		},
		Step:          int(step),
		Steps:         wizardSteps(step),
		Draft:         draft,
		Reference:     c.ReferenceData(),
		Selected:      selected,
		FieldErrors:   c.Errors(),
		Total:         c.ComputeTotal(),
		Relationships: types.Relationships,
		CopyOptions:   copyOptions(),
		ScanError:     strings.TrimSpace(r.URL.Query().Get("scan_error")),
	}

	s.renderStatus(w, r, status, wizardTemplates[step], data)
}

func wizardSteps(current wizard.Step) []types.WizardStepData {
	steps := []types.WizardStepData{
		{Number: int(wizard.StepIdentity), Label: "Your information"},
		{Number: int(wizard.StepDocuments), Label: "Documents"},
		{Number: int(wizard.StepReview), Label: "Review"},
	}
	for i := range steps {
		steps[i].Active = steps[i].Number == int(current)
		steps[i].Done = steps[i].Number < int(current)
	}
	return steps
}

func copyOptions() []int {
	out := make([]int, 0, wizard.MaxCopies)
	for n := wizard.MinCopies; n <= wizard.MaxCopies; n++ {
		out = append(out, n)
	}
	return out
}

func checked(values url.Values, key string) bool {
	switch strings.ToLower(values.Get(key)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func (s *Service) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.kioskKeysFor(kioskSessionFromContext(ctx)).detachListener()

	requestID, err := types.ParseRequestCode(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	receipt, err := s.api.Receipt(ctx, requestID)
	if err != nil {
		data := &types.ReceiptPageData{BasePageData: types.BasePageData{Title: "Receipt"}}
		if errors.Is(err, types.ErrLookupNotFound) {
			data.Error = "We could not find that request."
			s.renderStatus(w, r, http.StatusNotFound, "page.kiosk.receipt", data)
			return
		}

		s.logger.WithError(err).WithField("request_id", requestID).Error("failed to fetch receipt")
		data.Error = msgRegistrarUnreachable
		s.renderStatus(w, r, http.StatusBadGateway, "page.kiosk.receipt", data)
		return
	}

	if receipt.RequestNumber == "" {
		receipt.RequestNumber = types.FormatRequestNumber(receiptYear(receipt.CreatedAt), receipt.RequestID)
	}

	total := receipt.LineTotal()
	if receipt.TotalAmount != 0 && receipt.TotalAmount != total {
		s.logger.WithFields(logrus.Fields{
			"request_id":    receipt.RequestID,
			"line_total":    total.String(),
			"receipt_total": receipt.TotalAmount.String(),
		}).Warn("receipt total differs from itemized lines")
	}

	data := &types.ReceiptPageData{
		BasePageData: types.BasePageData{Title: "Receipt " + receipt.RequestNumber},
		Receipt:      receipt,
		Total:        total,
	}
	if err := s.renderTemplate(w, r, "page.kiosk.receipt", data); err != nil {
		s.logger.WithError(err).Error("failed to render receipt page")
		s.internalServerError(w)
		return
	}
}

func receiptYear(createdAt string) int {
	if len(createdAt) >= 4 {
		if year, err := strconv.Atoi(createdAt[:4]); err == nil {
			return year
		}
	}
	return time.Now().Year()
}
