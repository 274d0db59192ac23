package types

import (
	"fmt"
	"strconv"
	"strings"
)

type DocumentType struct {
	ID             int    `json:"doctype_id"`
	Name           string `json:"name"`
	Price          Money  `json:"price"`
	ProcessingTime string `json:"processing_time,omitempty"`
}

type Purpose struct {
	ID          int    `json:"purpose_id"`
	Description string `json:"description"`
}

// ReferenceData is the lookup data the request wizard needs before step 2.
type ReferenceData struct {
	DocumentTypes []DocumentType `json:"document_types"`
	Purposes      []Purpose      `json:"purposes"`
}

func (r *ReferenceData) DocumentType(id int) (DocumentType, bool) {
	for _, d := range r.DocumentTypes {
		if d.ID == id {
			return d, true
		}
	}
	return DocumentType{}, false
}

func (r *ReferenceData) Purpose(id int) (Purpose, bool) {
	for _, p := range r.Purposes {
		if p.ID == id {
			return p, true
		}
	}
	return Purpose{}, false
}

type DocumentSelection struct {
	DocTypeID   int
	Name        string
	UnitPrice   Money
	Copies      int
	PurposeID   int
	PurposeName string
}

func (s DocumentSelection) Subtotal() Money {
	return s.UnitPrice.Times(s.Copies)
}

func (s DocumentSelection) HasPurpose() bool {
	return s.PurposeID != 0
}

// TotalOf is the single pricing rule shared by the review step and the
// receipt view.
func TotalOf(selections []DocumentSelection) Money {
	var total Money
	for _, s := range selections {
		total += s.Subtotal()
	}
	return total
}

type RequestDraft struct {
	Identity        Identity
	Documents       []DocumentSelection
	Notes           string
	PrivacyAccepted bool
}

func (d *RequestDraft) Selection(docID int) (int, bool) {
	for i, s := range d.Documents {
		if s.DocTypeID == docID {
			return i, true
		}
	}
	return -1, false
}

type RequestedDocumentPayload struct {
	DocTypeID  int `json:"doctype_id"`
	CopyAmount int `json:"copy_amount"`
	PurposeID  int `json:"purpose_id"`
}

type CreateRequestPayload struct {
	FirstName          string                     `json:"first_name"`
	MiddleName         string                     `json:"middle_name"`
	LastName           string                     `json:"last_name"`
	StudentNumber      string                     `json:"student_number"`
	EmailAddress       string                     `json:"email_address"`
	MobileNumber       string                     `json:"mobile_number"`
	Notes              string                     `json:"notes"`
	RequestedDocuments []RequestedDocumentPayload `json:"requested_documents"`
}

type ReceiptLine struct {
	DocumentName string `json:"document_name"`
	Copies       int    `json:"copies"`
	PricePerCopy Money  `json:"price_per_copy"`
	Subtotal     Money  `json:"subtotal"`
	Purpose      string `json:"purpose"`
}

type Receipt struct {
	RequestID          int           `json:"request_id"`
	RequestNumber      string        `json:"request_number"`
	CreatedAt          string        `json:"created_at"`
	RequesterName      string        `json:"requester_name"`
	RequestedDocuments []ReceiptLine `json:"requested_documents"`
	TotalAmount        Money         `json:"total_amount"`
	ProcessingTime     string        `json:"processing_time"`
}

// LineTotal recomputes the receipt total from its itemized lines with the
// same rule the review step uses.
func (r *Receipt) LineTotal() Money {
	lines := make([]DocumentSelection, 0, len(r.RequestedDocuments))
	for _, l := range r.RequestedDocuments {
		lines = append(lines, DocumentSelection{Name: l.DocumentName, UnitPrice: l.PricePerCopy, Copies: l.Copies})
	}
	return TotalOf(lines)
}

const requestNumberPrefix = "FAST"

func FormatRequestNumber(year, requestID int) string {
	return fmt.Sprintf("%s-%d-%d", requestNumberPrefix, year, requestID)
}

// ParseRequestCode accepts a bare request id or a FAST-<year>-<id> request
// number, as printed on receipts and encoded in their QR codes.
func ParseRequestCode(code string) (int, error) {
	code = strings.TrimSpace(code)
	if parts := strings.Split(code, "-"); len(parts) == 3 && strings.EqualFold(parts[0], requestNumberPrefix) {
		code = parts[2]
	}

	id, err := strconv.Atoi(code)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a request number", ErrLookupNotFound, code)
	}
	return id, nil
}
