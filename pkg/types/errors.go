package types

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrReferenceDataUnavailable = errors.New("reference data unavailable")
	ErrLookupNotFound           = errors.New("not found")
	ErrSessionExpired           = errors.New("session expired")
	ErrNetwork                  = errors.New("network error")

	ErrUnknownDocumentType = errors.New("unknown document type")
	ErrUnknownPurpose      = errors.New("unknown purpose")
	ErrDocumentNotSelected = errors.New("document not selected")
	ErrDraftSubmitted      = errors.New("request already submitted")
	ErrSubmitInProgress    = errors.New("request is being submitted")
	ErrEmptyCode           = errors.New("scanned code is empty")
)

// FieldErrors maps a form field key to the message shown next to it.
type FieldErrors map[string]string

func (f FieldErrors) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidationError is a client-side field check failure. It is rendered
// inline and never sent to the registrar.
type ValidationError struct {
	Step   int
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %d has invalid fields: %s", e.Step, strings.Join(e.Fields.Keys(), ", "))
}

// APIError is a non-2xx response from the registrar. Body is kept verbatim.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("registrar api %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("registrar api %d", e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrLookupNotFound && e.Status == http.StatusNotFound
}

// SubmissionRejectedError is the registrar refusing a request-create call.
// ServerMessage is the response body exactly as received.
type SubmissionRejectedError struct {
	Status        int
	ServerMessage string
	Err           error
}

func (e *SubmissionRejectedError) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", e.Status, e.ServerMessage)
}

func (e *SubmissionRejectedError) Unwrap() error {
	return e.Err
}
