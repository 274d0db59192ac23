package wizard

import (
	"strings"

	"fasttrack/pkg/types"
)

// BuildPayload maps a draft to the request-create body. Every selection
// carries its own purpose.
func BuildPayload(draft types.RequestDraft) *types.CreateRequestPayload {
	id := draft.Identity.Trimmed()

	payload := &types.CreateRequestPayload{
		FirstName:          id.FirstName,
		MiddleName:         id.MiddleName,
		LastName:           id.LastName,
		StudentNumber:      id.StudentNumber,
		EmailAddress:       id.Email,
		MobileNumber:       id.Phone,
		Notes:              strings.TrimSpace(draft.Notes),
		RequestedDocuments: make([]types.RequestedDocumentPayload, 0, len(draft.Documents)),
	}

	for _, s := range draft.Documents {
		payload.RequestedDocuments = append(payload.RequestedDocuments, types.RequestedDocumentPayload{
			DocTypeID:  s.DocTypeID,
			CopyAmount: s.Copies,
			PurposeID:  s.PurposeID,
		})
	}
	return payload
}
