package wizard

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"fasttrack/pkg/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	docTOR      = 1
	docDiploma  = 2
	purposeWork = 10
	purposeVisa = 11
)

type fakeRegistrar struct {
	ref       *types.ReferenceData
	refErr    error
	refCalls  int
	receipt   *types.Receipt
	createErr error
	payloads  []*types.CreateRequestPayload
}

func (f *fakeRegistrar) ReferenceData(ctx context.Context) (*types.ReferenceData, error) {
	f.refCalls++
	if f.refErr != nil {
		return nil, f.refErr
	}
	return f.ref, nil
}

func (f *fakeRegistrar) CreateRequest(ctx context.Context, payload *types.CreateRequestPayload) (*types.Receipt, error) {
	f.payloads = append(f.payloads, payload)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.receipt, nil
}

// slowRegistrar holds CreateRequest until release is closed.
type slowRegistrar struct {
	*fakeRegistrar
	entered chan struct{}
	release chan struct{}
}

func (f *slowRegistrar) CreateRequest(ctx context.Context, payload *types.CreateRequestPayload) (*types.Receipt, error) {
	close(f.entered)
	<-f.release
	return f.fakeRegistrar.CreateRequest(ctx, payload)
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{
		ref: &types.ReferenceData{
			DocumentTypes: []types.DocumentType{
				{ID: docTOR, Name: "Transcript of Records", Price: types.MoneyFromFloat(100)},
				{ID: docDiploma, Name: "Diploma", Price: types.MoneyFromFloat(350.50)},
			},
			Purposes: []types.Purpose{
				{ID: purposeWork, Description: "Employment"},
				{ID: purposeVisa, Description: "Visa application"},
			},
		},
		receipt: &types.Receipt{RequestID: 42, RequestNumber: "FAST-2026-42", TotalAmount: types.MoneyFromFloat(200)},
	}
}

func validIdentity() types.Identity {
	return types.Identity{
		FirstName:     "Maria",
		LastName:      "Santos",
		StudentNumber: "20-1234-567",
		Email:         "maria.santos@example.com",
		Phone:         "09171234567",
		Relationship:  types.RelationshipCurrent,
	}
}

func newTestController(t *testing.T, api RegistrarAPI) *Controller {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c := NewController(api, logger)
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

func TestInitialize(t *testing.T) {
	t.Run("caches reference data", func(t *testing.T) {
		api := newFakeRegistrar()
		c := newTestController(t, api)

		require.NoError(t, c.Initialize(context.Background()))
		assert.Equal(t, 1, api.refCalls)
		assert.True(t, c.Ready())
	})

	t.Run("failure blocks step 2 and can be retried", func(t *testing.T) {
		api := newFakeRegistrar()
		api.refErr = types.ErrNetwork

		logger, _ := test.NewNullLogger()
		c := NewController(api, logger)

		err := c.Initialize(context.Background())
		require.ErrorIs(t, err, types.ErrReferenceDataUnavailable)
		assert.False(t, c.Ready())

		require.NoError(t, c.SetIdentity(validIdentity()))
		step, errs := c.Advance()
		assert.Equal(t, StepIdentity, step)
		assert.Contains(t, errs, "documents")

		api.refErr = nil
		require.NoError(t, c.Initialize(context.Background()))
		step, errs = c.Advance()
		assert.Equal(t, StepDocuments, step)
		assert.Empty(t, errs)
	})

	t.Run("empty purpose list is unavailable", func(t *testing.T) {
		api := newFakeRegistrar()
		api.ref.Purposes = nil

		c := NewController(api, nil)
		assert.ErrorIs(t, c.Initialize(context.Background()), types.ErrReferenceDataUnavailable)
	})
}

func TestValidateIdentity(t *testing.T) {
	c := newTestController(t, newFakeRegistrar())

	require.NoError(t, c.SetIdentity(validIdentity()))
	assert.Empty(t, c.ValidateStep(StepIdentity))

	tests := []struct {
		name   string
		mutate func(*types.Identity)
		key    string
		want   string
	}{
		{"blank first name", func(i *types.Identity) { i.FirstName = "   " }, "first_name", "First name is required."},
		{"blank last name", func(i *types.Identity) { i.LastName = "" }, "last_name", "Last name is required."},
		{"blank student number", func(i *types.Identity) { i.StudentNumber = "" }, "student_number", "Student ID is required."},
		{"blank email", func(i *types.Identity) { i.Email = "" }, "email", "Email is required."},
		{"bad email", func(i *types.Identity) { i.Email = "maria@" }, "email", "Invalid email address."},
		{"blank phone", func(i *types.Identity) { i.Phone = "" }, "phone", "Phone number is required."},
		{"no relationship", func(i *types.Identity) { i.Relationship = "" }, "relationship", "Please select your relationship to the university."},
		{"unknown relationship", func(i *types.Identity) { i.Relationship = "faculty" }, "relationship", "Please select your relationship to the university."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := validIdentity()
			tt.mutate(&identity)
			require.NoError(t, c.SetIdentity(identity))

			errs := c.ValidateStep(StepIdentity)
			assert.Equal(t, tt.want, errs[tt.key])
		})
	}

	t.Run("middle name is optional", func(t *testing.T) {
		identity := validIdentity()
		identity.MiddleName = ""
		require.NoError(t, c.SetIdentity(identity))
		assert.Empty(t, c.ValidateStep(StepIdentity))
	})
}

func TestToggleDocument(t *testing.T) {
	c := newTestController(t, newFakeRegistrar())

	require.NoError(t, c.ToggleDocument(docTOR))
	draft := c.Draft()
	require.Len(t, draft.Documents, 1)
	assert.Equal(t, 1, draft.Documents[0].Copies)
	assert.False(t, draft.Documents[0].HasPurpose())

	errs := c.ValidateStep(StepDocuments)
	assert.Contains(t, errs, PurposeKey(docTOR))
	assert.Contains(t, c.Errors(), PurposeKey(docTOR))

	require.NoError(t, c.ToggleDocument(docTOR))
	assert.Empty(t, c.Draft().Documents)
	assert.NotContains(t, c.Errors(), PurposeKey(docTOR))

	assert.ErrorIs(t, c.ToggleDocument(99), types.ErrUnknownDocumentType)
}

func TestSetPurposeAndCopies(t *testing.T) {
	c := newTestController(t, newFakeRegistrar())

	assert.ErrorIs(t, c.SetPurpose(docTOR, purposeWork), types.ErrDocumentNotSelected)

	require.NoError(t, c.ToggleDocument(docTOR))
	assert.ErrorIs(t, c.SetPurpose(docTOR, 999), types.ErrUnknownPurpose)
	require.NoError(t, c.SetPurpose(docTOR, purposeVisa))
	assert.Equal(t, "Visa application", c.Draft().Documents[0].PurposeName)

	require.NoError(t, c.SetCopies(docTOR, 0))
	assert.Equal(t, MinCopies, c.Draft().Documents[0].Copies)
	require.NoError(t, c.SetCopies(docTOR, 25))
	assert.Equal(t, MaxCopies, c.Draft().Documents[0].Copies)
	require.NoError(t, c.SetCopies(docTOR, 3))
	assert.Equal(t, 3, c.Draft().Documents[0].Copies)

	assert.ErrorIs(t, c.SetCopies(docDiploma, 2), types.ErrDocumentNotSelected)
}

func TestComputeTotal(t *testing.T) {
	c := newTestController(t, newFakeRegistrar())
	assert.Equal(t, types.Money(0), c.ComputeTotal())

	require.NoError(t, c.ToggleDocument(docTOR))
	require.NoError(t, c.ToggleDocument(docDiploma))
	require.NoError(t, c.SetCopies(docTOR, 2))
	require.NoError(t, c.SetCopies(docDiploma, 3))

	want := types.MoneyFromFloat(100*2 + 350.50*3)
	assert.Equal(t, want, c.ComputeTotal())
	assert.Equal(t, types.TotalOf(c.Draft().Documents), c.ComputeTotal())
	assert.Equal(t, "₱1,251.50", c.ComputeTotal().String())
}

func TestStepNavigation(t *testing.T) {
	c := newTestController(t, newFakeRegistrar())

	step, errs := c.Advance()
	assert.Equal(t, StepIdentity, step)
	assert.NotEmpty(t, errs)

	require.NoError(t, c.SetIdentity(validIdentity()))
	step, errs = c.Advance()
	require.Empty(t, errs)
	assert.Equal(t, StepDocuments, step)

	step, errs = c.Advance()
	assert.Equal(t, StepDocuments, step)
	assert.Equal(t, "Select at least one document.", errs["documents"])

	require.NoError(t, c.ToggleDocument(docTOR))
	require.NoError(t, c.SetPurpose(docTOR, purposeWork))
	step, _ = c.Advance()
	assert.Equal(t, StepReview, step)

	assert.Equal(t, StepDocuments, c.Back())
	assert.Len(t, c.Draft().Documents, 1, "moving back keeps the draft")

	step, _ = c.GoTo(StepIdentity)
	assert.Equal(t, StepIdentity, step)

	step, errs = c.GoTo(StepReview)
	assert.Empty(t, errs)
	assert.Equal(t, StepReview, step)
}

func TestGoToStopsAtFirstInvalidStep(t *testing.T) {
	c := newTestController(t, newFakeRegistrar())
	require.NoError(t, c.SetIdentity(validIdentity()))

	step, errs := c.GoTo(StepReview)
	assert.Equal(t, StepDocuments, step)
	assert.Contains(t, errs, "documents")
}

func torController(t *testing.T, api RegistrarAPI) *Controller {
	t.Helper()
	c := newTestController(t, api)
	require.NoError(t, c.SetIdentity(validIdentity()))
	require.NoError(t, c.ToggleDocument(docTOR))
	require.NoError(t, c.SetCopies(docTOR, 2))
	require.NoError(t, c.SetPurpose(docTOR, purposeWork))
	require.NoError(t, c.AcceptPrivacy(true))
	return c
}

func TestSubmit(t *testing.T) {
	t.Run("transcript for employment", func(t *testing.T) {
		api := newFakeRegistrar()
		c := torController(t, api)

		assert.Equal(t, types.MoneyFromFloat(200), c.ComputeTotal())
		assert.Empty(t, c.ValidateStep(StepDocuments))

		receipt, err := c.Submit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, receipt.RequestID)

		require.Len(t, api.payloads, 1)
		payload := api.payloads[0]
		assert.Equal(t, "Maria", payload.FirstName)
		assert.Equal(t, "maria.santos@example.com", payload.EmailAddress)
		assert.Equal(t, "09171234567", payload.MobileNumber)
		assert.Equal(t, []types.RequestedDocumentPayload{
			{DocTypeID: docTOR, CopyAmount: 2, PurposeID: purposeWork},
		}, payload.RequestedDocuments)

		assert.Equal(t, StepSubmitted, c.Step())
		assert.Empty(t, c.Draft().Documents)
		assert.Same(t, receipt, c.Receipt())
	})

	t.Run("unresolved purpose never reaches the registrar", func(t *testing.T) {
		api := newFakeRegistrar()
		c := torController(t, api)
		require.NoError(t, c.ToggleDocument(docDiploma))

		_, err := c.Submit(context.Background())

		var verr *types.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, int(StepDocuments), verr.Step)
		assert.Contains(t, verr.Fields, PurposeKey(docDiploma))
		assert.Empty(t, api.payloads)
	})

	t.Run("privacy notice must be accepted", func(t *testing.T) {
		api := newFakeRegistrar()
		c := torController(t, api)
		require.NoError(t, c.AcceptPrivacy(false))

		_, err := c.Submit(context.Background())

		var verr *types.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "privacy")
		assert.Empty(t, api.payloads)
	})

	t.Run("rejection keeps the draft and the server body", func(t *testing.T) {
		api := newFakeRegistrar()
		body := `{"requested_documents":["Invalid purpose."]}`
		api.createErr = &types.APIError{Status: http.StatusBadRequest, Body: []byte(body)}
		c := torController(t, api)

		_, err := c.Submit(context.Background())

		var rejected *types.SubmissionRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, body, rejected.ServerMessage)
		assert.Equal(t, http.StatusBadRequest, rejected.Status)
		assert.Equal(t, StepIdentity, c.Step())
		assert.Len(t, c.Draft().Documents, 1)
	})

	t.Run("network failure is not a rejection", func(t *testing.T) {
		api := newFakeRegistrar()
		api.createErr = types.ErrNetwork
		c := torController(t, api)

		_, err := c.Submit(context.Background())
		require.ErrorIs(t, err, types.ErrNetwork)

		var rejected *types.SubmissionRejectedError
		assert.False(t, errors.As(err, &rejected))
	})

	t.Run("submitted draft is terminal", func(t *testing.T) {
		c := torController(t, newFakeRegistrar())
		_, err := c.Submit(context.Background())
		require.NoError(t, err)

		_, err = c.Submit(context.Background())
		assert.ErrorIs(t, err, types.ErrDraftSubmitted)
		assert.ErrorIs(t, c.ToggleDocument(docTOR), types.ErrDraftSubmitted)
		assert.ErrorIs(t, c.SetNotes("again"), types.ErrDraftSubmitted)
		assert.Equal(t, StepSubmitted, c.Back())
	})
}

func TestApplyScannedIdentity(t *testing.T) {
	c := newTestController(t, newFakeRegistrar())
	require.NoError(t, c.SetIdentity(types.Identity{FirstName: "typed", Phone: "0917"}))

	require.NoError(t, c.ApplyScannedIdentity(&types.ScannedIdentity{
		StudentNumber: "20-1111-222",
		FirstName:     "Juan",
		LastName:      "Dela Cruz",
		Enrolled:      true,
	}))

	id := c.Draft().Identity
	assert.Equal(t, "Juan", id.FirstName)
	assert.Equal(t, "Dela Cruz", id.LastName)
	assert.Equal(t, "20-1111-222", id.StudentNumber)
	assert.Equal(t, "0917", id.Phone)
	assert.Equal(t, types.RelationshipCurrent, id.Relationship)
	assert.True(t, id.RelationshipResolved)

	require.NoError(t, c.ApplyScannedIdentity(nil))
	require.NoError(t, c.ApplyScannedIdentity(&types.ScannedIdentity{}))
	assert.Equal(t, "Juan", c.Draft().Identity.FirstName)
}

func TestSubmitDoesNotBlockReads(t *testing.T) {
	api := &slowRegistrar{
		fakeRegistrar: newFakeRegistrar(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	c := torController(t, api)

	type result struct {
		receipt *types.Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		receipt, err := c.Submit(context.Background())
		done <- result{receipt, err}
	}()

	<-api.entered

	// the registrar call is in flight; the draft is still readable
	assert.NotEqual(t, StepSubmitted, c.Step())
	assert.Len(t, c.Draft().Documents, 1)

	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, types.ErrSubmitInProgress)

	close(api.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 42, res.receipt.RequestID)
	assert.Equal(t, StepSubmitted, c.Step())
	assert.Len(t, api.payloads, 1)
}
