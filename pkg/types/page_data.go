package types

type NavbarData struct {
	IsAuthenticated bool
	UserID          string
	UserEmail       string
	Role            string
}

type NavbarDataSetter interface {
	SetNavbarData(data NavbarData)
}

type BasePageData struct {
	Title  string
	Navbar NavbarData
	Notice string
	Error  string
}

func (d *BasePageData) SetNavbarData(data NavbarData) {
	d.Navbar = data
}

type HomePageData struct {
	BasePageData
}

type WizardStepData struct {
	Number int
	Label  string
	Active bool
	Done   bool
}

// WizardPageData backs all three request wizard steps.
type WizardPageData struct {
	BasePageData
	Step          int
	Steps         []WizardStepData
	Draft         RequestDraft
	Reference     *ReferenceData
	Selected      map[int]bool
	FieldErrors   FieldErrors
	Total         Money
	Relationships []Relationship
	CopyOptions   []int
	ScanError     string
}

type UnavailablePageData struct {
	BasePageData
	RetryURL string
}

type ReceiptPageData struct {
	BasePageData
	Receipt *Receipt
	Total   Money
}

type StatusPageData struct {
	BasePageData
	Code     string
	Record   *RequestRecord
	NotFound bool
	Statuses []RequestStatus

	Lookup      StudentLookup
	Student     *StudentRequests
	FieldErrors FieldErrors
}

type LoginPageData struct {
	BasePageData
	Email       string
	FieldErrors FieldErrors
}

type DashboardPageData struct {
	BasePageData
	Summary *DashboardSummary
}

type RequestsPageData struct {
	BasePageData
	Requests []RequestRecord
	Filter   RequestFilter
	Statuses []RequestStatus
}
