package types

import "strings"

type RequestStatus int

const (
	StatusRequested  RequestStatus = 1
	StatusProcessing RequestStatus = 2
	StatusReleased   RequestStatus = 3
	StatusReceived   RequestStatus = 4
)

var RequestStatuses = []RequestStatus{
	StatusRequested,
	StatusProcessing,
	StatusReleased,
	StatusReceived,
}

func (s RequestStatus) String() string {
	switch s {
	case StatusRequested:
		return "Requested"
	case StatusProcessing:
		return "Processing"
	case StatusReleased:
		return "Released"
	case StatusReceived:
		return "Received"
	}
	return "Unknown"
}

func (s RequestStatus) Valid() bool {
	return s >= StatusRequested && s <= StatusReceived
}

// CompletionPercent is used when the registrar omits completion_percent.
func (s RequestStatus) CompletionPercent() int {
	if !s.Valid() {
		return 0
	}
	return int(s) * 25
}

// ParseRequestStatus maps the registrar's status descriptions
// ("requested", "Request Received", ...) onto the enum.
func ParseRequestStatus(description string) RequestStatus {
	d := strings.ToLower(strings.TrimSpace(description))
	switch {
	case strings.Contains(d, "processing"):
		return StatusProcessing
	case strings.Contains(d, "released"):
		return StatusReleased
	case strings.Contains(d, "received"):
		return StatusReceived
	case strings.Contains(d, "requested"):
		return StatusRequested
	}
	return 0
}

type StatusDocument struct {
	DocTypeID      int    `json:"doctype_id"`
	Name           string `json:"doctype_name"`
	Copies         int    `json:"copy_amount"`
	ProcessingTime string `json:"processing_time"`
}

// RequestRecord is the registrar-owned request as the frontend reads it.
// It is never mutated locally; status changes go through the API and the
// record is fetched again.
type RequestRecord struct {
	RequestID         int              `json:"request_id"`
	RequestNumber     string           `json:"request_number"`
	FirstName         string           `json:"first_name"`
	LastName          string           `json:"last_name"`
	StudentNumber     string           `json:"student_number"`
	DateRequested     string           `json:"date_requested"`
	StatusLabel       string           `json:"request_status"`
	CompletionPercent *int             `json:"completion_percent"`
	Documents         []StatusDocument `json:"documents"`
	TotalAmount       Money            `json:"total_amount"`
	PaymentStatus     string           `json:"payment_status"`
}

func (r *RequestRecord) Status() RequestStatus {
	return ParseRequestStatus(r.StatusLabel)
}

func (r *RequestRecord) Percent() int {
	if r.CompletionPercent != nil {
		return *r.CompletionPercent
	}
	return r.Status().CompletionPercent()
}

func (r *RequestRecord) RequesterName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

type RequestFilter struct {
	Search   string        `form:"search"`
	StatusID RequestStatus `form:"status_id"`
}

type UpdateStatusPayload struct {
	StatusID RequestStatus `json:"status_id"`
	Remarks  string        `json:"remarks,omitempty"`
}

type RecentRequest struct {
	RequestID     int    `json:"request_id"`
	RequesterName string `json:"requester_name"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

type DashboardSummary struct {
	PendingRequests   int             `json:"pending_requests"`
	CompletedRequests int             `json:"completed_requests"`
	WeeklyRequests    int             `json:"weekly_requests"`
	ActiveDocuments   int             `json:"active_documents"`
	UnpaidRequests    int             `json:"unpaid_requests"`
	RecentRequests    []RecentRequest `json:"recent_requests"`
}

// StudentLookup finds a student's requests without a receipt.
type StudentLookup struct {
	FirstName     string `json:"first_name" form:"first_name" validate:"required,max=35"`
	LastName      string `json:"last_name" form:"last_name" validate:"required,max=35"`
	StudentNumber string `json:"student_number" form:"student_number" validate:"required"`
}

func (l StudentLookup) Trimmed() StudentLookup {
	return StudentLookup{
		FirstName:     strings.TrimSpace(l.FirstName),
		LastName:      strings.TrimSpace(l.LastName),
		StudentNumber: strings.TrimSpace(l.StudentNumber),
	}
}

// StudentRequests is every request one student has filed, newest first.
type StudentRequests struct {
	Student       StudentLookup   `json:"student"`
	TotalRequests int             `json:"total_requests"`
	Requests      []RequestRecord `json:"requests"`
}
