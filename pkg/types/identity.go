package types

import "strings"

type Relationship string

const (
	RelationshipCurrent        Relationship = "current"
	RelationshipAlumni         Relationship = "alumni"
	RelationshipRepresentative Relationship = "representative"
)

var Relationships = []Relationship{
	RelationshipCurrent,
	RelationshipAlumni,
	RelationshipRepresentative,
}

func (r Relationship) Label() string {
	switch r {
	case RelationshipCurrent:
		return "Current Student"
	case RelationshipAlumni:
		return "Alumni/Inactive Student"
	case RelationshipRepresentative:
		return "Representative"
	}
	return ""
}

// Identity is step 1 of the request wizard. The validate tags drive the
// step-1 field errors; keys reported to the view are the form tags.
type Identity struct {
	FirstName     string       `form:"first_name" validate:"required"`
	MiddleName    string       `form:"middle_name"`
	LastName      string       `form:"last_name" validate:"required"`
	StudentNumber string       `form:"student_number" validate:"required"`
	Email         string       `form:"email" validate:"required,email"`
	Phone         string       `form:"phone" validate:"required"`
	Relationship  Relationship `form:"relationship" validate:"required,oneof=current alumni representative"`

	// RelationshipResolved is set when a card lookup confirmed enrollment.
	RelationshipResolved bool `form:"-"`
}

func (i Identity) Trimmed() Identity {
	i.FirstName = strings.TrimSpace(i.FirstName)
	i.MiddleName = strings.TrimSpace(i.MiddleName)
	i.LastName = strings.TrimSpace(i.LastName)
	i.StudentNumber = strings.TrimSpace(i.StudentNumber)
	i.Email = strings.TrimSpace(i.Email)
	i.Phone = strings.TrimSpace(i.Phone)
	i.Relationship = Relationship(strings.TrimSpace(string(i.Relationship)))
	return i
}

func (i Identity) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.FirstName, i.MiddleName, i.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ScannedIdentity is what the registrar returns for an RFID card lookup.
type ScannedIdentity struct {
	StudentID     string `json:"student_id"`
	StudentNumber string `json:"student_number"`
	FirstName     string `json:"first_name"`
	MiddleName    string `json:"middle_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Enrolled      bool   `json:"enrolled"`
}

func (s *ScannedIdentity) Number() string {
	if s.StudentID != "" {
		return s.StudentID
	}
	return s.StudentNumber
}

func (s *ScannedIdentity) IsEmpty() bool {
	return s == nil || (strings.TrimSpace(s.Number()) == "" &&
		strings.TrimSpace(s.FirstName) == "" &&
		strings.TrimSpace(s.MiddleName) == "" &&
		strings.TrimSpace(s.LastName) == "" &&
		strings.TrimSpace(s.Email) == "")
}
